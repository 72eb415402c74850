package vm

import (
	"fmt"

	"github.com/lumenlang/lumen/pkg/bytecode"
)

// InterpretResult mirrors the embedding API's three-way outcome of
// interpret(): success, a compile failure, or an uncaught runtime error.
type InterpretResult int

const (
	ResultSuccess InterpretResult = iota
	ResultCompileError
	ResultRuntimeErrorOutcome
)

// Interpret compiles source as sourcePath's module and runs it to
// completion. An empty sourcePath names the core module (spec.md §8,
// property 8); any other string names (or reuses) that module. It drives
// the whole interpreter loop itself rather than just installing a fiber:
// the caller gets back one of the three embedding-API outcomes.
func (vm *VM) Interpret(sourcePath, source string) (InterpretResult, error) {
	module := vm.moduleFor(sourcePath)

	if vm.config.Compile == nil {
		return ResultCompileError, fmt.Errorf("vm: no Compile callback configured")
	}
	proto, err := vm.config.Compile(vm, module, sourcePath, source)
	if err != nil {
		if vm.config.Error != nil {
			vm.config.Error(ErrorCompile, sourcePath, 0, err.Error())
		}
		return ResultCompileError, err
	}

	fn := vm.loadFunction(proto, module)
	vm.heap.PushRoot(fn)
	closure := vm.newClosure(fn)
	vm.heap.PopRoot()

	fiber := vm.newFiber(closure)
	vm.fiber = fiber

	if rerr := vm.run(); rerr != nil {
		return ResultRuntimeErrorOutcome, rerr
	}
	return ResultSuccess, nil
}

// moduleFor returns the module sourcePath names, creating and registering
// it (with core's top-level names copied in) if this is the first time it
// has been seen. An empty sourcePath always names the core module.
func (vm *VM) moduleFor(sourcePath string) *ObjModule {
	if sourcePath == "" {
		return vm.coreModule
	}
	if existing, ok := vm.modules.get(sourcePath); ok {
		return existing
	}
	module := vm.newModule(vm.newStringNoRoot(sourcePath))
	vm.modules.put(sourcePath, module)
	vm.copyCoreVariablesInto(module)
	return module
}

// CompileOnly compiles source as sourcePath's module without running it,
// for tooling (cmd/lumen's "compile" and "disassemble" commands) that
// wants the Function tree but not an execution.
func (vm *VM) CompileOnly(sourcePath, source string) (*bytecode.Function, error) {
	module := vm.moduleFor(sourcePath)
	if vm.config.Compile == nil {
		return nil, fmt.Errorf("vm: no Compile callback configured")
	}
	proto, err := vm.config.Compile(vm, module, sourcePath, source)
	if err != nil {
		if vm.config.Error != nil {
			vm.config.Error(ErrorCompile, sourcePath, 0, err.Error())
		}
		return nil, err
	}
	return proto, nil
}

// InterpretCompiled runs an already-compiled Function as sourcePath's
// module, the same way Interpret does after its own Compile call. It
// backs cmd/lumen's ability to run a pre-compiled .lc file without
// re-parsing source.
func (vm *VM) InterpretCompiled(sourcePath string, proto *bytecode.Function) (InterpretResult, error) {
	module := vm.moduleFor(sourcePath)

	fn := vm.loadFunction(proto, module)
	vm.heap.PushRoot(fn)
	closure := vm.newClosure(fn)
	vm.heap.PopRoot()

	fiber := vm.newFiber(closure)
	vm.fiber = fiber

	if rerr := vm.run(); rerr != nil {
		return ResultRuntimeErrorOutcome, rerr
	}
	return ResultSuccess, nil
}

// copyCoreVariablesInto implicitly imports the core module's top-level
// names into a newly loaded module, so every module sees Object, Num,
// List, System, ... without an explicit import (spec.md §4.6).
func (vm *VM) copyCoreVariablesInto(module *ObjModule) {
	for i := 0; i < vm.coreModule.Variables.Count(); i++ {
		name := vm.coreModule.Variables.Name(i)
		module.DefineVariable(name, vm.coreModule.Values[i])
	}
}

func readU8(code []byte, ip *int) int {
	v := int(code[*ip])
	*ip++
	return v
}

func readU16(code []byte, ip *int) int {
	v := int(code[*ip])<<8 | int(code[*ip+1])
	*ip += 2
	return v
}

// run is the decode-dispatch loop (spec.md §4.4). It executes one
// instruction of vm.fiber's current frame per iteration, re-reading
// vm.fiber and the current frame at the top of the loop every time since
// any instruction may switch fibers (Fiber primitives, LOAD_MODULE) or
// push/pop a call frame (CALL/SUPER/RETURN). It returns nil on normal
// completion of the root fiber and a *RuntimeError if an error escapes
// with no try-catching caller.
func (vm *VM) run() *RuntimeError {
	for vm.fiber != nil {
		fiber := vm.fiber
		frame := fiber.currentFrame()
		fn := frame.proto()
		code := fn.Proto.Code
		op := bytecode.Opcode(code[frame.IP])
		frame.IP++

		if bytecode.IsCall(op) || bytecode.IsSuper(op) {
			if rerr := vm.dispatchMethodCall(fiber, frame, fn, code, op); rerr != nil {
				return rerr
			}
			continue
		}

		switch op {
		case bytecode.OpConstant:
			idx := readU16(code, &frame.IP)
			fiber.push(fn.constants[idx])

		case bytecode.OpNull:
			fiber.push(Null)
		case bytecode.OpFalse:
			fiber.push(False)
		case bytecode.OpTrue:
			fiber.push(True)

		case bytecode.OpLoadLocal0, bytecode.OpLoadLocal1, bytecode.OpLoadLocal2,
			bytecode.OpLoadLocal3, bytecode.OpLoadLocal4, bytecode.OpLoadLocal5,
			bytecode.OpLoadLocal6, bytecode.OpLoadLocal7, bytecode.OpLoadLocal8:
			idx := int(op - bytecode.OpLoadLocal0)
			fiber.push(fiber.Stack[frame.StackStart+idx])
		case bytecode.OpLoadLocal:
			idx := readU8(code, &frame.IP)
			fiber.push(fiber.Stack[frame.StackStart+idx])
		case bytecode.OpStoreLocal:
			idx := readU8(code, &frame.IP)
			fiber.Stack[frame.StackStart+idx] = fiber.top()

		case bytecode.OpLoadUpvalue:
			idx := readU8(code, &frame.IP)
			fiber.push(frame.Closure.Upvalues[idx].Get())
		case bytecode.OpStoreUpvalue:
			idx := readU8(code, &frame.IP)
			frame.Closure.Upvalues[idx].Set(fiber.top())

		case bytecode.OpLoadModuleVar:
			idx := readU16(code, &frame.IP)
			fiber.push(fn.Module.Values[idx])
		case bytecode.OpStoreModuleVar:
			idx := readU16(code, &frame.IP)
			fn.Module.Values[idx] = fiber.top()

		case bytecode.OpLoadFieldThis:
			idx := readU8(code, &frame.IP)
			inst := fiber.Stack[frame.StackStart].AsInstance()
			fiber.push(inst.Fields[idx])
		case bytecode.OpStoreFieldThis:
			idx := readU8(code, &frame.IP)
			inst := fiber.Stack[frame.StackStart].AsInstance()
			inst.Fields[idx] = fiber.top()
		case bytecode.OpLoadField:
			idx := readU8(code, &frame.IP)
			inst := fiber.pop().AsInstance()
			fiber.push(inst.Fields[idx])
		case bytecode.OpStoreField:
			idx := readU8(code, &frame.IP)
			inst := fiber.pop().AsInstance()
			inst.Fields[idx] = fiber.top()

		case bytecode.OpPop:
			fiber.pop()
		case bytecode.OpDup:
			fiber.push(fiber.top())

		case bytecode.OpJump:
			off := readU16(code, &frame.IP)
			frame.IP += off
		case bytecode.OpLoop:
			off := readU16(code, &frame.IP)
			frame.IP -= off
		case bytecode.OpJumpIf:
			off := readU16(code, &frame.IP)
			if fiber.pop().IsFalsy() {
				frame.IP += off
			}
		case bytecode.OpAnd:
			off := readU16(code, &frame.IP)
			if fiber.top().IsFalsy() {
				frame.IP += off
			} else {
				fiber.pop()
			}
		case bytecode.OpOr:
			off := readU16(code, &frame.IP)
			if !fiber.top().IsFalsy() {
				frame.IP += off
			} else {
				fiber.pop()
			}

		case bytecode.OpClass:
			numFields := readU8(code, &frame.IP)
			super := fiber.pop()
			name := fiber.pop()
			if !super.IsClass() {
				return vm.raiseError(ObjValue(vm.newString(errMustInheritFromClass().Error())))
			}
			cls, err := vm.newClass(name.AsString().Value, super.AsClass(), numFields)
			if err != nil {
				return vm.raiseError(ObjValue(vm.newString(err.Error())))
			}
			fiber.push(ObjValue(cls))

		case bytecode.OpMethodInstance:
			sym := readU16(code, &frame.IP)
			method := fiber.pop()
			cls := fiber.top().AsClass()
			cls.Bind(sym, Method{Kind: MethodBlock, Block: method})
		case bytecode.OpMethodStatic:
			sym := readU16(code, &frame.IP)
			method := fiber.pop()
			cls := fiber.top().AsClass()
			cls.ObjHeader.class.Bind(sym, Method{Kind: MethodBlock, Block: method})

		case bytecode.OpClosure:
			fnIdx := readU16(code, &frame.IP)
			proto := fn.constants[fnIdx].AsFn()
			closure := vm.newClosure(proto)
			fiber.push(ObjValue(closure))
			for i := range proto.Proto.Upvalues {
				ref := proto.Proto.Upvalues[i]
				isLocal := readU8(code, &frame.IP) != 0
				idx := readU8(code, &frame.IP)
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(fiber, frame.StackStart+idx)
				} else {
					closure.Upvalues[i] = frame.Closure.Upvalues[idx]
				}
				_ = ref
			}

		case bytecode.OpLoadModule:
			nameIdx := readU16(code, &frame.IP)
			name := fn.constants[nameIdx].AsString().Value
			if rerr := vm.opLoadModule(fiber, name); rerr != nil {
				return rerr
			}

		case bytecode.OpImportVariable:
			moduleIdx := readU16(code, &frame.IP)
			varIdx := readU16(code, &frame.IP)
			moduleName := fn.constants[moduleIdx].AsString().Value
			varName := fn.constants[varIdx].AsString().Value
			srcModule, ok := vm.modules.get(moduleName)
			if !ok {
				return vm.raiseError(ObjValue(vm.newString(errModuleNotFound(moduleName).Error())))
			}
			value, ok := srcModule.Variable(varName)
			if !ok {
				return vm.raiseError(ObjValue(vm.newString(errVariableNotFoundInModule(varName, moduleName).Error())))
			}
			fiber.push(value)

		case bytecode.OpCloseUpvalue:
			closeUpvaluesFrom(fiber, len(fiber.Stack)-1)
			fiber.pop()

		case bytecode.OpReturn:
			result := fiber.pop()
			closeUpvaluesFrom(fiber, frame.StackStart)
			fiber.Frames = fiber.Frames[:len(fiber.Frames)-1]
			if len(fiber.Frames) == 0 {
				if fiber.Caller == nil {
					fiber.Stack = fiber.Stack[:frame.StackStart+1]
					fiber.Stack[frame.StackStart] = result
					vm.fiber = nil
				} else {
					caller := fiber.Caller
					fiber.Caller = nil
					caller.setTop(result)
					vm.fiber = caller
				}
			} else {
				fiber.Stack = fiber.Stack[:frame.StackStart+1]
				fiber.Stack[frame.StackStart] = result
			}

		case bytecode.OpIs:
			expected := fiber.pop()
			actual := fiber.pop()
			if !expected.IsClass() {
				return vm.raiseError(ObjValue(vm.newString(errRightOperandMustBeClass().Error())))
			}
			fiber.push(BoolValue(isSubclassOf(vm.classOf(actual), expected.AsClass())))

		case bytecode.OpEnd:
			return vm.raiseError(ObjValue(vm.newString("internal error: END instruction executed")))

		default:
			return vm.raiseError(ObjValue(vm.newString(fmt.Sprintf("internal error: unknown opcode %v", op))))
		}
	}
	return nil
}

// dispatchMethodCall implements CALL_n and SUPER_n (spec.md §4.3/§4.4):
// classOf the receiver (or, for SUPER, that class's superclass) is looked
// up for the symbol, and the loop branches on what kind of method it
// finds.
func (vm *VM) dispatchMethodCall(fiber *Fiber, frame *CallFrame, fn *ObjFn, code []byte, op bytecode.Opcode) *RuntimeError {
	isSuper := bytecode.IsSuper(op)
	var numArgs int
	if isSuper {
		numArgs = bytecode.NumArgsForSuper(op)
	} else {
		numArgs = bytecode.NumArgsForCall(op)
	}
	numArgs++ // receiver
	sym := readU16(code, &frame.IP)

	args := fiber.Stack[len(fiber.Stack)-numArgs:]
	class := vm.classOf(args[0])
	if isSuper {
		class = class.Superclass
	}

	method, ok := class.MethodAt(sym)
	if !ok {
		return vm.raiseError(ObjValue(vm.newString(errDoesNotImplement(class.String(), vm.methods.Name(sym)).Error())))
	}

	switch method.Kind {
	case MethodPrimitive:
		result := method.Primitive(vm, fiber, args)
		return vm.finishPrimitiveResult(fiber, result, numArgs, args)
	case MethodForeign:
		result := method.Foreign(vm, fiber, args)
		return vm.finishPrimitiveResult(fiber, result, numArgs, args)
	case MethodBlock:
		callee := method.Block.AsObj()
		return vm.callBlock(fiber, callee, numArgs)
	default:
		return vm.raiseError(ObjValue(vm.newString(errDoesNotImplement(class.String(), vm.methods.Name(sym)).Error())))
	}
}

// finishPrimitiveResult applies the effect of the four Result variants a
// primitive or foreign method can return (spec.md §9's "exceptions as
// result codes" design note).
func (vm *VM) finishPrimitiveResult(fiber *Fiber, result Result, numArgs int, args []Value) *RuntimeError {
	switch result {
	case ResultValue:
		fiber.Stack = fiber.Stack[:len(fiber.Stack)-(numArgs-1)]
		return nil
	case ResultError:
		return vm.raiseError(args[0])
	case ResultCall:
		return vm.callBlock(fiber, args[0].AsObj(), numArgs)
	case ResultRunFiber:
		if args[0].IsNull() {
			vm.fiber = nil
			return nil
		}
		vm.fiber = args[0].AsFiber()
		return nil
	default:
		return nil
	}
}

// callBlock pushes a new call frame for an ObjFn or ObjClosure callee over
// the top numArgs stack slots (the receiver plus its arguments).
func (vm *VM) callBlock(fiber *Fiber, callee Obj, numArgs int) *RuntimeError {
	stackStart := len(fiber.Stack) - numArgs
	var err error
	switch c := callee.(type) {
	case *ObjClosure:
		err = fiber.pushFrame(c, nil, stackStart)
	case *ObjFn:
		err = fiber.pushFrame(nil, c, stackStart)
	default:
		err = fmt.Errorf("internal error: call target is not callable")
	}
	if err != nil {
		return vm.raiseError(ObjValue(vm.newString(err.Error())))
	}
	return nil
}

// raiseError implements the callerIsTrying recovery of spec.md §4.5/§7:
// if the current fiber has a caller that called it via try(), the error
// value is delivered into that caller's call slot and execution resumes
// there; otherwise a RuntimeError with a full stack trace is built and
// reported through Config.Error.
func (vm *VM) raiseError(errValue Value) *RuntimeError {
	fiber := vm.fiber
	fiber.Error = errValue

	if fiber.Caller != nil && fiber.CallerIsTrying {
		caller := fiber.Caller
		fiber.Caller = nil
		fiber.CallerIsTrying = false
		caller.setTop(errValue)
		vm.fiber = caller
		return nil
	}

	rerr := vm.buildRuntimeError(fiber, errValue)
	vm.fiber = nil
	return rerr
}

func (vm *VM) buildRuntimeError(fiber *Fiber, errValue Value) *RuntimeError {
	msg := errorValueToString(errValue)

	trace := make([]StackFrame, 0, len(fiber.Frames))
	for i := len(fiber.Frames) - 1; i >= 0; i-- {
		fr := fiber.Frames[i]
		proto := fr.proto()
		line := proto.Proto.LineForOffset(fr.IP - 1)
		name := proto.Proto.DebugName
		if name == "" {
			name = "(script)"
		}
		trace = append(trace, StackFrame{FunctionName: name, ModuleName: proto.Proto.ModuleName, Line: line})
	}

	if vm.config.Error != nil {
		topModule, topLine := "", 0
		if len(trace) > 0 {
			topModule, topLine = trace[0].ModuleName, trace[0].Line
		}
		vm.config.Error(ErrorRuntime, topModule, topLine, msg)
		for _, f := range trace {
			vm.config.Error(ErrorStackTrace, f.ModuleName, f.Line, "in "+f.FunctionName)
		}
	}

	return &RuntimeError{Message: msg, Trace: trace}
}

func errorValueToString(v Value) string {
	if v.IsString() {
		return v.AsString().Value
	}
	if v.IsNumber() {
		return NumberToString(v.AsNumber())
	}
	if v.IsNull() {
		return "null"
	}
	return "error"
}

// opLoadModule implements LOAD_MODULE (spec.md §4.6): a no-op (beyond a
// placeholder return slot) if the module is already loaded; otherwise it
// allocates the module, asks the host to resolve its source, compiles it,
// and switches to a fresh fiber running its top-level body, linking that
// fiber's caller back to the importing fiber so completion resumes here.
func (vm *VM) opLoadModule(fiber *Fiber, name string) *RuntimeError {
	fiber.push(Null) // RETURN's slot once the module body (if any) finishes

	if _, ok := vm.modules.get(name); ok {
		return nil
	}

	if vm.config.LoadModule == nil {
		return vm.raiseError(ObjValue(vm.newString(errModuleNotFound(name).Error())))
	}
	source, ok := vm.config.LoadModule(name)
	if !ok {
		return vm.raiseError(ObjValue(vm.newString(errModuleNotFound(name).Error())))
	}

	module := vm.newModule(vm.newStringNoRoot(name))
	vm.modules.put(name, module)
	vm.copyCoreVariablesInto(module)

	if vm.config.Compile == nil {
		return vm.raiseError(ObjValue(vm.newString("vm: no Compile callback configured")))
	}
	proto, err := vm.config.Compile(vm, module, name, source)
	if err != nil {
		if vm.config.Error != nil {
			vm.config.Error(ErrorCompile, name, 0, err.Error())
		}
		return vm.raiseError(ObjValue(vm.newString(err.Error())))
	}

	fn := vm.loadFunction(proto, module)
	vm.heap.PushRoot(fn)
	closure := vm.newClosure(fn)
	vm.heap.PopRoot()

	childFiber := vm.newFiber(closure)
	childFiber.Caller = fiber
	vm.fiber = childFiber
	return nil
}
