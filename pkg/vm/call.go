package vm

// CallMethod is the interpreter-loop half of the embedding API's `call`
// operation (spec.md §4.7/§6): it dispatches sym on args[0] (the receiver)
// with args[1:] as arguments, driving a dedicated fiber to completion
// synchronously, the way a call handle's `CALL_n <symbol>; RETURN; END`
// stub would if it were compiled and run. pkg/api builds the slot window
// into args and reads the result back out of it.
//
// It must not be called while vm.fiber is already mid-run (a foreign
// method calling back into script some other way); the host-driven fiber
// and the running one would fight over vm.fiber.
func (vm *VM) CallMethod(sym int, args []Value) (Value, *RuntimeError) {
	class := vm.classOf(args[0])
	method, ok := class.MethodAt(sym)
	if !ok {
		return Null, &RuntimeError{Message: errDoesNotImplement(class.String(), vm.methods.Name(sym)).Error()}
	}

	fiber := vm.newFiber(nil)
	fiber.Stack = append(fiber.Stack[:0], args...)
	prevFiber := vm.fiber
	vm.fiber = fiber

	var rerr *RuntimeError
	switch method.Kind {
	case MethodPrimitive:
		result := method.Primitive(vm, fiber, fiber.Stack)
		rerr = vm.finishPrimitiveResult(fiber, result, len(args), fiber.Stack)
	case MethodForeign:
		result := method.Foreign(vm, fiber, fiber.Stack)
		rerr = vm.finishPrimitiveResult(fiber, result, len(args), fiber.Stack)
	case MethodBlock:
		rerr = vm.callBlock(fiber, method.Block.AsObj(), len(args))
	default:
		rerr = &RuntimeError{Message: errDoesNotImplement(class.String(), vm.methods.Name(sym)).Error()}
	}

	if rerr == nil && vm.fiber != nil && len(vm.fiber.Frames) > 0 {
		rerr = vm.run()
	}

	result := Null
	if len(fiber.Stack) > 0 {
		result = fiber.Stack[0]
	}
	vm.fiber = prevFiber
	return result, rerr
}

// Module looks up a previously loaded module by name; "" names the core
// module. It backs pkg/api's getVariable and foreign-method binding, both
// of which need to reach a module's variable table from outside the
// interpreter loop.
func (vm *VM) Module(name string) (*ObjModule, bool) {
	return vm.modules.get(name)
}

// ClassOf is classOf exported for pkg/api's slot introspection (a foreign
// method asking what class its receiver or an argument belongs to).
func (vm *VM) ClassOf(v Value) *ObjClass {
	return vm.classOf(v)
}

// NewString is newString exported for pkg/api's setSlotString/setSlotBytes.
func (vm *VM) NewString(s string) *ObjString { return vm.newString(s) }

// NewList is newList exported for pkg/api's setSlotNewList.
func (vm *VM) NewList() *ObjList { return vm.newList() }

// NewMap is newMap exported for pkg/api's setSlotNewMap.
func (vm *VM) NewMap() *ObjMap { return vm.newMap() }
