// Package api is lumen's embedding API (spec.md §4.7/§6): the host-facing
// surface a Go program links against to run scripts, exchange values with
// them through a slot window, call script methods from host code, and
// register foreign methods that scripts call back into. It is a thin
// wrapper over pkg/vm: every operation here either forwards directly to an
// exported pkg/vm method or composes a small number of them, the way
// wren.h's C functions are thin wrappers over wren_vm.c's internals.
package api

import (
	"fmt"

	"github.com/lumenlang/lumen/pkg/compiler"
	"github.com/lumenlang/lumen/pkg/vm"
)

// ForeignMethodFn is a host-registered native method. It receives the
// embedding VM with the slot window already set to the call's receiver
// (slot 0) and arguments (slots 1..n), the same shape a real Primitive
// sees, but reached through the slot API rather than a raw []vm.Value.
type ForeignMethodFn func(v *VM)

// Config collects the host callbacks NewVM needs. It mirrors vm.Config
// minus Compile, which api always wires to pkg/compiler: a host embedding
// lumen chooses a module loader and I/O sinks, not a compiler front end.
type Config struct {
	LoadModule func(name string) (string, bool)
	Write      func(text string)
	Error      func(errType vm.ErrorType, module string, line int, message string)

	// BindForeignMethod is consulted by ResolveForeignMethod for a foreign
	// method that was never registered via RegisterForeignMethod, mirroring
	// Wren's bindForeignMethodFn config callback: a host that would rather
	// resolve foreign methods lazily by name than pre-register each one can
	// supply this and call ResolveForeignMethod instead. Nothing else
	// consults it.
	BindForeignMethod func(module, className string, isStatic bool, signature string) ForeignMethodFn

	InitialHeapSize   int
	MinHeapSize       int
	HeapGrowthPercent int
	StressGC          bool
}

// pendingForeign is a foreign method registered before (or instead of) the
// class that will eventually own it exists. bindPending resolves these
// against the VM's loaded modules once their class has run its OpClass.
type pendingForeign struct {
	module    string
	class     string
	isStatic  bool
	signature string
	fn        ForeignMethodFn
}

// VM is the embedding handle a host program holds: the underlying
// interpreter, the host's current slot window, and the bookkeeping that
// makes ReturnSlot/AbortFiber and deferred foreign-method binding work.
type VM struct {
	vm  *vm.VM
	cfg Config

	slots      []vm.Value
	slotZeroSet bool

	aborted    bool
	abortValue vm.Value

	pending []pendingForeign
}

// NewVM constructs an embedding VM, bootstrapping the same core module
// vm.NewVM does and wiring pkg/compiler as the module-source oracle.
func NewVM(cfg Config) *VM {
	host := &VM{cfg: cfg}
	host.vm = vm.NewVM(vm.Config{
		Compile:           compiler.Compile,
		LoadModule:        cfg.LoadModule,
		Write:             cfg.Write,
		Error:             cfg.Error,
		InitialHeapSize:   cfg.InitialHeapSize,
		MinHeapSize:       cfg.MinHeapSize,
		HeapGrowthPercent: cfg.HeapGrowthPercent,
		StressGC:          cfg.StressGC,
	})
	return host
}

// Interpret compiles and runs source as sourcePath's module, then resolves
// any foreign methods whose owning class has now been declared.
func (v *VM) Interpret(sourcePath, source string) (vm.InterpretResult, error) {
	result, err := v.vm.Interpret(sourcePath, source)
	v.BindPending()
	return result, err
}

// Underlying exposes the wrapped *vm.VM for host code that needs lower
// -level access (disassembly, tests) than the embedding surface covers.
func (v *VM) Underlying() *vm.VM { return v.vm }

// ensureSlotCount grows the slot window to at least n slots, filling new
// slots with null, without disturbing existing contents.
func (v *VM) ensureSlotCount(n int) {
	for len(v.slots) < n {
		v.slots = append(v.slots, vm.Null)
	}
}

// SetSlotCount adjusts the current slot window to exactly n slots,
// truncating or null-padding as needed.
func (v *VM) SetSlotCount(n int) {
	if n <= len(v.slots) {
		v.slots = v.slots[:n]
		return
	}
	v.ensureSlotCount(n)
}

// GetSlotCount reports the current slot window size.
func (v *VM) GetSlotCount() int { return len(v.slots) }

func (v *VM) setSlot(slot int, val vm.Value) {
	v.ensureSlotCount(slot + 1)
	v.slots[slot] = val
	if slot == 0 {
		v.slotZeroSet = true
	}
}

// SetSlotBool writes a bool into slot.
func (v *VM) SetSlotBool(slot int, b bool) { v.setSlot(slot, vm.BoolValue(b)) }

// SetSlotDouble writes a number into slot.
func (v *VM) SetSlotDouble(slot int, n float64) { v.setSlot(slot, vm.NumberValue(n)) }

// SetSlotString writes a string into slot.
func (v *VM) SetSlotString(slot int, s string) {
	v.setSlot(slot, vm.ObjValue(v.vm.NewString(s)))
}

// SetSlotBytes writes a raw byte slice into slot, the same as
// SetSlotString: lumen's string values are byte sequences, not validated
// UTF-8, so the two differ only in the host-side Go type at the boundary.
func (v *VM) SetSlotBytes(slot int, b []byte) {
	v.setSlot(slot, vm.ObjValue(v.vm.NewString(string(b))))
}

// SetSlotNull writes null into slot.
func (v *VM) SetSlotNull(slot int) { v.setSlot(slot, vm.Null) }

// SetSlotNewList writes a fresh, empty list into slot, to which the host
// can then append elements with ListAppendSlot.
func (v *VM) SetSlotNewList(slot int) {
	v.setSlot(slot, vm.ObjValue(v.vm.NewList()))
}

// SetSlotNewMap writes a fresh, empty map into slot.
func (v *VM) SetSlotNewMap(slot int) {
	v.setSlot(slot, vm.ObjValue(v.vm.NewMap()))
}

// CopySlot copies the value in slot src into slot dst.
func (v *VM) CopySlot(dst, src int) {
	v.setSlot(dst, v.slots[src])
}

// GetSlotBool reads slot as a bool; false if it does not hold one.
func (v *VM) GetSlotBool(slot int) bool {
	val := v.slots[slot]
	return val.IsBool() && val.AsBool()
}

// GetSlotDouble reads slot as a number; 0 if it does not hold one.
func (v *VM) GetSlotDouble(slot int) float64 {
	val := v.slots[slot]
	if !val.IsNumber() {
		return 0
	}
	return val.AsNumber()
}

// GetSlotString reads slot as a string; "" if it does not hold one.
func (v *VM) GetSlotString(slot int) string {
	val := v.slots[slot]
	if !val.IsString() {
		return ""
	}
	return val.AsString().Value
}

// GetSlotBytes reads slot as a raw byte slice.
func (v *VM) GetSlotBytes(slot int) []byte {
	return []byte(v.GetSlotString(slot))
}

// ListAppendSlot appends the value in slot valueSlot to the list in slot
// listSlot.
func (v *VM) ListAppendSlot(listSlot, valueSlot int) {
	v.slots[listSlot].AsList().Append(v.slots[valueSlot])
}

// MapSetSlot sets key slot -> value slot in the map at mapSlot.
func (v *VM) MapSetSlot(mapSlot, keySlot, valueSlot int) {
	v.slots[mapSlot].AsMap().Set(v.slots[keySlot], v.slots[valueSlot])
}

// ClassOfSlot returns the class of the value in slot, e.g. for a foreign
// method that branches on an argument's runtime type.
func (v *VM) ClassOfSlot(slot int) *vm.ObjClass {
	return v.vm.ClassOf(v.slots[slot])
}

// AbortFiber marks the current fiber (the one running this foreign method
// or call) as erroring with the value in slot. It does not itself stop the
// foreign method's Go code from running further: like Wren's
// wrenAbortFiber, the host function must return promptly after calling it.
func (v *VM) AbortFiber(slot int) {
	v.aborted = true
	v.abortValue = v.slots[slot]
}

// RegisterForeignMethod registers fn as the (module, className, isStatic,
// signature) foreign method, to be bound onto the class's method vector
// once that class has been declared (immediately if it already has;
// otherwise the next time Interpret or BindPending runs).
func (v *VM) RegisterForeignMethod(module, className string, isStatic bool, signature string, fn ForeignMethodFn) {
	v.pending = append(v.pending, pendingForeign{module: module, class: className, isStatic: isStatic, signature: signature, fn: fn})
	v.BindPending()
}

// BindPending resolves every foreign-method registration that is still
// waiting on its class to exist, binding what it can and leaving the rest
// for the next call. Interpret calls this automatically after running;
// a host importing several modules across separate Interpret calls, or
// declaring a class partway through a REPL session, may need to call it
// again afterward.
func (v *VM) BindPending() {
	if len(v.pending) == 0 {
		return
	}
	remaining := v.pending[:0]
	for _, p := range v.pending {
		if !v.bindOne(p) {
			remaining = append(remaining, p)
		}
	}
	v.pending = remaining
}

// ResolveForeignMethod binds a foreign method obtained from
// Config.BindForeignMethod rather than an explicit RegisterForeignMethod
// call, for a host that prefers Wren's per-class callback style over
// pre-registering every signature. Like RegisterForeignMethod's deferred
// entries, it only succeeds once the owning class exists.
func (v *VM) ResolveForeignMethod(module, className string, isStatic bool, signature string) bool {
	if v.cfg.BindForeignMethod == nil {
		return false
	}
	fn := v.cfg.BindForeignMethod(module, className, isStatic, signature)
	if fn == nil {
		return false
	}
	return v.bindOne(pendingForeign{module: module, class: className, isStatic: isStatic, signature: signature, fn: fn})
}

func (v *VM) bindOne(p pendingForeign) bool {
	module, ok := v.vm.Module(p.module)
	if !ok {
		return false
	}
	value, ok := module.Variable(p.class)
	if !ok || !value.IsClass() {
		return false
	}
	cls := value.AsClass()
	if p.isStatic {
		cls = cls.Metaclass()
	}
	sym := v.vm.MethodSymbol(p.signature)
	cls.Bind(sym, vm.Method{Kind: vm.MethodForeign, Foreign: v.bridgeForeign(p.fn)})
	return true
}

// bridgeForeign adapts a ForeignMethodFn (which talks slots) into a
// vm.Foreign (which talks the raw []vm.Value window dispatchMethodCall
// hands every primitive and foreign method). If the foreign method neither
// aborts nor writes slot 0, the receiver slot is set to null after it
// returns: such a method returns null, not its own receiver.
func (v *VM) bridgeForeign(fn ForeignMethodFn) vm.Foreign {
	return func(_ *vm.VM, _ *vm.Fiber, args []vm.Value) vm.Result {
		savedSlots, savedZeroSet, savedAborted := v.slots, v.slotZeroSet, v.aborted
		v.slots = args
		v.slotZeroSet = false
		v.aborted = false

		fn(v)

		result := vm.ResultValue
		switch {
		case v.aborted:
			args[0] = v.abortValue
			result = vm.ResultError
		case !v.slotZeroSet:
			args[0] = vm.Null
		}

		v.slots, v.slotZeroSet, v.aborted = savedSlots, savedZeroSet, savedAborted
		return result
	}
}

// GetVariable writes module's top-level variable name into slot, or
// leaves slot untouched and returns false if the module or name is
// unknown.
func (v *VM) GetVariable(module, name string, slot int) bool {
	mod, ok := v.vm.Module(module)
	if !ok {
		return false
	}
	value, ok := mod.Variable(name)
	if !ok {
		return false
	}
	v.setSlot(slot, value)
	return true
}

// CallHandle refers to a method signature: the interned symbol and the
// argument count its signature's underscores spell out. MakeCallHandle
// constructs one; Call invokes it.
type CallHandle struct {
	signature string
	sym       int
	arity     int
}

// MakeCallHandle interns signature as a method symbol and records the
// argument count the signature implies, ready for repeated Call use.
func (v *VM) MakeCallHandle(signature string) *CallHandle {
	return &CallHandle{
		signature: signature,
		sym:       v.vm.MethodSymbol(signature),
		arity:     arityOf(signature),
	}
}

// arityOf counts the underscore placeholders a compiled signature string
// carries, one per argument (see pkg/parser's underscoreList): "foo" has
// none, "foo(_,_)" has two, "[_]=(_)" has two.
func arityOf(signature string) int {
	n := 0
	for _, r := range signature {
		if r == '_' {
			n++
		}
	}
	return n
}

// Call invokes handle with slot 0 as the receiver and slots 1..arity as
// arguments, the slots already populated by the host via Set/Slot calls.
// On success the return value replaces slot 0. On a runtime error, the
// slot window is left as it was and the error is returned.
func (v *VM) Call(handle *CallHandle) error {
	need := handle.arity + 1
	if len(v.slots) < need {
		return fmt.Errorf("api: call to %q needs %d slot(s), only %d set", handle.signature, need, len(v.slots))
	}
	args := append([]vm.Value(nil), v.slots[:need]...)
	result, rerr := v.vm.CallMethod(handle.sym, args)
	if rerr != nil {
		return rerr
	}
	v.setSlot(0, result)
	return nil
}

// Handle is a GC-protected reference a host can hold onto a value across
// calls, outliving the slot window that produced it.
type Handle struct {
	h *vm.Handle
}

// GetSlotHandle pins the value in slot against collection and returns a
// Handle retaining it. The host must ReleaseHandle it when done.
func (v *VM) GetSlotHandle(slot int) *Handle {
	return &Handle{h: v.vm.CreateHandle(v.slots[slot])}
}

// SetSlotHandle writes a handle's retained value into slot.
func (v *VM) SetSlotHandle(slot int, h *Handle) {
	v.setSlot(slot, h.h.Value())
}

// ReleaseHandle releases a handle, after which its value is no longer
// protected from collection.
func (v *VM) ReleaseHandle(h *Handle) {
	v.vm.ReleaseHandle(h.h)
}
