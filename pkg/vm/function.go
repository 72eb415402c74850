package vm

import "github.com/lumenlang/lumen/pkg/bytecode"

// loadFunction wraps a compiled bytecode.Function prototype as a live
// ObjFn attached to module, precomputing a Value for every entry of the
// proto's constant pool (so CONSTANT never has to re-allocate a string or
// walk a nested prototype's own constants at run time). Nested function
// constants are loaded recursively and become Values wrapping their own
// ObjFn, which CLOSURE then wraps in an ObjClosure at the point it runs.
func (vm *VM) loadFunction(proto *bytecode.Function, module *ObjModule) *ObjFn {
	fn := &ObjFn{Proto: proto, Module: module}
	fn.ObjHeader.class = vm.fnClass
	vm.heap.register(fn)
	vm.heap.PushRoot(fn)
	defer vm.heap.PopRoot()

	consts := make([]Value, len(proto.Constants))
	for i, raw := range proto.Constants {
		switch c := raw.(type) {
		case float64:
			consts[i] = NumberValue(c)
		case string:
			consts[i] = ObjValue(vm.newString(c))
		case bool:
			consts[i] = BoolValue(c)
		case *bytecode.Function:
			consts[i] = ObjValue(vm.loadFunction(c, module))
		default:
			consts[i] = Null
		}
	}
	fn.constants = consts
	return fn
}
