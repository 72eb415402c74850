package vm

// This file collects the small constructor helpers that allocate a heap
// object, stamp its class pointer, and pass it through the memory
// manager's register gate (gc.go) in one step. Every object in this
// package is born through one of these, never through a bare struct
// literal outside class.go's bootstrap path (which has to create the
// String/Class classes before it has a String/Class class to stamp on
// their own names).

func (vm *VM) newString(s string) *ObjString {
	str := newObjString(s)
	str.ObjHeader.class = vm.stringClass
	vm.heap.register(str)
	return str
}

// newStringNoRoot is used only while bootstrapping the core classes,
// before vm.stringClass exists yet to stamp onto a class's Name.
func (vm *VM) newStringNoRoot(s string) *ObjString {
	str := newObjString(s)
	vm.heap.register(str)
	return str
}

func (vm *VM) newList() *ObjList {
	l := newObjList()
	l.ObjHeader.class = vm.listClass
	vm.heap.register(l)
	return l
}

func (vm *VM) newMap() *ObjMap {
	m := newObjMap()
	m.ObjHeader.class = vm.mapClass
	vm.heap.register(m)
	return m
}

func (vm *VM) newRange(from, to float64, inclusive bool) *ObjRange {
	r := &ObjRange{From: from, To: to, IsInclusive: inclusive}
	r.ObjHeader.class = vm.rangeClass
	vm.heap.register(r)
	return r
}

func (vm *VM) newInstance(class *ObjClass) *ObjInstance {
	inst := &ObjInstance{Fields: make([]Value, class.NumFields)}
	for i := range inst.Fields {
		inst.Fields[i] = Null
	}
	inst.ObjHeader.class = class
	vm.heap.register(inst)
	return inst
}

func (vm *VM) newModule(name *ObjString) *ObjModule {
	m := newObjModule(name)
	vm.heap.register(m)
	return m
}

func (vm *VM) newFiber(root Obj) *Fiber {
	f := newFiber(root)
	f.ObjHeader.class = vm.fiberClass
	vm.heap.register(f)
	return f
}

func (vm *VM) newClosure(fn *ObjFn) *ObjClosure {
	c := &ObjClosure{Fn: fn, Upvalues: make([]*Upvalue, len(fn.Proto.Upvalues))}
	c.ObjHeader.class = vm.fnClass
	vm.heap.register(c)
	return c
}
