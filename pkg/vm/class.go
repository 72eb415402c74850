package vm

import "fmt"

// MethodKind discriminates what a class's method-vector slot holds.
type MethodKind byte

const (
	// MethodNone marks an empty slot: the class does not implement this
	// symbol.
	MethodNone MethodKind = iota
	// MethodPrimitive is a built-in method implemented by a Go function
	// called directly by the interpreter loop, with no new call frame.
	MethodPrimitive
	// MethodForeign is a host-registered native method (pkg/api).
	MethodForeign
	// MethodBlock is a user-defined method: an ObjFn or ObjClosure pushed
	// as a new call frame.
	MethodBlock
)

// Primitive is a built-in method implementation. args holds the receiver
// in args[0] followed by the call's arguments; a primitive reports its
// outcome (and writes its result into args[0]) via the returned Result.
type Primitive func(vm *VM, fiber *Fiber, args []Value) Result

// Foreign is a host-registered native method, invoked the same way as a
// Primitive but through the embedding API rather than built into the VM.
type Foreign func(vm *VM, fiber *Fiber, args []Value) Result

// Method is one entry in a class's dense method vector.
type Method struct {
	Kind      MethodKind
	Primitive Primitive
	Foreign   Foreign
	Block     Value // an ObjFn or ObjClosure, wrapped as a Value
}

// ObjClass is a class: a name, an optional superclass, the total number of
// instance fields (including inherited ones), and a dense vector of
// methods indexed by global method-symbol ID. Every class's Header.class
// points at its metaclass, itself an *ObjClass whose own Header.class is
// the single root Class class (or, for Class itself, itself).
type ObjClass struct {
	ObjHeader
	Name       *ObjString
	Superclass *ObjClass
	NumFields  int
	Methods    []Method
	// IsSealed forbids `is` inheriting from this class: its primitives
	// assume instances have this class's own concrete layout (String,
	// List, Map, Range, Fn, Fiber and Class itself).
	IsSealed bool
}

func (c *ObjClass) traceRefs(mark func(Value)) {
	if c.Name != nil {
		mark(ObjValue(c.Name))
	}
	if c.Superclass != nil {
		mark(ObjValue(c.Superclass))
	}
	for _, m := range c.Methods {
		if m.Kind == MethodBlock {
			mark(m.Block)
		}
	}
}
func (c *ObjClass) approxSize() int { return 64 + len(c.Methods)*32 }

// String implements fmt.Stringer so classes print their script name in Go
// error messages and test failures.
func (c *ObjClass) String() string {
	if c.Name == nil {
		return "<class>"
	}
	return c.Name.Value
}

// Metaclass returns c's own class: the metaclass holding its static
// methods. Exported for pkg/api, which needs it to bind a foreign method
// registered with isStatic true onto the right method vector.
func (c *ObjClass) Metaclass() *ObjClass {
	return c.ObjHeader.class
}

// MethodAt returns the method bound to sym, or (Method{}, false) if sym is
// out of range or the slot is empty — spec.md's dispatch rule: index i
// means "no such method" iff the slot is MethodNone or i is beyond the
// vector length.
func (c *ObjClass) MethodAt(sym int) (Method, bool) {
	if sym < 0 || sym >= len(c.Methods) {
		return Method{}, false
	}
	m := c.Methods[sym]
	if m.Kind == MethodNone {
		return Method{}, false
	}
	return m, true
}

// Bind grows the method vector with empty slots up to sym and writes m
// into it, per spec.md's binding algorithm.
func (c *ObjClass) Bind(sym int, m Method) {
	for len(c.Methods) <= sym {
		c.Methods = append(c.Methods, Method{Kind: MethodNone})
	}
	c.Methods[sym] = m
}

// newRawClass allocates a class with no methods and no superclass wiring;
// callers (newClass, bootstrap) finish initializing it.
func (vm *VM) newRawClass(name string, numFields int) *ObjClass {
	cls := &ObjClass{Name: vm.newStringNoRoot(name), NumFields: numFields}
	vm.heap.register(cls)
	return cls
}

// newClass implements `class Derived is Base { numFields }`: Derived
// inherits Base's method vector (so every ancestor method is directly
// visible in Derived's own vector) and gets a freshly created metaclass
// that inherits from the root Class class — never from Base's metaclass —
// so static methods never form a parallel hierarchy to instance methods.
func (vm *VM) newClass(name string, super *ObjClass, numFields int) (*ObjClass, error) {
	if super == nil {
		return nil, fmt.Errorf("Must inherit from a class.")
	}
	if super.IsSealed {
		return nil, fmt.Errorf("%s cannot inherit from %s.", name, super.Name.Value)
	}

	cls := vm.newRawClass(name, super.NumFields+numFields)
	cls.Superclass = super
	cls.Methods = append(cls.Methods, super.Methods...)

	metaName := name + " metaclass"
	meta := vm.newRawClass(metaName, 0)
	meta.Superclass = vm.classClass
	meta.Methods = append(meta.Methods, vm.classClass.Methods...)
	meta.ObjHeader.class = vm.classClass

	cls.ObjHeader.class = meta
	vm.bindInstantiator(cls)
	return cls, nil
}

// bindInstantiator binds the metaclass-side "<instantiate>" allocator
// every class gets automatically: the primitive a `new ClassName`
// expression's compiled CALL targets (spec.md §6's method-signature table
// calls this signature out explicitly). It just allocates a bare instance
// with every field null; any user-defined "init(...)" runs as an ordinary
// method call the compiler emits right after.
func (vm *VM) bindInstantiator(cls *ObjClass) {
	target := cls
	sym := vm.methodSymbol("<instantiate>")
	cls.ObjHeader.class.Bind(sym, Method{
		Kind: MethodPrimitive,
		Primitive: func(vm *VM, fiber *Fiber, args []Value) Result {
			args[0] = ObjValue(vm.newInstance(target))
			return ResultValue
		},
	})
}

// classOf returns v's class: the VM's builtin classes for null, booleans
// and numbers, and the object header's own class pointer for everything
// else (including a class value itself, whose Header.class is its
// metaclass).
func (vm *VM) classOf(v Value) *ObjClass {
	switch v.typ {
	case ValueNull:
		return vm.nullClass
	case ValueBool:
		return vm.boolClass
	case ValueNumber:
		return vm.numClass
	case ValueObj:
		return v.obj.Header().class
	default:
		return nil
	}
}

// isSubclassOf walks c's superclass chain looking for ancestor, including
// c itself (used by IS and by `is` method-signature matching when a
// script does `class Foo is Foo {}` — which the compiler itself rejects,
// but the runtime check is independent).
func isSubclassOf(c, ancestor *ObjClass) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur == ancestor {
			return true
		}
	}
	return false
}
