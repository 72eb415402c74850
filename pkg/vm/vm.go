package vm

import (
	"fmt"

	"github.com/lumenlang/lumen/pkg/bytecode"
	"github.com/lumenlang/lumen/pkg/symbol"
)

// ErrorType discriminates the three ways Config.Error can be invoked: a
// source file that failed to compile, a fiber that errored with no caller
// to catch it, and each frame of that fiber's stack trace (reported one
// call at a time, innermost first, after the runtime error itself).
type ErrorType int

const (
	ErrorCompile ErrorType = iota
	ErrorRuntime
	ErrorStackTrace
)

// Config collects every host-supplied callback and tuning knob NewVM
// needs. It mirrors the embedding API's configuration record: a module
// loader (resolves an imported name to source text or reports it missing),
// a write sink for System.print/writeString, an error sink for compile and
// runtime failures, and the three heap-growth knobs §4.1 names. Every
// field has a usable zero value except Compile, which the host must
// supply for LOAD_MODULE and the top-level Interpret call to do anything.
type Config struct {
	// Compile turns module source into a top-level function. It is the
	// "oracle" collaborator spec.md §1 carves out of this package's scope;
	// cmd/lumen wires it to pkg/compiler.
	Compile func(vm *VM, module *ObjModule, sourcePath, source string) (*bytecode.Function, error)

	// LoadModule resolves an imported module name to source text. The
	// bool result is false if the module cannot be found, which becomes
	// the "Could not find module '<name>'." runtime error.
	LoadModule func(name string) (string, bool)

	// Write receives System.print/writeString output. A nil Write
	// silently discards it.
	Write func(text string)

	// Error is invoked for every compile error and for an uncaught
	// runtime error's message plus one call per stack-trace frame. A nil
	// Error silently discards diagnostics.
	Error func(errType ErrorType, module string, line int, message string)

	InitialHeapSize   int
	MinHeapSize       int
	HeapGrowthPercent int

	// StressGC forces a collection on every allocation, for exercising GC
	// correctness under maximal collection pressure in tests.
	StressGC bool
}

// Handle is a GC-protected reference to a value, held by host code across
// calls into the VM. Handles form a doubly linked list (vm.handles) that
// the collector marks as a root (gc.go's markRoots) and are released
// explicitly by the embedding API rather than collected automatically.
type Handle struct {
	value Value
	prev  *Handle
	next  *Handle
}

// Value returns the value a handle protects.
func (h *Handle) Value() Value { return h.value }

// SetValue replaces the value a handle protects, keeping the same handle
// identity (pkg/api's embedding surface reuses a handle's slot this way
// when a host-held value is reassigned rather than released and
// recreated).
func (h *Handle) SetValue(v Value) { h.value = v }

// CreateHandle pins v against collection by linking a new Handle at the
// head of vm.handles, which gc.go's markRoots walks as a GC root. The
// host must call ReleaseHandle when done with it.
func (vm *VM) CreateHandle(v Value) *Handle {
	h := &Handle{value: v, next: vm.handles}
	if vm.handles != nil {
		vm.handles.prev = h
	}
	vm.handles = h
	return h
}

// ReleaseHandle unlinks h from vm.handles, after which its value is no
// longer a GC root.
func (vm *VM) ReleaseHandle(h *Handle) {
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		vm.handles = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.prev, h.next = nil, nil
}

// VM is one lumen virtual machine instance: its heap, its global method
// symbol table, its loaded modules, the fiber currently executing (nil
// between Interpret calls), the live handle list, and the builtin core
// classes every value's classOf ultimately resolves into.
type VM struct {
	config  Config
	heap    *Heap
	methods *symbol.Table
	modules *moduleRegistry

	coreModule *ObjModule
	fiber      *Fiber
	handles    *Handle

	objectClass *ObjClass
	classClass  *ObjClass
	boolClass   *ObjClass
	nullClass   *ObjClass
	numClass    *ObjClass
	stringClass *ObjClass
	listClass   *ObjClass
	mapClass    *ObjClass
	rangeClass  *ObjClass
	fnClass     *ObjClass
	fiberClass  *ObjClass
	systemClass *ObjClass
}

// NewVM constructs a VM and bootstraps its core module: the Object/Class
// metaclass wiring and the sealed builtin classes, each stocked with its
// primitive methods (primitives.go). This mirrors wren_vm.c's wrenNewVM
// initializing the core library before any user module can load.
func NewVM(config Config) *VM {
	vm := &VM{config: config, methods: symbol.New(), modules: newModuleRegistry()}
	vm.heap = newHeap(vm, config.InitialHeapSize, config.MinHeapSize, config.HeapGrowthPercent)
	vm.heap.stressGC = config.StressGC

	vm.bootstrapCore()
	return vm
}

// bootstrapCore wires the root Object/Class cycle by hand (newClass can't
// be used for either: Object has no superclass and Class is its own
// metaclass), then builds the rest of the sealed builtin classes as
// ordinary subclasses of Object, and finally registers every core
// primitive method (primitives.go).
func (vm *VM) bootstrapCore() {
	vm.coreModule = newObjModule(nil)
	vm.heap.register(vm.coreModule)
	vm.modules.put("", vm.coreModule)

	// Object has no superclass. Class is its own metaclass. Every other
	// metaclass (including Object's) inherits from Class.
	object := vm.newRawClass("Object", 0)
	class := vm.newRawClass("Class", 0)
	objectMeta := vm.newRawClass("Object metaclass", 0)
	class.ObjHeader.class = class
	object.ObjHeader.class = objectMeta
	objectMeta.Superclass = class
	objectMeta.ObjHeader.class = class
	class.Superclass = object
	class.IsSealed = true

	vm.objectClass = object
	vm.classClass = class

	// Object's and Class's own primitives must be bound before any other
	// class or metaclass is created: newClass (below) inherits a class's
	// method vector by copying it at creation time, not by walking the
	// superclass chain at dispatch time, so a later Bind on Object or
	// Class would never reach a metaclass that copied it too early.
	vm.registerObjectPrimitives()
	vm.registerClassPrimitives()
	objectMeta.Methods = append(objectMeta.Methods, class.Methods...)

	vm.bindInstantiator(object)
	vm.bindInstantiator(class)

	vm.coreModule.DefineVariable("Object", ObjValue(object))
	vm.coreModule.DefineVariable("Class", ObjValue(class))

	defineSealed := func(name string) *ObjClass {
		c, err := vm.newClass(name, vm.objectClass, 0)
		if err != nil {
			panic(fmt.Errorf("vm: bootstrapping %s: %w", name, err))
		}
		c.IsSealed = true
		vm.coreModule.DefineVariable(name, ObjValue(c))
		return c
	}

	vm.boolClass = defineSealed("Bool")
	vm.nullClass = defineSealed("Null")
	vm.numClass = defineSealed("Num")
	vm.stringClass = defineSealed("String")
	vm.rangeClass = defineSealed("Range")
	vm.fnClass = defineSealed("Fn")
	vm.fiberClass = defineSealed("Fiber")
	vm.listClass = defineSealed("List")
	vm.mapClass = defineSealed("Map")

	sys, err := vm.newClass("System", vm.objectClass, 0)
	if err != nil {
		panic(err)
	}
	vm.systemClass = sys
	vm.coreModule.DefineVariable("System", ObjValue(sys))

	vm.registerPrimitives()
}

// methodSymbol interns sig in the global method-name table, used both by
// the compiler (via pkg/api, for CALL_n/METHOD_INSTANCE encoding) and by
// registerPrimitives to bind builtin methods under the same symbols user
// code's call sites reference.
func (vm *VM) methodSymbol(sig string) int {
	return vm.methods.Ensure(sig)
}

// MethodSymbol is methodSymbol exported for pkg/compiler, which must intern
// call-site signatures into the exact same symbol table the primitives and
// the interpreter loop dispatch through.
func (vm *VM) MethodSymbol(sig string) int {
	return vm.methodSymbol(sig)
}

// bindPrimitive interns sig and binds fn on class under it.
func (vm *VM) bindPrimitive(class *ObjClass, sig string, fn Primitive) {
	sym := vm.methodSymbol(sig)
	class.Bind(sym, Method{Kind: MethodPrimitive, Primitive: fn})
}

// bindPrimitiveStatic binds fn as a static (metaclass-side) method.
func (vm *VM) bindPrimitiveStatic(class *ObjClass, sig string, fn Primitive) {
	vm.bindPrimitive(class.ObjHeader.class, sig, fn)
}
