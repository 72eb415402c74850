package vm

import "github.com/lumenlang/lumen/pkg/symbol"

// ObjModule is a loaded module: its name (empty for the core module, which
// is never named from script), a symbol table mapping variable names to
// dense slot indices, and the parallel value vector those slots index
// into. An Undefined entry marks a variable that was referenced before it
// was defined — an implicit forward declaration that must resolve to a
// real value before the module finishes running.
type ObjModule struct {
	ObjHeader

	Name      *ObjString // nil for the core module
	Variables *symbol.Table
	Values    []Value
}

func newObjModule(name *ObjString) *ObjModule {
	return &ObjModule{Name: name, Variables: symbol.New()}
}

func (m *ObjModule) traceRefs(mark func(Value)) {
	if m.Name != nil {
		mark(ObjValue(m.Name))
	}
	for _, v := range m.Values {
		mark(v)
	}
}
func (m *ObjModule) approxSize() int { return 48 + len(m.Values)*16 }

func (m *ObjModule) displayName() string {
	if m.Name == nil {
		return ""
	}
	return m.Name.Value
}

// DisplayName is displayName exported for pkg/compiler, which stamps a
// Function's ModuleName from it.
func (m *ObjModule) DisplayName() string {
	return m.displayName()
}

// DeclareVariable appends an undefined slot for name if it is new,
// recording an implicit forward reference used when a name is mentioned
// before its definition (e.g. a function that calls another defined later
// in the same module). Returns the variable's slot.
func (m *ObjModule) DeclareVariable(name string) int {
	if existing := m.Variables.Find(name); existing != symbol.NotFound {
		return existing
	}
	slot := m.Variables.Ensure(name)
	m.Values = append(m.Values, Undefined)
	return slot
}

// DefineResult reports what DefineVariable did: a brand-new binding, a
// promotion of a prior forward declaration, or a failure because the name
// is already defined.
type DefineResult int

const (
	DefineNew DefineResult = iota
	DefinePromoted
	DefineAlreadyDefined
)

// DefineVariable binds name to value: if name is new it is appended; if it
// was only forward-declared (its slot holds Undefined) the declaration is
// promoted to this definition; if it already has a real value, the
// definition is rejected.
func (m *ObjModule) DefineVariable(name string, value Value) (int, DefineResult) {
	if existing := m.Variables.Find(name); existing != symbol.NotFound {
		if m.Values[existing].IsUndefined() {
			m.Values[existing] = value
			return existing, DefinePromoted
		}
		return existing, DefineAlreadyDefined
	}
	slot := m.Variables.Ensure(name)
	m.Values = append(m.Values, value)
	return slot, DefineNew
}

// Variable looks up name, returning (value, true) if it is bound to
// anything other than the undefined placeholder.
func (m *ObjModule) Variable(name string) (Value, bool) {
	slot := m.Variables.Find(name)
	if slot == symbol.NotFound {
		return Null, false
	}
	v := m.Values[slot]
	if v.IsUndefined() {
		return Null, false
	}
	return v, true
}

// moduleRegistry maps module name to loaded ObjModule. The core module
// (registered under the empty name) is copied into every new module at
// load time so every module implicitly sees core's top-level names.
type moduleRegistry struct {
	byName map[string]*ObjModule
	order  []*ObjModule
}

func newModuleRegistry() *moduleRegistry {
	return &moduleRegistry{byName: make(map[string]*ObjModule)}
}

func (r *moduleRegistry) get(name string) (*ObjModule, bool) {
	m, ok := r.byName[name]
	return m, ok
}

func (r *moduleRegistry) put(name string, m *ObjModule) {
	r.byName[name] = m
	r.order = append(r.order, m)
}

func (r *moduleRegistry) all() []*ObjModule { return r.order }
