// Package symbol implements the dense string-interning tables the lumen
// virtual machine uses for method and module-variable names.
//
// A symbol table is an ordered sequence of names. Interning a name with
// Ensure returns a small nonnegative integer, the symbol, that is stable
// for the lifetime of the table. Every class's method vector and every
// module's variable-value vector is indexed by a symbol returned from one
// of these tables, so dispatch and variable access both reduce to a slice
// index rather than a string comparison.
//
// Two tables exist per VM: a single method-name table shared by every
// class (pkg/vm's VM.methods), and one variable-name table per loaded
// module (see pkg/vm's ObjModule type).
package symbol

// NotFound is returned by Find when name has not been interned.
const NotFound = -1

// Table interns names to dense integer IDs. The zero value is an empty,
// ready-to-use table.
type Table struct {
	names []string
	index map[string]int
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// Ensure interns name, returning its existing symbol if already present or
// appending it and returning the new symbol otherwise.
func (t *Table) Ensure(name string) int {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if sym, ok := t.index[name]; ok {
		return sym
	}
	sym := len(t.names)
	t.names = append(t.names, name)
	t.index[name] = sym
	return sym
}

// Find returns the symbol for name, or NotFound if name was never interned.
func (t *Table) Find(name string) int {
	if t.index == nil {
		return NotFound
	}
	if sym, ok := t.index[name]; ok {
		return sym
	}
	return NotFound
}

// Name returns the interned string for sym. It panics if sym is out of
// range; callers only ever pass symbols obtained from Ensure or Find.
func (t *Table) Name(sym int) string {
	return t.names[sym]
}

// Count returns the number of interned names.
func (t *Table) Count() int {
	return len(t.names)
}
