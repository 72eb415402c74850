package vm

import (
	"math"

	"github.com/lumenlang/lumen/pkg/bytecode"
)

// Obj is implemented by every heap object kind: ObjString, ObjList, ObjMap,
// ObjRange, ObjClass, ObjFn, ObjClosure, ObjInstance, Fiber, ObjModule and
// Upvalue. Header returns the embedded bookkeeping the collector needs:
// the mark bit, the object's class (for classOf), and the next-pointer
// threading it into the VM's single allocation list.
type Obj interface {
	Header() *ObjHeader
	// traceRefs calls mark on every Value/Obj this object directly
	// references, so the collector can walk the live set transitively.
	traceRefs(mark func(Value))
	// approxSize estimates the object's heap footprint in bytes for the
	// bytesAllocated/nextGC heap-growth heuristic (§4.1).
	approxSize() int
}

// ObjHeader is embedded in every concrete object kind. It carries the GC
// mark bit, a pointer to the object's class (classOf uses it directly for
// anything but the four primitive Value variants), and next, which threads
// every live object into the VM's single allocation list so sweep can walk
// it without a separate registry.
type ObjHeader struct {
	marked bool
	class  *ObjClass
	next   Obj
	// id is assigned once at allocation time (see Heap.register) and used
	// only as a stable identity key for hashing non-value-equal objects
	// (classes, fibers, instances, ...) as Map keys.
	id uint64
}

func (h *ObjHeader) Header() *ObjHeader { return h }

// ObjString is an immutable byte sequence. Iteration protocol: a string
// iterator value is a byte offset; Next advances to the following UTF-8
// leading byte (skipping continuation bytes 0x80..0xBF), and iteratorValue
// at that offset is the single Unicode codepoint starting there.
type ObjString struct {
	ObjHeader
	Value string
}

func newObjString(s string) *ObjString {
	return &ObjString{Value: s}
}

func (s *ObjString) traceRefs(func(Value)) {}
func (s *ObjString) approxSize() int       { return 24 + len(s.Value) }

// nextCodepointIndex returns the byte index of the UTF-8 leading byte
// following index i in s, or -1 once iteration is exhausted.
func nextCodepointIndex(s string, i int) int {
	i++
	for i < len(s) && isUTF8ContinuationByte(s[i]) {
		i++
	}
	if i >= len(s) {
		return -1
	}
	return i
}

func isUTF8ContinuationByte(b byte) bool { return b&0xC0 == 0x80 }

// ObjList is a dense, growable sequence. Capacity grows geometrically
// (factor 2, minimum 16) on append past capacity, and shrinks by half once
// Count drops below Capacity/2 after a removal, matching spec.md's List
// invariants exactly.
type ObjList struct {
	ObjHeader
	Elements []Value
}

const (
	listMinCapacity  = 16
	listGrowthFactor = 2
)

func newObjList() *ObjList {
	return &ObjList{}
}

func (l *ObjList) traceRefs(mark func(Value)) {
	for _, v := range l.Elements {
		mark(v)
	}
}
func (l *ObjList) approxSize() int { return 24 + cap(l.Elements)*16 }

// Append adds v to the end of the list, growing the backing array
// geometrically when Count would exceed its capacity.
func (l *ObjList) Append(v Value) {
	if len(l.Elements) == cap(l.Elements) {
		newCap := cap(l.Elements) * listGrowthFactor
		if newCap < listMinCapacity {
			newCap = listMinCapacity
		}
		grown := make([]Value, len(l.Elements), newCap)
		copy(grown, l.Elements)
		l.Elements = grown
	}
	l.Elements = append(l.Elements, v)
}

// Insert inserts v at index, shifting later elements up by one.
func (l *ObjList) Insert(index int, v Value) {
	l.Elements = append(l.Elements, Null)
	copy(l.Elements[index+1:], l.Elements[index:])
	l.Elements[index] = v
}

// RemoveAt removes and returns the element at index, shrinking the backing
// array by half once Count drops below Capacity/2.
func (l *ObjList) RemoveAt(index int) Value {
	removed := l.Elements[index]
	copy(l.Elements[index:], l.Elements[index+1:])
	l.Elements = l.Elements[:len(l.Elements)-1]
	if cap(l.Elements) > listMinCapacity && len(l.Elements) < cap(l.Elements)/2 {
		shrunk := make([]Value, len(l.Elements), cap(l.Elements)/2)
		copy(shrunk, l.Elements)
		l.Elements = shrunk
	}
	return removed
}

// ObjRange is an immutable numeric range with optional inclusivity.
// Iterating a range steps ±1 from From toward To, stopping according to
// IsInclusive.
type ObjRange struct {
	ObjHeader
	From, To    float64
	IsInclusive bool
}

func (r *ObjRange) traceRefs(func(Value)) {}
func (r *ObjRange) approxSize() int       { return 32 }

// mapEntry is one bucket of an ObjMap's open-addressed table. An entry
// whose Key is the `undefined` sentinel is an empty bucket; Deleted marks
// a tombstone left by Remove so probing past it still finds later
// collisions.
type mapEntry struct {
	Key     Value
	Value   Value
	Deleted bool
}

// ObjMap is an open-addressed hash table keyed by value types only (null,
// bool, number, string, range, class). Iteration exposes the raw bucket
// index so scripts can resume iteration across calls, per spec.md's Map
// invariant.
type ObjMap struct {
	ObjHeader
	entries []mapEntry
	count   int // live (non-deleted, non-empty) entries
}

const mapMinCapacity = 8

func newObjMap() *ObjMap {
	return &ObjMap{entries: emptyMapEntries(mapMinCapacity)}
}

// emptyMapEntries returns n buckets whose keys hold the Undefined
// empty-bucket marker (a zero Value is null, which is a valid key).
func emptyMapEntries(n int) []mapEntry {
	entries := make([]mapEntry, n)
	for i := range entries {
		entries[i].Key = Undefined
	}
	return entries
}

func (m *ObjMap) traceRefs(mark func(Value)) {
	for _, e := range m.entries {
		if !e.Key.IsUndefined() {
			mark(e.Key)
			mark(e.Value)
		}
	}
}
func (m *ObjMap) approxSize() int { return 24 + len(m.entries)*48 }

func (m *ObjMap) Count() int { return m.count }

func hashValue(v Value) uint64 {
	switch v.typ {
	case ValueNull:
		return 1
	case ValueBool:
		if v.b {
			return 2
		}
		return 3
	case ValueNumber:
		return hashFloat(v.num)
	case ValueObj:
		switch o := v.obj.(type) {
		case *ObjString:
			return hashBytes(o.Value)
		case *ObjRange:
			return hashFloat(o.From) ^ hashFloat(o.To)
		default:
			return o.Header().id * 0x9E3779B97F4A7C15
		}
	default:
		return 0
	}
}

func hashFloat(f float64) uint64 {
	bits := math.Float64bits(f)
	bits ^= bits >> 33
	bits *= 0xff51afd7ed558ccd
	bits ^= bits >> 33
	return bits
}

func hashBytes(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// find locates key's bucket: a live match, a reusable tombstone/empty slot
// for insertion, or -1 if the table is full without a match (callers grow
// first so this should not happen).
func (m *ObjMap) find(key Value) int {
	mask := uint64(len(m.entries) - 1)
	idx := hashValue(key) & mask
	firstTombstone := -1
	for i := 0; i < len(m.entries); i++ {
		e := &m.entries[int(idx)]
		if e.Key.IsUndefined() {
			if e.Deleted {
				if firstTombstone == -1 {
					firstTombstone = int(idx)
				}
			} else {
				if firstTombstone != -1 {
					return firstTombstone
				}
				return int(idx)
			}
		} else if Equal(e.Key, key) {
			return int(idx)
		}
		idx = (idx + 1) & mask
	}
	return firstTombstone
}

// Get returns the value stored for key and true, or (Undefined, false) if
// key is absent.
func (m *ObjMap) Get(key Value) (Value, bool) {
	idx := m.find(key)
	if idx < 0 {
		return Undefined, false
	}
	e := &m.entries[idx]
	if e.Key.IsUndefined() {
		return Undefined, false
	}
	return e.Value, true
}

// Set stores value under key, growing the table first if it is more than
// 3/4 full.
func (m *ObjMap) Set(key, value Value) {
	if (m.count+1)*4 >= len(m.entries)*3 {
		m.grow()
	}
	idx := m.find(key)
	e := &m.entries[idx]
	if e.Key.IsUndefined() {
		m.count++
	}
	e.Key, e.Value, e.Deleted = key, value, false
}

// Remove deletes key's entry if present, returning its value and true.
func (m *ObjMap) Remove(key Value) (Value, bool) {
	idx := m.find(key)
	if idx < 0 {
		return Undefined, false
	}
	e := &m.entries[idx]
	if e.Key.IsUndefined() {
		return Undefined, false
	}
	v := e.Value
	e.Key, e.Value, e.Deleted = Undefined, Null, true
	m.count--
	return v, true
}

func (m *ObjMap) grow() {
	old := m.entries
	newCap := len(old) * 2
	if newCap < mapMinCapacity {
		newCap = mapMinCapacity
	}
	m.entries = emptyMapEntries(newCap)
	m.count = 0
	for _, e := range old {
		if !e.Key.IsUndefined() && !e.Deleted {
			m.Set(e.Key, e.Value)
		}
	}
}

// Iterate returns the next live bucket index at or after startExclusive+1
// (pass -1 to start), or -1 once exhausted. Buckets expose their raw index
// so a script's iterator variable can resume the scan.
func (m *ObjMap) Iterate(startExclusive int) int {
	for i := startExclusive + 1; i < len(m.entries); i++ {
		if !m.entries[i].Key.IsUndefined() && !m.entries[i].Deleted {
			return i
		}
	}
	return -1
}

func (m *ObjMap) EntryAt(index int) (Value, Value) {
	e := m.entries[index]
	return e.Key, e.Value
}

// ObjFn is the code half of a function: an immutable compiled prototype.
// It pairs with a live upvalue array only once wrapped in an ObjClosure.
type ObjFn struct {
	ObjHeader
	Proto     *bytecode.Function
	Module    *ObjModule
	constants []Value // precomputed by loadFunction from Proto.Constants
}

func (f *ObjFn) traceRefs(mark func(Value)) {
	if f.Module != nil {
		mark(ObjValue(f.Module))
	}
	for _, c := range f.constants {
		mark(c)
	}
}
func (f *ObjFn) approxSize() int { return 48 + len(f.Proto.Code) }

// ObjClosure pairs an ObjFn with the live Upvalue pointers captured at the
// CLOSURE instruction that created it.
type ObjClosure struct {
	ObjHeader
	Fn       *ObjFn
	Upvalues []*Upvalue
}

func (c *ObjClosure) traceRefs(mark func(Value)) {
	mark(ObjValue(c.Fn))
	for _, u := range c.Upvalues {
		mark(ObjValue(u))
	}
}
func (c *ObjClosure) approxSize() int { return 24 + len(c.Upvalues)*8 }

// ObjInstance is a class instance: a class pointer (held in ObjHeader) plus
// an inline field array sized to the class's total field count (including
// inherited fields), each initialized to null.
type ObjInstance struct {
	ObjHeader
	Fields []Value
}

func (i *ObjInstance) traceRefs(mark func(Value)) {
	for _, f := range i.Fields {
		mark(f)
	}
}
func (i *ObjInstance) approxSize() int { return 24 + len(i.Fields)*16 }
