package vm

// Heap is lumen's memory manager: a single allocation list threading every
// live object together, a running bytesAllocated counter, and the
// mark-sweep collector that reclaims unreachable objects. Go already
// garbage-collects the *ObjHeader/*ObjString/etc. structs themselves, but
// spec.md's heap-growth policy, temporary-root stack and reachability
// invariants are VM-observable behavior (the `nextGC` threshold, the
// object-size accounting `bytesAllocated` exposes to embedders through
// Heap.BytesAllocated and Heap.NextGC) that a VM built on a host GC does not get for free — so
// this type reimplements them as an explicit bookkeeping layer on top of
// Go's allocator, exactly as spec.md §4.1 describes, rather than silently
// delegating to runtime.GC().
type Heap struct {
	first          Obj
	bytesAllocated int
	nextGC         int
	minNextGC      int
	heapScalePct   int // 100 + growth percent, e.g. 150 for 50% growth
	stressGC       bool
	nextID         uint64

	tempRoots []Obj

	vm *VM // back-reference for root marking
}

// Heap configuration defaults (spec.md §4.1).
const (
	DefaultInitialHeapSize = 10 * 1024 * 1024
	DefaultMinHeapSize     = 1 * 1024 * 1024
	DefaultHeapGrowthPct   = 50
	maxTempRoots           = 8
)

func newHeap(vm *VM, initialHeapSize, minHeapSize, heapGrowthPercent int) *Heap {
	if initialHeapSize <= 0 {
		initialHeapSize = DefaultInitialHeapSize
	}
	if minHeapSize <= 0 {
		minHeapSize = DefaultMinHeapSize
	}
	return &Heap{
		vm:           vm,
		nextGC:       initialHeapSize,
		minNextGC:    minHeapSize,
		heapScalePct: 100 + heapGrowthPercent,
	}
}

// register links obj into the allocation list, assigns its identity id,
// and runs a collection first if the heap has grown past nextGC (or if
// stress mode is on). It is the single gate every object constructor in
// this package passes through — the Go equivalent of wren_vm.c's
// reallocate() used as an allocation path.
func (h *Heap) register(obj Obj) Obj {
	if h.stressGC || h.bytesAllocated > h.nextGC {
		h.collect()
	}
	h.nextID++
	obj.Header().id = h.nextID
	obj.Header().next = h.first
	h.first = obj
	h.bytesAllocated += obj.approxSize()
	return obj
}

// PushRoot pins obj against collection until a matching PopRoot. Callers
// use this between allocating a new object and storing it somewhere
// already reachable (a list element, a field, a stack slot) so a
// collection triggered by a subsequent allocation cannot free it first.
func (h *Heap) PushRoot(obj Obj) {
	if len(h.tempRoots) >= maxTempRoots {
		panic("vm: too many temporary GC roots")
	}
	h.tempRoots = append(h.tempRoots, obj)
}

// PopRoot releases the most recently pushed temporary root.
func (h *Heap) PopRoot() {
	h.tempRoots = h.tempRoots[:len(h.tempRoots)-1]
}

// collect runs one mark-sweep cycle: reset the byte counter, mark every
// root transitively (re-summing bytesAllocated as it goes), sweep unmarked
// objects from the allocation list, and recompute nextGC from the
// survivors.
func (h *Heap) collect() {
	h.bytesAllocated = 0
	h.markRoots()
	h.sweep()
	next := h.bytesAllocated * h.heapScalePct / 100
	if next < h.minNextGC {
		next = h.minNextGC
	}
	h.nextGC = next
}

func (h *Heap) markRoots() {
	for _, m := range h.vm.modules.all() {
		h.mark(ObjValue(m))
	}
	for _, r := range h.tempRoots {
		h.mark(ObjValue(r))
	}
	if h.vm.fiber != nil {
		h.mark(ObjValue(h.vm.fiber))
	}
	for handle := h.vm.handles; handle != nil; handle = handle.next {
		h.mark(handle.value)
	}
}

// mark marks v's object (if any) and, the first time it is marked,
// recurses into its outgoing references and adds its size to
// bytesAllocated.
func (h *Heap) mark(v Value) {
	if !v.IsObj() || v.obj == nil {
		return
	}
	obj := v.obj
	hdr := obj.Header()
	if hdr.marked {
		return
	}
	hdr.marked = true
	h.bytesAllocated += obj.approxSize()
	if hdr.class != nil {
		h.mark(ObjValue(hdr.class))
	}
	obj.traceRefs(h.mark)
}

// sweep walks the allocation list, unlinking and dropping any object whose
// mark bit is clear, and clears the bit on survivors so the next
// collection starts clean.
func (h *Heap) sweep() {
	var head Obj
	var tail Obj
	for obj := h.first; obj != nil; {
		next := obj.Header().next
		if obj.Header().marked {
			obj.Header().marked = false
			obj.Header().next = nil
			if head == nil {
				head = obj
			} else {
				tail.Header().next = obj
			}
			tail = obj
		}
		// Unmarked objects are simply dropped; Go's own GC reclaims their
		// memory once nothing else references them.
		obj = next
	}
	h.first = head
}

// BytesAllocated reports the heap manager's accounting: the live objects
// found by the last collection plus everything registered since, used only
// to schedule the next collection.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// NextGC reports the byte threshold that triggers the next collection.
func (h *Heap) NextGC() int { return h.nextGC }
