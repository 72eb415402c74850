package vm

// Upvalue is the storage cell a closure captures over an enclosing local.
// While the local is still live on its fiber's stack, the upvalue is
// *open*: Fiber and StackIndex name the slot it aliases. Once that slot
// would go out of scope (CLOSE_UPVALUE, or a RETURN past it), the upvalue
// is *closed*: it copies the value into Closed and stops referencing the
// fiber's stack.
//
// spec.md models an open upvalue as a raw pointer into a fiber's stack
// array; this implementation uses (fiber, index) instead, which spec.md's
// design notes call out explicitly as the memory-safe substitute — it
// keeps working if Fiber.Stack ever reallocates, with no pointer-fixup
// pass required.
type Upvalue struct {
	ObjHeader

	fiber      *Fiber
	stackIndex int
	closed     Value
	isClosed   bool

	// next threads this upvalue into its owning fiber's open-upvalue
	// list, kept sorted by descending stackIndex so CLOSE_UPVALUE and
	// RETURN can find every upvalue at or above a given slot by walking a
	// prefix of the list.
	next *Upvalue
}

func (u *Upvalue) traceRefs(mark func(Value)) {
	if u.isClosed {
		mark(u.closed)
	} else if u.fiber != nil {
		mark(u.fiber.Stack[u.stackIndex])
	}
}
func (u *Upvalue) approxSize() int { return 48 }

// Get returns the upvalue's current value, whether open or closed.
func (u *Upvalue) Get() Value {
	if u.isClosed {
		return u.closed
	}
	return u.fiber.Stack[u.stackIndex]
}

// Set stores v into the upvalue's current storage, whether open or
// closed.
func (u *Upvalue) Set(v Value) {
	if u.isClosed {
		u.closed = v
	} else {
		u.fiber.Stack[u.stackIndex] = v
	}
}

// close copies the aliased stack slot into Closed and severs the link to
// the fiber's stack. Called when the local it captures is about to leave
// scope.
func (u *Upvalue) close() {
	u.closed = u.fiber.Stack[u.stackIndex]
	u.isClosed = true
	u.fiber = nil
}

// captureUpvalue finds or creates the open upvalue for fiber's stack slot
// at index, inserting a new one in the fiber's descending-sorted open list
// if none exists yet. Reusing an existing open upvalue for the same slot
// is required: two closures capturing the same local must observe each
// other's writes to it.
func (vm *VM) captureUpvalue(fiber *Fiber, index int) *Upvalue {
	var prev *Upvalue
	cur := fiber.OpenUpvalues
	for cur != nil && cur.stackIndex > index {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.stackIndex == index {
		return cur
	}

	created := &Upvalue{fiber: fiber, stackIndex: index}
	vm.heap.register(created)
	created.next = cur
	if prev == nil {
		fiber.OpenUpvalues = created
	} else {
		prev.next = created
	}
	return created
}

// closeUpvaluesFrom closes every open upvalue whose stack index is >= the
// given slot and unlinks them from the fiber's open list, used both by the
// explicit CLOSE_UPVALUE instruction and by RETURN when a frame exits.
func closeUpvaluesFrom(fiber *Fiber, fromIndex int) {
	for fiber.OpenUpvalues != nil && fiber.OpenUpvalues.stackIndex >= fromIndex {
		u := fiber.OpenUpvalues
		fiber.OpenUpvalues = u.next
		u.close()
	}
}
