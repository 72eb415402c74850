package vm

import "fmt"

// CallFrame is one active call on a Fiber's frame stack: which function or
// closure is running, its instruction pointer, and the stack slot holding
// its receiver (slot 0 of its argument window).
type CallFrame struct {
	Closure    *ObjClosure // nil when Fn is set directly (unclosed top-level/script functions)
	Fn         *ObjFn
	IP         int
	StackStart int
}

func (f *CallFrame) proto() *ObjFn {
	if f.Closure != nil {
		return f.Closure.Fn
	}
	return f.Fn
}

// Fiber is a cooperative coroutine: its own value stack, call-frame stack,
// open-upvalue list and caller link. Context switches between fibers
// happen only at call/run/try/yield/abort and at runtime-error recovery
// (spec.md §5) — nothing here is safe for concurrent use by more than one
// goroutine, by design: lumen fibers are cooperative scheduling, not
// parallelism.
type Fiber struct {
	ObjHeader

	Stack      []Value
	Frames     []CallFrame
	OpenUpvalues *Upvalue // head of a list sorted by descending stack index

	Caller         *Fiber
	CallerIsTrying bool
	Error          Value // null, or the error value set on abort/runtime error
}

const (
	initialFiberStackSize = 256
	maxCallFrames         = 512
)

func newFiber(root Obj) *Fiber {
	f := &Fiber{
		Stack:  make([]Value, 1, initialFiberStackSize),
		Frames: make([]CallFrame, 0, 8),
		Error:  Null,
	}
	f.Stack[0] = Null
	switch r := root.(type) {
	case *ObjClosure:
		f.Frames = append(f.Frames, CallFrame{Closure: r, StackStart: 0})
	case *ObjFn:
		f.Frames = append(f.Frames, CallFrame{Fn: r, StackStart: 0})
	}
	return f
}

func (f *Fiber) traceRefs(mark func(Value)) {
	for _, v := range f.Stack {
		mark(v)
	}
	for _, fr := range f.Frames {
		if fr.Closure != nil {
			mark(ObjValue(fr.Closure))
		}
		if fr.Fn != nil {
			mark(ObjValue(fr.Fn))
		}
	}
	for u := f.OpenUpvalues; u != nil; u = u.next {
		mark(ObjValue(u))
	}
	if f.Caller != nil {
		mark(ObjValue(f.Caller))
	}
	mark(f.Error)
}
func (f *Fiber) approxSize() int {
	return 64 + cap(f.Stack)*16 + cap(f.Frames)*32
}

// IsNotStarted reports whether the fiber has never run: its only frame
// still sits at instruction 0 and it has no caller.
func (f *Fiber) IsNotStarted() bool {
	return f.Caller == nil && len(f.Frames) == 1 && f.Frames[0].IP == 0 && f.Stack[len(f.Stack)-1].IsNull()
}

// IsDone reports whether the fiber has finished running (its frame stack
// is empty).
func (f *Fiber) IsDone() bool { return len(f.Frames) == 0 }

// push/pop/top operate on the fiber's own value stack, growing it
// geometrically if needed (spec.md's Open Question (b) permits a growable
// stack as long as every pointer into it — open upvalues, frame
// stack-starts — is re-plumbed on relocation; indices, used throughout
// this implementation instead of raw pointers, make that automatic).
func (f *Fiber) push(v Value) {
	f.Stack = append(f.Stack, v)
}

func (f *Fiber) pop() Value {
	n := len(f.Stack) - 1
	v := f.Stack[n]
	f.Stack = f.Stack[:n]
	return v
}

func (f *Fiber) top() Value { return f.Stack[len(f.Stack)-1] }

func (f *Fiber) peek(distanceFromTop int) Value {
	return f.Stack[len(f.Stack)-1-distanceFromTop]
}

func (f *Fiber) setTop(v Value) { f.Stack[len(f.Stack)-1] = v }

// currentFrame returns a pointer into the live frame slice so callers can
// mutate IP in place.
func (f *Fiber) currentFrame() *CallFrame {
	return &f.Frames[len(f.Frames)-1]
}

// pushFrame pushes a new call frame for fn/closure with its receiver at
// stackStart, checking the recursion-depth bound (spec.md §5: "SHOULD
// detect overflow and convert to a runtime error rather than crashing").
func (f *Fiber) pushFrame(closure *ObjClosure, fn *ObjFn, stackStart int) error {
	if len(f.Frames) >= maxCallFrames {
		return fmt.Errorf("Stack overflow.")
	}
	f.Frames = append(f.Frames, CallFrame{Closure: closure, Fn: fn, StackStart: stackStart})
	return nil
}
