package vm

// Result is what a primitive or foreign method hands back to the
// interpreter loop after it runs. It mirrors the four ways a call can
// finish: a plain value already sitting in the first argument slot, an
// error value to turn into a runtime error, a bound Go closure/function
// that still needs a frame pushed for it, or a fiber switch.
type Result int

const (
	// ResultValue means args[0] holds the call's result. The interpreter
	// discards the remaining argument slots and continues in the same frame.
	ResultValue Result = iota
	// ResultError means args[0] holds a string error value. The interpreter
	// raises it as a runtime error, unwinding to the nearest try fiber.
	ResultError
	// ResultCall means args[0] holds an ObjFn or ObjClosure that must be
	// pushed as a new call frame over the same argument window.
	ResultCall
	// ResultRunFiber means the interpreter should switch its current fiber
	// to the one left in args[0], per the Fiber scheduling primitives.
	ResultRunFiber
)
