package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one line of a runtime-error trace: the function/method
// that was executing and the source line it was at.
type StackFrame struct {
	FunctionName string
	ModuleName   string
	Line         int
}

// RuntimeError is returned by Interpret when a fiber errors with no
// caller to catch it (spec.md §7). Message is the raw error value's
// string form; Trace is the call stack at the point of failure, innermost
// frame first.
type RuntimeError struct {
	Message string
	Trace   []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.Trace {
		mod := f.ModuleName
		if mod == "" {
			mod = "core"
		}
		fmt.Fprintf(&b, "\n[%s line %d] in %s", mod, f.Line, f.FunctionName)
	}
	return b.String()
}

// The exact runtime-error wordings spec.md §6 fixes as part of the
// contract. Keeping them as named functions (rather than inlining
// fmt.Sprintf at each call site) makes every literal wording traceable to
// one place.

func errDoesNotImplement(className, signature string) error {
	return fmt.Errorf("%s does not implement '%s'.", className, signature)
}

func errMustInheritFromClass() error {
	return fmt.Errorf("Must inherit from a class.")
}

func errCannotInherit(className, superName string) error {
	return fmt.Errorf("%s cannot inherit from %s.", className, superName)
}

func errModuleNotFound(name string) error {
	return fmt.Errorf("Could not find module '%s'.", name)
}

func errVariableNotFoundInModule(varName, moduleName string) error {
	return fmt.Errorf("Could not find a variable named '%s' in module '%s'.", varName, moduleName)
}

func errRightOperandMustBeClass() error {
	return fmt.Errorf("Right operand must be a class.")
}

func errMustBeNumber(argName string) error {
	return fmt.Errorf("%s must be a number.", argName)
}

func errMustBeInt(argName string) error {
	return fmt.Errorf("%s must be an integer.", argName)
}

func errMustBeString(argName string) error {
	return fmt.Errorf("%s must be a string.", argName)
}

func errOutOfBounds(argName string) error {
	return fmt.Errorf("%s out of bounds.", argName)
}

func errKeyMustBeValueType() error {
	return fmt.Errorf("Key must be a value type.")
}

func errSubscriptMustBeNumberOrRange() error {
	return fmt.Errorf("Subscript must be a number or a range.")
}
