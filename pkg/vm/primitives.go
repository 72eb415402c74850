package vm

import (
	"fmt"
	"math"
	"strings"
)

// registerPrimitives binds every remaining core method lumen's bootstrap
// classes expose to script code: Bool, Null, Num, String, List, Map,
// Range, Fn, Fiber, System. Object's and Class's own primitives are bound
// earlier, by bootstrapCore itself, before any class that inherits their
// method vector by copying is created.
func (vm *VM) registerPrimitives() {
	vm.registerBoolPrimitives()
	vm.registerNullPrimitives()
	vm.registerNumPrimitives()
	vm.registerStringPrimitives()
	vm.registerListPrimitives()
	vm.registerMapPrimitives()
	vm.registerRangePrimitives()
	vm.registerFnPrimitives()
	vm.registerFiberPrimitives()
	vm.registerSystemPrimitives()
}

// primErr writes err's message into args[0] as a lumen string and returns
// ResultError, the standard way a primitive reports failure.
func primErr(vm *VM, args []Value, err error) Result {
	args[0] = ObjValue(vm.newString(err.Error()))
	return ResultError
}

// checkNumber validates args[index] is a number, matching wren_core.c's
// validateNum: on failure it writes the error into args[0] itself, so
// callers just need to propagate the zero value up with ResultError.
func checkNumber(args []Value, index int, argName string) (float64, error) {
	if !args[index].IsNumber() {
		return 0, errMustBeNumber(argName)
	}
	return args[index].AsNumber(), nil
}

// checkInt validates args[index] is a number with no fractional part.
func checkInt(args []Value, index int, argName string) (int, error) {
	n, err := checkNumber(args, index, argName)
	if err != nil {
		return 0, err
	}
	if math.Trunc(n) != n {
		return 0, errMustBeInt(argName)
	}
	return int(n), nil
}

// checkIndex validates args[argIndex] as an index into a sequence of the
// given count, honoring lumen's negative-index-from-the-end convention.
func checkIndex(args []Value, argIndex, count int, argName string) (int, error) {
	i, err := checkInt(args, argIndex, argName)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		i = count + i
	}
	if i < 0 || i >= count {
		return 0, errOutOfBounds(argName)
	}
	return i, nil
}

func checkString(args []Value, index int, argName string) (string, error) {
	if !args[index].IsString() {
		return "", errMustBeString(argName)
	}
	return args[index].AsString().Value, nil
}

// valueToString renders v the way System.print and List/Map's own
// toString format elements: it never re-enters dynamic dispatch, so an
// instance with a user-defined toString still prints its default "instance
// of X" form when nested inside a List or Map literal (spec.md's List and
// Map toString are explicitly the simplified, non-dispatching kind).
func valueToString(vm *VM, v Value) string {
	switch v.typ {
	case ValueNull:
		return "null"
	case ValueBool:
		if v.b {
			return "true"
		}
		return "false"
	case ValueNumber:
		return NumberToString(v.num)
	case ValueObj:
		switch o := v.obj.(type) {
		case *ObjString:
			return o.Value
		case *ObjRange:
			return rangeToString(o)
		case *ObjClass:
			return o.String()
		case *ObjList:
			return listToString(vm, o)
		case *ObjMap:
			return mapToString(vm, o)
		case *Fiber:
			return "<fiber>"
		case *ObjFn, *ObjClosure:
			return "<fn>"
		default:
			return fmt.Sprintf("instance of %s", vm.classOf(v).String())
		}
	default:
		return ""
	}
}

func rangeToString(r *ObjRange) string {
	sep := "..."
	if r.IsInclusive {
		sep = ".."
	}
	return NumberToString(r.From) + sep + NumberToString(r.To)
}

func listToString(vm *VM, l *ObjList) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range l.Elements {
		if i > 0 {
			b.WriteString(", ")
		}
		if v.IsString() {
			b.WriteByte('"')
			b.WriteString(v.AsString().Value)
			b.WriteByte('"')
		} else {
			b.WriteString(valueToString(vm, v))
		}
	}
	b.WriteByte(']')
	return b.String()
}

func mapToString(vm *VM, m *ObjMap) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for i := m.Iterate(-1); i != -1; i = m.Iterate(i) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		k, v := m.EntryAt(i)
		b.WriteString(valueToString(vm, k))
		b.WriteString(": ")
		b.WriteString(valueToString(vm, v))
	}
	b.WriteByte('}')
	return b.String()
}

// ---- Object -----------------------------------------------------------

func (vm *VM) registerObjectPrimitives() {
	c := vm.objectClass
	vm.bindPrimitive(c, "==(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = BoolValue(Equal(args[0], args[1]))
		return ResultValue
	})
	vm.bindPrimitive(c, "!=(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = BoolValue(!Equal(args[0], args[1]))
		return ResultValue
	})
	vm.bindPrimitive(c, "is(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if !args[1].IsClass() {
			return primErr(vm, args, errRightOperandMustBeClass())
		}
		args[0] = BoolValue(isSubclassOf(vm.classOf(args[0]), args[1].AsClass()))
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newString(valueToString(vm, args[0])))
		return ResultValue
	})
	vm.bindPrimitive(c, "type", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.classOf(args[0]))
		return ResultValue
	})
	vm.bindPrimitive(c, "!", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = False
		return ResultValue
	})
}

// ---- Class --------------------------------------------------------------

func (vm *VM) registerClassPrimitives() {
	c := vm.classClass
	vm.bindPrimitive(c, "name", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(args[0].AsClass().Name)
		return ResultValue
	})
	vm.bindPrimitive(c, "supertype", func(vm *VM, fiber *Fiber, args []Value) Result {
		super := args[0].AsClass().Superclass
		if super == nil {
			args[0] = Null
		} else {
			args[0] = ObjValue(super)
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(args[0].AsClass().Name)
		return ResultValue
	})
}

// ---- Bool ---------------------------------------------------------------

func (vm *VM) registerBoolPrimitives() {
	c := vm.boolClass
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		if args[0].AsBool() {
			args[0] = ObjValue(vm.newString("true"))
		} else {
			args[0] = ObjValue(vm.newString("false"))
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "!", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = BoolValue(!args[0].AsBool())
		return ResultValue
	})
}

// ---- Null ---------------------------------------------------------------

func (vm *VM) registerNullPrimitives() {
	c := vm.nullClass
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newString("null"))
		return ResultValue
	})
	vm.bindPrimitive(c, "!", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = True
		return ResultValue
	})
}

// ---- Num ------------------------------------------------------------------

func (vm *VM) registerNumPrimitives() {
	c := vm.numClass

	binOp := func(sig string, fn func(a, b float64) float64) {
		vm.bindPrimitive(c, sig, func(vm *VM, fiber *Fiber, args []Value) Result {
			b, err := checkNumber(args, 1, "Right operand")
			if err != nil {
				return primErr(vm, args, err)
			}
			args[0] = NumberValue(fn(args[0].AsNumber(), b))
			return ResultValue
		})
	}
	cmpOp := func(sig string, fn func(a, b float64) bool) {
		vm.bindPrimitive(c, sig, func(vm *VM, fiber *Fiber, args []Value) Result {
			b, err := checkNumber(args, 1, "Right operand")
			if err != nil {
				return primErr(vm, args, err)
			}
			args[0] = BoolValue(fn(args[0].AsNumber(), b))
			return ResultValue
		})
	}
	bitOp := func(sig string, fn func(a, b int64) int64) {
		vm.bindPrimitive(c, sig, func(vm *VM, fiber *Fiber, args []Value) Result {
			b, err := checkInt(args, 1, "Right operand")
			if err != nil {
				return primErr(vm, args, err)
			}
			args[0] = NumberValue(float64(fn(int64(args[0].AsNumber()), int64(b))))
			return ResultValue
		})
	}

	binOp("+(_)", func(a, b float64) float64 { return a + b })
	binOp("-(_)", func(a, b float64) float64 { return a - b })
	binOp("*(_)", func(a, b float64) float64 { return a * b })
	binOp("/(_)", func(a, b float64) float64 { return a / b })
	binOp("%(_)", math.Mod)
	binOp("pow(_)", math.Pow)
	binOp("min(_)", math.Min)
	binOp("max(_)", math.Max)

	cmpOp("<(_)", func(a, b float64) bool { return a < b })
	cmpOp(">(_)", func(a, b float64) bool { return a > b })
	cmpOp("<=(_)", func(a, b float64) bool { return a <= b })
	cmpOp(">=(_)", func(a, b float64) bool { return a >= b })

	bitOp("&(_)", func(a, b int64) int64 { return a & b })
	bitOp("|(_)", func(a, b int64) int64 { return a | b })
	bitOp("^(_)", func(a, b int64) int64 { return a ^ b })
	bitOp("<<(_)", func(a, b int64) int64 { return a << uint(b) })
	bitOp(">>(_)", func(a, b int64) int64 { return a >> uint(b) })

	vm.bindPrimitive(c, "-", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(-args[0].AsNumber())
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newString(NumberToString(args[0].AsNumber())))
		return ResultValue
	})
	vm.bindPrimitive(c, "truncate", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Trunc(args[0].AsNumber()))
		return ResultValue
	})
	vm.bindPrimitive(c, "floor", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Floor(args[0].AsNumber()))
		return ResultValue
	})
	vm.bindPrimitive(c, "ceil", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Ceil(args[0].AsNumber()))
		return ResultValue
	})
	vm.bindPrimitive(c, "sqrt", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Sqrt(args[0].AsNumber()))
		return ResultValue
	})
	vm.bindPrimitive(c, "abs", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Abs(args[0].AsNumber()))
		return ResultValue
	})
	vm.bindPrimitive(c, "isNan", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = BoolValue(math.IsNaN(args[0].AsNumber()))
		return ResultValue
	})

	vm.bindPrimitiveStatic(c, "pi", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Pi)
		return ResultValue
	})
	vm.bindPrimitiveStatic(c, "infinity", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(math.Inf(1))
		return ResultValue
	})
}

// ---- String ---------------------------------------------------------------

func (vm *VM) registerStringPrimitives() {
	c := vm.stringClass

	vm.bindPrimitive(c, "+(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		other, err := checkString(args, 1, "Right operand")
		if err != nil {
			return primErr(vm, args, err)
		}
		args[0] = ObjValue(vm.newString(args[0].AsString().Value + other))
		return ResultValue
	})
	vm.bindPrimitive(c, "[_]", func(vm *VM, fiber *Fiber, args []Value) Result {
		s := args[0].AsString().Value
		count := codepointCount(s)
		i, err := checkIndex(args, 1, count, "Subscript")
		if err != nil {
			return primErr(vm, args, err)
		}
		byteIdx := byteIndexForCodepoint(s, i)
		end := nextCodepointIndex(s, byteIdx)
		if end == -1 {
			end = len(s)
		}
		args[0] = ObjValue(vm.newString(s[byteIdx:end]))
		return ResultValue
	})
	vm.bindPrimitive(c, "count", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(float64(codepointCount(args[0].AsString().Value)))
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		return ResultValue
	})
	vm.bindPrimitive(c, "contains(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		other, err := checkString(args, 1, "Argument")
		if err != nil {
			return primErr(vm, args, err)
		}
		args[0] = BoolValue(strings.Contains(args[0].AsString().Value, other))
		return ResultValue
	})
	vm.bindPrimitive(c, "indexOf(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		other, err := checkString(args, 1, "Argument")
		if err != nil {
			return primErr(vm, args, err)
		}
		idx := strings.Index(args[0].AsString().Value, other)
		if idx < 0 {
			args[0] = NumberValue(-1)
			return ResultValue
		}
		args[0] = NumberValue(float64(codepointCount(args[0].AsString().Value[:idx])))
		return ResultValue
	})
	// iterate(_)/iteratorValue(_) walk byte offsets: iterate(null) begins
	// at the string's first leading byte, iterate(prev) advances past the
	// codepoint at prev, and iteratorValue reads the codepoint at the
	// current offset. Offsets double as the resumable iterator state.
	vm.bindPrimitive(c, "iterate(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		s := args[0].AsString().Value
		if args[1].IsNull() {
			if len(s) == 0 {
				args[0] = False
			} else {
				args[0] = NumberValue(0)
			}
			return ResultValue
		}
		i, err := checkInt(args, 1, "Iterator")
		if err != nil {
			return primErr(vm, args, err)
		}
		next := nextCodepointIndex(s, i)
		if next == -1 {
			args[0] = False
		} else {
			args[0] = NumberValue(float64(next))
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "iteratorValue(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		s := args[0].AsString().Value
		i, err := checkInt(args, 1, "Iterator")
		if err != nil {
			return primErr(vm, args, err)
		}
		end := nextCodepointIndex(s, i)
		if end == -1 {
			end = len(s)
		}
		args[0] = ObjValue(vm.newString(s[i:end]))
		return ResultValue
	})
}

func codepointCount(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if !isUTF8ContinuationByte(s[i]) {
			n++
		}
	}
	return n
}

func byteIndexForCodepoint(s string, codepointIdx int) int {
	n := -1
	for i := 0; i < len(s); i++ {
		if !isUTF8ContinuationByte(s[i]) {
			n++
			if n == codepointIdx {
				return i
			}
		}
	}
	return len(s)
}

// ---- List -------------------------------------------------------------

func (vm *VM) registerListPrimitives() {
	c := vm.listClass

	vm.bindPrimitiveStatic(c, "new()", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newList())
		return ResultValue
	})
	vm.bindPrimitive(c, "[_]", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		if args[1].IsRange() {
			args[0] = ObjValue(sliceList(vm, l, args[1].AsRange()))
			return ResultValue
		}
		i, err := checkIndex(args, 1, len(l.Elements), "Subscript")
		if err != nil {
			return primErr(vm, args, err)
		}
		args[0] = l.Elements[i]
		return ResultValue
	})
	vm.bindPrimitive(c, "[_]=(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		i, err := checkIndex(args, 1, len(l.Elements), "Subscript")
		if err != nil {
			return primErr(vm, args, err)
		}
		l.Elements[i] = args[2]
		args[0] = args[2]
		return ResultValue
	})
	vm.bindPrimitive(c, "add(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0].AsList().Append(args[1])
		args[0] = args[1]
		return ResultValue
	})
	vm.bindPrimitive(c, "addAll(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if !args[1].IsList() {
			return primErr(vm, args, fmt.Errorf("Argument must be a list."))
		}
		l := args[0].AsList()
		for _, v := range args[1].AsList().Elements {
			l.Append(v)
		}
		args[0] = args[1]
		return ResultValue
	})
	vm.bindPrimitive(c, "insert(_,_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		i, err := checkIndex(args, 1, len(l.Elements)+1, "Index")
		if err != nil {
			return primErr(vm, args, err)
		}
		l.Insert(i, args[2])
		args[0] = args[2]
		return ResultValue
	})
	vm.bindPrimitive(c, "removeAt(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		i, err := checkIndex(args, 1, len(l.Elements), "Index")
		if err != nil {
			return primErr(vm, args, err)
		}
		args[0] = l.RemoveAt(i)
		return ResultValue
	})
	vm.bindPrimitive(c, "indexOf(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		for i, v := range args[0].AsList().Elements {
			if Equal(v, args[1]) {
				args[0] = NumberValue(float64(i))
				return ResultValue
			}
		}
		args[0] = NumberValue(-1)
		return ResultValue
	})
	vm.bindPrimitive(c, "swap(_,_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		i, err := checkIndex(args, 1, len(l.Elements), "Index 0")
		if err != nil {
			return primErr(vm, args, err)
		}
		j, err := checkIndex(args, 2, len(l.Elements), "Index 1")
		if err != nil {
			return primErr(vm, args, err)
		}
		l.Elements[i], l.Elements[j] = l.Elements[j], l.Elements[i]
		args[0] = Null
		return ResultValue
	})
	vm.bindPrimitive(c, "clear()", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0].AsList().Elements = nil
		args[0] = Null
		return ResultValue
	})
	vm.bindPrimitive(c, "count", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(float64(len(args[0].AsList().Elements)))
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newString(listToString(vm, args[0].AsList())))
		return ResultValue
	})
	vm.bindPrimitive(c, "iterate(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		if args[1].IsNull() {
			if len(l.Elements) == 0 {
				args[0] = False
			} else {
				args[0] = NumberValue(0)
			}
			return ResultValue
		}
		i, err := checkInt(args, 1, "Iterator")
		if err != nil {
			return primErr(vm, args, err)
		}
		if i+1 >= len(l.Elements) {
			args[0] = False
		} else {
			args[0] = NumberValue(float64(i + 1))
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "iteratorValue(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		l := args[0].AsList()
		i, err := checkIndex(args, 1, len(l.Elements), "Iterator")
		if err != nil {
			return primErr(vm, args, err)
		}
		args[0] = l.Elements[i]
		return ResultValue
	})
}

func sliceList(vm *VM, l *ObjList, r *ObjRange) *ObjList {
	result := vm.newList()
	from, to := int(r.From), int(r.To)
	if from <= to {
		end := to
		if r.IsInclusive {
			end++
		}
		for i := from; i < end && i < len(l.Elements); i++ {
			result.Append(l.Elements[i])
		}
	} else {
		end := to
		if !r.IsInclusive {
			end++
		}
		for i := from; i > end && i >= 0; i-- {
			if i < len(l.Elements) {
				result.Append(l.Elements[i])
			}
		}
	}
	return result
}

// ---- Map ----------------------------------------------------------------

func isValueType(v Value) bool {
	switch v.typ {
	case ValueNull, ValueBool, ValueNumber:
		return true
	case ValueObj:
		switch v.obj.(type) {
		case *ObjString, *ObjRange, *ObjClass:
			return true
		}
	}
	return false
}

func (vm *VM) registerMapPrimitives() {
	c := vm.mapClass

	vm.bindPrimitiveStatic(c, "new()", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newMap())
		return ResultValue
	})
	vm.bindPrimitive(c, "[_]", func(vm *VM, fiber *Fiber, args []Value) Result {
		v, ok := args[0].AsMap().Get(args[1])
		if !ok {
			args[0] = Null
		} else {
			args[0] = v
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "[_]=(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if !isValueType(args[1]) {
			return primErr(vm, args, errKeyMustBeValueType())
		}
		args[0].AsMap().Set(args[1], args[2])
		args[0] = args[2]
		return ResultValue
	})
	vm.bindPrimitive(c, "remove(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		v, ok := args[0].AsMap().Remove(args[1])
		if !ok {
			args[0] = Null
		} else {
			args[0] = v
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "containsKey(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		_, ok := args[0].AsMap().Get(args[1])
		args[0] = BoolValue(ok)
		return ResultValue
	})
	vm.bindPrimitive(c, "count", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(float64(args[0].AsMap().Count()))
		return ResultValue
	})
	vm.bindPrimitive(c, "clear()", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newMap())
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newString(mapToString(vm, args[0].AsMap())))
		return ResultValue
	})
	// iterate(_)/iteratorValue(_) expose the raw bucket index as iterator
	// state (object.go's ObjMap.Iterate), so a Map can be resumed mid-scan
	// across calls the way spec.md's Map invariant requires.
	vm.bindPrimitive(c, "iterate(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		m := args[0].AsMap()
		start := -1
		if !args[1].IsNull() {
			i, err := checkInt(args, 1, "Iterator")
			if err != nil {
				return primErr(vm, args, err)
			}
			start = i
		}
		next := m.Iterate(start)
		if next == -1 {
			args[0] = False
		} else {
			args[0] = NumberValue(float64(next))
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "iteratorValue(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		i, err := checkInt(args, 1, "Iterator")
		if err != nil {
			return primErr(vm, args, err)
		}
		k, v := args[0].AsMap().EntryAt(i)
		entry := vm.newList()
		entry.Append(k)
		entry.Append(v)
		args[0] = ObjValue(entry)
		return ResultValue
	})
}

// ---- Range ----------------------------------------------------------------

func (vm *VM) registerRangePrimitives() {
	c := vm.rangeClass

	// new(_,_,_) backs range-literal syntax (from..to, from...to): the
	// compiler evaluates the two endpoints and pushes a bool literal for
	// IsInclusive, then calls this static constructor rather than having
	// its own dedicated opcode.
	vm.bindPrimitiveStatic(c, "new(_,_,_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		from, err := checkNumber(args, 1, "From")
		if err != nil {
			return primErr(vm, args, err)
		}
		to, err := checkNumber(args, 2, "To")
		if err != nil {
			return primErr(vm, args, err)
		}
		if !args[3].IsBool() {
			return primErr(vm, args, fmt.Errorf("IsInclusive must be a bool."))
		}
		args[0] = ObjValue(vm.newRange(from, to, args[3].AsBool()))
		return ResultValue
	})

	vm.bindPrimitive(c, "from", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(args[0].AsRange().From)
		return ResultValue
	})
	vm.bindPrimitive(c, "to", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(args[0].AsRange().To)
		return ResultValue
	})
	vm.bindPrimitive(c, "isInclusive", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = BoolValue(args[0].AsRange().IsInclusive)
		return ResultValue
	})
	vm.bindPrimitive(c, "min", func(vm *VM, fiber *Fiber, args []Value) Result {
		r := args[0].AsRange()
		args[0] = NumberValue(math.Min(r.From, r.To))
		return ResultValue
	})
	vm.bindPrimitive(c, "max", func(vm *VM, fiber *Fiber, args []Value) Result {
		r := args[0].AsRange()
		args[0] = NumberValue(math.Max(r.From, r.To))
		return ResultValue
	})
	vm.bindPrimitive(c, "toString", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(vm.newString(rangeToString(args[0].AsRange())))
		return ResultValue
	})
	// iterate(_)/iteratorValue(_) step by 1 toward To, honoring
	// IsInclusive for the stopping bound, per spec.md's Range iteration
	// invariant.
	vm.bindPrimitive(c, "iterate(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		r := args[0].AsRange()
		step := 1.0
		if r.To < r.From {
			step = -1.0
		}
		var cur float64
		if args[1].IsNull() {
			cur = r.From
		} else {
			n, err := checkNumber(args, 1, "Iterator")
			if err != nil {
				return primErr(vm, args, err)
			}
			cur = n + step
		}
		done := false
		if step > 0 {
			if r.IsInclusive {
				done = cur > r.To
			} else {
				done = cur >= r.To
			}
		} else {
			if r.IsInclusive {
				done = cur < r.To
			} else {
				done = cur <= r.To
			}
		}
		if done {
			args[0] = False
		} else {
			args[0] = NumberValue(cur)
		}
		return ResultValue
	})
	vm.bindPrimitive(c, "iteratorValue(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = args[1]
		return ResultValue
	})
}

// ---- Fn -------------------------------------------------------------------

func (vm *VM) registerFnPrimitives() {
	c := vm.fnClass

	vm.bindPrimitiveStatic(c, "new(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if !args[1].IsCallable() {
			return primErr(vm, args, fmt.Errorf("Argument must be a function."))
		}
		args[0] = args[1]
		return ResultValue
	})
	vm.bindPrimitive(c, "arity", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(float64(arityOf(args[0])))
		return ResultValue
	})

	// call(), call(_), call(_,_), ... up through 16 arguments: every arity
	// is trivially PRIM_CALL, since the receiver already is the callable
	// (wren_core.c's fn_call).
	callImpl := func(vm *VM, fiber *Fiber, args []Value) Result {
		return ResultCall
	}
	vm.bindPrimitive(c, "call()", callImpl)
	sig := "call("
	for i := 0; i < 16; i++ {
		if i > 0 {
			sig += ",_"
		} else {
			sig += "_"
		}
		vm.bindPrimitive(c, sig+")", callImpl)
	}
}

func arityOf(v Value) int {
	if v.IsClosure() {
		return v.AsClosure().Fn.Proto.Arity
	}
	if v.IsFn() {
		return v.AsFn().Proto.Arity
	}
	return 0
}

// ---- Fiber ----------------------------------------------------------------

func (vm *VM) registerFiberPrimitives() {
	c := vm.fiberClass

	vm.bindPrimitiveStatic(c, "new(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if !args[1].IsCallable() {
			return primErr(vm, args, fmt.Errorf("Argument must be a function."))
		}
		args[0] = ObjValue(vm.newFiber(args[1].AsObj()))
		return ResultValue
	})
	vm.bindPrimitiveStatic(c, "current", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = ObjValue(fiber)
		return ResultValue
	})
	vm.bindPrimitiveStatic(c, "yield()", func(vm *VM, fiber *Fiber, args []Value) Result {
		return fiberYield(fiber, args, false)
	})
	vm.bindPrimitiveStatic(c, "yield(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		return fiberYield(fiber, args, true)
	})
	vm.bindPrimitiveStatic(c, "abort(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = args[1]
		return ResultError
	})

	vm.bindPrimitive(c, "call()", func(vm *VM, fiber *Fiber, args []Value) Result {
		return fiberCall(vm, fiber, args, false, false)
	})
	vm.bindPrimitive(c, "call(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		return fiberCall(vm, fiber, args, true, false)
	})
	vm.bindPrimitive(c, "run()", func(vm *VM, fiber *Fiber, args []Value) Result {
		return fiberCall(vm, fiber, args, false, true)
	})
	vm.bindPrimitive(c, "run(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		return fiberCall(vm, fiber, args, true, true)
	})
	vm.bindPrimitive(c, "try()", func(vm *VM, fiber *Fiber, args []Value) Result {
		target := args[0].AsFiber()
		if target.IsDone() {
			return primErr(vm, args, fmt.Errorf("Cannot call a finished fiber."))
		}
		if target.Caller != nil {
			return primErr(vm, args, fmt.Errorf("Fiber has already been called."))
		}
		target.Caller = fiber
		target.CallerIsTrying = true
		target.setTop(Null)
		args[0] = ObjValue(target)
		return ResultRunFiber
	})
	vm.bindPrimitive(c, "isDone", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = BoolValue(args[0].AsFiber().IsDone())
		return ResultValue
	})
	vm.bindPrimitive(c, "error", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = args[0].AsFiber().Error
		return ResultValue
	})
}

// fiberCall implements call/call(_)/run/run(_): the target fiber's caller
// link distinguishes the two (call links target.Caller to the invoking
// fiber, so an uncaught error unwinds to it; run leaves the target's
// existing caller chain untouched, so an error in it always escapes to
// wherever that chain already led — spec.md §4.5's explicit run()
// contract, which this snapshot's native bindings do not follow).
//
// The window-collapse rule mirrors wren_vm.c's fiber_call/fiber_run: a
// value argument is dropped from the *calling* fiber's own stack (the
// slot that will eventually hold this call's resumed result), and the
// target's top slot — its first local if unstarted, or the pending
// yield/call expression's slot if suspended — is set to the passed value.
func fiberCall(vm *VM, fiber *Fiber, args []Value, hasValue, isRun bool) Result {
	target := args[0].AsFiber()
	if target.IsDone() {
		return primErr(vm, args, fmt.Errorf("Cannot call a finished fiber."))
	}
	if target.Caller != nil {
		return primErr(vm, args, fmt.Errorf("Fiber has already been called."))
	}
	if !isRun {
		target.Caller = fiber
	}
	resumeVal := Null
	if hasValue {
		resumeVal = args[1]
		fiber.Stack = fiber.Stack[:len(fiber.Stack)-1]
	}
	target.setTop(resumeVal)
	args[0] = ObjValue(target)
	return ResultRunFiber
}

// fiberYield implements Fiber.yield()/yield(_). With no caller to resume,
// spec.md §4.5 has the interpreter simply stop (the running script's
// "main" fiber yielding with nothing above it ends execution cleanly,
// rather than raising "No fiber to yield to." the way this snapshot's
// native binding does).
func fiberYield(fiber *Fiber, args []Value, hasValue bool) Result {
	caller := fiber.Caller
	if caller == nil {
		args[0] = Null
		return ResultRunFiber
	}
	fiber.Caller = nil
	fiber.CallerIsTrying = false
	resumeVal := Null
	if hasValue {
		resumeVal = args[1]
		fiber.Stack = fiber.Stack[:len(fiber.Stack)-1]
	}
	caller.setTop(resumeVal)
	args[0] = ObjValue(caller)
	return ResultRunFiber
}

// ---- System ---------------------------------------------------------------

func (vm *VM) registerSystemPrimitives() {
	c := vm.systemClass

	vm.bindPrimitiveStatic(c, "print(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if vm.config.Write != nil {
			vm.config.Write(valueToString(vm, args[1]))
			vm.config.Write("\n")
		}
		args[0] = args[1]
		return ResultValue
	})
	vm.bindPrimitiveStatic(c, "writeString_(_)", func(vm *VM, fiber *Fiber, args []Value) Result {
		if vm.config.Write != nil {
			vm.config.Write(valueToString(vm, args[1]))
		}
		args[0] = args[1]
		return ResultValue
	})
	vm.bindPrimitiveStatic(c, "clock", func(vm *VM, fiber *Fiber, args []Value) Result {
		args[0] = NumberValue(0)
		return ResultValue
	})
}
