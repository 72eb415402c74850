// Package bytecode defines the wire format the lumen compiler emits and the
// lumen virtual machine consumes.
//
// A compiled program is a tree of Function values: one per top-level
// module body, block, method body and closure literal in the source. Each
// Function owns a flat byte-code array plus a constant pool; instructions
// that need data too large to fit inline (string literals, numbers, nested
// function prototypes) reference a slot in the pool instead.
//
// Opcodes are a single byte. Operands are either absent, one byte, or a
// 16-bit big-endian pair, per instruction (see Opcode's doc comments).
// This matches the instruction set fixed by the host specification: the
// compiler and the VM are separate components that agree only on this
// format, so changing the VM's internals never requires changing the
// compiler and vice versa.
package bytecode

// Opcode is a single bytecode operation.
type Opcode byte

// The lumen instruction set. Operands are encoded immediately after the
// opcode byte; 16-bit operands are big-endian.
const (
	// Constants & literals.

	// CONSTANT <u16>: push constants[u16].
	OpConstant Opcode = iota
	// NULL: push null.
	OpNull
	// FALSE: push false.
	OpFalse
	// TRUE: push true.
	OpTrue

	// Locals. LOAD_LOCAL_0..8 are inlined forms of the most common slot
	// indices; LOAD_LOCAL/STORE_LOCAL carry an explicit u8 index.
	OpLoadLocal0
	OpLoadLocal1
	OpLoadLocal2
	OpLoadLocal3
	OpLoadLocal4
	OpLoadLocal5
	OpLoadLocal6
	OpLoadLocal7
	OpLoadLocal8
	// LOAD_LOCAL <u8>.
	OpLoadLocal
	// STORE_LOCAL <u8>: does not pop.
	OpStoreLocal

	// Upvalues.
	OpLoadUpvalue
	OpStoreUpvalue

	// Module-level variables.
	OpLoadModuleVar
	OpStoreModuleVar

	// Fields.
	OpLoadFieldThis
	OpStoreFieldThis
	OpLoadField
	OpStoreField

	// Stack bookkeeping.
	OpPop
	OpDup

	// Calls. CALL_n <u16 symbol>: invoke the method symbol on the receiver
	// n slots below the top of stack, with n arguments already pushed.
	OpCall0
	OpCall1
	OpCall2
	OpCall3
	OpCall4
	OpCall5
	OpCall6
	OpCall7
	OpCall8
	OpCall9
	OpCall10
	OpCall11
	OpCall12
	OpCall13
	OpCall14
	OpCall15
	OpCall16

	// SUPER_n <u16 symbol>: like CALL_n but dispatch starts at the
	// compile-time superclass of the enclosing method.
	OpSuper0
	OpSuper1
	OpSuper2
	OpSuper3
	OpSuper4
	OpSuper5
	OpSuper6
	OpSuper7
	OpSuper8
	OpSuper9
	OpSuper10
	OpSuper11
	OpSuper12
	OpSuper13
	OpSuper14
	OpSuper15
	OpSuper16

	// Control flow.
	OpJump   // JUMP <u16>: unconditional forward jump.
	OpLoop   // LOOP <u16>: unconditional backward jump.
	OpJumpIf // JUMP_IF <u16>: pop; jump if falsy.
	OpAnd    // AND <u16>: peek; jump (without popping) if falsy, else pop.
	OpOr     // OR <u16>: peek; jump (without popping) if truthy, else pop.

	// Classes.
	OpClass          // CLASS <u8 numFields>: pop name+super, push new class.
	OpMethodInstance // METHOD_INSTANCE <u16 symbol>: bind instance method.
	OpMethodStatic   // METHOD_STATIC <u16 symbol>: bind static method.

	// Closures. CLOSURE <u16 fnConst> is followed by NumUpvalues pairs of
	// <u8 isLocal><u8 index>.
	OpClosure

	// Modules.
	OpLoadModule     // LOAD_MODULE <u16 nameConst>.
	OpImportVariable // IMPORT_VARIABLE <u16 nameConst> <u16 varConst>.

	// Flow.
	OpCloseUpvalue
	OpReturn
	OpIs
	OpEnd // sentinel; never executed.
)

// CallVariant returns the opcode for a CALL_n with the given argument
// count (0..16).
func CallVariant(numArgs int) Opcode {
	return OpCall0 + Opcode(numArgs)
}

// SuperVariant returns the opcode for a SUPER_n with the given argument
// count (0..16).
func SuperVariant(numArgs int) Opcode {
	return OpSuper0 + Opcode(numArgs)
}

// NumArgsForCall returns the argument count encoded by a CALL_n opcode.
func NumArgsForCall(op Opcode) int {
	return int(op - OpCall0)
}

// NumArgsForSuper returns the argument count encoded by a SUPER_n opcode.
func NumArgsForSuper(op Opcode) int {
	return int(op - OpSuper0)
}

// IsCall reports whether op is one of the CALL_0..16 variants.
func IsCall(op Opcode) bool { return op >= OpCall0 && op <= OpCall16 }

// IsSuper reports whether op is one of the SUPER_0..16 variants.
func IsSuper(op Opcode) bool { return op >= OpSuper0 && op <= OpSuper16 }

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

var opcodeNames = map[Opcode]string{
	OpConstant:       "CONSTANT",
	OpNull:           "NULL",
	OpFalse:          "FALSE",
	OpTrue:           "TRUE",
	OpLoadLocal0:     "LOAD_LOCAL_0",
	OpLoadLocal1:     "LOAD_LOCAL_1",
	OpLoadLocal2:     "LOAD_LOCAL_2",
	OpLoadLocal3:     "LOAD_LOCAL_3",
	OpLoadLocal4:     "LOAD_LOCAL_4",
	OpLoadLocal5:     "LOAD_LOCAL_5",
	OpLoadLocal6:     "LOAD_LOCAL_6",
	OpLoadLocal7:     "LOAD_LOCAL_7",
	OpLoadLocal8:     "LOAD_LOCAL_8",
	OpLoadLocal:      "LOAD_LOCAL",
	OpStoreLocal:     "STORE_LOCAL",
	OpLoadUpvalue:    "LOAD_UPVALUE",
	OpStoreUpvalue:   "STORE_UPVALUE",
	OpLoadModuleVar:  "LOAD_MODULE_VAR",
	OpStoreModuleVar: "STORE_MODULE_VAR",
	OpLoadFieldThis:  "LOAD_FIELD_THIS",
	OpStoreFieldThis: "STORE_FIELD_THIS",
	OpLoadField:      "LOAD_FIELD",
	OpStoreField:     "STORE_FIELD",
	OpPop:            "POP",
	OpDup:            "DUP",
	OpJump:           "JUMP",
	OpLoop:           "LOOP",
	OpJumpIf:         "JUMP_IF",
	OpAnd:            "AND",
	OpOr:             "OR",
	OpClass:          "CLASS",
	OpMethodInstance: "METHOD_INSTANCE",
	OpMethodStatic:   "METHOD_STATIC",
	OpClosure:        "CLOSURE",
	OpLoadModule:     "LOAD_MODULE",
	OpImportVariable: "IMPORT_VARIABLE",
	OpCloseUpvalue:   "CLOSE_UPVALUE",
	OpReturn:         "RETURN",
	OpIs:             "IS",
	OpEnd:            "END",
}

func init() {
	for i := 0; i <= 16; i++ {
		opcodeNames[OpCall0+Opcode(i)] = "CALL_" + itoa(i)
		opcodeNames[OpSuper0+Opcode(i)] = "SUPER_" + itoa(i)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits [3]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// UpvalueRef describes one upvalue captured by a CLOSURE instruction: it is
// either the enclosing frame's local at Index (IsLocal true) or the
// enclosing closure's own upvalue at Index (IsLocal false).
type UpvalueRef struct {
	IsLocal bool
	Index   byte
}

// Function is the compiled form of one module body, method, or closure
// literal. It is immutable once produced by the compiler; a Closure (see
// pkg/vm) pairs a Function with the live upvalue array captured at the
// point the CLOSURE instruction ran.
type Function struct {
	// Code is the flat instruction stream.
	Code []byte
	// Constants is the constant pool; entries are float64, string, bool,
	// or *Function (for nested closures/methods).
	Constants []interface{}
	// Upvalues describes, in declaration order, how CLOSURE should
	// populate each upvalue slot for closures created over this function.
	Upvalues []UpvalueRef
	// Arity is the number of declared parameters (0 for top-level module
	// bodies).
	Arity int
	// MaxSlots is the maximum number of local-variable/stack slots this
	// function's frame needs beyond its arguments.
	MaxSlots int

	// Debug information. None of it affects execution semantics.
	SourcePath string
	DebugName  string
	// Lines[i] is the source line of the instruction starting at Code[i];
	// populated as a parallel run-length-free array indexed by byte offset
	// for simplicity (see Function.LineForOffset for the lookup).
	Lines []int
	// ModuleName names the module this function was compiled for. Empty
	// for the core module.
	ModuleName string
}

// LineForOffset returns the source line for the instruction at the given
// byte offset into Code, or 0 if no debug info was recorded.
func (f *Function) LineForOffset(offset int) int {
	if offset < 0 || offset >= len(f.Lines) {
		return 0
	}
	return f.Lines[offset]
}
