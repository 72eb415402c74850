package compiler

import (
	"testing"

	"github.com/lumenlang/lumen/pkg/bytecode"
	"github.com/lumenlang/lumen/pkg/vm"
)

func compileOK(t *testing.T, source string) *bytecode.Function {
	t.Helper()
	vmInst := vm.NewVM(vm.Config{Compile: Compile})
	fn, err := vmInst.CompileOnly("test", source)
	if err != nil {
		t.Fatalf("compile failed for %q: %v", source, err)
	}
	return fn
}

func compileErr(t *testing.T, source string) error {
	t.Helper()
	vmInst := vm.NewVM(vm.Config{Compile: Compile})
	_, err := vmInst.CompileOnly("test", source)
	if err == nil {
		t.Fatalf("expected compile error for %q", source)
	}
	return err
}

func TestCompileNumberLiteral(t *testing.T) {
	fn := compileOK(t, "42")

	want := []byte{byte(bytecode.OpConstant), 0, 0, byte(bytecode.OpReturn)}
	if string(fn.Code) != string(want) {
		t.Fatalf("unexpected code: got %v, want %v", fn.Code, want)
	}
	if len(fn.Constants) != 1 || fn.Constants[0] != float64(42) {
		t.Fatalf("expected constant 42, got %v", fn.Constants)
	}
}

func TestCompileStringLiteral(t *testing.T) {
	fn := compileOK(t, `"Hello"`)

	if bytecode.Opcode(fn.Code[0]) != bytecode.OpConstant {
		t.Fatalf("expected leading CONSTANT, got %v", bytecode.Opcode(fn.Code[0]))
	}
	if fn.Constants[0] != "Hello" {
		t.Fatalf("expected constant \"Hello\", got %v", fn.Constants[0])
	}
}

func TestCompileBooleanLiterals(t *testing.T) {
	tests := []struct {
		input  string
		wantOp bytecode.Opcode
	}{
		{"true", bytecode.OpTrue},
		{"false", bytecode.OpFalse},
	}

	for _, tt := range tests {
		fn := compileOK(t, tt.input)
		if bytecode.Opcode(fn.Code[0]) != tt.wantOp {
			t.Errorf("%q: expected %v, got %v", tt.input, tt.wantOp, bytecode.Opcode(fn.Code[0]))
		}
		if bytecode.Opcode(fn.Code[1]) != bytecode.OpReturn {
			t.Errorf("%q: expected trailing RETURN, got %v", tt.input, bytecode.Opcode(fn.Code[1]))
		}
	}
}

func TestCompileVarDeclAndLocalLoad(t *testing.T) {
	fn := compileOK(t, "if (true) {\n  var x = 1\n  x\n}")

	foundLoad := false
	for _, b := range fn.Code {
		op := bytecode.Opcode(b)
		if op == bytecode.OpLoadLocal || (op >= bytecode.OpLoadLocal0 && op <= bytecode.OpLoadLocal8) {
			foundLoad = true
		}
	}
	if !foundLoad {
		t.Fatalf("expected a LOAD_LOCAL in compiled code, got %v", fn.Code)
	}
}

func TestCompileArithmeticEmitsCall(t *testing.T) {
	fn := compileOK(t, "1 + 2")

	foundCall1 := false
	for _, b := range fn.Code {
		if bytecode.Opcode(b) == bytecode.OpCall1 {
			foundCall1 = true
		}
	}
	if !foundCall1 {
		t.Fatalf("expected binary + to compile to a CALL_1, got %v", fn.Code)
	}
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	fn := compileOK(t, `if (true) { 1 } else { 2 }`)

	hasJumpIf, hasJump := false, false
	for _, b := range fn.Code {
		switch bytecode.Opcode(b) {
		case bytecode.OpJumpIf:
			hasJumpIf = true
		case bytecode.OpJump:
			hasJump = true
		}
	}
	if !hasJumpIf || !hasJump {
		t.Fatalf("expected both JUMP_IF and JUMP in compiled if/else, got %v", fn.Code)
	}
}

func TestCompileWhileLoopEmitsLoop(t *testing.T) {
	fn := compileOK(t, `while (true) { 1 }`)

	hasLoop := false
	for _, b := range fn.Code {
		if bytecode.Opcode(b) == bytecode.OpLoop {
			hasLoop = true
		}
	}
	if !hasLoop {
		t.Fatalf("expected a LOOP instruction in compiled while, got %v", fn.Code)
	}
}

func TestCompileClassDeclEmitsClassAndMethods(t *testing.T) {
	fn := compileOK(t, `
class Animal {
  init(name) {
    _name = name
  }
  speak() { _name }
}
`)

	var ops []bytecode.Opcode
	for _, b := range fn.Code {
		ops = append(ops, bytecode.Opcode(b))
	}
	hasClass, hasMethod := false, false
	for _, op := range ops {
		if op == bytecode.OpClass {
			hasClass = true
		}
		if op == bytecode.OpMethodInstance {
			hasMethod = true
		}
	}
	if !hasClass {
		t.Fatalf("expected CLASS opcode, got %v", ops)
	}
	if !hasMethod {
		t.Fatalf("expected METHOD_INSTANCE opcode, got %v", ops)
	}
}

func TestCompileForeignMethodEmitsNoBody(t *testing.T) {
	fn := compileOK(t, `class Native { foreign hash(value) }`)

	// A foreign method's own Function is never produced: the class body
	// emits neither a CLOSURE nor a METHOD_INSTANCE for it, leaving the
	// binding to the host. Confirm no function constant sneaks in for it.
	for _, c := range fn.Constants {
		if nested, ok := c.(*bytecode.Function); ok {
			t.Fatalf("expected no compiled function for a foreign method, found %v", nested)
		}
	}
}

func TestCompileFnLitProducesClosure(t *testing.T) {
	fn := compileOK(t, `var f = { |a, b| a + b }`)

	hasClosure := false
	for _, b := range fn.Code {
		if bytecode.Opcode(b) == bytecode.OpClosure {
			hasClosure = true
		}
	}
	if !hasClosure {
		t.Fatalf("expected a CLOSURE instruction, got %v", fn.Code)
	}

	found := false
	for _, c := range fn.Constants {
		if nested, ok := c.(*bytecode.Function); ok && nested.Arity == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a nested 2-arity function constant, got %v", fn.Constants)
	}
}

func TestCompileReportsSyntaxErrors(t *testing.T) {
	compileErr(t, `var = `)
}

func TestCompileReportsUndefinedBreak(t *testing.T) {
	compileErr(t, `break`)
}
