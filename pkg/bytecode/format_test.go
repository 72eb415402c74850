package bytecode

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeSimpleFunction(t *testing.T) {
	original := &Function{
		Code:       []byte{byte(OpConstant), 0, 0, byte(OpReturn)},
		Constants:  []interface{}{float64(42)},
		Arity:      0,
		MaxSlots:   1,
		SourcePath: "main.lm",
		DebugName:  "<script>",
		Lines:      []int{1, 1, 1, 1},
	}

	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("no data was encoded")
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !bytes.Equal(decoded.Code, original.Code) {
		t.Errorf("code mismatch: got %v, want %v", decoded.Code, original.Code)
	}
	if len(decoded.Constants) != 1 || decoded.Constants[0] != float64(42) {
		t.Errorf("constants mismatch: got %v", decoded.Constants)
	}
	if decoded.Arity != original.Arity || decoded.MaxSlots != original.MaxSlots {
		t.Errorf("arity/maxSlots mismatch: got %d/%d", decoded.Arity, decoded.MaxSlots)
	}
	if decoded.SourcePath != original.SourcePath || decoded.DebugName != original.DebugName {
		t.Errorf("debug info mismatch: got %q/%q", decoded.SourcePath, decoded.DebugName)
	}
}

func TestEncodeDecodeAllConstantKinds(t *testing.T) {
	nested := &Function{
		Code:      []byte{byte(OpNull), byte(OpReturn)},
		Constants: []interface{}{},
		DebugName: "inner",
	}
	original := &Function{
		Code: []byte{byte(OpReturn)},
		Constants: []interface{}{
			float64(123),
			"Hello, World!",
			true,
			false,
			nested,
		},
	}

	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded.Constants) != len(original.Constants) {
		t.Fatalf("constant count mismatch: got %d, want %d", len(decoded.Constants), len(original.Constants))
	}
	if decoded.Constants[0] != float64(123) {
		t.Errorf("number constant mismatch: got %v", decoded.Constants[0])
	}
	if decoded.Constants[1] != "Hello, World!" {
		t.Errorf("string constant mismatch: got %v", decoded.Constants[1])
	}
	if decoded.Constants[2] != true || decoded.Constants[3] != false {
		t.Errorf("bool constants mismatch: got %v, %v", decoded.Constants[2], decoded.Constants[3])
	}
	nestedFn, ok := decoded.Constants[4].(*Function)
	if !ok {
		t.Fatalf("expected nested *Function constant, got %T", decoded.Constants[4])
	}
	if nestedFn.DebugName != "inner" {
		t.Errorf("nested function debug name mismatch: got %q", nestedFn.DebugName)
	}
}

func TestEncodeDecodeUpvalues(t *testing.T) {
	original := &Function{
		Code: []byte{byte(OpReturn)},
		Upvalues: []UpvalueRef{
			{IsLocal: true, Index: 0},
			{IsLocal: false, Index: 2},
		},
	}

	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Upvalues) != 2 {
		t.Fatalf("expected 2 upvalues, got %d", len(decoded.Upvalues))
	}
	if decoded.Upvalues[0] != original.Upvalues[0] || decoded.Upvalues[1] != original.Upvalues[1] {
		t.Errorf("upvalues mismatch: got %v, want %v", decoded.Upvalues, original.Upvalues)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 1})
	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected error for bad magic number")
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	original := &Function{Code: []byte{byte(OpReturn)}}
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	raw[7] = 99 // stomp the low byte of the version field
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error for unsupported format version")
	}
}

func TestCallVariantAndNumArgs(t *testing.T) {
	for n := 0; n <= 16; n++ {
		op := CallVariant(n)
		if !IsCall(op) {
			t.Fatalf("CallVariant(%d) = %v, not recognized by IsCall", n, op)
		}
		if got := NumArgsForCall(op); got != n {
			t.Errorf("NumArgsForCall(CallVariant(%d)) = %d", n, got)
		}
	}
}

func TestSuperVariantAndNumArgs(t *testing.T) {
	for n := 0; n <= 16; n++ {
		op := SuperVariant(n)
		if !IsSuper(op) {
			t.Fatalf("SuperVariant(%d) = %v, not recognized by IsSuper", n, op)
		}
		if got := NumArgsForSuper(op); got != n {
			t.Errorf("NumArgsForSuper(SuperVariant(%d)) = %d", n, got)
		}
	}
}

func TestDisassembleIncludesNestedFunctions(t *testing.T) {
	nested := &Function{
		Code:      []byte{byte(OpNull), byte(OpReturn)},
		DebugName: "block",
	}
	fn := &Function{
		Code:      []byte{byte(OpConstant), 0, 0, byte(OpReturn)},
		Constants: []interface{}{nested},
		DebugName: "<script>",
	}
	out := Disassemble(fn)
	if out == "" {
		t.Fatal("expected non-empty disassembly")
	}
	if !bytes.Contains([]byte(out), []byte("block")) {
		t.Errorf("expected disassembly to mention nested function name, got:\n%s", out)
	}
}
