package vm

import "testing"

func TestCheckNumber(t *testing.T) {
	args := []Value{Null, NumberValue(3.5)}
	n, err := checkNumber(args, 1, "Right operand")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3.5 {
		t.Errorf("expected 3.5, got %v", n)
	}

	if _, err := checkNumber(args, 0, "Receiver"); err == nil {
		t.Fatal("expected error for non-number")
	}
}

func TestCheckInt(t *testing.T) {
	args := []Value{NumberValue(4), NumberValue(4.5)}
	n, err := checkInt(args, 0, "Count")
	if err != nil || n != 4 {
		t.Fatalf("expected 4, nil; got %d, %v", n, err)
	}
	if _, err := checkInt(args, 1, "Count"); err == nil {
		t.Fatal("expected error for fractional number")
	}
}

func TestCheckIndex(t *testing.T) {
	tests := []struct {
		index   float64
		count   int
		want    int
		wantErr bool
	}{
		{0, 3, 0, false},
		{2, 3, 2, false},
		{-1, 3, 2, false}, // negative indexes from the end
		{-3, 3, 0, false},
		{3, 3, 0, true}, // past the end
		{-4, 3, 0, true},
	}
	for _, tt := range tests {
		args := []Value{Null, NumberValue(tt.index)}
		got, err := checkIndex(args, 1, tt.count, "Index")
		if tt.wantErr {
			if err == nil {
				t.Errorf("index %v count %d: expected error", tt.index, tt.count)
			}
			continue
		}
		if err != nil {
			t.Errorf("index %v count %d: unexpected error %v", tt.index, tt.count, err)
			continue
		}
		if got != tt.want {
			t.Errorf("index %v count %d: got %d, want %d", tt.index, tt.count, got, tt.want)
		}
	}
}

func TestCheckString(t *testing.T) {
	vmInst := NewVM(Config{})
	args := []Value{Null, ObjValue(vmInst.newString("hi"))}
	s, err := checkString(args, 1, "Text")
	if err != nil || s != "hi" {
		t.Fatalf("expected \"hi\", nil; got %q, %v", s, err)
	}
	if _, err := checkString(args, 0, "Text"); err == nil {
		t.Fatal("expected error for non-string")
	}
}

func TestValueToString(t *testing.T) {
	vmInst := NewVM(Config{})

	tests := []struct {
		v    Value
		want string
	}{
		{Null, "null"},
		{True, "true"},
		{False, "false"},
		{NumberValue(1.5), "1.5"},
		{ObjValue(vmInst.newString("hi")), "hi"},
	}
	for _, tt := range tests {
		if got := valueToString(vmInst, tt.v); got != tt.want {
			t.Errorf("valueToString(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestListToStringQuotesStrings(t *testing.T) {
	vmInst := NewVM(Config{})
	l := vmInst.newList()
	l.Append(NumberValue(1))
	l.Append(ObjValue(vmInst.newString("a")))

	got := listToString(vmInst, l)
	want := `[1, "a"]`
	if got != want {
		t.Errorf("listToString = %q, want %q", got, want)
	}
}

func TestMapToString(t *testing.T) {
	vmInst := NewVM(Config{})
	m := vmInst.newMap()
	m.Set(ObjValue(vmInst.newString("k")), NumberValue(1))

	got := mapToString(vmInst, m)
	want := `{k: 1}`
	if got != want {
		t.Errorf("mapToString = %q, want %q", got, want)
	}
}

func TestRangeToString(t *testing.T) {
	incl := &ObjRange{From: 1, To: 3, IsInclusive: true}
	if got := rangeToString(incl); got != "1..3" {
		t.Errorf("inclusive range: got %q", got)
	}
	excl := &ObjRange{From: 1, To: 3, IsInclusive: false}
	if got := rangeToString(excl); got != "1...3" {
		t.Errorf("exclusive range: got %q", got)
	}
}

func TestIsValueType(t *testing.T) {
	vmInst := NewVM(Config{})
	if !isValueType(Null) || !isValueType(True) || !isValueType(NumberValue(1)) {
		t.Error("null, bool, and number should be value types")
	}
	if !isValueType(ObjValue(vmInst.newString("x"))) {
		t.Error("strings should be value types")
	}
	if isValueType(ObjValue(vmInst.newList())) {
		t.Error("lists should not be value types")
	}
}

func TestCodepointCountAndByteIndex(t *testing.T) {
	s := "héllo" // 'é' is 2 bytes in UTF-8
	if n := codepointCount(s); n != 5 {
		t.Fatalf("expected 5 codepoints, got %d", n)
	}
	if idx := byteIndexForCodepoint(s, 0); idx != 0 {
		t.Errorf("codepoint 0: expected byte 0, got %d", idx)
	}
	if idx := byteIndexForCodepoint(s, 2); idx != 3 {
		t.Errorf("codepoint 2 (after 2-byte é): expected byte 3, got %d", idx)
	}
}
