// This file implements serialization and deserialization for .lc bytecode
// files: the pre-compiled form of a lumen module.
//
// Binary Format Layout:
//
//	[Header]
//	  Magic Number (4 bytes): "LMFN" (0x4C4D464E)
//	  Version (4 bytes): format version, currently 1
//
//	[Function] (recursive; a module's top-level Function is the root)
//	  SourcePath (string)
//	  DebugName (string)
//	  ModuleName (string)
//	  Arity (4 bytes)
//	  MaxSlots (4 bytes)
//	  Constants: count (4 bytes), then each tagged constant
//	    0x01 number   (8 bytes, float64 bits)
//	    0x02 string   (string)
//	    0x03 bool     (1 byte)
//	    0x04 function (recursive Function)
//	  Upvalues: count (4 bytes), then each (isLocal byte, index byte)
//	  Code: length (4 bytes), raw bytes
//	  Lines: length (4 bytes), one int32 per code byte (0 if absent)
//
// A string is encoded as a 4-byte length followed by its UTF-8 bytes.
//
// This format exists purely so a frequently-run program can be pre-compiled
// once and loaded without re-running the lexer/parser/compiler on every
// invocation; it carries no semantics the VM doesn't already get from a
// freshly compiled Function.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

const (
	// MagicNumber identifies a lumen compiled-bytecode file.
	MagicNumber uint32 = 0x4C4D464E
	// FormatVersion is the current .lc format version.
	FormatVersion uint32 = 1
)

const (
	constNumber byte = 1 + iota
	constString
	constBool
	constFunction
)

// Encode writes fn and everything it recursively references to w in the
// .lc binary format.
func Encode(fn *Function, w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, MagicNumber); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, FormatVersion); err != nil {
		return err
	}
	return encodeFunction(fn, w)
}

func encodeFunction(fn *Function, w io.Writer) error {
	if err := writeString(w, fn.SourcePath); err != nil {
		return err
	}
	if err := writeString(w, fn.DebugName); err != nil {
		return err
	}
	if err := writeString(w, fn.ModuleName); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(fn.Arity)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(fn.MaxSlots)); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, int32(len(fn.Constants))); err != nil {
		return err
	}
	for _, c := range fn.Constants {
		if err := encodeConstant(c, w); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, int32(len(fn.Upvalues))); err != nil {
		return err
	}
	for _, u := range fn.Upvalues {
		isLocal := byte(0)
		if u.IsLocal {
			isLocal = 1
		}
		if _, err := w.Write([]byte{isLocal, u.Index}); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, int32(len(fn.Code))); err != nil {
		return err
	}
	if _, err := w.Write(fn.Code); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, int32(len(fn.Lines))); err != nil {
		return err
	}
	for _, l := range fn.Lines {
		if err := binary.Write(w, binary.BigEndian, int32(l)); err != nil {
			return err
		}
	}
	return nil
}

func encodeConstant(c interface{}, w io.Writer) error {
	switch v := c.(type) {
	case float64:
		if _, err := w.Write([]byte{constNumber}); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, v)
	case string:
		if _, err := w.Write([]byte{constString}); err != nil {
			return err
		}
		return writeString(w, v)
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		_, err := w.Write([]byte{constBool, b})
		return err
	case *Function:
		if _, err := w.Write([]byte{constFunction}); err != nil {
			return err
		}
		return encodeFunction(v, w)
	default:
		return fmt.Errorf("bytecode: cannot encode constant of type %T", c)
	}
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// Decode reads a Function (and everything it references) previously
// written by Encode.
func Decode(r io.Reader) (*Function, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("bytecode: reading magic number: %w", err)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("bytecode: bad magic number %#x", magic)
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("bytecode: reading format version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("bytecode: unsupported format version %d", version)
	}
	return decodeFunction(r)
}

func decodeFunction(r io.Reader) (*Function, error) {
	fn := &Function{}
	var err error
	if fn.SourcePath, err = readString(r); err != nil {
		return nil, err
	}
	if fn.DebugName, err = readString(r); err != nil {
		return nil, err
	}
	if fn.ModuleName, err = readString(r); err != nil {
		return nil, err
	}

	var arity, maxSlots int32
	if err := binary.Read(r, binary.BigEndian, &arity); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &maxSlots); err != nil {
		return nil, err
	}
	fn.Arity, fn.MaxSlots = int(arity), int(maxSlots)

	var numConstants int32
	if err := binary.Read(r, binary.BigEndian, &numConstants); err != nil {
		return nil, err
	}
	fn.Constants = make([]interface{}, numConstants)
	for i := range fn.Constants {
		c, err := decodeConstant(r)
		if err != nil {
			return nil, err
		}
		fn.Constants[i] = c
	}

	var numUpvalues int32
	if err := binary.Read(r, binary.BigEndian, &numUpvalues); err != nil {
		return nil, err
	}
	fn.Upvalues = make([]UpvalueRef, numUpvalues)
	for i := range fn.Upvalues {
		buf := make([]byte, 2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		fn.Upvalues[i] = UpvalueRef{IsLocal: buf[0] != 0, Index: buf[1]}
	}

	var codeLen int32
	if err := binary.Read(r, binary.BigEndian, &codeLen); err != nil {
		return nil, err
	}
	fn.Code = make([]byte, codeLen)
	if _, err := io.ReadFull(r, fn.Code); err != nil {
		return nil, err
	}

	var numLines int32
	if err := binary.Read(r, binary.BigEndian, &numLines); err != nil {
		return nil, err
	}
	fn.Lines = make([]int, numLines)
	for i := range fn.Lines {
		var l int32
		if err := binary.Read(r, binary.BigEndian, &l); err != nil {
			return nil, err
		}
		fn.Lines[i] = int(l)
	}

	return fn, nil
}

func decodeConstant(r io.Reader) (interface{}, error) {
	tag := make([]byte, 1)
	if _, err := io.ReadFull(r, tag); err != nil {
		return nil, err
	}
	switch tag[0] {
	case constNumber:
		var v float64
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err
	case constString:
		return readString(r)
	case constBool:
		b := make([]byte, 1)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case constFunction:
		return decodeFunction(r)
	default:
		return nil, fmt.Errorf("bytecode: unknown constant tag %#x", tag[0])
	}
}

func readString(r io.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Disassemble returns a human-readable listing of fn's instructions, one
// per line, recursing into nested function constants with increasing
// indentation. The `lumen disassemble` CLI command prints through the
// VM's own VM.Disassemble (pkg/vm/debugger.go) instead.
func Disassemble(fn *Function) string {
	var sb strings.Builder
	disassemble(fn, "", &sb)
	return sb.String()
}

func disassemble(fn *Function, indent string, sb *strings.Builder) {
	name := fn.DebugName
	if name == "" {
		name = "<script>"
	}
	sb.WriteString(fmt.Sprintf("%s== %s ==\n", indent, name))
	offset := 0
	for offset < len(fn.Code) {
		n := disassembleInstruction(fn, offset, indent, sb)
		offset += n
	}
	for _, c := range fn.Constants {
		if nested, ok := c.(*Function); ok {
			disassemble(nested, indent+"  ", sb)
		}
	}
}

func disassembleInstruction(fn *Function, offset int, indent string, sb *strings.Builder) int {
	op := Opcode(fn.Code[offset])
	line := fn.LineForOffset(offset)
	sb.WriteString(fmt.Sprintf("%s%4d (line %4d) %s", indent, offset, line, op))

	size := 1
	switch {
	case op == OpLoadLocal || op == OpStoreLocal || op == OpLoadUpvalue ||
		op == OpStoreUpvalue || op == OpLoadFieldThis || op == OpStoreFieldThis ||
		op == OpLoadField || op == OpStoreField || op == OpClass:
		sb.WriteString(fmt.Sprintf(" %d", fn.Code[offset+1]))
		size = 2
	case op == OpConstant || op == OpLoadModuleVar || op == OpStoreModuleVar ||
		op == OpJump || op == OpLoop || op == OpJumpIf || op == OpAnd || op == OpOr ||
		op == OpMethodInstance || op == OpMethodStatic || op == OpClosure ||
		op == OpLoadModule || bytecode_isCallOrSuper(op):
		u16 := uint16(fn.Code[offset+1])<<8 | uint16(fn.Code[offset+2])
		sb.WriteString(fmt.Sprintf(" %d", u16))
		size = 3
		if op == OpClosure {
			fnConst, _ := fn.Constants[u16].(*Function)
			if fnConst != nil {
				for i := 0; i < len(fnConst.Upvalues); i++ {
					isLocal := fn.Code[offset+size]
					index := fn.Code[offset+size+1]
					sb.WriteString(fmt.Sprintf(" (%d %d)", isLocal, index))
					size += 2
				}
			}
		}
	case op == OpImportVariable:
		nameConst := uint16(fn.Code[offset+1])<<8 | uint16(fn.Code[offset+2])
		varConst := uint16(fn.Code[offset+3])<<8 | uint16(fn.Code[offset+4])
		sb.WriteString(fmt.Sprintf(" %d %d", nameConst, varConst))
		size = 5
	}
	sb.WriteString("\n")
	return size
}

func bytecode_isCallOrSuper(op Opcode) bool {
	return IsCall(op) || IsSuper(op)
}
