// Package vm - bytecode disassembly support, used by cmd/lumen's
// "disassemble" command and by tests asserting on compiler output.
package vm

import (
	"fmt"
	"strings"

	"github.com/lumenlang/lumen/pkg/bytecode"
)

// Disassemble renders fn and every nested function constant it owns as
// human-readable text: one line per instruction, with decoded operands
// and, for CALL_n/SUPER_n, the interned method signature.
func (vm *VM) Disassemble(fn *bytecode.Function) string {
	var b strings.Builder
	vm.disassembleFunction(&b, fn, "")
	return b.String()
}

func (vm *VM) disassembleFunction(b *strings.Builder, fn *bytecode.Function, indent string) {
	name := fn.DebugName
	if name == "" {
		name = "(anonymous)"
	}
	fmt.Fprintf(b, "%s== %s (arity=%d, slots=%d) ==\n", indent, name, fn.Arity, fn.MaxSlots)

	code := fn.Code
	offset := 0
	for offset < len(code) {
		offset = vm.disassembleInstruction(b, fn, code, offset, indent)
	}

	for _, c := range fn.Constants {
		if nested, ok := c.(*bytecode.Function); ok {
			fmt.Fprintln(b)
			vm.disassembleFunction(b, nested, indent+"  ")
		}
	}
}

func (vm *VM) disassembleInstruction(b *strings.Builder, fn *bytecode.Function, code []byte, offset int, indent string) int {
	op := bytecode.Opcode(code[offset])
	line := fn.LineForOffset(offset)
	fmt.Fprintf(b, "%s%4d: [line %d] %-16s", indent, offset, line, op.String())
	next := offset + 1

	switch {
	case op == bytecode.OpConstant:
		idx := readU16At(code, next)
		fmt.Fprintf(b, " %4d '%v'", idx, constantText(fn.Constants, idx))
		next += 2
	case op == bytecode.OpLoadLocal || op == bytecode.OpStoreLocal ||
		op == bytecode.OpLoadFieldThis || op == bytecode.OpStoreFieldThis ||
		op == bytecode.OpLoadField || op == bytecode.OpStoreField:
		fmt.Fprintf(b, " %4d", code[next])
		next++
	case op == bytecode.OpLoadUpvalue || op == bytecode.OpStoreUpvalue:
		fmt.Fprintf(b, " %4d", code[next])
		next++
	case op == bytecode.OpLoadModuleVar || op == bytecode.OpStoreModuleVar:
		fmt.Fprintf(b, " %4d", readU16At(code, next))
		next += 2
	case op == bytecode.OpClass:
		fmt.Fprintf(b, " fields=%d", code[next])
		next++
	case op == bytecode.OpMethodInstance || op == bytecode.OpMethodStatic:
		sym := readU16At(code, next)
		fmt.Fprintf(b, " %4d '%s'", sym, vm.methods.Name(sym))
		next += 2
	case op == bytecode.OpJump || op == bytecode.OpLoop || op == bytecode.OpJumpIf || op == bytecode.OpAnd || op == bytecode.OpOr:
		delta := readU16At(code, next)
		target := next + 2 + delta
		if op == bytecode.OpLoop {
			target = next + 2 - delta
		}
		fmt.Fprintf(b, " %4d -> %d", delta, target)
		next += 2
	case op == bytecode.OpLoadModule:
		idx := readU16At(code, next)
		fmt.Fprintf(b, " %4d '%v'", idx, constantText(fn.Constants, idx))
		next += 2
	case op == bytecode.OpImportVariable:
		modIdx := readU16At(code, next)
		varIdx := readU16At(code, next+2)
		fmt.Fprintf(b, " module=%v var=%v", constantText(fn.Constants, modIdx), constantText(fn.Constants, varIdx))
		next += 4
	case op == bytecode.OpClosure:
		fnIdx := readU16At(code, next)
		next += 2
		fmt.Fprintf(b, " %4d", fnIdx)
		if nested, ok := fn.Constants[fnIdx].(*bytecode.Function); ok {
			for range nested.Upvalues {
				isLocal := code[next]
				idx := code[next+1]
				kind := "upvalue"
				if isLocal == 1 {
					kind = "local"
				}
				fmt.Fprintf(b, " (%s %d)", kind, idx)
				next += 2
			}
		}
	case bytecode.IsCall(op):
		sym := readU16At(code, next)
		fmt.Fprintf(b, " %4d '%s'", sym, vm.methods.Name(sym))
		next += 2
	case bytecode.IsSuper(op):
		sym := readU16At(code, next)
		fmt.Fprintf(b, " %4d '%s'", sym, vm.methods.Name(sym))
		next += 2
	}

	fmt.Fprintln(b)
	return next
}

func readU16At(code []byte, offset int) int {
	return int(code[offset])<<8 | int(code[offset+1])
}

func constantText(constants []interface{}, idx int) interface{} {
	if idx < 0 || idx >= len(constants) {
		return "?"
	}
	if _, ok := constants[idx].(*bytecode.Function); ok {
		return "<fn>"
	}
	return constants[idx]
}
