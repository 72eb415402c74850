// Package compiler turns a lumen AST into the bytecode.Function tree the
// virtual machine executes. It is a single-pass tree-walking compiler in
// the tradition of clox/wren_compiler.c: one funcState per compiled
// function (module body, method, or block literal), chained through an
// enclosing pointer that upvalue resolution walks outward through, and a
// classState carried alongside while compiling a class body so that field
// access and super calls know what they are inside.
//
// Compile is the single entry point pkg/vm's Config.Compile wires to; it
// parses source itself so the VM package never needs to depend on the
// parser.
package compiler

import (
	"fmt"
	"strings"

	"github.com/lumenlang/lumen/pkg/ast"
	"github.com/lumenlang/lumen/pkg/bytecode"
	"github.com/lumenlang/lumen/pkg/parser"
	"github.com/lumenlang/lumen/pkg/symbol"
	"github.com/lumenlang/lumen/pkg/vm"
)

// Compile parses source and compiles it into a top-level Function bound to
// module. It matches vm.Config.Compile's signature exactly.
func Compile(vmInst *vm.VM, module *vm.ObjModule, sourcePath, source string) (*bytecode.Function, error) {
	prog, errs := parser.Parse(source)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(errs, "\n"))
	}

	c := &Compiler{vm: vmInst, module: module, sourcePath: sourcePath, classFieldCounts: map[string]int{}}
	fs := c.newFuncState(nil, true, nil)
	fs.debugName = "(script)"
	c.compileFunctionBody(fs, prog.Statements)
	if len(c.errors) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(c.errors, "\n"))
	}
	return c.finish(fs), nil
}

// Compiler holds the state shared across every funcState compiled for one
// source file: the target VM (for interning method symbols), the module
// being compiled into, a registry of how many fields each script-defined
// class declared (so a subclass's own fields start past its parent's),
// and any compile errors accumulated along the way.
type Compiler struct {
	vm               *vm.VM
	module           *vm.ObjModule
	sourcePath       string
	errors           []string
	classFieldCounts map[string]int
}

func (c *Compiler) errorf(line int, format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf("%s line %d: %s", c.sourcePath, line, fmt.Sprintf(format, args...)))
}

// localVar is one entry in a funcState's flat stack-slot list.
type localVar struct {
	name     string
	slot     int
	depth    int
	captured bool
}

// loopCtx tracks the bookkeeping a while/for-in loop needs for break and
// continue: where continuing jumps back to, how many locals break/continue
// must pop before jumping (since both skip the loop body's normal scope
// exit), and the forward jumps break emits that get patched once the
// loop's exit point is known.
type loopCtx struct {
	continueTarget int
	continueBase   int
	breakBase      int
	breakJumps     []int
}

// classState is carried by every funcState compiled while inside a class
// body: the field name -> absolute slot map (built by a pre-scan over
// every method's body before any method is compiled, so OP_CLASS's
// numFields operand and every LOAD_FIELD_THIS index are known up front).
type classState struct {
	name      string
	fieldSlot map[string]int
}

// funcState is the compiler's state for one compiled Function: module
// body, method, or block literal. enclosing is nil for the module script
// itself and for every method (methods do not close over anything); a
// block literal's enclosing is whatever funcState was active when the
// FnLit was parsed, which resolveUpvalue walks to find captured locals.
type funcState struct {
	enclosing      *funcState
	isModuleScript bool
	classCtx       *classState

	code      []byte
	lines     []int
	constants []interface{}
	upvalues  []bytecode.UpvalueRef

	locals     []localVar
	scopeDepth int
	nextSlot   int
	maxSlots   int

	arity     int
	debugName string

	// methodSignature and paramNames are set only for a funcState that is
	// itself a method's own frame, used to resolve a bare `super` call
	// (no dot, no explicit args) to "call the superclass's same-named
	// method with my own parameters".
	methodSignature string
	paramNames      []string

	loopStack []loopCtx
}

func (fs *funcState) paramName(i int) string {
	return fs.paramNames[i]
}

func (c *Compiler) newFuncState(enclosing *funcState, isModuleScript bool, classCtx *classState) *funcState {
	return &funcState{enclosing: enclosing, isModuleScript: isModuleScript, classCtx: classCtx, nextSlot: 1, maxSlots: 1}
}

func (c *Compiler) finish(fs *funcState) *bytecode.Function {
	moduleName := ""
	if c.module != nil {
		moduleName = c.module.DisplayName()
	}
	return &bytecode.Function{
		Code:       fs.code,
		Constants:  fs.constants,
		Upvalues:   fs.upvalues,
		Arity:      fs.arity,
		MaxSlots:   fs.maxSlots,
		SourcePath: c.sourcePath,
		DebugName:  fs.debugName,
		Lines:      fs.lines,
		ModuleName: moduleName,
	}
}

// ---- low-level emission ------------------------------------------------------

func (c *Compiler) emitByte(fs *funcState, b byte, line int) int {
	fs.code = append(fs.code, b)
	fs.lines = append(fs.lines, line)
	return len(fs.code) - 1
}

func (c *Compiler) emitOp(fs *funcState, op bytecode.Opcode, line int) int {
	return c.emitByte(fs, byte(op), line)
}

func (c *Compiler) emitU8(fs *funcState, v int, line int) {
	c.emitByte(fs, byte(v), line)
}

func (c *Compiler) emitU16(fs *funcState, v int, line int) {
	c.emitByte(fs, byte(v>>8), line)
	c.emitByte(fs, byte(v), line)
}

func (c *Compiler) addConstant(fs *funcState, v interface{}) int {
	fs.constants = append(fs.constants, v)
	return len(fs.constants) - 1
}

func (c *Compiler) emitConstant(fs *funcState, v interface{}, line int) {
	idx := c.addConstant(fs, v)
	c.emitOp(fs, bytecode.OpConstant, line)
	c.emitU16(fs, idx, line)
}

// emitJump emits op followed by a placeholder u16 operand, returning the
// operand's offset for a later patchJump call.
func (c *Compiler) emitJump(fs *funcState, op bytecode.Opcode, line int) int {
	c.emitOp(fs, op, line)
	idx := len(fs.code)
	c.emitU16(fs, 0xFFFF, line)
	return idx
}

func (c *Compiler) patchJump(fs *funcState, operandIdx int) {
	off := len(fs.code) - (operandIdx + 2)
	fs.code[operandIdx] = byte(off >> 8)
	fs.code[operandIdx+1] = byte(off)
}

func (c *Compiler) emitLoop(fs *funcState, loopStart int, line int) {
	start := len(fs.code)
	c.emitOp(fs, bytecode.OpLoop, line)
	off := start + 3 - loopStart
	c.emitU16(fs, off, line)
}

func (c *Compiler) emitCall(fs *funcState, numArgs int, sig string, line int) {
	sym := c.vm.MethodSymbol(sig)
	c.emitOp(fs, bytecode.CallVariant(numArgs), line)
	c.emitU16(fs, sym, line)
}

func (c *Compiler) emitSuperCall(fs *funcState, numArgs int, sig string, line int) {
	sym := c.vm.MethodSymbol(sig)
	c.emitOp(fs, bytecode.SuperVariant(numArgs), line)
	c.emitU16(fs, sym, line)
}

func (c *Compiler) emitLoadLocal(fs *funcState, slot int, line int) {
	c.emitOp(fs, bytecode.OpLoadLocal, line)
	c.emitU8(fs, slot, line)
}

// ---- scopes and locals --------------------------------------------------

func (c *Compiler) beginScope(fs *funcState) {
	fs.scopeDepth++
}

// endScope pops every local declared in the scope just ending, closing any
// that were captured by a nested closure rather than merely popping them.
func (c *Compiler) endScope(fs *funcState, line int) {
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		if last.captured {
			c.emitOp(fs, bytecode.OpCloseUpvalue, line)
		} else {
			c.emitOp(fs, bytecode.OpPop, line)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
		fs.nextSlot--
	}
}

// emitPopsTo emits the same pop/close sequence as endScope would, without
// actually truncating fs.locals, for a break/continue jump that leaves a
// scope early.
func (c *Compiler) emitPopsTo(fs *funcState, toLen int, line int) {
	for i := len(fs.locals) - 1; i >= toLen; i-- {
		if fs.locals[i].captured {
			c.emitOp(fs, bytecode.OpCloseUpvalue, line)
		} else {
			c.emitOp(fs, bytecode.OpPop, line)
		}
	}
}

// declareLocal reserves the next stack slot for name at the current scope
// depth. The caller has already emitted the code that leaves the local's
// initial value sitting on top of the stack; no store instruction is
// needed since that stack position becomes the local.
func (c *Compiler) declareLocal(fs *funcState, name string) int {
	slot := fs.nextSlot
	fs.locals = append(fs.locals, localVar{name: name, slot: slot, depth: fs.scopeDepth})
	fs.nextSlot++
	if fs.nextSlot > fs.maxSlots {
		fs.maxSlots = fs.nextSlot
	}
	return slot
}

func (c *Compiler) resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i].slot, true
		}
	}
	return 0, false
}

func (c *Compiler) markCaptured(fs *funcState, slot int) {
	for i := range fs.locals {
		if fs.locals[i].slot == slot {
			fs.locals[i].captured = true
			return
		}
	}
}

func (c *Compiler) addUpvalue(fs *funcState, isLocal bool, index int) int {
	for i, u := range fs.upvalues {
		if u.IsLocal == isLocal && int(u.Index) == index {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, bytecode.UpvalueRef{IsLocal: isLocal, Index: byte(index)})
	return len(fs.upvalues) - 1
}

// resolveUpvalue looks for name in every enclosing funcState, capturing it
// through the chain of closures between its home scope and fs.
func (c *Compiler) resolveUpvalue(fs *funcState, name string) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if slot, ok := c.resolveLocal(fs.enclosing, name); ok {
		c.markCaptured(fs.enclosing, slot)
		return c.addUpvalue(fs, true, slot), true
	}
	if idx, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, false, idx), true
	}
	return 0, false
}

func (fs *funcState) isModuleTopLevel() bool {
	return fs.isModuleScript && fs.scopeDepth == 0
}

// inOwnMethodFrame reports whether fs is itself the method's own
// funcState (slot 0 is "this" directly here), as opposed to a nested
// block literal that must reach this via a captured upvalue.
func inOwnMethodFrame(fs *funcState) bool {
	for _, l := range fs.locals {
		if l.name == "this" && l.slot == 0 {
			return true
		}
	}
	return false
}

// ---- statements --------------------------------------------------------

// compileFunctionBody compiles the body of a module script, method, or
// block literal: every statement but a trailing bare expression statement
// pops its value, and the function always ends in RETURN. A body that does
// not end in a bare expression statement implicitly returns null.
func (c *Compiler) compileFunctionBody(fs *funcState, stmts []ast.Stmt) {
	for i, stmt := range stmts {
		if i == len(stmts)-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				c.compileExpr(fs, es.X)
				c.emitOp(fs, bytecode.OpReturn, es.Line)
				return
			}
		}
		c.compileStmt(fs, stmt)
	}
	c.emitOp(fs, bytecode.OpNull, 0)
	c.emitOp(fs, bytecode.OpReturn, 0)
}

// compileBlockStmts compiles a plain control-flow body (if/while/for, or a
// nested `{ }`): every statement is compiled for effect only, with no
// implicit return.
func (c *Compiler) compileBlockStmts(fs *funcState, stmts []ast.Stmt) {
	for _, stmt := range stmts {
		c.compileStmt(fs, stmt)
	}
}

func (c *Compiler) compileStmt(fs *funcState, stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileVarDecl(fs, s)
	case *ast.ExprStmt:
		c.compileExpr(fs, s.X)
		c.emitOp(fs, bytecode.OpPop, s.Line)
	case *ast.BlockStmt:
		c.beginScope(fs)
		c.compileBlockStmts(fs, s.Stmts)
		c.endScope(fs, s.Line)
	case *ast.IfStmt:
		c.compileIf(fs, s)
	case *ast.WhileStmt:
		c.compileWhile(fs, s)
	case *ast.ForInStmt:
		c.compileForIn(fs, s)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.compileExpr(fs, s.Value)
		} else {
			c.emitOp(fs, bytecode.OpNull, s.Line)
		}
		c.emitOp(fs, bytecode.OpReturn, s.Line)
	case *ast.BreakStmt:
		c.compileBreak(fs, s.Line)
	case *ast.ContinueStmt:
		c.compileContinue(fs, s.Line)
	case *ast.ImportStmt:
		c.compileImport(fs, s)
	case *ast.ClassDecl:
		c.compileClassDecl(fs, s)
	default:
		c.errorf(0, "unknown statement type %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(fs *funcState, d *ast.VarDecl) {
	if d.Init != nil {
		c.compileExpr(fs, d.Init)
	} else {
		c.emitOp(fs, bytecode.OpNull, d.Line)
	}
	c.bindNewVariable(fs, d.Name, d.Line)
}

// bindNewVariable stores the value currently on top of the stack into a
// brand-new binding for name: a module variable (popping the temporary)
// if fs is the module script at depth 0, otherwise a local (keeping the
// value in place as the local's slot).
func (c *Compiler) bindNewVariable(fs *funcState, name string, line int) {
	if fs.isModuleTopLevel() {
		slot := c.module.DeclareVariable(name)
		c.emitOp(fs, bytecode.OpStoreModuleVar, line)
		c.emitU16(fs, slot, line)
		c.emitOp(fs, bytecode.OpPop, line)
		return
	}
	c.declareLocal(fs, name)
}

func (c *Compiler) compileIf(fs *funcState, s *ast.IfStmt) {
	c.compileExpr(fs, s.Cond)
	elseJump := c.emitJump(fs, bytecode.OpJumpIf, s.Line)
	c.compileStmt(fs, s.Then)
	if s.Else == nil {
		c.patchJump(fs, elseJump)
		return
	}
	doneJump := c.emitJump(fs, bytecode.OpJump, s.Line)
	c.patchJump(fs, elseJump)
	c.compileStmt(fs, s.Else)
	c.patchJump(fs, doneJump)
}

func (c *Compiler) compileWhile(fs *funcState, s *ast.WhileStmt) {
	base := len(fs.locals)
	loopStart := len(fs.code)
	c.compileExpr(fs, s.Cond)
	exitJump := c.emitJump(fs, bytecode.OpJumpIf, s.Line)

	fs.loopStack = append(fs.loopStack, loopCtx{continueTarget: loopStart, continueBase: base, breakBase: base})
	c.compileStmt(fs, s.Body)
	lc := fs.loopStack[len(fs.loopStack)-1]
	fs.loopStack = fs.loopStack[:len(fs.loopStack)-1]

	c.emitLoop(fs, loopStart, s.Line)
	c.patchJump(fs, exitJump)
	for _, j := range lc.breakJumps {
		c.patchJump(fs, j)
	}
}

// compileForIn desugars `for (name in iterable) body` into the
// iterate/iteratorValue protocol: a hidden sequence local, a hidden
// cursor local re-assigned by iterate(_) each pass, and JUMP_IF reusing
// the cursor's truthiness (iterate returns false once exhausted) to exit.
func (c *Compiler) compileForIn(fs *funcState, s *ast.ForInStmt) {
	c.beginScope(fs)
	base := len(fs.locals)

	c.compileExpr(fs, s.Iterable)
	seqSlot := c.declareLocal(fs, " seq")
	c.emitOp(fs, bytecode.OpNull, s.Line)
	iterSlot := c.declareLocal(fs, " iter")

	loopStart := len(fs.code)
	c.emitLoadLocal(fs, seqSlot, s.Line)
	c.emitLoadLocal(fs, iterSlot, s.Line)
	c.emitCall(fs, 1, "iterate(_)", s.Line)
	c.emitOp(fs, bytecode.OpStoreLocal, s.Line)
	c.emitU8(fs, iterSlot, s.Line)
	exitJump := c.emitJump(fs, bytecode.OpJumpIf, s.Line)

	fs.loopStack = append(fs.loopStack, loopCtx{continueTarget: loopStart, continueBase: base + 2, breakBase: base + 2})

	c.beginScope(fs)
	c.emitLoadLocal(fs, seqSlot, s.Line)
	c.emitLoadLocal(fs, iterSlot, s.Line)
	c.emitCall(fs, 1, "iteratorValue(_)", s.Line)
	c.declareLocal(fs, s.Name)
	c.compileStmt(fs, s.Body)
	c.endScope(fs, s.Line)

	lc := fs.loopStack[len(fs.loopStack)-1]
	fs.loopStack = fs.loopStack[:len(fs.loopStack)-1]

	c.emitLoop(fs, loopStart, s.Line)
	c.patchJump(fs, exitJump)
	for _, j := range lc.breakJumps {
		c.patchJump(fs, j)
	}

	c.endScope(fs, s.Line)
}

func (c *Compiler) compileBreak(fs *funcState, line int) {
	if len(fs.loopStack) == 0 {
		c.errorf(line, "'break' outside of a loop")
		return
	}
	i := len(fs.loopStack) - 1
	c.emitPopsTo(fs, fs.loopStack[i].breakBase, line)
	j := c.emitJump(fs, bytecode.OpJump, line)
	fs.loopStack[i].breakJumps = append(fs.loopStack[i].breakJumps, j)
}

func (c *Compiler) compileContinue(fs *funcState, line int) {
	if len(fs.loopStack) == 0 {
		c.errorf(line, "'continue' outside of a loop")
		return
	}
	lc := fs.loopStack[len(fs.loopStack)-1]
	c.emitPopsTo(fs, lc.continueBase, line)
	c.emitLoop(fs, lc.continueTarget, line)
}

func (c *Compiler) compileImport(fs *funcState, s *ast.ImportStmt) {
	nameIdx := c.addConstant(fs, s.Module)
	c.emitOp(fs, bytecode.OpLoadModule, s.Line)
	c.emitU16(fs, nameIdx, s.Line)
	c.emitOp(fs, bytecode.OpPop, s.Line)

	for _, varName := range s.Variables {
		modIdx := c.addConstant(fs, s.Module)
		varIdx := c.addConstant(fs, varName)
		c.emitOp(fs, bytecode.OpImportVariable, s.Line)
		c.emitU16(fs, modIdx, s.Line)
		c.emitU16(fs, varIdx, s.Line)
		c.bindNewVariable(fs, varName, s.Line)
	}
}

// ---- classes -------------------------------------------------------------

func (c *Compiler) compileClassDecl(fs *funcState, d *ast.ClassDecl) {
	// OP_CLASS pops super then name (in that order), so the name constant
	// must be pushed first and the superclass expression second.
	c.emitConstant(fs, d.Name, d.Line)
	if d.Super != nil {
		c.compileExpr(fs, d.Super)
	} else {
		c.compileIdentLoad(fs, "Object", d.Line)
	}

	superFields := c.superFieldCount(d.Super)
	fields := c.scanFields(d, superFields)
	cs := &classState{name: d.Name, fieldSlot: fields}
	c.classFieldCounts[d.Name] = superFields + len(fields)

	c.emitOp(fs, bytecode.OpClass, d.Line)
	c.emitU8(fs, len(fields), d.Line)

	for _, m := range d.Methods {
		c.compileMethod(fs, cs, m)
	}

	c.bindNewVariable(fs, d.Name, d.Line)
}

func (c *Compiler) superFieldCount(super ast.Expr) int {
	if super == nil {
		return 0
	}
	if id, ok := super.(*ast.Ident); ok {
		if n, ok := c.classFieldCounts[id.Name]; ok {
			return n
		}
	}
	return 0
}

// scanFields walks every method body in d looking for `_name` field
// references, assigning each a dense index in first-seen order starting
// past the superclass's own field count. This must happen before any
// method body is compiled: OP_CLASS's numFields operand and every
// LOAD_FIELD_THIS/STORE_FIELD_THIS index depend on it.
func (c *Compiler) scanFields(d *ast.ClassDecl, offset int) map[string]int {
	fields := map[string]int{}
	var walkExpr func(e ast.Expr)
	var walkStmt func(s ast.Stmt)

	record := func(name string) {
		if strings.HasPrefix(name, "_") {
			if _, ok := fields[name]; !ok {
				fields[name] = offset + len(fields)
			}
		}
	}

	walkStmt = func(s ast.Stmt) {
		switch n := s.(type) {
		case *ast.VarDecl:
			if n.Init != nil {
				walkExpr(n.Init)
			}
		case *ast.ExprStmt:
			walkExpr(n.X)
		case *ast.BlockStmt:
			for _, st := range n.Stmts {
				walkStmt(st)
			}
		case *ast.IfStmt:
			walkExpr(n.Cond)
			walkStmt(n.Then)
			if n.Else != nil {
				walkStmt(n.Else)
			}
		case *ast.WhileStmt:
			walkExpr(n.Cond)
			walkStmt(n.Body)
		case *ast.ForInStmt:
			walkExpr(n.Iterable)
			walkStmt(n.Body)
		case *ast.ReturnStmt:
			if n.Value != nil {
				walkExpr(n.Value)
			}
		}
	}

	walkExpr = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.Ident:
			record(n.Name)
		case *ast.Assign:
			if id, ok := n.Target.(*ast.Ident); ok {
				record(id.Name)
			} else {
				walkExpr(n.Target)
			}
			walkExpr(n.Value)
		case *ast.UnaryExpr:
			walkExpr(n.Operand)
		case *ast.BinaryExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.LogicalExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.IsExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.ListLit:
			for _, el := range n.Elements {
				walkExpr(el)
			}
		case *ast.RangeLit:
			walkExpr(n.From)
			walkExpr(n.To)
		case *ast.CallExpr:
			if n.Receiver != nil {
				walkExpr(n.Receiver)
			}
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.SubscriptExpr:
			walkExpr(n.Receiver)
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.NewExpr:
			walkExpr(n.Class)
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.FnLit:
			for _, st := range n.Body {
				walkStmt(st)
			}
		}
	}

	for _, m := range d.Methods {
		for _, st := range m.Body {
			walkStmt(st)
		}
	}
	return fields
}

func (c *Compiler) compileMethod(fs *funcState, cs *classState, m *ast.MethodDecl) {
	// Foreign methods have no body to compile: the host binds their
	// implementation directly against the class through the embedding
	// API once the class has been created, keyed on this signature.
	if m.Foreign {
		return
	}

	mfs := c.newFuncState(nil, false, cs)
	mfs.debugName = cs.name + "." + m.Signature
	mfs.arity = len(m.Params)
	mfs.methodSignature = m.Signature
	mfs.paramNames = m.Params

	if !m.IsStatic {
		mfs.locals = append(mfs.locals, localVar{name: "this", slot: 0, depth: 0})
	}
	for _, p := range m.Params {
		c.declareLocal(mfs, p)
	}

	c.compileFunctionBody(mfs, m.Body)
	fn := c.finish(mfs)
	fnIdx := c.addConstant(fs, fn)
	c.emitOp(fs, bytecode.OpClosure, m.Line)
	c.emitU16(fs, fnIdx, m.Line)
	for _, u := range mfs.upvalues {
		if u.IsLocal {
			c.emitU8(fs, 1, m.Line)
		} else {
			c.emitU8(fs, 0, m.Line)
		}
		c.emitU8(fs, int(u.Index), m.Line)
	}

	sym := c.vm.MethodSymbol(m.Signature)
	if m.IsStatic {
		c.emitOp(fs, bytecode.OpMethodStatic, m.Line)
	} else {
		c.emitOp(fs, bytecode.OpMethodInstance, m.Line)
	}
	c.emitU16(fs, sym, m.Line)
}

// ---- expressions ---------------------------------------------------------

func (c *Compiler) compileExpr(fs *funcState, e ast.Expr) {
	switch n := e.(type) {
	case *ast.NumberLit:
		c.emitConstant(fs, n.Value, n.Line)
	case *ast.StringLit:
		c.emitConstant(fs, n.Value, n.Line)
	case *ast.BoolLit:
		if n.Value {
			c.emitOp(fs, bytecode.OpTrue, n.Line)
		} else {
			c.emitOp(fs, bytecode.OpFalse, n.Line)
		}
	case *ast.NullLit:
		c.emitOp(fs, bytecode.OpNull, n.Line)
	case *ast.Ident:
		c.compileIdentLoad(fs, n.Name, n.Line)
	case *ast.ThisExpr:
		c.pushThis(fs, n.Line)
	case *ast.SuperExpr:
		c.compileBareSuper(fs, n.Line)
	case *ast.ListLit:
		c.compileListLit(fs, n)
	case *ast.RangeLit:
		c.compileRange(fs, n)
	case *ast.Assign:
		c.compileAssign(fs, n.Target, n.Value, n.Line)
	case *ast.UnaryExpr:
		c.compileUnary(fs, n)
	case *ast.BinaryExpr:
		c.compileBinary(fs, n)
	case *ast.LogicalExpr:
		c.compileLogical(fs, n)
	case *ast.IsExpr:
		c.compileExpr(fs, n.Left)
		c.compileExpr(fs, n.Right)
		c.emitOp(fs, bytecode.OpIs, n.Line)
	case *ast.CallExpr:
		c.compileCall(fs, n)
	case *ast.SubscriptExpr:
		c.compileExpr(fs, n.Receiver)
		for _, a := range n.Args {
			c.compileExpr(fs, a)
		}
		sig := "[" + underscoreList(len(n.Args)) + "]"
		c.emitCall(fs, len(n.Args), sig, n.Line)
	case *ast.NewExpr:
		c.compileNew(fs, n)
	case *ast.FnLit:
		c.compileFnLit(fs, n)
	default:
		c.errorf(0, "unknown expression type %T", e)
	}
}

func (c *Compiler) compileListLit(fs *funcState, n *ast.ListLit) {
	c.compileIdentLoad(fs, "List", n.Line)
	c.emitCall(fs, 0, "new()", n.Line)
	for _, el := range n.Elements {
		c.emitOp(fs, bytecode.OpDup, n.Line)
		c.compileExpr(fs, el)
		c.emitCall(fs, 1, "add(_)", n.Line)
		c.emitOp(fs, bytecode.OpPop, n.Line)
	}
}

// compileRange pushes the Range class as receiver, then from/to/
// isInclusive as arguments, then dispatches its static constructor.
func (c *Compiler) compileRange(fs *funcState, n *ast.RangeLit) {
	c.compileIdentLoad(fs, "Range", n.Line)
	c.compileExpr(fs, n.From)
	c.compileExpr(fs, n.To)
	if n.Inclusive {
		c.emitOp(fs, bytecode.OpTrue, n.Line)
	} else {
		c.emitOp(fs, bytecode.OpFalse, n.Line)
	}
	c.emitCall(fs, 3, "new(_,_,_)", n.Line)
}

func (c *Compiler) pushThis(fs *funcState, line int) {
	if slot, ok := c.resolveLocal(fs, "this"); ok {
		c.emitLoadLocal(fs, slot, line)
		return
	}
	if idx, ok := c.resolveUpvalue(fs, "this"); ok {
		c.emitOp(fs, bytecode.OpLoadUpvalue, line)
		c.emitU8(fs, idx, line)
		return
	}
	c.errorf(line, "'this' outside of a method")
	c.emitOp(fs, bytecode.OpNull, line)
}

// compileIdentLoad resolves name against locals, upvalues, fields, and
// finally module scope, falling back (inside a method) to an implicit
// this.name getter call, the same rule real Wren uses for a bare name
// that doesn't resolve any other way.
func (c *Compiler) compileIdentLoad(fs *funcState, name string, line int) {
	if strings.HasPrefix(name, "_") {
		c.compileFieldLoad(fs, name, line)
		return
	}
	if name == "this" {
		c.pushThis(fs, line)
		return
	}
	if slot, ok := c.resolveLocal(fs, name); ok {
		c.emitLoadLocal(fs, slot, line)
		return
	}
	if idx, ok := c.resolveUpvalue(fs, name); ok {
		c.emitOp(fs, bytecode.OpLoadUpvalue, line)
		c.emitU8(fs, idx, line)
		return
	}
	if slot := c.module.Variables.Find(name); slot != symbol.NotFound {
		c.emitOp(fs, bytecode.OpLoadModuleVar, line)
		c.emitU16(fs, slot, line)
		return
	}
	if fs.classCtx != nil {
		c.pushThis(fs, line)
		c.emitCall(fs, 0, name, line)
		return
	}
	slot := c.module.DeclareVariable(name)
	c.emitOp(fs, bytecode.OpLoadModuleVar, line)
	c.emitU16(fs, slot, line)
}

func (c *Compiler) fieldSlot(fs *funcState, name string, line int) int {
	if fs.classCtx == nil {
		c.errorf(line, "field %q used outside of a class", name)
		return 0
	}
	if idx, ok := fs.classCtx.fieldSlot[name]; ok {
		return idx
	}
	c.errorf(line, "unknown field %q", name)
	return 0
}

func (c *Compiler) compileFieldLoad(fs *funcState, name string, line int) {
	idx := c.fieldSlot(fs, name, line)
	if inOwnMethodFrame(fs) {
		c.emitOp(fs, bytecode.OpLoadFieldThis, line)
		c.emitU8(fs, idx, line)
		return
	}
	c.pushThis(fs, line)
	c.emitOp(fs, bytecode.OpLoadField, line)
	c.emitU8(fs, idx, line)
}

func (c *Compiler) compileFieldStore(fs *funcState, name string, valueExpr ast.Expr, line int) {
	idx := c.fieldSlot(fs, name, line)
	if inOwnMethodFrame(fs) {
		c.compileExpr(fs, valueExpr)
		c.emitOp(fs, bytecode.OpStoreFieldThis, line)
		c.emitU8(fs, idx, line)
		return
	}
	c.compileExpr(fs, valueExpr)
	c.pushThis(fs, line)
	c.emitOp(fs, bytecode.OpStoreField, line)
	c.emitU8(fs, idx, line)
}

func (c *Compiler) compileAssign(fs *funcState, target ast.Expr, value ast.Expr, line int) {
	switch t := target.(type) {
	case *ast.Ident:
		if strings.HasPrefix(t.Name, "_") {
			c.compileFieldStore(fs, t.Name, value, line)
			return
		}
		if slot, ok := c.resolveLocal(fs, t.Name); ok {
			c.compileExpr(fs, value)
			c.emitOp(fs, bytecode.OpStoreLocal, line)
			c.emitU8(fs, slot, line)
			return
		}
		if idx, ok := c.resolveUpvalue(fs, t.Name); ok {
			c.compileExpr(fs, value)
			c.emitOp(fs, bytecode.OpStoreUpvalue, line)
			c.emitU8(fs, idx, line)
			return
		}
		slot := c.module.DeclareVariable(t.Name)
		c.compileExpr(fs, value)
		c.emitOp(fs, bytecode.OpStoreModuleVar, line)
		c.emitU16(fs, slot, line)

	case *ast.CallExpr:
		if t.Receiver != nil {
			c.compileExpr(fs, t.Receiver)
		} else {
			c.pushThis(fs, line)
		}
		c.compileExpr(fs, value)
		c.emitCall(fs, 1, t.Name+"=(_)", line)

	case *ast.SubscriptExpr:
		c.compileExpr(fs, t.Receiver)
		for _, a := range t.Args {
			c.compileExpr(fs, a)
		}
		c.compileExpr(fs, value)
		sig := "[" + underscoreList(len(t.Args)) + "]=(_)"
		c.emitCall(fs, len(t.Args)+1, sig, line)

	default:
		c.errorf(line, "invalid assignment target %T", target)
	}
}

func (c *Compiler) compileUnary(fs *funcState, n *ast.UnaryExpr) {
	c.compileExpr(fs, n.Operand)
	c.emitCall(fs, 0, n.Op, n.Line)
}

func (c *Compiler) compileBinary(fs *funcState, n *ast.BinaryExpr) {
	c.compileExpr(fs, n.Left)
	c.compileExpr(fs, n.Right)
	c.emitCall(fs, 1, n.Op+"(_)", n.Line)
}

func (c *Compiler) compileLogical(fs *funcState, n *ast.LogicalExpr) {
	c.compileExpr(fs, n.Left)
	if n.Op == "&&" {
		j := c.emitJump(fs, bytecode.OpAnd, n.Line)
		c.compileExpr(fs, n.Right)
		c.patchJump(fs, j)
		return
	}
	j := c.emitJump(fs, bytecode.OpOr, n.Line)
	c.compileExpr(fs, n.Right)
	c.patchJump(fs, j)
}

// compileBareSuper handles a standalone `super` expression with neither a
// dot nor a call: it re-dispatches the enclosing method's own signature to
// the superclass, forwarding the method's own parameters unchanged.
func (c *Compiler) compileBareSuper(fs *funcState, line int) {
	home := fs
	for home != nil && home.methodSignature == "" {
		home = home.enclosing
	}
	if home == nil {
		c.errorf(line, "'super' outside of a method")
		c.emitOp(fs, bytecode.OpNull, line)
		return
	}
	c.pushThis(fs, line)
	for i := 0; i < home.arity; i++ {
		c.compileIdentLoad(fs, home.paramName(i), line)
	}
	c.emitSuperCall(fs, home.arity, home.methodSignature, line)
}

func (c *Compiler) compileCall(fs *funcState, call *ast.CallExpr) {
	isSuper := false
	if _, ok := call.Receiver.(*ast.SuperExpr); ok {
		isSuper = true
		c.pushThis(fs, call.Line)
	} else if call.Receiver != nil {
		c.compileExpr(fs, call.Receiver)
	} else {
		c.pushThis(fs, call.Line)
	}
	for _, a := range call.Args {
		c.compileExpr(fs, a)
	}
	sig := call.Name
	if call.HasParens {
		sig += "(" + underscoreList(len(call.Args)) + ")"
	}
	if isSuper {
		c.emitSuperCall(fs, len(call.Args), sig, call.Line)
	} else {
		c.emitCall(fs, len(call.Args), sig, call.Line)
	}
}

// compileNew compiles `new ClassExpr` / `new ClassExpr(args)`: allocate a
// bare instance via the class's "<instantiate>" static primitive, then (if
// args were given) dup the instance, run "init(...)" on the duplicate, and
// discard init's own return value, leaving the original instance.
func (c *Compiler) compileNew(fs *funcState, n *ast.NewExpr) {
	c.compileExpr(fs, n.Class)
	c.emitCall(fs, 0, "<instantiate>", n.Line)
	if len(n.Args) == 0 {
		return
	}
	c.emitOp(fs, bytecode.OpDup, n.Line)
	for _, a := range n.Args {
		c.compileExpr(fs, a)
	}
	sig := "init(" + underscoreList(len(n.Args)) + ")"
	c.emitCall(fs, len(n.Args), sig, n.Line)
	c.emitOp(fs, bytecode.OpPop, n.Line)
}

// compileFnLit compiles a block literal into a nested Function constant
// plus a CLOSURE instruction with its upvalue-capture operand pairs.
func (c *Compiler) compileFnLit(fs *funcState, n *ast.FnLit) {
	nfs := c.newFuncState(fs, false, fs.classCtx)
	nfs.debugName = "(block)"
	nfs.arity = len(n.Params)
	for _, p := range n.Params {
		c.declareLocal(nfs, p)
	}
	c.compileFunctionBody(nfs, n.Body)
	fn := c.finish(nfs)

	fnIdx := c.addConstant(fs, fn)
	c.emitOp(fs, bytecode.OpClosure, n.Line)
	c.emitU16(fs, fnIdx, n.Line)
	for _, u := range nfs.upvalues {
		if u.IsLocal {
			c.emitU8(fs, 1, n.Line)
		} else {
			c.emitU8(fs, 0, n.Line)
		}
		c.emitU8(fs, int(u.Index), n.Line)
	}
}

func underscoreList(n int) string {
	if n == 0 {
		return ""
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "_"
	}
	return strings.Join(parts, ",")
}
