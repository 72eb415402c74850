package parser

import (
	"testing"

	"github.com/lumenlang/lumen/pkg/ast"
)

func parseOK(t *testing.T, source string) *ast.Program {
	t.Helper()
	prog, errs := Parse(source)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors for %q: %v", source, errs)
	}
	return prog
}

func TestParse_VarDecl(t *testing.T) {
	prog := parseOK(t, `var x = 1 + 2`)
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	decl, ok := prog.Statements[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("expected *ast.VarDecl, got %T", prog.Statements[0])
	}
	if decl.Name != "x" {
		t.Fatalf("expected name x, got %q", decl.Name)
	}
	bin, ok := decl.Init.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected *ast.BinaryExpr init, got %T", decl.Init)
	}
	if bin.Op != "+" {
		t.Fatalf("expected op +, got %q", bin.Op)
	}
}

func TestParse_IfElse(t *testing.T) {
	prog := parseOK(t, `if (x > 0) { return 1 } else { return 0 }`)
	ifStmt, ok := prog.Statements[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected *ast.IfStmt, got %T", prog.Statements[0])
	}
	if ifStmt.Else == nil {
		t.Fatal("expected else branch")
	}
}

func TestParse_WhileLoop(t *testing.T) {
	prog := parseOK(t, `while (i < 10) { i = i + 1 }`)
	if _, ok := prog.Statements[0].(*ast.WhileStmt); !ok {
		t.Fatalf("expected *ast.WhileStmt, got %T", prog.Statements[0])
	}
}

func TestParse_ForIn(t *testing.T) {
	prog := parseOK(t, `for (x in 1..10) { System.print(x) }`)
	forStmt, ok := prog.Statements[0].(*ast.ForInStmt)
	if !ok {
		t.Fatalf("expected *ast.ForInStmt, got %T", prog.Statements[0])
	}
	if forStmt.Name != "x" {
		t.Fatalf("expected loop var x, got %q", forStmt.Name)
	}
	if _, ok := forStmt.Iterable.(*ast.RangeLit); !ok {
		t.Fatalf("expected range literal, got %T", forStmt.Iterable)
	}
}

func TestParse_ClassDecl(t *testing.T) {
	prog := parseOK(t, `
class Animal {
  init(name) {
    _name = name
  }
  name { _name }
  speak() { System.print(_name) }
  static count() { 0 }
}
`)
	cls, ok := prog.Statements[0].(*ast.ClassDecl)
	if !ok {
		t.Fatalf("expected *ast.ClassDecl, got %T", prog.Statements[0])
	}
	if cls.Name != "Animal" {
		t.Fatalf("expected class name Animal, got %q", cls.Name)
	}
	if cls.Super != nil {
		t.Fatalf("expected nil super, got %v", cls.Super)
	}
	if len(cls.Methods) != 4 {
		t.Fatalf("expected 4 methods, got %d", len(cls.Methods))
	}

	var sigs []string
	var static []bool
	for _, m := range cls.Methods {
		sigs = append(sigs, m.Signature)
		static = append(static, m.IsStatic)
	}
	if sigs[1] != "name" {
		t.Fatalf("expected getter signature 'name', got %q", sigs[1])
	}
	if sigs[2] != "speak()" {
		t.Fatalf("expected signature 'speak()', got %q", sigs[2])
	}
	if !static[3] {
		t.Fatal("expected count() to be static")
	}
}

func TestParse_ClassWithSuper(t *testing.T) {
	prog := parseOK(t, `class Dog is Animal {}`)
	cls := prog.Statements[0].(*ast.ClassDecl)
	ident, ok := cls.Super.(*ast.Ident)
	if !ok {
		t.Fatalf("expected *ast.Ident super, got %T", cls.Super)
	}
	if ident.Name != "Animal" {
		t.Fatalf("expected super Animal, got %q", ident.Name)
	}
}

func TestParse_ForeignMethod(t *testing.T) {
	prog := parseOK(t, `class Native { foreign static hash(value) }`)
	cls := prog.Statements[0].(*ast.ClassDecl)
	if !cls.Methods[0].Foreign {
		t.Fatal("expected foreign method")
	}
	if !cls.Methods[0].IsStatic {
		t.Fatal("expected foreign method to be static")
	}
	if len(cls.Methods[0].Body) != 0 {
		t.Fatal("expected foreign method to have no body")
	}
}

func TestParse_CallChainAndSubscript(t *testing.T) {
	prog := parseOK(t, `list[0].name()`)
	exprStmt := prog.Statements[0].(*ast.ExprStmt)
	call, ok := exprStmt.X.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected *ast.CallExpr, got %T", exprStmt.X)
	}
	if call.Name != "name" {
		t.Fatalf("expected call name 'name', got %q", call.Name)
	}
	if _, ok := call.Receiver.(*ast.SubscriptExpr); !ok {
		t.Fatalf("expected subscript receiver, got %T", call.Receiver)
	}
}

func TestParse_NewExpr(t *testing.T) {
	prog := parseOK(t, `var a = new Animal("Rex")`)
	decl := prog.Statements[0].(*ast.VarDecl)
	newExpr, ok := decl.Init.(*ast.NewExpr)
	if !ok {
		t.Fatalf("expected *ast.NewExpr, got %T", decl.Init)
	}
	if len(newExpr.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(newExpr.Args))
	}
}

func TestParse_ImportStmt(t *testing.T) {
	prog := parseOK(t, `import "collections" for List, Map`)
	imp, ok := prog.Statements[0].(*ast.ImportStmt)
	if !ok {
		t.Fatalf("expected *ast.ImportStmt, got %T", prog.Statements[0])
	}
	if imp.Module != "collections" {
		t.Fatalf("expected module 'collections', got %q", imp.Module)
	}
	if len(imp.Variables) != 2 || imp.Variables[0] != "List" || imp.Variables[1] != "Map" {
		t.Fatalf("unexpected imported variables: %v", imp.Variables)
	}
}

func TestParse_ListLiteral(t *testing.T) {
	prog := parseOK(t, `var xs = [1, 2, 3]`)
	decl := prog.Statements[0].(*ast.VarDecl)
	list, ok := decl.Init.(*ast.ListLit)
	if !ok {
		t.Fatalf("expected *ast.ListLit, got %T", decl.Init)
	}
	if len(list.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(list.Elements))
	}
}

func TestParse_FnLiteral(t *testing.T) {
	prog := parseOK(t, `var f = { |a, b| a + b }`)
	decl := prog.Statements[0].(*ast.VarDecl)
	fn, ok := decl.Init.(*ast.FnLit)
	if !ok {
		t.Fatalf("expected *ast.FnLit, got %T", decl.Init)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fn.Params))
	}
}

func TestParse_ReportsSyntaxErrors(t *testing.T) {
	_, errs := Parse(`var = `)
	if len(errs) == 0 {
		t.Fatal("expected syntax errors for malformed var declaration")
	}
}

func TestParse_BreakAndContinue(t *testing.T) {
	prog := parseOK(t, `while (true) { break } while (true) { continue }`)
	while1 := prog.Statements[0].(*ast.WhileStmt)
	block1 := while1.Body.(*ast.BlockStmt)
	if _, ok := block1.Stmts[0].(*ast.BreakStmt); !ok {
		t.Fatalf("expected *ast.BreakStmt, got %T", block1.Stmts[0])
	}

	while2 := prog.Statements[1].(*ast.WhileStmt)
	block2 := while2.Body.(*ast.BlockStmt)
	if _, ok := block2.Stmts[0].(*ast.ContinueStmt); !ok {
		t.Fatalf("expected *ast.ContinueStmt, got %T", block2.Stmts[0])
	}
}
