package parser

import (
	"testing"

	"github.com/lumenlang/lumen/pkg/ast"
)

func exprOf(t *testing.T, source string) ast.Expr {
	t.Helper()
	prog := parseOK(t, source)
	return prog.Statements[0].(*ast.ExprStmt).X
}

// 1 + 2 * 3 should parse as 1 + (2 * 3): factor binds tighter than term.
func TestPrecedence_MulTighterThanAdd(t *testing.T) {
	expr := exprOf(t, "1 + 2 * 3")
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", expr)
	}
	right, ok := bin.Right.(*ast.BinaryExpr)
	if !ok || right.Op != "*" {
		t.Fatalf("expected right operand '*', got %#v", bin.Right)
	}
}

// a || b && c should parse as a || (b && c): && binds tighter than ||.
func TestPrecedence_AndTighterThanOr(t *testing.T) {
	expr := exprOf(t, "a || b && c")
	logical, ok := expr.(*ast.LogicalExpr)
	if !ok || logical.Op != "||" {
		t.Fatalf("expected top-level '||', got %#v", expr)
	}
	right, ok := logical.Right.(*ast.LogicalExpr)
	if !ok || right.Op != "&&" {
		t.Fatalf("expected right operand '&&', got %#v", logical.Right)
	}
}

// a == b is class, evaluated with is lower than equality: (a == b) is Bool.
func TestPrecedence_IsLooserThanEquality(t *testing.T) {
	expr := exprOf(t, "a == b is Bool")
	isExpr, ok := expr.(*ast.IsExpr)
	if !ok {
		t.Fatalf("expected top-level *ast.IsExpr, got %#v", expr)
	}
	if _, ok := isExpr.Left.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected left operand to be the equality, got %#v", isExpr.Left)
	}
}

// a + b .. c + d should parse as (a + b) .. (c + d): range binds looser
// than term.
func TestPrecedence_RangeLooserThanTerm(t *testing.T) {
	expr := exprOf(t, "a + b .. c + d")
	rng, ok := expr.(*ast.RangeLit)
	if !ok {
		t.Fatalf("expected top-level *ast.RangeLit, got %#v", expr)
	}
	if _, ok := rng.From.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected range.From to be a binary expr, got %#v", rng.From)
	}
	if _, ok := rng.To.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected range.To to be a binary expr, got %#v", rng.To)
	}
}

// 1 << 2 + 3 should parse as 1 << (2 + 3): shift binds looser than term.
func TestPrecedence_ShiftLooserThanTerm(t *testing.T) {
	expr := exprOf(t, "1 << 2 + 3")
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "<<" {
		t.Fatalf("expected top-level '<<', got %#v", expr)
	}
	if _, ok := bin.Right.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected right operand to be a binary expr, got %#v", bin.Right)
	}
}

// -a.b() negates the whole call chain's result, not just a: unary binds
// looser than call/dot.
func TestPrecedence_CallTighterThanUnary(t *testing.T) {
	expr := exprOf(t, "-a.b()")
	unary, ok := expr.(*ast.UnaryExpr)
	if !ok || unary.Op != "-" {
		t.Fatalf("expected top-level unary '-', got %#v", expr)
	}
	call, ok := unary.Operand.(*ast.CallExpr)
	if !ok || call.Name != "b" {
		t.Fatalf("expected operand to be a call to 'b', got %#v", unary.Operand)
	}
}

// a = b = c is right-associative: a = (b = c).
func TestPrecedence_AssignIsRightAssociative(t *testing.T) {
	expr := exprOf(t, "a = b = c")
	outer, ok := expr.(*ast.Assign)
	if !ok {
		t.Fatalf("expected top-level *ast.Assign, got %#v", expr)
	}
	if _, ok := outer.Target.(*ast.Ident); !ok {
		t.Fatalf("expected target to be an identifier, got %#v", outer.Target)
	}
	if _, ok := outer.Value.(*ast.Assign); !ok {
		t.Fatalf("expected value to be a nested assign, got %#v", outer.Value)
	}
}

// a.b.c() is left-associative: ((a.b)).c().
func TestPrecedence_DotChainIsLeftAssociative(t *testing.T) {
	expr := exprOf(t, "a.b.c()")
	outer, ok := expr.(*ast.CallExpr)
	if !ok || outer.Name != "c" {
		t.Fatalf("expected outer call to 'c', got %#v", expr)
	}
	inner, ok := outer.Receiver.(*ast.CallExpr)
	if !ok || inner.Name != "b" {
		t.Fatalf("expected receiver call to 'b', got %#v", outer.Receiver)
	}
}

func TestPrecedence_ParensOverridePrecedence(t *testing.T) {
	expr := exprOf(t, "(1 + 2) * 3")
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "*" {
		t.Fatalf("expected top-level '*', got %#v", expr)
	}
	left, ok := bin.Left.(*ast.BinaryExpr)
	if !ok || left.Op != "+" {
		t.Fatalf("expected left operand '+', got %#v", bin.Left)
	}
}
