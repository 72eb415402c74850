// Package ast defines the syntax tree the lumen parser produces and the
// compiler consumes.
//
// The grammar is expression-oriented and class-based: a program is a
// sequence of statements at module scope (var/class/import declarations
// and bare expressions), methods are always `name { body }` in one of a
// handful of signature shapes (getter, call, setter, operator, subscript),
// and the only callable value literal is the block `{ |params| body }`,
// used for both closures and fiber bodies.
package ast

// Node is implemented by every statement and expression.
type Node interface {
	node()
}

// Stmt is a statement: something executed for effect. An ExprStmt in tail
// position also carries a value used as the enclosing block's result.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression: something evaluated for a value.
type Expr interface {
	Node
	exprNode()
}

// Program is a whole compilation unit: one module's top-level statements.
type Program struct {
	Statements []Stmt
}

func (*Program) node() {}

// ---- Statements -------------------------------------------------------------

// VarDecl is `var name = init`. Init is nil for `var name`, which
// initializes the variable to null.
type VarDecl struct {
	Name string
	Init Expr
	Line int
}

func (*VarDecl) node()     {}
func (*VarDecl) stmtNode() {}

// ExprStmt is an expression evaluated for its side effect (or, in tail
// position inside a block/method/closure body, for its value).
type ExprStmt struct {
	X    Expr
	Line int
}

func (*ExprStmt) node()     {}
func (*ExprStmt) stmtNode() {}

// BlockStmt is a brace-delimited statement sequence used as the body of
// if/while/for and as a nested scope. It is never itself a callable value;
// compare FnLit.
type BlockStmt struct {
	Stmts []Stmt
	Line  int
}

func (*BlockStmt) node()     {}
func (*BlockStmt) stmtNode() {}

// IfStmt is `if (cond) then [else else_]`.
type IfStmt struct {
	Cond Expr
	Then Stmt
	Else Stmt // nil if there is no else clause
	Line int
}

func (*IfStmt) node()     {}
func (*IfStmt) stmtNode() {}

// WhileStmt is `while (cond) body`.
type WhileStmt struct {
	Cond Expr
	Body Stmt
	Line int
}

func (*WhileStmt) node()     {}
func (*WhileStmt) stmtNode() {}

// ForInStmt is `for (name in iterable) body`, desugared by the compiler
// into the iterate()/iteratorValue() protocol every sequence type
// implements.
type ForInStmt struct {
	Name     string
	Iterable Expr
	Body     Stmt
	Line     int
}

func (*ForInStmt) node()     {}
func (*ForInStmt) stmtNode() {}

// ReturnStmt is `return` or `return value`. A bare return yields null.
type ReturnStmt struct {
	Value Expr // nil for a bare `return`
	Line  int
}

func (*ReturnStmt) node()     {}
func (*ReturnStmt) stmtNode() {}

// BreakStmt is `break`, valid only inside a while/for body.
type BreakStmt struct{ Line int }

func (*BreakStmt) node()     {}
func (*BreakStmt) stmtNode() {}

// ContinueStmt is `continue`, valid only inside a while/for body.
type ContinueStmt struct{ Line int }

func (*ContinueStmt) node()     {}
func (*ContinueStmt) stmtNode() {}

// ImportStmt is `import "module" for Name1, Name2`. Variables is empty for
// a bare `import "module"` that only runs the module for effect.
type ImportStmt struct {
	Module    string
	Variables []string
	Line      int
}

func (*ImportStmt) node()     {}
func (*ImportStmt) stmtNode() {}

// MethodDecl is one method inside a class body. Signature is already the
// fully assembled dispatch signature (e.g. "greet", "add(_)", "[_]=(_)",
// "+(_)", "-") the parser built from the concrete syntax; Params names the
// slots the compiler binds the call's arguments into, in order.
type MethodDecl struct {
	Signature string
	Params    []string
	IsStatic  bool
	Foreign   bool // `foreign` methods have no body; host-registered
	Body      []Stmt
	Line      int
}

// ClassDecl is `class Name [is Super] { methods }`. Super is nil when the
// class implicitly extends Object.
type ClassDecl struct {
	Name    string
	Super   Expr // nil means Object
	Methods []*MethodDecl
	Line    int
}

func (*ClassDecl) node()     {}
func (*ClassDecl) stmtNode() {}

// ---- Expressions ------------------------------------------------------------

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
	Line  int
}

func (*NumberLit) node()     {}
func (*NumberLit) exprNode() {}

// StringLit is a double-quoted string literal.
type StringLit struct {
	Value string
	Line  int
}

func (*StringLit) node()     {}
func (*StringLit) exprNode() {}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
	Line  int
}

func (*BoolLit) node()     {}
func (*BoolLit) exprNode() {}

// NullLit is `null`.
type NullLit struct{ Line int }

func (*NullLit) node()     {}
func (*NullLit) exprNode() {}

// Ident is a bare name: a local, an upvalue, a module variable, or (when
// Name begins with "_") an instance field.
type Ident struct {
	Name string
	Line int
}

func (*Ident) node()     {}
func (*Ident) exprNode() {}

// ThisExpr is `this`, the receiver of the enclosing method.
type ThisExpr struct{ Line int }

func (*ThisExpr) node()     {}
func (*ThisExpr) exprNode() {}

// SuperExpr is the receiver half of a `super.method(...)` or bare `super`
// call; it is only ever found as the Receiver of a CallExpr.
type SuperExpr struct{ Line int }

func (*SuperExpr) node()     {}
func (*SuperExpr) exprNode() {}

// ListLit is `[ a, b, c ]`.
type ListLit struct {
	Elements []Expr
	Line     int
}

func (*ListLit) node()     {}
func (*ListLit) exprNode() {}

// RangeLit is `from..to` (inclusive) or `from...to` (exclusive).
type RangeLit struct {
	From, To  Expr
	Inclusive bool
	Line      int
}

func (*RangeLit) node()     {}
func (*RangeLit) exprNode() {}

// Assign is `target = value`. Target is an Ident, a CallExpr (a setter,
// `recv.name = value`), or a SubscriptExpr (`recv[args] = value`).
type Assign struct {
	Target Expr
	Value  Expr
	Line   int
}

func (*Assign) node()     {}
func (*Assign) exprNode() {}

// UnaryExpr is a prefix `-x` or `!x`.
type UnaryExpr struct {
	Op      string
	Operand Expr
	Line    int
}

func (*UnaryExpr) node()     {}
func (*UnaryExpr) exprNode() {}

// BinaryExpr is an infix operator call (+, -, *, /, %, comparisons,
// equality, bitwise). It compiles to a dispatched method call, not a
// dedicated opcode.
type BinaryExpr struct {
	Op          string
	Left, Right Expr
	Line        int
}

func (*BinaryExpr) node()     {}
func (*BinaryExpr) exprNode() {}

// LogicalExpr is `&&` or `||`: short-circuiting, compiled straight to
// AND/OR rather than a method call.
type LogicalExpr struct {
	Op          string
	Left, Right Expr
	Line        int
}

func (*LogicalExpr) node()     {}
func (*LogicalExpr) exprNode() {}

// IsExpr is `left is right`, compiled directly to the IS opcode.
type IsExpr struct {
	Left, Right Expr
	Line        int
}

func (*IsExpr) node()     {}
func (*IsExpr) exprNode() {}

// CallExpr is a method call. Receiver is nil for an implicit-this call
// inside a method body (`greet()` meaning `this.greet()`). HasParens
// distinguishes a bare getter call (`count`, signature "count") from an
// explicit empty-argument call (`clear()`, signature "clear()").
type CallExpr struct {
	Receiver  Expr
	Name      string
	Args      []Expr
	HasParens bool
	Line      int
}

func (*CallExpr) node()     {}
func (*CallExpr) exprNode() {}

// SubscriptExpr is `recv[args]`.
type SubscriptExpr struct {
	Receiver Expr
	Args     []Expr
	Line     int
}

func (*SubscriptExpr) node()     {}
func (*SubscriptExpr) exprNode() {}

// NewExpr is `new ClassExpr` or `new ClassExpr(args)`: allocate a bare
// instance, then (if args were given) call "init(...)" on it.
type NewExpr struct {
	Class Expr
	Args  []Expr
	Line  int
}

func (*NewExpr) node()     {}
func (*NewExpr) exprNode() {}

// FnLit is a block literal `{ |params| body }` or `{ body }`: the only
// callable value literal, used for Fn.new/Fiber.new bodies, list elements,
// and any other place a closure is passed as a value.
type FnLit struct {
	Params []string
	Body   []Stmt
	Line   int
}

func (*FnLit) node()     {}
func (*FnLit) exprNode() {}
