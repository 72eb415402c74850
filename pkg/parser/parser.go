// Package parser turns a lumen token stream into an AST.
//
// The parser is a hand-written recursive-descent/Pratt hybrid: statement
// grammar (var/class/if/while/for/return/...) is plain recursive descent,
// while expression grammar uses a small precedence table so that
// `a + b * c`, `a.b.c(d)`, `a[0].foo`, and similar chains associate
// correctly without one parse function per precedence level.
//
// The parser maintains a two-token lookahead window (curTok/peekTok) and
// accumulates errors in a slice rather than stopping at the first one, so
// a single Parse call can report more than one syntax error.
package parser

import (
	"fmt"
	"strconv"

	"github.com/lumenlang/lumen/pkg/ast"
	"github.com/lumenlang/lumen/pkg/lexer"
)

// precedence levels, lowest to highest.
const (
	precNone       = iota
	precAssign     // =
	precLogicalOr  // ||
	precLogicalAnd // &&
	precIs         // is
	precEquality   // == !=
	precComparison // < > <= >=
	precBitOr      // |
	precBitXor     // ^
	precBitAnd     // &
	precShift      // << >>
	precRange      // .. ...
	precTerm       // + -
	precFactor     // * / %
	precUnary      // ! - (prefix)
	precCall       // . ( [
)

var binPrec = map[lexer.TokenType]int{
	lexer.Pipe2:     precLogicalOr,
	lexer.Amp2:      precLogicalAnd,
	lexer.KwIs:      precIs,
	lexer.Eq:        precEquality,
	lexer.NotEq:     precEquality,
	lexer.Less:      precComparison,
	lexer.Greater:   precComparison,
	lexer.LessEq:    precComparison,
	lexer.GreaterEq: precComparison,
	lexer.Pipe:      precBitOr,
	lexer.Caret:     precBitXor,
	lexer.Amp:       precBitAnd,
	lexer.Shl:       precShift,
	lexer.Shr:       precShift,
	lexer.DotDot:    precRange,
	lexer.DotDotDot: precRange,
	lexer.Plus:      precTerm,
	lexer.Minus:     precTerm,
	lexer.Star:      precFactor,
	lexer.Slash:     precFactor,
	lexer.Percent:   precFactor,
}

// Parser is a single-use recursive-descent parser over one source string.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a Parser over source, primed with the first two tokens.
func New(source string) *Parser {
	p := &Parser{l: lexer.New(source)}
	p.next()
	p.next()
	return p
}

// Errors returns every syntax error accumulated during Parse.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) next() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.curTok.Line, msg))
}

func (p *Parser) expect(t lexer.TokenType, what string) bool {
	if p.curTok.Type == t {
		p.next()
		return true
	}
	p.errorf("expected %s, got %q", what, p.curTok.Literal)
	return false
}

// Parse parses the whole token stream into a Program. Any syntax errors
// are available afterward via Errors.
func Parse(source string) (*ast.Program, []string) {
	p := New(source)
	prog := &ast.Program{}
	for p.curTok.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		} else {
			p.next() // avoid looping forever on an unparseable token
		}
	}
	return prog, p.errors
}

// ---- Statements -------------------------------------------------------------

func (p *Parser) parseStatement() ast.Stmt {
	switch p.curTok.Type {
	case lexer.KwVar:
		return p.parseVarDecl()
	case lexer.KwClass:
		return p.parseClassDecl()
	case lexer.KwIf:
		return p.parseIf()
	case lexer.KwWhile:
		return p.parseWhile()
	case lexer.KwFor:
		return p.parseForIn()
	case lexer.KwReturn:
		return p.parseReturn()
	case lexer.KwBreak:
		line := p.curTok.Line
		p.next()
		return &ast.BreakStmt{Line: line}
	case lexer.KwContinue:
		line := p.curTok.Line
		p.next()
		return &ast.ContinueStmt{Line: line}
	case lexer.KwImport:
		return p.parseImport()
	case lexer.LBrace:
		return p.parseBlockStatement()
	default:
		line := p.curTok.Line
		expr := p.parseExpression(precAssign)
		return &ast.ExprStmt{X: expr, Line: line}
	}
}

func (p *Parser) parseVarDecl() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'var'
	if p.curTok.Type != lexer.Ident {
		p.errorf("expected variable name, got %q", p.curTok.Literal)
		return nil
	}
	name := p.curTok.Literal
	p.next()
	var init ast.Expr
	if p.curTok.Type == lexer.Assign {
		p.next()
		init = p.parseExpression(precAssign)
	}
	return &ast.VarDecl{Name: name, Init: init, Line: line}
}

// parseBlockStatement parses a brace-delimited statement sequence used as
// a control-flow body (if/while/for/method) — never a closure value.
func (p *Parser) parseBlockStatement() *ast.BlockStmt {
	line := p.curTok.Line
	p.expect(lexer.LBrace, "'{'")
	block := &ast.BlockStmt{Line: line}
	for p.curTok.Type != lexer.RBrace && p.curTok.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		} else {
			p.next()
		}
	}
	p.expect(lexer.RBrace, "'}'")
	return block
}

// parseControlBody parses the single statement or brace-block following
// if/while/for's condition, matching the grammar's "one statement, which
// may itself be a block" rule.
func (p *Parser) parseControlBody() ast.Stmt {
	if p.curTok.Type == lexer.LBrace {
		return p.parseBlockStatement()
	}
	return p.parseStatement()
}

func (p *Parser) parseIf() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'if'
	p.expect(lexer.LParen, "'('")
	cond := p.parseExpression(precAssign)
	p.expect(lexer.RParen, "')'")
	then := p.parseControlBody()
	var els ast.Stmt
	if p.curTok.Type == lexer.KwElse {
		p.next()
		els = p.parseControlBody()
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els, Line: line}
}

func (p *Parser) parseWhile() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'while'
	p.expect(lexer.LParen, "'('")
	cond := p.parseExpression(precAssign)
	p.expect(lexer.RParen, "')'")
	body := p.parseControlBody()
	return &ast.WhileStmt{Cond: cond, Body: body, Line: line}
}

func (p *Parser) parseForIn() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'for'
	p.expect(lexer.LParen, "'('")
	if p.curTok.Type != lexer.Ident {
		p.errorf("expected loop variable name, got %q", p.curTok.Literal)
		return nil
	}
	name := p.curTok.Literal
	p.next()
	p.expect(lexer.KwIn, "'in'")
	iterable := p.parseExpression(precAssign)
	p.expect(lexer.RParen, "')'")
	body := p.parseControlBody()
	return &ast.ForInStmt{Name: name, Iterable: iterable, Body: body, Line: line}
}

func (p *Parser) parseReturn() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'return'
	if p.curTok.Type == lexer.RBrace || p.curTok.Type == lexer.Semicolon {
		return &ast.ReturnStmt{Line: line}
	}
	value := p.parseExpression(precAssign)
	return &ast.ReturnStmt{Value: value, Line: line}
}

func (p *Parser) parseImport() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'import'
	if p.curTok.Type != lexer.String {
		p.errorf("expected a module name string, got %q", p.curTok.Literal)
		return nil
	}
	module := p.curTok.Literal
	p.next()
	stmt := &ast.ImportStmt{Module: module, Line: line}
	if p.curTok.Type == lexer.KwFor {
		p.next()
		for {
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected an imported variable name, got %q", p.curTok.Literal)
				break
			}
			stmt.Variables = append(stmt.Variables, p.curTok.Literal)
			p.next()
			if p.curTok.Type != lexer.Comma {
				break
			}
			p.next()
		}
	}
	return stmt
}

// ---- Classes ----------------------------------------------------------------

func (p *Parser) parseClassDecl() ast.Stmt {
	line := p.curTok.Line
	p.next() // 'class'
	if p.curTok.Type != lexer.Ident {
		p.errorf("expected class name, got %q", p.curTok.Literal)
		return nil
	}
	name := p.curTok.Literal
	p.next()

	var super ast.Expr
	if p.curTok.Type == lexer.KwIs {
		p.next()
		super = p.parsePrimary()
	}

	decl := &ast.ClassDecl{Name: name, Super: super, Line: line}
	p.expect(lexer.LBrace, "'{'")
	for p.curTok.Type != lexer.RBrace && p.curTok.Type != lexer.EOF {
		m := p.parseMethodDecl()
		if m != nil {
			decl.Methods = append(decl.Methods, m)
		} else {
			p.next()
		}
	}
	p.expect(lexer.RBrace, "'}'")
	return decl
}

// parseMethodDecl parses one class-body member in any of the signature
// shapes lumen supports: a getter (`name { }`), a call (`name(a, b) { }`
// or `name() { }`), a setter (`name=(value) { }`), a binary/unary
// operator (`+(other) { }`, `- { }`), or a subscript (`[a] { }`,
// `[a]=(value) { }`). A leading `static` binds it on the metaclass.
func (p *Parser) parseMethodDecl() *ast.MethodDecl {
	line := p.curTok.Line
	isStatic := false
	isForeign := false
	for {
		switch p.curTok.Type {
		case lexer.KwStatic:
			isStatic = true
			p.next()
			continue
		case lexer.KwForeign:
			isForeign = true
			p.next()
			continue
		}
		break
	}

	m := &ast.MethodDecl{IsStatic: isStatic, Foreign: isForeign, Line: line}

	switch p.curTok.Type {
	case lexer.LBracket:
		p.next()
		for p.curTok.Type != lexer.RBracket && p.curTok.Type != lexer.EOF {
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected subscript parameter name, got %q", p.curTok.Literal)
				return nil
			}
			m.Params = append(m.Params, p.curTok.Literal)
			p.next()
			if p.curTok.Type == lexer.Comma {
				p.next()
			}
		}
		p.expect(lexer.RBracket, "']'")
		sig := "[" + underscoreList(len(m.Params)) + "]"
		if p.curTok.Type == lexer.Assign {
			p.next()
			p.expect(lexer.LParen, "'('")
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected setter value parameter, got %q", p.curTok.Literal)
				return nil
			}
			m.Params = append(m.Params, p.curTok.Literal)
			p.next()
			p.expect(lexer.RParen, "')'")
			sig += "=(_)"
		}
		m.Signature = sig

	case lexer.Minus, lexer.Bang:
		op := p.curTok.Literal
		p.next()
		if p.curTok.Type == lexer.LParen {
			// binary minus: -(other)
			p.next()
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected operand parameter name, got %q", p.curTok.Literal)
				return nil
			}
			m.Params = append(m.Params, p.curTok.Literal)
			p.next()
			p.expect(lexer.RParen, "')'")
			m.Signature = op + "(_)"
		} else {
			m.Signature = op
		}

	case lexer.Plus, lexer.Star, lexer.Slash, lexer.Percent,
		lexer.Eq, lexer.NotEq, lexer.Less, lexer.Greater, lexer.LessEq, lexer.GreaterEq,
		lexer.Amp, lexer.Pipe, lexer.Caret, lexer.Shl, lexer.Shr:
		op := p.curTok.Literal
		p.next()
		p.expect(lexer.LParen, "'('")
		if p.curTok.Type != lexer.Ident {
			p.errorf("expected operand parameter name, got %q", p.curTok.Literal)
			return nil
		}
		m.Params = append(m.Params, p.curTok.Literal)
		p.next()
		p.expect(lexer.RParen, "')'")
		m.Signature = op + "(_)"

	case lexer.Ident:
		name := p.curTok.Literal
		p.next()
		switch p.curTok.Type {
		case lexer.Assign:
			p.next()
			p.expect(lexer.LParen, "'('")
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected setter value parameter, got %q", p.curTok.Literal)
				return nil
			}
			m.Params = append(m.Params, p.curTok.Literal)
			p.next()
			p.expect(lexer.RParen, "')'")
			m.Signature = name + "=(_)"
		case lexer.LParen:
			p.next()
			for p.curTok.Type != lexer.RParen && p.curTok.Type != lexer.EOF {
				if p.curTok.Type != lexer.Ident {
					p.errorf("expected parameter name, got %q", p.curTok.Literal)
					return nil
				}
				m.Params = append(m.Params, p.curTok.Literal)
				p.next()
				if p.curTok.Type == lexer.Comma {
					p.next()
				}
			}
			p.expect(lexer.RParen, "')'")
			m.Signature = name + "(" + underscoreList(len(m.Params)) + ")"
		default:
			m.Signature = name
		}

	default:
		p.errorf("expected a method declaration, got %q", p.curTok.Literal)
		return nil
	}

	if m.Foreign {
		if p.curTok.Type == lexer.LBrace {
			p.errorf("foreign method %q must not have a body", m.Signature)
			return nil
		}
		return m
	}

	if p.curTok.Type == lexer.LBrace {
		block := p.parseBlockStatement()
		m.Body = block.Stmts
	} else {
		p.errorf("expected '{' to start method body, got %q", p.curTok.Literal)
		return nil
	}
	return m
}

func underscoreList(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "_"
	}
	return s
}

// ---- Expressions --------------------------------------------------------

func (p *Parser) parseExpression(minPrec int) ast.Expr {
	left := p.parseUnary()

	for {
		if p.curTok.Type == lexer.Assign && minPrec <= precAssign {
			line := p.curTok.Line
			p.next()
			value := p.parseExpression(precAssign)
			left = &ast.Assign{Target: left, Value: value, Line: line}
			continue
		}

		prec, ok := binPrec[p.curTok.Type]
		if !ok || prec < minPrec {
			break
		}

		op := p.curTok
		p.next()

		switch op.Type {
		case lexer.Amp2:
			right := p.parseExpression(prec + 1)
			left = &ast.LogicalExpr{Op: "&&", Left: left, Right: right, Line: op.Line}
		case lexer.Pipe2:
			right := p.parseExpression(prec + 1)
			left = &ast.LogicalExpr{Op: "||", Left: left, Right: right, Line: op.Line}
		case lexer.KwIs:
			right := p.parseExpression(prec + 1)
			left = &ast.IsExpr{Left: left, Right: right, Line: op.Line}
		case lexer.DotDot, lexer.DotDotDot:
			right := p.parseExpression(prec + 1)
			left = &ast.RangeLit{From: left, To: right, Inclusive: op.Type == lexer.DotDot, Line: op.Line}
		default:
			right := p.parseExpression(prec + 1)
			left = &ast.BinaryExpr{Op: op.Literal, Left: left, Right: right, Line: op.Line}
		}
	}

	return left
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.curTok.Type {
	case lexer.Minus:
		line := p.curTok.Line
		p.next()
		operand := p.parseUnary()
		return p.parsePostfix(&ast.UnaryExpr{Op: "-", Operand: operand, Line: line})
	case lexer.Bang:
		line := p.curTok.Line
		p.next()
		operand := p.parseUnary()
		return p.parsePostfix(&ast.UnaryExpr{Op: "!", Operand: operand, Line: line})
	}
	return p.parsePostfix(p.parsePrimary())
}

// parsePostfix handles the left-recursive call/subscript chain: `.name`,
// `.name(args)`, `[args]`, each of which may be followed by another of the
// same, e.g. `p[0].call()`.
func (p *Parser) parsePostfix(expr ast.Expr) ast.Expr {
	for {
		switch p.curTok.Type {
		case lexer.Dot:
			line := p.curTok.Line
			p.next()
			if p.curTok.Type != lexer.Ident && p.curTok.Type != lexer.KwNew {
				p.errorf("expected a method name after '.', got %q", p.curTok.Literal)
				return expr
			}
			name := p.curTok.Literal
			p.next()
			call := &ast.CallExpr{Receiver: expr, Name: name, Line: line}
			if p.curTok.Type == lexer.LParen {
				p.next()
				call.HasParens = true
				call.Args = p.parseArgList(lexer.RParen)
				p.expect(lexer.RParen, "')'")
			}
			expr = call
		case lexer.LBracket:
			line := p.curTok.Line
			p.next()
			args := p.parseArgList(lexer.RBracket)
			p.expect(lexer.RBracket, "']'")
			expr = &ast.SubscriptExpr{Receiver: expr, Args: args, Line: line}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgList(end lexer.TokenType) []ast.Expr {
	var args []ast.Expr
	if p.curTok.Type == end {
		return args
	}
	args = append(args, p.parseExpression(precAssign))
	for p.curTok.Type == lexer.Comma {
		p.next()
		args = append(args, p.parseExpression(precAssign))
	}
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	line := p.curTok.Line
	switch p.curTok.Type {
	case lexer.Number:
		lit := p.curTok.Literal
		p.next()
		return &ast.NumberLit{Value: parseNumber(lit), Line: line}
	case lexer.String:
		lit := p.curTok.Literal
		p.next()
		return &ast.StringLit{Value: lit, Line: line}
	case lexer.KwTrue:
		p.next()
		return &ast.BoolLit{Value: true, Line: line}
	case lexer.KwFalse:
		p.next()
		return &ast.BoolLit{Value: false, Line: line}
	case lexer.KwNull:
		p.next()
		return &ast.NullLit{Line: line}
	case lexer.KwThis:
		p.next()
		return &ast.ThisExpr{Line: line}
	case lexer.KwSuper:
		p.next()
		if p.curTok.Type == lexer.Dot {
			p.next()
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected a method name after 'super.', got %q", p.curTok.Literal)
				return &ast.SuperExpr{Line: line}
			}
			name := p.curTok.Literal
			p.next()
			call := &ast.CallExpr{Receiver: &ast.SuperExpr{Line: line}, Name: name, Line: line}
			if p.curTok.Type == lexer.LParen {
				p.next()
				call.HasParens = true
				call.Args = p.parseArgList(lexer.RParen)
				p.expect(lexer.RParen, "')'")
			}
			return call
		}
		return &ast.SuperExpr{Line: line}
	case lexer.KwNew:
		p.next()
		var class ast.Expr
		if p.curTok.Type == lexer.Ident {
			class = &ast.Ident{Name: p.curTok.Literal, Line: p.curTok.Line}
			p.next()
		} else {
			class = p.parsePrimary()
		}
		n := &ast.NewExpr{Class: class, Line: line}
		if p.curTok.Type == lexer.LParen {
			p.next()
			n.Args = p.parseArgList(lexer.RParen)
			p.expect(lexer.RParen, "')'")
		}
		return n
	case lexer.Ident:
		name := p.curTok.Literal
		p.next()
		if p.curTok.Type == lexer.LParen {
			p.next()
			args := p.parseArgList(lexer.RParen)
			p.expect(lexer.RParen, "')'")
			return &ast.CallExpr{Name: name, Args: args, HasParens: true, Line: line}
		}
		return &ast.Ident{Name: name, Line: line}
	case lexer.LParen:
		p.next()
		expr := p.parseExpression(precAssign)
		p.expect(lexer.RParen, "')'")
		return expr
	case lexer.LBracket:
		p.next()
		elems := p.parseArgList(lexer.RBracket)
		p.expect(lexer.RBracket, "']'")
		return &ast.ListLit{Elements: elems, Line: line}
	case lexer.LBrace:
		return p.parseFnLit()
	default:
		p.errorf("unexpected token %q", p.curTok.Literal)
		p.next()
		return &ast.NullLit{Line: line}
	}
}

// parseFnLit parses a block literal `{ |params| stmts }` or `{ stmts }` as
// an expression: a callable value, not a control-flow body.
func (p *Parser) parseFnLit() ast.Expr {
	line := p.curTok.Line
	p.expect(lexer.LBrace, "'{'")
	fn := &ast.FnLit{Line: line}
	if p.curTok.Type == lexer.Pipe {
		p.next()
		for p.curTok.Type != lexer.Pipe && p.curTok.Type != lexer.EOF {
			if p.curTok.Type != lexer.Ident {
				p.errorf("expected block parameter name, got %q", p.curTok.Literal)
				break
			}
			fn.Params = append(fn.Params, p.curTok.Literal)
			p.next()
			if p.curTok.Type == lexer.Comma {
				p.next()
			}
		}
		p.expect(lexer.Pipe, "'|'")
	}
	for p.curTok.Type != lexer.RBrace && p.curTok.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			fn.Body = append(fn.Body, stmt)
		} else {
			p.next()
		}
	}
	p.expect(lexer.RBrace, "'}'")
	return fn
}

func parseNumber(lit string) float64 {
	if len(lit) > 1 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X') {
		n, err := strconv.ParseInt(lit[2:], 16, 64)
		if err != nil {
			return 0
		}
		return float64(n)
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0
	}
	return f
}
