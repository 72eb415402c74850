package lexer

import "testing"

func TestNextToken_BasicTokens(t *testing.T) {
	input := `{ } ( ) [ ] , . .. ... : ;`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{LBrace, "{"},
		{RBrace, "}"},
		{LParen, "("},
		{RParen, ")"},
		{LBracket, "["},
		{RBracket, "]"},
		{Comma, ","},
		{Dot, "."},
		{DotDot, ".."},
		{DotDotDot, "..."},
		{Colon, ":"},
		{Semicolon, ";"},
		{EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%v, got=%v", i, tt.expectedType, tok.Type)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextToken_Operators(t *testing.T) {
	input := `+ - * / % = == != < > <= >= & | ^ << >> && || !`

	tests := []TokenType{
		Plus, Minus, Star, Slash, Percent,
		Assign, Eq, NotEq, Less, Greater, LessEq, GreaterEq,
		Amp, Pipe, Caret, Shl, Shr, Amp2, Pipe2, Bang,
		EOF,
	}

	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%v, got=%v (%q)", i, want, tok.Type, tok.Literal)
		}
	}
}

func TestNextToken_Keywords(t *testing.T) {
	input := `var class is if else while for in return break continue true false null this super new static import foreign`

	tests := []TokenType{
		KwVar, KwClass, KwIs, KwIf, KwElse, KwWhile, KwFor, KwIn,
		KwReturn, KwBreak, KwContinue, KwTrue, KwFalse, KwNull,
		KwThis, KwSuper, KwNew, KwStatic, KwImport, KwForeign, EOF,
	}

	l := New(input)
	for i, want := range tests {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%v, got=%v (%q)", i, want, tok.Type, tok.Literal)
		}
	}
}

func TestNextToken_IdentifiersAreNotKeywords(t *testing.T) {
	input := `variance classify isEven`
	want := []string{"variance", "classify", "isEven"}

	l := New(input)
	for i, lit := range want {
		tok := l.NextToken()
		if tok.Type != Ident {
			t.Fatalf("tests[%d] - expected Ident, got %v", i, tok.Type)
		}
		if tok.Literal != lit {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, lit, tok.Literal)
		}
	}
}

func TestNextToken_Numbers(t *testing.T) {
	tests := []string{"0", "42", "3.14", "1e10", "1.5e-3", "0xFF", "0x1a"}
	for _, src := range tests {
		l := New(src)
		tok := l.NextToken()
		if tok.Type != Number {
			t.Fatalf("%q: expected Number, got %v", src, tok.Type)
		}
		if tok.Literal != src {
			t.Fatalf("%q: literal wrong, got %q", src, tok.Literal)
		}
	}
}

func TestNextToken_String(t *testing.T) {
	input := `"hello\nworld" "tab\tend" "quote\"inside" "back\\slash"`
	want := []string{"hello\nworld", "tab\tend", "quote\"inside", "back\\slash"}

	l := New(input)
	for i, lit := range want {
		tok := l.NextToken()
		if tok.Type != String {
			t.Fatalf("tests[%d] - expected String, got %v", i, tok.Type)
		}
		if tok.Literal != lit {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, lit, tok.Literal)
		}
	}
}

func TestNextToken_LineComment(t *testing.T) {
	input := "var x = 1 // this is a comment\nvar y = 2"
	l := New(input)
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == EOF {
			break
		}
	}
	want := []TokenType{KwVar, Ident, Assign, Number, KwVar, Ident, Assign, Number, EOF}
	if len(types) != len(want) {
		t.Fatalf("token count mismatch: got %d, want %d (%v)", len(types), len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%v, got=%v", i, want[i], types[i])
		}
	}
}

func TestNextToken_LineAndColumnTracking(t *testing.T) {
	input := "var\nx"
	l := New(input)

	tok := l.NextToken() // var
	if tok.Line != 1 {
		t.Fatalf("expected var on line 1, got %d", tok.Line)
	}

	tok = l.NextToken() // x
	if tok.Line != 2 {
		t.Fatalf("expected x on line 2, got %d", tok.Line)
	}
}

func TestTokenize(t *testing.T) {
	toks := Tokenize("1 + 2")
	if len(toks) != 4 { // Number, Plus, Number, EOF
		t.Fatalf("expected 4 tokens, got %d: %+v", len(toks), toks)
	}
	if toks[len(toks)-1].Type != EOF {
		t.Fatalf("expected last token to be EOF, got %v", toks[len(toks)-1].Type)
	}
}

func TestNextToken_IllegalCharacter(t *testing.T) {
	l := New("$")
	tok := l.NextToken()
	if tok.Type != Illegal {
		t.Fatalf("expected Illegal, got %v", tok.Type)
	}
	if tok.Literal != "$" {
		t.Fatalf("expected literal %q, got %q", "$", tok.Literal)
	}
}
