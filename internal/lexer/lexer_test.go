package lexer_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/token"
)

func types(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func expectTypes(t *testing.T, input string, want []token.Type) {
	t.Helper()
	got := types(lexer.Tokenize(input))
	if len(got) != len(want) {
		t.Fatalf("token count mismatch for %q:\n got %v\nwant %v", input, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d mismatch for %q: got %s, want %s", i, input, got[i], want[i])
		}
	}
}

func TestBasicTokens(t *testing.T) {
	expectTypes(t, "bind x to 42",
		[]token.Type{token.BIND, token.IDENT, token.TO, token.NUMBER, token.EOF})
	expectTypes(t, "weave counter as 0",
		[]token.Type{token.WEAVE, token.IDENT, token.AS, token.NUMBER, token.EOF})
	expectTypes(t, "x + y * 2",
		[]token.Type{token.IDENT, token.PLUS, token.IDENT, token.STAR, token.NUMBER, token.EOF})
}

func TestMultiWordOperators(t *testing.T) {
	testCases := []struct {
		input string
		want  token.Type
	}{
		{"a is b", token.IS},
		{"a is not b", token.IS_NOT},
		{"a greater than b", token.GREATER_THAN},
		{"a less than b", token.LESS_THAN},
		{"a at least b", token.AT_LEAST},
		{"a at most b", token.AT_MOST},
		{"a <= b", token.AT_MOST},
		{"a >= b", token.AT_LEAST},
	}
	for _, tc := range testCases {
		expectTypes(t, tc.input, []token.Type{token.IDENT, tc.want, token.IDENT, token.EOF})
	}
}

func TestMultiWordBacktracking(t *testing.T) {
	// "is" followed by something that is not "not" stays a bare IS.
	expectTypes(t, "x is greater",
		[]token.Type{token.IDENT, token.IS, token.IDENT, token.EOF})
	// "at" not followed by least/most is an ordinary identifier.
	expectTypes(t, "at x",
		[]token.Type{token.IDENT, token.IDENT, token.EOF})
	// The lookahead never crosses a newline.
	expectTypes(t, "bind x to is\nnot",
		[]token.Type{token.BIND, token.IDENT, token.TO, token.IS, token.NEWLINE, token.NOT, token.EOF})
}

func TestNewlinesAreSignificant(t *testing.T) {
	expectTypes(t, "bind x to 1\nbind y to 2",
		[]token.Type{token.BIND, token.IDENT, token.TO, token.NUMBER, token.NEWLINE,
			token.BIND, token.IDENT, token.TO, token.NUMBER, token.EOF})
}

func TestComments(t *testing.T) {
	expectTypes(t, "bind x to 1 # the answer\nx",
		[]token.Type{token.BIND, token.IDENT, token.TO, token.NUMBER, token.NEWLINE,
			token.IDENT, token.EOF})
}

func TestStringLiterals(t *testing.T) {
	toks := lexer.Tokenize(`"hello\nworld"`)
	if toks[0].Type != token.TEXT || toks[0].Lexeme != "hello\nworld" {
		t.Fatalf("escape handling wrong: %q", toks[0].Lexeme)
	}

	// Unknown escapes keep the backslash and the character.
	toks = lexer.Tokenize(`"a\qb"`)
	if toks[0].Lexeme != `a\qb` {
		t.Fatalf("unknown escape mangled: %q", toks[0].Lexeme)
	}

	// Unterminated strings yield what was read.
	toks = lexer.Tokenize(`"oops`)
	if toks[0].Type != token.TEXT || toks[0].Lexeme != "oops" {
		t.Fatalf("unterminated string mishandled: %v %q", toks[0].Type, toks[0].Lexeme)
	}
}

func TestNumbers(t *testing.T) {
	toks := lexer.Tokenize("3.14")
	if toks[0].Type != token.NUMBER || toks[0].Lexeme != "3.14" {
		t.Fatalf("fractional number: %v %q", toks[0].Type, toks[0].Lexeme)
	}

	// A leading minus is the unary operator, not part of the literal.
	expectTypes(t, "-5", []token.Type{token.MINUS, token.NUMBER, token.EOF})
}

func TestAngleBracketsAreGenericsOnly(t *testing.T) {
	expectTypes(t, "identity<Number>(7)",
		[]token.Type{token.IDENT, token.LANGLE, token.IDENT, token.RANGLE,
			token.LPAREN, token.NUMBER, token.RPAREN, token.EOF})
}

func TestUnknownCharactersAreSkipped(t *testing.T) {
	expectTypes(t, "x @ y", []token.Type{token.IDENT, token.IDENT, token.EOF})
}

func TestKeywords(t *testing.T) {
	expectTypes(t, "chant form variant aspect embody attempt harmonize grove summon gather offer",
		[]token.Type{token.CHANT, token.FORM, token.VARIANT, token.ASPECT, token.EMBODY,
			token.ATTEMPT, token.HARMONIZE, token.GROVE, token.SUMMON, token.GATHER,
			token.OFFER, token.EOF})
	expectTypes(t, "Triumph Mishap Present Absent",
		[]token.Type{token.TRIUMPH, token.MISHAP, token.PRESENT, token.ABSENT, token.EOF})
}

func TestPositions(t *testing.T) {
	toks := lexer.Tokenize("bind x\nto")
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Fatalf("first token position: %d:%d", toks[0].Line, toks[0].Column)
	}
	if toks[1].Line != 1 || toks[1].Column != 6 {
		t.Fatalf("second token position: %d:%d", toks[1].Line, toks[1].Column)
	}
	// After the newline, positions restart on line 2.
	last := toks[3]
	if last.Type != token.TO || last.Line != 2 || last.Column != 1 {
		t.Fatalf("post-newline position: %v %d:%d", last.Type, last.Line, last.Column)
	}
}
