// Package parser builds the AST from a token stream by recursive descent.
//
// The grammar mixes statements and expressions freely: any expression is a
// valid statement. Statements are dispatched on their leading keyword;
// expressions run through a fixed precedence cascade. The parser stops at
// the first error — there is no recovery.
package parser

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/diagnostics"
	"github.com/glimmerweave/gw/internal/pipeline"
	"github.com/glimmerweave/gw/internal/token"
)

type Parser struct {
	tokens []token.Token
	pos    int

	err *diagnostics.Diagnostic
}

func New(tokens []token.Token) *Parser {
	if len(tokens) == 0 {
		tokens = []token.Token{{Type: token.EOF, Line: 1, Column: 1}}
	}
	return &Parser{tokens: tokens}
}

// Parse is a convenience wrapper: lex-free entry for pre-tokenized input.
func Parse(tokens []token.Token) (*ast.Program, *diagnostics.Diagnostic) {
	p := New(tokens)
	prog := p.ParseProgram()
	return prog, p.err
}

func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.check(token.EOF) && p.err == nil {
		stmt := p.parseStatement()
		if p.err != nil {
			break
		}
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.terminateStatement()
	}
	return prog
}

// === Token stream helpers ===

func (p *Parser) current() token.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() token.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) check(t token.Type) bool {
	return p.current().Type == t
}

// match consumes the current token when it has the given type.
func (p *Parser) match(t token.Type) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t token.Type) token.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorf("Expected %s, found %s", t.Description(), p.current().Type.Description())
	return p.current()
}

func (p *Parser) expectIdent() string {
	if p.check(token.IDENT) {
		return p.advance().Lexeme
	}
	p.errorf("Expected identifier, found %s", p.current().Type.Description())
	return ""
}

func (p *Parser) skipNewlines() {
	for p.check(token.NEWLINE) {
		p.advance()
	}
}

// terminateStatement consumes the statement separator. Block keywords are
// left for the enclosing construct to consume.
func (p *Parser) terminateStatement() {
	if p.err != nil {
		return
	}
	switch p.current().Type {
	case token.NEWLINE:
		p.skipNewlines()
	case token.EOF, token.END, token.OTHERWISE, token.WHEN, token.HARMONIZE:
		// Block boundary; leave it in place.
	default:
		p.errorf("Expected newline, found %s", p.current().Type.Description())
	}
}

func (p *Parser) errorf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	p.err = diagnostics.NewErrorAt(diagnostics.ErrP001, p.current(), p.pos,
		fmt.Sprintf(format, args...))
}

func (p *Parser) spanHere() ast.SourceSpan {
	return ast.SpanFromToken(p.current())
}

// ParserProcessor adapts the parser to the pipeline.
type ParserProcessor struct{}

func (pp *ParserProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.TokenStream == nil {
		ctx.AddError(diagnostics.NewError(diagnostics.ErrP000, token.Token{},
			"parser: token stream is nil"))
		return ctx
	}

	prog, err := Parse(ctx.TokenStream)
	prog.File = ctx.FilePath
	ctx.AstRoot = prog
	if err != nil {
		ctx.AddError(err)
	}
	return ctx
}
