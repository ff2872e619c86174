package parser

import (
	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/token"
)

// parseTypeAnnotation parses a type, recording an error on failure.
func (p *Parser) parseTypeAnnotation() ast.TypeAnnotation {
	typ, ok := p.tryParseTypeAnnotation()
	if !ok {
		p.errorf("Expected type annotation, found %s", p.current().Type.Description())
		return &ast.NamedType{Name: "Nothing"}
	}
	return typ
}

// tryParseTypeAnnotation attempts a type at the current position without
// recording errors, so callers can rewind (generic-call disambiguation).
func (p *Parser) tryParseTypeAnnotation() (ast.TypeAnnotation, bool) {
	var typ ast.TypeAnnotation

	switch p.current().Type {
	case token.BORROW:
		p.advance()
		var lifetime *ast.Lifetime
		if p.match(token.TICK) {
			if !p.check(token.IDENT) {
				return nil, false
			}
			lt := ast.Lifetime{Name: p.advance().Lexeme}
			lifetime = &lt
		}
		mutable := p.match(token.MUT)
		inner, ok := p.tryParseTypeAnnotation()
		if !ok {
			return nil, false
		}
		typ = &ast.BorrowedType{Lifetime: lifetime, Inner: inner, Mutable: mutable}

	case token.IDENT:
		name := p.advance().Lexeme
		switch {
		case name == "Map":
			typ = &ast.MapType{}
		case p.check(token.LANGLE):
			p.advance()
			if name == "Function" {
				fn, ok := p.tryParseFunctionType()
				if !ok {
					return nil, false
				}
				typ = fn
			} else {
				var args []ast.TypeAnnotation
				for {
					arg, ok := p.tryParseTypeAnnotation()
					if !ok {
						return nil, false
					}
					args = append(args, arg)
					if !p.match(token.COMMA) {
						break
					}
				}
				if !p.match(token.RANGLE) {
					return nil, false
				}
				if name == "List" && len(args) == 1 {
					typ = &ast.ListType{Inner: args[0]}
				} else {
					typ = &ast.ParametrizedType{Name: name, TypeArgs: args}
				}
			}
		case isGenericName(name):
			typ = &ast.GenericType{Name: name}
		default:
			typ = &ast.NamedType{Name: name}
		}

	default:
		return nil, false
	}

	if p.match(token.QUESTION) {
		typ = &ast.OptionalType{Inner: typ}
	}
	return typ, true
}

// Function<(A, B) -> C> with "Function<" already consumed.
func (p *Parser) tryParseFunctionType() (ast.TypeAnnotation, bool) {
	if !p.match(token.LPAREN) {
		return nil, false
	}
	var params []ast.TypeAnnotation
	if !p.check(token.RPAREN) {
		for {
			param, ok := p.tryParseTypeAnnotation()
			if !ok {
				return nil, false
			}
			params = append(params, param)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if !p.match(token.RPAREN) || !p.match(token.ARROW) {
		return nil, false
	}
	ret, ok := p.tryParseTypeAnnotation()
	if !ok {
		return nil, false
	}
	if !p.match(token.RANGLE) {
		return nil, false
	}
	return &ast.FunctionType{ParamTypes: params, ReturnType: ret}, true
}

// isGenericName follows the single-uppercase-letter convention for type
// parameters: T, U, K, V.
func isGenericName(name string) bool {
	return len(name) == 1 && name[0] >= 'A' && name[0] <= 'Z'
}
