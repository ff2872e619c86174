package parser

import (
	"strconv"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/token"
)

// parseExpression is the entry point of the precedence cascade:
// pipeline -> or -> and -> comparison -> additive -> multiplicative ->
// unary -> postfix -> primary.
func (p *Parser) parseExpression() ast.Expression {
	return p.parsePipeline()
}

// x | f | g — lowest precedence, left-associative.
func (p *Parser) parsePipeline() ast.Expression {
	first := p.parseOr()
	if p.err != nil || !p.check(token.PIPE) {
		return first
	}
	stages := []ast.Expression{first}
	for p.match(token.PIPE) {
		p.skipNewlines()
		stages = append(stages, p.parseOr())
		if p.err != nil {
			return first
		}
	}
	span := stages[0].Span().Join(stages[len(stages)-1].Span())
	return &ast.PipelineExpr{Stages: stages, SrcPos: span}
}

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()
	for p.err == nil && p.check(token.OR) {
		p.advance()
		right := p.parseAnd()
		if p.err != nil {
			return left
		}
		left = &ast.BinaryExpr{Left: left, Op: ast.OpOr, Right: right,
			SrcPos: left.Span().Join(right.Span())}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseComparison()
	for p.err == nil && p.check(token.AND) {
		p.advance()
		right := p.parseComparison()
		if p.err != nil {
			return left
		}
		left = &ast.BinaryExpr{Left: left, Op: ast.OpAnd, Right: right,
			SrcPos: left.Span().Join(right.Span())}
	}
	return left
}

func (p *Parser) parseComparison() ast.Expression {
	left := p.parseAdditive()
	for p.err == nil {
		var op ast.BinaryOperator
		switch p.current().Type {
		case token.IS:
			op = ast.OpEqual
		case token.IS_NOT:
			op = ast.OpNotEqual
		case token.GREATER_THAN:
			op = ast.OpGreater
		case token.LESS_THAN:
			op = ast.OpLess
		case token.AT_LEAST:
			op = ast.OpGreaterEq
		case token.AT_MOST:
			op = ast.OpLessEq
		default:
			return left
		}
		p.advance()
		right := p.parseAdditive()
		if p.err != nil {
			return left
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right,
			SrcPos: left.Span().Join(right.Span())}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	for p.err == nil {
		var op ast.BinaryOperator
		switch p.current().Type {
		case token.PLUS:
			op = ast.OpAdd
		case token.MINUS:
			op = ast.OpSub
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		if p.err != nil {
			return left
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right,
			SrcPos: left.Span().Join(right.Span())}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parseUnary()
	for p.err == nil {
		var op ast.BinaryOperator
		switch p.current().Type {
		case token.STAR:
			op = ast.OpMul
		case token.SLASH:
			op = ast.OpDiv
		case token.PERCENT:
			op = ast.OpMod
		default:
			return left
		}
		p.advance()
		right := p.parseUnary()
		if p.err != nil {
			return left
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right,
			SrcPos: left.Span().Join(right.Span())}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	switch p.current().Type {
	case token.NOT:
		start := p.spanHere()
		p.advance()
		operand := p.parseUnary()
		if p.err != nil {
			return operand
		}
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand,
			SrcPos: start.Join(operand.Span())}
	case token.MINUS:
		start := p.spanHere()
		p.advance()
		operand := p.parseUnary()
		if p.err != nil {
			return operand
		}
		return &ast.UnaryExpr{Op: ast.OpNegate, Operand: operand,
			SrcPos: start.Join(operand.Span())}
	case token.BORROW:
		start := p.spanHere()
		p.advance()
		mutable := p.match(token.MUT)
		value := p.parseUnary()
		if p.err != nil {
			return value
		}
		return &ast.BorrowExpr{Value: value, Mutable: mutable,
			SrcPos: start.Join(value.Span())}
	}
	return p.parsePostfix()
}

// parsePostfix handles call, generic call/struct literal, field access,
// index access, struct literal, and the try operator.
func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()

	for p.err == nil {
		switch p.current().Type {
		case token.DOT:
			p.advance()
			fieldTok := p.expect(token.IDENT)
			expr = &ast.FieldAccess{Object: expr, Field: fieldTok.Lexeme,
				SrcPos: expr.Span().Join(ast.SpanFromToken(fieldTok))}

		case token.LANGLE:
			// Type arguments commit only when the closing '>' is followed by
			// '(' (generic call) or '{' (generic struct literal); anything
			// else rewinds and ends the postfix chain.
			save := p.pos
			typeArgs, ok := p.tryParseTypeArgs()
			if !ok {
				p.pos = save
				return expr
			}
			switch p.current().Type {
			case token.LPAREN:
				args := p.parseCallArgs()
				expr = &ast.CallExpr{Callee: expr, TypeArgs: typeArgs, Args: args,
					SrcPos: expr.Span().Join(p.spanHere())}
			case token.LBRACE:
				ident, isIdent := expr.(*ast.Identifier)
				if !isIdent {
					p.errorf("Type arguments can only be used with identifiers")
					return expr
				}
				expr = p.parseStructLiteral(ident.Name, typeArgs, ident.SrcPos)
			default:
				p.pos = save
				return expr
			}

		case token.LPAREN:
			args := p.parseCallArgs()
			expr = &ast.CallExpr{Callee: expr, Args: args,
				SrcPos: expr.Span().Join(p.spanHere())}

		case token.LBRACKET:
			p.advance()
			p.skipNewlines()
			index := p.parseExpression()
			p.skipNewlines()
			end := p.spanHere()
			p.expect(token.RBRACKET)
			expr = &ast.IndexAccess{Object: expr, Index: index,
				SrcPos: expr.Span().Join(end)}

		case token.LBRACE:
			ident, isIdent := expr.(*ast.Identifier)
			if !isIdent || !isUpperInitial(ident.Name) {
				return expr
			}
			expr = p.parseStructLiteral(ident.Name, nil, ident.SrcPos)

		case token.QUESTION:
			tok := p.advance()
			expr = &ast.TryExpr{Expr: expr,
				SrcPos: expr.Span().Join(ast.SpanFromToken(tok))}

		default:
			return expr
		}
	}
	return expr
}

// tryParseTypeArgs attempts `<T, U, ...>` at the current position. It
// reports failure instead of recording an error so the caller can rewind.
func (p *Parser) tryParseTypeArgs() ([]ast.TypeAnnotation, bool) {
	if !p.match(token.LANGLE) {
		return nil, false
	}
	var args []ast.TypeAnnotation
	for {
		typ, ok := p.tryParseTypeAnnotation()
		if !ok {
			return nil, false
		}
		args = append(args, typ)
		if !p.match(token.COMMA) {
			break
		}
	}
	if !p.match(token.RANGLE) {
		return nil, false
	}
	return args, true
}

func (p *Parser) parseCallArgs() []ast.Expression {
	p.expect(token.LPAREN)
	p.skipNewlines()
	var args []ast.Expression
	if !p.check(token.RPAREN) {
		for p.err == nil {
			args = append(args, p.parseExpression())
			if !p.match(token.COMMA) {
				break
			}
			p.skipNewlines()
		}
	}
	p.skipNewlines()
	p.expect(token.RPAREN)
	return args
}

// Name { field: value, ... } with the name and any type args already parsed.
func (p *Parser) parseStructLiteral(name string, typeArgs []ast.TypeAnnotation, start ast.SourceSpan) ast.Expression {
	p.expect(token.LBRACE)
	p.skipNewlines()
	var fields []ast.StructLiteralField
	if !p.check(token.RBRACE) {
		for p.err == nil {
			fieldName := p.expectIdent()
			p.expect(token.COLON)
			value := p.parseExpression()
			fields = append(fields, ast.StructLiteralField{Name: fieldName, Value: value})
			if !p.match(token.COMMA) {
				break
			}
			p.skipNewlines()
		}
	}
	p.skipNewlines()
	end := p.spanHere()
	p.expect(token.RBRACE)
	return &ast.StructLiteral{StructName: name, TypeArgs: typeArgs, Fields: fields,
		SrcPos: start.Join(end)}
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.current()
	switch tok.Type {
	case token.NUMBER:
		p.advance()
		value, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.errorf("Malformed number literal %q", tok.Lexeme)
			return &ast.NumberLiteral{SrcPos: ast.SpanFromToken(tok)}
		}
		return &ast.NumberLiteral{Value: value, SrcPos: ast.SpanFromToken(tok)}

	case token.TEXT:
		p.advance()
		return &ast.TextLiteral{Value: tok.Lexeme, SrcPos: ast.SpanFromToken(tok)}

	case token.TRUTH:
		p.advance()
		return &ast.TruthLiteral{Value: tok.Lexeme == "true", SrcPos: ast.SpanFromToken(tok)}

	case token.NOTHING:
		p.advance()
		return &ast.NothingLiteral{SrcPos: ast.SpanFromToken(tok)}

	case token.IDENT:
		p.advance()
		return &ast.Identifier{Name: tok.Lexeme, SrcPos: ast.SpanFromToken(tok)}

	case token.TRIUMPH:
		p.advance()
		inner := p.parseWrappedValue()
		return &ast.TriumphExpr{Value: inner, SrcPos: ast.SpanFromToken(tok).Join(p.spanHere())}

	case token.MISHAP:
		p.advance()
		inner := p.parseWrappedValue()
		return &ast.MishapExpr{Value: inner, SrcPos: ast.SpanFromToken(tok).Join(p.spanHere())}

	case token.PRESENT:
		p.advance()
		inner := p.parseWrappedValue()
		return &ast.PresentExpr{Value: inner, SrcPos: ast.SpanFromToken(tok).Join(p.spanHere())}

	case token.ABSENT:
		p.advance()
		return &ast.AbsentExpr{SrcPos: ast.SpanFromToken(tok)}

	case token.RANGE:
		p.advance()
		p.expect(token.LPAREN)
		start := p.parseExpression()
		p.expect(token.COMMA)
		end := p.parseExpression()
		p.expect(token.RPAREN)
		return &ast.RangeExpr{Start: start, End: end,
			SrcPos: ast.SpanFromToken(tok).Join(p.spanHere())}

	case token.LBRACKET:
		p.advance()
		p.skipNewlines()
		var elements []ast.Expression
		if !p.check(token.RBRACKET) {
			for p.err == nil {
				elements = append(elements, p.parseExpression())
				if !p.match(token.COMMA) {
					break
				}
				p.skipNewlines()
			}
		}
		p.skipNewlines()
		end := p.spanHere()
		p.expect(token.RBRACKET)
		return &ast.ListLiteral{Elements: elements, SrcPos: ast.SpanFromToken(tok).Join(end)}

	case token.LBRACE:
		p.advance()
		p.skipNewlines()
		var entries []ast.MapEntry
		if !p.check(token.RBRACE) {
			for p.err == nil {
				var key string
				switch p.current().Type {
				case token.IDENT, token.TEXT:
					key = p.advance().Lexeme
				default:
					p.errorf("Expected map key, found %s", p.current().Type.Description())
					return &ast.MapLiteral{SrcPos: ast.SpanFromToken(tok)}
				}
				p.expect(token.COLON)
				value := p.parseExpression()
				entries = append(entries, ast.MapEntry{Key: key, Value: value})
				if !p.match(token.COMMA) {
					break
				}
				p.skipNewlines()
			}
		}
		p.skipNewlines()
		end := p.spanHere()
		p.expect(token.RBRACE)
		return &ast.MapLiteral{Entries: entries, SrcPos: ast.SpanFromToken(tok).Join(end)}

	case token.LPAREN:
		p.advance()
		p.skipNewlines()
		expr := p.parseExpression()
		p.skipNewlines()
		p.expect(token.RPAREN)
		return expr
	}

	p.errorf("Expected expression, found %s", tok.Type.Description())
	return &ast.NothingLiteral{SrcPos: ast.SpanFromToken(tok)}
}

// parseWrappedValue parses the parenthesized payload of Triumph/Mishap/
// Present.
func (p *Parser) parseWrappedValue() ast.Expression {
	p.expect(token.LPAREN)
	p.skipNewlines()
	inner := p.parseExpression()
	p.skipNewlines()
	p.expect(token.RPAREN)
	return inner
}
