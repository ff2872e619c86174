package parser

import (
	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/token"
)

func (p *Parser) parseStatement() ast.Statement {
	switch p.current().Type {
	case token.BIND:
		return p.parseBind()
	case token.WEAVE:
		return p.parseWeave()
	case token.SET:
		return p.parseSet()
	case token.SHOULD:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	case token.WHILST:
		return p.parseWhile()
	case token.CHANT:
		return p.parseChantDef(true)
	case token.FORM:
		return p.parseFormDef()
	case token.VARIANT:
		return p.parseVariantDef()
	case token.ASPECT:
		return p.parseAspectDef()
	case token.EMBODY:
		return p.parseEmbody()
	case token.YIELD:
		return p.parseYield()
	case token.MATCH:
		return p.parseMatch()
	case token.ATTEMPT:
		return p.parseAttempt()
	case token.REQUEST:
		return p.parseRequest()
	case token.GROVE:
		return p.parseModuleDecl()
	case token.SUMMON:
		return p.parseSummon()
	case token.GATHER:
		return p.parseGather()
	case token.OFFER:
		return p.parseOffer()
	case token.BREAK:
		tok := p.advance()
		return &ast.BreakStmt{SrcPos: ast.SpanFromToken(tok)}
	case token.CONTINUE:
		tok := p.advance()
		return &ast.ContinueStmt{SrcPos: ast.SpanFromToken(tok)}
	}

	expr := p.parseExpression()
	if p.err != nil {
		return nil
	}
	return &ast.ExprStatement{Expr: expr}
}

// parseBlock reads newline-separated statements until one of the terminator
// tokens. The terminator is not consumed.
func (p *Parser) parseBlock(terminators ...token.Type) []ast.Statement {
	var stmts []ast.Statement
	p.skipNewlines()
	for p.err == nil && !p.check(token.EOF) && !p.checkAny(terminators) {
		stmt := p.parseStatement()
		if p.err != nil {
			return stmts
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.terminateStatement()
	}
	return stmts
}

func (p *Parser) checkAny(types []token.Type) bool {
	for _, t := range types {
		if p.check(t) {
			return true
		}
	}
	return false
}

// bind name [: Type] to expr
func (p *Parser) parseBind() ast.Statement {
	start := p.spanHere()
	p.expect(token.BIND)
	name := p.expectIdent()
	var typ ast.TypeAnnotation
	if p.match(token.COLON) {
		typ = p.parseTypeAnnotation()
	}
	p.expect(token.TO)
	value := p.parseExpression()
	if p.err != nil {
		return nil
	}
	return &ast.BindStmt{Name: name, Typ: typ, Value: value, SrcPos: start.Join(value.Span())}
}

// weave name [: Type] as expr
func (p *Parser) parseWeave() ast.Statement {
	start := p.spanHere()
	p.expect(token.WEAVE)
	name := p.expectIdent()
	var typ ast.TypeAnnotation
	if p.match(token.COLON) {
		typ = p.parseTypeAnnotation()
	}
	p.expect(token.AS)
	value := p.parseExpression()
	if p.err != nil {
		return nil
	}
	return &ast.WeaveStmt{Name: name, Typ: typ, Value: value, SrcPos: start.Join(value.Span())}
}

// set lvalue to expr
func (p *Parser) parseSet() ast.Statement {
	start := p.spanHere()
	p.expect(token.SET)
	target := p.parsePostfix()
	if p.err != nil {
		return nil
	}
	switch target.(type) {
	case *ast.Identifier, *ast.IndexAccess, *ast.FieldAccess:
	default:
		p.errorf("Invalid assignment target")
		return nil
	}
	p.expect(token.TO)
	value := p.parseExpression()
	if p.err != nil {
		return nil
	}
	return &ast.SetStmt{Target: target, Value: value, SrcPos: start.Join(value.Span())}
}

// should cond then ... [otherwise ...] end
func (p *Parser) parseIf() ast.Statement {
	start := p.spanHere()
	p.expect(token.SHOULD)
	cond := p.parseExpression()
	p.expect(token.THEN)
	thenBranch := p.parseBlock(token.OTHERWISE, token.END)
	var elseBranch []ast.Statement
	if p.match(token.OTHERWISE) {
		elseBranch = p.parseBlock(token.END)
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.IfStmt{Condition: cond, ThenBranch: thenBranch, ElseBranch: elseBranch,
		SrcPos: start.Join(end)}
}

// for each v in iterable then ... end
func (p *Parser) parseFor() ast.Statement {
	start := p.spanHere()
	p.expect(token.FOR)
	p.expect(token.EACH)
	variable := p.expectIdent()
	p.expect(token.IN)
	iterable := p.parseExpression()
	p.expect(token.THEN)
	body := p.parseBlock(token.END)
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.ForStmt{Variable: variable, Iterable: iterable, Body: body,
		SrcPos: start.Join(end)}
}

// whilst cond then ... end
func (p *Parser) parseWhile() ast.Statement {
	start := p.spanHere()
	p.expect(token.WHILST)
	cond := p.parseExpression()
	p.expect(token.THEN)
	body := p.parseBlock(token.END)
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.WhileStmt{Condition: cond, Body: body, SrcPos: start.Join(end)}
}

// chant name[<T,'a,...>](params) [-> Ret] then ... end
//
// withBody=false parses a bare signature (aspect method declarations).
func (p *Parser) parseChantDef(withBody bool) *ast.ChantDef {
	start := p.spanHere()
	p.expect(token.CHANT)
	name := p.expectIdent()

	var typeParams []string
	var lifetimeParams []ast.Lifetime
	if p.match(token.LANGLE) {
		for p.err == nil {
			if p.match(token.TICK) {
				lifetimeParams = append(lifetimeParams, ast.Lifetime{Name: p.expectIdent()})
			} else {
				typeParams = append(typeParams, p.expectIdent())
			}
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RANGLE)
	}

	params := p.parseParameterList()

	var returnType ast.TypeAnnotation
	if p.match(token.ARROW) {
		returnType = p.parseTypeAnnotation()
	}

	def := &ast.ChantDef{
		Name:           name,
		TypeParams:     typeParams,
		LifetimeParams: lifetimeParams,
		Params:         params,
		ReturnType:     returnType,
	}

	if withBody {
		p.expect(token.THEN)
		def.Body = p.parseBlock(token.END)
		end := p.spanHere()
		p.expect(token.END)
		def.SrcPos = start.Join(end)
	} else {
		def.SrcPos = start
	}
	if p.err != nil {
		return nil
	}
	return def
}

// (param, ...) where param = [...][borrow ['a] [mut]] name [as Type]
func (p *Parser) parseParameterList() []ast.Parameter {
	p.expect(token.LPAREN)
	p.skipNewlines()
	var params []ast.Parameter
	if !p.check(token.RPAREN) {
		for p.err == nil {
			params = append(params, p.parseParameter())
			if !p.match(token.COMMA) {
				break
			}
			p.skipNewlines()
		}
	}
	p.skipNewlines()
	p.expect(token.RPAREN)
	return params
}

func (p *Parser) parseParameter() ast.Parameter {
	param := ast.Parameter{BorrowMode: ast.Owned}
	if p.match(token.ELLIPSIS) {
		param.IsVariadic = true
	}
	if p.match(token.BORROW) {
		param.BorrowMode = ast.Borrowed
		if p.match(token.TICK) {
			lt := ast.Lifetime{Name: p.expectIdent()}
			param.Lifetime = &lt
		}
		if p.match(token.MUT) {
			param.BorrowMode = ast.BorrowedMut
		}
	}
	param.Name = p.expectIdent()
	if p.match(token.AS) {
		param.Typ = p.parseTypeAnnotation()
	}
	return param
}

// form Name[<T,...>] with field as Type ... end
func (p *Parser) parseFormDef() ast.Statement {
	start := p.spanHere()
	p.expect(token.FORM)
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	p.expect(token.WITH)
	p.skipNewlines()

	var fields []ast.StructField
	for p.err == nil && !p.check(token.END) && !p.check(token.EOF) {
		fieldName := p.expectIdent()
		p.expect(token.AS)
		typ := p.parseTypeAnnotation()
		fields = append(fields, ast.StructField{Name: fieldName, Typ: typ})
		p.skipNewlines()
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.FormDef{Name: name, TypeParams: typeParams, Fields: fields,
		SrcPos: start.Join(end)}
}

// variant Name[<T,...>] then Case[(f1: T1, ...)], ... end
func (p *Parser) parseVariantDef() ast.Statement {
	start := p.spanHere()
	p.expect(token.VARIANT)
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	p.expect(token.THEN)
	p.skipNewlines()

	var cases []ast.VariantCase
	for p.err == nil && !p.check(token.END) && !p.check(token.EOF) {
		caseName := p.expectIdent()
		vc := ast.VariantCase{Name: caseName}
		if p.match(token.LPAREN) {
			p.skipNewlines()
			if !p.check(token.RPAREN) {
				for p.err == nil {
					fieldName := p.expectIdent()
					p.expect(token.COLON)
					typ := p.parseTypeAnnotation()
					vc.Fields = append(vc.Fields, ast.Parameter{Name: fieldName, Typ: typ})
					if !p.match(token.COMMA) {
						break
					}
					p.skipNewlines()
				}
			}
			p.skipNewlines()
			p.expect(token.RPAREN)
		}
		cases = append(cases, vc)
		if !p.match(token.COMMA) {
			p.skipNewlines()
			break
		}
		p.skipNewlines()
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.VariantDef{Name: name, TypeParams: typeParams, Cases: cases,
		SrcPos: start.Join(end)}
}

// aspect Name[<T,...>] then chant sig ... end
func (p *Parser) parseAspectDef() ast.Statement {
	start := p.spanHere()
	p.expect(token.ASPECT)
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	p.expect(token.THEN)
	p.skipNewlines()

	var methods []ast.TraitMethod
	for p.err == nil && p.check(token.CHANT) {
		sig := p.parseChantDef(false)
		if sig == nil {
			break
		}
		methods = append(methods, ast.TraitMethod{
			Name:       sig.Name,
			Params:     sig.Params,
			ReturnType: sig.ReturnType,
		})
		p.skipNewlines()
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.AspectDef{Name: name, TypeParams: typeParams, Methods: methods,
		SrcPos: start.Join(end)}
}

// embody Trait[<Args>] for Type then chant impls end
func (p *Parser) parseEmbody() ast.Statement {
	start := p.spanHere()
	p.expect(token.EMBODY)
	aspectName := p.expectIdent()

	var typeArgs []ast.TypeAnnotation
	if p.match(token.LANGLE) {
		for p.err == nil {
			typeArgs = append(typeArgs, p.parseTypeAnnotation())
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RANGLE)
	}

	p.expect(token.FOR)
	targetType := p.parseTypeAnnotation()
	p.expect(token.THEN)
	p.skipNewlines()

	var methods []*ast.ChantDef
	for p.err == nil && p.check(token.CHANT) {
		def := p.parseChantDef(true)
		if def == nil {
			break
		}
		methods = append(methods, def)
		p.skipNewlines()
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.EmbodyStmt{AspectName: aspectName, TypeArgs: typeArgs,
		TargetType: targetType, Methods: methods, SrcPos: start.Join(end)}
}

func (p *Parser) parseYield() ast.Statement {
	start := p.spanHere()
	p.expect(token.YIELD)
	value := p.parseExpression()
	if p.err != nil {
		return nil
	}
	return &ast.YieldStmt{Value: value, SrcPos: start.Join(value.Span())}
}

// match expr with when pat then ... [otherwise then ...] end
func (p *Parser) parseMatch() ast.Statement {
	start := p.spanHere()
	p.expect(token.MATCH)
	value := p.parseExpression()
	p.expect(token.WITH)
	p.skipNewlines()

	var arms []ast.MatchArm
	for p.err == nil {
		if p.match(token.WHEN) {
			pat := p.parsePattern()
			p.expect(token.THEN)
			body := p.parseBlock(token.WHEN, token.OTHERWISE, token.END)
			arms = append(arms, ast.MatchArm{Pattern: pat, Body: body})
			continue
		}
		if p.match(token.OTHERWISE) {
			p.expect(token.THEN)
			body := p.parseBlock(token.WHEN, token.OTHERWISE, token.END)
			arms = append(arms, ast.MatchArm{Pattern: &ast.WildcardPattern{}, Body: body})
			continue
		}
		break
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.MatchStmt{Value: value, Arms: arms, SrcPos: start.Join(end)}
}

func (p *Parser) parsePattern() ast.Pattern {
	tok := p.current()
	switch tok.Type {
	case token.NUMBER, token.TEXT, token.TRUTH, token.NOTHING, token.MINUS:
		lit := p.parseUnary()
		return &ast.LiteralPattern{Value: lit}
	case token.TRIUMPH, token.MISHAP, token.PRESENT, token.ABSENT:
		p.advance()
		pat := &ast.EnumPattern{Variant: tok.Lexeme}
		if p.match(token.LPAREN) {
			pat.Inner = p.parsePatternGroup()
			p.expect(token.RPAREN)
		}
		return pat
	case token.IDENT:
		name := p.advance().Lexeme
		if name == "_" {
			return &ast.WildcardPattern{}
		}
		if p.check(token.LPAREN) {
			p.advance()
			pat := &ast.EnumPattern{Variant: name, Inner: p.parsePatternGroup()}
			p.expect(token.RPAREN)
			return pat
		}
		if isUpperInitial(name) {
			// Unit case of a user variant: `when Red then ...`
			return &ast.EnumPattern{Variant: name}
		}
		return &ast.IdentPattern{Name: name}
	}
	p.errorf("Expected pattern, found %s", tok.Type.Description())
	return &ast.WildcardPattern{}
}

// parsePatternGroup parses the payload of an enum pattern: a single pattern
// or a comma-separated tuple of patterns.
func (p *Parser) parsePatternGroup() ast.Pattern {
	first := p.parsePattern()
	if !p.check(token.COMMA) {
		return first
	}
	tuple := &ast.TuplePattern{Elements: []ast.Pattern{first}}
	for p.match(token.COMMA) {
		tuple.Elements = append(tuple.Elements, p.parsePattern())
	}
	return tuple
}

// attempt ... harmonize on Kind then ... end
func (p *Parser) parseAttempt() ast.Statement {
	start := p.spanHere()
	p.expect(token.ATTEMPT)
	body := p.parseBlock(token.HARMONIZE, token.END)

	var handlers []ast.ErrorHandler
	for p.err == nil && p.match(token.HARMONIZE) {
		p.expect(token.ON)
		kind := p.expectIdent()
		p.expect(token.THEN)
		handlerBody := p.parseBlock(token.HARMONIZE, token.END)
		handlers = append(handlers, ast.ErrorHandler{ErrorType: kind, Body: handlerBody})
	}
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}
	return &ast.AttemptStmt{Body: body, Handlers: handlers, SrcPos: start.Join(end)}
}

// request cap_expr with justification "text"
func (p *Parser) parseRequest() ast.Statement {
	start := p.spanHere()
	p.expect(token.REQUEST)
	capability := p.parsePostfix()
	p.expect(token.WITH)
	p.expect(token.JUSTIFICATION)
	just := p.expect(token.TEXT)
	if p.err != nil {
		return nil
	}
	return &ast.RequestStmt{Capability: capability, Justification: just.Lexeme,
		SrcPos: start.Join(ast.SpanFromToken(just))}
}

// grove Name with ... end
func (p *Parser) parseModuleDecl() ast.Statement {
	start := p.spanHere()
	p.expect(token.GROVE)
	name := p.expectIdent()
	p.expect(token.WITH)
	body := p.parseBlock(token.END)
	end := p.spanHere()
	p.expect(token.END)
	if p.err != nil {
		return nil
	}

	var exports []string
	for _, stmt := range body {
		if off, ok := stmt.(*ast.ExportStmt); ok {
			exports = append(exports, off.Items...)
		}
	}
	return &ast.ModuleDecl{Name: name, Body: body, Exports: exports,
		SrcPos: start.Join(end)}
}

// summon [Name] from "path" [as Alias]
func (p *Parser) parseSummon() ast.Statement {
	start := p.spanHere()
	p.expect(token.SUMMON)
	var moduleName string
	if p.check(token.IDENT) {
		moduleName = p.advance().Lexeme
	}
	p.expect(token.FROM)
	path := p.expect(token.TEXT)
	var alias string
	if p.match(token.AS) {
		alias = p.expectIdent()
	}
	if p.err != nil {
		return nil
	}
	return &ast.ImportStmt{ModuleName: moduleName, Path: path.Lexeme, Alias: alias,
		SrcPos: start.Join(ast.SpanFromToken(path))}
}

// gather a, b, ... from Module
func (p *Parser) parseGather() ast.Statement {
	start := p.spanHere()
	p.expect(token.GATHER)
	var items []string
	for p.err == nil {
		items = append(items, p.expectIdent())
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.FROM)
	module := p.expectIdent()
	if p.err != nil {
		return nil
	}
	return &ast.ImportStmt{ModuleName: module, Items: items, SrcPos: start}
}

// offer a, b, ...
func (p *Parser) parseOffer() ast.Statement {
	start := p.spanHere()
	p.expect(token.OFFER)
	var items []string
	for p.err == nil {
		items = append(items, p.expectIdent())
		if !p.match(token.COMMA) {
			break
		}
	}
	if p.err != nil {
		return nil
	}
	return &ast.ExportStmt{Items: items, SrcPos: start}
}

func isUpperInitial(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}

func (p *Parser) parseTypeParams() []string {
	var params []string
	if p.match(token.LANGLE) {
		for p.err == nil {
			params = append(params, p.expectIdent())
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RANGLE)
	}
	return params
}
