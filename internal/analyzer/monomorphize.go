// Package analyzer holds the semantic passes that run between parsing and
// execution: monomorphization of generics, the borrow and lifetime checkers,
// and constraint-based type inference.
package analyzer

import (
	"sort"
	"strings"

	"github.com/glimmerweave/gw/internal/ast"
)

// Monomorphizer specializes generic chants per distinct tuple of type
// arguments. Two passes: collect generic definitions, then record every
// instantiation site. Specialized definitions are emitted ahead of the
// remaining program so later code can reference them; generic definitions
// and explicit type arguments do not survive the rewrite.
type Monomorphizer struct {
	generics map[string]*ast.ChantDef

	// instantiations is keyed by specialized name so duplicates collapse.
	instantiations map[string]instantiation
}

type instantiation struct {
	genericName string
	typeArgs    []ast.TypeAnnotation
	specialized string
}

func NewMonomorphizer() *Monomorphizer {
	return &Monomorphizer{
		generics:       make(map[string]*ast.ChantDef),
		instantiations: make(map[string]instantiation),
	}
}

// Monomorphize rewrites prog into a generics-free program. Running it on an
// already-monomorphized program returns an equivalent program.
func (m *Monomorphizer) Monomorphize(prog *ast.Program) *ast.Program {
	m.collectGenerics(prog.Statements)
	m.findInstantiations(prog.Statements)

	out := &ast.Program{File: prog.File}

	// Deterministic output order: (generic name, specialized name).
	keys := make([]string, 0, len(m.instantiations))
	for key := range m.instantiations {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.instantiations[keys[i]], m.instantiations[keys[j]]
		if a.genericName != b.genericName {
			return a.genericName < b.genericName
		}
		return a.specialized < b.specialized
	})
	for _, key := range keys {
		inst := m.instantiations[key]
		def := m.generics[inst.genericName]
		out.Statements = append(out.Statements, m.specialize(def, inst))
	}

	for _, stmt := range prog.Statements {
		if def, ok := stmt.(*ast.ChantDef); ok && len(def.TypeParams) > 0 {
			continue // generic definitions are dropped
		}
		out.Statements = append(out.Statements, m.transformStmt(stmt))
	}
	return out
}

func (m *Monomorphizer) collectGenerics(stmts []ast.Statement) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.ChantDef:
			if len(s.TypeParams) > 0 {
				m.generics[s.Name] = s
			}
			m.collectGenerics(s.Body)
		case *ast.IfStmt:
			m.collectGenerics(s.ThenBranch)
			m.collectGenerics(s.ElseBranch)
		case *ast.ForStmt:
			m.collectGenerics(s.Body)
		case *ast.WhileStmt:
			m.collectGenerics(s.Body)
		case *ast.ModuleDecl:
			m.collectGenerics(s.Body)
		}
	}
}

func (m *Monomorphizer) findInstantiations(stmts []ast.Statement) {
	for _, stmt := range stmts {
		m.findInStmt(stmt)
	}
}

func (m *Monomorphizer) findInStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		m.findInExpr(s.Value)
	case *ast.WeaveStmt:
		m.findInExpr(s.Value)
	case *ast.SetStmt:
		m.findInExpr(s.Target)
		m.findInExpr(s.Value)
	case *ast.IfStmt:
		m.findInExpr(s.Condition)
		m.findInstantiations(s.ThenBranch)
		m.findInstantiations(s.ElseBranch)
	case *ast.ForStmt:
		m.findInExpr(s.Iterable)
		m.findInstantiations(s.Body)
	case *ast.WhileStmt:
		m.findInExpr(s.Condition)
		m.findInstantiations(s.Body)
	case *ast.ChantDef:
		m.findInstantiations(s.Body)
	case *ast.YieldStmt:
		m.findInExpr(s.Value)
	case *ast.MatchStmt:
		m.findInExpr(s.Value)
		for _, arm := range s.Arms {
			m.findInstantiations(arm.Body)
		}
	case *ast.AttemptStmt:
		m.findInstantiations(s.Body)
		for _, h := range s.Handlers {
			m.findInstantiations(h.Body)
		}
	case *ast.RequestStmt:
		m.findInExpr(s.Capability)
	case *ast.ModuleDecl:
		m.findInstantiations(s.Body)
	case *ast.EmbodyStmt:
		for _, def := range s.Methods {
			m.findInstantiations(def.Body)
		}
	case *ast.ExprStatement:
		m.findInExpr(s.Expr)
	}
}

func (m *Monomorphizer) findInExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.CallExpr:
		if ident, ok := e.Callee.(*ast.Identifier); ok && len(e.TypeArgs) > 0 {
			if _, isGeneric := m.generics[ident.Name]; isGeneric {
				m.record(ident.Name, e.TypeArgs)
			}
		}
		m.findInExpr(e.Callee)
		for _, arg := range e.Args {
			m.findInExpr(arg)
		}
	case *ast.BinaryExpr:
		m.findInExpr(e.Left)
		m.findInExpr(e.Right)
	case *ast.UnaryExpr:
		m.findInExpr(e.Operand)
	case *ast.BorrowExpr:
		m.findInExpr(e.Value)
	case *ast.TriumphExpr:
		m.findInExpr(e.Value)
	case *ast.MishapExpr:
		m.findInExpr(e.Value)
	case *ast.PresentExpr:
		m.findInExpr(e.Value)
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			m.findInExpr(el)
		}
	case *ast.MapLiteral:
		for _, entry := range e.Entries {
			m.findInExpr(entry.Value)
		}
	case *ast.StructLiteral:
		for _, f := range e.Fields {
			m.findInExpr(f.Value)
		}
	case *ast.FieldAccess:
		m.findInExpr(e.Object)
	case *ast.IndexAccess:
		m.findInExpr(e.Object)
		m.findInExpr(e.Index)
	case *ast.RangeExpr:
		m.findInExpr(e.Start)
		m.findInExpr(e.End)
	case *ast.PipelineExpr:
		for _, stage := range e.Stages {
			m.findInExpr(stage)
		}
	case *ast.TryExpr:
		m.findInExpr(e.Expr)
	}
}

func (m *Monomorphizer) record(name string, typeArgs []ast.TypeAnnotation) {
	specialized := SpecializedName(name, typeArgs)
	if _, seen := m.instantiations[specialized]; seen {
		return
	}
	m.instantiations[specialized] = instantiation{
		genericName: name,
		typeArgs:    typeArgs,
		specialized: specialized,
	}
}

// SpecializedName flattens type arguments into the specialized function
// name: identity + [Number] -> identity_Number;
// List<Number> flattens to List_Number, borrow mut X to Borrowed_mut_X.
func SpecializedName(name string, typeArgs []ast.TypeAnnotation) string {
	parts := []string{name}
	for _, arg := range typeArgs {
		parts = append(parts, FlattenAnnotation(arg))
	}
	return strings.Join(parts, "_")
}

// FlattenAnnotation renders a type annotation as a name fragment.
func FlattenAnnotation(typ ast.TypeAnnotation) string {
	switch t := typ.(type) {
	case *ast.NamedType:
		return t.Name
	case *ast.GenericType:
		return t.Name
	case *ast.ParametrizedType:
		parts := []string{t.Name}
		for _, arg := range t.TypeArgs {
			parts = append(parts, FlattenAnnotation(arg))
		}
		return strings.Join(parts, "_")
	case *ast.ListType:
		return "List_" + FlattenAnnotation(t.Inner)
	case *ast.MapType:
		return "Map"
	case *ast.FunctionType:
		return "Function"
	case *ast.OptionalType:
		return "Optional_" + FlattenAnnotation(t.Inner)
	case *ast.BorrowedType:
		if t.Mutable {
			return "Borrowed_mut_" + FlattenAnnotation(t.Inner)
		}
		return "Borrowed_" + FlattenAnnotation(t.Inner)
	}
	return "Unknown"
}

// specialize builds the concrete ChantDef for one instantiation. Only the
// type annotations of parameters and the return type are substituted; the
// body keeps its structure and is rewritten for call sites like the rest of
// the program.
func (m *Monomorphizer) specialize(def *ast.ChantDef, inst instantiation) *ast.ChantDef {
	subst := make(map[string]ast.TypeAnnotation, len(def.TypeParams))
	for i, param := range def.TypeParams {
		if i < len(inst.typeArgs) {
			subst[param] = inst.typeArgs[i]
		}
	}

	params := make([]ast.Parameter, len(def.Params))
	for i, p := range def.Params {
		params[i] = p
		if p.Typ != nil {
			params[i].Typ = substituteAnnotation(p.Typ, subst)
		}
	}
	var returnType ast.TypeAnnotation
	if def.ReturnType != nil {
		returnType = substituteAnnotation(def.ReturnType, subst)
	}

	body := make([]ast.Statement, len(def.Body))
	for i, stmt := range def.Body {
		body[i] = m.transformStmt(stmt)
	}

	return &ast.ChantDef{
		Name:           inst.specialized,
		LifetimeParams: def.LifetimeParams,
		Params:         params,
		ReturnType:     returnType,
		Body:           body,
		SrcPos:         def.SrcPos,
	}
}

func substituteAnnotation(typ ast.TypeAnnotation, subst map[string]ast.TypeAnnotation) ast.TypeAnnotation {
	switch t := typ.(type) {
	case *ast.GenericType:
		if concrete, ok := subst[t.Name]; ok {
			return concrete
		}
		return t
	case *ast.NamedType:
		// Single-letter names written without a generic context still refer
		// to the type parameter.
		if concrete, ok := subst[t.Name]; ok {
			return concrete
		}
		return t
	case *ast.ParametrizedType:
		args := make([]ast.TypeAnnotation, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = substituteAnnotation(a, subst)
		}
		return &ast.ParametrizedType{Name: t.Name, TypeArgs: args}
	case *ast.ListType:
		return &ast.ListType{Inner: substituteAnnotation(t.Inner, subst)}
	case *ast.FunctionType:
		params := make([]ast.TypeAnnotation, len(t.ParamTypes))
		for i, p := range t.ParamTypes {
			params[i] = substituteAnnotation(p, subst)
		}
		return &ast.FunctionType{
			ParamTypes: params,
			ReturnType: substituteAnnotation(t.ReturnType, subst),
		}
	case *ast.OptionalType:
		return &ast.OptionalType{Inner: substituteAnnotation(t.Inner, subst)}
	case *ast.BorrowedType:
		return &ast.BorrowedType{
			Lifetime: t.Lifetime,
			Inner:    substituteAnnotation(t.Inner, subst),
			Mutable:  t.Mutable,
		}
	}
	return typ
}

// transformStmt rewrites call sites of generic functions to target their
// specializations; everything else is rebuilt structurally.
func (m *Monomorphizer) transformStmt(stmt ast.Statement) ast.Statement {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		out := *s
		out.Value = m.transformExpr(s.Value)
		return &out
	case *ast.WeaveStmt:
		out := *s
		out.Value = m.transformExpr(s.Value)
		return &out
	case *ast.SetStmt:
		out := *s
		out.Target = m.transformExpr(s.Target)
		out.Value = m.transformExpr(s.Value)
		return &out
	case *ast.IfStmt:
		out := *s
		out.Condition = m.transformExpr(s.Condition)
		out.ThenBranch = m.transformStmts(s.ThenBranch)
		out.ElseBranch = m.transformStmts(s.ElseBranch)
		return &out
	case *ast.ForStmt:
		out := *s
		out.Iterable = m.transformExpr(s.Iterable)
		out.Body = m.transformStmts(s.Body)
		return &out
	case *ast.WhileStmt:
		out := *s
		out.Condition = m.transformExpr(s.Condition)
		out.Body = m.transformStmts(s.Body)
		return &out
	case *ast.ChantDef:
		out := *s
		out.Body = m.transformStmts(s.Body)
		return &out
	case *ast.YieldStmt:
		out := *s
		out.Value = m.transformExpr(s.Value)
		return &out
	case *ast.MatchStmt:
		out := *s
		out.Value = m.transformExpr(s.Value)
		out.Arms = make([]ast.MatchArm, len(s.Arms))
		for i, arm := range s.Arms {
			out.Arms[i] = ast.MatchArm{Pattern: arm.Pattern, Body: m.transformStmts(arm.Body)}
		}
		return &out
	case *ast.AttemptStmt:
		out := *s
		out.Body = m.transformStmts(s.Body)
		out.Handlers = make([]ast.ErrorHandler, len(s.Handlers))
		for i, h := range s.Handlers {
			out.Handlers[i] = ast.ErrorHandler{ErrorType: h.ErrorType, Body: m.transformStmts(h.Body)}
		}
		return &out
	case *ast.RequestStmt:
		out := *s
		out.Capability = m.transformExpr(s.Capability)
		return &out
	case *ast.ModuleDecl:
		out := *s
		out.Body = m.transformStmts(s.Body)
		return &out
	case *ast.EmbodyStmt:
		out := *s
		out.Methods = make([]*ast.ChantDef, len(s.Methods))
		for i, def := range s.Methods {
			transformed := m.transformStmt(def).(*ast.ChantDef)
			out.Methods[i] = transformed
		}
		return &out
	case *ast.ExprStatement:
		return &ast.ExprStatement{Expr: m.transformExpr(s.Expr)}
	}
	return stmt
}

func (m *Monomorphizer) transformStmts(stmts []ast.Statement) []ast.Statement {
	if stmts == nil {
		return nil
	}
	out := make([]ast.Statement, len(stmts))
	for i, stmt := range stmts {
		out[i] = m.transformStmt(stmt)
	}
	return out
}

func (m *Monomorphizer) transformExpr(expr ast.Expression) ast.Expression {
	switch e := expr.(type) {
	case *ast.CallExpr:
		out := *e
		if ident, ok := e.Callee.(*ast.Identifier); ok && len(e.TypeArgs) > 0 {
			if _, isGeneric := m.generics[ident.Name]; isGeneric {
				out.Callee = &ast.Identifier{
					Name:   SpecializedName(ident.Name, e.TypeArgs),
					SrcPos: ident.SrcPos,
				}
				out.TypeArgs = nil
			}
		} else {
			out.Callee = m.transformExpr(e.Callee)
		}
		out.Args = make([]ast.Expression, len(e.Args))
		for i, arg := range e.Args {
			out.Args[i] = m.transformExpr(arg)
		}
		return &out
	case *ast.BinaryExpr:
		out := *e
		out.Left = m.transformExpr(e.Left)
		out.Right = m.transformExpr(e.Right)
		return &out
	case *ast.UnaryExpr:
		out := *e
		out.Operand = m.transformExpr(e.Operand)
		return &out
	case *ast.BorrowExpr:
		out := *e
		out.Value = m.transformExpr(e.Value)
		return &out
	case *ast.TriumphExpr:
		out := *e
		out.Value = m.transformExpr(e.Value)
		return &out
	case *ast.MishapExpr:
		out := *e
		out.Value = m.transformExpr(e.Value)
		return &out
	case *ast.PresentExpr:
		out := *e
		out.Value = m.transformExpr(e.Value)
		return &out
	case *ast.ListLiteral:
		out := *e
		out.Elements = make([]ast.Expression, len(e.Elements))
		for i, el := range e.Elements {
			out.Elements[i] = m.transformExpr(el)
		}
		return &out
	case *ast.MapLiteral:
		out := *e
		out.Entries = make([]ast.MapEntry, len(e.Entries))
		for i, entry := range e.Entries {
			out.Entries[i] = ast.MapEntry{Key: entry.Key, Value: m.transformExpr(entry.Value)}
		}
		return &out
	case *ast.StructLiteral:
		out := *e
		out.Fields = make([]ast.StructLiteralField, len(e.Fields))
		for i, f := range e.Fields {
			out.Fields[i] = ast.StructLiteralField{Name: f.Name, Value: m.transformExpr(f.Value)}
		}
		return &out
	case *ast.FieldAccess:
		out := *e
		out.Object = m.transformExpr(e.Object)
		return &out
	case *ast.IndexAccess:
		out := *e
		out.Object = m.transformExpr(e.Object)
		out.Index = m.transformExpr(e.Index)
		return &out
	case *ast.RangeExpr:
		out := *e
		out.Start = m.transformExpr(e.Start)
		out.End = m.transformExpr(e.End)
		return &out
	case *ast.PipelineExpr:
		out := *e
		out.Stages = make([]ast.Expression, len(e.Stages))
		for i, stage := range e.Stages {
			out.Stages[i] = m.transformExpr(stage)
		}
		return &out
	case *ast.TryExpr:
		out := *e
		out.Expr = m.transformExpr(e.Expr)
		return &out
	}
	return expr
}
