package analyzer

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/typesystem"
)

// ConstraintGenerator walks expressions, assigning inference types and
// gathering equality constraints for the solver. Bindings get monomorphic
// schemes; chant definitions are let-generalized.
type ConstraintGenerator struct {
	counter     int
	env         map[string]typesystem.Scheme
	constraints []typesystem.Constraint
}

func NewConstraintGenerator() *ConstraintGenerator {
	return &ConstraintGenerator{env: make(map[string]typesystem.Scheme)}
}

// InferProgram generates constraints for the whole program and solves them.
func (g *ConstraintGenerator) InferProgram(prog *ast.Program) []*typesystem.UnifyError {
	for _, stmt := range prog.Statements {
		g.inferStmt(stmt)
	}
	_, errs := typesystem.Solve(g.constraints)
	return errs
}

// Constraints exposes the gathered requirements, mainly for tests.
func (g *ConstraintGenerator) Constraints() []typesystem.Constraint {
	return g.constraints
}

func (g *ConstraintGenerator) freshVar() typesystem.TVar {
	g.counter++
	return typesystem.TVar{Name: fmt.Sprintf("t%d", g.counter)}
}

func (g *ConstraintGenerator) addConstraint(left, right typesystem.Type, span ast.SourceSpan) {
	g.constraints = append(g.constraints, typesystem.Constraint{Left: left, Right: right, Span: span})
}

// instantiate replaces a scheme's quantified variables with fresh ones.
func (g *ConstraintGenerator) instantiate(scheme typesystem.Scheme) typesystem.Type {
	if len(scheme.Vars) == 0 {
		return scheme.Type
	}
	subst := make(typesystem.Subst, len(scheme.Vars))
	for _, v := range scheme.Vars {
		subst[v] = g.freshVar()
	}
	return scheme.Type.Apply(subst)
}

func (g *ConstraintGenerator) envFreeVars() map[string]bool {
	free := make(map[string]bool)
	for _, scheme := range g.env {
		quantified := make(map[string]bool, len(scheme.Vars))
		for _, v := range scheme.Vars {
			quantified[v] = true
		}
		for _, v := range scheme.Type.FreeTypeVariables() {
			if !quantified[v] {
				free[v] = true
			}
		}
	}
	return free
}

func (g *ConstraintGenerator) inferStmt(stmt ast.Statement) typesystem.Type {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		t := g.inferExpr(s.Value)
		g.env[s.Name] = typesystem.MonoScheme(t)
		return t
	case *ast.WeaveStmt:
		t := g.inferExpr(s.Value)
		g.env[s.Name] = typesystem.MonoScheme(t)
		return t
	case *ast.SetStmt:
		valueType := g.inferExpr(s.Value)
		if ident, ok := s.Target.(*ast.Identifier); ok {
			if scheme, bound := g.env[ident.Name]; bound {
				g.addConstraint(g.instantiate(scheme), valueType, s.SrcPos)
			}
		}
		return typesystem.TNothing
	case *ast.IfStmt:
		cond := g.inferExpr(s.Condition)
		g.addConstraint(cond, typesystem.TTruth, s.SrcPos)
		thenType := g.inferBlock(s.ThenBranch)
		if s.ElseBranch == nil {
			return typesystem.TNothing
		}
		elseType := g.inferBlock(s.ElseBranch)
		g.addConstraint(thenType, elseType, s.SrcPos)
		return thenType
	case *ast.WhileStmt:
		cond := g.inferExpr(s.Condition)
		g.addConstraint(cond, typesystem.TTruth, s.SrcPos)
		g.inferBlock(s.Body)
		return typesystem.TNothing
	case *ast.ForStmt:
		g.inferExpr(s.Iterable)
		g.env[s.Variable] = typesystem.MonoScheme(g.freshVar())
		g.inferBlock(s.Body)
		return typesystem.TNothing
	case *ast.ChantDef:
		return g.inferChant(s)
	case *ast.YieldStmt:
		return g.inferExpr(s.Value)
	case *ast.MatchStmt:
		g.inferExpr(s.Value)
		// All arm results unify with each other.
		var armType typesystem.Type
		for _, arm := range s.Arms {
			t := g.inferBlock(arm.Body)
			if armType == nil {
				armType = t
			} else {
				g.addConstraint(armType, t, s.SrcPos)
			}
		}
		if armType == nil {
			return typesystem.TNothing
		}
		return armType
	case *ast.AttemptStmt:
		t := g.inferBlock(s.Body)
		for _, h := range s.Handlers {
			g.inferBlock(h.Body)
		}
		return t
	case *ast.ExprStatement:
		return g.inferExpr(s.Expr)
	}
	return typesystem.TNothing
}

func (g *ConstraintGenerator) inferBlock(stmts []ast.Statement) typesystem.Type {
	result := typesystem.Type(typesystem.TNothing)
	for _, stmt := range stmts {
		result = g.inferStmt(stmt)
	}
	return result
}

func (g *ConstraintGenerator) inferChant(def *ast.ChantDef) typesystem.Type {
	// Fresh variables for parameters; explicit annotations pin them down.
	paramTypes := make([]typesystem.Type, len(def.Params))
	saved := make(map[string]typesystem.Scheme, len(def.Params))
	for i, param := range def.Params {
		v := g.freshVar()
		paramTypes[i] = v
		if param.Typ != nil {
			g.addConstraint(v, annotationToType(param.Typ), def.SrcPos)
		}
		if old, exists := g.env[param.Name]; exists {
			saved[param.Name] = old
		}
		g.env[param.Name] = typesystem.MonoScheme(v)
	}

	// Bind the chant's own name before the body so recursion checks out.
	retVar := g.freshVar()
	fnType := arrowFromArgs(paramTypes, retVar)
	g.env[def.Name] = typesystem.MonoScheme(fnType)

	bodyType := g.inferBlock(def.Body)
	g.addConstraint(retVar, bodyType, def.SrcPos)
	if def.ReturnType != nil {
		g.addConstraint(retVar, annotationToType(def.ReturnType), def.SrcPos)
	}

	for _, param := range def.Params {
		if old, exists := saved[param.Name]; exists {
			g.env[param.Name] = old
		} else {
			delete(g.env, param.Name)
		}
	}

	// Resolve the function type against the constraints gathered so far;
	// only variables still free after solving are quantified.
	subst, _ := typesystem.Solve(g.constraints)
	solved := fnType.Apply(subst)
	g.env[def.Name] = typesystem.Generalize(solved, g.envFreeVars())
	return solved
}

func (g *ConstraintGenerator) inferExpr(expr ast.Expression) typesystem.Type {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		return typesystem.TNumber
	case *ast.TextLiteral:
		return typesystem.TText
	case *ast.TruthLiteral:
		return typesystem.TTruth
	case *ast.NothingLiteral:
		return typesystem.TNothing

	case *ast.Identifier:
		if scheme, ok := g.env[e.Name]; ok {
			return g.instantiate(scheme)
		}
		// Unknown names get a fresh variable; resolution errors belong to
		// the runtime, not the inferencer.
		return g.freshVar()

	case *ast.ListLiteral:
		if len(e.Elements) == 0 {
			return typesystem.TGeneric{Name: "List", Args: []typesystem.Type{g.freshVar()}}
		}
		head := g.inferExpr(e.Elements[0])
		for _, el := range e.Elements[1:] {
			g.addConstraint(g.inferExpr(el), head, e.SrcPos)
		}
		return typesystem.TGeneric{Name: "List", Args: []typesystem.Type{head}}

	case *ast.MapLiteral:
		for _, entry := range e.Entries {
			g.inferExpr(entry.Value)
		}
		return typesystem.TGeneric{Name: "Map"}

	case *ast.BinaryExpr:
		left := g.inferExpr(e.Left)
		right := g.inferExpr(e.Right)
		switch e.Op {
		case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
			g.addConstraint(left, typesystem.TNumber, e.SrcPos)
			g.addConstraint(right, typesystem.TNumber, e.SrcPos)
			return typesystem.TNumber
		case ast.OpEqual, ast.OpNotEqual, ast.OpGreater, ast.OpLess,
			ast.OpGreaterEq, ast.OpLessEq:
			g.addConstraint(left, right, e.SrcPos)
			return typesystem.TTruth
		case ast.OpAnd, ast.OpOr:
			g.addConstraint(left, typesystem.TTruth, e.SrcPos)
			g.addConstraint(right, typesystem.TTruth, e.SrcPos)
			return typesystem.TTruth
		}
		return g.freshVar()

	case *ast.UnaryExpr:
		operand := g.inferExpr(e.Operand)
		if e.Op == ast.OpNegate {
			g.addConstraint(operand, typesystem.TNumber, e.SrcPos)
			return typesystem.TNumber
		}
		g.addConstraint(operand, typesystem.TTruth, e.SrcPos)
		return typesystem.TTruth

	case *ast.CallExpr:
		calleeType := g.inferExpr(e.Callee)
		argTypes := make([]typesystem.Type, len(e.Args))
		for i, arg := range e.Args {
			argTypes[i] = g.inferExpr(arg)
		}
		retVar := g.freshVar()
		g.addConstraint(calleeType, arrowFromArgs(argTypes, retVar), e.SrcPos)
		return retVar

	case *ast.TriumphExpr:
		inner := g.inferExpr(e.Value)
		return typesystem.TGeneric{Name: "Outcome", Args: []typesystem.Type{inner, g.freshVar()}}
	case *ast.MishapExpr:
		inner := g.inferExpr(e.Value)
		return typesystem.TGeneric{Name: "Outcome", Args: []typesystem.Type{g.freshVar(), inner}}
	case *ast.PresentExpr:
		inner := g.inferExpr(e.Value)
		return typesystem.TGeneric{Name: "Maybe", Args: []typesystem.Type{inner}}
	case *ast.AbsentExpr:
		return typesystem.TGeneric{Name: "Maybe", Args: []typesystem.Type{g.freshVar()}}

	case *ast.BorrowExpr:
		return g.inferExpr(e.Value)
	case *ast.TryExpr:
		g.inferExpr(e.Expr)
		return g.freshVar()
	case *ast.RangeExpr:
		g.addConstraint(g.inferExpr(e.Start), typesystem.TNumber, e.SrcPos)
		g.addConstraint(g.inferExpr(e.End), typesystem.TNumber, e.SrcPos)
		return typesystem.TGeneric{Name: "Range"}
	case *ast.PipelineExpr:
		t := g.inferExpr(e.Stages[0])
		for range e.Stages[1:] {
			t = g.freshVar()
		}
		return t
	case *ast.IndexAccess:
		g.inferExpr(e.Object)
		g.addConstraint(g.inferExpr(e.Index), typesystem.TNumber, e.SrcPos)
		return g.freshVar()
	case *ast.FieldAccess:
		g.inferExpr(e.Object)
		return g.freshVar()
	case *ast.StructLiteral:
		for _, f := range e.Fields {
			g.inferExpr(f.Value)
		}
		return typesystem.TCon{Name: e.StructName}
	}
	return g.freshVar()
}

// arrowFromArgs curries argument types into an arrow chain ending at ret.
// A nullary function is Nothing -> ret.
func arrowFromArgs(args []typesystem.Type, ret typesystem.Type) typesystem.Type {
	if len(args) == 0 {
		return typesystem.TArrow{From: typesystem.TNothing, To: ret}
	}
	result := ret
	for i := len(args) - 1; i >= 0; i-- {
		result = typesystem.TArrow{From: args[i], To: result}
	}
	return result
}

// annotationToType maps a syntactic annotation onto an inference type.
func annotationToType(typ ast.TypeAnnotation) typesystem.Type {
	switch t := typ.(type) {
	case *ast.NamedType:
		return typesystem.TCon{Name: t.Name}
	case *ast.GenericType:
		return typesystem.TVar{Name: "gen_" + t.Name}
	case *ast.ListType:
		return typesystem.TGeneric{Name: "List", Args: []typesystem.Type{annotationToType(t.Inner)}}
	case *ast.MapType:
		return typesystem.TGeneric{Name: "Map"}
	case *ast.ParametrizedType:
		args := make([]typesystem.Type, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = annotationToType(a)
		}
		return typesystem.TGeneric{Name: t.Name, Args: args}
	case *ast.FunctionType:
		params := make([]typesystem.Type, len(t.ParamTypes))
		for i, p := range t.ParamTypes {
			params[i] = annotationToType(p)
		}
		return arrowFromArgs(params, annotationToType(t.ReturnType))
	case *ast.OptionalType:
		return typesystem.TGeneric{Name: "Maybe", Args: []typesystem.Type{annotationToType(t.Inner)}}
	case *ast.BorrowedType:
		return annotationToType(t.Inner)
	}
	return typesystem.TNothing
}
