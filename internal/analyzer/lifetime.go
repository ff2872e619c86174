package analyzer

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
)

// LifetimeError is one diagnostic from the lifetime checker.
type LifetimeError struct {
	Kind    string // UndeclaredLifetime, ReturnsLocalReference
	Name    string
	Span    ast.SourceSpan
	Message string
}

func (e *LifetimeError) Error() string { return e.Message }

// LifetimeChecker validates lifetime annotations: every lifetime named in a
// type must be 'static or a lifetime parameter of the enclosing chant, and a
// yield of a locally-bound borrow is rejected. General outlives relations
// across function boundaries are not solved; this check is deliberately
// shallow.
type LifetimeChecker struct {
	declared  []string
	variables map[string]ast.TypeAnnotation
	errors    []*LifetimeError
}

func NewLifetimeChecker() *LifetimeChecker {
	return &LifetimeChecker{variables: make(map[string]ast.TypeAnnotation)}
}

// Check walks the program and returns all lifetime errors found.
func (lc *LifetimeChecker) Check(prog *ast.Program) []*LifetimeError {
	lc.checkStmts(prog.Statements)
	return lc.errors
}

func (lc *LifetimeChecker) checkStmts(stmts []ast.Statement) {
	for _, stmt := range stmts {
		lc.checkStmt(stmt)
	}
}

func (lc *LifetimeChecker) checkStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		if s.Typ != nil {
			lc.checkAnnotation(s.Typ, s.SrcPos)
		}
		lc.variables[s.Name] = s.Typ
	case *ast.WeaveStmt:
		if s.Typ != nil {
			lc.checkAnnotation(s.Typ, s.SrcPos)
		}
		lc.variables[s.Name] = s.Typ
	case *ast.ChantDef:
		for _, lt := range s.LifetimeParams {
			lc.declared = append(lc.declared, lt.Name)
		}
		for _, param := range s.Params {
			if param.Typ != nil {
				lc.checkAnnotation(param.Typ, s.SrcPos)
			}
			if param.Lifetime != nil && !lc.isDeclared(param.Lifetime.Name) {
				lc.errorf("UndeclaredLifetime", param.Lifetime.Name, s.SrcPos,
					"Lifetime '%s is not declared", param.Lifetime.Name)
			}
			lc.variables[param.Name] = param.Typ
		}
		if s.ReturnType != nil {
			lc.checkAnnotation(s.ReturnType, s.SrcPos)
		}
		lc.checkStmts(s.Body)
		// Leave the scope of this chant's lifetime parameters.
		for _, lt := range s.LifetimeParams {
			lc.removeDeclared(lt.Name)
		}
	case *ast.YieldStmt:
		if ident, ok := s.Value.(*ast.Identifier); ok {
			if typ, bound := lc.variables[ident.Name]; bound {
				if _, isBorrow := typ.(*ast.BorrowedType); isBorrow {
					lc.errorf("ReturnsLocalReference", ident.Name, s.SrcPos,
						"Cannot yield a reference to local variable '%s'", ident.Name)
				}
			}
		}
	case *ast.IfStmt:
		lc.checkStmts(s.ThenBranch)
		lc.checkStmts(s.ElseBranch)
	case *ast.ForStmt:
		lc.checkStmts(s.Body)
	case *ast.WhileStmt:
		lc.checkStmts(s.Body)
	case *ast.MatchStmt:
		for _, arm := range s.Arms {
			lc.checkStmts(arm.Body)
		}
	case *ast.AttemptStmt:
		lc.checkStmts(s.Body)
		for _, h := range s.Handlers {
			lc.checkStmts(h.Body)
		}
	case *ast.ModuleDecl:
		lc.checkStmts(s.Body)
	case *ast.EmbodyStmt:
		for _, def := range s.Methods {
			lc.checkStmt(def)
		}
	}
}

func (lc *LifetimeChecker) checkAnnotation(typ ast.TypeAnnotation, span ast.SourceSpan) {
	switch t := typ.(type) {
	case *ast.BorrowedType:
		if t.Lifetime != nil && !lc.isDeclared(t.Lifetime.Name) {
			lc.errorf("UndeclaredLifetime", t.Lifetime.Name, span,
				"Lifetime '%s is not declared", t.Lifetime.Name)
		}
		lc.checkAnnotation(t.Inner, span)
	case *ast.ListType:
		lc.checkAnnotation(t.Inner, span)
	case *ast.ParametrizedType:
		for _, arg := range t.TypeArgs {
			lc.checkAnnotation(arg, span)
		}
	case *ast.FunctionType:
		for _, p := range t.ParamTypes {
			lc.checkAnnotation(p, span)
		}
		lc.checkAnnotation(t.ReturnType, span)
	case *ast.OptionalType:
		lc.checkAnnotation(t.Inner, span)
	}
}

func (lc *LifetimeChecker) isDeclared(name string) bool {
	if name == "static" {
		return true
	}
	for _, declared := range lc.declared {
		if declared == name {
			return true
		}
	}
	return false
}

func (lc *LifetimeChecker) removeDeclared(name string) {
	for i := len(lc.declared) - 1; i >= 0; i-- {
		if lc.declared[i] == name {
			lc.declared = append(lc.declared[:i], lc.declared[i+1:]...)
			return
		}
	}
}

func (lc *LifetimeChecker) errorf(kind, name string, span ast.SourceSpan, format string, args ...interface{}) {
	lc.errors = append(lc.errors, &LifetimeError{
		Kind:    kind,
		Name:    name,
		Span:    span,
		Message: fmt.Sprintf(format, args...),
	})
}
