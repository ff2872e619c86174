package analyzer

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
)

// varState tracks one variable through the borrow checker.
type varState int

const (
	stateOwned varState = iota
	stateMoved
	stateImmutablyBorrowed
	stateMutablyBorrowed
)

type borrowInfo struct {
	state varState
	// at is where the state changed: the move or the first borrow.
	at ast.SourceSpan
	// borrows are the spans of the live immutable borrows.
	borrows []ast.SourceSpan
}

// BorrowError is one diagnostic from the borrow checker.
type BorrowError struct {
	Kind     string // UseAfterMove, MutableBorrowConflict, MultipleMutableBorrows, BorrowOfMovedValue
	Variable string
	Span     ast.SourceSpan
	Message  string
}

func (e *BorrowError) Error() string { return e.Message }

// BorrowChecker enforces the aliasing rules over statements in order:
// reads of moved values are rejected, writes conflict with live immutable
// borrows, and a second mutable borrow is rejected. The whole tree is walked
// so callers get the full batch of errors.
type BorrowChecker struct {
	variables map[string]*borrowInfo
	errors    []*BorrowError
}

func NewBorrowChecker() *BorrowChecker {
	return &BorrowChecker{variables: make(map[string]*borrowInfo)}
}

// Check walks the program and returns all borrow errors found.
func (bc *BorrowChecker) Check(prog *ast.Program) []*BorrowError {
	bc.checkStmts(prog.Statements)
	return bc.errors
}

func (bc *BorrowChecker) checkStmts(stmts []ast.Statement) {
	for _, stmt := range stmts {
		bc.checkStmt(stmt)
	}
}

func (bc *BorrowChecker) checkStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.BindStmt:
		bc.checkExpr(s.Value)
		bc.moveFromIdent(s.Value)
		bc.variables[s.Name] = &borrowInfo{state: stateOwned}
	case *ast.WeaveStmt:
		bc.checkExpr(s.Value)
		bc.moveFromIdent(s.Value)
		bc.variables[s.Name] = &borrowInfo{state: stateOwned}
	case *ast.SetStmt:
		if ident, ok := s.Target.(*ast.Identifier); ok {
			bc.checkWrite(ident.Name, s.Span())
		} else {
			bc.checkExpr(s.Target)
		}
		bc.checkExpr(s.Value)
	case *ast.IfStmt:
		bc.checkExpr(s.Condition)
		bc.checkStmts(s.ThenBranch)
		bc.checkStmts(s.ElseBranch)
	case *ast.ForStmt:
		bc.checkExpr(s.Iterable)
		bc.variables[s.Variable] = &borrowInfo{state: stateOwned}
		bc.checkStmts(s.Body)
	case *ast.WhileStmt:
		bc.checkExpr(s.Condition)
		bc.checkStmts(s.Body)
	case *ast.ChantDef:
		// Parameters install their state at function entry.
		for _, param := range s.Params {
			info := &borrowInfo{state: stateOwned}
			switch param.BorrowMode {
			case ast.Borrowed:
				info.state = stateImmutablyBorrowed
			case ast.BorrowedMut:
				info.state = stateMutablyBorrowed
			}
			bc.variables[param.Name] = info
		}
		bc.checkStmts(s.Body)
	case *ast.YieldStmt:
		bc.checkExpr(s.Value)
	case *ast.MatchStmt:
		bc.checkExpr(s.Value)
		for _, arm := range s.Arms {
			bc.checkStmts(arm.Body)
		}
	case *ast.AttemptStmt:
		bc.checkStmts(s.Body)
		for _, h := range s.Handlers {
			bc.checkStmts(h.Body)
		}
	case *ast.RequestStmt:
		bc.checkExpr(s.Capability)
	case *ast.ModuleDecl:
		bc.checkStmts(s.Body)
	case *ast.EmbodyStmt:
		for _, def := range s.Methods {
			bc.checkStmt(def)
		}
	case *ast.ExprStatement:
		bc.checkExpr(s.Expr)
	}
}

func (bc *BorrowChecker) checkExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Identifier:
		if info, ok := bc.variables[e.Name]; ok && info.state == stateMoved {
			bc.errorf("UseAfterMove", e.Name, e.SrcPos,
				"Use of moved value '%s'", e.Name)
		}
	case *ast.BorrowExpr:
		if ident, ok := e.Value.(*ast.Identifier); ok {
			bc.borrow(ident.Name, e.Mutable, e.SrcPos)
			return
		}
		bc.checkExpr(e.Value)
	case *ast.BinaryExpr:
		bc.checkExpr(e.Left)
		bc.checkExpr(e.Right)
	case *ast.UnaryExpr:
		bc.checkExpr(e.Operand)
	case *ast.CallExpr:
		bc.checkExpr(e.Callee)
		for _, arg := range e.Args {
			bc.checkExpr(arg)
		}
	case *ast.TriumphExpr:
		bc.checkExpr(e.Value)
	case *ast.MishapExpr:
		bc.checkExpr(e.Value)
	case *ast.PresentExpr:
		bc.checkExpr(e.Value)
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			bc.checkExpr(el)
		}
	case *ast.MapLiteral:
		for _, entry := range e.Entries {
			bc.checkExpr(entry.Value)
		}
	case *ast.StructLiteral:
		for _, f := range e.Fields {
			bc.checkExpr(f.Value)
		}
	case *ast.FieldAccess:
		bc.checkExpr(e.Object)
	case *ast.IndexAccess:
		bc.checkExpr(e.Object)
		bc.checkExpr(e.Index)
	case *ast.RangeExpr:
		bc.checkExpr(e.Start)
		bc.checkExpr(e.End)
	case *ast.PipelineExpr:
		for _, stage := range e.Stages {
			bc.checkExpr(stage)
		}
	case *ast.TryExpr:
		bc.checkExpr(e.Expr)
	}
}

// moveFromIdent transfers ownership when a binding takes its value directly
// from another variable: `bind y to x` leaves x moved.
func (bc *BorrowChecker) moveFromIdent(value ast.Expression) {
	ident, ok := value.(*ast.Identifier)
	if !ok {
		return
	}
	if info, exists := bc.variables[ident.Name]; exists && info.state == stateOwned {
		info.state = stateMoved
		info.at = ident.SrcPos
	}
}

func (bc *BorrowChecker) checkWrite(name string, span ast.SourceSpan) {
	info, ok := bc.variables[name]
	if !ok {
		return
	}
	switch info.state {
	case stateMoved:
		bc.errorf("UseAfterMove", name, span,
			"Use of moved value '%s'", name)
	case stateImmutablyBorrowed:
		bc.errorf("MutableBorrowConflict", name, span,
			"Cannot mutate '%s' while it is immutably borrowed", name)
	case stateMutablyBorrowed:
		bc.errorf("MultipleMutableBorrows", name, span,
			"Cannot mutate '%s' while it is mutably borrowed", name)
	}
}

func (bc *BorrowChecker) borrow(name string, mutable bool, span ast.SourceSpan) {
	info, ok := bc.variables[name]
	if !ok {
		return
	}
	switch info.state {
	case stateMoved:
		bc.errorf("BorrowOfMovedValue", name, span,
			"Cannot borrow '%s' because it was moved", name)
	case stateOwned:
		if mutable {
			info.state = stateMutablyBorrowed
			info.at = span
		} else {
			info.state = stateImmutablyBorrowed
			info.borrows = append(info.borrows, span)
		}
	case stateImmutablyBorrowed:
		if mutable {
			bc.errorf("MutableBorrowConflict", name, span,
				"Cannot borrow '%s' as mutable because it is also borrowed as immutable", name)
		} else {
			info.borrows = append(info.borrows, span)
		}
	case stateMutablyBorrowed:
		bc.errorf("MultipleMutableBorrows", name, span,
			"Cannot borrow '%s' as mutable more than once", name)
	}
}

func (bc *BorrowChecker) errorf(kind, variable string, span ast.SourceSpan, format string, args ...interface{}) {
	bc.errors = append(bc.errors, &BorrowError{
		Kind:     kind,
		Variable: variable,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	})
}
