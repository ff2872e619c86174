// Package diagnostics defines the positioned, coded errors shared by every
// stage of the pipeline. Diagnostics are values, not exceptions: stages
// append them to the pipeline context and keep going where recovery is
// meaningful (semantic passes) or stop at the first one (parsing).
package diagnostics

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/token"
)

// Diagnostic codes, grouped by stage.
const (
	ErrL001 = "L001" // lexer: malformed literal
	ErrP000 = "P000" // parser: missing input
	ErrP001 = "P001" // parser: unexpected token
	ErrM001 = "M001" // modules: resolution failure
	ErrM002 = "M002" // modules: circular dependency
	ErrS001 = "S001" // semantic: borrow violation
	ErrS002 = "S002" // semantic: lifetime violation
	ErrT001 = "T001" // types: unification failure
	ErrC001 = "C001" // compile: unsupported feature
	ErrC002 = "C002" // compile: resource limit
	ErrG001 = "G001" // codegen: unsupported feature
	ErrR001 = "R001" // runtime error
)

// Diagnostic is a single positioned error.
type Diagnostic struct {
	Code    string
	Message string
	File    string
	Line    int
	Column  int

	// TokenIndex is the index into the token stream where the parser
	// stopped; -1 when not applicable.
	TokenIndex int
}

// NewError builds a diagnostic anchored at tok.
func NewError(code string, tok token.Token, message string) *Diagnostic {
	return &Diagnostic{
		Code:       code,
		Message:    message,
		Line:       tok.Line,
		Column:     tok.Column,
		TokenIndex: -1,
	}
}

// NewErrorAt builds a parser diagnostic that also records the token index.
func NewErrorAt(code string, tok token.Token, index int, message string) *Diagnostic {
	d := NewError(code, tok, message)
	d.TokenIndex = index
	return d
}

func (d *Diagnostic) Error() string {
	if d.File != "" {
		return fmt.Sprintf("%s:%d:%d: [%s] %s", d.File, d.Line, d.Column, d.Code, d.Message)
	}
	if d.Line > 0 {
		return fmt.Sprintf("%d:%d: [%s] %s", d.Line, d.Column, d.Code, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}
