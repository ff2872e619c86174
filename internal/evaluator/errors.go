package evaluator

import (
	"fmt"

	"github.com/glimmerweave/gw/internal/ast"
)

// Stable error kinds. These are the names `attempt ... harmonize on X`
// matches on, so they must not change as the internal representation
// evolves.
const (
	ErrUndefinedVariable = "UndefinedVariable"
	ErrImmutableBinding  = "ImmutableBinding"
	ErrTypeError         = "TypeError"
	ErrDivisionByZero    = "DivisionByZero"
	ErrIndexOutOfBounds  = "IndexOutOfBounds"
	ErrFieldNotFound     = "FieldNotFound"
	ErrNotIterable       = "NotIterable"
	ErrNotCallable       = "NotCallable"
	ErrArityMismatch     = "ArityMismatch"
	ErrCapabilityDenied  = "CapabilityDenied"
	ErrUnexpectedYield   = "UnexpectedYield"
	ErrMatchFailed       = "MatchFailed"
	ErrCustom            = "CustomError"
	ErrUnsupported       = "UnsupportedFeature"

	// Control-flow signals riding the error channel. Callers must filter
	// these before treating an error as user-visible.
	ctrlReturn   = "Return"
	ctrlTailCall = "TailCall"
	ctrlBreak    = "Break"
	ctrlContinue = "Continue"
)

// RuntimeError is the interpreter's error value. Return/TailCall and the
// loop signals reuse this channel as typed control flow.
type RuntimeError struct {
	Kind    string
	Message string
	Span    ast.SourceSpan

	// Value carries the Return payload (and the thrown value for
	// harmonize handlers).
	Value Value

	// TailFunction/TailArgs carry the TailCall payload.
	TailFunction string
	TailArgs     []Value
}

func NewError(kind string, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newReturn(v Value) *RuntimeError {
	return &RuntimeError{Kind: ctrlReturn, Value: v}
}

func newTailCall(name string, args []Value) *RuntimeError {
	return &RuntimeError{Kind: ctrlTailCall, TailFunction: name, TailArgs: args}
}

func newBreak() *RuntimeError    { return &RuntimeError{Kind: ctrlBreak} }
func newContinue() *RuntimeError { return &RuntimeError{Kind: ctrlContinue} }

func (e *RuntimeError) Error() string {
	return e.Kind + ": " + e.Message
}

// ErrorType is the kind string matched by harmonize handlers.
func (e *RuntimeError) ErrorType() string { return e.Kind }

// IsControl reports whether this is an internal control-flow signal rather
// than a user-visible error.
func (e *RuntimeError) IsControl() bool {
	switch e.Kind {
	case ctrlReturn, ctrlTailCall, ctrlBreak, ctrlContinue:
		return true
	}
	return false
}

// ErrorValue is the value bound for harmonize handlers.
func (e *RuntimeError) ErrorValue() Value {
	if e.Value != nil {
		return e.Value
	}
	return &Text{Value: e.Message}
}
