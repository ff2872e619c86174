package ast

// NumberLiteral is a numeric literal; all numbers are 64-bit floats.
type NumberLiteral struct {
	Value  float64
	SrcPos SourceSpan
}

func (e *NumberLiteral) expressionNode()  {}
func (e *NumberLiteral) Span() SourceSpan { return e.SrcPos }

// TextLiteral is a double-quoted string literal with escapes resolved.
type TextLiteral struct {
	Value  string
	SrcPos SourceSpan
}

func (e *TextLiteral) expressionNode()  {}
func (e *TextLiteral) Span() SourceSpan { return e.SrcPos }

// TruthLiteral is `true` or `false`.
type TruthLiteral struct {
	Value  bool
	SrcPos SourceSpan
}

func (e *TruthLiteral) expressionNode()  {}
func (e *TruthLiteral) Span() SourceSpan { return e.SrcPos }

// NothingLiteral is the unit value `nothing`.
type NothingLiteral struct {
	SrcPos SourceSpan
}

func (e *NothingLiteral) expressionNode()  {}
func (e *NothingLiteral) Span() SourceSpan { return e.SrcPos }

// Identifier is a variable or function reference.
type Identifier struct {
	Name   string
	SrcPos SourceSpan
}

func (e *Identifier) expressionNode()  {}
func (e *Identifier) Span() SourceSpan { return e.SrcPos }

// TriumphExpr wraps a value in the success variant of Outcome.
type TriumphExpr struct {
	Value  Expression
	SrcPos SourceSpan
}

func (e *TriumphExpr) expressionNode()  {}
func (e *TriumphExpr) Span() SourceSpan { return e.SrcPos }

// MishapExpr wraps a value in the failure variant of Outcome.
type MishapExpr struct {
	Value  Expression
	SrcPos SourceSpan
}

func (e *MishapExpr) expressionNode()  {}
func (e *MishapExpr) Span() SourceSpan { return e.SrcPos }

// PresentExpr wraps a value in the present variant of Maybe.
type PresentExpr struct {
	Value  Expression
	SrcPos SourceSpan
}

func (e *PresentExpr) expressionNode()  {}
func (e *PresentExpr) Span() SourceSpan { return e.SrcPos }

// AbsentExpr is the empty Maybe.
type AbsentExpr struct {
	SrcPos SourceSpan
}

func (e *AbsentExpr) expressionNode()  {}
func (e *AbsentExpr) Span() SourceSpan { return e.SrcPos }

// ListLiteral: `[1, 2, 3]`.
type ListLiteral struct {
	Elements []Expression
	SrcPos   SourceSpan
}

func (e *ListLiteral) expressionNode()  {}
func (e *ListLiteral) Span() SourceSpan { return e.SrcPos }

// MapEntry is one `key: value` pair in a map literal. Entries preserve
// source order.
type MapEntry struct {
	Key   string
	Value Expression
}

// MapLiteral: `{name: "Elara", age: 42}`.
type MapLiteral struct {
	Entries []MapEntry
	SrcPos  SourceSpan
}

func (e *MapLiteral) expressionNode()  {}
func (e *MapLiteral) Span() SourceSpan { return e.SrcPos }

// StructLiteralField is one `name: value` pair in a struct literal.
type StructLiteralField struct {
	Name  string
	Value Expression
}

// StructLiteral: `Point { x: 1, y: 2 }`, optionally with type arguments
// for generic forms: `Box<Number> { value: 42 }`.
type StructLiteral struct {
	StructName string
	TypeArgs   []TypeAnnotation
	Fields     []StructLiteralField
	SrcPos     SourceSpan
}

func (e *StructLiteral) expressionNode()  {}
func (e *StructLiteral) Span() SourceSpan { return e.SrcPos }

// BinaryExpr: `a + b`, `x is not y`, ...
type BinaryExpr struct {
	Left   Expression
	Op     BinaryOperator
	Right  Expression
	SrcPos SourceSpan
}

func (e *BinaryExpr) expressionNode()  {}
func (e *BinaryExpr) Span() SourceSpan { return e.SrcPos }

// UnaryExpr: `not x`, `-y`.
type UnaryExpr struct {
	Op      UnaryOperator
	Operand Expression
	SrcPos  SourceSpan
}

func (e *UnaryExpr) expressionNode()  {}
func (e *UnaryExpr) Span() SourceSpan { return e.SrcPos }

// BorrowExpr creates a reference: `borrow x`, `borrow mut y`.
type BorrowExpr struct {
	Value   Expression
	Mutable bool
	SrcPos  SourceSpan
}

func (e *BorrowExpr) expressionNode()  {}
func (e *BorrowExpr) Span() SourceSpan { return e.SrcPos }

// CallExpr: `f(a, b)` or `id<Number>(42)`.
type CallExpr struct {
	Callee   Expression
	TypeArgs []TypeAnnotation
	Args     []Expression
	SrcPos   SourceSpan
}

func (e *CallExpr) expressionNode()  {}
func (e *CallExpr) Span() SourceSpan { return e.SrcPos }

// FieldAccess: `point.x`.
type FieldAccess struct {
	Object Expression
	Field  string
	SrcPos SourceSpan
}

func (e *FieldAccess) expressionNode()  {}
func (e *FieldAccess) Span() SourceSpan { return e.SrcPos }

// ModuleAccess: `Math.sqrt` where Math is a known module name.
type ModuleAccess struct {
	Module string
	Member string
	SrcPos SourceSpan
}

func (e *ModuleAccess) expressionNode()  {}
func (e *ModuleAccess) Span() SourceSpan { return e.SrcPos }

// IndexAccess: `list[0]`.
type IndexAccess struct {
	Object Expression
	Index  Expression
	SrcPos SourceSpan
}

func (e *IndexAccess) expressionNode()  {}
func (e *IndexAccess) Span() SourceSpan { return e.SrcPos }

// RangeExpr: `range(1, 10)`, half-open.
type RangeExpr struct {
	Start  Expression
	End    Expression
	SrcPos SourceSpan
}

func (e *RangeExpr) expressionNode()  {}
func (e *RangeExpr) Span() SourceSpan { return e.SrcPos }

// PipelineExpr threads a value through stages: `x | f | g`. The first stage
// is the seed value; each later stage receives the running value as its last
// argument.
type PipelineExpr struct {
	Stages []Expression
	SrcPos SourceSpan
}

func (e *PipelineExpr) expressionNode()  {}
func (e *PipelineExpr) Span() SourceSpan { return e.SrcPos }

// TryExpr is the `?` postfix operator: unwrap Triumph/Present, propagate
// Mishap to the caller.
type TryExpr struct {
	Expr   Expression
	SrcPos SourceSpan
}

func (e *TryExpr) expressionNode()  {}
func (e *TryExpr) Span() SourceSpan { return e.SrcPos }
