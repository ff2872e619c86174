package ast

import "strings"

// BorrowMode says how a parameter takes its argument.
type BorrowMode int

const (
	// Owned takes ownership (move semantics). The default.
	Owned BorrowMode = iota
	// Borrowed is a shared, read-only borrow: `borrow data as List<Number>`.
	Borrowed
	// BorrowedMut is an exclusive, writable borrow: `borrow mut data as ...`.
	BorrowedMut
)

func (m BorrowMode) String() string {
	switch m {
	case Borrowed:
		return "borrow"
	case BorrowedMut:
		return "borrow mut"
	}
	return "owned"
}

// Lifetime is a named lifetime annotation: 'a, 'static.
type Lifetime struct {
	Name string
}

// StaticLifetime is valid for the whole program.
func StaticLifetime() Lifetime { return Lifetime{Name: "static"} }

// Parameter is one function parameter.
type Parameter struct {
	Name       string
	Typ        TypeAnnotation // optional
	IsVariadic bool           // `...rest`; must be last
	BorrowMode BorrowMode
	Lifetime   *Lifetime // optional, only with Borrowed/BorrowedMut
}

// StructField is one field of a form definition.
type StructField struct {
	Name string
	Typ  TypeAnnotation
}

// VariantCase is one case of a variant definition; Fields is empty for unit
// cases.
type VariantCase struct {
	Name   string
	Fields []Parameter
}

// TraitMethod is a method signature inside an aspect definition.
type TraitMethod struct {
	Name       string
	Params     []Parameter
	ReturnType TypeAnnotation // optional
}

// TypeAnnotation is the syntactic form of a type as written in source.
type TypeAnnotation interface {
	typeNode()
	// String renders the annotation the way it is written in source,
	// e.g. "List<Number>" or "borrow mut T".
	String() string
}

// NamedType is a plain type name: Number, Text, Point.
type NamedType struct {
	Name string
}

func (t *NamedType) typeNode()      {}
func (t *NamedType) String() string { return t.Name }

// GenericType is a type parameter reference inside a generic definition: T, U.
type GenericType struct {
	Name string
}

func (t *GenericType) typeNode()      {}
func (t *GenericType) String() string { return t.Name }

// ParametrizedType applies type arguments to a constructor: Box<Number>.
type ParametrizedType struct {
	Name     string
	TypeArgs []TypeAnnotation
}

func (t *ParametrizedType) typeNode() {}
func (t *ParametrizedType) String() string {
	args := make([]string, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		args[i] = a.String()
	}
	return t.Name + "<" + strings.Join(args, ", ") + ">"
}

// ListType is the builtin list: List<Number>.
type ListType struct {
	Inner TypeAnnotation
}

func (t *ListType) typeNode()      {}
func (t *ListType) String() string { return "List<" + t.Inner.String() + ">" }

// MapType is the builtin string-keyed map.
type MapType struct{}

func (t *MapType) typeNode()      {}
func (t *MapType) String() string { return "Map" }

// FunctionType: Function<(Number, Text) -> Truth>.
type FunctionType struct {
	ParamTypes []TypeAnnotation
	ReturnType TypeAnnotation
}

func (t *FunctionType) typeNode() {}
func (t *FunctionType) String() string {
	params := make([]string, len(t.ParamTypes))
	for i, p := range t.ParamTypes {
		params[i] = p.String()
	}
	return "Function<(" + strings.Join(params, ", ") + ") -> " + t.ReturnType.String() + ">"
}

// OptionalType: Number?.
type OptionalType struct {
	Inner TypeAnnotation
}

func (t *OptionalType) typeNode()      {}
func (t *OptionalType) String() string { return t.Inner.String() + "?" }

// BorrowedType is a reference type: borrow T, borrow mut T, borrow 'a T.
type BorrowedType struct {
	Lifetime *Lifetime // optional
	Inner    TypeAnnotation
	Mutable  bool
}

func (t *BorrowedType) typeNode() {}
func (t *BorrowedType) String() string {
	var b strings.Builder
	b.WriteString("borrow ")
	if t.Lifetime != nil {
		b.WriteString("'" + t.Lifetime.Name + " ")
	}
	if t.Mutable {
		b.WriteString("mut ")
	}
	b.WriteString(t.Inner.String())
	return b.String()
}

// BinaryOperator enumerates infix operators.
type BinaryOperator int

const (
	OpAdd BinaryOperator = iota // +
	OpSub                       // -
	OpMul                       // *
	OpDiv                       // /
	OpMod                       // %

	OpEqual     // is
	OpNotEqual  // is not
	OpGreater   // greater than
	OpLess      // less than
	OpGreaterEq // at least
	OpLessEq    // at most

	OpAnd // and
	OpOr  // or
)

// Precedence returns binding strength; higher binds tighter.
func (op BinaryOperator) Precedence() int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEq, OpLessEq:
		return 3
	case OpAdd, OpSub:
		return 4
	case OpMul, OpDiv, OpMod:
		return 5
	}
	return 0
}

func (op BinaryOperator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpEqual:
		return "is"
	case OpNotEqual:
		return "is not"
	case OpGreater:
		return "greater than"
	case OpLess:
		return "less than"
	case OpGreaterEq:
		return "at least"
	case OpLessEq:
		return "at most"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	}
	return "?"
}

// UnaryOperator enumerates prefix operators.
type UnaryOperator int

const (
	OpNot    UnaryOperator = iota // not
	OpNegate                      // -
)

func (op UnaryOperator) String() string {
	if op == OpNot {
		return "not"
	}
	return "-"
}

// Pattern is a match-arm pattern.
type Pattern interface {
	patternNode()
}

// LiteralPattern compares the scrutinee against a literal value.
type LiteralPattern struct {
	Value Expression
}

func (p *LiteralPattern) patternNode() {}

// IdentPattern binds the scrutinee to a name; always matches.
type IdentPattern struct {
	Name string
}

func (p *IdentPattern) patternNode() {}

// WildcardPattern always matches without binding.
type WildcardPattern struct{}

func (p *WildcardPattern) patternNode() {}

// EnumPattern matches a variant by case name, recursing into Inner for the
// payload: `when Triumph(x)`, `when Circle(r)`. Inner is nil for unit cases.
type EnumPattern struct {
	Variant string
	Inner   Pattern
}

func (p *EnumPattern) patternNode() {}

// TuplePattern destructures multi-field variant payloads positionally:
// `when Move(x, y)`.
type TuplePattern struct {
	Elements []Pattern
}

func (p *TuplePattern) patternNode() {}
