// Package evaluator holds the shared runtime value model and the
// tree-walking interpreter, the authoritative implementation of the
// language. The bytecode VM executes the same Value types.
package evaluator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/glimmerweave/gw/internal/ast"
)

// Value is the runtime representation shared by the interpreter and the VM.
type Value interface {
	// TypeName is the user-visible name of the value's type; variants
	// report their case ("Triumph", "Present"), structs their form name.
	TypeName() string
	// Inspect renders the value for display.
	Inspect() string
}

// Number is a 64-bit float.
type Number struct {
	Value float64
}

func (n *Number) TypeName() string { return "Number" }
func (n *Number) Inspect() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// Text is a string.
type Text struct {
	Value string
}

func (t *Text) TypeName() string { return "Text" }
func (t *Text) Inspect() string  { return t.Value }

// Truth is a boolean.
type Truth struct {
	Value bool
}

func (t *Truth) TypeName() string { return "Truth" }
func (t *Truth) Inspect() string  { return strconv.FormatBool(t.Value) }

// Nothing is the unit value.
type Nothing struct{}

func (n *Nothing) TypeName() string { return "Nothing" }
func (n *Nothing) Inspect() string  { return "nothing" }

// NOTHING is the shared unit instance.
var NOTHING = &Nothing{}

// TRUE and FALSE are the shared truth instances.
var (
	TRUE  = &Truth{Value: true}
	FALSE = &Truth{Value: false}
)

// List is an ordered sequence.
type List struct {
	Elements []Value
}

func (l *List) TypeName() string { return "List" }
func (l *List) Inspect() string {
	parts := make([]string, len(l.Elements))
	for i, el := range l.Elements {
		parts[i] = el.Inspect()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Map is a string-keyed map iterated in key order.
type Map struct {
	Pairs map[string]Value
}

func NewMap() *Map { return &Map{Pairs: make(map[string]Value)} }

func (m *Map) TypeName() string { return "Map" }
func (m *Map) Inspect() string {
	keys := m.SortedKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + m.Pairs[k].Inspect()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// SortedKeys returns the keys in iteration order.
func (m *Map) SortedKeys() []string {
	keys := make([]string, 0, len(m.Pairs))
	for k := range m.Pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Chant is a user-defined function value.
type Chant struct {
	Name   string
	Params []ast.Parameter
	Body   []ast.Statement
}

func (c *Chant) TypeName() string { return "Chant" }
func (c *Chant) Inspect() string  { return "chant " + c.Name }

// NativeFn is the signature of host-provided functions.
type NativeFn func(args []Value) (Value, *RuntimeError)

// NativeChant is a builtin function. Arity -1 means variadic.
type NativeChant struct {
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *NativeChant) TypeName() string { return "NativeChant" }
func (n *NativeChant) Inspect() string  { return "native chant " + n.Name }

// Outcome is the fallible result type; Success selects Triumph or Mishap.
type Outcome struct {
	Success bool
	Value   Value
}

func (o *Outcome) TypeName() string {
	if o.Success {
		return "Triumph"
	}
	return "Mishap"
}

func (o *Outcome) Inspect() string {
	return o.TypeName() + "(" + o.Value.Inspect() + ")"
}

// Maybe is the option type. A Present holding Nothing is distinct from
// Absent; equality respects that.
type Maybe struct {
	Present bool
	Value   Value // nil when absent
}

func (m *Maybe) TypeName() string {
	if m.Present {
		return "Present"
	}
	return "Absent"
}

func (m *Maybe) Inspect() string {
	if m.Present {
		return "Present(" + m.Value.Inspect() + ")"
	}
	return "Absent"
}

// StructDef is the runtime value of a form definition.
type StructDef struct {
	Name   string
	Fields []ast.StructField
}

func (s *StructDef) TypeName() string { return s.Name }
func (s *StructDef) Inspect() string  { return "form " + s.Name }

// StructInstance is a constructed form value; Fields covers exactly the
// declared field names.
type StructInstance struct {
	StructName string
	Fields     map[string]Value
}

func (s *StructInstance) TypeName() string { return s.StructName }
func (s *StructInstance) Inspect() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + s.Fields[k].Inspect()
	}
	return s.StructName + " { " + strings.Join(parts, ", ") + " }"
}

// VariantDefValue is the runtime value of a variant definition.
type VariantDefValue struct {
	Name       string
	TypeParams []string
	Cases      []ast.VariantCase
}

func (v *VariantDefValue) TypeName() string { return v.Name }
func (v *VariantDefValue) Inspect() string  { return "variant " + v.Name }

// VariantValue is one constructed case of a user variant.
type VariantValue struct {
	EnumName string
	CaseName string
	Fields   []Value
}

func (v *VariantValue) TypeName() string { return v.EnumName }
func (v *VariantValue) Inspect() string {
	if len(v.Fields) == 0 {
		return v.EnumName + "." + v.CaseName
	}
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.Inspect()
	}
	return v.EnumName + "." + v.CaseName + "(" + strings.Join(parts, ", ") + ")"
}

// Range is a half-open numeric range used for iteration.
type Range struct {
	Start float64
	End   float64
}

func (r *Range) TypeName() string { return "Range" }
func (r *Range) Inspect() string {
	return fmt.Sprintf("range(%s, %s)",
		strconv.FormatFloat(r.Start, 'f', -1, 64),
		strconv.FormatFloat(r.End, 'f', -1, 64))
}

// Capability is an unforgeable token for a host resource. Token is minted at
// request time; host natives compare it, user code cannot fabricate it.
type Capability struct {
	Resource    string
	Permissions []string
	Token       string
}

func (c *Capability) TypeName() string { return "Capability" }
func (c *Capability) Inspect() string {
	return "capability " + c.Resource + " [" + strings.Join(c.Permissions, ", ") + "]"
}

// Module is an evaluated grove: its exported bindings keyed by name.
type Module struct {
	Name    string
	Exports map[string]Value
}

func (m *Module) TypeName() string { return "Module" }
func (m *Module) Inspect() string  { return "module " + m.Name }

// IsTruthy implements conditional coercion: false, nothing, 0, "" and []
// are falsy; everything else is truthy.
func IsTruthy(v Value) bool {
	switch val := v.(type) {
	case *Truth:
		return val.Value
	case *Nothing:
		return false
	case *Number:
		return val.Value != 0
	case *Text:
		return val.Value != ""
	case *List:
		return len(val.Elements) > 0
	}
	return true
}

// BoolValue maps a Go bool onto the shared truth instances.
func BoolValue(b bool) *Truth {
	if b {
		return TRUE
	}
	return FALSE
}

// Equals is deep value equality. Present(nothing) and Absent compare
// unequal: presence is part of the value.
func Equals(a, b Value) bool {
	switch av := a.(type) {
	case *Number:
		bv, ok := b.(*Number)
		return ok && av.Value == bv.Value
	case *Text:
		bv, ok := b.(*Text)
		return ok && av.Value == bv.Value
	case *Truth:
		bv, ok := b.(*Truth)
		return ok && av.Value == bv.Value
	case *Nothing:
		_, ok := b.(*Nothing)
		return ok
	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Elements) != len(bv.Elements) {
			return false
		}
		for i := range av.Elements {
			if !Equals(av.Elements[i], bv.Elements[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || len(av.Pairs) != len(bv.Pairs) {
			return false
		}
		for k, v := range av.Pairs {
			other, exists := bv.Pairs[k]
			if !exists || !Equals(v, other) {
				return false
			}
		}
		return true
	case *Outcome:
		bv, ok := b.(*Outcome)
		return ok && av.Success == bv.Success && Equals(av.Value, bv.Value)
	case *Maybe:
		bv, ok := b.(*Maybe)
		if !ok || av.Present != bv.Present {
			return false
		}
		if !av.Present {
			return true
		}
		return Equals(av.Value, bv.Value)
	case *StructInstance:
		bv, ok := b.(*StructInstance)
		if !ok || av.StructName != bv.StructName || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for k, v := range av.Fields {
			other, exists := bv.Fields[k]
			if !exists || !Equals(v, other) {
				return false
			}
		}
		return true
	case *VariantValue:
		bv, ok := b.(*VariantValue)
		if !ok || av.EnumName != bv.EnumName || av.CaseName != bv.CaseName ||
			len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if !Equals(av.Fields[i], bv.Fields[i]) {
				return false
			}
		}
		return true
	case *Range:
		bv, ok := b.(*Range)
		return ok && av.Start == bv.Start && av.End == bv.End
	case *Capability:
		bv, ok := b.(*Capability)
		return ok && av.Token == bv.Token
	}
	return a == b
}
