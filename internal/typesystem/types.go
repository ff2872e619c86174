// Package typesystem implements the Hindley-Milner type machinery used by
// the inference pass: inference types, schemes with let-generalization, and
// constraint unification.
package typesystem

import (
	"fmt"
	"sort"
	"strings"

	"github.com/glimmerweave/gw/internal/ast"
)

// Type is the interface for all inference types.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeVariables() []string
}

// TCon is a concrete type: Number, Text, Truth, Nothing.
type TCon struct {
	Name string
}

func (t TCon) String() string              { return t.Name }
func (t TCon) Apply(s Subst) Type          { return t }
func (t TCon) FreeTypeVariables() []string { return nil }

// Builtin concrete types.
var (
	TNumber  = TCon{Name: "Number"}
	TText    = TCon{Name: "Text"}
	TTruth   = TCon{Name: "Truth"}
	TNothing = TCon{Name: "Nothing"}
)

// TVar is a type variable produced during inference (t1, t2, ...).
type TVar struct {
	Name string
}

func (t TVar) String() string { return t.Name }

func (t TVar) Apply(s Subst) Type {
	if replacement, ok := s[t.Name]; ok {
		// A substitution can chain (t1 -> t2 -> Number); follow it until a
		// fixed point, guarding against accidental cycles.
		if tv, isVar := replacement.(TVar); isVar && tv.Name == t.Name {
			return t
		}
		return replacement.Apply(s)
	}
	return t
}

func (t TVar) FreeTypeVariables() []string { return []string{t.Name} }

// TArrow is a single-argument function type; multi-argument functions curry
// into arrow chains.
type TArrow struct {
	From Type
	To   Type
}

func (t TArrow) String() string {
	return "(" + t.From.String() + " -> " + t.To.String() + ")"
}

func (t TArrow) Apply(s Subst) Type {
	return TArrow{From: t.From.Apply(s), To: t.To.Apply(s)}
}

func (t TArrow) FreeTypeVariables() []string {
	return mergeVars(t.From.FreeTypeVariables(), t.To.FreeTypeVariables())
}

// TGeneric is an applied type constructor: List<Number>, Box<T>.
type TGeneric struct {
	Name string
	Args []Type
}

func (t TGeneric) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return t.Name + "<" + strings.Join(args, ", ") + ">"
}

func (t TGeneric) Apply(s Subst) Type {
	args := make([]Type, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.Apply(s)
	}
	return TGeneric{Name: t.Name, Args: args}
}

func (t TGeneric) FreeTypeVariables() []string {
	var vars []string
	for _, a := range t.Args {
		vars = mergeVars(vars, a.FreeTypeVariables())
	}
	return vars
}

// Subst maps type-variable names to types.
type Subst map[string]Type

// Compose returns a substitution equivalent to applying s first, then other.
func (s Subst) Compose(other Subst) Subst {
	out := make(Subst, len(s)+len(other))
	for name, t := range s {
		out[name] = t.Apply(other)
	}
	for name, t := range other {
		if _, exists := out[name]; !exists {
			out[name] = t
		}
	}
	return out
}

// Scheme is a polytype: forall Vars. Type.
type Scheme struct {
	Vars []string
	Type Type
}

// MonoScheme wraps a type with no quantified variables.
func MonoScheme(t Type) Scheme { return Scheme{Type: t} }

// Generalize quantifies the variables of t that are not free in the
// environment.
func Generalize(t Type, envFree map[string]bool) Scheme {
	var vars []string
	for _, v := range t.FreeTypeVariables() {
		if !envFree[v] {
			vars = append(vars, v)
		}
	}
	sort.Strings(vars)
	return Scheme{Vars: vars, Type: t}
}

// Constraint is one equality requirement gathered during inference.
type Constraint struct {
	Left  Type
	Right Type
	Span  ast.SourceSpan
}

// UnifyError reports a failed unification with the constraint's location.
type UnifyError struct {
	Left  Type
	Right Type
	Span  ast.SourceSpan
}

func (e *UnifyError) Error() string {
	return fmt.Sprintf("Type mismatch: cannot unify %s with %s", e.Left, e.Right)
}

func mergeVars(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
