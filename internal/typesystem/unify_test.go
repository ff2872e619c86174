package typesystem_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/typesystem"
)

func TestUnifyConcrete(t *testing.T) {
	if _, err := typesystem.Unify(typesystem.TNumber, typesystem.TNumber); err != nil {
		t.Fatalf("Number ~ Number should unify: %v", err)
	}
	if _, err := typesystem.Unify(typesystem.TNumber, typesystem.TText); err == nil {
		t.Fatal("Number ~ Text must fail")
	}
}

func TestUnifyVariableBinds(t *testing.T) {
	s, err := typesystem.Unify(typesystem.TVar{Name: "t1"}, typesystem.TNumber)
	if err != nil {
		t.Fatalf("variable should bind: %v", err)
	}
	if got := (typesystem.TVar{Name: "t1"}).Apply(s); got != typesystem.Type(typesystem.TNumber) {
		t.Fatalf("substitution wrong: %v", got)
	}
}

func TestOccursCheck(t *testing.T) {
	v := typesystem.TVar{Name: "t1"}
	arrow := typesystem.TArrow{From: v, To: typesystem.TNumber}
	if _, err := typesystem.Unify(v, arrow); err == nil {
		t.Fatal("occurs check must reject t1 ~ (t1 -> Number)")
	}
}

func TestUnifyArrows(t *testing.T) {
	left := typesystem.TArrow{From: typesystem.TVar{Name: "t1"}, To: typesystem.TNumber}
	right := typesystem.TArrow{From: typesystem.TText, To: typesystem.TVar{Name: "t2"}}
	s, err := typesystem.Unify(left, right)
	if err != nil {
		t.Fatalf("arrows should unify: %v", err)
	}
	if got := (typesystem.TVar{Name: "t1"}).Apply(s); got != typesystem.Type(typesystem.TText) {
		t.Fatalf("t1 should be Text: %v", got)
	}
	if got := (typesystem.TVar{Name: "t2"}).Apply(s); got != typesystem.Type(typesystem.TNumber) {
		t.Fatalf("t2 should be Number: %v", got)
	}
}

func TestUnifyGenerics(t *testing.T) {
	left := typesystem.TGeneric{Name: "List", Args: []typesystem.Type{typesystem.TVar{Name: "t1"}}}
	right := typesystem.TGeneric{Name: "List", Args: []typesystem.Type{typesystem.TNumber}}
	if _, err := typesystem.Unify(left, right); err != nil {
		t.Fatalf("List<t1> ~ List<Number> should unify: %v", err)
	}

	other := typesystem.TGeneric{Name: "Map"}
	if _, err := typesystem.Unify(left, other); err == nil {
		t.Fatal("List<t1> ~ Map must fail")
	}
}

func TestSolveBatchesErrors(t *testing.T) {
	constraints := []typesystem.Constraint{
		{Left: typesystem.TNumber, Right: typesystem.TText},
		{Left: typesystem.TTruth, Right: typesystem.TNumber},
		{Left: typesystem.TVar{Name: "t1"}, Right: typesystem.TNumber},
	}
	_, errs := typesystem.Solve(constraints)
	if len(errs) != 2 {
		t.Fatalf("expected both failures collected, got %d", len(errs))
	}
}

func TestGeneralizeAndScheme(t *testing.T) {
	arrow := typesystem.TArrow{From: typesystem.TVar{Name: "t1"}, To: typesystem.TVar{Name: "t1"}}
	scheme := typesystem.Generalize(arrow, map[string]bool{})
	if len(scheme.Vars) != 1 || scheme.Vars[0] != "t1" {
		t.Fatalf("t1 should be quantified: %+v", scheme)
	}

	pinned := typesystem.Generalize(arrow, map[string]bool{"t1": true})
	if len(pinned.Vars) != 0 {
		t.Fatalf("env-free variables must not be quantified: %+v", pinned)
	}
}
