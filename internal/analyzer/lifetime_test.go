package analyzer_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/analyzer"
)

func lifetimeErrors(t *testing.T, input string) []*analyzer.LifetimeError {
	t.Helper()
	return analyzer.NewLifetimeChecker().Check(parse(t, input))
}

func TestDeclaredLifetimesPass(t *testing.T) {
	input := "chant first<'a>(borrow 'a xs as List<Number>) -> borrow 'a Number then\nyield 0\nend"
	if errs := lifetimeErrors(t, input); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestStaticIsAlwaysDeclared(t *testing.T) {
	input := "chant f(borrow 'static xs as List<Number>) then\nyield 0\nend"
	if errs := lifetimeErrors(t, input); len(errs) != 0 {
		t.Fatalf("'static must always be available: %v", errs)
	}
}

func TestUndeclaredLifetime(t *testing.T) {
	input := "chant f(borrow 'a xs as List<Number>) then\nyield 0\nend"
	errs := lifetimeErrors(t, input)
	if len(errs) == 0 || errs[0].Kind != "UndeclaredLifetime" {
		t.Fatalf("expected UndeclaredLifetime, got %v", errs)
	}
}

func TestLifetimeScopeEndsWithChant(t *testing.T) {
	input := "chant f<'a>(borrow 'a xs as List<Number>) then\nyield 0\nend\n" +
		"chant g(borrow 'a ys as List<Number>) then\nyield 0\nend"
	errs := lifetimeErrors(t, input)
	if len(errs) == 0 {
		t.Fatal("lifetime 'a should not leak from f into g")
	}
}

func TestReturnsLocalReference(t *testing.T) {
	input := "chant f(xs as List<Number>) then\nbind r: borrow Number to borrow xs\nyield r\nend"
	errs := lifetimeErrors(t, input)
	if len(errs) != 1 || errs[0].Kind != "ReturnsLocalReference" {
		t.Fatalf("expected ReturnsLocalReference, got %v", errs)
	}
}
