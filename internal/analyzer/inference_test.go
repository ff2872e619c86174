package analyzer_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/analyzer"
	"github.com/glimmerweave/gw/internal/typesystem"
)

func inferErrors(t *testing.T, input string) []*typesystem.UnifyError {
	t.Helper()
	return analyzer.NewConstraintGenerator().InferProgram(parse(t, input))
}

func TestWellTypedPrograms(t *testing.T) {
	testCases := []string{
		"bind x to 1 + 2 * 3",
		"bind flag to 1 greater than 2 and true",
		"bind xs to [1, 2, 3]",
		"should 1 at most 2 then\nbind a to 1\notherwise\nbind b to 2\nend",
		"chant factorial(n) then\nshould n at most 1 then\nyield 1\notherwise\nyield n * factorial(n - 1)\nend\nend\nfactorial(5)",
		"chant add(a as Number, b as Number) -> Number then\nyield a + b\nend\nadd(1, 2)",
	}
	for _, input := range testCases {
		if errs := inferErrors(t, input); len(errs) != 0 {
			t.Fatalf("unexpected type errors for %q: %v", input, errs)
		}
	}
}

func TestArithmeticRequiresNumbers(t *testing.T) {
	errs := inferErrors(t, "bind x to 1 + true")
	if len(errs) == 0 {
		t.Fatal("expected a type error")
	}
}

func TestLogicalRequiresTruth(t *testing.T) {
	errs := inferErrors(t, "bind x to 1 and true")
	if len(errs) == 0 {
		t.Fatal("expected a type error")
	}
}

func TestListElementsUnify(t *testing.T) {
	if errs := inferErrors(t, "bind xs to [1, \"two\"]"); len(errs) == 0 {
		t.Fatal("heterogeneous list must fail")
	}
	if errs := inferErrors(t, "bind xs to [1, 2, 3]"); len(errs) != 0 {
		t.Fatalf("homogeneous list must pass: %v", errs)
	}
}

func TestIfBranchesUnify(t *testing.T) {
	errs := inferErrors(t, "bind r to 0\nshould true then\n1\notherwise\n\"one\"\nend")
	if len(errs) == 0 {
		t.Fatal("mismatched branches must fail")
	}
}

func TestConditionMustBeTruth(t *testing.T) {
	errs := inferErrors(t, "should 1 then\nbind a to 1\nend")
	if len(errs) == 0 {
		t.Fatal("non-Truth condition must fail")
	}
}

func TestCallArityShapesArrow(t *testing.T) {
	errs := inferErrors(t, "chant add(a as Number, b as Number) -> Number then\nyield a + b\nend\nadd(true, 2)")
	if len(errs) == 0 {
		t.Fatal("argument type mismatch must fail")
	}
}

func TestReturnAnnotationPinsType(t *testing.T) {
	errs := inferErrors(t, "chant f(x as Number) -> Text then\nyield x\nend")
	if len(errs) == 0 {
		t.Fatal("return annotation must constrain the body")
	}
}

func TestErrorsCarryLocation(t *testing.T) {
	errs := inferErrors(t, "bind x to 1 + true")
	if len(errs) == 0 || errs[0].Span.StartLine == 0 {
		t.Fatalf("type errors must carry a source span: %+v", errs)
	}
}
