package analyzer_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/analyzer"
)

func borrowErrors(t *testing.T, input string) []*analyzer.BorrowError {
	t.Helper()
	return analyzer.NewBorrowChecker().Check(parse(t, input))
}

func TestCleanProgramHasNoBorrowErrors(t *testing.T) {
	errs := borrowErrors(t, "bind x to 5\nbind y to x + 1\ny")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestUseAfterMove(t *testing.T) {
	errs := borrowErrors(t, "bind a to 5\nbind b to a\na + 1")
	if len(errs) != 1 || errs[0].Kind != "UseAfterMove" {
		t.Fatalf("expected UseAfterMove, got %v", errs)
	}
	if errs[0].Variable != "a" {
		t.Fatalf("wrong variable: %s", errs[0].Variable)
	}
}

func TestMutableBorrowConflict(t *testing.T) {
	errs := borrowErrors(t, "weave x as 1\nbind r to borrow x\nset x to 2")
	if len(errs) != 1 || errs[0].Kind != "MutableBorrowConflict" {
		t.Fatalf("expected MutableBorrowConflict, got %v", errs)
	}
}

func TestMultipleMutableBorrows(t *testing.T) {
	errs := borrowErrors(t, "weave x as 1\nbind a to borrow mut x\nbind b to borrow mut x")
	if len(errs) != 1 || errs[0].Kind != "MultipleMutableBorrows" {
		t.Fatalf("expected MultipleMutableBorrows, got %v", errs)
	}
}

func TestBorrowOfMovedValue(t *testing.T) {
	errs := borrowErrors(t, "bind a to 5\nbind b to a\nbind r to borrow a")
	if len(errs) != 1 || errs[0].Kind != "BorrowOfMovedValue" {
		t.Fatalf("expected BorrowOfMovedValue, got %v", errs)
	}
}

func TestParameterBorrowModes(t *testing.T) {
	// A mutably borrowed parameter conflicts with further mutable borrows.
	errs := borrowErrors(t, "chant touch(borrow mut data as List<Number>) then\nbind r to borrow mut data\nyield 0\nend")
	if len(errs) != 1 || errs[0].Kind != "MultipleMutableBorrows" {
		t.Fatalf("expected MultipleMutableBorrows, got %v", errs)
	}

	// Owned parameters behave like fresh bindings.
	errs = borrowErrors(t, "chant consume(data as List<Number>) then\nyield data\nend")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestErrorsAreBatched(t *testing.T) {
	input := "bind a to 5\nbind b to a\na + 1\na + 2"
	errs := borrowErrors(t, input)
	if len(errs) != 2 {
		t.Fatalf("expected both uses reported, got %d", len(errs))
	}
}
