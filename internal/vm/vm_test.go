package vm_test

import (
	"bytes"
	"testing"

	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/parser"
	"github.com/glimmerweave/gw/internal/vm"
)

func runVM(t *testing.T, input string) evaluator.Value {
	t.Helper()
	chunk := compile(t, input)
	machine := vm.New()
	machine.Output = &bytes.Buffer{}
	result, err := machine.Execute(chunk)
	if err != nil {
		t.Fatalf("vm failed for %q: %v", input, err)
	}
	return result
}

func vmNumber(t *testing.T, input string, want float64) {
	t.Helper()
	result := runVM(t, input)
	n, ok := result.(*evaluator.Number)
	if !ok {
		t.Fatalf("expected Number for %q, got %s", input, result.Inspect())
	}
	if n.Value != want {
		t.Fatalf("%q: expected %v, got %v", input, want, n.Value)
	}
}

func TestVMArithmetic(t *testing.T) {
	vmNumber(t, "1 + 2 * 3", 7)
	vmNumber(t, "10 / 4", 2.5)
	vmNumber(t, "10 % 3", 1)
	vmNumber(t, "0 - 5", -5)
}

func TestVMComparisonAndLogic(t *testing.T) {
	testCases := []struct {
		input string
		want  bool
	}{
		{"1 at most 2", true},
		{"2 greater than 3", false},
		{"1 is 1", true},
		{"1 is not 1", false},
		{"true and false", false},
		{"true or false", true},
		{"not false", true},
		{"\"a\" is \"a\"", true},
	}
	for _, tc := range testCases {
		result := runVM(t, tc.input)
		truth, ok := result.(*evaluator.Truth)
		if !ok || truth.Value != tc.want {
			t.Fatalf("%q: expected %t, got %s", tc.input, tc.want, result.Inspect())
		}
	}
}

func TestVMGlobals(t *testing.T) {
	vmNumber(t, "bind x to 10\nx * 2", 20)
	vmNumber(t, "weave x as 1\nset x to x + 5\nx", 6)
}

func TestVMWhileLoop(t *testing.T) {
	// Sum 1..10 through mutable globals.
	input := "weave s as 0\nweave i as 1\n" +
		"whilst i at most 10 then\nset s to s + i\nset i to i + 1\nend\ns"
	vmNumber(t, input, 55)
}

func TestVMDivisionByZeroUnwinds(t *testing.T) {
	input := "weave r as 0\n" +
		"attempt\nbind x to 10 / 0\nharmonize on DivisionByZero then\nset r to 0 - 1\nend\nr"
	vmNumber(t, input, -1)

	// Without a handler the error reaches the caller.
	chunk := compile(t, "10 / 0")
	_, err := vm.New().Execute(chunk)
	if err == nil || err.Kind != vm.ErrDivisionByZero {
		t.Fatalf("expected DivisionByZero, got %v", err)
	}
}

func TestVMWildcardHandler(t *testing.T) {
	input := "weave r as 0\n" +
		"attempt\nbind x to 1 / 0\nharmonize on _ then\nset r to 7\nend\nr"
	vmNumber(t, input, 7)
}

func TestVMListsAndMaps(t *testing.T) {
	result := runVM(t, "[1, 2, 3]")
	list, ok := result.(*evaluator.List)
	if !ok || len(list.Elements) != 3 {
		t.Fatalf("bad list: %s", result.Inspect())
	}

	vmNumber(t, "bind xs to [10, 20, 30]\nxs[2]", 30)
	vmNumber(t, "bind m to {age: 42}\nm.age", 42)

	chunk := compile(t, "bind xs to [1]\nxs[9]")
	_, err := vm.New().Execute(chunk)
	if err == nil || err.Kind != vm.ErrIndexOutOfBounds {
		t.Fatalf("expected IndexOutOfBounds, got %v", err)
	}

	chunk = compile(t, "bind m to {age: 42}\nm.name")
	_, err = vm.New().Execute(chunk)
	if err == nil || err.Kind != vm.ErrFieldNotFound {
		t.Fatalf("expected FieldNotFound, got %v", err)
	}
}

func TestVMStructs(t *testing.T) {
	input := "form Point with\nx as Number\ny as Number\nend\n" +
		"bind p to Point { x: 3, y: 4 }\np.x + p.y"
	vmNumber(t, input, 7)
}

func TestVMVariants(t *testing.T) {
	result := runVM(t, "Triumph(42)")
	outcome, ok := result.(*evaluator.Outcome)
	if !ok || !outcome.Success {
		t.Fatalf("bad Triumph: %s", result.Inspect())
	}

	result = runVM(t, "Absent")
	maybe, ok := result.(*evaluator.Maybe)
	if !ok || maybe.Present {
		t.Fatalf("bad Absent: %s", result.Inspect())
	}
}

func TestVMLocalsAreNotImplemented(t *testing.T) {
	// The compiler accepts locals; executing them is reserved. This is the
	// current scoping story: globals dominate.
	chunk := compile(t, "chant f(n) then\nyield n\nend")
	_, err := vm.New().Execute(chunk)
	if err == nil {
		t.Fatal("expected the local-variable limitation to surface")
	}
}

// Backend agreement: on the subset both backends support, the VM computes
// the same values as the reference interpreter.
func TestBackendAgreement(t *testing.T) {
	programs := []string{
		"1 + 2 * 3 - 4 / 2",
		"10 % 3 + 1",
		"bind x to 10\nx * 2 + x",
		"weave s as 0\nweave i as 1\nwhilst i at most 10 then\nset s to s + i\nset i to i + 1\nend\ns",
		"1 at most 2 and 3 greater than 2",
		"not (1 is 2)",
		"weave r as 0\nattempt\nbind x to 10 / 0\nharmonize on DivisionByZero then\nset r to 0 - 1\nend\nr",
		"bind xs to [1, 2, 3]\nxs[1] + xs[2]",
		"bind m to {a: 1, b: 2}\nm.a + m.b",
		"form P with\nx as Number\nend\nbind p to P { x: 9 }\np.x",
	}

	for _, input := range programs {
		prog, parseErr := parser.Parse(lexer.Tokenize(input))
		if parseErr != nil {
			t.Fatalf("parse failed for %q: %v", input, parseErr)
		}

		ev := evaluator.New()
		ev.Output = &bytes.Buffer{}
		interpreted, evalErr := ev.EvalProgram(prog)
		if evalErr != nil {
			t.Fatalf("interpreter failed for %q: %v", input, evalErr)
		}

		compiled := runVM(t, input)
		if !evaluator.Equals(interpreted, compiled) {
			t.Fatalf("backends disagree for %q: interpreter=%s vm=%s",
				input, interpreted.Inspect(), compiled.Inspect())
		}
	}
}
