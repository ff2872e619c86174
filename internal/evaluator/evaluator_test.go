package evaluator_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/glimmerweave/gw/internal/analyzer"
	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/modules"
	"github.com/glimmerweave/gw/internal/parser"
)

func run(t *testing.T, input string) evaluator.Value {
	t.Helper()
	value, err := tryRun(t, input)
	if err != nil {
		t.Fatalf("eval failed for %q: %v", input, err)
	}
	return value
}

func tryRun(t *testing.T, input string) (evaluator.Value, *evaluator.RuntimeError) {
	t.Helper()
	prog, parseErr := parser.Parse(lexer.Tokenize(input))
	if parseErr != nil {
		t.Fatalf("parse failed for %q: %v", input, parseErr)
	}
	prog = analyzer.NewMonomorphizer().Monomorphize(prog)
	ev := evaluator.New()
	ev.Output = &bytes.Buffer{}
	return ev.EvalProgram(prog)
}

func wantNumber(t *testing.T, v evaluator.Value, want float64) {
	t.Helper()
	n, ok := v.(*evaluator.Number)
	if !ok {
		t.Fatalf("expected Number, got %s (%s)", v.TypeName(), v.Inspect())
	}
	if n.Value != want {
		t.Fatalf("expected %v, got %v", want, n.Value)
	}
}

// Recursive factorial.
func TestFactorial(t *testing.T) {
	input := "chant factorial(n) then\n" +
		"should n at most 1 then\nyield 1\notherwise\nyield n * factorial(n - 1)\nend\n" +
		"end\n" +
		"factorial(5)"
	wantNumber(t, run(t, input), 120)
}

// Sum via while loop.
func TestSumViaWhile(t *testing.T) {
	input := "weave s as 0\nweave i as 1\n" +
		"whilst i at most 10 then\nset s to s + i\nset i to i + 1\nend\n" +
		"s"
	wantNumber(t, run(t, input), 55)
}

// Outcome pattern match.
func TestOutcomeMatch(t *testing.T) {
	input := "bind r to Triumph(42)\n" +
		"match r with\nwhen Triumph(x) then\nx * 2\nwhen Mishap(e) then\n0\nend"
	wantNumber(t, run(t, input), 84)
}

// attempt/harmonize on DivisionByZero.
func TestAttemptHarmonize(t *testing.T) {
	input := "attempt\nbind x to 10 / 0\nx\nharmonize on DivisionByZero then\n0 - 1\nend"
	wantNumber(t, run(t, input), -1)
}

func TestAttemptWildcard(t *testing.T) {
	input := "attempt\nundefined_name\nharmonize on _ then\n99\nend"
	wantNumber(t, run(t, input), 99)
}

func TestUnmatchedErrorPropagates(t *testing.T) {
	input := "attempt\nbind x to 10 / 0\nharmonize on IndexOutOfBounds then\n0\nend"
	_, err := tryRun(t, input)
	if err == nil || err.Kind != evaluator.ErrDivisionByZero {
		t.Fatalf("expected DivisionByZero to propagate, got %v", err)
	}
}

// Tail-call elimination with an accumulator: host stack stays bounded.
func TestTailCallElimination(t *testing.T) {
	input := "chant sum_to(n, acc) then\n" +
		"should n at most 0 then\nyield acc\notherwise\nyield sum_to(n - 1, acc + n)\nend\n" +
		"end\n" +
		"sum_to(100, 0)"
	wantNumber(t, run(t, input), 5050)

	deep := strings.Replace(input, "sum_to(100, 0)", "sum_to(20000, 0)", 1)
	wantNumber(t, run(t, deep), 200010000)
}

// Monomorphized identity.
func TestMonomorphizedIdentity(t *testing.T) {
	input := "chant identity<T>(x as T) -> T then\nyield x\nend\nidentity<Number>(7)"
	wantNumber(t, run(t, input), 7)
}

func TestBindingsAndShadowing(t *testing.T) {
	wantNumber(t, run(t, "bind x to 1\nbind x to x + 1\nx"), 2)

	_, err := tryRun(t, "bind x to 1\nset x to 2")
	if err == nil || err.Kind != evaluator.ErrImmutableBinding {
		t.Fatalf("expected ImmutableBinding, got %v", err)
	}

	_, err = tryRun(t, "missing")
	if err == nil || err.Kind != evaluator.ErrUndefinedVariable {
		t.Fatalf("expected UndefinedVariable, got %v", err)
	}
}

func TestForEach(t *testing.T) {
	input := "weave s as 0\nfor each x in [1, 2, 3, 4] then\nset s to s + x\nend\ns"
	wantNumber(t, run(t, input), 10)

	input = "weave s as 0\nfor each x in range(1, 5) then\nset s to s + x\nend\ns"
	wantNumber(t, run(t, input), 10)

	input = "weave s as 0\nfor each x in [1, 2, 3, 4] then\nshould x is 3 then\nbreak\nend\nset s to s + x\nend\ns"
	wantNumber(t, run(t, input), 3)

	input = "weave s as 0\nfor each x in [1, 2, 3, 4] then\nshould x is 3 then\ncontinue\nend\nset s to s + x\nend\ns"
	wantNumber(t, run(t, input), 7)
}

func TestListAndMapAccess(t *testing.T) {
	wantNumber(t, run(t, "bind xs to [10, 20, 30]\nxs[1]"), 20)

	_, err := tryRun(t, "bind xs to [1]\nxs[5]")
	if err == nil || err.Kind != evaluator.ErrIndexOutOfBounds {
		t.Fatalf("expected IndexOutOfBounds, got %v", err)
	}

	wantNumber(t, run(t, "bind m to {age: 42}\nm.age"), 42)

	_, err = tryRun(t, "bind m to {age: 42}\nm.name")
	if err == nil || err.Kind != evaluator.ErrFieldNotFound {
		t.Fatalf("expected FieldNotFound, got %v", err)
	}

	input := "weave xs as [1, 2, 3]\nset xs[0] to 9\nxs[0]"
	wantNumber(t, run(t, input), 9)
}

func TestStructs(t *testing.T) {
	input := "form Point with\nx as Number\ny as Number\nend\n" +
		"bind p to Point { x: 3, y: 4 }\np.x + p.y"
	wantNumber(t, run(t, input), 7)

	// Missing and excess fields are construction-time errors.
	_, err := tryRun(t, "form Point with\nx as Number\ny as Number\nend\nPoint { x: 1 }")
	if err == nil {
		t.Fatal("missing field must fail construction")
	}
	_, err = tryRun(t, "form Point with\nx as Number\nend\nPoint { x: 1, z: 2 }")
	if err == nil {
		t.Fatal("excess field must fail construction")
	}

	input = "form Point with\nx as Number\ny as Number\nend\n" +
		"weave p as Point { x: 1, y: 2 }\nset p.x to 9\np.x"
	wantNumber(t, run(t, input), 9)
}

func TestUserVariants(t *testing.T) {
	input := "variant Shape then Circle(r: Number), Dot\nend\n" +
		"bind s to Circle(5)\n" +
		"match s with\nwhen Circle(r) then\nr * 2\nwhen Dot then\n0\nend"
	wantNumber(t, run(t, input), 10)

	input = "variant Shape then Circle(r: Number), Dot\nend\n" +
		"bind s to Dot\n" +
		"match s with\nwhen Circle(r) then\nr * 2\nwhen Dot then\n7\nend"
	wantNumber(t, run(t, input), 7)
}

func TestTuplePatternOnVariantData(t *testing.T) {
	input := "variant Msg then Move(x: Number, y: Number), Quit\nend\n" +
		"bind m to Move(3, 4)\n" +
		"match m with\nwhen Move(x, y) then\nx + y\nwhen Quit then\n0\nend"
	wantNumber(t, run(t, input), 7)
}

func TestMatchFailed(t *testing.T) {
	_, err := tryRun(t, "match 3 with\nwhen 1 then\n1\nwhen 2 then\n2\nend")
	if err == nil || err.Kind != evaluator.ErrMatchFailed {
		t.Fatalf("expected MatchFailed, got %v", err)
	}
}

func TestAspectDispatch(t *testing.T) {
	input := "form Point with\nx as Number\ny as Number\nend\n" +
		"aspect Area then\nchant area(self) -> Number\nend\n" +
		"embody Area for Point then\nchant area(self) then\nyield self.x * self.y\nend\nend\n" +
		"bind p to Point { x: 3, y: 5 }\np.area()"
	wantNumber(t, run(t, input), 15)
}

func TestPipeline(t *testing.T) {
	wantNumber(t, run(t, "[1, 2, 3] | list_sum"), 6)

	input := "chant add_one(x) then\nyield x + 1\nend\n5 | add_one | add_one"
	wantNumber(t, run(t, input), 7)

	// A call stage receives the threaded value as its last argument.
	input = "chant scale(factor, x) then\nyield x * factor\nend\n5 | scale(3)"
	wantNumber(t, run(t, input), 15)
}

func TestTryOperator(t *testing.T) {
	input := "chant get() then\nyield Triumph(4)\nend\n" +
		"chant use() then\nbind v to get()?\nyield v + 1\nend\nuse()"
	wantNumber(t, run(t, input), 5)

	input = "chant get() then\nyield Mishap(\"boom\")\nend\n" +
		"chant use() then\nbind v to get()?\nyield v + 1\nend\nuse()"
	result := run(t, input)
	outcome, ok := result.(*evaluator.Outcome)
	if !ok || outcome.Success {
		t.Fatalf("try should propagate the Mishap: %s", result.Inspect())
	}
}

func TestMaybeDistinctions(t *testing.T) {
	// Present(nothing) and Absent are different values.
	input := "bind a to Present(nothing)\nbind b to Absent\na is b"
	result := run(t, input)
	truth, ok := result.(*evaluator.Truth)
	if !ok || truth.Value {
		t.Fatalf("Present(nothing) must not equal Absent: %s", result.Inspect())
	}
}

func TestVariadicChant(t *testing.T) {
	input := "chant count(...items) then\nyield list_length(items)\nend\ncount(1, 2, 3)"
	wantNumber(t, run(t, input), 3)
}

func TestArityMismatch(t *testing.T) {
	_, err := tryRun(t, "chant add(a, b) then\nyield a + b\nend\nadd(1)")
	if err == nil || err.Kind != evaluator.ErrArityMismatch {
		t.Fatalf("expected ArityMismatch, got %v", err)
	}
}

func TestNotCallable(t *testing.T) {
	_, err := tryRun(t, "bind x to 1\nx(2)")
	if err == nil || err.Kind != evaluator.ErrNotCallable {
		t.Fatalf("expected NotCallable, got %v", err)
	}
}

func TestNotIterable(t *testing.T) {
	_, err := tryRun(t, "for each x in 5 then\nx\nend")
	if err == nil || err.Kind != evaluator.ErrNotIterable {
		t.Fatalf("expected NotIterable, got %v", err)
	}
}

func TestCapabilityRequest(t *testing.T) {
	result := run(t, "request Disk.write with justification \"backup\"")
	capability, ok := result.(*evaluator.Capability)
	if !ok {
		t.Fatalf("expected Capability, got %s", result.TypeName())
	}
	if capability.Resource != "Disk.write" {
		t.Fatalf("bad resource: %s", capability.Resource)
	}
	if capability.Token == "" {
		t.Fatal("capability token must be minted")
	}
}

func TestPrintGoesToWriter(t *testing.T) {
	prog, parseErr := parser.Parse(lexer.Tokenize("println(\"hi\", 42)"))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	var out bytes.Buffer
	ev := evaluator.New()
	ev.Output = &out
	if _, err := ev.EvalProgram(prog); err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if out.String() != "hi 42\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestBuiltins(t *testing.T) {
	wantNumber(t, run(t, "length(\"hello\")"), 5)
	wantNumber(t, run(t, "list_sum([1, 2, 3])"), 6)
	wantNumber(t, run(t, "abs(0 - 5)"), 5)
	wantNumber(t, run(t, "min(3, 7)"), 3)

	result := run(t, "upper(\"abc\")")
	if text, ok := result.(*evaluator.Text); !ok || text.Value != "ABC" {
		t.Fatalf("upper broken: %s", result.Inspect())
	}

	result = run(t, "type_of(Triumph(1))")
	if text, ok := result.(*evaluator.Text); !ok || text.Value != "Triumph" {
		t.Fatalf("type_of broken: %s", result.Inspect())
	}

	result = run(t, "is_present(Present(1))")
	if truth, ok := result.(*evaluator.Truth); !ok || !truth.Value {
		t.Fatalf("is_present broken: %s", result.Inspect())
	}

	wantNumber(t, run(t, "unwrap_or(Absent, 9)"), 9)
}

func TestModules(t *testing.T) {
	reader := modules.MapReader{
		"/proj/math.gw": "grove Math with\nchant double(x) then\nyield x * 2\nend\noffer double\nend",
	}
	resolver := modules.NewResolver("/proj", "/std", reader)

	prog, parseErr := parser.Parse(lexer.Tokenize(
		"summon Math from \"math.gw\"\nMath.double(21)"))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	ev := evaluator.New()
	ev.Output = &bytes.Buffer{}
	ev.Resolver = resolver

	result, err := ev.EvalProgram(prog)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	wantNumber(t, result, 42)
}

func TestGatherFromModule(t *testing.T) {
	reader := modules.MapReader{
		"/proj/math.gw": "grove Math with\nchant double(x) then\nyield x * 2\nend\noffer double\nend",
	}
	resolver := modules.NewResolver("/proj", "/std", reader)

	prog, parseErr := parser.Parse(lexer.Tokenize(
		"summon Math from \"math.gw\"\ngather double from Math\ndouble(5)"))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	ev := evaluator.New()
	ev.Output = &bytes.Buffer{}
	ev.Resolver = resolver

	result, err := ev.EvalProgram(prog)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	wantNumber(t, result, 10)
}
