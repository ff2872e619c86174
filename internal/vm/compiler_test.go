package vm_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/parser"
	"github.com/glimmerweave/gw/internal/vm"
)

func compile(t *testing.T, input string) *vm.Chunk {
	t.Helper()
	prog, parseErr := parser.Parse(lexer.Tokenize(input))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	chunk, err := vm.Compile(prog)
	if err != nil {
		t.Fatalf("compile failed for %q: %v", input, err)
	}
	return chunk
}

func compileError(t *testing.T, input string) *vm.CompileError {
	t.Helper()
	prog, parseErr := parser.Parse(lexer.Tokenize(input))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	_, err := vm.Compile(prog)
	if err == nil {
		t.Fatalf("expected compile error for %q", input)
	}
	return err
}

func TestCompileEndsWithHalt(t *testing.T) {
	chunk := compile(t, "1 + 2")
	last := chunk.Instructions[len(chunk.Instructions)-1]
	if last.Op != vm.OP_HALT {
		t.Fatalf("chunk must end with HALT, got %s", vm.OpcodeNames[last.Op])
	}
}

func TestConstantPoolDeduplicates(t *testing.T) {
	chunk := compile(t, "bind x to 1\nbind y to 1\nx + y + 1")
	for i := range chunk.Constants {
		for j := i + 1; j < len(chunk.Constants); j++ {
			a, b := chunk.Constants[i], chunk.Constants[j]
			if a.TypeName() == b.TypeName() && evaluator.Equals(a, b) {
				t.Fatalf("duplicate constants at %d and %d: %s", i, j, a.Inspect())
			}
		}
	}
}

func TestJumpOffsetsStayInBounds(t *testing.T) {
	programs := []string{
		"should 1 at most 2 then\nbind a to 1\notherwise\nbind b to 2\nend",
		"weave i as 0\nwhilst i at most 10 then\nset i to i + 1\nend",
		"bind r to Triumph(1)\nmatch r with\nwhen Triumph(x) then\n1\nwhen Mishap(e) then\n2\nend",
		"attempt\nbind x to 1 / 0\nharmonize on DivisionByZero then\nbind y to 1\nend",
	}
	for _, input := range programs {
		chunk := compile(t, input)
		for i, ins := range chunk.Instructions {
			switch ins.Op {
			case vm.OP_JUMP, vm.OP_JUMP_IF_TRUE, vm.OP_JUMP_IF_FALSE:
				target := i + 1 + int(ins.Offset)
				if target < 0 || target > len(chunk.Instructions) {
					t.Fatalf("jump at %d targets %d, out of [0, %d] for %q",
						i, target, len(chunk.Instructions), input)
				}
			case vm.OP_SETUP_TRY:
				if int(ins.Const) > len(chunk.Instructions) {
					t.Fatalf("handler offset %d out of range for %q", ins.Const, input)
				}
			}
		}
	}
}

func TestTailCallCompilesToBackwardJump(t *testing.T) {
	input := "chant sum_to(n, acc) then\n" +
		"should n at most 0 then\nyield acc\notherwise\nyield sum_to(n - 1, acc + n)\nend\n" +
		"end"
	chunk := compile(t, input)

	backwardJump := false
	for i, ins := range chunk.Instructions {
		if ins.Op == vm.OP_CALL {
			t.Fatal("self-recursive tail call must not emit CALL")
		}
		if ins.Op == vm.OP_JUMP && int(ins.Offset) < 0 && i+1+int(ins.Offset) == 0 {
			backwardJump = true
		}
	}
	if !backwardJump {
		t.Fatal("expected a backward jump to the function entry")
	}
}

func TestChantBodyEndsWithReturn(t *testing.T) {
	chunk := compile(t, "chant noop() then\nbind a to 1\nend")
	foundReturn := false
	for _, ins := range chunk.Instructions {
		if ins.Op == vm.OP_RETURN {
			foundReturn = true
		}
	}
	if !foundReturn {
		t.Fatal("chant without yield must still return nothing")
	}
}

func TestAttemptLowering(t *testing.T) {
	chunk := compile(t, "attempt\nbind x to 1 / 0\nharmonize on DivisionByZero then\nbind y to 1\nend")

	var ops []vm.Opcode
	for _, ins := range chunk.Instructions {
		ops = append(ops, ins.Op)
	}
	if ops[0] != vm.OP_SETUP_TRY {
		t.Fatalf("attempt must open with SETUP_TRY, got %s", vm.OpcodeNames[ops[0]])
	}
	popCount, throwCount := 0, 0
	for _, op := range ops {
		if op == vm.OP_POP_TRY {
			popCount++
		}
		if op == vm.OP_THROW {
			throwCount++
		}
	}
	if popCount == 0 {
		t.Fatal("attempt body must pop its handler on success")
	}
	if throwCount == 0 {
		t.Fatal("an unmatched error must be re-thrown")
	}
}

func TestModulesUnsupported(t *testing.T) {
	err := compileError(t, "grove M with\nbind a to 1\nend")
	if err.Kind != vm.ErrUnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %s", err.Kind)
	}
	err = compileError(t, "summon M from \"m.gw\"")
	if err.Kind != vm.ErrUnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %s", err.Kind)
	}
	err = compileError(t, "offer a")
	if err.Kind != vm.ErrUnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature, got %s", err.Kind)
	}
}

func TestUndefinedVariable(t *testing.T) {
	err := compileError(t, "missing + 1")
	if err.Kind != vm.ErrUndefinedVariable {
		t.Fatalf("expected UndefinedVariable, got %s", err.Kind)
	}
}

func TestMatchValueEvaluatedOnce(t *testing.T) {
	chunk := compile(t, "bind r to Triumph(1)\nmatch r with\nwhen Triumph(x) then\n1\nwhen Mishap(e) then\n2\nend")
	loads := 0
	for _, ins := range chunk.Instructions {
		if ins.Op == vm.OP_LOAD_GLOBAL {
			name, _ := chunk.Constants[ins.Const].(*evaluator.Text)
			if name != nil && name.Value == "r" {
				loads++
			}
		}
	}
	if loads != 1 {
		t.Fatalf("the match value should load once, got %d loads", loads)
	}
}

func TestPatternTagChecks(t *testing.T) {
	chunk := compile(t, "bind r to Present(1)\nmatch r with\nwhen Present(x) then\n1\nwhen Absent then\n2\nend")
	var sawIsPresent, sawIsAbsent, sawExtract bool
	for _, ins := range chunk.Instructions {
		switch ins.Op {
		case vm.OP_IS_PRESENT:
			sawIsPresent = true
		case vm.OP_IS_ABSENT:
			sawIsAbsent = true
		case vm.OP_EXTRACT_INNER:
			sawExtract = true
		}
	}
	if !sawIsPresent || !sawIsAbsent || !sawExtract {
		t.Fatalf("variant lowering incomplete: present=%t absent=%t extract=%t",
			sawIsPresent, sawIsAbsent, sawExtract)
	}
}

func TestDisassembleIsStable(t *testing.T) {
	input := "bind x to 1\nx + 2"
	first := vm.Disassemble(compile(t, input))
	second := vm.Disassemble(compile(t, input))
	if first != second {
		t.Fatal("disassembly must be deterministic")
	}
	if first == "" {
		t.Fatal("disassembly must not be empty")
	}
}
