package codegen_test

import (
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/codegen"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/parser"
)

func compileAsm(t *testing.T, input string) string {
	t.Helper()
	prog, parseErr := parser.Parse(lexer.Tokenize(input))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	asm, err := codegen.CompileToAsm(prog)
	if err != nil {
		t.Fatalf("codegen failed for %q: %v", input, err)
	}
	return asm
}

func compileAsmError(t *testing.T, input string) *codegen.Error {
	t.Helper()
	prog, parseErr := parser.Parse(lexer.Tokenize(input))
	if parseErr != nil {
		t.Fatalf("parse failed: %v", parseErr)
	}
	_, err := codegen.CompileToAsm(prog)
	if err == nil {
		t.Fatalf("expected codegen error for %q", input)
	}
	return err
}

func TestEmitsMainWithPrologue(t *testing.T) {
	asm := compileAsm(t, "bind x to 42")
	for _, want := range []string{
		".text", ".globl main", "main:", "pushq %rbp",
		"movq %rsp, %rbp", "movq $42, %rax", "ret",
	} {
		if !strings.Contains(asm, want) {
			t.Fatalf("missing %q in:\n%s", want, asm)
		}
	}
}

func TestExternalAllocatorDeclarations(t *testing.T) {
	asm := compileAsm(t, "bind x to 1")
	if !strings.Contains(asm, ".globl gl_malloc") || !strings.Contains(asm, ".globl gl_free") {
		t.Fatalf("allocator symbols must be declared:\n%s", asm)
	}
}

func TestArithmeticLowering(t *testing.T) {
	asm := compileAsm(t, "1 + 2")
	for _, want := range []string{"pushq %rax", "movq %rax, %rbx", "popq %rax", "addq %rbx, %rax"} {
		if !strings.Contains(asm, want) {
			t.Fatalf("missing %q in:\n%s", want, asm)
		}
	}

	asm = compileAsm(t, "10 / 3")
	if !strings.Contains(asm, "xorq %rdx, %rdx") || !strings.Contains(asm, "idivq %rbx") {
		t.Fatalf("division lowering wrong:\n%s", asm)
	}

	asm = compileAsm(t, "10 % 3")
	if !strings.Contains(asm, "idivq %rbx") || !strings.Contains(asm, "movq %rdx, %rax") {
		t.Fatalf("modulo lowering wrong:\n%s", asm)
	}
}

func TestComparisonLowering(t *testing.T) {
	asm := compileAsm(t, "1 at most 2")
	for _, want := range []string{"cmpq %rbx, %rax", "movq $0, %rax", "setle %al"} {
		if !strings.Contains(asm, want) {
			t.Fatalf("missing %q in:\n%s", want, asm)
		}
	}

	asm = compileAsm(t, "1 is 2")
	if !strings.Contains(asm, "sete %al") {
		t.Fatalf("equality lowering wrong:\n%s", asm)
	}
}

func TestShortCircuitLogic(t *testing.T) {
	asm := compileAsm(t, "true and false")
	if !strings.Contains(asm, ".L_and_false_") || !strings.Contains(asm, ".L_and_end_") {
		t.Fatalf("and lowering missing labels:\n%s", asm)
	}

	asm = compileAsm(t, "true or false")
	if !strings.Contains(asm, ".L_or_true_") || !strings.Contains(asm, ".L_or_end_") {
		t.Fatalf("or lowering missing labels:\n%s", asm)
	}
}

func TestControlFlowLabels(t *testing.T) {
	asm := compileAsm(t, "should 1 at most 2 then\nbind a to 1\notherwise\nbind b to 2\nend")
	if !strings.Contains(asm, ".L_else_0:") || !strings.Contains(asm, ".L_if_end_0:") {
		t.Fatalf("if labels missing:\n%s", asm)
	}

	asm = compileAsm(t, "weave i as 0\nwhilst i at most 3 then\nset i to i + 1\nend")
	if !strings.Contains(asm, ".L_while_start_0:") || !strings.Contains(asm, ".L_while_end_0") {
		t.Fatalf("while labels missing:\n%s", asm)
	}
}

func TestFunctionDefinitionAndCall(t *testing.T) {
	asm := compileAsm(t, "chant add(a, b) then\nyield a + b\nend\nadd(1, 2)")
	for _, want := range []string{
		".L_func_add:",
		"movq %rdi,", // first parameter into its slot
		"movq %rsi,", // second parameter into its slot
		"call .L_func_add",
	} {
		if !strings.Contains(asm, want) {
			t.Fatalf("missing %q in:\n%s", want, asm)
		}
	}
}

// Self-recursive tail position compiles to a sibling jump, not a call.
func TestTailCallOptimization(t *testing.T) {
	input := "chant sum_to(n, acc) then\n" +
		"should n at most 0 then\nyield acc\notherwise\nyield sum_to(n - 1, acc + n)\nend\n" +
		"end"
	asm := compileAsm(t, input)

	if !strings.Contains(asm, "jmp .L_func_sum_to") {
		t.Fatalf("tail call must jump to the entry:\n%s", asm)
	}
	if strings.Contains(asm, "call .L_func_sum_to") {
		t.Fatalf("tail call must not use call:\n%s", asm)
	}
}

func TestTaggedUnionLayout(t *testing.T) {
	asm := compileAsm(t, "bind r to Triumph(42)")
	// 16-byte block: tag 1 at +8, value at +0, address in rax.
	if !strings.Contains(asm, "movq $1, -8(%rbp)") {
		t.Fatalf("Triumph tag not at +8:\n%s", asm)
	}
	if !strings.Contains(asm, "movq %rax, -16(%rbp)") {
		t.Fatalf("Triumph value not at +0:\n%s", asm)
	}

	asm = compileAsm(t, "bind r to Absent")
	if !strings.Contains(asm, "movq $0, -8(%rbp)") {
		t.Fatalf("Absent tag must be 0:\n%s", asm)
	}
}

func TestMatchLoadsVariantTag(t *testing.T) {
	input := "bind r to Triumph(1)\nmatch r with\nwhen Triumph(x) then\nx\nwhen Mishap(e) then\n0\nend"
	asm := compileAsm(t, input)
	if !strings.Contains(asm, "movq 8(%rax), %rbx") {
		t.Fatalf("variant tag must load from +8:\n%s", asm)
	}
	if !strings.Contains(asm, "cmpq $1, %rbx") {
		t.Fatalf("Triumph arm must compare tag with 1:\n%s", asm)
	}
	if !strings.Contains(asm, ".L_match_arm_") || !strings.Contains(asm, ".L_match_end_") {
		t.Fatalf("match labels missing:\n%s", asm)
	}
}

func TestStructAllocation(t *testing.T) {
	input := "form Point with\nx as Number\ny as Number\nend\nbind p to Point { x: 1, y: 2 }"
	asm := compileAsm(t, input)
	if !strings.Contains(asm, "movq $16, %rdi") {
		t.Fatalf("two 8-byte fields must allocate 16 bytes:\n%s", asm)
	}
	if !strings.Contains(asm, "call gl_malloc") {
		t.Fatalf("struct must heap-allocate via gl_malloc:\n%s", asm)
	}
	if !strings.Contains(asm, "movq %rax, 8(%rbx)") {
		t.Fatalf("second field must store at offset 8:\n%s", asm)
	}
}

func TestFieldAccessLoadsByIndex(t *testing.T) {
	input := "form Point with\nx as Number\ny as Number\nend\n" +
		"bind p to Point { x: 1, y: 2 }\np.y"
	asm := compileAsm(t, input)
	if !strings.Contains(asm, "movq 8(%rax), %rax") {
		t.Fatalf("field y must load from offset 8:\n%s", asm)
	}
}

func TestStringLiteralAllocation(t *testing.T) {
	asm := compileAsm(t, "bind s to \"hello\"")
	for _, want := range []string{
		".data",
		".L_string_data_0:",
		".ascii \"hello\"",
		"movq $5, %r10",
		"leaq .L_string_data_0(%rip), %r11",
		"call gl_malloc",
	} {
		if !strings.Contains(asm, want) {
			t.Fatalf("missing %q in:\n%s", want, asm)
		}
	}
}

func TestUnsupportedConstructs(t *testing.T) {
	testCases := []string{
		"grove M with\nbind a to 1\nend",
		"summon M from \"m.gw\"",
		"offer a",
		"request Disk.write with justification \"x\"",
	}
	for _, input := range testCases {
		err := compileAsmError(t, input)
		if !strings.Contains(err.Error(), "interpreter") {
			t.Fatalf("error should point at the other backends: %v", err)
		}
	}
}

func TestDeterministicOutput(t *testing.T) {
	input := "chant add(a, b) then\nyield a + b\nend\n" +
		"bind s to \"hi\"\nbind r to Triumph(add(1, 2))"
	first := compileAsm(t, input)
	second := compileAsm(t, input)
	if first != second {
		t.Fatal("two runs must produce byte-identical assembly")
	}
}

func TestAssemblySnapshot(t *testing.T) {
	input := "chant factorial(n) then\n" +
		"should n at most 1 then\nyield 1\notherwise\nyield n * factorial(n - 1)\nend\n" +
		"end\n" +
		"factorial(5)"
	snaps.MatchSnapshot(t, compileAsm(t, input))
}

func TestUniqueLabelsAcrossConstructs(t *testing.T) {
	input := "should true then\nbind a to 1\nend\nshould true then\nbind b to 2\nend"
	asm := compileAsm(t, input)
	if strings.Count(asm, ".L_if_end_0:") != 1 || strings.Count(asm, ".L_if_end_1:") != 1 {
		t.Fatalf("label counter must make labels unique:\n%s", asm)
	}
}

func TestStringEscaping(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{
		&ast.BindStmt{Name: "s", Value: &ast.TextLiteral{Value: "a\"b\nc"}},
	}}
	asm, err := codegen.CompileToAsm(prog)
	if err != nil {
		t.Fatalf("codegen failed: %v", err)
	}
	if !strings.Contains(asm, `.ascii "a\"b\nc"`) {
		t.Fatalf("string escaping wrong:\n%s", asm)
	}
}
