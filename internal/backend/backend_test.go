package backend_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/glimmerweave/gw/internal/analyzer"
	"github.com/glimmerweave/gw/internal/backend"
	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/parser"
	"github.com/glimmerweave/gw/internal/pipeline"
)

func process(t *testing.T, input string, b backend.Backend) *pipeline.PipelineContext {
	t.Helper()
	ctx := &pipeline.PipelineContext{SourceCode: input}
	p := pipeline.New(
		&lexer.LexerProcessor{},
		&parser.ParserProcessor{},
		&analyzer.SemanticProcessor{SkipChecks: true},
		backend.NewExecutionProcessor(b),
	)
	return p.Run(ctx)
}

func TestTreeWalkThroughPipeline(t *testing.T) {
	input := "chant factorial(n) then\n" +
		"should n at most 1 then\nyield 1\notherwise\nyield n * factorial(n - 1)\nend\n" +
		"end\n" +
		"factorial(5)"
	tree := backend.NewTreeWalk()
	tree.Output = &bytes.Buffer{}
	ctx := process(t, input, tree)
	if ctx.Failed() {
		t.Fatalf("pipeline failed: %v", ctx.Errors)
	}
	result, ok := ctx.Result.(evaluator.Value)
	if !ok {
		t.Fatalf("missing result: %#v", ctx.Result)
	}
	if n, ok := result.(*evaluator.Number); !ok || n.Value != 120 {
		t.Fatalf("expected 120, got %s", result.Inspect())
	}
}

func TestVMThroughPipeline(t *testing.T) {
	input := "weave s as 0\nweave i as 1\n" +
		"whilst i at most 10 then\nset s to s + i\nset i to i + 1\nend\ns"
	vmBackend := backend.NewVM()
	vmBackend.Output = &bytes.Buffer{}
	ctx := process(t, input, vmBackend)
	if ctx.Failed() {
		t.Fatalf("pipeline failed: %v", ctx.Errors)
	}
	result := ctx.Result.(evaluator.Value)
	if n, ok := result.(*evaluator.Number); !ok || n.Value != 55 {
		t.Fatalf("expected 55, got %s", result.Inspect())
	}
}

func TestVMReportsUnsupportedModules(t *testing.T) {
	ctx := process(t, "grove M with\nbind a to 1\nend", backend.NewVM())
	if !ctx.Failed() {
		t.Fatal("modules must fail on the VM backend")
	}
	if !strings.Contains(ctx.Errors[0].Error(), "interpreter") {
		t.Fatalf("diagnostic should point at the interpreter: %v", ctx.Errors[0])
	}
}

func TestParseErrorStopsExecution(t *testing.T) {
	ctx := process(t, "bind to 42", backend.NewTreeWalk())
	if !ctx.Failed() {
		t.Fatal("parse errors must stop the pipeline")
	}
	if ctx.Result != nil {
		t.Fatal("no result should be produced after a parse error")
	}
}
