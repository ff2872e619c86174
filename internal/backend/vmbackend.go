package backend

import (
	"fmt"
	"io"

	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/pipeline"
	"github.com/glimmerweave/gw/internal/vm"
)

// VMBackend compiles to bytecode and executes on the Quicksilver VM.
// Constructs outside the bytecode subset surface as UnsupportedFeature
// compile errors pointing at the interpreter.
type VMBackend struct {
	Output io.Writer // optional; defaults to stdout
}

func NewVM() *VMBackend {
	return &VMBackend{}
}

func (b *VMBackend) Name() string { return "vm" }

func (b *VMBackend) Run(ctx *pipeline.PipelineContext) (evaluator.Value, error) {
	if ctx.AstRoot == nil {
		return nil, fmt.Errorf("no AST to execute")
	}
	if ctx.Failed() {
		return nil, ctx.Errors[0]
	}

	chunk, compileErr := vm.Compile(ctx.AstRoot)
	if compileErr != nil {
		return nil, compileErr
	}

	machine := vm.New()
	if b.Output != nil {
		machine.Output = b.Output
	}
	result, runErr := machine.Execute(chunk)
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}
