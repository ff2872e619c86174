package backend

import (
	"fmt"
	"io"

	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/modules"
	"github.com/glimmerweave/gw/internal/pipeline"
)

// TreeWalkBackend wraps the reference interpreter. It supports the whole
// language, modules and capabilities included.
type TreeWalkBackend struct {
	Output io.Writer // optional; defaults to stdout
}

func NewTreeWalk() *TreeWalkBackend {
	return &TreeWalkBackend{}
}

func (b *TreeWalkBackend) Name() string { return "tree" }

func (b *TreeWalkBackend) Run(ctx *pipeline.PipelineContext) (evaluator.Value, error) {
	if ctx.AstRoot == nil {
		return nil, fmt.Errorf("no AST to execute")
	}
	if ctx.Failed() {
		return nil, ctx.Errors[0]
	}

	ev := evaluator.New()
	if b.Output != nil {
		ev.Output = b.Output
	}
	if resolver, ok := ctx.Resolver.(*modules.Resolver); ok {
		ev.Resolver = resolver
	}

	result, err := ev.EvalProgram(ctx.AstRoot)
	if err != nil {
		return nil, err
	}
	return result, nil
}
