package backend

import (
	"github.com/glimmerweave/gw/internal/diagnostics"
	"github.com/glimmerweave/gw/internal/pipeline"
	"github.com/glimmerweave/gw/internal/token"
)

// ExecutionProcessor runs a Backend as the final pipeline stage, storing
// the result on the context and converting failures into diagnostics.
type ExecutionProcessor struct {
	Backend Backend
}

func NewExecutionProcessor(b Backend) *ExecutionProcessor {
	return &ExecutionProcessor{Backend: b}
}

func (p *ExecutionProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.AstRoot == nil || ctx.Failed() {
		return ctx
	}

	result, err := p.Backend.Run(ctx)
	if err != nil {
		ctx.AddError(diagnostics.NewError(diagnostics.ErrR001, token.Token{}, err.Error()))
		return ctx
	}
	ctx.Result = result
	return ctx
}
