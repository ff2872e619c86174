package analyzer

import (
	"github.com/glimmerweave/gw/internal/diagnostics"
	"github.com/glimmerweave/gw/internal/pipeline"
	"github.com/glimmerweave/gw/internal/token"
)

// SemanticProcessor runs the semantic passes in order: monomorphization,
// borrow checking, lifetime checking, type inference. The checkers batch
// their diagnostics instead of failing fast.
type SemanticProcessor struct {
	// SkipChecks leaves the borrow/lifetime/type passes out; the CLI uses
	// this for `run` on already-checked sources.
	SkipChecks bool
}

func (sp *SemanticProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	if ctx.AstRoot == nil || ctx.Failed() {
		return ctx
	}

	ctx.AstRoot = NewMonomorphizer().Monomorphize(ctx.AstRoot)

	if sp.SkipChecks {
		return ctx
	}

	for _, err := range NewBorrowChecker().Check(ctx.AstRoot) {
		ctx.AddError(diagnostics.NewError(diagnostics.ErrS001, token.Token{
			Line:   err.Span.StartLine,
			Column: err.Span.StartColumn,
		}, err.Kind+": "+err.Message))
	}

	for _, err := range NewLifetimeChecker().Check(ctx.AstRoot) {
		ctx.AddError(diagnostics.NewError(diagnostics.ErrS002, token.Token{
			Line:   err.Span.StartLine,
			Column: err.Span.StartColumn,
		}, err.Kind+": "+err.Message))
	}

	for _, err := range NewConstraintGenerator().InferProgram(ctx.AstRoot) {
		ctx.AddError(diagnostics.NewError(diagnostics.ErrT001, token.Token{
			Line:   err.Span.StartLine,
			Column: err.Span.StartColumn,
		}, "TypeMismatch: "+err.Error()))
	}

	return ctx
}
