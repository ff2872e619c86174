package pipeline

import (
	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/diagnostics"
	"github.com/glimmerweave/gw/internal/token"
)

// PipelineContext carries one source file through the stages. Each processor
// reads the fields earlier stages filled in and appends its own output and
// diagnostics.
type PipelineContext struct {
	SourceCode string
	FilePath   string

	// TokenStream is set by the lexer processor.
	TokenStream []token.Token

	// AstRoot is set by the parser processor.
	AstRoot *ast.Program

	// Resolver is the module resolver shared across files; typed as
	// interface{} so this package stays at the bottom of the import graph
	// (concretely a *modules.Resolver).
	Resolver interface{}

	// Result holds the final value produced by an execution backend;
	// typed as interface{} for the same layering reason as Resolver
	// (concretely an evaluator.Value).
	Result interface{}

	// Errors accumulates diagnostics from every stage.
	Errors []*diagnostics.Diagnostic
}

// Failed reports whether any stage has recorded an error.
func (ctx *PipelineContext) Failed() bool {
	return len(ctx.Errors) > 0
}

// AddError appends a diagnostic, stamping the context's file path onto it.
func (ctx *PipelineContext) AddError(d *diagnostics.Diagnostic) {
	if d.File == "" {
		d.File = ctx.FilePath
	}
	ctx.Errors = append(ctx.Errors, d)
}
