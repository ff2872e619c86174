// Package backend selects and drives an execution backend over the
// post-semantic AST: the tree-walking interpreter or the Quicksilver VM.
// The native code generator is not an execution backend — it produces
// assembly text — and is driven directly by the CLI.
package backend

import (
	"github.com/glimmerweave/gw/internal/evaluator"
	"github.com/glimmerweave/gw/internal/pipeline"
)

// Backend runs a fully-analyzed program and returns its final value.
type Backend interface {
	Name() string
	Run(ctx *pipeline.PipelineContext) (evaluator.Value, error)
}
