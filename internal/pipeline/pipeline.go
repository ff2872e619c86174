package pipeline

// Processor is a single stage of the front end: lexing, parsing, or one of
// the semantic passes.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline is a fixed sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run pushes the context through every stage. Stages run even after earlier
// errors so callers receive the full batch of diagnostics; stages that need
// a clean input check ctx.Failed() themselves.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		ctx = processor.Process(ctx)
	}
	return ctx
}
