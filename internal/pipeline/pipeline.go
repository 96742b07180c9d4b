package pipeline

import (
	"fmt"

	"github.com/funvibe/sigcheck/internal/typesystem"
)

// Processor is one stage of a checking run.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline. User errors never stop it, so every stage
// contributes diagnostics; a fatal error (cancellation, a checker bug that
// must fail the run) skips the remaining stages.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		if ctx.Err != nil {
			break
		}
		if err := ctx.Ctx.Err(); err != nil {
			ctx.Err = err
			break
		}
		ctx = run(processor, ctx)
	}
	return ctx
}

// run isolates a broken invariant in a whole-program phase to the run.
func run(processor Processor, ctx *PipelineContext) (out *PipelineContext) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := typesystem.AsInternalError(r)
			if !ok {
				panic(r)
			}
			ctx.Err = fmt.Errorf("%T: %w", processor, ie)
			out = ctx
		}
	}()
	return processor.Process(ctx)
}
