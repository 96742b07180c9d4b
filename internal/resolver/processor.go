package resolver

import (
	"errors"
	"fmt"

	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/namer"
	"github.com/funvibe/sigcheck/internal/pipeline"
)

type ResolverProcessor struct{}

func (rp *ResolverProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	res, ok := ctx.Named.(*namer.Result)
	if !ok {
		ctx.Err = errors.New("resolver: no namer result")
		return ctx
	}
	if err := Run(ctx.Ctx, ctx.GlobalState, res, ctx.Config); err != nil {
		ctx.Err = err
		return ctx
	}
	if ies := ctx.GlobalState.InternalErrors(); len(ies) > 0 {
		ctx.InternalErrors = append(ctx.InternalErrors, ies...)
		if ctx.Config.FailOnInternalError || config.IsTestMode {
			ctx.Err = fmt.Errorf("resolver: %d internal error(s): %w", len(ies), errors.Join(ies...))
		}
	}
	return ctx
}
