package namer

import (
	"github.com/funvibe/sigcheck/internal/pipeline"
)

type NamerProcessor struct{}

func (np *NamerProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	res, err := Run(ctx.Ctx, ctx.GlobalState, ctx.Programs, ctx.Config)
	if err != nil {
		ctx.Err = err
		return ctx
	}
	ctx.Named = res
	return ctx
}
