package infer

import (
	"errors"
	"fmt"

	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/pipeline"
)

// InferProcessor checks the bodies of ctx.CheckPaths, or of every file, and
// stores the results in the global state.
type InferProcessor struct{}

func (ip *InferProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	gs := ctx.GlobalState
	paths := ctx.CheckPaths
	if paths == nil {
		paths = gs.FilePaths()
	}
	results, err := Run(ctx.Ctx, gs, paths, ctx.Config)
	if err != nil {
		ctx.Err = err
		return ctx
	}
	for _, p := range paths {
		br := results[p]
		gs.SetBodyResults(p, br)
		ctx.Bodies[p] = br
		ctx.InternalErrors = append(ctx.InternalErrors, br.InternalErrors...)
	}
	if len(ctx.InternalErrors) > 0 && (ctx.Config.FailOnInternalError || config.IsTestMode) {
		ctx.Err = fmt.Errorf("infer: %d internal error(s): %w", len(ctx.InternalErrors), errors.Join(ctx.InternalErrors...))
	}
	return ctx
}
