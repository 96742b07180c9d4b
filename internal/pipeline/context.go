package pipeline

import (
	"context"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
)

// PipelineContext carries one run through the processors.
type PipelineContext struct {
	Ctx    context.Context
	Config *config.Config
	RunID  string

	// GlobalState is owned by the run until the driver freezes it.
	GlobalState *symbols.GlobalState

	// Programs are the files the namer enters.
	Programs []*ast.Program

	// CheckPaths limits inference to these files; nil checks every file.
	CheckPaths []string

	// Named is the namer's hand-off to the resolver (*namer.Result).
	Named interface{}

	// Bodies holds the inference output of this run by file.
	Bodies map[string]*symbols.BodyResults

	// InternalErrors are checker bugs isolated to one method.
	InternalErrors []error

	// Err is fatal: cancellation, or an internal error when the
	// configuration asks for those to fail the run.
	Err error
}

func NewPipelineContext(ctx context.Context, gs *symbols.GlobalState, conf *config.Config) *PipelineContext {
	if conf == nil {
		conf = config.Default()
	}
	return &PipelineContext{
		Ctx:         ctx,
		Config:      conf,
		GlobalState: gs,
		Bodies:      make(map[string]*symbols.BodyResults),
	}
}

// Diagnostics returns every diagnostic of the state in canonical order.
func (ctx *PipelineContext) Diagnostics() []*diagnostics.DiagnosticError {
	return ctx.GlobalState.AllDiagnostics()
}
