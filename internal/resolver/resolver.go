// Package resolver turns the names entered by the namer into a complete
// symbol table: constants, ancestors, linearizations, type members, aliases
// and method signatures. Afterwards the table is read-only.
package resolver

import (
	"context"
	"fmt"

	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/namer"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
)

type resolver struct {
	gs  *symbols.GlobalState
	cfg *config.Config
	res *namer.Result

	// parentSet records classes whose superclass came from source.
	parentSet map[symbols.SymbolID]bool
	// aliasPending holds constants whose value is a constant reference that
	// has not resolved yet.
	aliasPending map[symbols.SymbolID]bool
	stubs        map[stubKey]*diagnostics.DiagnosticError
	defRefs      map[string][]symbols.ConstResolution
	aliasState   map[symbols.SymbolID]visitState
	aliasDefs    map[symbols.SymbolID]namer.PendingAlias
	deferred     []boundCheck
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// Run resolves everything the namer left pending. User errors are added to
// gs; the returned error is reserved for cancellation.
func Run(ctx context.Context, gs *symbols.GlobalState, res *namer.Result, cfg *config.Config) error {
	r := &resolver{
		gs:           gs,
		cfg:          cfg,
		res:          res,
		parentSet:    make(map[symbols.SymbolID]bool),
		aliasPending: make(map[symbols.SymbolID]bool),
		stubs:        make(map[stubKey]*diagnostics.DiagnosticError),
		defRefs:      make(map[string][]symbols.ConstResolution),
		aliasState:   make(map[symbols.SymbolID]visitState),
		aliasDefs:    make(map[symbols.SymbolID]namer.PendingAlias, len(res.Aliases)),
	}
	for _, pa := range res.Aliases {
		r.aliasDefs[pa.Alias] = pa
	}
	gs.ResetLinearization()

	if err := r.resolveConstants(ctx); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	r.defaultAncestors()
	r.linearizeAll()
	r.resolveTypeMembers()
	r.resolveAliases()
	r.resolveConstTypes()
	r.resolveFields()
	r.resolveSignatures()
	r.runDeferredChecks()
	r.validate()

	for _, path := range gs.FilePaths() {
		gs.SetDefRefs(path, r.defRefs[path])
	}
	return nil
}

func (r *resolver) errorf(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) *diagnostics.DiagnosticError {
	d := diagnostics.NewError(code, loc, msg, args...)
	r.gs.AddError(d)
	return d
}

func (r *resolver) recordRef(loc token.Loc, id symbols.SymbolID) {
	r.defRefs[loc.File] = append(r.defRefs[loc.File], symbols.ConstResolution{Loc: loc, Symbol: id})
}
