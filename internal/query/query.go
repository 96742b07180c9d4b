// Package query answers position and symbol questions against a frozen
// global state: the type at a position, the symbol under a cursor, and the
// definition and reference sites of a symbol.
package query

import (
	"slices"
	"sort"

	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
)

// HitKind says how a position relates to the symbol found there.
type HitKind int

const (
	HitDefinition HitKind = iota
	HitConstant
	HitCall
)

func (k HitKind) String() string {
	switch k {
	case HitDefinition:
		return "definition"
	case HitConstant:
		return "constant"
	case HitCall:
		return "call"
	}
	return "unknown"
}

// Hit is a symbol found at a position.
type Hit struct {
	Symbol symbols.SymbolID
	Loc    token.Loc
	Kind   HitKind
}

// TypeAt returns the printed type of the innermost typed expression that
// contains pos.
func TypeAt(gs *symbols.GlobalState, file string, pos token.Pos) (string, token.Loc, bool) {
	fs := gs.File(file)
	if fs == nil || fs.Body == nil {
		return "", token.Loc{}, false
	}
	best := -1
	for i, tl := range fs.Body.Typed {
		if !tl.Loc.Contains(pos) {
			continue
		}
		if best < 0 || tl.Loc.Span() < fs.Body.Typed[best].Loc.Span() {
			best = i
		}
	}
	if best < 0 {
		return "", token.Loc{}, false
	}
	tl := fs.Body.Typed[best]
	return tl.Type.String(), tl.Loc, true
}

// SymbolAt returns the innermost constant reference, call or definition
// under pos.
func SymbolAt(gs *symbols.GlobalState, file string, pos token.Pos) (Hit, bool) {
	var best Hit
	found := false
	consider := func(h Hit) {
		if h.Symbol == symbols.NoSymbol || h.Loc.File != file || !h.Loc.Contains(pos) {
			return
		}
		if !found || h.Loc.Span() < best.Loc.Span() {
			best, found = h, true
		}
	}
	if fs := gs.File(file); fs != nil {
		for _, r := range fs.DefRefs {
			consider(Hit{Symbol: r.Symbol, Loc: r.Loc, Kind: HitConstant})
		}
		if fs.Body != nil {
			for _, r := range fs.Body.Refs {
				consider(Hit{Symbol: r.Symbol, Loc: r.Loc, Kind: HitConstant})
			}
			for _, c := range fs.Body.Calls {
				consider(Hit{Symbol: c.Method, Loc: c.Loc, Kind: HitCall})
			}
		}
	}
	if !found {
		for _, id := range gs.Symbols() {
			for _, loc := range gs.Symbol(id).Locs {
				consider(Hit{Symbol: id, Loc: loc, Kind: HitDefinition})
			}
		}
	}
	return best, found
}

// Definition returns the definition sites of id in source order.
func Definition(gs *symbols.GlobalState, id symbols.SymbolID) []token.Loc {
	if id == symbols.NoSymbol {
		return nil
	}
	return sortLocs(set.From(gs.Symbol(id).Locs))
}

// References returns every definition site of id plus every resolved
// reference to it: constants in definitions and bodies, and call sites.
func References(gs *symbols.GlobalState, id symbols.SymbolID) []token.Loc {
	if id == symbols.NoSymbol {
		return nil
	}
	locs := set.From(gs.Symbol(id).Locs)
	locs.InsertSlice(gs.DefinitionReferences(id))
	for _, p := range gs.FilePaths() {
		fs := gs.File(p)
		for _, r := range fs.DefRefs {
			if r.Symbol == id {
				locs.Insert(r.Loc)
			}
		}
		if fs.Body == nil {
			continue
		}
		for _, r := range fs.Body.Refs {
			if r.Symbol == id {
				locs.Insert(r.Loc)
			}
		}
		for _, c := range fs.Body.Calls {
			if c.Method == id {
				locs.Insert(c.Loc)
			}
		}
	}
	return sortLocs(locs)
}

// Hover describes what is under pos: the symbol with its signature, or the
// type of the expression.
func Hover(gs *symbols.GlobalState, file string, pos token.Pos) (string, bool) {
	if h, ok := SymbolAt(gs, file, pos); ok {
		return gs.Show(h.Symbol), true
	}
	if t, _, ok := TypeAt(gs, file, pos); ok {
		return t, true
	}
	return "", false
}

func sortLocs(s *set.Set[token.Loc]) []token.Loc {
	out := slices.DeleteFunc(s.Slice(), func(l token.Loc) bool { return !l.IsValid() })
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
