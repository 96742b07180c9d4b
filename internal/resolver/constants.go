package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"golang.org/x/sync/errgroup"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// LookupConst resolves a constant reference in a lexical scope: the
// enclosing classes from innermost outward, then the ancestors of the
// innermost class, then the root. It only reads gs.
func LookupConst(gs *symbols.GlobalState, scope symbols.Scope, ref *ast.ConstRef) symbols.SymbolID {
	if ref.Scope != nil {
		owner := LookupConst(gs, scope, ref.Scope)
		if owner == symbols.NoSymbol {
			return symbols.NoSymbol
		}
		owner = gs.Dealias(owner)
		if gs.Symbol(owner).Kind != symbols.ClassSymbol {
			return symbols.NoSymbol
		}
		return findMember(gs, owner, ref.Name)
	}
	if ref.Root {
		return gs.LookupMember(symbols.RootID, ref.Name)
	}
	for _, c := range scope.Nesting {
		if id := gs.LookupMember(c, ref.Name); id != symbols.NoSymbol {
			return id
		}
	}
	start := symbols.ObjectID
	if len(scope.Nesting) > 0 {
		start = scope.Nesting[0]
	}
	if id := findMember(gs, start, ref.Name); id != symbols.NoSymbol {
		return id
	}
	return gs.LookupMember(symbols.RootID, ref.Name)
}

// findMember looks name up in class and its ancestors. Before linearization
// it walks the raw parent edges, most recent include first.
func findMember(gs *symbols.GlobalState, class symbols.SymbolID, name string) symbols.SymbolID {
	if gs.Symbol(class).Has(symbols.FlagLinearized) {
		return gs.FindMemberTransitive(class, name)
	}
	seen := set.New[symbols.SymbolID](8)
	var walk func(id symbols.SymbolID) symbols.SymbolID
	walk = func(id symbols.SymbolID) symbols.SymbolID {
		if id == symbols.NoSymbol || !seen.Insert(id) {
			return symbols.NoSymbol
		}
		sym := gs.Symbol(id)
		if found := sym.Members[name]; found != symbols.NoSymbol {
			return found
		}
		for i := len(sym.Mixins) - 1; i >= 0; i-- {
			if found := walk(sym.Mixins[i]); found != symbols.NoSymbol {
				return found
			}
		}
		return walk(sym.Superclass)
	}
	return walk(class)
}

type itemKind int

const (
	itemParent itemKind = iota
	itemInclude
	itemAlias
)

// constItem is one definition-level constant reference in the fixpoint.
type constItem struct {
	kind   itemKind
	owner  symbols.SymbolID // class, or constant for aliases
	scope  symbols.Scope
	ref    *ast.ConstRef
	result symbols.SymbolID
}

type stubKey struct {
	file  string
	owner symbols.SymbolID
	path  string
}

// resolveConstants runs the fixpoint over superclasses, includes and
// constant aliases. Each iteration looks every pending reference up in
// parallel per file, applies the results in canonical order, then settles
// alias chains whose links became ready. References still pending when the
// fixpoint stops are stubbed; hitting the iteration bound also records an
// internal error.
func (r *resolver) resolveConstants(ctx context.Context) error {
	var pending []*constItem
	aliases := make(map[symbols.SymbolID]*constItem)
	for _, p := range r.res.Parents {
		ref, ok := p.Superclass.(*ast.ConstRef)
		if !ok {
			r.errorf(diagnostics.ErrDynamicSuperclass, p.Superclass.GetLoc(), "Superclasses must only contain constant literals")
			continue
		}
		pending = append(pending, &constItem{kind: itemParent, owner: p.Class, scope: p.Scope, ref: ref})
	}
	for _, inc := range r.res.Includes {
		pending = append(pending, &constItem{kind: itemInclude, owner: inc.Class, scope: inc.Scope, ref: inc.Module})
	}
	for _, c := range r.res.Consts {
		if ref, ok := c.Def.Value.(*ast.ConstRef); ok {
			it := &constItem{kind: itemAlias, owner: c.Const, scope: c.Scope, ref: ref}
			pending = append(pending, it)
			aliases[c.Const] = it
			r.aliasPending[c.Const] = true
		}
	}

	for iter := 0; len(pending) > 0; iter++ {
		if iter >= r.cfg.MaxResolverIterations {
			r.gs.AddInternalError(&typesystem.InternalError{
				Msg: fmt.Sprintf("constant resolution did not converge after %d iterations; %d reference(s) left", iter, len(pending)),
			})
			break
		}
		if err := r.lookupAll(ctx, pending); err != nil {
			return err
		}
		var next []*constItem
		for _, it := range pending {
			if it.result == symbols.NoSymbol {
				next = append(next, it)
				continue
			}
			r.apply(it)
		}
		next = r.settleAliases(next, aliases)
		if len(next) == len(pending) {
			pending = next
			break
		}
		pending = next
	}

	for _, it := range pending {
		r.stub(it.scope, it.ref)
		if it.kind == itemAlias {
			delete(r.aliasPending, it.owner)
			r.gs.Mutable(it.owner).Type = typesystem.Untyped{}
		}
	}
	return nil
}

// settleAliases resolves the alias items of pending whose target is an
// alias that can itself be settled, following the chain depth first. It
// returns the items that are still pending.
func (r *resolver) settleAliases(pending []*constItem, aliases map[symbols.SymbolID]*constItem) []*constItem {
	visiting := make(map[symbols.SymbolID]bool)
	var settle func(it *constItem) bool
	settle = func(it *constItem) bool {
		if !r.aliasPending[it.owner] {
			return true
		}
		if visiting[it.owner] {
			return false
		}
		id := LookupConst(r.gs, it.scope, it.ref)
		if id == symbols.NoSymbol {
			return false
		}
		id = r.gs.Dealias(id)
		if r.aliasPending[id] {
			dep, ok := aliases[id]
			if !ok {
				return false
			}
			visiting[it.owner] = true
			settled := settle(dep)
			delete(visiting, it.owner)
			if !settled {
				return false
			}
			id = r.gs.Dealias(id)
		}
		it.result = id
		r.apply(it)
		return true
	}

	var next []*constItem
	for _, it := range pending {
		if it.kind == itemAlias && settle(it) {
			continue
		}
		next = append(next, it)
	}
	return next
}

// lookupAll fills in the result of every item. Lookups only read the
// symbol table, so files are processed concurrently.
func (r *resolver) lookupAll(ctx context.Context, items []*constItem) error {
	byFile := make(map[string][]*constItem)
	var files []string
	for _, it := range items {
		if _, ok := byFile[it.scope.File]; !ok {
			files = append(files, it.scope.File)
		}
		byFile[it.scope.File] = append(byFile[it.scope.File], it)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, f := range files {
		list := byFile[f]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for _, it := range list {
				it.result = r.lookupReady(it.scope, it.ref)
			}
			return nil
		})
	}
	return g.Wait()
}

// lookupReady is LookupConst that treats constants still waiting for their
// alias target as unresolved.
func (r *resolver) lookupReady(scope symbols.Scope, ref *ast.ConstRef) symbols.SymbolID {
	id := LookupConst(r.gs, scope, ref)
	if id == symbols.NoSymbol {
		return id
	}
	id = r.gs.Dealias(id)
	if r.aliasPending[id] {
		return symbols.NoSymbol
	}
	return id
}

func (r *resolver) apply(it *constItem) {
	r.recordRef(it.ref.Loc, it.result)
	switch it.kind {
	case itemParent:
		r.applyParent(it)
	case itemInclude:
		r.applyInclude(it)
	case itemAlias:
		delete(r.aliasPending, it.owner)
		r.gs.Mutable(it.owner).AliasOf = it.result
	}
}

// stub reports an unresolved reference once per file, lexical owner and
// path; further sites become related locations.
func (r *resolver) stub(scope symbols.Scope, ref *ast.ConstRef) {
	key := stubKey{file: scope.File, owner: scope.Owner(), path: strings.Join(ref.Path(), "::")}
	if d, ok := r.stubs[key]; ok {
		d.WithRelated(ref.Loc)
		return
	}
	r.stubs[key] = r.errorf(diagnostics.ErrStubConstant, ref.Loc, "Unable to resolve constant `%s`", ref)
}
