package resolver

import (
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
)

func (r *resolver) applyParent(it *constItem) {
	gs := r.gs
	class, target := it.owner, it.result
	tsym := gs.Symbol(target)
	switch {
	case tsym.Kind != symbols.ClassSymbol:
		r.errorf(diagnostics.ErrDynamicSuperclass, it.ref.Loc, "Superclass `%s` is not a class", gs.FullName(target))
		return
	case tsym.IsModule():
		r.errorf(diagnostics.ErrSuperclassIsModule, it.ref.Loc,
			"The super class `%s` of `%s` does not derive from `Class`", gs.FullName(target), gs.FullName(class))
		return
	case gs.DerivesFrom(target, class):
		r.errorf(diagnostics.ErrCircularDependency, it.ref.Loc,
			"Circular dependency: `%s` is a parent of itself", gs.FullName(class))
		return
	}

	sym := gs.Mutable(class)
	if sym.Superclass != symbols.NoSymbol {
		if sym.Superclass != target {
			r.errorf(diagnostics.ErrRedefinitionOfParents, it.ref.Loc,
				"Parent of class `%s` redefined from `%s` to `%s`",
				gs.FullName(class), gs.FullName(sym.Superclass), gs.FullName(target)).
				WithRelated(sym.Loc())
		}
		return
	}
	if tsym.Has(symbols.FlagFinal) {
		r.errorf(diagnostics.ErrSubclassingFinal, it.ref.Loc, "`%s` was declared as final and cannot be inherited by `%s`",
			gs.FullName(target), gs.FullName(class))
	}
	sym.Superclass = target
	r.parentSet[class] = true
}

func (r *resolver) applyInclude(it *constItem) {
	gs := r.gs
	class, target := it.owner, it.result
	tsym := gs.Symbol(target)
	if !tsym.IsModule() {
		r.errorf(diagnostics.ErrIncludesNonModule, it.ref.Loc, "Only modules can be `include`d, but `%s` is a %s",
			gs.FullName(target), kindOf(tsym))
		return
	}
	if gs.DerivesFrom(target, class) {
		r.errorf(diagnostics.ErrCircularDependency, it.ref.Loc,
			"Circular dependency: `%s` and `%s` are declared as parents of each other", gs.FullName(class), gs.FullName(target))
		return
	}
	sym := gs.Mutable(class)
	for _, m := range sym.Mixins {
		if m == target {
			return
		}
	}
	sym.Mixins = append(sym.Mixins, target)
}

func kindOf(sym *symbols.Symbol) string {
	if sym.Kind == symbols.ClassSymbol {
		return "class"
	}
	return sym.Kind.String()
}

// defaultAncestors gives every class without an explicit superclass Object.
func (r *resolver) defaultAncestors() {
	gs := r.gs
	for _, id := range gs.Symbols() {
		sym := gs.Symbol(id)
		if sym.Kind != symbols.ClassSymbol || sym.IsModule() || sym.Has(symbols.FlagSingleton) {
			continue
		}
		if id == symbols.RootID || id == symbols.BasicObjectID || sym.Superclass != symbols.NoSymbol {
			continue
		}
		gs.Mutable(id).Superclass = symbols.ObjectID
	}
}

// linearizeAll creates a singleton class for every class and module and
// computes all linearizations.
func (r *resolver) linearizeAll() {
	gs := r.gs
	var classes []symbols.SymbolID
	for _, id := range gs.Symbols() {
		sym := gs.Symbol(id)
		if sym.Kind == symbols.ClassSymbol && id != symbols.RootID {
			classes = append(classes, id)
		}
	}
	for _, id := range classes {
		if !gs.Symbol(id).Has(symbols.FlagSingleton) {
			gs.SingletonClass(id)
		}
	}
	for _, id := range gs.Symbols() {
		if gs.Symbol(id).Kind == symbols.ClassSymbol && id != symbols.RootID {
			gs.Linearize(id)
		}
	}
}
