package symbols

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/funvibe/sigcheck/internal/typesystem"
)

// Linearize computes the method resolution order of class and of every
// ancestor that is not linearized yet. The order is self, then mixins with
// the most recently included first, then the superclass linearization.
// Parent edges must be acyclic; the resolver rejects cycles before this runs.
func (gs *GlobalState) Linearize(class SymbolID) []SymbolID {
	return gs.linearize(class, set.New[SymbolID](4))
}

func (gs *GlobalState) linearize(class SymbolID, inProgress *set.Set[SymbolID]) []SymbolID {
	sym := gs.Mutable(class)
	if sym.Has(FlagLinearized) {
		return sym.Linearization
	}
	if !inProgress.Insert(class) {
		typesystem.Internalf("ancestor cycle through %s", gs.FullName(class))
	}
	if sym.Has(FlagSingleton) {
		gs.linearizeSingleton(sym, inProgress)
		inProgress.Remove(class)
		return sym.Linearization
	}

	var mixins []SymbolID
	for _, m := range sym.Mixins {
		if m == sym.Superclass {
			continue
		}
		mlin := gs.linearize(m, inProgress)
		pos := gs.addMixin(&mixins, m, sym.Superclass, 0)
		for _, inner := range mlin[1:] {
			pos = gs.addMixin(&mixins, inner, sym.Superclass, pos)
		}
	}

	lin := make([]SymbolID, 0, 1+len(mixins)+4)
	lin = append(lin, class)
	lin = append(lin, mixins...)
	if sym.Superclass != NoSymbol {
		lin = append(lin, gs.linearize(sym.Superclass, inProgress)...)
	}
	sym.Linearization = lin
	sym.Flags |= FlagLinearized
	inProgress.Remove(class)
	return lin
}

// addMixin inserts mixin at pos unless the superclass already has it or it
// is already present. It returns the position for the next insertion.
func (gs *GlobalState) addMixin(list *[]SymbolID, mixin, super SymbolID, pos int) int {
	if super != NoSymbol && gs.DerivesFrom(super, mixin) {
		return pos
	}
	for i, m := range *list {
		if m == mixin {
			if i >= pos {
				return i + 1
			}
			return pos
		}
	}
	l := append(*list, NoSymbol)
	copy(l[pos+1:], l[pos:])
	l[pos] = mixin
	*list = l
	return pos + 1
}

// linearizeSingleton orders S(C), S(C's superclass)..., then Class and its
// ancestors. Module singletons go straight to Module.
func (gs *GlobalState) linearizeSingleton(sym *Symbol, inProgress *set.Set[SymbolID]) {
	attached := gs.Symbol(sym.Attached)
	lin := []SymbolID{sym.ID}
	tail := ClassID
	if attached.IsModule() {
		tail = ModuleID
	} else if attached.Superclass != NoSymbol {
		superSingleton := gs.SingletonClass(attached.Superclass)
		lin = append(lin, gs.linearize(superSingleton, inProgress)...)
		tail = NoSymbol
	}
	if tail != NoSymbol {
		lin = append(lin, gs.linearize(tail, inProgress)...)
	}
	sym.Linearization = lin
	sym.Flags |= FlagLinearized
}

// ResetLinearization clears computed orders so they can be recomputed after
// parent edges changed.
func (gs *GlobalState) ResetLinearization() {
	gs.mustOwnArena("reset linearization")
	for _, s := range gs.symbols[1:] {
		if s.Kind == ClassSymbol {
			s.Linearization = nil
			s.Flags &^= FlagLinearized
		}
	}
}
