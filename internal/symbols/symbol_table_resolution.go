package symbols

import (
	"github.com/funvibe/sigcheck/internal/typesystem"
)

var _ typesystem.Hierarchy = (*GlobalState)(nil)

// ExternalType is the instance type of a class as seen from outside: every
// non-fixed type member is T.untyped.
func (gs *GlobalState) ExternalType(class SymbolID) typesystem.Type {
	sym := gs.Symbol(class)
	ct := typesystem.ClassType{Symbol: class, Name: gs.FullName(class)}
	if len(sym.TypeMembers) == 0 {
		return ct
	}
	ct.Args = make([]typesystem.Type, len(sym.TypeMembers))
	for i, m := range sym.TypeMembers {
		if fixed := gs.symbols[m].Fixed; fixed != nil {
			ct.Args[i] = fixed
		} else {
			ct.Args[i] = typesystem.Untyped{}
		}
	}
	return ct
}

// SelfTypeOf is the type of `self` inside an instance method of class: the
// class applied to its own type members.
func (gs *GlobalState) SelfTypeOf(class SymbolID) typesystem.Type {
	sym := gs.Symbol(class)
	ct := typesystem.ClassType{Symbol: class, Name: gs.FullName(class)}
	if len(sym.TypeMembers) == 0 {
		return ct
	}
	ct.Args = make([]typesystem.Type, len(sym.TypeMembers))
	for i, m := range sym.TypeMembers {
		msym := gs.symbols[m]
		if msym.Fixed != nil {
			ct.Args[i] = msym.Fixed
		} else {
			ct.Args[i] = gs.member(class, msym.Name)
		}
	}
	return ct
}

// MemberParam returns the type parameter for a type member symbol.
func (gs *GlobalState) MemberParam(member SymbolID) typesystem.TypeParam {
	sym := gs.Symbol(member)
	return gs.member(sym.Owner, sym.Name)
}

// MethodTypeParam returns the type parameter for a method type argument.
func (gs *GlobalState) MethodTypeParam(arg SymbolID) typesystem.TypeParam {
	sym := gs.Symbol(arg)
	return typesystem.TypeParam{Owner: sym.Owner, OwnerName: gs.FullName(sym.Owner), Name: sym.Name}
}

func (gs *GlobalState) DerivesFrom(sub, sup SymbolID) bool {
	if sub == sup {
		return true
	}
	s := gs.Symbol(sub)
	if s.Has(FlagLinearized) {
		for _, a := range s.Linearization {
			if a == sup {
				return true
			}
		}
		return false
	}
	// Before linearization, walk the raw parent edges.
	seen := make(map[SymbolID]bool)
	var walk func(id SymbolID) bool
	walk = func(id SymbolID) bool {
		if id == NoSymbol || seen[id] {
			return false
		}
		if id == sup {
			return true
		}
		seen[id] = true
		sym := gs.Symbol(id)
		for _, m := range sym.Mixins {
			if walk(m) {
				return true
			}
		}
		return walk(sym.Superclass)
	}
	return walk(sub)
}

func (gs *GlobalState) IsModule(id SymbolID) bool { return gs.Symbol(id).IsModule() }

func (gs *GlobalState) TypeMembers(class SymbolID) []typesystem.MemberInfo {
	sym := gs.Symbol(class)
	if len(sym.TypeMembers) == 0 {
		return nil
	}
	out := make([]typesystem.MemberInfo, len(sym.TypeMembers))
	for i, m := range sym.TypeMembers {
		ms := gs.symbols[m]
		out[i] = typesystem.MemberInfo{Name: ms.Name, Variance: ms.Variance, Fixed: ms.Fixed}
	}
	return out
}

// BaseTypeArgs maps the arguments of an instantiation of sub to the type
// members of its ancestor sup. Children redeclare inherited members by
// name, so the mapping is by member name.
func (gs *GlobalState) BaseTypeArgs(sub SymbolID, subArgs []typesystem.Type, sup SymbolID) []typesystem.Type {
	if sub == sup {
		return subArgs
	}
	supSym := gs.Symbol(sup)
	subSym := gs.Symbol(sub)
	out := make([]typesystem.Type, len(supSym.TypeMembers))
	for i, m := range supSym.TypeMembers {
		name := gs.symbols[m].Name
		out[i] = typesystem.Untyped{}
		for j, sm := range subSym.TypeMembers {
			if gs.symbols[sm].Name != name {
				continue
			}
			if fixed := gs.symbols[sm].Fixed; fixed != nil {
				out[i] = fixed
			} else if j < len(subArgs) && subArgs[j] != nil {
				out[i] = subArgs[j]
			}
			break
		}
	}
	return out
}

func (gs *GlobalState) Bounds(p typesystem.TypeParam) (typesystem.Bounds, bool) {
	if p.Owner == NoSymbol || int(p.Owner) >= len(gs.symbols) {
		return typesystem.Bounds{}, true
	}
	owner := gs.symbols[p.Owner]
	var id SymbolID
	if p.Member {
		id = owner.Members[p.Name]
	} else {
		for _, ta := range owner.TypeArgs {
			if gs.symbols[ta].Name == p.Name {
				id = ta
				break
			}
		}
	}
	if id == NoSymbol {
		return typesystem.Bounds{}, true
	}
	sym := gs.symbols[id]
	if !sym.Has(FlagBoundsResolved) {
		return typesystem.Bounds{}, false
	}
	if sym.Fixed != nil {
		return typesystem.Bounds{Upper: sym.Fixed, Lower: sym.Fixed}, true
	}
	return sym.Bounds, true
}

func (gs *GlobalState) EnumCases(class SymbolID) []typesystem.Type {
	sym := gs.Symbol(class)
	if len(sym.EnumCases) == 0 {
		return nil
	}
	out := make([]typesystem.Type, len(sym.EnumCases))
	for i, c := range sym.EnumCases {
		out[i] = gs.ExternalType(c)
	}
	return out
}

func (gs *GlobalState) Array(elem typesystem.Type) typesystem.Type {
	return typesystem.ClassType{Symbol: ArrayID, Name: "Array", Args: []typesystem.Type{elem}}
}

func (gs *GlobalState) Hash(key, value typesystem.Type) typesystem.Type {
	return typesystem.ClassType{Symbol: HashID, Name: "Hash", Args: []typesystem.Type{key, value}}
}

func (gs *GlobalState) KeyType(symbol bool) typesystem.Type {
	if symbol {
		return gs.ExternalType(SymbolClassID)
	}
	return gs.ExternalType(StringID)
}

// Type shorthands used throughout inference.
func (gs *GlobalState) NilType() typesystem.Type   { return gs.ExternalType(NilClassID) }
func (gs *GlobalState) TrueType() typesystem.Type  { return gs.ExternalType(TrueClassID) }
func (gs *GlobalState) FalseType() typesystem.Type { return gs.ExternalType(FalseClassID) }
func (gs *GlobalState) BooleanType() typesystem.Type {
	return typesystem.NewUnion(gs.TrueType(), gs.FalseType())
}

// Nilable returns T.nilable(t).
func (gs *GlobalState) Nilable(t typesystem.Type) typesystem.Type {
	return typesystem.NewUnion(t, gs.NilType())
}

// --- lookup ---

// LookupMethod finds name along the linearization of class. Results are
// cached per generation once the state is frozen.
func (gs *GlobalState) LookupMethod(class SymbolID, name string) SymbolID {
	key := methodKey{class: class, name: name}
	if gs.frozen || gs.sharedArena {
		if v, ok := gs.lookupCache.Load(key); ok {
			return v.(SymbolID)
		}
	}
	found := NoSymbol
	for _, anc := range gs.ancestorsOf(class) {
		if id := gs.symbols[anc].Methods[name]; id != NoSymbol {
			found = id
			break
		}
	}
	if gs.frozen || gs.sharedArena {
		gs.lookupCache.Store(key, found)
	}
	return found
}

// LookupSuperMethod finds name in the ancestors strictly after class.
func (gs *GlobalState) LookupSuperMethod(class SymbolID, name string) SymbolID {
	for _, anc := range gs.ancestorsOf(class)[1:] {
		if id := gs.symbols[anc].Methods[name]; id != NoSymbol {
			return id
		}
	}
	return NoSymbol
}

// FindMemberTransitive looks a constant up in class and its ancestors.
func (gs *GlobalState) FindMemberTransitive(class SymbolID, name string) SymbolID {
	for _, anc := range gs.ancestorsOf(class) {
		if id := gs.symbols[anc].Members[name]; id != NoSymbol {
			return id
		}
	}
	return NoSymbol
}

// LookupField finds an instance variable declared on class or an ancestor.
func (gs *GlobalState) LookupField(class SymbolID, name string) SymbolID {
	for _, anc := range gs.ancestorsOf(class) {
		if id := gs.symbols[anc].Fields[name]; id != NoSymbol {
			return id
		}
	}
	return NoSymbol
}

func (gs *GlobalState) ancestorsOf(class SymbolID) []SymbolID {
	sym := gs.Symbol(class)
	if sym.Has(FlagLinearized) {
		return sym.Linearization
	}
	return []SymbolID{class}
}

// Dealias follows constant aliases to their target.
func (gs *GlobalState) Dealias(id SymbolID) SymbolID {
	for i := 0; id != NoSymbol && i < 32; i++ {
		sym := gs.Symbol(id)
		if sym.Kind != ConstantSymbol || sym.AliasOf == NoSymbol {
			return id
		}
		id = sym.AliasOf
	}
	return id
}
