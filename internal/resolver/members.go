package resolver

import (
	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// resolveTypeMembers resolves declared bounds, then makes every class agree
// with the type members of its ancestors.
func (r *resolver) resolveTypeMembers() {
	gs := r.gs
	for _, pm := range r.res.Members {
		sym := gs.Mutable(pm.Member)
		owner := gs.Symbol(sym.Owner)
		if !owner.IsModule() && sym.Variance != typesystem.Invariant {
			r.errorf(diagnostics.ErrVariantTypeMemberInClass, pm.Def.Loc,
				"Classes can only have invariant type members")
			sym.Variance = typesystem.Invariant
		}
		c := r.conv(pm.Scope, symbols.NoSymbol)
		if pm.Def.Fixed != nil {
			sym.Fixed = c.convert(pm.Def.Fixed)
		}
		if pm.Def.Upper != nil {
			sym.Bounds.Upper = c.convert(pm.Def.Upper)
		}
		if pm.Def.Lower != nil {
			sym.Bounds.Lower = c.convert(pm.Def.Lower)
		}
	}
	for _, pm := range r.res.Members {
		r.breakMemberCycle(pm.Member, pm.Def)
	}
	for _, pm := range r.res.Members {
		gs.Mutable(pm.Member).Flags |= symbols.FlagBoundsResolved
	}
	for _, pm := range r.res.Members {
		sym := gs.Symbol(pm.Member)
		b := sym.Bounds
		if b.Upper != nil && b.Lower != nil && !typesystem.IsSubtype(gs, b.Lower, b.Upper) {
			r.errorf(diagnostics.ErrInvalidTypeMemberBounds, pm.Def.Loc,
				"`%s` is not a subtype of `%s`", b.Lower, b.Upper)
		}
	}
	r.inheritTypeMembers()
}

// breakMemberCycle clears the bound of a member whose upper bound or fixed
// type leads back to itself through other members.
func (r *resolver) breakMemberCycle(member symbols.SymbolID, def *ast.TypeMemberDef) {
	gs := r.gs
	seen := map[symbols.SymbolID]bool{member: true}
	cur := member
	for {
		sym := gs.Symbol(cur)
		next := sym.Fixed
		if next == nil {
			next = sym.Bounds.Upper
		}
		p, ok := next.(typesystem.TypeParam)
		if !ok || !p.Member {
			return
		}
		id := gs.LookupMember(p.Owner, p.Name)
		if id == symbols.NoSymbol {
			return
		}
		if id == member {
			r.errorf(diagnostics.ErrTypeMemberCycle, def.Loc, "Type member `%s` is bounded by itself", gs.FullName(member))
			m := gs.Mutable(member)
			m.Bounds.Upper = nil
			if m.Fixed != nil {
				m.Fixed = typesystem.Untyped{}
			}
			return
		}
		if seen[id] {
			return
		}
		seen[id] = true
		cur = id
	}
}

// inheritTypeMembers requires each class to redeclare the type members of
// its ancestors with the same variance. Missing ones are declared as fixed
// to T.untyped.
func (r *resolver) inheritTypeMembers() {
	gs := r.gs
	for _, id := range gs.Symbols() {
		sym := gs.Symbol(id)
		if sym.Kind != symbols.ClassSymbol || sym.Has(symbols.FlagSingleton) || id == symbols.RootID {
			continue
		}
		for _, anc := range sym.Linearization[1:] {
			for _, pm := range gs.Symbol(anc).TypeMembers {
				r.checkInheritedMember(id, anc, pm)
			}
		}
	}
}

func (r *resolver) checkInheritedMember(class, parent, parentMember symbols.SymbolID) {
	gs := r.gs
	psym := gs.Symbol(parentMember)
	own := gs.LookupMember(class, psym.Name)
	if own == symbols.NoSymbol {
		r.errorf(diagnostics.ErrParentTypeNotDeclared, gs.Symbol(class).Loc(),
			"Type `%s` declared by parent `%s` must be re-declared in `%s`",
			psym.Name, gs.FullName(parent), gs.FullName(class))
		id, _ := gs.EnterMember(class, psym.Name, symbols.TypeMemberSymbol)
		sym := gs.Mutable(id)
		sym.Fixed = typesystem.Untyped{}
		sym.Variance = psym.Variance
		sym.Flags |= symbols.FlagFixedMember | symbols.FlagBoundsResolved
		sym.AddLoc(gs.Symbol(class).Loc())
		return
	}
	osym := gs.Symbol(own)
	if osym.Kind != symbols.TypeMemberSymbol {
		return
	}
	if osym.Fixed == nil && osym.Variance != psym.Variance {
		r.errorf(diagnostics.ErrParentVarianceMismatch, osym.Loc(),
			"Type variance mismatch for `%s` with parent `%s`. Child `%s` should be `%s`, but it is `%s`",
			psym.Name, gs.FullName(parent), gs.FullName(class), psym.Variance, osym.Variance)
	}
}

// resolveAliases resolves every type alias. Aliases used by earlier steps
// are already done.
func (r *resolver) resolveAliases() {
	for _, pa := range r.res.Aliases {
		r.aliasType(pa.Alias)
	}
}

// aliasType resolves an alias on first use.
func (r *resolver) aliasType(id symbols.SymbolID) typesystem.Type {
	gs := r.gs
	sym := gs.Symbol(id)
	switch r.aliasState[id] {
	case visited:
		return sym.Type
	case visiting:
		r.errorf(diagnostics.ErrRecursiveTypeAlias, sym.Loc(), "Type alias `%s` expands to itself", gs.FullName(id))
		gs.Mutable(id).Type = typesystem.Untyped{}
		r.aliasState[id] = visited
		return typesystem.Untyped{}
	}
	pa, ok := r.aliasDefs[id]
	if !ok {
		if sym.Type == nil {
			return typesystem.Untyped{}
		}
		return sym.Type
	}
	r.aliasState[id] = visiting
	t := r.conv(pa.Scope, symbols.NoSymbol).convert(pa.Def.Type)
	if r.aliasState[id] == visited {
		// Reported as recursive while expanding.
		return gs.Symbol(id).Type
	}
	gs.Mutable(id).Type = t
	r.aliasState[id] = visited
	return t
}

// resolveConstTypes gives each non-alias constant the type of its value:
// a literal's class, a T.let or T.cast type, or T.untyped.
func (r *resolver) resolveConstTypes() {
	gs := r.gs
	for _, pc := range r.res.Consts {
		if _, ok := pc.Def.Value.(*ast.ConstRef); ok {
			continue
		}
		gs.Mutable(pc.Const).Type = r.valueType(pc.Scope, pc.Def.Value)
	}
}

func (r *resolver) valueType(scope symbols.Scope, value ast.Expr) typesystem.Type {
	gs := r.gs
	switch v := value.(type) {
	case *ast.IntLit:
		return gs.ExternalType(symbols.IntegerID)
	case *ast.FloatLit:
		return gs.ExternalType(symbols.FloatID)
	case *ast.StringLit:
		return gs.ExternalType(symbols.StringID)
	case *ast.SymbolLit:
		return gs.ExternalType(symbols.SymbolClassID)
	case *ast.NilLit:
		return gs.NilType()
	case *ast.TrueLit:
		return gs.TrueType()
	case *ast.FalseLit:
		return gs.FalseType()
	case *ast.Let:
		return r.conv(scope, symbols.NoSymbol).convert(v.Type)
	case *ast.Cast:
		if v.Type != nil {
			return r.conv(scope, symbols.NoSymbol).convert(v.Type)
		}
	}
	return typesystem.Untyped{}
}

// resolveFields types every declared field. Declarations of one field must
// agree.
func (r *resolver) resolveFields() {
	gs := r.gs
	for _, pf := range r.res.Fields {
		let, ok := pf.Def.Value.(*ast.Let)
		if !ok {
			continue
		}
		t := r.conv(pf.Scope, symbols.NoSymbol).convert(let.Type)
		sym := gs.Mutable(pf.Field)
		if sym.Type != nil && !typesystem.Equal(sym.Type, t) {
			r.errorf(diagnostics.ErrFieldRedeclared, pf.Def.Target.GetLoc(),
				"Field `%s` redeclared with type `%s`, previously `%s`", sym.Name, t, sym.Type).
				WithRelated(sym.Loc())
			continue
		}
		sym.Type = t
	}
}
