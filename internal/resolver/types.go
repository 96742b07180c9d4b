package resolver

import (
	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// typeEnv is where type conversion sends its side effects. The resolver
// mutates the table; body resolution only collects results.
type typeEnv interface {
	report(d *diagnostics.DiagnosticError)
	unresolved(scope symbols.Scope, ref *ast.ConstRef)
	resolved(loc token.Loc, id symbols.SymbolID)
	aliasType(id symbols.SymbolID) typesystem.Type
	checkBounds(c boundCheck)
}

// boundCheck verifies the arguments of a generic application against the
// bounds of the class's type members. The check is deferred until every
// bound is resolved.
type boundCheck struct {
	loc   token.Loc
	class symbols.SymbolID
	args  []typesystem.Type
}

// typeConv converts type syntax written in one scope.
type typeConv struct {
	gs    *symbols.GlobalState
	env   typeEnv
	scope symbols.Scope
	// method owns T.type_parameter references; NoSymbol outside signatures.
	method symbols.SymbolID
}

func (c *typeConv) errorf(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) {
	c.env.report(diagnostics.NewError(code, loc, msg, args...))
}

func (c *typeConv) convert(te ast.TypeExpr) typesystem.Type {
	gs := c.gs
	switch t := te.(type) {
	case *ast.TypeName:
		return c.convertName(t)
	case *ast.TypeNilable:
		return gs.Nilable(c.convert(t.Inner))
	case *ast.TypeAny:
		members := make([]typesystem.Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = c.convert(m)
		}
		return typesystem.LubAll(gs, members...)
	case *ast.TypeAll:
		var out typesystem.Type
		for _, m := range t.Members {
			mt := c.convert(m)
			if out == nil {
				out = mt
			} else {
				out = typesystem.Glb(gs, out, mt)
			}
		}
		if out == nil {
			return typesystem.Untyped{}
		}
		return out
	case *ast.TypeTuple:
		elems := make([]typesystem.Type, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = c.convert(e)
		}
		return typesystem.Tuple{Elems: elems}
	case *ast.TypeShape:
		fields := make([]typesystem.ShapeField, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = typesystem.ShapeField{Key: f.Key, Symbol: f.Symbol, Type: c.convert(f.Type)}
		}
		return typesystem.NewShape(fields)
	case *ast.TypeUntyped:
		return typesystem.Untyped{}
	case *ast.TypeNoReturn:
		return typesystem.NoReturn{}
	case *ast.TypeSelf:
		return typesystem.SelfType{}
	case *ast.TypeParamRef:
		return c.convertParamRef(t)
	case *ast.TypeClassOf:
		id := c.lookup(t.Ref)
		if id == symbols.NoSymbol {
			return typesystem.Untyped{}
		}
		sym := gs.Symbol(id)
		if sym.Kind != symbols.ClassSymbol {
			c.errorf(diagnostics.ErrInvalidTypeDeclaration, t.Loc, "`T.class_of` needs a class or module, got `%s`", gs.FullName(id))
			return typesystem.Untyped{}
		}
		single := gs.LookupSingleton(id)
		if single == symbols.NoSymbol {
			return typesystem.Untyped{}
		}
		return gs.ExternalType(single)
	}
	typesystem.Internalf("unexpected type syntax %T", te)
	return nil
}

func (c *typeConv) lookup(ref *ast.ConstRef) symbols.SymbolID {
	id := LookupConst(c.gs, c.scope, ref)
	if id == symbols.NoSymbol {
		c.env.unresolved(c.scope, ref)
		return id
	}
	c.env.resolved(ref.Loc, id)
	return c.gs.Dealias(id)
}

func (c *typeConv) convertName(t *ast.TypeName) typesystem.Type {
	gs := c.gs
	id := c.lookup(t.Ref)
	if id == symbols.NoSymbol {
		for _, a := range t.Args {
			c.convert(a)
		}
		return typesystem.Untyped{}
	}
	sym := gs.Symbol(id)
	if sym.Kind != symbols.ClassSymbol && len(t.Args) > 0 {
		c.errorf(diagnostics.ErrBadTypeArity, t.Loc, "`%s` is not a generic class", gs.FullName(id))
	}
	switch sym.Kind {
	case symbols.ClassSymbol:
		return c.applyClass(t, id)
	case symbols.TypeAliasSymbol:
		return c.env.aliasType(id)
	case symbols.TypeMemberSymbol:
		return gs.MemberParam(id)
	}
	c.errorf(diagnostics.ErrInvalidTypeDeclaration, t.Loc, "Constant `%s` is not a class or type alias", gs.FullName(id))
	return typesystem.Untyped{}
}

// applyClass builds the instance type for `C` or `C[args]`. Arguments fill
// the non-fixed type members in declaration order.
func (c *typeConv) applyClass(t *ast.TypeName, class symbols.SymbolID) typesystem.Type {
	gs := c.gs
	if len(t.Args) == 0 {
		return gs.ExternalType(class)
	}
	args := make([]typesystem.Type, len(t.Args))
	for i, a := range t.Args {
		args[i] = c.convert(a)
	}
	members := gs.Symbol(class).TypeMembers
	open := 0
	for _, m := range members {
		if !gs.Symbol(m).Has(symbols.FlagFixedMember) {
			open++
		}
	}
	if open != len(args) {
		c.errorf(diagnostics.ErrBadTypeArity, t.Loc,
			"Wrong number of type parameters for `%s`. Expected: `%d`, got: `%d`", gs.FullName(class), open, len(args))
		return gs.ExternalType(class)
	}
	ct := typesystem.ClassType{Symbol: class, Name: gs.FullName(class), Args: make([]typesystem.Type, len(members))}
	next := 0
	for i, m := range members {
		msym := gs.Symbol(m)
		if msym.Has(symbols.FlagFixedMember) {
			ct.Args[i] = msym.Fixed
			if ct.Args[i] == nil {
				ct.Args[i] = typesystem.Untyped{}
			}
			continue
		}
		ct.Args[i] = args[next]
		next++
	}
	c.env.checkBounds(boundCheck{loc: t.Loc, class: class, args: ct.Args})
	return ct
}

func (c *typeConv) convertParamRef(t *ast.TypeParamRef) typesystem.Type {
	gs := c.gs
	if c.method != symbols.NoSymbol {
		for _, ta := range gs.Symbol(c.method).TypeArgs {
			if gs.Symbol(ta).Name == t.Name {
				return gs.MethodTypeParam(ta)
			}
		}
	}
	c.errorf(diagnostics.ErrUnknownTypeParameter, t.Loc, "Unspecified type parameter `%s`", t.Name)
	return typesystem.Untyped{}
}

// checkBound reports arguments outside their member's bounds.
func checkBound(gs *symbols.GlobalState, bc boundCheck) []*diagnostics.DiagnosticError {
	var out []*diagnostics.DiagnosticError
	for i, m := range gs.Symbol(bc.class).TypeMembers {
		if i >= len(bc.args) {
			break
		}
		msym := gs.Symbol(m)
		if msym.Has(symbols.FlagFixedMember) {
			continue
		}
		arg := bc.args[i]
		if up := msym.Bounds.Upper; up != nil && !typesystem.IsSubtype(gs, arg, up) {
			out = append(out, diagnostics.NewError(diagnostics.ErrTypeArgumentBound, bc.loc,
				"`%s` is not a subtype of upper bound of type member `%s`", arg, gs.FullName(m)))
		}
		if lo := msym.Bounds.Lower; lo != nil && !typesystem.IsSubtype(gs, lo, arg) {
			out = append(out, diagnostics.NewError(diagnostics.ErrTypeArgumentBound, bc.loc,
				"`%s` is not a supertype of lower bound of type member `%s`", arg, gs.FullName(m)))
		}
	}
	return out
}

// resolver as a typeEnv: errors go to the table and bound checks wait for
// resolveTypeMembers.

func (r *resolver) report(d *diagnostics.DiagnosticError) { r.gs.AddError(d) }

func (r *resolver) unresolved(scope symbols.Scope, ref *ast.ConstRef) { r.stub(scope, ref) }

func (r *resolver) resolved(loc token.Loc, id symbols.SymbolID) { r.recordRef(loc, id) }

func (r *resolver) checkBounds(c boundCheck) { r.deferred = append(r.deferred, c) }

func (r *resolver) runDeferredChecks() {
	for _, c := range r.deferred {
		for _, d := range checkBound(r.gs, c) {
			r.gs.AddError(d)
		}
	}
	r.deferred = nil
}

func (r *resolver) conv(scope symbols.Scope, method symbols.SymbolID) *typeConv {
	return &typeConv{gs: r.gs, env: r, scope: scope, method: method}
}
