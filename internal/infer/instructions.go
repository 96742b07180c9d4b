package infer

import (
	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/cfg"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// instruction computes the type of a binding's value and what its
// truthiness tells about other locals.
func (c *checker) instruction(env *environment, bind *cfg.Binding) (typesystem.Type, *knowledge) {
	gs := c.gs
	switch ins := bind.Value.(type) {
	case *cfg.Ident:
		return c.typeOf(env, ins.From), c.identKnowledge(env, ins.From)

	case *cfg.Read:
		return c.typeOf(env, ins.Local), nil

	case *cfg.Literal:
		return c.literal(ins.Node), nil

	case *cfg.SelfRef:
		return c.self, nil

	case *cfg.LoadParam:
		return c.paramType(ins.Param), nil

	case *cfg.LoadBlockParam:
		return typesystem.Untyped{}, nil

	case *cfg.ParamDefault:
		want := c.paramType(ins.Param)
		got := c.typeOf(env, ins.Value)
		if !typesystem.IsSubtype(gs, got, want) {
			c.errorf(diagnostics.ErrMethodArgumentMismatch, ins.Param.Default.GetLoc(),
				"Expected `%s` but found `%s` for argument `%s`", want, got, ins.Param.Name)
		}
		return nil, nil

	case *cfg.ConstRead:
		return c.constType(ins.Ref), nil

	case *cfg.FieldRead:
		return c.fieldType(ins.Name, bind), nil

	case *cfg.FieldWrite:
		got := c.typeOf(env, ins.Value)
		want := c.fieldType(ins.Name, bind)
		if !typesystem.IsSubtype(gs, got, want) {
			c.errorf(diagnostics.ErrFieldMismatch, bind.Loc, "Expected `%s` but found `%s` for field", want, got)
		}
		return nil, nil

	case *cfg.Send:
		return c.send(env, bind, ins)

	case *cfg.ArrayLit:
		if len(ins.Elems) == 0 {
			return gs.Array(typesystem.Untyped{}), nil
		}
		elems := make([]typesystem.Type, len(ins.Elems))
		for i, e := range ins.Elems {
			elems[i] = c.typeOf(env, e)
		}
		return typesystem.Tuple{Elems: elems}, nil

	case *cfg.HashLit:
		return c.hashLiteral(env, ins), nil

	case *cfg.Cast:
		return c.cast(env, bind, ins), nil

	case *cfg.Let:
		want := c.typeExpr(ins.Type)
		got := c.typeOf(env, ins.Value)
		if !typesystem.IsSubtype(gs, got, want) {
			c.errorf(diagnostics.ErrCastTypeMismatch, ins.Node.Value.GetLoc(), "Argument does not have asserted type `%s`", want)
		}
		return want, nil

	case *cfg.Absurd:
		got := c.typeOf(env, ins.Value)
		if !typesystem.IsNoReturn(got) && !typesystem.IsUntyped(got) {
			c.errorf(diagnostics.ErrNotExhaustive, bind.Loc,
				"Control flow could reach `T.absurd` because the type `%s` wasn't handled", got)
		}
		return typesystem.NoReturn{}, nil

	case *cfg.RevealType:
		got := c.typeOf(env, ins.Value)
		c.infof(diagnostics.ErrRevealType, bind.Loc, "Revealed type: `%s`", got)
		return got, nil

	case *cfg.Return:
		c.checkReturn(env, ins)
		return typesystem.NoReturn{}, nil

	case *cfg.RescueMatch, *cfg.Unknown:
		return gs.BooleanType(), nil

	case *cfg.ExceptionValue:
		if len(ins.Classes) == 0 {
			return gs.ExternalType(symbols.StandardErrorID), nil
		}
		var t typesystem.Type = typesystem.NoReturn{}
		for _, ref := range ins.Classes {
			id := c.constSymbol(ref)
			if id == symbols.NoSymbol || !gs.Symbol(id).IsClass() {
				return typesystem.Untyped{}, nil
			}
			t = typesystem.Lub(gs, t, gs.ExternalType(id))
		}
		return t, nil
	}
	return typesystem.Untyped{}, nil
}

func (c *checker) literal(n ast.Expr) typesystem.Type {
	gs := c.gs
	switch n.(type) {
	case *ast.IntLit:
		return gs.ExternalType(symbols.IntegerID)
	case *ast.FloatLit:
		return gs.ExternalType(symbols.FloatID)
	case *ast.StringLit:
		return gs.ExternalType(symbols.StringID)
	case *ast.SymbolLit:
		return gs.ExternalType(symbols.SymbolClassID)
	case *ast.TrueLit:
		return gs.TrueType()
	case *ast.FalseLit:
		return gs.FalseType()
	}
	return gs.NilType()
}

// typeExpr returns the resolved form of a type written in the body.
func (c *checker) typeExpr(te ast.TypeExpr) typesystem.Type {
	if te == nil {
		return typesystem.Untyped{}
	}
	if t, ok := c.br.Types[te]; ok && t != nil {
		return t
	}
	return typesystem.Untyped{}
}

// paramType is the declared type of a parameter inside the body.
func (c *checker) paramType(p *ast.Param) typesystem.Type {
	if c.sig == nil {
		return typesystem.Untyped{}
	}
	sp, ok := c.sig.Param(p.Name)
	if !ok || sp.Type == nil {
		return typesystem.Untyped{}
	}
	switch p.Kind {
	case ast.ParamRest:
		return c.gs.Array(sp.Type)
	case ast.ParamKwRest:
		return c.gs.Hash(c.gs.ExternalType(symbols.SymbolClassID), sp.Type)
	}
	return sp.Type
}

func (c *checker) constSymbol(ref *ast.ConstRef) symbols.SymbolID {
	id, ok := c.br.ConstRefs[ref]
	if !ok || id == symbols.NoSymbol {
		return symbols.NoSymbol
	}
	return c.gs.Dealias(id)
}

// constType is the value type of a constant: the singleton class for
// classes, the instance type for enum cases.
func (c *checker) constType(ref *ast.ConstRef) typesystem.Type {
	gs := c.gs
	id := c.constSymbol(ref)
	if id == symbols.NoSymbol {
		return typesystem.Untyped{}
	}
	sym := gs.Symbol(id)
	switch sym.Kind {
	case symbols.ClassSymbol:
		if sym.Has(symbols.FlagEnumCase) {
			return gs.ExternalType(id)
		}
		if single := gs.LookupSingleton(id); single != symbols.NoSymbol {
			return gs.ExternalType(single)
		}
	case symbols.ConstantSymbol:
		if sym.Type != nil {
			return sym.Type
		}
	}
	return typesystem.Untyped{}
}

func (c *checker) fieldType(name string, bind *cfg.Binding) typesystem.Type {
	owner := c.md.Owner
	if owner == symbols.NoSymbol {
		owner = symbols.ObjectID
	}
	id := c.gs.LookupField(owner, name)
	if id == symbols.NoSymbol {
		if c.strict {
			c.errorf(diagnostics.ErrUndeclaredField, bind.Loc, "Use of undeclared variable `%s`", name)
		}
		return typesystem.Untyped{}
	}
	if t := c.gs.Symbol(id).Type; t != nil {
		return t
	}
	return typesystem.Untyped{}
}

// hashLiteral types a hash literal as a shape when every key is a literal
// symbol or string.
func (c *checker) hashLiteral(env *environment, h *cfg.HashLit) typesystem.Type {
	gs := c.gs
	if len(h.Keys) == 0 {
		return gs.Hash(typesystem.Untyped{}, typesystem.Untyped{})
	}
	var fields []typesystem.ShapeField
	shape := true
	for i, k := range h.KeyNodes {
		var f typesystem.ShapeField
		switch k := k.(type) {
		case *ast.SymbolLit:
			f = typesystem.ShapeField{Key: k.Value, Symbol: true}
		case *ast.StringLit:
			f = typesystem.ShapeField{Key: k.Value}
		default:
			shape = false
		}
		if !shape {
			break
		}
		f.Type = c.typeOf(env, h.Values[i])
		replaced := false
		for j := range fields {
			if fields[j].Key == f.Key && fields[j].Symbol == f.Symbol {
				fields[j] = f
				replaced = true
			}
		}
		if !replaced {
			fields = append(fields, f)
		}
	}
	if shape {
		return typesystem.NewShape(fields)
	}
	var keys, values typesystem.Type = typesystem.NoReturn{}, typesystem.NoReturn{}
	for i := range h.Keys {
		keys = typesystem.Lub(gs, keys, c.typeOf(env, h.Keys[i]))
		values = typesystem.Lub(gs, values, c.typeOf(env, h.Values[i]))
	}
	return gs.Hash(keys, values)
}

func (c *checker) cast(env *environment, bind *cfg.Binding, ins *cfg.Cast) typesystem.Type {
	gs := c.gs
	got := c.typeOf(env, ins.Value)
	switch ins.Kind {
	case ast.CastMust:
		if typesystem.IsUntyped(got) {
			return got
		}
		if !typesystem.IsSubtype(gs, gs.NilType(), got) {
			c.errorf(diagnostics.ErrUnnecessaryMust, bind.Loc, "`T.must` called on `%s`, which is never `nil`", got)
		}
		return typesystem.DropNil(gs, got, gs.NilType())
	case ast.CastUnsafe:
		return typesystem.Untyped{}
	case ast.CastAssertType:
		want := c.typeExpr(ins.Type)
		if !typesystem.IsSubtype(gs, got, want) {
			c.errorf(diagnostics.ErrCastTypeMismatch, ins.Node.Value.GetLoc(), "Argument does not have asserted type `%s`", want)
		}
		return want
	}
	return c.typeExpr(ins.Type)
}

func (c *checker) checkReturn(env *environment, ins *cfg.Return) {
	if c.sig == nil || c.sig.Return == nil {
		return
	}
	want := typesystem.ReplaceSelf(c.sig.Return, c.self)
	if typesystem.IsVoid(want) || typesystem.IsUntyped(want) {
		return
	}
	got := c.typeOf(env, ins.Value)
	if !typesystem.IsSubtype(c.gs, got, want) {
		c.errorf(diagnostics.ErrReturnTypeMismatch, ins.ValueLoc,
			"Expected `%s` but found `%s` for method result type", want, got)
	}
}
