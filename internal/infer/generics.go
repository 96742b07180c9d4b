package infer

import (
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// constraint collects the bounds found for one method type parameter.
type constraint struct {
	lower typesystem.Type
	upper typesystem.Type
}

// solve instantiates the type parameters of a generic method from the
// argument types. Arguments give lower bounds in covariant positions and
// upper bounds in contravariant ones; declared bounds add upper bounds. A
// parameter is solved to its lower bound, else its upper bound, else
// T.untyped. ok is false when some lower bound exceeds its upper bound.
func (c *checker) solve(params []typesystem.TypeParam, bound []boundArg, inst func(typesystem.Type) typesystem.Type) (typesystem.Subst, bool) {
	gs := c.gs
	cons := make(map[typesystem.ParamKey]*constraint, len(params))
	for _, p := range params {
		cons[p.Key()] = &constraint{}
	}

	var collect func(param, arg typesystem.Type, v typesystem.Variance)
	collect = func(param, arg typesystem.Type, v typesystem.Variance) {
		switch p := param.(type) {
		case typesystem.TypeParam:
			k, ok := cons[p.Key()]
			if !ok {
				return
			}
			if v != typesystem.Contravariant {
				k.lower = c.lubOpt(k.lower, arg)
			}
			if v != typesystem.Covariant {
				k.upper = c.glbOpt(k.upper, arg)
			}
		case typesystem.ClassType:
			if len(p.Args) == 0 {
				return
			}
			switch a := arg.(type) {
			case typesystem.Tuple:
				arg = typesystem.TupleUpcast(gs, a)
			case typesystem.Shape:
				arg = typesystem.ShapeUpcast(gs, a)
			}
			ac, ok := arg.(typesystem.ClassType)
			if !ok || !gs.DerivesFrom(ac.Symbol, p.Symbol) {
				return
			}
			args := gs.BaseTypeArgs(ac.Symbol, ac.Args, p.Symbol)
			members := gs.TypeMembers(p.Symbol)
			for i := range p.Args {
				mv := typesystem.Invariant
				if i < len(members) {
					mv = members[i].Variance
				}
				if i < len(args) {
					collect(p.Args[i], args[i], v.Compose(mv))
				}
			}
		case typesystem.Union:
			// T.nilable(U) and friends: the part of the argument not covered
			// by the concrete members constrains the one generic member.
			var generic, concrete []typesystem.Type
			for _, m := range p.Members {
				if c.mentions(m, cons) {
					generic = append(generic, m)
				} else {
					concrete = append(concrete, m)
				}
			}
			if len(generic) != 1 {
				return
			}
			rest := arg
			if len(concrete) > 0 {
				rest = typesystem.Subtract(gs, arg, typesystem.NewUnion(concrete...))
			}
			if !typesystem.IsNoReturn(rest) {
				collect(generic[0], rest, v)
			}
		case typesystem.Tuple:
			if a, ok := arg.(typesystem.Tuple); ok && len(a.Elems) == len(p.Elems) {
				for i := range p.Elems {
					collect(p.Elems[i], a.Elems[i], v)
				}
			}
		}
	}
	for _, b := range bound {
		collect(inst(b.param.Type), b.typ, typesystem.Covariant)
	}

	ok := true
	s := make(typesystem.Subst, len(params))
	for _, p := range params {
		k := cons[p.Key()]
		upper := k.upper
		if declared, resolved := gs.Bounds(p); resolved && declared.Upper != nil {
			upper = c.glbOpt(upper, declared.Upper)
		}
		switch {
		case k.lower != nil:
			if upper != nil && !typesystem.IsSubtype(gs, k.lower, upper) {
				ok = false
				s[p.Key()] = typesystem.Untyped{}
				continue
			}
			s[p.Key()] = k.lower
		case upper != nil:
			s[p.Key()] = upper
		default:
			s[p.Key()] = typesystem.Untyped{}
		}
	}
	return s, ok
}

func (c *checker) mentions(t typesystem.Type, cons map[typesystem.ParamKey]*constraint) bool {
	for _, p := range t.FreeTypeParams() {
		if _, ok := cons[p.Key()]; ok {
			return true
		}
	}
	return false
}

func (c *checker) lubOpt(a, b typesystem.Type) typesystem.Type {
	if a == nil {
		return b
	}
	return typesystem.Lub(c.gs, a, b)
}

func (c *checker) glbOpt(a, b typesystem.Type) typesystem.Type {
	if a == nil {
		return b
	}
	return typesystem.Glb(c.gs, a, b)
}
