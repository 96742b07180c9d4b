package infer

import (
	"github.com/funvibe/sigcheck/internal/cfg"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// truthyPart removes nil and false from t.
func (c *checker) truthyPart(t typesystem.Type) typesystem.Type {
	if typesystem.IsUntyped(t) {
		return t
	}
	return typesystem.Subtract(c.gs, typesystem.Subtract(c.gs, t, c.gs.NilType()), c.gs.FalseType())
}

// falsyPart keeps only nil and false of t.
func (c *checker) falsyPart(t typesystem.Type) typesystem.Type {
	if typesystem.IsUntyped(t) {
		return t
	}
	return typesystem.Glb(c.gs, t, typesystem.NewUnion(c.gs.NilType(), c.gs.FalseType()))
}

// narrow refines env for the edge taken when cond is truthy (or falsy).
// An edge whose condition cannot hold is dead.
func (c *checker) narrow(env *environment, cond cfg.LocalID, truthy bool) {
	l := &env.locals[cond]
	t := c.typeOf(env, cond)
	var f facts
	if truthy {
		t = c.truthyPart(t)
		if l.know != nil {
			f = l.know.truthy
		}
	} else {
		t = c.falsyPart(t)
		if l.know != nil {
			f = l.know.falsy
		}
	}
	if typesystem.IsNoReturn(t) {
		env.dead = true
		return
	}
	l.typ = t
	for _, test := range f.yes {
		c.applyTest(env, test, true)
	}
	for _, test := range f.no {
		c.applyTest(env, test, false)
	}
}

func (c *checker) applyTest(env *environment, test typeTest, holds bool) {
	if env.dead {
		return
	}
	cur := c.typeOf(env, test.local)
	var t typesystem.Type
	switch {
	case test.typ == nil && holds:
		t = c.falsyPart(cur)
	case test.typ == nil:
		t = c.truthyPart(cur)
	case holds:
		t = typesystem.Glb(c.gs, cur, test.typ)
	default:
		t = typesystem.Subtract(c.gs, cur, test.typ)
	}
	if typesystem.IsNoReturn(t) {
		env.dead = true
		return
	}
	env.locals[test.local].typ = t
}

// identKnowledge is what copying from tells: its own truthiness plus the
// tests it carries.
func (c *checker) identKnowledge(env *environment, from cfg.LocalID) *knowledge {
	if from == cfg.NoLocal {
		return nil
	}
	return truthiness(from).and(env.locals[from].know)
}

// sendKnowledge recognizes the guards that narrow: nil?, is_a?, kind_of?,
// comparison with nil, `C === x` and negation. Other calls carry nothing.
func (c *checker) sendKnowledge(env *environment, s *cfg.Send, recv typesystem.Type, args []typesystem.Type) *knowledge {
	gs := c.gs
	switch s.Method {
	case config.NilPMethod:
		if len(args) == 0 {
			return isTest(s.Recv, gs.NilType())
		}
	case config.IsAMethod, config.KindOfMethod:
		if len(args) == 1 {
			if class, ok := c.classOf(args[0]); ok {
				return isTest(s.Recv, gs.ExternalType(class))
			}
		}
	case config.EqMethod, config.NeqMethod:
		if len(args) != 1 {
			return nil
		}
		var k *knowledge
		switch {
		case typesystem.Equal(args[0], gs.NilType()):
			k = isTest(s.Recv, gs.NilType())
		case typesystem.Equal(recv, gs.NilType()):
			k = isTest(s.Args[0], gs.NilType())
		}
		if s.Method == config.NeqMethod {
			return k.negate()
		}
		return k
	case config.CaseEqMethod:
		if len(args) != 1 {
			return nil
		}
		if class, ok := c.classOf(recv); ok {
			return isTest(s.Args[0], gs.ExternalType(class))
		}
		if ct, ok := recv.(typesystem.ClassType); ok && gs.Symbol(ct.Symbol).Has(symbols.FlagEnumCase) {
			return isTest(s.Args[0], ct)
		}
	case config.BangMethod:
		if len(args) == 0 {
			return c.identKnowledge(env, s.Recv).negate()
		}
	}
	return nil
}

// classOf returns C for a value of type T.class_of(C).
func (c *checker) classOf(t typesystem.Type) (symbols.SymbolID, bool) {
	ct, ok := t.(typesystem.ClassType)
	if !ok {
		return symbols.NoSymbol, false
	}
	sym := c.gs.Symbol(ct.Symbol)
	if !sym.Has(symbols.FlagSingleton) || sym.Attached == symbols.NoSymbol {
		return symbols.NoSymbol, false
	}
	return sym.Attached, true
}
