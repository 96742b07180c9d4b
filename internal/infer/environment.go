package infer

import (
	"github.com/funvibe/sigcheck/internal/cfg"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// typeTest says that local is (or is not) of type typ. A nil typ stands for
// the falsy values nil and false.
type typeTest struct {
	local cfg.LocalID
	typ   typesystem.Type
}

func (t typeTest) equal(o typeTest) bool {
	return t.local == o.local && typesystem.Equal(t.typ, o.typ)
}

// facts are type tests that hold on one outcome of a condition.
type facts struct {
	yes []typeTest
	no  []typeTest
}

func (f facts) empty() bool { return len(f.yes) == 0 && len(f.no) == 0 }

// knowledge is what a local's truthiness tells about other locals.
type knowledge struct {
	truthy facts
	falsy  facts
}

func (k *knowledge) negate() *knowledge {
	if k == nil {
		return nil
	}
	return &knowledge{truthy: k.falsy, falsy: k.truthy}
}

// and adds the tests of o to both outcomes of k.
func (k *knowledge) and(o *knowledge) *knowledge {
	if o == nil {
		return k
	}
	if k == nil {
		return o
	}
	return &knowledge{
		truthy: facts{yes: concat(k.truthy.yes, o.truthy.yes), no: concat(k.truthy.no, o.truthy.no)},
		falsy:  facts{yes: concat(k.falsy.yes, o.falsy.yes), no: concat(k.falsy.no, o.falsy.no)},
	}
}

func concat(a, b []typeTest) []typeTest {
	out := make([]typeTest, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// isTest builds the knowledge of `local.is_a?(typ)`.
func isTest(local cfg.LocalID, typ typesystem.Type) *knowledge {
	if local == cfg.NoLocal {
		return nil
	}
	t := []typeTest{{local: local, typ: typ}}
	return &knowledge{truthy: facts{yes: t}, falsy: facts{no: t}}
}

// truthiness is the knowledge a local's own value carries.
func truthiness(local cfg.LocalID) *knowledge {
	if local == cfg.NoLocal {
		return nil
	}
	t := []typeTest{{local: local}}
	return &knowledge{truthy: facts{no: t}, falsy: facts{yes: t}}
}

func (k *knowledge) equal(o *knowledge) bool {
	if k == nil || o == nil {
		return k == nil && o == nil
	}
	return k.truthy.equal(o.truthy) && k.falsy.equal(o.falsy)
}

func (f facts) equal(o facts) bool {
	return testsEqual(f.yes, o.yes) && testsEqual(f.no, o.no)
}

func testsEqual(a, b []typeTest) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

// meet keeps the tests both sides agree on.
func (k *knowledge) meet(o *knowledge) *knowledge {
	if k == nil || o == nil {
		return nil
	}
	out := &knowledge{truthy: k.truthy.meet(o.truthy), falsy: k.falsy.meet(o.falsy)}
	if out.truthy.empty() && out.falsy.empty() {
		return nil
	}
	return out
}

func (f facts) meet(o facts) facts {
	return facts{yes: common(f.yes, o.yes), no: common(f.no, o.no)}
}

func common(a, b []typeTest) []typeTest {
	var out []typeTest
	for _, t := range a {
		for _, u := range b {
			if t.equal(u) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// without drops every test about local.
func (k *knowledge) without(local cfg.LocalID) *knowledge {
	if k == nil || !k.mentions(local) {
		return k
	}
	out := &knowledge{
		truthy: facts{yes: dropLocal(k.truthy.yes, local), no: dropLocal(k.truthy.no, local)},
		falsy:  facts{yes: dropLocal(k.falsy.yes, local), no: dropLocal(k.falsy.no, local)},
	}
	if out.truthy.empty() && out.falsy.empty() {
		return nil
	}
	return out
}

func (k *knowledge) mentions(local cfg.LocalID) bool {
	for _, ts := range [][]typeTest{k.truthy.yes, k.truthy.no, k.falsy.yes, k.falsy.no} {
		for _, t := range ts {
			if t.local == local {
				return true
			}
		}
	}
	return false
}

func dropLocal(ts []typeTest, local cfg.LocalID) []typeTest {
	var out []typeTest
	for _, t := range ts {
		if t.local != local {
			out = append(out, t)
		}
	}
	return out
}

// localState is the flow state of one local. A nil typ means the local was
// not assigned on this path, which reads as nil.
type localState struct {
	typ  typesystem.Type
	know *knowledge
	// pin is the type a local must keep inside the loop being checked.
	pin typesystem.Type
	// decl is the type given by T.let.
	decl typesystem.Type
}

// environment is the state at one program point.
type environment struct {
	dead   bool
	locals []localState
}

func newEnvironment(n int) *environment {
	return &environment{locals: make([]localState, n)}
}

func deadEnvironment(n int) *environment {
	env := newEnvironment(n)
	env.dead = true
	return env
}

func (e *environment) clone() *environment {
	cp := &environment{dead: e.dead, locals: make([]localState, len(e.locals))}
	copy(cp.locals, e.locals)
	return cp
}

// forget drops every test mentioning local, after local was reassigned.
func (e *environment) forget(local cfg.LocalID) {
	for i := range e.locals {
		e.locals[i].know = e.locals[i].know.without(local)
	}
}

func (e *environment) equal(o *environment) bool {
	if o == nil || e.dead != o.dead {
		return false
	}
	if e.dead {
		return true
	}
	for i := range e.locals {
		a, b := &e.locals[i], &o.locals[i]
		if !typesystem.Equal(a.typ, b.typ) || !typesystem.Equal(a.pin, b.pin) ||
			!typesystem.Equal(a.decl, b.decl) || !a.know.equal(b.know) {
			return false
		}
	}
	return true
}
