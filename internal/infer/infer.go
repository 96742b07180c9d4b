// Package infer type checks method bodies. Each body is lowered to a CFG and
// run through a forward dataflow fixpoint; diagnostics are produced by one
// final pass over the converged block states, so each is reported once.
package infer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/cfg"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/resolver"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

type job struct {
	file string
	md   symbols.MethodDef
}

// methodResult is the output of checking one method.
type methodResult struct {
	diags    []*diagnostics.DiagnosticError
	typed    []symbols.TypedLoc
	calls    []symbols.CallSite
	internal error
}

// Run resolves the bodies of the given files and checks every method in
// files typed `true` or stricter, with up to conf.Workers goroutines. gs is
// only read. The caller stores the results with SetBodyResults.
func Run(ctx context.Context, gs *symbols.GlobalState, paths []string, conf *config.Config) (map[string]*symbols.BodyResults, error) {
	results := make(map[string]*symbols.BodyResults, len(paths))
	var jobs []job
	for _, p := range paths {
		results[p] = resolver.ResolveBodies(gs, p)
		fs := gs.File(p)
		if fs == nil || fs.Sigil < ast.SigilTrue {
			continue
		}
		for _, md := range fs.Methods {
			jobs = append(jobs, job{file: p, md: md})
		}
	}

	out := make([]*methodResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conf.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = checkMethod(gs, results[j.file], j.md, conf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}

	for i, j := range jobs {
		br := results[j.file]
		r := out[i]
		if r.internal != nil {
			br.InternalErrors = append(br.InternalErrors, r.internal)
			continue
		}
		br.Diagnostics = append(br.Diagnostics, r.diags...)
		br.Typed = append(br.Typed, r.typed...)
		br.Calls = append(br.Calls, r.calls...)
	}
	return results, nil
}

// checkMethod checks one method body against the resolved bodies of its
// file. A broken invariant while checking is returned as the result's
// internal error and the method's diagnostics are dropped.
func checkMethod(gs *symbols.GlobalState, br *symbols.BodyResults, md symbols.MethodDef, conf *config.Config) (res *methodResult) {
	name := md.Def.Name
	if md.Method != symbols.NoSymbol {
		name = gs.FullName(md.Method)
	}
	defer func() {
		if r := recover(); r != nil {
			ie, ok := typesystem.AsInternalError(r)
			if !ok {
				ie = &typesystem.InternalError{Msg: fmt.Sprint(r)}
			}
			res = &methodResult{internal: fmt.Errorf("checking %s: %w", name, ie)}
		}
	}()

	c := newChecker(gs, br, md, conf)
	c.name = name
	c.check()
	return &methodResult{diags: c.diags, typed: c.typed, calls: c.calls}
}

// checker holds the state of checking one method.
type checker struct {
	gs     *symbols.GlobalState
	br     *symbols.BodyResults
	md     symbols.MethodDef
	conf   *config.Config
	g      *cfg.CFG
	name   string
	strict bool

	self typesystem.Type
	// sig is the signature the body is checked against, nil without one.
	sig *symbols.Signature

	outs    []*environment
	raising []*environment
	ins     []*environment
	growth  map[growthKey]int
	widened map[growthKey]bool

	// report is set for the final pass that emits diagnostics.
	report       bool
	deadReported []bool

	diags []*diagnostics.DiagnosticError
	typed []symbols.TypedLoc
	calls []symbols.CallSite
}

type growthKey struct {
	block int
	local cfg.LocalID
}

func newChecker(gs *symbols.GlobalState, br *symbols.BodyResults, md symbols.MethodDef, conf *config.Config) *checker {
	c := &checker{
		gs:      gs,
		br:      br,
		md:      md,
		conf:    conf,
		growth:  make(map[growthKey]int),
		widened: make(map[growthKey]bool),
	}
	if fs := gs.File(md.Scope.File); fs != nil {
		c.strict = fs.Sigil >= ast.SigilStrict
	}
	owner := md.Owner
	if owner == symbols.NoSymbol {
		owner = symbols.ObjectID
	}
	if gs.Symbol(owner).Has(symbols.FlagSingleton) {
		c.self = gs.ExternalType(owner)
	} else {
		c.self = gs.SelfTypeOf(owner)
	}
	if md.Method != symbols.NoSymbol {
		if sigs := gs.Symbol(md.Method).Sigs; len(sigs) > 0 {
			c.sig = sigs[0]
		}
	}
	return c
}

func (c *checker) errorf(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) *diagnostics.DiagnosticError {
	if !c.report {
		return nil
	}
	d := diagnostics.NewError(code, loc, msg, args...)
	c.diags = append(c.diags, d)
	return d
}

func (c *checker) infof(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) {
	if c.report {
		c.diags = append(c.diags, diagnostics.NewInfo(code, loc, msg, args...))
	}
}

func (c *checker) check() {
	def := c.md.Def
	if c.strict && c.sig == nil && c.md.Method != symbols.NoSymbol {
		c.diags = append(c.diags, diagnostics.NewError(diagnostics.ErrMissingSignature, def.NameLoc, "This function does not have a `sig`"))
	}
	if c.md.Method != symbols.NoSymbol && c.gs.Symbol(c.md.Method).Has(symbols.FlagMethodAbstract) {
		return
	}

	c.g = cfg.Build(def)
	n := len(c.g.Blocks)
	c.outs = make([]*environment, n)
	c.raising = make([]*environment, n)
	c.ins = make([]*environment, n)
	c.deadReported = make([]bool, n)
	c.diags = append(c.diags, c.g.Errors...)

	c.fixpoint()

	c.report = true
	for _, b := range c.g.ReversePostorder() {
		c.transfer(b, c.entryState(b))
	}
}

// fixpoint iterates block states in reverse postorder until nothing
// changes. Exceeding the visit budget is a checker bug.
func (c *checker) fixpoint() {
	order := c.g.ReversePostorder()
	pending := make([]bool, len(c.g.Blocks))
	pending[c.g.Entry.ID] = true
	budget := len(c.g.Blocks) * c.conf.MaxBlockVisits

	for visits := 0; ; visits++ {
		var b *cfg.BasicBlock
		for _, cand := range order {
			if pending[cand.ID] {
				b = cand
				break
			}
		}
		if b == nil {
			return
		}
		if visits >= budget {
			typesystem.Internalf("inference of %s did not converge after %d block visits", c.name, visits)
		}
		pending[b.ID] = false

		in := c.entryState(b)
		c.ins[b.ID] = in.clone()
		out, raise := c.transfer(b, in)
		changed := !out.equal(c.outs[b.ID])
		if raise != nil && !raise.equal(c.raising[b.ID]) {
			changed = true
		}
		if changed {
			c.outs[b.ID] = out
			c.raising[b.ID] = raise
			for _, s := range b.Succs() {
				pending[s.ID] = true
			}
		}
	}
}

// typeOf reads a local. Unassigned locals are nil; NoLocal is self.
func (c *checker) typeOf(env *environment, id cfg.LocalID) typesystem.Type {
	if id == cfg.NoLocal {
		return c.self
	}
	if t := env.locals[id].typ; t != nil {
		return t
	}
	return c.gs.NilType()
}

func (c *checker) orNil(t typesystem.Type) typesystem.Type {
	if t == nil {
		return c.gs.NilType()
	}
	return t
}

// merge joins b into a, which the caller owns.
func (c *checker) merge(a, b *environment) *environment {
	if a == nil {
		return b
	}
	for i := range a.locals {
		x, y := &a.locals[i], &b.locals[i]
		if x.typ != nil || y.typ != nil {
			x.typ = typesystem.Lub(c.gs, c.orNil(x.typ), c.orNil(y.typ))
		}
		x.know = x.know.meet(y.know)
		switch {
		case x.pin == nil:
			x.pin = y.pin
		case y.pin != nil:
			x.pin = typesystem.Lub(c.gs, x.pin, y.pin)
		}
		if x.decl == nil {
			x.decl = y.decl
		}
	}
	return a
}

// edge is the state flowing from p into b, narrowed by p's condition.
func (c *checker) edge(p, b *cfg.BasicBlock) *environment {
	out := c.outs[p.ID]
	if p.Exit.Kind == cfg.ExitMayRaise && b == p.Exit.Else && b != p.Exit.Then {
		out = c.raising[p.ID]
	}
	if out == nil {
		return nil
	}
	env := out.clone()
	if env.dead {
		return env
	}
	if p.Exit.Kind == cfg.ExitBranch && p.Exit.Then != p.Exit.Else {
		c.narrow(env, p.Exit.Cond, b == p.Exit.Then)
	}
	return env
}

func (c *checker) entryState(b *cfg.BasicBlock) *environment {
	n := len(c.g.Locals)
	if b == c.g.Entry {
		return newEnvironment(n)
	}
	var env *environment
	for _, p := range b.Preds {
		if e := c.edge(p, b); e != nil && !e.dead {
			env = c.merge(env, e)
		}
	}
	if env == nil {
		return deadEnvironment(n)
	}
	if b.OuterLoops == 0 {
		for i := range env.locals {
			env.locals[i].pin = nil
		}
	}
	if b.LoopHeader {
		c.enterLoop(b, env)
	}
	return env
}

// enterLoop pins every user variable that lives across the loop to the type
// it has when the loop is entered; variables local to the loop start
// unpinned on each iteration. Unpinned locals that keep growing are widened
// to T.untyped.
func (c *checker) enterLoop(b *cfg.BasicBlock, env *environment) {
	depth := b.OuterLoops
	var outside *environment
	for _, p := range b.Preds {
		if p.OuterLoops >= depth {
			continue
		}
		if e := c.edge(p, b); e != nil && !e.dead {
			outside = c.merge(outside, e)
		}
	}
	prev := c.ins[b.ID]
	for i := range env.locals {
		l := &env.locals[i]
		local := c.g.Local(cfg.LocalID(i))
		if local.User && l.decl == nil {
			if local.MinLoops >= depth {
				l.pin = nil
			} else if l.pin == nil && outside != nil && outside.locals[i].typ != nil {
				l.pin = outside.locals[i].typ
			}
		}
		if l.pin != nil || l.decl != nil {
			continue
		}
		key := growthKey{block: b.ID, local: cfg.LocalID(i)}
		if c.widened[key] {
			l.typ = typesystem.Untyped{}
			continue
		}
		if c.report || prev == nil || prev.dead || l.typ == nil || prev.locals[i].typ == nil {
			continue
		}
		if !typesystem.IsSubtype(c.gs, l.typ, prev.locals[i].typ) {
			c.growth[key]++
			if c.growth[key] >= c.conf.LoopWideningVisits {
				c.widened[key] = true
				l.typ = typesystem.Untyped{}
			}
		}
	}
}

// transfer runs the bindings of b over env. It returns the state at the end
// of the block and, for blocks ending in a call that may raise, the state
// the rescue handler sees.
func (c *checker) transfer(b *cfg.BasicBlock, env *environment) (out, raise *environment) {
	if env.dead {
		if c.report {
			c.reportDeadBlock(b)
		}
		if b.Exit.Kind == cfg.ExitMayRaise {
			raise = env
		}
		return env, raise
	}
	last := -1
	if b.Exit.Kind == cfg.ExitMayRaise {
		last = len(b.Bindings) - 1
		if last < 0 {
			raise = env.clone()
		}
	}
	for i := range b.Bindings {
		bind := &b.Bindings[i]
		if i == last {
			raise = env.clone()
		}
		if env.dead {
			if c.report && !bind.Synthetic && !c.deadReported[b.ID] {
				c.errorf(diagnostics.ErrDeadBranch, bind.Loc, "This code is unreachable")
				c.deadReported[b.ID] = true
			}
			continue
		}
		c.bind(b, env, bind)
	}
	return env, raise
}

// reportDeadBlock reports the first user code of a block nothing reaches,
// unless an earlier block of the same dead region was already reported.
func (c *checker) reportDeadBlock(b *cfg.BasicBlock) {
	for _, p := range b.Preds {
		if c.deadReported[p.ID] {
			c.deadReported[b.ID] = true
			return
		}
	}
	for _, bind := range b.Bindings {
		if !bind.Synthetic {
			c.errorf(diagnostics.ErrDeadBranch, bind.Loc, "This code is unreachable")
			c.deadReported[b.ID] = true
			return
		}
	}
}

func (c *checker) bind(b *cfg.BasicBlock, env *environment, bind *cfg.Binding) {
	t, know := c.instruction(env, bind)
	if bind.Target != cfg.NoLocal {
		t = c.assign(b, env, bind, t, know)
	}
	if c.report && !bind.Synthetic && t != nil {
		if _, isReturn := bind.Value.(*cfg.Return); !isReturn {
			c.typed = append(c.typed, symbols.TypedLoc{Loc: bind.Loc, Type: t})
		}
	}
	if t != nil && typesystem.IsNoReturn(t) {
		env.dead = true
	}
}

// assign stores t in the binding's target and returns the type the target
// ends up with.
func (c *checker) assign(b *cfg.BasicBlock, env *environment, bind *cfg.Binding, t typesystem.Type, know *knowledge) typesystem.Type {
	id := bind.Target
	l := &env.locals[id]
	if c.g.Local(id).User {
		_, isLet := bind.Value.(*cfg.Let)
		switch {
		case isLet:
			l.decl = t
			l.pin = nil
		case l.decl != nil:
			if !typesystem.IsSubtype(c.gs, t, l.decl) {
				c.errorf(diagnostics.ErrIncompatibleDeclared, bind.Loc,
					"Incompatible assignment to variable declared via `let`: `%s` is not a subtype of `%s`", t, l.decl)
				t = l.decl
			}
		case b.OuterLoops > 0:
			if l.pin == nil {
				l.pin = t
			} else if !typesystem.IsSubtype(c.gs, t, l.pin) {
				c.errorf(diagnostics.ErrPinnedVariable, bind.Loc,
					"Changing the type of a variable in a loop is not permitted")
				t = typesystem.Untyped{}
			}
		}
	}
	env.forget(id)
	l.typ = t
	l.know = know.without(id)
	return t
}
