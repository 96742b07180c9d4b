package infer

import (
	"fmt"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/cfg"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// call is one send being checked.
type call struct {
	send   *cfg.Send
	loc    token.Loc
	args   []typesystem.Type
	kwargs []typesystem.Type
}

func (c *checker) send(env *environment, bind *cfg.Binding, s *cfg.Send) (typesystem.Type, *knowledge) {
	recv := c.typeOf(env, s.Recv)
	cl := &call{send: s, loc: bind.Loc}
	cl.args = make([]typesystem.Type, len(s.Args))
	for i, a := range s.Args {
		cl.args[i] = c.typeOf(env, a)
		if typesystem.IsVoid(cl.args[i]) {
			c.errorf(diagnostics.ErrVoidValue, s.ArgLocs[i], "Cannot use the result of a `void` method")
			cl.args[i] = typesystem.Untyped{}
		}
	}
	cl.kwargs = make([]typesystem.Type, len(s.KwArgs))
	for i, kw := range s.KwArgs {
		cl.kwargs[i] = c.typeOf(env, kw.Value)
		if typesystem.IsVoid(cl.kwargs[i]) {
			c.errorf(diagnostics.ErrVoidValue, kw.Loc, "Cannot use the result of a `void` method")
			cl.kwargs[i] = typesystem.Untyped{}
		}
	}
	if typesystem.IsVoid(recv) {
		loc := bind.Loc
		if s.Node != nil && s.Node.Recv != nil {
			loc = s.Node.Recv.GetLoc()
		}
		c.errorf(diagnostics.ErrVoidValue, loc, "Cannot call method `%s` on the result of a `void` method", s.Method)
		return typesystem.Untyped{}, nil
	}
	return c.dispatch(cl, recv, nil), c.sendKnowledge(env, s, recv, cl.args)
}

// dispatch finds the method for every possible receiver class. whole is the
// union the receiver is a component of, for error messages.
func (c *checker) dispatch(cl *call, recv, whole typesystem.Type) typesystem.Type {
	gs := c.gs
	switch r := recv.(type) {
	case typesystem.Untyped:
		if c.strict && c.conf.StrictUntypedAdvisories {
			c.infof(diagnostics.ErrUntypedValue, cl.send.MethodLoc, "Call to method `%s` on `T.untyped`", cl.send.Method)
		}
		return r
	case typesystem.NoReturn:
		return r
	case typesystem.SelfType:
		return c.dispatch(cl, c.self, whole)
	case typesystem.Union:
		var out typesystem.Type = typesystem.NoReturn{}
		for _, m := range r.Members {
			out = typesystem.Lub(gs, out, c.dispatch(cl, m, r))
		}
		return out
	case typesystem.Intersection:
		for _, m := range r.Members {
			if ct, ok := m.(typesystem.ClassType); ok && gs.LookupMethod(ct.Symbol, cl.send.Method) != symbols.NoSymbol {
				return c.dispatchClass(cl, ct, whole)
			}
		}
		c.missingMethod(cl, r, whole)
		return typesystem.Untyped{}
	case typesystem.Tuple:
		return c.dispatch(cl, typesystem.TupleUpcast(gs, r), whole)
	case typesystem.Shape:
		return c.dispatch(cl, typesystem.ShapeUpcast(gs, r), whole)
	case typesystem.TypeParam:
		if b, ok := gs.Bounds(r); ok && b.Upper != nil {
			return c.dispatch(cl, b.Upper, whole)
		}
		return typesystem.Untyped{}
	case typesystem.ClassType:
		return c.dispatchClass(cl, r, whole)
	}
	return typesystem.Untyped{}
}

func (c *checker) missingMethod(cl *call, recv, whole typesystem.Type) {
	if whole != nil {
		c.errorf(diagnostics.ErrUnknownMethod, cl.send.MethodLoc,
			"Method `%s` does not exist on `%s` component of `%s`", cl.send.Method, recv, whole)
		return
	}
	c.errorf(diagnostics.ErrUnknownMethod, cl.send.MethodLoc, "Method `%s` does not exist on `%s`", cl.send.Method, recv)
}

func (c *checker) dispatchClass(cl *call, recv typesystem.ClassType, whole typesystem.Type) typesystem.Type {
	gs := c.gs
	m := gs.LookupMethod(recv.Symbol, cl.send.Method)
	if m == symbols.NoSymbol {
		sym := gs.Symbol(recv.Symbol)
		if cl.send.Method == config.NewMethod && sym.Has(symbols.FlagSingleton) && sym.Attached != symbols.NoSymbol {
			return c.construct(cl, sym.Attached)
		}
		c.missingMethod(cl, recv, whole)
		return typesystem.Untyped{}
	}
	c.recordCall(cl, m)
	return c.apply(cl, m, recv)
}

// construct checks `C.new(...)` against C#initialize.
func (c *checker) construct(cl *call, class symbols.SymbolID) typesystem.Type {
	gs := c.gs
	sym := gs.Symbol(class)
	if sym.Has(symbols.FlagAbstract) || sym.Has(symbols.FlagInterface) {
		c.errorf(diagnostics.ErrInstantiatingAbstract, cl.loc, "Attempt to instantiate abstract class `%s`", gs.FullName(class))
	}
	inst := gs.ExternalType(class)
	if init := gs.LookupMethod(class, config.InitializeMethod); init != symbols.NoSymbol {
		c.recordCall(cl, init)
		if ct, ok := inst.(typesystem.ClassType); ok {
			c.apply(cl, init, ct)
		}
	}
	return inst
}

func (c *checker) recordCall(cl *call, m symbols.SymbolID) {
	if c.report {
		c.calls = append(c.calls, symbols.CallSite{Loc: cl.send.MethodLoc, Method: m})
	}
}

// apply checks the call against the signatures of m. Overloads are tried in
// order and the first one that accepts the arguments wins; when none does,
// the problems with the first one are reported.
func (c *checker) apply(cl *call, m symbols.SymbolID, recv typesystem.ClassType) typesystem.Type {
	gs := c.gs
	msym := gs.Symbol(m)
	if len(msym.Sigs) == 0 {
		untypedSig := &symbols.Signature{Return: typesystem.Untyped{}}
		for _, p := range msym.Params {
			untypedSig.Params = append(untypedSig.Params, symbols.SigParam{
				Name: p.Name, Kind: paramKind(p), Type: typesystem.Untyped{}, Loc: p.Loc,
			})
		}
		ret, probs := c.match(cl, m, untypedSig, nil, recv)
		c.emit(probs)
		return ret
	}
	subst := c.receiverSubst(recv, msym.Owner)
	var firstRet typesystem.Type
	var firstProbs []*diagnostics.DiagnosticError
	for i, sig := range msym.Sigs {
		ret, probs := c.match(cl, m, sig, subst, recv)
		if len(probs) == 0 {
			return ret
		}
		if i == 0 {
			firstRet, firstProbs = ret, probs
		}
	}
	c.emit(firstProbs)
	return firstRet
}

// paramKind treats parameters with defaults as optional.
func paramKind(p symbols.ParamInfo) ast.ParamKind {
	if p.HasDefault && p.Kind == ast.ParamReq {
		return ast.ParamOpt
	}
	return p.Kind
}

func (c *checker) emit(probs []*diagnostics.DiagnosticError) {
	if c.report {
		c.diags = append(c.diags, probs...)
	}
}

// receiverSubst maps the type members of owner to the receiver's arguments.
func (c *checker) receiverSubst(recv typesystem.ClassType, owner symbols.SymbolID) typesystem.Subst {
	gs := c.gs
	members := gs.Symbol(owner).TypeMembers
	if len(members) == 0 {
		return nil
	}
	args := gs.BaseTypeArgs(recv.Symbol, recv.Args, owner)
	s := make(typesystem.Subst, len(members))
	for i, mid := range members {
		if i < len(args) {
			s[gs.MemberParam(mid).Key()] = args[i]
		}
	}
	return s
}

// boundArg is an argument matched to the parameter receiving it.
type boundArg struct {
	typ   typesystem.Type
	param symbols.SigParam
	loc   token.Loc
}

// match binds the arguments of cl to the parameters of sig and checks them.
// It returns the instantiated result type and the problems found.
func (c *checker) match(cl *call, m symbols.SymbolID, sig *symbols.Signature, subst typesystem.Subst, recv typesystem.ClassType) (typesystem.Type, []*diagnostics.DiagnosticError) {
	gs := c.gs
	name := gs.FullName(m)
	inst := func(t typesystem.Type) typesystem.Type {
		if t == nil {
			return typesystem.Untyped{}
		}
		if subst != nil {
			t = t.Apply(subst)
		}
		return typesystem.ReplaceSelf(t, recv)
	}
	var probs []*diagnostics.DiagnosticError
	var bound []boundArg

	var positional []symbols.SigParam
	req, opt, rest := 0, 0, false
	for _, p := range sig.Params {
		switch p.Kind {
		case ast.ParamReq:
			req++
		case ast.ParamOpt:
			opt++
		case ast.ParamRest:
			rest = true
		default:
			continue
		}
		positional = append(positional, p)
	}
	n := len(cl.args)
	switch {
	case n < req:
		probs = append(probs, diagnostics.NewError(diagnostics.ErrMethodArgumentCount, cl.loc,
			"Not enough arguments provided for method `%s`. Expected: `%s`, got: `%d`", name, arity(req, opt, rest), n))
	case !rest && n > req+opt:
		probs = append(probs, diagnostics.NewError(diagnostics.ErrMethodArgumentCount, cl.loc,
			"Too many arguments provided for method `%s`. Expected: `%s`, got: `%d`", name, arity(req, opt, rest), n))
	}

	extra := n - req
	i := 0
	for pi, p := range positional {
		switch p.Kind {
		case ast.ParamReq:
			if i < n {
				bound = append(bound, boundArg{typ: cl.args[i], param: p, loc: cl.send.ArgLocs[i]})
				i++
			}
		case ast.ParamOpt:
			if extra > 0 && i < n {
				bound = append(bound, boundArg{typ: cl.args[i], param: p, loc: cl.send.ArgLocs[i]})
				i++
				extra--
			}
		case ast.ParamRest:
			after := 0
			for _, q := range positional[pi+1:] {
				if q.Kind == ast.ParamReq {
					after++
				}
			}
			for ; i < n-after; i++ {
				bound = append(bound, boundArg{typ: cl.args[i], param: p, loc: cl.send.ArgLocs[i]})
			}
		}
	}

	passed := make(map[string]bool, len(cl.send.KwArgs))
	for j, kw := range cl.send.KwArgs {
		passed[kw.Name] = true
		p, ok := keywordParam(sig, kw.Name)
		if !ok {
			probs = append(probs, diagnostics.NewError(diagnostics.ErrMethodArgumentCount, kw.Loc,
				"Unrecognized keyword argument `%s` passed for method `%s`", kw.Name, name))
			continue
		}
		bound = append(bound, boundArg{typ: cl.kwargs[j], param: p, loc: kw.Loc})
	}
	for _, p := range sig.Params {
		if p.Kind == ast.ParamKw && !passed[p.Name] {
			probs = append(probs, diagnostics.NewError(diagnostics.ErrMethodArgumentCount, cl.loc,
				"Missing required keyword argument `%s` for method `%s`", p.Name, name))
		}
	}

	var solved typesystem.Subst
	if len(sig.TypeParams) > 0 {
		var ok bool
		solved, ok = c.solve(sig.TypeParams, bound, inst)
		if !ok {
			probs = append(probs, diagnostics.NewError(diagnostics.ErrGenericInstantiation, cl.send.MethodLoc,
				"Could not find valid instantiation of type parameters for `%s`", name))
		}
	}
	for _, b := range bound {
		want := inst(b.param.Type)
		if solved != nil {
			want = want.Apply(solved)
		}
		if !typesystem.IsSubtype(gs, b.typ, want) {
			d := diagnostics.NewError(diagnostics.ErrMethodArgumentMismatch, b.loc,
				"Expected `%s` but found `%s` for argument `%s`", want, b.typ, b.param.Name)
			if b.param.Loc.IsValid() {
				d.WithRelated(b.param.Loc)
			}
			probs = append(probs, d)
		}
	}

	ret := inst(sig.Return)
	if solved != nil {
		ret = ret.Apply(solved)
	}
	return ret, probs
}

func keywordParam(sig *symbols.Signature, name string) (symbols.SigParam, bool) {
	var restParam *symbols.SigParam
	for i, p := range sig.Params {
		switch p.Kind {
		case ast.ParamKw, ast.ParamKwOpt:
			if p.Name == name {
				return p, true
			}
		case ast.ParamKwRest:
			restParam = &sig.Params[i]
		}
	}
	if restParam != nil {
		return *restParam, true
	}
	return symbols.SigParam{}, false
}

func arity(req, opt int, rest bool) string {
	switch {
	case rest:
		return fmt.Sprintf("%d+", req)
	case opt > 0:
		return fmt.Sprintf("%d..%d", req, req+opt)
	}
	return fmt.Sprint(req)
}
