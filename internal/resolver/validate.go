package resolver

import (
	"sort"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// validate runs the checks that need the whole hierarchy: abstract methods
// left unimplemented, and overrides against the methods they replace.
func (r *resolver) validate() {
	gs := r.gs
	for _, id := range gs.Symbols() {
		sym := gs.Symbol(id)
		if sym.Kind != symbols.ClassSymbol || id == symbols.RootID || len(sym.Locs) == 0 {
			continue
		}
		if !sym.IsModule() && !sym.Has(symbols.FlagAbstract) && !sym.Has(symbols.FlagSingleton) {
			r.checkAbstractImplemented(id)
		}
		names := make([]string, 0, len(sym.Methods))
		for name := range sym.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := sym.Methods[name]
			if gs.Symbol(m).Has(symbols.FlagMangled) {
				continue
			}
			r.checkOverride(id, m)
		}
	}
}

func (r *resolver) checkAbstractImplemented(class symbols.SymbolID) {
	gs := r.gs
	sym := gs.Symbol(class)
	reported := make(map[string]bool)
	for _, anc := range sym.Linearization[1:] {
		asym := gs.Symbol(anc)
		if !asym.Has(symbols.FlagAbstract) {
			continue
		}
		names := make([]string, 0, len(asym.Methods))
		for name := range asym.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if reported[name] {
				continue
			}
			impl := gs.LookupMethod(class, name)
			if impl == symbols.NoSymbol || !gs.Symbol(impl).Has(symbols.FlagMethodAbstract) {
				continue
			}
			reported[name] = true
			r.errorf(diagnostics.ErrBadAbstractMethod, sym.Loc(), "Missing definition for abstract method `%s` in `%s`",
				gs.FullName(impl), gs.FullName(class)).
				WithRelated(gs.Symbol(impl).Loc())
		}
	}
}

func (r *resolver) checkOverride(class, method symbols.SymbolID) {
	gs := r.gs
	msym := gs.Symbol(method)
	super := gs.LookupSuperMethod(class, msym.Name)
	if super == symbols.NoSymbol {
		if msym.Has(symbols.FlagMethodOverride) {
			r.errorf(diagnostics.ErrUndeclaredOverride, msym.Loc(),
				"Method `%s` is marked `override` but does not override anything", gs.FullName(method))
		}
		return
	}
	ssym := gs.Symbol(super)
	if ssym.Has(symbols.FlagMethodFinal) {
		r.errorf(diagnostics.ErrOverridesFinal, msym.Loc(),
			"`%s` was declared as final and cannot be overridden by `%s`", gs.FullName(super), gs.FullName(method)).
			WithRelated(ssym.Loc())
		return
	}
	checked := msym.Has(symbols.FlagMethodOverride) ||
		ssym.Has(symbols.FlagMethodAbstract) || ssym.Has(symbols.FlagMethodOverridable) || ssym.Has(symbols.FlagMethodOverride)
	if !checked || len(msym.Sigs) != 1 || len(ssym.Sigs) != 1 || len(ssym.Locs) == 0 {
		return
	}
	for _, msg := range overrideProblems(gs, ssym.Sigs[0], msym.Sigs[0]) {
		r.errorf(diagnostics.ErrBadMethodOverride, msym.Loc(), "%s", "Override of method `"+gs.FullName(super)+"` "+msg).
			WithRelated(ssym.Loc())
	}
}

// overrideProblems compares a child signature with the parent it replaces:
// the child must accept every call the parent accepts and return something
// the parent's callers can use.
func overrideProblems(gs *symbols.GlobalState, parent, child *symbols.Signature) []string {
	var out []string
	preq, popt, prest := positional(parent)
	creq, copt, crest := positional(child)
	if creq > preq {
		out = append(out, "must not require more positional arguments than the parent")
	}
	if creq+copt < preq+popt {
		out = append(out, "must accept at least as many positional arguments as the parent")
	}
	if prest && !crest {
		out = append(out, "must accept *rest arguments")
	}
	for _, p := range parent.Params {
		if !p.Kind.IsKeyword() || p.Kind == ast.ParamKwRest {
			continue
		}
		if _, ok := child.Param(p.Name); !ok && !hasKind(child, ast.ParamKwRest) {
			out = append(out, "must accept keyword argument `"+p.Name+"`")
		}
	}
	for _, p := range child.Params {
		if p.Kind != ast.ParamKw {
			continue
		}
		if _, ok := parent.Param(p.Name); !ok {
			out = append(out, "must not add required keyword argument `"+p.Name+"`")
		}
	}

	if len(parent.TypeParams) > 0 || len(child.TypeParams) > 0 {
		return out
	}
	var ppos, cpos []symbols.SigParam
	for _, p := range parent.Params {
		if p.Kind == ast.ParamReq || p.Kind == ast.ParamOpt {
			ppos = append(ppos, p)
		}
	}
	for _, p := range child.Params {
		if p.Kind == ast.ParamReq || p.Kind == ast.ParamOpt {
			cpos = append(cpos, p)
		}
	}
	for i := 0; i < len(ppos) && i < len(cpos); i++ {
		if checkable(ppos[i].Type, cpos[i].Type) && !typesystem.IsSubtype(gs, ppos[i].Type, cpos[i].Type) {
			out = append(out, "parameter `"+cpos[i].Name+"` of type `"+cpos[i].Type.String()+
				"` is not a supertype of parent parameter type `"+ppos[i].Type.String()+"`")
		}
	}
	for _, p := range parent.Params {
		if !p.Kind.IsKeyword() {
			continue
		}
		if cp, ok := child.Param(p.Name); ok && checkable(p.Type, cp.Type) && !typesystem.IsSubtype(gs, p.Type, cp.Type) {
			out = append(out, "parameter `"+cp.Name+"` of type `"+cp.Type.String()+
				"` is not a supertype of parent parameter type `"+p.Type.String()+"`")
		}
	}
	if !typesystem.IsVoid(parent.Return) && checkable(parent.Return, child.Return) &&
		!typesystem.IsSubtype(gs, child.Return, parent.Return) {
		out = append(out, "return type `"+child.Return.String()+"` does not match parent return type `"+parent.Return.String()+"`")
	}
	return out
}

func positional(sig *symbols.Signature) (req, opt int, rest bool) {
	for _, p := range sig.Params {
		switch p.Kind {
		case ast.ParamReq:
			req++
		case ast.ParamOpt:
			opt++
		case ast.ParamRest:
			rest = true
		}
	}
	return req, opt, rest
}

func hasKind(sig *symbols.Signature, kind ast.ParamKind) bool {
	for _, p := range sig.Params {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// checkable excludes types mentioning type parameters or T.self_type,
// whose meaning differs between the two classes.
func checkable(a, b typesystem.Type) bool {
	return len(a.FreeTypeParams()) == 0 && len(b.FreeTypeParams()) == 0 && !hasSelf(a) && !hasSelf(b)
}

func hasSelf(t typesystem.Type) bool {
	return !typesystem.Equal(typesystem.ReplaceSelf(t, typesystem.Untyped{}), t)
}
