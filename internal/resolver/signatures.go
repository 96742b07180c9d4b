package resolver

import (
	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/namer"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// resolveSignatures converts the sigs attached to each method definition.
// A later definition of the same method replaces earlier signatures.
func (r *resolver) resolveSignatures() {
	for _, pm := range r.res.Methods {
		r.resolveMethod(pm)
	}
}

func (r *resolver) resolveMethod(pm namer.PendingMethod) {
	gs := r.gs
	sym := gs.Mutable(pm.Method)
	sym.Sigs = nil
	overloaded := len(pm.Sigs) > 1
	for _, s := range pm.Sigs {
		sym.Sigs = append(sym.Sigs, r.resolveSig(pm, s, overloaded))
	}

	if !sym.Has(symbols.FlagMethodAbstract) {
		return
	}
	if len(pm.Def.Body) > 0 {
		r.errorf(diagnostics.ErrAbstractMethodWithBody, pm.Def.NameLoc, "Abstract methods must not contain any code in their body")
	}
	owner := gs.Symbol(sym.Owner)
	if owner.Has(symbols.FlagSingleton) {
		owner = gs.Symbol(owner.Attached)
	}
	if !owner.Has(symbols.FlagAbstract) {
		r.errorf(diagnostics.ErrAbstractMethodOutsideAbs, pm.Def.NameLoc,
			"Before declaring an abstract method, you must mark your class/module as abstract using `abstract!` or `interface!`")
	}
}

func (r *resolver) resolveSig(pm namer.PendingMethod, s *ast.Sig, overloaded bool) *symbols.Signature {
	gs := r.gs
	out := &symbols.Signature{Loc: s.Loc}
	for _, name := range s.TypeParams {
		ta := gs.EnterTypeArgument(pm.Method, name)
		tsym := gs.Mutable(ta)
		tsym.Flags |= symbols.FlagBoundsResolved
		tsym.AddLoc(s.Loc)
		out.TypeParams = append(out.TypeParams, gs.MethodTypeParam(ta))
	}
	c := r.conv(pm.Scope, pm.Method)

	written := make(map[string]*ast.SigParam, len(s.Params))
	for _, p := range s.Params {
		written[p.Name] = p
	}
	declared := make(map[string]bool)
	for _, p := range gs.Symbol(pm.Method).Params {
		declared[p.Name] = true
		sp := symbols.SigParam{Name: p.Name, Kind: p.Kind, Loc: p.Loc}
		if w, ok := written[p.Name]; ok {
			sp.Type = c.convert(w.Type)
		} else {
			sp.Type = typesystem.Untyped{}
			optional := p.Kind == ast.ParamBlock ||
				(overloaded && (p.HasDefault || p.Kind == ast.ParamRest || p.Kind == ast.ParamKwRest))
			if optional {
				if overloaded && p.Kind != ast.ParamBlock {
					continue
				}
			} else {
				r.errorf(diagnostics.ErrInvalidMethodSignature, s.Loc,
					"Malformed `sig`. Type not specified for argument `%s`", p.Name)
			}
		}
		out.Params = append(out.Params, sp)
	}
	for _, p := range s.Params {
		if !declared[p.Name] {
			r.errorf(diagnostics.ErrInvalidMethodSignature, p.Loc, "Unknown argument name `%s`", p.Name)
			c.convert(p.Type)
		}
	}

	if s.Void {
		out.Return = typesystem.Void{}
	} else {
		out.Return = c.convert(s.Returns)
	}
	return out
}
