package resolver

import (
	"strings"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// ResolveBodies resolves the constant references and type annotations
// inside the method bodies of one file. It only reads gs, so files can be
// processed concurrently and the incremental path can rerun it against an
// unchanged table.
func ResolveBodies(gs *symbols.GlobalState, path string) *symbols.BodyResults {
	br := symbols.NewBodyResults()
	fs := gs.File(path)
	if fs == nil || fs.Sigil == ast.SigilIgnore {
		return br
	}
	env := &bodyEnv{gs: gs, br: br, stubs: make(map[stubKey]*diagnostics.DiagnosticError)}
	for _, md := range fs.Methods {
		b := &bodyResolver{env: env, conv: &typeConv{gs: gs, env: env, scope: md.Scope, method: md.Method}}
		for _, p := range md.Def.Params {
			if p.Default != nil {
				b.walk(p.Default)
			}
		}
		for _, e := range md.Def.Body {
			b.walk(e)
		}
	}
	return br
}

type bodyResolver struct {
	env  *bodyEnv
	conv *typeConv
}

func (b *bodyResolver) walk(root ast.Node) {
	ast.Inspect(root, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ClassDef, *ast.MethodDef:
			return false
		case *ast.ConstRef:
			b.constRef(n)
			return false
		case *ast.Let:
			b.walk(n.Value)
			b.typ(n.Type)
			return false
		case *ast.Cast:
			b.walk(n.Value)
			if n.Type != nil {
				b.typ(n.Type)
			}
			return false
		}
		return true
	})
}

func (b *bodyResolver) constRef(ref *ast.ConstRef) {
	gs := b.conv.gs
	id := LookupConst(gs, b.conv.scope, ref)
	b.env.br.ConstRefs[ref] = id
	if id == symbols.NoSymbol {
		b.env.unresolved(b.conv.scope, ref)
		return
	}
	b.env.resolved(ref.Loc, id)
}

func (b *bodyResolver) typ(te ast.TypeExpr) {
	b.env.br.Types[te] = b.conv.convert(te)
}

// bodyEnv collects everything into the file's BodyResults.
type bodyEnv struct {
	gs    *symbols.GlobalState
	br    *symbols.BodyResults
	stubs map[stubKey]*diagnostics.DiagnosticError
}

func (e *bodyEnv) report(d *diagnostics.DiagnosticError) {
	e.br.Diagnostics = append(e.br.Diagnostics, d)
}

func (e *bodyEnv) unresolved(scope symbols.Scope, ref *ast.ConstRef) {
	key := stubKey{file: scope.File, owner: scope.Owner(), path: strings.Join(ref.Path(), "::")}
	if d, ok := e.stubs[key]; ok {
		d.WithRelated(ref.Loc)
		return
	}
	d := diagnostics.NewError(diagnostics.ErrStubConstant, ref.Loc, "Unable to resolve constant `%s`", ref)
	e.stubs[key] = d
	e.report(d)
}

func (e *bodyEnv) resolved(loc token.Loc, id symbols.SymbolID) {
	e.br.Refs = append(e.br.Refs, symbols.ConstResolution{Loc: loc, Symbol: id})
}

func (e *bodyEnv) aliasType(id symbols.SymbolID) typesystem.Type {
	if t := e.gs.Symbol(id).Type; t != nil {
		return t
	}
	return typesystem.Untyped{}
}

func (e *bodyEnv) checkBounds(c boundCheck) {
	e.br.Diagnostics = append(e.br.Diagnostics, checkBound(e.gs, c)...)
}
