package namer

import (
	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/token"
)

// DefKind classifies a found definition.
type DefKind int

const (
	DefClass DefKind = iota
	DefMethod
	DefInclude
	DefConst
	DefTypeAlias
	DefTypeMember
	DefField
	DefFlag
	DefEnums
)

// Definition is one definition found in a file. Definitions of a file are
// kept in source order.
type Definition struct {
	Kind DefKind
	// Owner indexes the enclosing DefClass in FoundDefinitions.Defs; -1 is
	// the file's top level.
	Owner int
	Node  ast.Node
	// Sigs preceding a DefMethod.
	Sigs []*ast.Sig
	// Static marks a field declared in a class body rather than in
	// initialize; it lives on the singleton class.
	Static bool
}

// FoundDefinitions is the per-file output of the parallel finding phase.
// It never references GlobalState.
type FoundDefinitions struct {
	File     string
	Sigil    ast.Sigil
	Program  *ast.Program
	Defs     []Definition
	TopLevel []ast.Expr
	Errors   []*diagnostics.DiagnosticError
	Hash     string
}

// FindDefinitions walks a parsed file and records its definitions.
func FindDefinitions(prog *ast.Program) *FoundDefinitions {
	fd := &FoundDefinitions{File: prog.File, Sigil: prog.Sigil, Program: prog}
	if prog.Sigil == ast.SigilIgnore {
		return fd
	}
	f := &finder{fd: fd}
	f.walkBody(prog.Body, -1, true)
	fd.Hash = DefinitionHash(prog)
	return fd
}

type finder struct {
	fd *FoundDefinitions
}

func (f *finder) add(d Definition) int {
	f.fd.Defs = append(f.fd.Defs, d)
	return len(f.fd.Defs) - 1
}

func (f *finder) errorf(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) {
	f.fd.Errors = append(f.fd.Errors, diagnostics.NewError(code, loc, msg, args...))
}

// walkBody records the definitions of a file or class body. Sigs attach to
// the method definition that immediately follows them.
func (f *finder) walkBody(body []ast.Expr, owner int, topLevel bool) {
	var sigs []*ast.Sig
	flushDangling := func() {
		for _, s := range sigs {
			f.errorf(diagnostics.ErrOverloadWithoutSig, s.Loc, "Malformed `sig`: No method def following it")
		}
		sigs = nil
	}
	for _, stmt := range body {
		if s, ok := stmt.(*ast.Sig); ok {
			sigs = append(sigs, s)
			continue
		}
		if m, ok := stmt.(*ast.MethodDef); ok {
			f.add(Definition{Kind: DefMethod, Owner: owner, Node: m, Sigs: f.checkSigs(sigs)})
			sigs = nil
			if m.Name == config.InitializeMethod && !m.IsSelf && owner >= 0 {
				f.walkFields(m.Body, owner, false)
			}
			continue
		}
		flushDangling()

		switch n := stmt.(type) {
		case *ast.ClassDef:
			idx := f.add(Definition{Kind: DefClass, Owner: owner, Node: n})
			f.walkBody(n.Body, idx, false)
		case *ast.Include:
			f.add(Definition{Kind: DefInclude, Owner: owner, Node: n})
		case *ast.ConstDef:
			f.add(Definition{Kind: DefConst, Owner: owner, Node: n})
		case *ast.TypeAlias:
			f.add(Definition{Kind: DefTypeAlias, Owner: owner, Node: n})
		case *ast.TypeMemberDef:
			if owner < 0 {
				f.errorf(diagnostics.ErrInvalidTypeDefinition, n.Loc, "`type_member` must be declared inside a class or module")
				continue
			}
			f.add(Definition{Kind: DefTypeMember, Owner: owner, Node: n})
		case *ast.ClassFlag:
			if owner < 0 {
				f.errorf(diagnostics.ErrInvalidTypeDefinition, n.Loc, "`%s!` must be declared inside a class or module", n.Flag)
				continue
			}
			f.add(Definition{Kind: DefFlag, Owner: owner, Node: n})
		case *ast.Enums:
			if owner < 0 {
				f.errorf(diagnostics.ErrInvalidTypeDefinition, n.Loc, "`enums` must be declared inside a `T::Enum` subclass")
				continue
			}
			f.add(Definition{Kind: DefEnums, Owner: owner, Node: n})
		default:
			if owner >= 0 {
				if field := declaredField(stmt); field != nil {
					f.add(Definition{Kind: DefField, Owner: owner, Node: field, Static: true})
				}
			} else if topLevel {
				f.fd.TopLevel = append(f.fd.TopLevel, stmt)
			}
		}
	}
	flushDangling()
}

// checkSigs keeps all sigs of an overloaded method and only the last sig
// otherwise.
func (f *finder) checkSigs(sigs []*ast.Sig) []*ast.Sig {
	if len(sigs) <= 1 {
		return sigs
	}
	for _, s := range sigs {
		if !s.Overload {
			for _, extra := range sigs[:len(sigs)-1] {
				f.errorf(diagnostics.ErrOverloadWithoutSig, extra.Loc, "Unused type annotation. No method def before next annotation")
			}
			return sigs[len(sigs)-1:]
		}
	}
	return sigs
}

// walkFields records `@x = T.let(...)` statements of an initialize body.
func (f *finder) walkFields(body []ast.Expr, owner int, static bool) {
	for _, stmt := range body {
		if field := declaredField(stmt); field != nil {
			f.add(Definition{Kind: DefField, Owner: owner, Node: field, Static: static})
		}
	}
}

// declaredField matches `@x = T.let(value, Type)`.
func declaredField(stmt ast.Expr) *ast.Assign {
	a, ok := stmt.(*ast.Assign)
	if !ok {
		return nil
	}
	if _, ok := a.Target.(*ast.Ivar); !ok {
		return nil
	}
	if _, ok := a.Value.(*ast.Let); !ok {
		return nil
	}
	return a
}

// Methods lists the method definitions of a file in the order the namer
// enters them, followed by the top-level statements when there are any.
func (fd *FoundDefinitions) Methods() []*ast.MethodDef {
	var out []*ast.MethodDef
	for _, d := range fd.Defs {
		if d.Kind == DefMethod {
			out = append(out, d.Node.(*ast.MethodDef))
		}
	}
	if len(fd.TopLevel) > 0 {
		out = append(out, fd.staticInit())
	}
	return out
}

// StaticInitName names the pseudo method holding a file's top-level code.
const StaticInitName = "<static-init>"

func (fd *FoundDefinitions) staticInit() *ast.MethodDef {
	return &ast.MethodDef{
		Loc:     fd.Program.Loc,
		NameLoc: fd.TopLevel[0].GetLoc(),
		Name:    StaticInitName,
		Body:    fd.TopLevel,
	}
}
