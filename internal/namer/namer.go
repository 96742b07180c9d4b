// Package namer enters every definition of a file set into the symbol
// table. Finding definitions is parallel; entering them is sequential and in
// canonical (file path, source position) order, so the resulting table does
// not depend on the order files were handed in.
package namer

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/symbols"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// PendingParent is a superclass reference left for the resolver.
type PendingParent struct {
	Class      symbols.SymbolID
	Scope      symbols.Scope
	Superclass ast.Expr
}

// PendingInclude is an `include` left for the resolver.
type PendingInclude struct {
	Class  symbols.SymbolID
	Scope  symbols.Scope
	Module *ast.ConstRef
}

type PendingConst struct {
	Const symbols.SymbolID
	Scope symbols.Scope
	Def   *ast.ConstDef
}

type PendingAlias struct {
	Alias symbols.SymbolID
	Scope symbols.Scope
	Def   *ast.TypeAlias
}

type PendingMember struct {
	Member symbols.SymbolID
	Scope  symbols.Scope
	Def    *ast.TypeMemberDef
}

type PendingField struct {
	Field symbols.SymbolID
	Scope symbols.Scope
	Def   *ast.Assign
}

// PendingMethod carries the sigs of one method definition. A later
// definition of the same method replaces the signatures of an earlier one.
type PendingMethod struct {
	Method symbols.SymbolID
	Scope  symbols.Scope
	Def    *ast.MethodDef
	Sigs   []*ast.Sig
}

// Result is what the resolver needs beyond the symbol table. Every list is
// in canonical order.
type Result struct {
	Parents  []PendingParent
	Includes []PendingInclude
	Consts   []PendingConst
	Aliases  []PendingAlias
	Members  []PendingMember
	Fields   []PendingField
	Methods  []PendingMethod
}

// Run finds definitions of all files with up to cfg.Workers goroutines and
// enters them into gs.
func Run(ctx context.Context, gs *symbols.GlobalState, progs []*ast.Program, cfg *config.Config) (*Result, error) {
	found := make([]*FoundDefinitions, len(progs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, prog := range progs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found[i] = FindDefinitions(prog)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("namer: %w", err)
	}
	return Enter(gs, found), nil
}

// Enter adds found definitions to gs in canonical order.
func Enter(gs *symbols.GlobalState, found []*FoundDefinitions) *Result {
	sorted := append([]*FoundDefinitions(nil), found...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })

	res := &Result{}
	for _, fd := range sorted {
		e := &enterer{gs: gs, res: res, fd: fd}
		e.enterFile()
	}
	return res
}

type enterer struct {
	gs  *symbols.GlobalState
	res *Result
	fd  *FoundDefinitions

	classes []symbols.SymbolID // by index into fd.Defs
	scopes  []symbols.Scope    // scope inside each class definition
	methods []symbols.MethodDef
}

func (e *enterer) errorf(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) *diagnostics.DiagnosticError {
	d := diagnostics.NewError(code, loc, msg, args...)
	e.gs.AddError(d)
	return d
}

func (e *enterer) enterFile() {
	fd := e.fd
	for _, d := range fd.Errors {
		e.gs.AddError(d)
	}
	e.classes = make([]symbols.SymbolID, len(fd.Defs))
	e.scopes = make([]symbols.Scope, len(fd.Defs))
	fileScope := symbols.Scope{File: fd.File}

	for i, d := range fd.Defs {
		scope := fileScope
		if d.Owner >= 0 {
			scope = e.scopes[d.Owner]
		}
		switch d.Kind {
		case DefClass:
			def := d.Node.(*ast.ClassDef)
			id := e.enterClass(def, scope)
			e.classes[i] = id
			e.scopes[i] = scope.Enter(id)
			if def.Superclass != nil {
				e.res.Parents = append(e.res.Parents, PendingParent{Class: id, Scope: scope, Superclass: def.Superclass})
			}
		case DefMethod:
			e.enterMethod(d, scope)
		case DefInclude:
			n := d.Node.(*ast.Include)
			class := symbols.ObjectID
			if d.Owner >= 0 {
				class = e.classes[d.Owner]
			}
			e.res.Includes = append(e.res.Includes, PendingInclude{Class: class, Scope: scope, Module: n.Module})
		case DefConst:
			e.enterConst(d.Node.(*ast.ConstDef), scope)
		case DefTypeAlias:
			e.enterAlias(d.Node.(*ast.TypeAlias), scope)
		case DefTypeMember:
			e.enterTypeMember(d.Node.(*ast.TypeMemberDef), scope)
		case DefField:
			e.enterField(d, scope)
		case DefFlag:
			e.applyFlag(d.Node.(*ast.ClassFlag), scope.Owner())
		case DefEnums:
			e.enterEnums(d.Node.(*ast.Enums), scope.Owner())
		}
	}

	if len(fd.TopLevel) > 0 {
		e.methods = append(e.methods, symbols.MethodDef{
			Def:   fd.staticInit(),
			Owner: symbols.ObjectID,
			Scope: fileScope,
		})
	}
	e.gs.SetFile(&symbols.FileState{
		Path:    fd.File,
		Sigil:   fd.Sigil,
		Hash:    fd.Hash,
		Program: fd.Program,
		Methods: e.methods,
	})
}

// enterClass returns the class symbol a definition adds to. Reopening is
// idempotent; a conflicting kind gets a hidden class so the body can still be
// entered and checked.
func (e *enterer) enterClass(def *ast.ClassDef, scope symbols.Scope) symbols.SymbolID {
	gs := e.gs
	owner := scope.Owner()
	if def.Name.Scope != nil {
		owner = e.scopeOwner(def.Name.Scope, scope)
	} else if def.Name.Root {
		owner = symbols.RootID
	}
	name := def.Name.Name
	loc := def.Name.Loc

	if existing := gs.LookupMember(owner, name); existing != symbols.NoSymbol {
		sym := gs.Mutable(existing)
		switch {
		case sym.Kind != symbols.ClassSymbol:
			e.errorf(diagnostics.ErrRedefinedAsDifferent, loc,
				"Redefining constant `%s` as a %s", gs.FullName(existing), kindName(def.IsModule)).
				WithRelated(sym.Loc())
			return e.hiddenClass(owner, name, def, existing)
		case sym.Has(symbols.FlagUndeclared):
			sym.Flags &^= symbols.FlagUndeclared | symbols.FlagModule
			if def.IsModule {
				sym.Flags |= symbols.FlagModule
			}
		case sym.IsModule() != def.IsModule:
			e.errorf(diagnostics.ErrModuleKindRedefinition, loc,
				"`%s` was previously defined as a %s", gs.FullName(existing), kindName(sym.IsModule())).
				WithRelated(sym.Loc())
			return e.hiddenClass(owner, name, def, existing)
		}
		sym.AddLoc(loc)
		return existing
	}
	id, _ := gs.EnterClass(owner, name, def.IsModule)
	gs.Mutable(id).AddLoc(loc)
	return id
}

func (e *enterer) hiddenClass(owner symbols.SymbolID, name string, def *ast.ClassDef, original symbols.SymbolID) symbols.SymbolID {
	gs := e.gs
	n := 1
	for gs.LookupMember(owner, fmt.Sprintf("%s$%d", name, n)) != symbols.NoSymbol {
		n++
	}
	id := gs.EnterHiddenClass(owner, fmt.Sprintf("%s$%d", name, n))
	sym := gs.Mutable(id)
	if def.IsModule {
		sym.Flags |= symbols.FlagModule
	}
	sym.AddLoc(def.Name.Loc)
	// Hidden classes are not members, so register the name to keep
	// numbering stable across redefinitions.
	gs.Mutable(owner).Members[sym.Name] = id
	gs.AddReference(original, def.Name.Loc)
	return id
}

func kindName(module bool) string {
	if module {
		return "module"
	}
	return "class"
}

// scopeOwner finds the namespace for the scope part of `class A::B`. The
// first segment is looked up through the lexical scope; missing segments are
// entered as undeclared placeholders.
func (e *enterer) scopeOwner(ref *ast.ConstRef, scope symbols.Scope) symbols.SymbolID {
	gs := e.gs
	var owner symbols.SymbolID
	if ref.Scope != nil {
		owner = e.scopeOwner(ref.Scope, scope)
	} else if ref.Root {
		owner = symbols.RootID
	} else {
		owner = scope.Owner()
		for _, enclosing := range append(append([]symbols.SymbolID(nil), scope.Nesting...), symbols.RootID) {
			if gs.LookupMember(enclosing, ref.Name) != symbols.NoSymbol {
				owner = enclosing
				break
			}
		}
	}
	if id := gs.LookupMember(owner, ref.Name); id != symbols.NoSymbol {
		if gs.Symbol(id).Kind == symbols.ClassSymbol {
			return id
		}
		e.errorf(diagnostics.ErrRedefinedAsDifferent, ref.Loc, "`%s` is not a class or module", gs.FullName(id))
		return owner
	}
	id, _ := gs.EnterClass(owner, ref.Name, true)
	sym := gs.Mutable(id)
	sym.Flags |= symbols.FlagUndeclared
	sym.AddLoc(ref.Loc)
	return id
}

func (e *enterer) enterMethod(d Definition, scope symbols.Scope) {
	gs := e.gs
	def := d.Node.(*ast.MethodDef)
	owner := symbols.ObjectID
	if d.Owner >= 0 {
		owner = e.classes[d.Owner]
	}
	if def.IsSelf {
		owner = gs.SingletonClass(owner)
	}
	params := e.paramInfos(def)
	override := false
	for _, s := range d.Sigs {
		override = override || s.Override || s.Abstract
	}

	id, existing := gs.EnterMethod(owner, def.Name)
	if existing {
		sym := gs.Symbol(id)
		if !paramsCompatible(sym.Params, params) && !override {
			e.errorf(diagnostics.ErrRedefinitionOfMethod, def.NameLoc,
				"Method `%s` redefined without matching argument count. Expected: `%d`, got: `%d`",
				gs.FullName(id), sym.RequiredArity(), requiredArity(params)).
				WithRelated(sym.Loc())
			id = gs.EnterMangledMethod(owner, def.Name)
		}
	}
	sym := gs.Mutable(id)
	sym.Params = params
	sym.AddLoc(def.NameLoc)
	sym.Flags &^= symbols.FlagMethodAbstract | symbols.FlagMethodOverride | symbols.FlagMethodOverridable |
		symbols.FlagMethodFinal | symbols.FlagMethodOverloaded
	for _, s := range d.Sigs {
		if s.Abstract {
			sym.Flags |= symbols.FlagMethodAbstract
		}
		if s.Override {
			sym.Flags |= symbols.FlagMethodOverride
		}
		if s.Overridable {
			sym.Flags |= symbols.FlagMethodOverridable
		}
		if s.Final {
			sym.Flags |= symbols.FlagMethodFinal
		}
	}
	if len(d.Sigs) > 1 {
		sym.Flags |= symbols.FlagMethodOverloaded
	}

	e.res.Methods = append(e.res.Methods, PendingMethod{Method: id, Scope: scope, Def: def, Sigs: d.Sigs})
	e.methods = append(e.methods, symbols.MethodDef{Def: def, Method: id, Owner: owner, Scope: scope})
}

func (e *enterer) paramInfos(def *ast.MethodDef) []symbols.ParamInfo {
	seen := make(map[string]bool, len(def.Params))
	out := make([]symbols.ParamInfo, 0, len(def.Params))
	for _, p := range def.Params {
		if seen[p.Name] {
			e.errorf(diagnostics.ErrDuplicateVariable, p.Loc, "Duplicated argument name `%s`", p.Name)
			continue
		}
		seen[p.Name] = true
		out = append(out, symbols.ParamInfo{Name: p.Name, Kind: p.Kind, Loc: p.Loc, HasDefault: p.Default != nil})
	}
	return out
}

func requiredArity(params []symbols.ParamInfo) int {
	n := 0
	for _, p := range params {
		if p.Kind == ast.ParamReq {
			n++
		}
	}
	return n
}

// paramsCompatible accepts a redefinition whose parameters have the same
// kinds in the same order and the same keyword names.
func paramsCompatible(a, b []symbols.ParamInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			return false
		}
		if a[i].Kind.IsKeyword() && a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// enterMemberOf enters a constant-namespace member of the given kind. A name
// already taken by another kind is reported and nothing is entered.
func (e *enterer) enterMemberOf(owner symbols.SymbolID, name string, kind symbols.SymbolKind, loc token.Loc) symbols.SymbolID {
	gs := e.gs
	id, existing := gs.EnterMember(owner, name, kind)
	sym := gs.Mutable(id)
	if existing && sym.Kind != kind {
		e.errorf(diagnostics.ErrRedefinedAsDifferent, loc,
			"Redefining constant `%s` as a %s", gs.FullName(id), kind).
			WithRelated(sym.Loc())
		gs.AddReference(id, loc)
		return symbols.NoSymbol
	}
	sym.AddLoc(loc)
	return id
}

func (e *enterer) enterConst(def *ast.ConstDef, scope symbols.Scope) {
	if id := e.enterMemberOf(scope.Owner(), def.Name, symbols.ConstantSymbol, def.Loc); id != symbols.NoSymbol {
		e.res.Consts = append(e.res.Consts, PendingConst{Const: id, Scope: scope, Def: def})
	}
}

func (e *enterer) enterAlias(def *ast.TypeAlias, scope symbols.Scope) {
	if id := e.enterMemberOf(scope.Owner(), def.Name, symbols.TypeAliasSymbol, def.Loc); id != symbols.NoSymbol {
		e.res.Aliases = append(e.res.Aliases, PendingAlias{Alias: id, Scope: scope, Def: def})
	}
}

func (e *enterer) enterTypeMember(def *ast.TypeMemberDef, scope symbols.Scope) {
	owner := scope.Owner()
	id := e.enterMemberOf(owner, def.Name, symbols.TypeMemberSymbol, def.Loc)
	if id == symbols.NoSymbol {
		return
	}
	sym := e.gs.Mutable(id)
	sym.Variance = convertVariance(def.Variance)
	if def.Fixed != nil {
		sym.Flags |= symbols.FlagFixedMember
	}
	e.res.Members = append(e.res.Members, PendingMember{Member: id, Scope: scope, Def: def})
}

func convertVariance(v ast.Variance) typesystem.Variance {
	switch v {
	case ast.Covariant:
		return typesystem.Covariant
	case ast.Contravariant:
		return typesystem.Contravariant
	}
	return typesystem.Invariant
}

func (e *enterer) enterField(d Definition, scope symbols.Scope) {
	gs := e.gs
	assign := d.Node.(*ast.Assign)
	owner := e.classes[d.Owner]
	if d.Static {
		owner = gs.SingletonClass(owner)
	}
	name := assign.Target.(*ast.Ivar).Name
	id, _ := gs.EnterField(owner, name)
	gs.Mutable(id).AddLoc(assign.Target.GetLoc())
	e.res.Fields = append(e.res.Fields, PendingField{Field: id, Scope: scope, Def: assign})
}

func (e *enterer) applyFlag(flag *ast.ClassFlag, class symbols.SymbolID) {
	sym := e.gs.Mutable(class)
	switch flag.Flag {
	case ast.FlagAbstract:
		sym.Flags |= symbols.FlagAbstract
	case ast.FlagInterface:
		if !sym.IsModule() {
			e.errorf(diagnostics.ErrInvalidTypeDefinition, flag.Loc, "Classes can't be interfaces. Use `abstract!` instead of `interface!`")
			return
		}
		sym.Flags |= symbols.FlagAbstract | symbols.FlagInterface
	case ast.FlagFinal:
		sym.Flags |= symbols.FlagFinal
	default:
		e.errorf(diagnostics.ErrInvalidTypeDefinition, flag.Loc, "Unknown class flag `%s!`", flag.Flag)
	}
}

// enterEnums makes each case a final subclass of the enum class.
func (e *enterer) enterEnums(enums *ast.Enums, class symbols.SymbolID) {
	gs := e.gs
	sym := gs.Mutable(class)
	if sym.IsModule() {
		e.errorf(diagnostics.ErrInvalidTypeDefinition, enums.Loc, "`enums` must be declared inside a `T::Enum` subclass")
		return
	}
	sym.Flags |= symbols.FlagEnum | symbols.FlagFinal
	for _, c := range enums.Cases {
		id, existing := gs.EnterClass(class, c.Name, false)
		caseSym := gs.Mutable(id)
		if existing && !caseSym.Has(symbols.FlagEnumCase) {
			e.errorf(diagnostics.ErrRedefinedAsDifferent, c.Loc, "Redefining constant `%s` as an enum value", gs.FullName(id)).
				WithRelated(caseSym.Loc())
			continue
		}
		caseSym.Flags |= symbols.FlagEnumCase | symbols.FlagFinal
		caseSym.Superclass = class
		caseSym.AddLoc(c.Loc)
		if !existing {
			sym.EnumCases = append(sym.EnumCases, id)
		}
	}
}

// BindMethods pairs the method definitions of an edited file with the
// symbols entered for the previous version. It only succeeds when the
// definitions line up one to one, which DefinitionHash equality guarantees.
func BindMethods(prev *symbols.FileState, prog *ast.Program) ([]symbols.MethodDef, bool) {
	defs := FindDefinitions(prog).Methods()
	if len(defs) != len(prev.Methods) {
		return nil, false
	}
	out := make([]symbols.MethodDef, len(defs))
	for i, def := range defs {
		old := prev.Methods[i]
		if def.Name != old.Def.Name || def.NameLoc.Start != old.Def.NameLoc.Start {
			return nil, false
		}
		out[i] = symbols.MethodDef{Def: def, Method: old.Method, Owner: old.Owner, Scope: old.Scope}
	}
	return out, true
}
