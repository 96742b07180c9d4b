package symbols

import (
	"sort"
	"sync"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// MethodDef links a method body in a file to the symbol it was entered as.
type MethodDef struct {
	Def    *ast.MethodDef
	Method SymbolID
	// Owner is the class the body runs in: the singleton class for
	// `def self.` methods.
	Owner SymbolID
	Scope Scope
}

// Scope is the lexical position of a definition: the enclosing classes,
// innermost first. The root namespace is implicit.
type Scope struct {
	File    string
	Nesting []SymbolID
}

// Owner is the innermost enclosing class, or the root.
func (s Scope) Owner() SymbolID {
	if len(s.Nesting) == 0 {
		return RootID
	}
	return s.Nesting[0]
}

// Enter returns the scope one class deeper.
func (s Scope) Enter(class SymbolID) Scope {
	nesting := make([]SymbolID, 0, len(s.Nesting)+1)
	nesting = append(nesting, class)
	nesting = append(nesting, s.Nesting...)
	return Scope{File: s.File, Nesting: nesting}
}

// FileState is everything the checker keeps per source file.
type FileState struct {
	Path    string
	Sigil   ast.Sigil
	Hash    string
	Program *ast.Program
	Methods []MethodDef
	// DefRefs are constant references in definitions (superclasses, mixins,
	// signatures) resolved by the resolver.
	DefRefs []ConstResolution
	// Body holds body resolution and inference output. It is replaced
	// wholesale by the incremental fast path.
	Body *BodyResults
}

// ConstResolution records what a constant reference resolved to.
type ConstResolution struct {
	Loc    token.Loc
	Symbol SymbolID
}

// TypedLoc is the inferred type of an expression.
type TypedLoc struct {
	Loc  token.Loc
	Type typesystem.Type
}

// CallSite records the method a call resolved to.
type CallSite struct {
	Loc    token.Loc
	Method SymbolID
}

// BodyResults is produced per file by body resolution and inference.
type BodyResults struct {
	// ConstRefs maps body constant references to symbols; NoSymbol means
	// unresolved (typed T.untyped).
	ConstRefs map[*ast.ConstRef]SymbolID
	// Types holds resolved T.let/T.cast/type syntax inside bodies.
	Types map[ast.TypeExpr]typesystem.Type
	// Refs lists every resolved body constant reference for queries.
	Refs        []ConstResolution
	Typed       []TypedLoc
	Calls       []CallSite
	Diagnostics []*diagnostics.DiagnosticError
	// InternalErrors are checker bugs isolated to one method.
	InternalErrors []error
}

// NewBodyResults returns empty results.
func NewBodyResults() *BodyResults {
	return &BodyResults{
		ConstRefs: make(map[*ast.ConstRef]SymbolID),
		Types:     make(map[ast.TypeExpr]typesystem.Type),
	}
}

// SetFile registers or replaces a file.
func (gs *GlobalState) SetFile(fs *FileState) {
	gs.mustBeMutable("set file")
	gs.files[fs.Path] = fs
}

// File returns the state for path, or nil.
func (gs *GlobalState) File(path string) *FileState { return gs.files[path] }

// FilePaths returns every known file path in sorted order.
func (gs *GlobalState) FilePaths() []string {
	out := make([]string, 0, len(gs.files))
	for p := range gs.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SetBodyResults stores body results for a file. It is allowed on a state
// produced by ShallowCopy before that copy is frozen.
func (gs *GlobalState) SetBodyResults(path string, br *BodyResults) {
	gs.mustBeMutable("set body results")
	fs, ok := gs.files[path]
	if !ok {
		typesystem.Internalf("body results for unknown file %s", path)
	}
	cp := *fs
	cp.Body = br
	gs.files[path] = &cp
}

// SetFileProgram swaps the parsed tree of a file whose definitions did not
// change, together with its method table.
func (gs *GlobalState) SetFileProgram(path string, prog *ast.Program, methods []MethodDef) {
	gs.mustBeMutable("set file program")
	fs, ok := gs.files[path]
	if !ok {
		typesystem.Internalf("program for unknown file %s", path)
	}
	cp := *fs
	cp.Program = prog
	cp.Methods = methods
	gs.files[path] = &cp
}

// SetDefRefs stores the resolved definition references of a file.
func (gs *GlobalState) SetDefRefs(path string, refs []ConstResolution) {
	gs.mustBeMutable("set definition references")
	fs, ok := gs.files[path]
	if !ok {
		typesystem.Internalf("definition references for unknown file %s", path)
	}
	cp := *fs
	cp.DefRefs = refs
	gs.files[path] = &cp
}

// DeepCopy returns an independent state with a fresh generation. Symbols,
// files and diagnostics are all copied; types are immutable values and are
// shared.
func (gs *GlobalState) DeepCopy() *GlobalState {
	cp := &GlobalState{
		symbols:     make([]*Symbol, len(gs.symbols)),
		files:       make(map[string]*FileState, len(gs.files)),
		errors:      append([]*diagnostics.DiagnosticError(nil), gs.errors...),
		internal:    append([]error(nil), gs.internal...),
		references:  make(map[SymbolID][]token.Loc, len(gs.references)),
		generation:  gs.generation + 1,
		lookupCache: &sync.Map{},
	}
	for i, s := range gs.symbols {
		if s != nil {
			cp.symbols[i] = s.clone()
		}
	}
	for k, v := range gs.files {
		f := *v
		cp.files[k] = &f
	}
	for k, v := range gs.references {
		cp.references[k] = append([]token.Loc(nil), v...)
	}
	return cp
}

// ShallowCopy shares the (frozen) symbol arena and copies only the per-file
// table, so the copy can take new body results while the original snapshot
// stays untouched. Symbol mutation on the copy is an internal error.
func (gs *GlobalState) ShallowCopy() *GlobalState {
	if !gs.frozen {
		typesystem.Internalf("ShallowCopy of a mutable GlobalState")
	}
	cp := &GlobalState{
		symbols:     gs.symbols,
		files:       make(map[string]*FileState, len(gs.files)),
		errors:      gs.errors,
		internal:    gs.internal,
		references:  gs.references,
		generation:  gs.generation,
		sharedArena: true,
		lookupCache: gs.lookupCache,
	}
	for k, v := range gs.files {
		cp.files[k] = v
	}
	return cp
}

// ResetInferResults drops body results of the given files, or of every file
// when none are given.
func (gs *GlobalState) ResetInferResults(paths ...string) {
	gs.mustBeMutable("reset infer results")
	if len(paths) == 0 {
		paths = gs.FilePaths()
	}
	for _, p := range paths {
		if fs, ok := gs.files[p]; ok {
			cp := *fs
			cp.Body = nil
			gs.files[p] = &cp
		}
	}
}

// AllDiagnostics merges definition and body diagnostics in canonical order.
func (gs *GlobalState) AllDiagnostics() []*diagnostics.DiagnosticError {
	all := append([]*diagnostics.DiagnosticError(nil), gs.errors...)
	for _, p := range gs.FilePaths() {
		if b := gs.files[p].Body; b != nil {
			all = append(all, b.Diagnostics...)
		}
	}
	return diagnostics.Sort(all)
}

// InternalErrors collects checker bugs of the definition phases and of
// every file.
func (gs *GlobalState) InternalErrors() []error {
	out := append([]error(nil), gs.internal...)
	for _, p := range gs.FilePaths() {
		if b := gs.files[p].Body; b != nil {
			out = append(out, b.InternalErrors...)
		}
	}
	return out
}
