// Package symbols implements the global symbol table: an arena of symbols
// addressed by stable integer ids.
package symbols

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fortio.org/safecast"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// GlobalState owns every symbol of a checking run plus per-file results.
type GlobalState struct {
	symbols    []*Symbol // index 0 is unused
	files      map[string]*FileState
	errors     []*diagnostics.DiagnosticError
	internal   []error
	references map[SymbolID][]token.Loc
	generation uint64
	frozen     bool
	// sharedArena is set on shallow copies: symbols belong to a snapshot.
	sharedArena bool

	lookupCache *sync.Map // methodKey -> SymbolID, valid for one generation
}

type methodKey struct {
	class SymbolID
	name  string
}

// NewGlobalState returns a state holding only the root symbol.
func NewGlobalState() *GlobalState {
	gs := &GlobalState{
		symbols:     []*Symbol{nil},
		files:       make(map[string]*FileState),
		references:  make(map[SymbolID][]token.Loc),
		lookupCache: &sync.Map{},
	}
	root := gs.enter(ClassSymbol, NoSymbol, "<root>")
	gs.symbols[root].Flags |= FlagModule
	return gs
}

// Root is the id of the top-level namespace.
func (gs *GlobalState) Root() SymbolID { return RootID }

// Generation changes whenever symbol ids may have been reassigned.
func (gs *GlobalState) Generation() uint64 { return gs.generation }

// Len returns the number of allocated symbols including the unused slot 0.
func (gs *GlobalState) Len() int { return len(gs.symbols) }

// Symbol returns the symbol for id. It panics with an internal error on a
// bad id, which can only come from a checker bug.
func (gs *GlobalState) Symbol(id SymbolID) *Symbol {
	if id == NoSymbol || int(id) >= len(gs.symbols) {
		typesystem.Internalf("symbol id %d out of range", id)
	}
	return gs.symbols[id]
}

// Symbols returns ids of all symbols in allocation order.
func (gs *GlobalState) Symbols() []SymbolID {
	out := make([]SymbolID, 0, len(gs.symbols)-1)
	for _, s := range gs.symbols[1:] {
		out = append(out, s.ID)
	}
	return out
}

// Frozen reports whether the state is a published snapshot.
func (gs *GlobalState) Frozen() bool { return gs.frozen }

// Freeze makes the state read-only. Later mutation is an internal error.
func (gs *GlobalState) Freeze() { gs.frozen = true }

func (gs *GlobalState) mustBeMutable(op string) {
	if gs.frozen {
		typesystem.Internalf("%s on a frozen GlobalState", op)
	}
}

func (gs *GlobalState) mustOwnArena(op string) {
	gs.mustBeMutable(op)
	if gs.sharedArena {
		typesystem.Internalf("%s on a shallow copy", op)
	}
}

func (gs *GlobalState) enter(kind SymbolKind, owner SymbolID, name string) SymbolID {
	gs.mustOwnArena("enter " + name)
	id, err := safecast.Conv[uint32](len(gs.symbols))
	if err != nil {
		typesystem.Internalf("symbol arena overflow: %v", err)
	}
	sym := &Symbol{ID: SymbolID(id), Kind: kind, Owner: owner, Name: name}
	if kind == ClassSymbol {
		sym.Members = make(map[string]SymbolID)
		sym.Methods = make(map[string]SymbolID)
		sym.Fields = make(map[string]SymbolID)
	}
	gs.symbols = append(gs.symbols, sym)
	return sym.ID
}

// Mutable returns the symbol for in-place updates by the namer/resolver.
func (gs *GlobalState) Mutable(id SymbolID) *Symbol {
	gs.mustOwnArena("mutate symbol")
	return gs.Symbol(id)
}

// --- entering ---

// LookupMember finds a constant-namespace member (class, constant, type
// member, alias) directly inside owner.
func (gs *GlobalState) LookupMember(owner SymbolID, name string) SymbolID {
	return gs.Symbol(owner).Members[name]
}

// EnterClass creates a class or module named name inside owner, or returns
// the existing symbol with that name. existing is true in the latter case;
// the caller checks for kind conflicts.
func (gs *GlobalState) EnterClass(owner SymbolID, name string, isModule bool) (id SymbolID, existing bool) {
	if id := gs.LookupMember(owner, name); id != NoSymbol {
		return id, true
	}
	id = gs.enter(ClassSymbol, owner, name)
	if isModule {
		gs.symbols[id].Flags |= FlagModule
	}
	gs.symbols[owner].Members[name] = id
	return id, false
}

// EnterHiddenClass creates a class that is not reachable by name. Bodies of
// conflicting redefinitions are entered under one.
func (gs *GlobalState) EnterHiddenClass(owner SymbolID, name string) SymbolID {
	id := gs.enter(ClassSymbol, owner, name)
	gs.symbols[id].Flags |= FlagMangled
	return id
}

// EnterMethod creates a method on owner, or returns the existing one.
func (gs *GlobalState) EnterMethod(owner SymbolID, name string) (id SymbolID, existing bool) {
	if id := gs.Symbol(owner).Methods[name]; id != NoSymbol {
		return id, true
	}
	id = gs.enter(MethodSymbol, owner, name)
	gs.symbols[owner].Methods[name] = id
	return id, false
}

// EnterMangledMethod creates a method that call sites never resolve to. It
// receives the body of an incompatible redefinition so that body can still
// be checked against its own signature.
func (gs *GlobalState) EnterMangledMethod(owner SymbolID, name string) SymbolID {
	n := 1
	for gs.Symbol(owner).Methods[fmt.Sprintf("%s$%d", name, n)] != NoSymbol {
		n++
	}
	mangled := fmt.Sprintf("%s$%d", name, n)
	id := gs.enter(MethodSymbol, owner, mangled)
	gs.symbols[id].Flags |= FlagMangled
	gs.symbols[owner].Methods[mangled] = id
	return id
}

// EnterField creates an instance or class variable on owner.
func (gs *GlobalState) EnterField(owner SymbolID, name string) (id SymbolID, existing bool) {
	if id := gs.Symbol(owner).Fields[name]; id != NoSymbol {
		return id, true
	}
	id = gs.enter(FieldSymbol, owner, name)
	gs.symbols[owner].Fields[name] = id
	return id, false
}

// EnterMember creates a constant-namespace symbol of the given kind.
func (gs *GlobalState) EnterMember(owner SymbolID, name string, kind SymbolKind) (id SymbolID, existing bool) {
	if id := gs.LookupMember(owner, name); id != NoSymbol {
		return id, true
	}
	id = gs.enter(kind, owner, name)
	gs.symbols[owner].Members[name] = id
	if kind == TypeMemberSymbol {
		gs.symbols[owner].TypeMembers = append(gs.symbols[owner].TypeMembers, id)
	}
	return id, false
}

// EnterTypeArgument declares a method-level type parameter.
func (gs *GlobalState) EnterTypeArgument(method SymbolID, name string) SymbolID {
	for _, ta := range gs.Symbol(method).TypeArgs {
		if gs.symbols[ta].Name == name {
			return ta
		}
	}
	id := gs.enter(TypeArgumentSymbol, method, name)
	gs.symbols[method].TypeArgs = append(gs.symbols[method].TypeArgs, id)
	return id
}

// SingletonClass returns the singleton class of a class, creating it on
// first use. Singleton classes hold `def self.` methods.
func (gs *GlobalState) SingletonClass(class SymbolID) SymbolID {
	if s := gs.Symbol(class).Singleton; s != NoSymbol {
		return s
	}
	sym := gs.Symbol(class)
	id := gs.enter(ClassSymbol, sym.Owner, "<Class:"+sym.Name+">")
	single := gs.symbols[id]
	single.Flags |= FlagSingleton
	single.Attached = class
	single.Locs = append(single.Locs, sym.Locs...)
	gs.symbols[class].Singleton = id
	return id
}

// LookupSingleton returns the singleton class without creating it.
func (gs *GlobalState) LookupSingleton(class SymbolID) SymbolID {
	return gs.Symbol(class).Singleton
}

// --- diagnostics and references ---

// AddError records a namer or resolver diagnostic.
func (gs *GlobalState) AddError(err *diagnostics.DiagnosticError) {
	gs.mustOwnArena("add error")
	gs.errors = append(gs.errors, err)
}

// AddInternalError records a checker bug found outside method bodies.
func (gs *GlobalState) AddInternalError(err error) {
	gs.mustOwnArena("add internal error")
	gs.internal = append(gs.internal, err)
}

// Errors returns definition-phase diagnostics in canonical order.
func (gs *GlobalState) Errors() []*diagnostics.DiagnosticError {
	return diagnostics.Sort(gs.errors)
}

// AddReference tracks a location that refers to id without defining it.
func (gs *GlobalState) AddReference(id SymbolID, loc token.Loc) {
	gs.mustOwnArena("add reference")
	gs.references[id] = append(gs.references[id], loc)
}

// DefinitionReferences returns the locations recorded with AddReference.
func (gs *GlobalState) DefinitionReferences(id SymbolID) []token.Loc {
	return gs.references[id]
}

// --- naming ---

// FullName renders a symbol the way diagnostics show it: A::B, A#m, A.m.
func (gs *GlobalState) FullName(id SymbolID) string {
	if id == NoSymbol {
		return "<none>"
	}
	sym := gs.Symbol(id)
	switch sym.Kind {
	case MethodSymbol:
		owner := gs.Symbol(sym.Owner)
		if owner.Has(FlagSingleton) {
			return gs.FullName(owner.Attached) + "." + sym.Name
		}
		return gs.FullName(sym.Owner) + "#" + sym.Name
	case FieldSymbol:
		return gs.FullName(sym.Owner) + "#" + sym.Name
	case TypeArgumentSymbol:
		return gs.FullName(sym.Owner) + "[" + sym.Name + "]"
	}
	if sym.Has(FlagSingleton) {
		return "T.class_of(" + gs.FullName(sym.Attached) + ")"
	}
	if id == RootID {
		return sym.Name
	}
	if sym.Owner == RootID || sym.Owner == NoSymbol {
		return sym.Name
	}
	return gs.FullName(sym.Owner) + "::" + sym.Name
}

// Show renders a symbol with its kind and signature for hover and dumps.
func (gs *GlobalState) Show(id SymbolID) string {
	sym := gs.Symbol(id)
	switch sym.Kind {
	case ClassSymbol:
		kind := "class"
		if sym.IsModule() {
			kind = "module"
		}
		var sb strings.Builder
		sb.WriteString(kind + " " + gs.FullName(id))
		if sym.Superclass != NoSymbol && !sym.IsModule() {
			sb.WriteString(" < " + gs.FullName(sym.Superclass))
		}
		return sb.String()
	case MethodSymbol:
		if len(sym.Sigs) == 0 {
			return "def " + gs.FullName(id) + " (untyped)"
		}
		parts := make([]string, len(sym.Sigs))
		for i, sig := range sym.Sigs {
			parts[i] = "def " + gs.FullName(id) + ShowSignature(sig)
		}
		return strings.Join(parts, "\n")
	case FieldSymbol, ConstantSymbol, TypeAliasSymbol:
		t := "T.untyped"
		if sym.Type != nil {
			t = sym.Type.String()
		}
		return gs.FullName(id) + ": " + t
	case TypeMemberSymbol:
		return "type_member " + gs.FullName(id) + " " + sym.Variance.String()
	}
	return gs.FullName(id)
}

// ShowSignature renders `(x: Integer): String`.
func ShowSignature(sig *Signature) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		prefix := ""
		switch p.Kind {
		case ast.ParamRest:
			prefix = "*"
		case ast.ParamKwRest:
			prefix = "**"
		case ast.ParamBlock:
			prefix = "&"
		}
		params[i] = prefix + p.Name + ": " + p.Type.String()
	}
	return "(" + strings.Join(params, ", ") + "): " + sig.Return.String()
}

// SortedIDs returns ids sorted by full name, for stable dumps.
func (gs *GlobalState) SortedIDs(ids []SymbolID) []SymbolID {
	out := append([]SymbolID(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool { return gs.FullName(out[i]) < gs.FullName(out[j]) })
	return out
}
