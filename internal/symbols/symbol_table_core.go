package symbols

import (
	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/token"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// SymbolID is re-exported so callers rarely need the typesystem import.
type SymbolID = typesystem.SymbolID

const NoSymbol = typesystem.NoSymbol

type SymbolKind int

const (
	ClassSymbol SymbolKind = iota
	MethodSymbol
	FieldSymbol
	TypeMemberSymbol
	TypeArgumentSymbol // method-level type parameter
	ConstantSymbol
	TypeAliasSymbol
)

func (k SymbolKind) String() string {
	return [...]string{"class", "method", "field", "type member", "type argument", "constant", "type alias"}[k]
}

type Flags uint32

const (
	FlagModule Flags = 1 << iota
	FlagUndeclared
	FlagAbstract
	FlagInterface
	FlagFinal
	FlagSingleton
	FlagEnum
	FlagEnumCase
	FlagLinearized
	FlagMethodAbstract
	FlagMethodOverride
	FlagMethodOverridable
	FlagMethodFinal
	FlagMethodOverloaded
	FlagMangled
	FlagBoundsResolved
	FlagFixedMember
)

// ParamInfo is a method parameter as written in the definition.
type ParamInfo struct {
	Name       string
	Kind       ast.ParamKind
	Loc        token.Loc
	HasDefault bool
}

// SigParam is a typed parameter of a resolved signature.
type SigParam struct {
	Name string
	Kind ast.ParamKind
	Type typesystem.Type
	Loc  token.Loc
}

// Signature is one resolved `sig` of a method. Return is Void for `.void`.
type Signature struct {
	Loc        token.Loc
	TypeParams []typesystem.TypeParam
	Params     []SigParam
	Return     typesystem.Type
}

// Param finds a signature parameter by name.
func (s *Signature) Param(name string) (SigParam, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return SigParam{}, false
}

// Symbol is one entry of the global arena. Only the namer and the resolver
// mutate symbols; from inference onward they are read-only.
type Symbol struct {
	ID    SymbolID
	Kind  SymbolKind
	Owner SymbolID
	Name  string
	Locs  []token.Loc
	Flags Flags

	// Declared type of constants, fields and type aliases.
	Type typesystem.Type
	// Alias target for constants assigned another constant.
	AliasOf SymbolID

	// Classes
	Members       map[string]SymbolID // constants, classes, aliases, type members
	Methods       map[string]SymbolID
	Fields        map[string]SymbolID
	Superclass    SymbolID
	Mixins        []SymbolID
	Linearization []SymbolID // self first
	TypeMembers   []SymbolID
	Singleton     SymbolID
	Attached      SymbolID
	EnumCases     []SymbolID

	// Methods
	Params []ParamInfo
	Sigs   []*Signature
	// TypeArgs are the method's declared type parameters.
	TypeArgs []SymbolID

	// Type members and type arguments
	Variance typesystem.Variance
	Bounds   typesystem.Bounds
	Fixed    typesystem.Type
}

func (s *Symbol) Has(f Flags) bool { return s.Flags&f != 0 }

func (s *Symbol) IsClass() bool { return s.Kind == ClassSymbol }

func (s *Symbol) IsModule() bool { return s.Kind == ClassSymbol && s.Has(FlagModule) }

// Loc returns the canonical definition location.
func (s *Symbol) Loc() token.Loc {
	if len(s.Locs) == 0 {
		return token.Loc{}
	}
	return s.Locs[0]
}

// AddLoc merges a definition location keeping Locs sorted and unique.
func (s *Symbol) AddLoc(loc token.Loc) {
	if !loc.IsValid() {
		return
	}
	for i, l := range s.Locs {
		if l == loc {
			return
		}
		if loc.Less(l) {
			s.Locs = append(s.Locs, token.Loc{})
			copy(s.Locs[i+1:], s.Locs[i:])
			s.Locs[i] = loc
			return
		}
	}
	s.Locs = append(s.Locs, loc)
}

// RequiredArity is the number of required positional parameters.
func (s *Symbol) RequiredArity() int {
	n := 0
	for _, p := range s.Params {
		if p.Kind == ast.ParamReq {
			n++
		}
	}
	return n
}

func (s *Symbol) clone() *Symbol {
	c := *s
	c.Locs = append([]token.Loc(nil), s.Locs...)
	c.Members = cloneMap(s.Members)
	c.Methods = cloneMap(s.Methods)
	c.Fields = cloneMap(s.Fields)
	c.Mixins = append([]SymbolID(nil), s.Mixins...)
	c.Linearization = append([]SymbolID(nil), s.Linearization...)
	c.TypeMembers = append([]SymbolID(nil), s.TypeMembers...)
	c.EnumCases = append([]SymbolID(nil), s.EnumCases...)
	c.Params = append([]ParamInfo(nil), s.Params...)
	c.TypeArgs = append([]SymbolID(nil), s.TypeArgs...)
	if s.Sigs != nil {
		c.Sigs = make([]*Signature, len(s.Sigs))
		for i, sig := range s.Sigs {
			cp := *sig
			cp.Params = append([]SigParam(nil), sig.Params...)
			cp.TypeParams = append([]typesystem.TypeParam(nil), sig.TypeParams...)
			c.Sigs[i] = &cp
		}
	}
	return &c
}

func cloneMap(m map[string]SymbolID) map[string]SymbolID {
	if m == nil {
		return nil
	}
	out := make(map[string]SymbolID, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
