package typesystem

import (
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/sigcheck/internal/config"
)

// SymbolID addresses a symbol in the global symbol arena. Zero means none.
type SymbolID uint32

const NoSymbol SymbolID = 0

// Type is the interface for all types in our system. Types are immutable
// values; Union and Intersection are only built through NewUnion and
// NewIntersection so they are always flat, deduplicated and sorted.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeParams() []TypeParam
	// key is the structural identity used for equality and deduplication.
	key() string
}

// ClassType is a nominal instance type, optionally applied to arguments for
// the class's type members in declaration order.
type ClassType struct {
	Symbol SymbolID
	Name   string
	Args   []Type
}

// Union is T.any(...). Never construct directly; use NewUnion.
type Union struct {
	Members []Type
}

// Intersection is T.all(...). Never construct directly; use NewIntersection.
type Intersection struct {
	Members []Type
}

// Tuple is a fixed-length positional record.
type Tuple struct {
	Elems []Type
}

// ShapeField is one key of a Shape. Symbol keys print as `a:`, string keys
// as `"a" =>`.
type ShapeField struct {
	Key    string
	Symbol bool
	Type   Type
}

// Shape is a structural record. Fields are kept sorted by key.
type Shape struct {
	Fields []ShapeField
}

// TypeParam references a class type member (Member) or a method type
// parameter. Owner is the declaring class or method.
type TypeParam struct {
	Owner     SymbolID
	OwnerName string
	Name      string
	Member    bool
}

// SelfType is T.self_type, replaced by the receiver type at call sites.
type SelfType struct{}

// Untyped is T.untyped: both top and bottom for checking purposes.
type Untyped struct{}

// NoReturn is T.noreturn, the bottom type.
type NoReturn struct{}

// Void marks a method result that must not be used.
type Void struct{}

// ParamKey identifies a type parameter independent of its display name.
type ParamKey struct {
	Owner SymbolID
	Name  string
}

func (t TypeParam) Key() ParamKey { return ParamKey{Owner: t.Owner, Name: t.Name} }

// Equal reports structural equality of two types.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.key() == b.key()
}

// --- String ---

func (t ClassType) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	name := t.Name
	if name == config.ArrayName || name == config.HashName {
		name = "T::" + name
	}
	return name + "[" + joinTypes(t.Args) + "]"
}

func (t Union) String() string {
	var hasNil, hasTrue, hasFalse bool
	rest := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		if ct, ok := m.(ClassType); ok && len(ct.Args) == 0 {
			switch ct.Name {
			case config.NilClassName:
				hasNil = true
				continue
			case config.TrueClassName:
				hasTrue = true
				continue
			case config.FalseClassName:
				hasFalse = true
				continue
			}
		}
		rest = append(rest, m.String())
	}
	if hasTrue && hasFalse {
		rest = append(rest, "T::Boolean")
	} else if hasTrue {
		rest = append(rest, config.TrueClassName)
	} else if hasFalse {
		rest = append(rest, config.FalseClassName)
	}
	sort.Strings(rest)
	var inner string
	if len(rest) == 1 {
		inner = rest[0]
	} else {
		inner = "T.any(" + strings.Join(rest, ", ") + ")"
	}
	if hasNil {
		return "T.nilable(" + inner + ")"
	}
	return inner
}

func (t Intersection) String() string { return "T.all(" + joinTypes(t.Members) + ")" }

func (t Tuple) String() string { return "[" + joinTypes(t.Elems) + "]" }

func (t Shape) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		if f.Symbol {
			parts[i] = f.Key + ": " + f.Type.String()
		} else {
			parts[i] = strconv.Quote(f.Key) + " => " + f.Type.String()
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (t TypeParam) String() string {
	if t.Member {
		if t.OwnerName != "" {
			return t.OwnerName + "::" + t.Name
		}
		return t.Name
	}
	return "T.type_parameter(:" + t.Name + ")"
}

func (SelfType) String() string { return "T.self_type" }
func (Untyped) String() string  { return "T.untyped" }
func (NoReturn) String() string { return "T.noreturn" }
func (Void) String() string     { return "void" }

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// --- key ---

func (t ClassType) key() string {
	if len(t.Args) == 0 {
		return "C" + strconv.FormatUint(uint64(t.Symbol), 10)
	}
	return "C" + strconv.FormatUint(uint64(t.Symbol), 10) + "[" + joinKeys(t.Args) + "]"
}
func (t Union) key() string        { return "U(" + joinKeys(t.Members) + ")" }
func (t Intersection) key() string { return "I(" + joinKeys(t.Members) + ")" }
func (t Tuple) key() string        { return "[" + joinKeys(t.Elems) + "]" }
func (t Shape) key() string {
	var sb strings.Builder
	sb.WriteString("{")
	for _, f := range t.Fields {
		if f.Symbol {
			sb.WriteString(":")
		}
		sb.WriteString(strconv.Quote(f.Key))
		sb.WriteString("=")
		sb.WriteString(f.Type.key())
		sb.WriteString(",")
	}
	sb.WriteString("}")
	return sb.String()
}
func (t TypeParam) key() string {
	return "P" + strconv.FormatUint(uint64(t.Owner), 10) + ":" + t.Name
}
func (SelfType) key() string { return "self" }
func (Untyped) key() string  { return "untyped" }
func (NoReturn) key() string { return "noreturn" }
func (Void) key() string     { return "void" }

func joinKeys(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.key()
	}
	return strings.Join(parts, ",")
}

// --- FreeTypeParams ---

func (t ClassType) FreeTypeParams() []TypeParam    { return freeOf(t.Args) }
func (t Union) FreeTypeParams() []TypeParam        { return freeOf(t.Members) }
func (t Intersection) FreeTypeParams() []TypeParam { return freeOf(t.Members) }
func (t Tuple) FreeTypeParams() []TypeParam        { return freeOf(t.Elems) }
func (t Shape) FreeTypeParams() []TypeParam {
	ts := make([]Type, len(t.Fields))
	for i, f := range t.Fields {
		ts[i] = f.Type
	}
	return freeOf(ts)
}
func (t TypeParam) FreeTypeParams() []TypeParam { return []TypeParam{t} }
func (SelfType) FreeTypeParams() []TypeParam    { return nil }
func (Untyped) FreeTypeParams() []TypeParam     { return nil }
func (NoReturn) FreeTypeParams() []TypeParam    { return nil }
func (Void) FreeTypeParams() []TypeParam        { return nil }

func freeOf(ts []Type) []TypeParam {
	var out []TypeParam
	seen := make(map[ParamKey]bool)
	for _, t := range ts {
		for _, p := range t.FreeTypeParams() {
			if !seen[p.Key()] {
				seen[p.Key()] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// NewShape builds a Shape with fields sorted by key.
func NewShape(fields []ShapeField) Shape {
	out := make([]ShapeField, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Symbol && !out[j].Symbol
	})
	return Shape{Fields: out}
}

// Field looks up a shape key.
func (t Shape) Field(key string, symbol bool) (Type, bool) {
	for _, f := range t.Fields {
		if f.Key == key && f.Symbol == symbol {
			return f.Type, true
		}
	}
	return nil, false
}

// IsUntyped reports whether t is T.untyped.
func IsUntyped(t Type) bool {
	_, ok := t.(Untyped)
	return ok
}

// IsNoReturn reports whether t is T.noreturn.
func IsNoReturn(t Type) bool {
	_, ok := t.(NoReturn)
	return ok
}

// IsVoid reports whether t is void.
func IsVoid(t Type) bool {
	_, ok := t.(Void)
	return ok
}
