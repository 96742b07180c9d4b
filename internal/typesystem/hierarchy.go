package typesystem

// Hierarchy is the view of the symbol table that the type algebra needs.
// The symbols package implements it on a GlobalState.
type Hierarchy interface {
	// DerivesFrom reports whether sup occurs in the linearization of sub.
	DerivesFrom(sub, sup SymbolID) bool
	IsModule(id SymbolID) bool
	// TypeMembers lists the type members of a class in declaration order.
	TypeMembers(class SymbolID) []MemberInfo
	// BaseTypeArgs views an instantiation of sub as an instantiation of its
	// ancestor sup. The result has one entry per type member of sup.
	BaseTypeArgs(sub SymbolID, subArgs []Type, sup SymbolID) []Type
	// Bounds returns the resolved bounds of a type parameter. ok is false
	// while the bounds are still pending resolution.
	Bounds(p TypeParam) (b Bounds, ok bool)
	// EnumCases returns the case types of an enum class, or nil.
	EnumCases(class SymbolID) []Type
	Array(elem Type) Type
	Hash(key, value Type) Type
	// KeyType is Symbol for symbol shape keys and String otherwise.
	KeyType(symbol bool) Type
}

// MemberInfo describes one type member of a class.
type MemberInfo struct {
	Name     string
	Variance Variance
	Fixed    Type // non-nil for fixed members
}

// Bounds of a type parameter. Nil fields are unbounded.
type Bounds struct {
	Upper Type
	Lower Type
}
