package typesystem

// Variance of a class type member.
type Variance int

const (
	Invariant Variance = iota
	Covariant
	Contravariant
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return ":out"
	case Contravariant:
		return ":in"
	default:
		return "invariant"
	}
}

// Flip swaps co- and contravariance.
func (v Variance) Flip() Variance {
	switch v {
	case Covariant:
		return Contravariant
	case Contravariant:
		return Covariant
	}
	return v
}

// Compose returns the variance of a position nested inside a position of
// variance outer.
func (v Variance) Compose(inner Variance) Variance {
	switch v {
	case Covariant:
		return inner
	case Contravariant:
		return inner.Flip()
	}
	return Invariant
}
