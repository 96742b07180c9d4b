package typesystem

// IsSubtype reports whether every value of a is a value of b.
func IsSubtype(h Hierarchy, a, b Type) bool {
	if Equal(a, b) {
		return true
	}
	switch b.(type) {
	case Untyped, Void:
		return true
	}
	switch a.(type) {
	case Untyped, NoReturn:
		return true
	case Void:
		return false
	}
	if _, ok := b.(NoReturn); ok {
		return false
	}

	if au, ok := a.(Union); ok {
		for _, m := range au.Members {
			if !IsSubtype(h, m, b) {
				return false
			}
		}
		return true
	}
	if bi, ok := b.(Intersection); ok {
		for _, m := range bi.Members {
			if !IsSubtype(h, a, m) {
				return false
			}
		}
		return true
	}
	if bu, ok := b.(Union); ok {
		for _, m := range bu.Members {
			if IsSubtype(h, a, m) {
				return true
			}
		}
		if ai, ok := a.(Intersection); ok {
			for _, m := range ai.Members {
				if IsSubtype(h, m, b) {
					return true
				}
			}
		}
		return false
	}
	if ai, ok := a.(Intersection); ok {
		for _, m := range ai.Members {
			if IsSubtype(h, m, b) {
				return true
			}
		}
		return false
	}

	if ap, ok := a.(TypeParam); ok {
		bounds := mustBounds(h, ap)
		if bounds.Upper == nil {
			return false
		}
		return IsSubtype(h, bounds.Upper, b)
	}
	if bp, ok := b.(TypeParam); ok {
		bounds := mustBounds(h, bp)
		if bounds.Lower == nil {
			return false
		}
		return IsSubtype(h, a, bounds.Lower)
	}

	switch a := a.(type) {
	case SelfType:
		return false
	case Tuple:
		if bt, ok := b.(Tuple); ok {
			if len(a.Elems) != len(bt.Elems) {
				return false
			}
			for i := range a.Elems {
				if !IsSubtype(h, a.Elems[i], bt.Elems[i]) {
					return false
				}
			}
			return true
		}
		return IsSubtype(h, TupleUpcast(h, a), b)
	case Shape:
		if bs, ok := b.(Shape); ok {
			if len(a.Fields) != len(bs.Fields) {
				return false
			}
			for _, f := range bs.Fields {
				at, ok := a.Field(f.Key, f.Symbol)
				if !ok || !IsSubtype(h, at, f.Type) {
					return false
				}
			}
			return true
		}
		return IsSubtype(h, ShapeUpcast(h, a), b)
	case ClassType:
		bc, ok := b.(ClassType)
		if !ok {
			return false
		}
		if a.Symbol != bc.Symbol && !h.DerivesFrom(a.Symbol, bc.Symbol) {
			return false
		}
		return argsSubtype(h, a, bc)
	}
	return false
}

// argsSubtype compares type arguments once a's class is known to derive
// from b's class.
func argsSubtype(h Hierarchy, a, b ClassType) bool {
	if len(b.Args) == 0 {
		return true
	}
	var aArgs []Type
	if a.Symbol == b.Symbol {
		aArgs = a.Args
	} else {
		aArgs = h.BaseTypeArgs(a.Symbol, a.Args, b.Symbol)
	}
	members := h.TypeMembers(b.Symbol)
	for i, barg := range b.Args {
		aarg := argAt(aArgs, i)
		variance := Invariant
		if i < len(members) {
			if fixed := members[i].Fixed; fixed != nil {
				if !equivalent(h, aarg, fixed) || !equivalent(h, barg, fixed) {
					return false
				}
				continue
			}
			variance = members[i].Variance
		}
		switch variance {
		case Covariant:
			if !IsSubtype(h, aarg, barg) {
				return false
			}
		case Contravariant:
			if !IsSubtype(h, barg, aarg) {
				return false
			}
		default:
			if !IsSubtype(h, aarg, barg) || !IsSubtype(h, barg, aarg) {
				return false
			}
		}
	}
	return true
}

func equivalent(h Hierarchy, a, b Type) bool {
	return IsSubtype(h, a, b) && IsSubtype(h, b, a)
}

func argAt(args []Type, i int) Type {
	if i < len(args) && args[i] != nil {
		return args[i]
	}
	return Untyped{}
}

func mustBounds(h Hierarchy, p TypeParam) Bounds {
	b, ok := h.Bounds(p)
	if !ok {
		Internalf("subtyping against %s before its bounds were resolved", p)
	}
	return b
}

// TupleUpcast views a tuple as T::Array of the join of its elements.
func TupleUpcast(h Hierarchy, t Tuple) Type {
	var elem Type = NoReturn{}
	for _, e := range t.Elems {
		elem = Lub(h, elem, e)
	}
	if len(t.Elems) == 0 {
		elem = Untyped{}
	}
	return h.Array(elem)
}

// ShapeUpcast views a shape as T::Hash of the joins of its keys and values.
func ShapeUpcast(h Hierarchy, s Shape) Type {
	var k, v Type = NoReturn{}, NoReturn{}
	for _, f := range s.Fields {
		k = Lub(h, k, h.KeyType(f.Symbol))
		v = Lub(h, v, f.Type)
	}
	if len(s.Fields) == 0 {
		k, v = Untyped{}, Untyped{}
	}
	return h.Hash(k, v)
}
