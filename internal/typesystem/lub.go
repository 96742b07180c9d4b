package typesystem

// Lub returns the least upper bound of a and b. Unrelated classes are joined
// into a union; the class hierarchy is never searched for a common ancestor.
func Lub(h Hierarchy, a, b Type) Type {
	if Equal(a, b) {
		return a
	}
	switch {
	case IsUntyped(a) || IsUntyped(b):
		return Untyped{}
	case IsNoReturn(a):
		return b
	case IsNoReturn(b):
		return a
	case IsVoid(a) || IsVoid(b):
		return Void{}
	}

	members := append([]Type(nil), Members(a)...)
	for _, m := range Members(b) {
		merged := false
		for i, e := range members {
			if r, ok := tryMerge(h, e, m); ok {
				members[i] = r
				merged = true
				break
			}
		}
		if !merged {
			members = append(members, m)
		}
	}
	return NewUnion(pruneSubsumed(h, members)...)
}

// LubAll folds Lub over ts, starting from T.noreturn.
func LubAll(h Hierarchy, ts ...Type) Type {
	var out Type = NoReturn{}
	for _, t := range ts {
		out = Lub(h, out, t)
	}
	return out
}

// tryMerge joins two union members into one when that loses no precision.
func tryMerge(h Hierarchy, a, b Type) (Type, bool) {
	if IsSubtype(h, b, a) {
		return a, true
	}
	if IsSubtype(h, a, b) {
		return b, true
	}
	switch a := a.(type) {
	case ClassType:
		bc, ok := b.(ClassType)
		if !ok || a.Symbol != bc.Symbol || len(a.Args) == 0 {
			return nil, false
		}
		members := h.TypeMembers(a.Symbol)
		args := make([]Type, len(a.Args))
		for i := range a.Args {
			x, y := a.Args[i], argAt(bc.Args, i)
			variance := Invariant
			if i < len(members) {
				variance = members[i].Variance
				if members[i].Fixed != nil {
					args[i] = x
					continue
				}
			}
			switch variance {
			case Covariant:
				args[i] = Lub(h, x, y)
			case Contravariant:
				args[i] = Glb(h, x, y)
			default:
				if !IsSubtype(h, x, y) || !IsSubtype(h, y, x) {
					return nil, false
				}
				args[i] = x
			}
		}
		return ClassType{Symbol: a.Symbol, Name: a.Name, Args: args}, true
	case Tuple:
		bt, ok := b.(Tuple)
		if !ok || len(a.Elems) != len(bt.Elems) {
			return nil, false
		}
		elems := make([]Type, len(a.Elems))
		for i := range a.Elems {
			elems[i] = Lub(h, a.Elems[i], bt.Elems[i])
		}
		return Tuple{Elems: elems}, true
	case Shape:
		bs, ok := b.(Shape)
		if !ok || len(a.Fields) != len(bs.Fields) {
			return nil, false
		}
		fields := make([]ShapeField, len(a.Fields))
		for i, f := range a.Fields {
			other, ok := bs.Field(f.Key, f.Symbol)
			if !ok {
				return nil, false
			}
			fields[i] = ShapeField{Key: f.Key, Symbol: f.Symbol, Type: Lub(h, f.Type, other)}
		}
		return NewShape(fields), true
	}
	return nil, false
}

// pruneSubsumed drops members that are strict subtypes of another member.
func pruneSubsumed(h Hierarchy, ts []Type) []Type {
	out := make([]Type, 0, len(ts))
	for i, t := range ts {
		subsumed := false
		for j, o := range ts {
			if i == j || Equal(t, o) {
				continue
			}
			if IsSubtype(h, t, o) && !IsSubtype(h, o, t) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, t)
		}
	}
	return out
}

// Glb returns the greatest lower bound of a and b. Two unrelated concrete
// classes have no common instances and collapse to T.noreturn; anything
// involving a module stays an intersection.
func Glb(h Hierarchy, a, b Type) Type {
	if Equal(a, b) {
		return a
	}
	switch {
	case IsUntyped(a) || IsVoid(a):
		return b
	case IsUntyped(b) || IsVoid(b):
		return a
	case IsNoReturn(a) || IsNoReturn(b):
		return NoReturn{}
	}
	if IsSubtype(h, a, b) {
		return a
	}
	if IsSubtype(h, b, a) {
		return b
	}

	if au, ok := a.(Union); ok {
		return glbDistribute(h, au, b)
	}
	if bu, ok := b.(Union); ok {
		return glbDistribute(h, bu, a)
	}

	_, aInter := a.(Intersection)
	_, bInter := b.(Intersection)
	if aInter || bInter {
		var members []Type
		if ai, ok := a.(Intersection); ok {
			members = append(members, ai.Members...)
		} else {
			members = append(members, a)
		}
		if bi, ok := b.(Intersection); ok {
			members = append(members, bi.Members...)
		} else {
			members = append(members, b)
		}
		return intersect(h, members)
	}

	switch a := a.(type) {
	case ClassType:
		switch b := b.(type) {
		case ClassType:
			return glbClasses(h, a, b)
		case Tuple, Shape:
			if h.IsModule(a.Symbol) {
				return NewIntersection(a, b)
			}
			return glbLiteral(h, a, b)
		}
	case Tuple:
		switch b := b.(type) {
		case Tuple:
			if len(a.Elems) != len(b.Elems) {
				return NoReturn{}
			}
			elems := make([]Type, len(a.Elems))
			for i := range a.Elems {
				elems[i] = Glb(h, a.Elems[i], b.Elems[i])
				if IsNoReturn(elems[i]) {
					return NoReturn{}
				}
			}
			return Tuple{Elems: elems}
		case ClassType:
			return Glb(h, b, a)
		case Shape:
			return NoReturn{}
		}
	case Shape:
		switch b := b.(type) {
		case Shape:
			if len(a.Fields) != len(b.Fields) {
				return NoReturn{}
			}
			fields := make([]ShapeField, len(a.Fields))
			for i, f := range a.Fields {
				other, ok := b.Field(f.Key, f.Symbol)
				if !ok {
					return NoReturn{}
				}
				t := Glb(h, f.Type, other)
				if IsNoReturn(t) {
					return NoReturn{}
				}
				fields[i] = ShapeField{Key: f.Key, Symbol: f.Symbol, Type: t}
			}
			return NewShape(fields)
		case ClassType:
			return Glb(h, b, a)
		case Tuple:
			return NoReturn{}
		}
	}
	return NewIntersection(a, b)
}

// glbLiteral meets a class with a tuple or shape. Only the literal's own
// container class has instances in common with it, and the meet narrows
// each element.
func glbLiteral(h Hierarchy, c ClassType, lit Type) Type {
	switch lit := lit.(type) {
	case Tuple:
		up, ok := TupleUpcast(h, lit).(ClassType)
		if !ok || up.Symbol != c.Symbol {
			return NoReturn{}
		}
		elem := argAt(c.Args, 0)
		elems := make([]Type, len(lit.Elems))
		for i, e := range lit.Elems {
			elems[i] = Glb(h, e, elem)
			if IsNoReturn(elems[i]) {
				return NoReturn{}
			}
		}
		return Tuple{Elems: elems}
	case Shape:
		up, ok := ShapeUpcast(h, lit).(ClassType)
		if !ok || up.Symbol != c.Symbol {
			return NoReturn{}
		}
		key, val := argAt(c.Args, 0), argAt(c.Args, 1)
		fields := make([]ShapeField, len(lit.Fields))
		for i, f := range lit.Fields {
			if IsNoReturn(Glb(h, h.KeyType(f.Symbol), key)) {
				return NoReturn{}
			}
			t := Glb(h, f.Type, val)
			if IsNoReturn(t) {
				return NoReturn{}
			}
			fields[i] = ShapeField{Key: f.Key, Symbol: f.Symbol, Type: t}
		}
		return NewShape(fields)
	}
	return NoReturn{}
}

func glbDistribute(h Hierarchy, u Union, other Type) Type {
	var out Type = NoReturn{}
	for _, m := range u.Members {
		out = Lub(h, out, Glb(h, m, other))
	}
	return out
}

func glbClasses(h Hierarchy, a, b ClassType) Type {
	if a.Symbol == b.Symbol {
		members := h.TypeMembers(a.Symbol)
		args := make([]Type, len(a.Args))
		for i := range a.Args {
			x, y := a.Args[i], argAt(b.Args, i)
			variance := Invariant
			if i < len(members) {
				variance = members[i].Variance
				if members[i].Fixed != nil {
					args[i] = x
					continue
				}
			}
			switch variance {
			case Covariant:
				args[i] = Glb(h, x, y)
			case Contravariant:
				args[i] = Lub(h, x, y)
			default:
				if !IsSubtype(h, x, y) || !IsSubtype(h, y, x) {
					return disjointOrIntersection(h, a, b)
				}
				args[i] = x
			}
		}
		return ClassType{Symbol: a.Symbol, Name: a.Name, Args: args}
	}
	return disjointOrIntersection(h, a, b)
}

func disjointOrIntersection(h Hierarchy, a, b ClassType) Type {
	if !h.IsModule(a.Symbol) && !h.IsModule(b.Symbol) {
		return NoReturn{}
	}
	return NewIntersection(a, b)
}

// intersect combines intersection members pairwise, collapsing to
// T.noreturn when two members are disjoint classes.
func intersect(h Hierarchy, members []Type) Type {
	out := make([]Type, 0, len(members))
	for _, m := range members {
		merged := false
		for i, e := range out {
			if IsSubtype(h, m, e) {
				out[i] = m
				merged = true
				break
			}
			if IsSubtype(h, e, m) {
				merged = true
				break
			}
			ec, eok := e.(ClassType)
			mc, mok := m.(ClassType)
			if eok && mok && !h.IsModule(ec.Symbol) && !h.IsModule(mc.Symbol) {
				return NoReturn{}
			}
		}
		if !merged {
			out = append(out, m)
		}
	}
	return NewIntersection(out...)
}

// Subtract approximates the values of from that are not values of remove.
// Enum classes are expanded into their cases first, so removing every case
// leaves nothing.
func Subtract(h Hierarchy, from, remove Type) Type {
	if IsUntyped(from) || IsUntyped(remove) {
		return from
	}
	if IsSubtype(h, from, remove) {
		return NoReturn{}
	}
	switch f := from.(type) {
	case Union:
		var out Type = NoReturn{}
		for _, m := range f.Members {
			out = Lub(h, out, Subtract(h, m, remove))
		}
		return out
	case ClassType:
		if cases := h.EnumCases(f.Symbol); len(cases) > 0 && anySubtype(h, cases, remove) {
			return Subtract(h, NewUnion(cases...), remove)
		}
	}
	if ru, ok := remove.(Union); ok {
		out := from
		for _, m := range ru.Members {
			out = Subtract(h, out, m)
		}
		return out
	}
	return from
}

func anySubtype(h Hierarchy, ts []Type, of Type) bool {
	for _, t := range ts {
		if IsSubtype(h, t, of) {
			return true
		}
	}
	return false
}

// DropNil removes NilClass from a type, the way T.must does.
func DropNil(h Hierarchy, t Type, nilType Type) Type {
	return Subtract(h, t, nilType)
}
