package typesystem

import "sort"

// NewUnion builds the canonical T.any of the given types. It flattens nested
// unions, drops T.noreturn members, lets T.untyped absorb everything and
// removes duplicates. It performs no subtype pruning; Lub does that.
func NewUnion(members ...Type) Type {
	flat := make([]Type, 0, len(members))
	for _, m := range members {
		switch m := m.(type) {
		case nil, NoReturn:
		case Untyped:
			return Untyped{}
		case Union:
			flat = append(flat, m.Members...)
		default:
			flat = append(flat, m)
		}
	}
	flat = dedupeSorted(flat)
	switch len(flat) {
	case 0:
		return NoReturn{}
	case 1:
		return flat[0]
	}
	return Union{Members: flat}
}

// NewIntersection builds the canonical T.all of the given types. T.untyped
// members are dropped and any T.noreturn member collapses the whole value.
func NewIntersection(members ...Type) Type {
	flat := make([]Type, 0, len(members))
	for _, m := range members {
		switch m := m.(type) {
		case nil, Untyped:
		case NoReturn:
			return NoReturn{}
		case Intersection:
			flat = append(flat, m.Members...)
		default:
			flat = append(flat, m)
		}
	}
	flat = dedupeSorted(flat)
	switch len(flat) {
	case 0:
		return Untyped{}
	case 1:
		return flat[0]
	}
	return Intersection{Members: flat}
}

func dedupeSorted(ts []Type) []Type {
	seen := make(map[string]bool, len(ts))
	out := ts[:0:0]
	for _, t := range ts {
		k := t.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].String(), out[j].String()
		if si != sj {
			return si < sj
		}
		return out[i].key() < out[j].key()
	})
	return out
}

// Members returns the members of a union, or t itself.
func Members(t Type) []Type {
	if u, ok := t.(Union); ok {
		return u.Members
	}
	return []Type{t}
}
