package typesystem

// Subst maps type parameters to the types that replace them.
type Subst map[ParamKey]Type

func (t ClassType) Apply(s Subst) Type {
	if len(t.Args) == 0 || len(s) == 0 {
		return t
	}
	return ClassType{Symbol: t.Symbol, Name: t.Name, Args: applyAll(t.Args, s)}
}

func (t Union) Apply(s Subst) Type {
	if len(s) == 0 {
		return t
	}
	return NewUnion(applyAll(t.Members, s)...)
}

func (t Intersection) Apply(s Subst) Type {
	if len(s) == 0 {
		return t
	}
	return NewIntersection(applyAll(t.Members, s)...)
}

func (t Tuple) Apply(s Subst) Type {
	if len(s) == 0 {
		return t
	}
	return Tuple{Elems: applyAll(t.Elems, s)}
}

func (t Shape) Apply(s Subst) Type {
	if len(s) == 0 {
		return t
	}
	fields := make([]ShapeField, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = ShapeField{Key: f.Key, Symbol: f.Symbol, Type: f.Type.Apply(s)}
	}
	return Shape{Fields: fields}
}

func (t TypeParam) Apply(s Subst) Type {
	if r, ok := s[t.Key()]; ok && r != nil {
		return r
	}
	return t
}

func (t SelfType) Apply(Subst) Type { return t }
func (t Untyped) Apply(Subst) Type  { return t }
func (t NoReturn) Apply(Subst) Type { return t }
func (t Void) Apply(Subst) Type     { return t }

func applyAll(ts []Type, s Subst) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = t.Apply(s)
	}
	return out
}

// ReplaceSelf substitutes T.self_type with the receiver type.
func ReplaceSelf(t Type, self Type) Type {
	switch typ := t.(type) {
	case SelfType:
		return self
	case ClassType:
		if len(typ.Args) == 0 {
			return typ
		}
		return ClassType{Symbol: typ.Symbol, Name: typ.Name, Args: replaceSelfAll(typ.Args, self)}
	case Union:
		return NewUnion(replaceSelfAll(typ.Members, self)...)
	case Intersection:
		return NewIntersection(replaceSelfAll(typ.Members, self)...)
	case Tuple:
		return Tuple{Elems: replaceSelfAll(typ.Elems, self)}
	case Shape:
		fields := make([]ShapeField, len(typ.Fields))
		for i, f := range typ.Fields {
			fields[i] = ShapeField{Key: f.Key, Symbol: f.Symbol, Type: ReplaceSelf(f.Type, self)}
		}
		return Shape{Fields: fields}
	}
	return t
}

func replaceSelfAll(ts []Type, self Type) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = ReplaceSelf(t, self)
	}
	return out
}

// ReplaceParams substitutes every free type parameter accepted by keep with
// T.untyped. It is used when a generic could not be instantiated.
func ReplaceParams(t Type, keep func(TypeParam) bool) Type {
	free := t.FreeTypeParams()
	if len(free) == 0 {
		return t
	}
	s := make(Subst)
	for _, p := range free {
		if keep(p) {
			s[p.Key()] = Untyped{}
		}
	}
	return t.Apply(s)
}

// Contains reports whether t mentions the type parameter p.
func Contains(t Type, p TypeParam) bool {
	for _, f := range t.FreeTypeParams() {
		if f.Key() == p.Key() {
			return true
		}
	}
	return false
}
