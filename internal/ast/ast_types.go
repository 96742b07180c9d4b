package ast

import "github.com/funvibe/sigcheck/internal/token"

// TypeName is a nominal type, optionally applied: `Foo`, `T::Array[Integer]`.
type TypeName struct {
	Loc  token.Loc
	Ref  *ConstRef
	Args []TypeExpr
}

// TypeNilable is `T.nilable(Inner)`.
type TypeNilable struct {
	Loc   token.Loc
	Inner TypeExpr
}

// TypeAny is `T.any(...)`.
type TypeAny struct {
	Loc     token.Loc
	Members []TypeExpr
}

// TypeAll is `T.all(...)`.
type TypeAll struct {
	Loc     token.Loc
	Members []TypeExpr
}

// TypeTuple is `[A, B]`.
type TypeTuple struct {
	Loc   token.Loc
	Elems []TypeExpr
}

// TypeShape is `{a: A, "b" => B}`.
type TypeShape struct {
	Loc    token.Loc
	Fields []*ShapeField
}

type ShapeField struct {
	Loc    token.Loc
	Key    string
	Symbol bool
	Type   TypeExpr
}

type TypeUntyped struct{ Loc token.Loc }
type TypeNoReturn struct{ Loc token.Loc }

// TypeSelf is `T.self_type`.
type TypeSelf struct{ Loc token.Loc }

// TypeParamRef is `T.type_parameter(:U)`.
type TypeParamRef struct {
	Loc  token.Loc
	Name string
}

// TypeClassOf is `T.class_of(Foo)`.
type TypeClassOf struct {
	Loc token.Loc
	Ref *ConstRef
}

func (t *TypeName) GetLoc() token.Loc     { return t.Loc }
func (t *TypeNilable) GetLoc() token.Loc  { return t.Loc }
func (t *TypeAny) GetLoc() token.Loc      { return t.Loc }
func (t *TypeAll) GetLoc() token.Loc      { return t.Loc }
func (t *TypeTuple) GetLoc() token.Loc    { return t.Loc }
func (t *TypeShape) GetLoc() token.Loc    { return t.Loc }
func (t *TypeUntyped) GetLoc() token.Loc  { return t.Loc }
func (t *TypeNoReturn) GetLoc() token.Loc { return t.Loc }
func (t *TypeSelf) GetLoc() token.Loc     { return t.Loc }
func (t *TypeParamRef) GetLoc() token.Loc { return t.Loc }
func (t *TypeClassOf) GetLoc() token.Loc  { return t.Loc }

func (t *TypeName) typeNode()     {}
func (t *TypeNilable) typeNode()  {}
func (t *TypeAny) typeNode()      {}
func (t *TypeAll) typeNode()      {}
func (t *TypeTuple) typeNode()    {}
func (t *TypeShape) typeNode()    {}
func (t *TypeUntyped) typeNode()  {}
func (t *TypeNoReturn) typeNode() {}
func (t *TypeSelf) typeNode()     {}
func (t *TypeParamRef) typeNode() {}
func (t *TypeClassOf) typeNode()  {}
