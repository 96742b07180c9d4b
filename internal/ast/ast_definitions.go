package ast

import "github.com/funvibe/sigcheck/internal/token"

// ClassDef is `class Name < Superclass ... end` or `module Name ... end`.
type ClassDef struct {
	Loc        token.Loc
	Name       *ConstRef
	Superclass Expr // nil when omitted; anything but a *ConstRef is dynamic
	IsModule   bool
	Body       []Expr
}

func (c *ClassDef) GetLoc() token.Loc { return c.Loc }
func (c *ClassDef) exprNode()         {}

// ParamKind classifies a method or block parameter.
type ParamKind int

const (
	ParamReq ParamKind = iota
	ParamOpt
	ParamRest
	ParamKw
	ParamKwOpt
	ParamKwRest
	ParamBlock
)

func (k ParamKind) String() string {
	return [...]string{"req", "opt", "rest", "kw", "kwopt", "kwrest", "block"}[k]
}

// IsKeyword reports whether arguments for this parameter are passed by name.
func (k ParamKind) IsKeyword() bool {
	return k == ParamKw || k == ParamKwOpt || k == ParamKwRest
}

type Param struct {
	Loc     token.Loc
	Kind    ParamKind
	Name    string
	Default Expr // ParamOpt and ParamKwOpt only
}

func (p *Param) GetLoc() token.Loc { return p.Loc }

// MethodDef is `def name(params) ... end`; IsSelf marks `def self.name`.
type MethodDef struct {
	Loc     token.Loc
	NameLoc token.Loc
	Name    string
	IsSelf  bool
	Params  []*Param
	Body    []Expr
}

func (m *MethodDef) GetLoc() token.Loc { return m.Loc }
func (m *MethodDef) exprNode()         {}

// Sig is the signature construct immediately preceding a method definition.
type Sig struct {
	Loc         token.Loc
	TypeParams  []string
	Params      []*SigParam
	Returns     TypeExpr // nil when Void
	Void        bool
	Abstract    bool
	Override    bool
	Overridable bool
	Final       bool
	Overload    bool
}

func (s *Sig) GetLoc() token.Loc { return s.Loc }
func (s *Sig) exprNode()         {}

type SigParam struct {
	Loc  token.Loc
	Name string
	Type TypeExpr
}

func (p *SigParam) GetLoc() token.Loc { return p.Loc }

// Include mixes a module into the enclosing class.
type Include struct {
	Loc    token.Loc
	Module *ConstRef
}

func (i *Include) GetLoc() token.Loc { return i.Loc }
func (i *Include) exprNode()         {}

// Variance as written on a type member declaration.
type Variance int

const (
	Invariant Variance = iota
	Covariant
	Contravariant
)

// TypeMemberDef is `Elem = type_member(:out) { {upper: X} }`.
type TypeMemberDef struct {
	Loc      token.Loc
	Name     string
	Variance Variance
	Fixed    TypeExpr
	Upper    TypeExpr
	Lower    TypeExpr
}

func (t *TypeMemberDef) GetLoc() token.Loc { return t.Loc }
func (t *TypeMemberDef) exprNode()         {}

// TypeAlias is `Name = T.type_alias { Type }`.
type TypeAlias struct {
	Loc  token.Loc
	Name string
	Type TypeExpr
}

func (t *TypeAlias) GetLoc() token.Loc { return t.Loc }
func (t *TypeAlias) exprNode()         {}

// ConstDef is a constant assignment `NAME = value`.
type ConstDef struct {
	Loc   token.Loc
	Name  string
	Value Expr
}

func (c *ConstDef) GetLoc() token.Loc { return c.Loc }
func (c *ConstDef) exprNode()         {}

// ClassFlag is one of `abstract!`, `interface!`, `final!`.
type ClassFlag struct {
	Loc  token.Loc
	Flag string
}

func (c *ClassFlag) GetLoc() token.Loc { return c.Loc }
func (c *ClassFlag) exprNode()         {}

const (
	FlagAbstract  = "abstract"
	FlagInterface = "interface"
	FlagFinal     = "final"
)

// Enums declares the cases of a T::Enum subclass.
type Enums struct {
	Loc   token.Loc
	Cases []*EnumCase
}

func (e *Enums) GetLoc() token.Loc { return e.Loc }
func (e *Enums) exprNode()         {}

type EnumCase struct {
	Loc  token.Loc
	Name string
}

func (e *EnumCase) GetLoc() token.Loc { return e.Loc }
