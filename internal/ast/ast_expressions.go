package ast

import "github.com/funvibe/sigcheck/internal/token"

type IntLit struct {
	Loc   token.Loc
	Value int64
}

type FloatLit struct {
	Loc   token.Loc
	Value float64
}

type StringLit struct {
	Loc   token.Loc
	Value string
}

type SymbolLit struct {
	Loc   token.Loc
	Value string
}

type NilLit struct{ Loc token.Loc }
type TrueLit struct{ Loc token.Loc }
type FalseLit struct{ Loc token.Loc }

func (e *IntLit) GetLoc() token.Loc    { return e.Loc }
func (e *FloatLit) GetLoc() token.Loc  { return e.Loc }
func (e *StringLit) GetLoc() token.Loc { return e.Loc }
func (e *SymbolLit) GetLoc() token.Loc { return e.Loc }
func (e *NilLit) GetLoc() token.Loc    { return e.Loc }
func (e *TrueLit) GetLoc() token.Loc   { return e.Loc }
func (e *FalseLit) GetLoc() token.Loc  { return e.Loc }
func (e *IntLit) exprNode()            {}
func (e *FloatLit) exprNode()          {}
func (e *StringLit) exprNode()         {}
func (e *SymbolLit) exprNode()         {}
func (e *NilLit) exprNode()            {}
func (e *TrueLit) exprNode()           {}
func (e *FalseLit) exprNode()          {}

type ArrayLit struct {
	Loc   token.Loc
	Elems []Expr
}

func (e *ArrayLit) GetLoc() token.Loc { return e.Loc }
func (e *ArrayLit) exprNode()         {}

type HashLit struct {
	Loc   token.Loc
	Pairs []*HashPair
}

type HashPair struct {
	Key   Expr
	Value Expr
}

func (e *HashLit) GetLoc() token.Loc { return e.Loc }
func (e *HashLit) exprNode()         {}

// Local reads a local variable or a parameter.
type Local struct {
	Loc  token.Loc
	Name string
}

func (e *Local) GetLoc() token.Loc { return e.Loc }
func (e *Local) exprNode()         {}

// Ivar reads an instance variable; Name includes the leading @.
type Ivar struct {
	Loc  token.Loc
	Name string
}

func (e *Ivar) GetLoc() token.Loc { return e.Loc }
func (e *Ivar) exprNode()         {}

type Self struct{ Loc token.Loc }

func (e *Self) GetLoc() token.Loc { return e.Loc }
func (e *Self) exprNode()         {}

// Assign writes a *Local or an *Ivar.
type Assign struct {
	Loc    token.Loc
	Target Expr
	Value  Expr
}

func (e *Assign) GetLoc() token.Loc { return e.Loc }
func (e *Assign) exprNode()         {}

// Call is a method send. A nil Recv means the implicit self.
type Call struct {
	Loc       token.Loc
	Recv      Expr
	Method    string
	MethodLoc token.Loc
	Args      []Expr
	KwArgs    []*KwArg
	Block     *BlockArg
}

func (e *Call) GetLoc() token.Loc { return e.Loc }
func (e *Call) exprNode()         {}

type KwArg struct {
	Loc   token.Loc
	Name  string
	Value Expr
}

// BlockArg is a `do |params| ... end` block passed to a call.
type BlockArg struct {
	Loc    token.Loc
	Params []*Param
	Body   []Expr
}

func (e *BlockArg) GetLoc() token.Loc { return e.Loc }

type If struct {
	Loc  token.Loc
	Cond Expr
	Then []Expr
	Else []Expr
}

func (e *If) GetLoc() token.Loc { return e.Loc }
func (e *If) exprNode()         {}

// While loops while Cond is truthy, or while it is falsy when Until is set.
type While struct {
	Loc   token.Loc
	Cond  Expr
	Body  []Expr
	Until bool
}

func (e *While) GetLoc() token.Loc { return e.Loc }
func (e *While) exprNode()         {}

// Case is `case Subject when P1, P2 then ... else ... end`. A nil Subject
// makes every pattern a plain condition.
type Case struct {
	Loc     token.Loc
	Subject Expr
	Whens   []*When
	Else    []Expr
}

type When struct {
	Loc      token.Loc
	Patterns []Expr
	Body     []Expr
}

func (e *Case) GetLoc() token.Loc { return e.Loc }
func (e *Case) exprNode()         {}

type And struct {
	Loc         token.Loc
	Left, Right Expr
}

type Or struct {
	Loc         token.Loc
	Left, Right Expr
}

type Not struct {
	Loc   token.Loc
	Value Expr
}

func (e *And) GetLoc() token.Loc { return e.Loc }
func (e *Or) GetLoc() token.Loc  { return e.Loc }
func (e *Not) GetLoc() token.Loc { return e.Loc }
func (e *And) exprNode()         {}
func (e *Or) exprNode()          {}
func (e *Not) exprNode()         {}

type Return struct {
	Loc   token.Loc
	Value Expr
}

type Break struct {
	Loc   token.Loc
	Value Expr
}

type Next struct {
	Loc   token.Loc
	Value Expr
}

func (e *Return) GetLoc() token.Loc { return e.Loc }
func (e *Break) GetLoc() token.Loc  { return e.Loc }
func (e *Next) GetLoc() token.Loc   { return e.Loc }
func (e *Return) exprNode()         {}
func (e *Break) exprNode()          {}
func (e *Next) exprNode()           {}

// Begin is `begin ... rescue ... else ... ensure ... end`.
type Begin struct {
	Loc     token.Loc
	Body    []Expr
	Rescues []*Rescue
	Else    []Expr
	Ensure  []Expr
}

type Rescue struct {
	Loc     token.Loc
	Classes []*ConstRef // empty means StandardError
	Var     string
	Body    []Expr
}

func (e *Begin) GetLoc() token.Loc { return e.Loc }
func (e *Begin) exprNode()         {}

// Let is `T.let(value, Type)`.
type Let struct {
	Loc   token.Loc
	Value Expr
	Type  TypeExpr
}

func (e *Let) GetLoc() token.Loc { return e.Loc }
func (e *Let) exprNode()         {}

type CastKind int

const (
	CastCast CastKind = iota
	CastMust
	CastUnsafe
	CastAssertType
)

// Cast covers T.cast, T.must, T.unsafe and T.assert_type!. Type is nil for
// must and unsafe.
type Cast struct {
	Loc   token.Loc
	Kind  CastKind
	Value Expr
	Type  TypeExpr
}

func (e *Cast) GetLoc() token.Loc { return e.Loc }
func (e *Cast) exprNode()         {}

// Absurd is `T.absurd(value)`.
type Absurd struct {
	Loc   token.Loc
	Value Expr
}

func (e *Absurd) GetLoc() token.Loc { return e.Loc }
func (e *Absurd) exprNode()         {}

// RevealType is `T.reveal_type(value)`.
type RevealType struct {
	Loc   token.Loc
	Value Expr
}

func (e *RevealType) GetLoc() token.Loc { return e.Loc }
func (e *RevealType) exprNode()         {}
