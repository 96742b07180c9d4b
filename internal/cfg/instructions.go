package cfg

import (
	"fmt"
	"strings"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/token"
)

// Instruction is the right-hand side of a binding.
type Instruction interface {
	show(c *CFG) string
}

// Ident copies another local.
type Ident struct{ From LocalID }

// Read observes a user variable where the source reads it.
type Read struct{ Local LocalID }

// Literal is an integer, float, string, symbol, nil, true or false.
type Literal struct{ Node ast.Expr }

type SelfRef struct{}

// LoadParam produces the value of a method parameter.
type LoadParam struct{ Param *ast.Param }

// ParamDefault evaluates the default value of an optional parameter.
type ParamDefault struct {
	Param *ast.Param
	Value LocalID
}

// LoadBlockParam produces a block parameter. Block parameters are untyped.
type LoadBlockParam struct{ Param *ast.Param }

type ConstRead struct{ Ref *ast.ConstRef }

type FieldRead struct{ Name string }

type FieldWrite struct {
	Name  string
	Value LocalID
}

// KwArg is a keyword argument of a send.
type KwArg struct {
	Name  string
	Value LocalID
	Loc   token.Loc
}

// Send is a method call. Recv is NoLocal for the implicit self.
type Send struct {
	Recv      LocalID
	Method    string
	MethodLoc token.Loc
	Args      []LocalID
	ArgLocs   []token.Loc
	KwArgs    []KwArg
	HasBlock  bool
	Node      *ast.Call
}

type ArrayLit struct{ Elems []LocalID }

// HashLit keeps the key nodes so literal keys can form a shape.
type HashLit struct {
	Keys     []LocalID
	KeyNodes []ast.Expr
	Values   []LocalID
}

// Cast is T.cast, T.must, T.unsafe or T.assert_type!.
type Cast struct {
	Kind  ast.CastKind
	Value LocalID
	Type  ast.TypeExpr
	Node  *ast.Cast
}

// Let is T.let. Bound directly to a user variable it declares that
// variable's type.
type Let struct {
	Value LocalID
	Type  ast.TypeExpr
	Node  *ast.Let
}

type Absurd struct{ Value LocalID }

type RevealType struct{ Value LocalID }

// Return leaves the method with Value. Implicit returns come from the last
// expression of the body.
type Return struct {
	Value    LocalID
	ValueLoc token.Loc
	Implicit bool
}

// RescueMatch decides whether a rescue clause handles the pending exception.
type RescueMatch struct{ Classes []*ast.ConstRef }

// ExceptionValue is the exception bound by `rescue => e`.
type ExceptionValue struct{ Classes []*ast.ConstRef }

// Unknown is a condition the checker cannot decide, like whether a loop
// passed to a block runs again.
type Unknown struct{}

// Unanalyzable stands for nested definitions inside a body.
type Unanalyzable struct{ Node ast.Expr }

// Uses lists the locals an instruction reads.
func Uses(ins Instruction) []LocalID {
	var out []LocalID
	add := func(ids ...LocalID) {
		for _, id := range ids {
			if id != NoLocal {
				out = append(out, id)
			}
		}
	}
	switch ins := ins.(type) {
	case *Ident:
		add(ins.From)
	case *Read:
		add(ins.Local)
	case *ParamDefault:
		add(ins.Value)
	case *FieldWrite:
		add(ins.Value)
	case *Send:
		add(ins.Recv)
		add(ins.Args...)
		for _, kw := range ins.KwArgs {
			add(kw.Value)
		}
	case *ArrayLit:
		add(ins.Elems...)
	case *HashLit:
		add(ins.Keys...)
		add(ins.Values...)
	case *Cast:
		add(ins.Value)
	case *Let:
		add(ins.Value)
	case *Absurd:
		add(ins.Value)
	case *RevealType:
		add(ins.Value)
	case *Return:
		add(ins.Value)
	}
	return out
}

func (i *Ident) show(c *CFG) string          { return c.localName(i.From) }
func (i *Read) show(c *CFG) string           { return "read " + c.localName(i.Local) }
func (i *SelfRef) show(*CFG) string          { return "self" }
func (i *LoadParam) show(*CFG) string        { return "param " + i.Param.Name }
func (i *LoadBlockParam) show(*CFG) string   { return "blockparam " + i.Param.Name }
func (i *ConstRead) show(*CFG) string        { return i.Ref.String() }
func (i *FieldRead) show(*CFG) string        { return i.Name }
func (i *Unknown) show(*CFG) string          { return "<unknown>" }
func (i *Unanalyzable) show(*CFG) string     { return "<unanalyzable>" }
func (i *ExceptionValue) show(*CFG) string   { return "<exception " + refNames(i.Classes) + ">" }
func (i *RescueMatch) show(*CFG) string      { return "<rescue? " + refNames(i.Classes) + ">" }
func (i *Absurd) show(c *CFG) string         { return "T.absurd(" + c.localName(i.Value) + ")" }
func (i *RevealType) show(c *CFG) string     { return "T.reveal_type(" + c.localName(i.Value) + ")" }
func (i *FieldWrite) show(c *CFG) string     { return i.Name + " := " + c.localName(i.Value) }
func (i *ParamDefault) show(c *CFG) string   { return "default " + i.Param.Name + " = " + c.localName(i.Value) }
func (i *Let) show(c *CFG) string            { return "T.let(" + c.localName(i.Value) + ")" }
func (i *ArrayLit) show(c *CFG) string       { return "[" + localNames(c, i.Elems) + "]" }

func (i *Literal) show(*CFG) string {
	switch n := i.Node.(type) {
	case *ast.IntLit:
		return fmt.Sprint(n.Value)
	case *ast.FloatLit:
		return fmt.Sprint(n.Value)
	case *ast.StringLit:
		return fmt.Sprintf("%q", n.Value)
	case *ast.SymbolLit:
		return ":" + n.Value
	case *ast.TrueLit:
		return "true"
	case *ast.FalseLit:
		return "false"
	}
	return "nil"
}

func (i *Send) show(c *CFG) string {
	args := localNames(c, i.Args)
	for _, kw := range i.KwArgs {
		if args != "" {
			args += ", "
		}
		args += kw.Name + ": " + c.localName(kw.Value)
	}
	s := c.localName(i.Recv) + "." + i.Method + "(" + args + ")"
	if i.HasBlock {
		s += " {}"
	}
	return s
}

func (i *HashLit) show(c *CFG) string {
	parts := make([]string, len(i.Keys))
	for j := range i.Keys {
		parts[j] = c.localName(i.Keys[j]) + " => " + c.localName(i.Values[j])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (i *Cast) show(c *CFG) string {
	name := [...]string{"T.cast", "T.must", "T.unsafe", "T.assert_type!"}[i.Kind]
	return name + "(" + c.localName(i.Value) + ")"
}

func (i *Return) show(c *CFG) string {
	if i.Implicit {
		return "return (implicit) " + c.localName(i.Value)
	}
	return "return " + c.localName(i.Value)
}

func localNames(c *CFG, ids []LocalID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = c.localName(id)
	}
	return strings.Join(names, ", ")
}

func refNames(refs []*ast.ConstRef) string {
	if len(refs) == 0 {
		return "StandardError"
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}
