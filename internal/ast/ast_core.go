// Package ast is the tree produced by the external parser. Every node carries
// the source range it was parsed from.
package ast

import (
	"strings"

	"github.com/funvibe/sigcheck/internal/token"
)

// Node is the base interface for all AST nodes.
type Node interface {
	GetLoc() token.Loc
}

// Expr is anything that can appear in a body. Definitions are expressions
// too: class bodies and method bodies share one statement list.
type Expr interface {
	Node
	exprNode()
}

// TypeExpr is a node of the annotation mini-language.
type TypeExpr interface {
	Node
	typeNode()
}

// Sigil is the strictness level a file opts into. Levels are ordered.
type Sigil int

const (
	SigilIgnore Sigil = iota
	SigilFalse
	SigilTrue
	SigilStrict
)

func (s Sigil) String() string {
	switch s {
	case SigilIgnore:
		return "ignore"
	case SigilFalse:
		return "false"
	case SigilStrict:
		return "strict"
	default:
		return "true"
	}
}

// ParseSigil maps the textual sigil to a level. Unknown text means "false",
// which still defines symbols but checks no bodies.
func ParseSigil(s string) Sigil {
	switch strings.TrimSpace(s) {
	case "ignore":
		return SigilIgnore
	case "true":
		return SigilTrue
	case "strict", "strong":
		return SigilStrict
	default:
		return SigilFalse
	}
}

// Program is the root node of one parsed file.
type Program struct {
	Loc   token.Loc
	File  string
	Sigil Sigil
	Body  []Expr
}

func (p *Program) GetLoc() token.Loc { return p.Loc }

// ConstRef is a possibly scoped constant reference: Foo, A::B, ::Root.
type ConstRef struct {
	Loc   token.Loc
	Scope *ConstRef // nil for an unscoped name
	Name  string
	Root  bool // leading ::
}

func (c *ConstRef) GetLoc() token.Loc { return c.Loc }
func (c *ConstRef) exprNode()         {}

// Path returns the names from the outermost scope to c.
func (c *ConstRef) Path() []string {
	if c == nil {
		return nil
	}
	return append(c.Scope.Path(), c.Name)
}

// IsRooted reports whether the outermost segment starts with ::.
func (c *ConstRef) IsRooted() bool {
	for c.Scope != nil {
		c = c.Scope
	}
	return c.Root
}

func (c *ConstRef) String() string {
	s := strings.Join(c.Path(), "::")
	if c.IsRooted() {
		return "::" + s
	}
	return s
}
