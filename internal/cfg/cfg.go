// Package cfg lowers method bodies into control flow graphs of basic blocks.
// Every expression value lives in a local: user variables and parameters
// keep their names, intermediate values get numbered temporaries.
package cfg

import (
	"fmt"
	"strings"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/token"
)

// LocalID indexes CFG.Locals.
type LocalID int

// NoLocal marks a missing operand, e.g. the implicit self receiver.
const NoLocal LocalID = -1

// Local is a variable of the method. MinLoops is the smallest loop depth at
// which the local is read or written; a local whose MinLoops is below the
// depth of a loop lives across iterations of that loop.
type Local struct {
	Name         string
	User         bool
	MinLoops     int
	MaxLoopWrite int
}

// Binding assigns the value of an instruction to Target. Read bindings have
// no target. Synthetic bindings are introduced by lowering and never count
// as user code.
type Binding struct {
	Target    LocalID
	Loc       token.Loc
	Value     Instruction
	Synthetic bool
}

// ExitKind says how control leaves a block.
type ExitKind int

const (
	// ExitGoto continues at Then.
	ExitGoto ExitKind = iota
	// ExitBranch continues at Then when Cond is truthy, else at Else.
	ExitBranch
	// ExitMayRaise continues at Then, or at the rescue handler Else when the
	// last call raises.
	ExitMayRaise
	// ExitTerminal has no successors. Only the exit block uses it.
	ExitTerminal
)

func (k ExitKind) String() string {
	return [...]string{"goto", "branch", "may-raise", "terminal"}[k]
}

type Exit struct {
	Kind ExitKind
	Cond LocalID
	Then *BasicBlock
	Else *BasicBlock
	Loc  token.Loc
}

// BasicBlock is a straight-line sequence of bindings. OuterLoops is the
// number of loops enclosing the block; LoopHeader marks the block a loop's
// back edges return to.
type BasicBlock struct {
	ID         int
	Bindings   []Binding
	Exit       Exit
	Preds      []*BasicBlock
	OuterLoops int
	LoopHeader bool
}

// Succs returns the successors in edge order, without duplicates.
func (b *BasicBlock) Succs() []*BasicBlock {
	switch b.Exit.Kind {
	case ExitGoto:
		return []*BasicBlock{b.Exit.Then}
	case ExitBranch, ExitMayRaise:
		if b.Exit.Then == b.Exit.Else {
			return []*BasicBlock{b.Exit.Then}
		}
		return []*BasicBlock{b.Exit.Then, b.Exit.Else}
	}
	return nil
}

// CFG is the graph of one method body.
type CFG struct {
	Method *ast.MethodDef
	Entry  *BasicBlock
	Exit   *BasicBlock
	Blocks []*BasicBlock
	Locals []Local
	// Params holds the local of each method parameter in declaration order.
	Params []LocalID
	// Errors are structural problems found while lowering.
	Errors []*diagnostics.DiagnosticError

	rpo []*BasicBlock
}

// Local returns the local with the given id.
func (c *CFG) Local(id LocalID) *Local { return &c.Locals[id] }

// ReversePostorder lists every block so that, back edges aside, a block
// comes after all of its predecessors. Blocks unreachable from the entry
// follow in creation order.
func (c *CFG) ReversePostorder() []*BasicBlock {
	return c.rpo
}

func (c *CFG) computeOrder() {
	seen := make([]bool, len(c.Blocks))
	var post []*BasicBlock
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		seen[b.ID] = true
		for _, s := range b.Succs() {
			if !seen[s.ID] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(c.Entry)
	rpo := make([]*BasicBlock, 0, len(c.Blocks))
	for i := len(post) - 1; i >= 0; i-- {
		rpo = append(rpo, post[i])
	}
	for _, b := range c.Blocks {
		if !seen[b.ID] {
			var rest []*BasicBlock
			post = nil
			visit(b)
			for i := len(post) - 1; i >= 0; i-- {
				rest = append(rest, post[i])
			}
			rpo = append(rpo, rest...)
		}
	}
	c.rpo = rpo
}

// computeLoopDepths fills MinLoops and MaxLoopWrite of every local.
func (c *CFG) computeLoopDepths() {
	const unset = int(^uint(0) >> 1)
	for i := range c.Locals {
		c.Locals[i].MinLoops = unset
		c.Locals[i].MaxLoopWrite = 0
	}
	touch := func(id LocalID, depth int) {
		if id == NoLocal {
			return
		}
		if l := &c.Locals[id]; depth < l.MinLoops {
			l.MinLoops = depth
		}
	}
	for _, b := range c.Blocks {
		for _, bind := range b.Bindings {
			if bind.Target != NoLocal {
				touch(bind.Target, b.OuterLoops)
				if l := &c.Locals[bind.Target]; b.OuterLoops > l.MaxLoopWrite {
					l.MaxLoopWrite = b.OuterLoops
				}
			}
			for _, u := range Uses(bind.Value) {
				touch(u, b.OuterLoops)
			}
		}
		if b.Exit.Kind == ExitBranch {
			touch(b.Exit.Cond, b.OuterLoops)
		}
	}
	// Parameters are written on entry.
	for _, p := range c.Params {
		c.Locals[p].MinLoops = 0
	}
	for i := range c.Locals {
		if c.Locals[i].MinLoops == unset {
			c.Locals[i].MinLoops = 0
		}
	}
}

// String dumps the graph for debugging and tests.
func (c *CFG) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s {\n", c.Method.Name)
	for _, b := range c.rpo {
		fmt.Fprintf(&sb, "bb%d", b.ID)
		var preds []string
		for _, p := range b.Preds {
			preds = append(preds, fmt.Sprintf("bb%d", p.ID))
		}
		fmt.Fprintf(&sb, "(loops=%d", b.OuterLoops)
		if b.LoopHeader {
			sb.WriteString(", header")
		}
		if len(preds) > 0 {
			sb.WriteString(", preds=" + strings.Join(preds, ","))
		}
		sb.WriteString("):\n")
		for _, bind := range b.Bindings {
			sb.WriteString("    ")
			if bind.Target != NoLocal {
				sb.WriteString(c.localName(bind.Target) + " = ")
			}
			sb.WriteString(bind.Value.show(c))
			sb.WriteByte('\n')
		}
		switch b.Exit.Kind {
		case ExitGoto:
			fmt.Fprintf(&sb, "    goto bb%d\n", b.Exit.Then.ID)
		case ExitBranch:
			fmt.Fprintf(&sb, "    branch %s ? bb%d : bb%d\n", c.localName(b.Exit.Cond), b.Exit.Then.ID, b.Exit.Else.ID)
		case ExitMayRaise:
			fmt.Fprintf(&sb, "    goto bb%d rescue bb%d\n", b.Exit.Then.ID, b.Exit.Else.ID)
		default:
			sb.WriteString("    exit\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (c *CFG) localName(id LocalID) string {
	if id == NoLocal {
		return "self"
	}
	return c.Locals[id].Name
}
