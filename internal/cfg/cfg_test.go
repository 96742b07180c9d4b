package cfg

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/checktest"
	"github.com/funvibe/sigcheck/internal/diagnostics"
)

func build(t *testing.T, src string) *CFG {
	t.Helper()
	prog := checktest.Decode(t, "m.ast.yaml", src)
	for _, s := range prog.Body {
		if def, ok := s.(*ast.MethodDef); ok {
			return Build(def)
		}
	}
	t.Fatalf("no method in fixture")
	return nil
}

func localByName(t *testing.T, c *CFG, name string) *Local {
	t.Helper()
	for i := range c.Locals {
		if c.Locals[i].Name == name {
			return &c.Locals[i]
		}
	}
	t.Fatalf("no local %q", name)
	return nil
}

// definition finds the instruction bound to a temporary.
func definition(c *CFG, id LocalID) Instruction {
	for _, b := range c.Blocks {
		for _, bind := range b.Bindings {
			if bind.Target == id {
				return bind.Value
			}
		}
	}
	return nil
}

func TestDump(t *testing.T) {
	c := build(t, `body:
  - def: f
    body:
      - 1
`)
	want := `method f {
bb0(loops=0):
    <t1> = 1
    return (implicit) <t1>
    goto bb1
bb1(loops=0, preds=bb0):
    exit
}
`
	if diff := cmp.Diff(want, c.String()); diff != "" {
		t.Errorf("dump (-want +got):\n%s", diff)
	}
}

func TestWhileLoopDepths(t *testing.T) {
	c := build(t, `body:
  - def: f
    params: [x]
    body:
      - assign: y
        value: 0
      - while: x
        do:
          - assign: y
            value:
              call: +
              recv: y
              args: [1]
      - y
`)
	var headers []*BasicBlock
	for _, b := range c.Blocks {
		if b.LoopHeader {
			headers = append(headers, b)
		}
	}
	if len(headers) != 1 {
		t.Fatalf("want one loop header, got %d\n%s", len(headers), c)
	}
	h := headers[0]
	if h.OuterLoops != 1 || h.Exit.Kind != ExitBranch {
		t.Errorf("header loops=%d exit=%s", h.OuterLoops, h.Exit.Kind)
	}
	if h.Exit.Then.OuterLoops != 1 || h.Exit.Else.OuterLoops != 0 {
		t.Errorf("body loops=%d exit loops=%d", h.Exit.Then.OuterLoops, h.Exit.Else.OuterLoops)
	}
	if len(h.Preds) != 2 {
		t.Errorf("header preds = %d, want entry and back edge", len(h.Preds))
	}

	y := localByName(t, c, "y")
	if y.MinLoops != 0 || y.MaxLoopWrite != 1 {
		t.Errorf("y: MinLoops=%d MaxLoopWrite=%d", y.MinLoops, y.MaxLoopWrite)
	}
	if x := localByName(t, c, "x"); x.MinLoops != 0 || !x.User {
		t.Errorf("x: %+v", x)
	}
	// The literal 1 only lives inside the loop.
	if one := localByName(t, c, "<t2>"); one.MinLoops != 1 {
		t.Errorf("<t2>: MinLoops=%d", one.MinLoops)
	}
	if len(c.Params) != 1 || c.Local(c.Params[0]).Name != "x" {
		t.Errorf("params = %v", c.Params)
	}
	if got := len(c.ReversePostorder()); got != len(c.Blocks) {
		t.Errorf("order has %d blocks, graph %d", got, len(c.Blocks))
	}
}

func TestShortCircuitConditions(t *testing.T) {
	c := build(t, `body:
  - def: f
    params: [a, b]
    body:
      - if:
          and: [a, {not: b}]
        then: [1]
        else: [2]
`)
	branches := 0
	for _, b := range c.Blocks {
		if b.Exit.Kind == ExitBranch {
			branches++
		}
		for _, bind := range b.Bindings {
			if s, ok := bind.Value.(*Send); ok {
				t.Errorf("condition lowered to a send of %s", s.Method)
			}
		}
	}
	if branches != 2 {
		t.Errorf("branches = %d, want 2\n%s", branches, c)
	}
}

func TestReturnLeavesDeadBlock(t *testing.T) {
	c := build(t, `body:
  - def: f
    body:
      - return: 1
      - call: puts
`)
	rpo := c.ReversePostorder()
	reachable := map[*BasicBlock]bool{}
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		for _, s := range b.Succs() {
			visit(s)
		}
	}
	visit(c.Entry)

	var dead *BasicBlock
	for _, b := range rpo {
		if !reachable[b] {
			dead = b
		}
	}
	if dead == nil {
		t.Fatalf("no dead block\n%s", c)
	}
	found := false
	for _, bind := range dead.Bindings {
		if s, ok := bind.Value.(*Send); ok && s.Method == "puts" && !bind.Synthetic {
			found = true
		}
	}
	if !found {
		t.Errorf("puts not in the dead block\n%s", c)
	}
	if len(c.Exit.Preds) != 2 {
		t.Errorf("exit preds = %d, want explicit and implicit return", len(c.Exit.Preds))
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	c := build(t, `body:
  - def: f
    body:
      - break: null
`)
	if len(c.Errors) != 1 || c.Errors[0].Code != diagnostics.ErrBreakOutsideLoop {
		t.Errorf("errors = %v", c.Errors)
	}

	c = build(t, `body:
  - def: f
    body:
      - while: true
        do:
          - break: null
`)
	if len(c.Errors) != 0 {
		t.Errorf("errors = %v", c.Errors)
	}
}

func TestRescueEdges(t *testing.T) {
	c := build(t, `body:
  - def: f
    body:
      - begin:
          - call: foo
        rescue:
          - classes: [ArgumentError]
            var: e
            body:
              - e
`)
	var raising *BasicBlock
	for _, b := range c.Blocks {
		if b.Exit.Kind == ExitMayRaise {
			raising = b
		}
	}
	if raising == nil {
		t.Fatalf("no exception edge\n%s", c)
	}
	handler := raising.Exit.Else
	if len(handler.Bindings) == 0 {
		t.Fatalf("empty handler\n%s", c)
	}
	if _, ok := handler.Bindings[0].Value.(*RescueMatch); !ok {
		t.Errorf("handler starts with %T", handler.Bindings[0].Value)
	}
	if handler.Exit.Kind != ExitBranch {
		t.Errorf("handler exit = %s", handler.Exit.Kind)
	}
	clause := handler.Exit.Then
	if _, ok := clause.Bindings[0].Value.(*ExceptionValue); !ok || c.Local(clause.Bindings[0].Target).Name != "e" {
		t.Errorf("clause starts with %s", clause.Bindings[0].Value.show(c))
	}
	// Unhandled exceptions leave the method.
	if handler.Exit.Else.Exit.Then != c.Exit {
		t.Errorf("unmatched exception goes to bb%d", handler.Exit.Else.Exit.Then.ID)
	}
}

func TestBlockArgumentIsLoop(t *testing.T) {
	c := build(t, `body:
  - def: f
    params: [xs]
    body:
      - call: each
        recv: xs
        block:
          params: [x]
          body:
            - x
`)
	x := localByName(t, c, "x")
	if x.MinLoops != 1 {
		t.Errorf("block param MinLoops = %d", x.MinLoops)
	}
	var send *Send
	var sendBlock *BasicBlock
	for _, b := range c.Blocks {
		for _, bind := range b.Bindings {
			if s, ok := bind.Value.(*Send); ok {
				send, sendBlock = s, b
			}
		}
	}
	if send == nil || !send.HasBlock {
		t.Fatalf("send = %+v", send)
	}
	if sendBlock.OuterLoops != 0 {
		t.Errorf("send runs inside the block loop")
	}
}

func TestCaseUsesTripleEquals(t *testing.T) {
	c := build(t, `body:
  - def: f
    params: [x]
    body:
      - case: x
        when:
          - match: [Integer, String]
            then: [1]
        else: [2]
`)
	var recvs []string
	for _, b := range c.Blocks {
		for _, bind := range b.Bindings {
			if s, ok := bind.Value.(*Send); ok && s.Method == "===" {
				if s.Args[0] != c.Params[0] {
					t.Errorf("=== tests %s, want x", c.localName(s.Args[0]))
				}
				recvs = append(recvs, definition(c, s.Recv).show(c))
			}
		}
	}
	if diff := cmp.Diff([]string{"Integer", "String"}, recvs); diff != "" {
		t.Errorf("patterns (-want +got):\n%s", diff)
	}
}
