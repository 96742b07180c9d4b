package cfg

import (
	"fmt"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/token"
)

// loopTargets are the jump targets of the innermost loop or block.
type loopTargets struct {
	next *BasicBlock
	brk  *BasicBlock
}

type builder struct {
	cfg   *CFG
	cur   *BasicBlock
	depth int

	scopes  []map[string]LocalID
	loops   []loopTargets
	handler *BasicBlock
	// synthetic > 0 marks everything lowered as compiler generated.
	synthetic int
	temps     int
}

// Build lowers a method body. Parameters become locals bound in the entry
// block, the value of the last statement is returned implicitly.
func Build(def *ast.MethodDef) *CFG {
	b := &builder{cfg: &CFG{Method: def}}
	b.scopes = []map[string]LocalID{{}}
	entry := b.newBlock()
	b.cfg.Entry = entry
	b.cfg.Exit = &BasicBlock{ID: -1, Exit: Exit{Kind: ExitTerminal}}
	b.cur = entry

	for _, p := range def.Params {
		id := b.declare(p.Name)
		b.cfg.Params = append(b.cfg.Params, id)
		b.emitSynthetic(id, p.Loc, &LoadParam{Param: p})
	}
	for _, p := range def.Params {
		if p.Default != nil {
			v := b.expr(p.Default)
			b.emitSynthetic(NoLocal, p.Default.GetLoc(), &ParamDefault{Param: p, Value: v})
		}
	}

	last, lastLoc := b.body(def.Body, def.Loc)
	b.cur.Bindings = append(b.cur.Bindings, Binding{
		Target: NoLocal, Loc: lastLoc, Value: &Return{Value: last, ValueLoc: lastLoc, Implicit: true}, Synthetic: true,
	})
	b.jump(b.cur, b.cfg.Exit)

	exit := b.cfg.Exit
	exit.ID = len(b.cfg.Blocks)
	b.cfg.Blocks = append(b.cfg.Blocks, exit)
	b.cfg.computeOrder()
	b.cfg.computeLoopDepths()
	return b.cfg
}

func (b *builder) newBlock() *BasicBlock {
	bb := &BasicBlock{ID: len(b.cfg.Blocks), OuterLoops: b.depth}
	b.cfg.Blocks = append(b.cfg.Blocks, bb)
	return bb
}

func (b *builder) jump(from, to *BasicBlock) {
	from.Exit = Exit{Kind: ExitGoto, Cond: NoLocal, Then: to}
	to.Preds = append(to.Preds, from)
}

func (b *builder) branch(from *BasicBlock, cond LocalID, then, els *BasicBlock, loc token.Loc) {
	from.Exit = Exit{Kind: ExitBranch, Cond: cond, Then: then, Else: els, Loc: loc}
	then.Preds = append(then.Preds, from)
	if els != then {
		els.Preds = append(els.Preds, from)
	}
}

// unreachable continues lowering in a block nothing jumps to.
func (b *builder) unreachable() {
	b.cur = b.newBlock()
}

func (b *builder) newLocal(name string, user bool) LocalID {
	b.cfg.Locals = append(b.cfg.Locals, Local{Name: name, User: user})
	return LocalID(len(b.cfg.Locals) - 1)
}

func (b *builder) temp() LocalID {
	b.temps++
	return b.newLocal(fmt.Sprintf("<t%d>", b.temps), false)
}

// lookup finds a variable in the enclosing block scopes.
func (b *builder) lookup(name string) (LocalID, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if id, ok := b.scopes[i][name]; ok {
			return id, true
		}
	}
	return NoLocal, false
}

// declare enters a variable in the innermost scope.
func (b *builder) declare(name string) LocalID {
	id := b.newLocal(name, true)
	b.scopes[len(b.scopes)-1][name] = id
	return id
}

func (b *builder) variable(name string) LocalID {
	if id, ok := b.lookup(name); ok {
		return id
	}
	return b.declare(name)
}

func (b *builder) emit(target LocalID, loc token.Loc, ins Instruction) LocalID {
	b.cur.Bindings = append(b.cur.Bindings, Binding{Target: target, Loc: loc, Value: ins, Synthetic: b.synthetic > 0})
	return target
}

func (b *builder) emitSynthetic(target LocalID, loc token.Loc, ins Instruction) LocalID {
	b.cur.Bindings = append(b.cur.Bindings, Binding{Target: target, Loc: loc, Value: ins, Synthetic: true})
	return target
}

func (b *builder) errorf(code diagnostics.ErrorCode, loc token.Loc, msg string, args ...any) {
	b.cfg.Errors = append(b.cfg.Errors, diagnostics.NewError(code, loc, msg, args...))
}

// body lowers a statement list and returns the local holding its value.
func (b *builder) body(stmts []ast.Expr, loc token.Loc) (LocalID, token.Loc) {
	if len(stmts) == 0 {
		return b.nilValue(loc), loc
	}
	var last LocalID
	for _, s := range stmts {
		last = b.expr(s)
	}
	return last, stmts[len(stmts)-1].GetLoc()
}

func (b *builder) nilValue(loc token.Loc) LocalID {
	return b.emitSynthetic(b.temp(), loc, &Literal{Node: &ast.NilLit{Loc: loc}})
}

// expr lowers e into the current block and returns the local with its
// value. Reading a variable returns the variable itself, so narrowing on a
// guard applies to the variable.
func (b *builder) expr(e ast.Expr) LocalID {
	switch e := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.StringLit, *ast.SymbolLit, *ast.NilLit, *ast.TrueLit, *ast.FalseLit:
		return b.emit(b.temp(), e.GetLoc(), &Literal{Node: e})

	case *ast.Local:
		id := b.variable(e.Name)
		b.emit(NoLocal, e.Loc, &Read{Local: id})
		return id

	case *ast.Self:
		return b.emit(b.temp(), e.Loc, &SelfRef{})

	case *ast.Ivar:
		return b.emit(b.temp(), e.Loc, &FieldRead{Name: e.Name})

	case *ast.ConstRef:
		return b.emit(b.temp(), e.Loc, &ConstRead{Ref: e})

	case *ast.ArrayLit:
		elems := make([]LocalID, len(e.Elems))
		for i, el := range e.Elems {
			elems[i] = b.expr(el)
		}
		return b.emit(b.temp(), e.Loc, &ArrayLit{Elems: elems})

	case *ast.HashLit:
		h := &HashLit{}
		for _, p := range e.Pairs {
			h.Keys = append(h.Keys, b.expr(p.Key))
			h.KeyNodes = append(h.KeyNodes, p.Key)
			h.Values = append(h.Values, b.expr(p.Value))
		}
		return b.emit(b.temp(), e.Loc, h)

	case *ast.Assign:
		return b.assign(e)

	case *ast.Call:
		return b.call(e)

	case *ast.If:
		return b.ifExpr(e)

	case *ast.While:
		return b.while(e)

	case *ast.Case:
		return b.caseExpr(e)

	case *ast.And, *ast.Or:
		return b.logical(e)

	case *ast.Not:
		v := b.expr(e.Value)
		return b.emit(b.temp(), e.Loc, &Send{Recv: v, Method: "!", MethodLoc: e.Loc})

	case *ast.Return:
		v, loc := b.optValue(e.Value, e.Loc)
		b.emit(NoLocal, e.Loc, &Return{Value: v, ValueLoc: loc})
		b.jump(b.cur, b.cfg.Exit)
		b.unreachable()
		return b.nilValue(e.Loc)

	case *ast.Break, *ast.Next:
		return b.jumpOut(e)

	case *ast.Begin:
		return b.begin(e)

	case *ast.Let:
		v := b.expr(e.Value)
		return b.emit(b.temp(), e.Loc, &Let{Value: v, Type: e.Type, Node: e})

	case *ast.Cast:
		v := b.expr(e.Value)
		return b.emit(b.temp(), e.Loc, &Cast{Kind: e.Kind, Value: v, Type: e.Type, Node: e})

	case *ast.Absurd:
		b.synthetic++
		v := b.expr(e.Value)
		b.synthetic--
		return b.emitSynthetic(b.temp(), e.Loc, &Absurd{Value: v})

	case *ast.RevealType:
		v := b.expr(e.Value)
		return b.emit(b.temp(), e.Loc, &RevealType{Value: v})

	case *ast.ClassDef, *ast.MethodDef:
		return b.emitSynthetic(b.temp(), e.GetLoc(), &Unanalyzable{Node: e})

	case *ast.ConstDef:
		b.expr(e.Value)
		return b.nilValue(e.Loc)
	}
	// Sigs, includes and other declarations have no runtime value here.
	return b.nilValue(e.GetLoc())
}

func (b *builder) optValue(e ast.Expr, loc token.Loc) (LocalID, token.Loc) {
	if e == nil {
		return b.nilValue(loc), loc
	}
	return b.expr(e), e.GetLoc()
}

func (b *builder) assign(e *ast.Assign) LocalID {
	switch target := e.Target.(type) {
	case *ast.Local:
		if let, ok := e.Value.(*ast.Let); ok {
			v := b.expr(let.Value)
			id := b.variable(target.Name)
			return b.emit(id, e.Loc, &Let{Value: v, Type: let.Type, Node: let})
		}
		v := b.expr(e.Value)
		id := b.variable(target.Name)
		return b.emit(id, e.Loc, &Ident{From: v})
	case *ast.Ivar:
		v := b.expr(e.Value)
		b.emit(NoLocal, e.Loc, &FieldWrite{Name: target.Name, Value: v})
		return v
	}
	return b.nilValue(e.Loc)
}

func (b *builder) call(e *ast.Call) LocalID {
	recv := NoLocal
	if e.Recv != nil {
		recv = b.expr(e.Recv)
	}
	send := &Send{Recv: recv, Method: e.Method, MethodLoc: e.MethodLoc, Node: e}
	for _, a := range e.Args {
		send.Args = append(send.Args, b.expr(a))
		send.ArgLocs = append(send.ArgLocs, a.GetLoc())
	}
	for _, kw := range e.KwArgs {
		send.KwArgs = append(send.KwArgs, KwArg{Name: kw.Name, Value: b.expr(kw.Value), Loc: kw.Loc})
	}
	if e.Block != nil {
		send.HasBlock = true
		b.blockLoop(e.Block)
	}
	result := b.emit(b.temp(), e.Loc, send)
	b.mayRaise()
	return result
}

// mayRaise ends the current block with an exception edge when a rescue
// handler is active.
func (b *builder) mayRaise() {
	if b.handler == nil {
		return
	}
	next := b.newBlock()
	b.cur.Exit = Exit{Kind: ExitMayRaise, Cond: NoLocal, Then: next, Else: b.handler}
	next.Preds = append(next.Preds, b.cur)
	b.handler.Preds = append(b.handler.Preds, b.cur)
	b.cur = next
}

// blockLoop lowers a block argument as a loop that may run any number of
// times. Parameters are fresh variables scoped to the block.
func (b *builder) blockLoop(blk *ast.BlockArg) {
	b.depth++
	header := b.newBlock()
	header.LoopHeader = true
	body := b.newBlock()
	b.depth--
	exit := b.newBlock()
	b.depth++

	b.jump(b.cur, header)
	b.cur = header
	cond := b.emitSynthetic(b.temp(), blk.Loc, &Unknown{})
	b.branch(header, cond, body, exit, blk.Loc)

	b.cur = body
	b.scopes = append(b.scopes, map[string]LocalID{})
	b.loops = append(b.loops, loopTargets{next: header, brk: exit})
	for _, p := range blk.Params {
		b.emitSynthetic(b.declare(p.Name), p.Loc, &LoadBlockParam{Param: p})
	}
	b.body(blk.Body, blk.Loc)
	b.jump(b.cur, header)
	b.loops = b.loops[:len(b.loops)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]
	b.depth--
	b.cur = exit
}

func (b *builder) ifExpr(e *ast.If) LocalID {
	result := b.temp()
	then, els, join := b.newBlock(), b.newBlock(), b.newBlock()
	b.cond(e.Cond, then, els)

	b.cur = then
	v, loc := b.body(e.Then, e.Loc)
	b.emitSynthetic(result, loc, &Ident{From: v})
	b.jump(b.cur, join)

	b.cur = els
	v, loc = b.body(e.Else, e.Loc)
	b.emitSynthetic(result, loc, &Ident{From: v})
	b.jump(b.cur, join)

	b.cur = join
	return result
}

// cond lowers e in branch position. && || and ! short-circuit into the
// graph instead of producing values.
func (b *builder) cond(e ast.Expr, then, els *BasicBlock) {
	switch e := e.(type) {
	case *ast.And:
		mid := b.newBlock()
		b.cond(e.Left, mid, els)
		b.cur = mid
		b.cond(e.Right, then, els)
	case *ast.Or:
		mid := b.newBlock()
		b.cond(e.Left, then, mid)
		b.cur = mid
		b.cond(e.Right, then, els)
	case *ast.Not:
		b.cond(e.Value, els, then)
	default:
		v := b.expr(e)
		b.branch(b.cur, v, then, els, e.GetLoc())
	}
}

// logical lowers && and || in value position: the result is the left value
// unless evaluation continues with the right operand.
func (b *builder) logical(e ast.Expr) LocalID {
	var left, right ast.Expr
	isAnd := false
	switch e := e.(type) {
	case *ast.And:
		left, right, isAnd = e.Left, e.Right, true
	case *ast.Or:
		left, right = e.Left, e.Right
	}
	result := b.temp()
	l := b.expr(left)
	b.emitSynthetic(result, left.GetLoc(), &Ident{From: l})
	rhs, join := b.newBlock(), b.newBlock()
	if isAnd {
		b.branch(b.cur, result, rhs, join, left.GetLoc())
	} else {
		b.branch(b.cur, result, join, rhs, left.GetLoc())
	}
	b.cur = rhs
	r := b.expr(right)
	b.emitSynthetic(result, right.GetLoc(), &Ident{From: r})
	b.jump(b.cur, join)
	b.cur = join
	return result
}

func (b *builder) while(e *ast.While) LocalID {
	b.depth++
	header := b.newBlock()
	header.LoopHeader = true
	body := b.newBlock()
	b.depth--
	exit := b.newBlock()

	b.jump(b.cur, header)
	b.depth++
	b.cur = header
	if e.Until {
		b.cond(e.Cond, exit, body)
	} else {
		b.cond(e.Cond, body, exit)
	}

	b.cur = body
	b.loops = append(b.loops, loopTargets{next: header, brk: exit})
	for _, s := range e.Body {
		b.expr(s)
	}
	b.jump(b.cur, header)
	b.loops = b.loops[:len(b.loops)-1]
	b.depth--

	b.cur = exit
	return b.nilValue(e.Loc)
}

func (b *builder) jumpOut(e ast.Expr) LocalID {
	var value ast.Expr
	isBreak := false
	switch e := e.(type) {
	case *ast.Break:
		value, isBreak = e.Value, true
	case *ast.Next:
		value = e.Value
	}
	if value != nil {
		b.expr(value)
	}
	if len(b.loops) == 0 {
		kw := "next"
		if isBreak {
			kw = "break"
		}
		b.errorf(diagnostics.ErrBreakOutsideLoop, e.GetLoc(), "`%s` outside of a loop", kw)
		return b.nilValue(e.GetLoc())
	}
	target := b.loops[len(b.loops)-1]
	if isBreak {
		b.jump(b.cur, target.brk)
	} else {
		b.jump(b.cur, target.next)
	}
	b.unreachable()
	return b.nilValue(e.GetLoc())
}

// caseExpr tests `pattern === subject` for each pattern in order. A
// variable subject is used directly so the tests narrow it.
func (b *builder) caseExpr(e *ast.Case) LocalID {
	result := b.temp()
	join := b.newBlock()
	subject := NoLocal
	if e.Subject != nil {
		subject = b.expr(e.Subject)
	}
	for _, w := range e.Whens {
		body := b.newBlock()
		for _, p := range w.Patterns {
			next := b.newBlock()
			if subject == NoLocal {
				b.cond(p, body, next)
			} else {
				pat := b.expr(p)
				t := b.emit(b.temp(), p.GetLoc(), &Send{
					Recv: pat, Method: "===", MethodLoc: p.GetLoc(),
					Args: []LocalID{subject}, ArgLocs: []token.Loc{e.Subject.GetLoc()},
				})
				b.branch(b.cur, t, body, next, p.GetLoc())
			}
			b.cur = next
		}
		rest := b.cur
		b.cur = body
		v, loc := b.body(w.Body, w.Loc)
		b.emitSynthetic(result, loc, &Ident{From: v})
		b.jump(b.cur, join)
		b.cur = rest
	}
	v, loc := b.body(e.Else, e.Loc)
	b.emitSynthetic(result, loc, &Ident{From: v})
	b.jump(b.cur, join)
	b.cur = join
	return result
}

// begin lowers begin/rescue/else/ensure. Calls in the protected body get an
// exception edge to the handler, which tries each rescue clause in turn and
// re-raises to the enclosing handler when none matches.
func (b *builder) begin(e *ast.Begin) LocalID {
	result := b.temp()
	join := b.newBlock()
	outer := b.handler
	var handler *BasicBlock
	if len(e.Rescues) > 0 {
		handler = b.newBlock()
		b.handler = handler
	}
	v, loc := b.body(e.Body, e.Loc)
	b.handler = outer
	if len(e.Else) > 0 {
		v, loc = b.body(e.Else, e.Loc)
	}
	b.emitSynthetic(result, loc, &Ident{From: v})
	b.jump(b.cur, join)

	if handler != nil {
		b.cur = handler
		for _, r := range e.Rescues {
			clause, next := b.newBlock(), b.newBlock()
			m := b.emitSynthetic(b.temp(), r.Loc, &RescueMatch{Classes: r.Classes})
			b.branch(b.cur, m, clause, next, r.Loc)
			b.cur = clause
			if r.Var != "" {
				b.emit(b.variable(r.Var), r.Loc, &ExceptionValue{Classes: r.Classes})
			}
			v, loc := b.body(r.Body, r.Loc)
			b.emitSynthetic(result, loc, &Ident{From: v})
			b.jump(b.cur, join)
			b.cur = next
		}
		if outer != nil {
			b.jump(b.cur, outer)
		} else {
			b.jump(b.cur, b.cfg.Exit)
		}
	}

	b.cur = join
	if len(e.Ensure) > 0 {
		for _, s := range e.Ensure {
			b.expr(s)
		}
	}
	return result
}
