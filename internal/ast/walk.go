package ast

// Inspect traverses a tree depth-first: it calls f(n) and, if f returns
// true, recurses into the children of n. Type expressions are visited too.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || isNilNode(n) || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Program:
		inspectList(n.Body, f)
	case *ClassDef:
		Inspect(n.Name, f)
		if n.Superclass != nil {
			Inspect(n.Superclass, f)
		}
		inspectList(n.Body, f)
	case *MethodDef:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		inspectList(n.Body, f)
	case *Param:
		if n.Default != nil {
			Inspect(n.Default, f)
		}
	case *Sig:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		if n.Returns != nil {
			Inspect(n.Returns, f)
		}
	case *SigParam:
		Inspect(n.Type, f)
	case *Include:
		Inspect(n.Module, f)
	case *TypeMemberDef:
		for _, t := range []TypeExpr{n.Fixed, n.Upper, n.Lower} {
			if t != nil {
				Inspect(t, f)
			}
		}
	case *TypeAlias:
		Inspect(n.Type, f)
	case *ConstDef:
		Inspect(n.Value, f)
	case *Enums:
		for _, c := range n.Cases {
			Inspect(c, f)
		}
	case *ConstRef:
		if n.Scope != nil {
			Inspect(n.Scope, f)
		}
	case *ArrayLit:
		inspectList(n.Elems, f)
	case *HashLit:
		for _, p := range n.Pairs {
			Inspect(p.Key, f)
			Inspect(p.Value, f)
		}
	case *Assign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *Call:
		if n.Recv != nil {
			Inspect(n.Recv, f)
		}
		inspectList(n.Args, f)
		for _, kw := range n.KwArgs {
			Inspect(kw.Value, f)
		}
		if n.Block != nil {
			Inspect(n.Block, f)
		}
	case *BlockArg:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		inspectList(n.Body, f)
	case *If:
		Inspect(n.Cond, f)
		inspectList(n.Then, f)
		inspectList(n.Else, f)
	case *While:
		Inspect(n.Cond, f)
		inspectList(n.Body, f)
	case *Case:
		if n.Subject != nil {
			Inspect(n.Subject, f)
		}
		for _, w := range n.Whens {
			inspectList(w.Patterns, f)
			inspectList(w.Body, f)
		}
		inspectList(n.Else, f)
	case *And:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *Or:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *Not:
		Inspect(n.Value, f)
	case *Return:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *Break:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *Next:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *Begin:
		inspectList(n.Body, f)
		for _, r := range n.Rescues {
			for _, c := range r.Classes {
				Inspect(c, f)
			}
			inspectList(r.Body, f)
		}
		inspectList(n.Else, f)
		inspectList(n.Ensure, f)
	case *Let:
		Inspect(n.Value, f)
		Inspect(n.Type, f)
	case *Cast:
		Inspect(n.Value, f)
		if n.Type != nil {
			Inspect(n.Type, f)
		}
	case *Absurd:
		Inspect(n.Value, f)
	case *RevealType:
		Inspect(n.Value, f)
	case *TypeName:
		Inspect(n.Ref, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *TypeNilable:
		Inspect(n.Inner, f)
	case *TypeAny:
		for _, m := range n.Members {
			Inspect(m, f)
		}
	case *TypeAll:
		for _, m := range n.Members {
			Inspect(m, f)
		}
	case *TypeTuple:
		for _, e := range n.Elems {
			Inspect(e, f)
		}
	case *TypeShape:
		for _, fld := range n.Fields {
			Inspect(fld.Type, f)
		}
	case *TypeClassOf:
		Inspect(n.Ref, f)
	}
}

func inspectList(list []Expr, f func(Node) bool) {
	for _, e := range list {
		Inspect(e, f)
	}
}

// isNilNode catches typed nil pointers stored in interfaces.
func isNilNode(n Node) bool {
	switch n := n.(type) {
	case *ConstRef:
		return n == nil
	case *BlockArg:
		return n == nil
	case *Program:
		return n == nil
	}
	return false
}
