package astio

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/token"
)

// expr decodes one statement or expression node.
func (d *decoder) expr(n *yaml.Node) (ast.Expr, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.MappingNode:
		if len(n.Content) == 0 {
			return nil, d.errorf(n, "empty node")
		}
		return d.mapping(n)
	case yaml.SequenceNode:
		elems, err := d.exprs(n)
		if err != nil {
			return nil, err
		}
		return &ast.ArrayLit{Loc: d.loc(n), Elems: elems}, nil
	case yaml.AliasNode:
		return d.expr(n.Alias)
	}
	return nil, d.errorf(n, "unexpected node")
}

// scalar decodes the shorthand forms: locals, constants, :symbols, self,
// literals. Quoted scalars are strings. Instance variables need the mapping
// form `ivar: name` since YAML reserves a leading @.
func (d *decoder) scalar(n *yaml.Node) (ast.Expr, error) {
	loc := d.loc(n)
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		return &ast.StringLit{Loc: loc, Value: n.Value}, nil
	}
	switch n.ShortTag() {
	case "!!null":
		return &ast.NilLit{Loc: loc}, nil
	case "!!bool":
		if n.Value == "true" {
			return &ast.TrueLit{Loc: loc}, nil
		}
		return &ast.FalseLit{Loc: loc}, nil
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, d.errorf(n, "bad integer %q", n.Value)
		}
		return &ast.IntLit{Loc: loc, Value: v}, nil
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, d.errorf(n, "bad float %q", n.Value)
		}
		return &ast.FloatLit{Loc: loc, Value: v}, nil
	}
	v := n.Value
	switch {
	case v == "self":
		return &ast.Self{Loc: loc}, nil
	case v == "nil":
		return &ast.NilLit{Loc: loc}, nil
	case strings.HasPrefix(v, ":") && len(v) > 1:
		return &ast.SymbolLit{Loc: loc, Value: v[1:]}, nil
	case strings.HasPrefix(v, "::") || (v != "" && v[0] >= 'A' && v[0] <= 'Z'):
		ref, err := parseConstPath(v, loc)
		if err != nil {
			return nil, d.errorf(n, "%v", err)
		}
		return ref, nil
	case v != "":
		return &ast.Local{Loc: loc, Name: v}, nil
	}
	return nil, d.errorf(n, "empty scalar")
}

// mapping decodes a node whose first key names its kind.
func (d *decoder) mapping(n *yaml.Node) (ast.Expr, error) {
	f := d.fields(n)
	kind := f.keys[0]
	head := n.Content[1]
	loc := d.loc(n)

	switch kind {
	case "class", "module":
		name, err := d.constRef(head)
		if err != nil {
			return nil, err
		}
		super, err := d.optExpr(f.get("super"))
		if err != nil {
			return nil, err
		}
		body, err := d.body(f.get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.ClassDef{Loc: loc, Name: name, Superclass: super, IsModule: kind == "module", Body: body}, nil

	case "def", "defs":
		params, err := d.params(f.get("params"))
		if err != nil {
			return nil, err
		}
		body, err := d.body(f.get("body"))
		if err != nil {
			return nil, err
		}
		return &ast.MethodDef{Loc: loc, NameLoc: d.loc(head), Name: head.Value, IsSelf: kind == "defs", Params: params, Body: body}, nil

	case "sig":
		return d.sig(n, head, loc)

	case "call":
		return d.call(f, head, loc)

	case "if", "unless":
		cond, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		then, err := d.body(f.get("then"))
		if err != nil {
			return nil, err
		}
		els, err := d.body(f.get("else"))
		if err != nil {
			return nil, err
		}
		if kind == "unless" {
			then, els = els, then
		}
		return &ast.If{Loc: loc, Cond: cond, Then: then, Else: els}, nil

	case "while", "until":
		cond, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		body, err := d.body(f.get("do"))
		if err != nil {
			return nil, err
		}
		return &ast.While{Loc: loc, Cond: cond, Body: body, Until: kind == "until"}, nil

	case "case":
		return d.caseExpr(f, head, loc)

	case "and", "or":
		if head.Kind != yaml.SequenceNode || len(head.Content) != 2 {
			return nil, d.errorf(head, "%s takes two operands", kind)
		}
		l, err := d.expr(head.Content[0])
		if err != nil {
			return nil, err
		}
		r, err := d.expr(head.Content[1])
		if err != nil {
			return nil, err
		}
		if kind == "and" {
			return &ast.And{Loc: loc, Left: l, Right: r}, nil
		}
		return &ast.Or{Loc: loc, Left: l, Right: r}, nil

	case "ivar":
		return &ast.Ivar{Loc: loc, Name: "@" + strings.TrimPrefix(head.Value, "@")}, nil

	case "not":
		v, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Loc: loc, Value: v}, nil

	case "assign":
		target, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		switch target.(type) {
		case *ast.Local, *ast.Ivar:
		default:
			return nil, d.errorf(head, "cannot assign to %s", head.Value)
		}
		value, err := d.expr(orNil(f.m["value"], n))
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Loc: loc, Target: target, Value: value}, nil

	case "const":
		value, err := d.expr(orNil(f.m["value"], n))
		if err != nil {
			return nil, err
		}
		return &ast.ConstDef{Loc: loc, Name: head.Value, Value: value}, nil

	case "return", "break", "next":
		v, err := d.optExpr(f.get(kind))
		if err != nil {
			return nil, err
		}
		switch kind {
		case "return":
			return &ast.Return{Loc: loc, Value: v}, nil
		case "break":
			return &ast.Break{Loc: loc, Value: v}, nil
		}
		return &ast.Next{Loc: loc, Value: v}, nil

	case "begin":
		return d.begin(f, head, loc)

	case "array":
		elems, err := d.exprs(f.get("array"))
		if err != nil {
			return nil, err
		}
		return &ast.ArrayLit{Loc: loc, Elems: elems}, nil

	case "hash":
		return d.hash(f.get("hash"), loc)

	case "str":
		return &ast.StringLit{Loc: loc, Value: head.Value}, nil

	// Inside flow collections a leading ':' is a YAML indicator, so
	// symbols there are written `{sym: name}`.
	case "sym":
		return &ast.SymbolLit{Loc: loc, Value: head.Value}, nil

	case "let":
		v, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		t, err := d.typ(f.get("type"))
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, d.errorf(n, "T.let needs a type")
		}
		return &ast.Let{Loc: loc, Value: v, Type: t}, nil

	case "cast", "must", "unsafe", "assert_type":
		v, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		t, err := d.typ(f.get("type"))
		if err != nil {
			return nil, err
		}
		c := &ast.Cast{Loc: loc, Value: v, Type: t}
		switch kind {
		case "cast":
			c.Kind = ast.CastCast
		case "must":
			c.Kind = ast.CastMust
		case "unsafe":
			c.Kind = ast.CastUnsafe
		default:
			c.Kind = ast.CastAssertType
		}
		if t == nil && (c.Kind == ast.CastCast || c.Kind == ast.CastAssertType) {
			return nil, d.errorf(n, "%s needs a type", kind)
		}
		return c, nil

	case "absurd":
		v, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		return &ast.Absurd{Loc: loc, Value: v}, nil

	case "reveal_type":
		v, err := d.expr(head)
		if err != nil {
			return nil, err
		}
		return &ast.RevealType{Loc: loc, Value: v}, nil

	case "include":
		ref, err := d.constRef(head)
		if err != nil {
			return nil, err
		}
		return &ast.Include{Loc: loc, Module: ref}, nil

	case "type_member":
		return d.typeMember(f, head, loc)

	case "type_alias":
		t, err := d.typ(f.get("type"))
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, d.errorf(n, "type_alias needs a type")
		}
		return &ast.TypeAlias{Loc: loc, Name: head.Value, Type: t}, nil

	case "flag":
		return &ast.ClassFlag{Loc: loc, Flag: strings.TrimSuffix(head.Value, "!")}, nil

	case "enums":
		if head.Kind != yaml.SequenceNode {
			return nil, d.errorf(head, "enums takes a list of names")
		}
		en := &ast.Enums{Loc: loc}
		for _, c := range head.Content {
			en.Cases = append(en.Cases, &ast.EnumCase{Loc: d.loc(c), Name: c.Value})
		}
		return en, nil
	}
	return nil, d.errorf(n, "unknown node kind %q", kind)
}

// orNil returns n, or a null scalar at the position of parent.
func orNil(n, parent *yaml.Node) *yaml.Node {
	if n != nil {
		return n
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Line: parent.Line, Column: parent.Column}
}

// params decodes a parameter list. Scalars use sigils: `x` required,
// `"*x"` rest, `"**x"` keyword rest, `"&x"` block (quoted, since YAML
// reserves * and &). Other kinds are mappings: `{kw: x}`, `{opt: x,
// default: 1}`, `{kwopt: x, default: 1}`, `{rest: x}`, `{kwrest: x}`,
// `{block: x}`.
func (d *decoder) params(n *yaml.Node) ([]*ast.Param, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "params must be a list")
	}
	out := make([]*ast.Param, 0, len(n.Content))
	for _, c := range n.Content {
		p := &ast.Param{Loc: d.loc(c)}
		switch c.Kind {
		case yaml.ScalarNode:
			v := c.Value
			switch {
			case strings.HasPrefix(v, "**"):
				p.Kind, p.Name = ast.ParamKwRest, v[2:]
			case strings.HasPrefix(v, "*"):
				p.Kind, p.Name = ast.ParamRest, v[1:]
			case strings.HasPrefix(v, "&"):
				p.Kind, p.Name = ast.ParamBlock, v[1:]
			case strings.HasSuffix(v, ":"):
				p.Kind, p.Name = ast.ParamKw, strings.TrimSuffix(v, ":")
			default:
				p.Kind, p.Name = ast.ParamReq, v
			}
		case yaml.MappingNode:
			f := d.fields(c)
			switch f.keys[0] {
			case "req":
				p.Kind = ast.ParamReq
			case "opt":
				p.Kind = ast.ParamOpt
			case "rest":
				p.Kind = ast.ParamRest
			case "kw":
				p.Kind = ast.ParamKw
			case "kwopt":
				p.Kind = ast.ParamKwOpt
			case "kwrest":
				p.Kind = ast.ParamKwRest
			case "block":
				p.Kind = ast.ParamBlock
			default:
				return nil, d.errorf(c, "unknown parameter kind %q", f.keys[0])
			}
			p.Name = c.Content[1].Value
			if p.Kind == ast.ParamOpt || p.Kind == ast.ParamKwOpt {
				def, err := d.expr(orNil(f.m["default"], c))
				if err != nil {
					return nil, err
				}
				p.Default = def
			}
		default:
			return nil, d.errorf(c, "bad parameter")
		}
		if p.Name == "" {
			return nil, d.errorf(c, "parameter without a name")
		}
		out = append(out, p)
	}
	return out, nil
}

// sig decodes `sig: {params: {x: Integer}, returns: String}`. The value
// `void` alone is a parameterless void sig.
func (d *decoder) sig(n, head *yaml.Node, loc token.Loc) (ast.Expr, error) {
	s := &ast.Sig{Loc: loc}
	if head.Kind == yaml.ScalarNode {
		if head.Value != "void" {
			t, err := d.typ(head)
			if err != nil {
				return nil, err
			}
			s.Returns = t
		} else {
			s.Void = true
		}
		return s, nil
	}
	if head.Kind != yaml.MappingNode {
		return nil, d.errorf(head, "sig takes a mapping")
	}
	f := d.fields(head)
	for _, k := range f.keys {
		v := f.m[k]
		switch k {
		case "params":
			if v.Kind != yaml.MappingNode {
				return nil, d.errorf(v, "sig params must be a mapping")
			}
			for i := 0; i+1 < len(v.Content); i += 2 {
				t, err := d.typ(v.Content[i+1])
				if err != nil {
					return nil, err
				}
				s.Params = append(s.Params, &ast.SigParam{Loc: d.loc(v.Content[i]), Name: v.Content[i].Value, Type: t})
			}
		case "returns":
			if v.Value == "void" {
				s.Void = true
				continue
			}
			t, err := d.typ(v)
			if err != nil {
				return nil, err
			}
			s.Returns = t
		case "void":
			s.Void = v.Value == "true"
		case "type_params":
			for _, c := range v.Content {
				s.TypeParams = append(s.TypeParams, strings.TrimPrefix(c.Value, ":"))
			}
		case "abstract":
			s.Abstract = f.flag(k)
		case "override":
			s.Override = f.flag(k)
		case "overridable":
			s.Overridable = f.flag(k)
		case "final":
			s.Final = f.flag(k)
		case "overload":
			s.Overload = f.flag(k)
		case "loc":
		default:
			return nil, d.errorf(v, "unknown sig key %q", k)
		}
	}
	if s.Returns == nil && !s.Void {
		return nil, d.errorf(n, "sig needs `returns` or `void`")
	}
	return s, nil
}

func (d *decoder) call(f fields, head *yaml.Node, loc token.Loc) (ast.Expr, error) {
	c := &ast.Call{Loc: loc, Method: head.Value, MethodLoc: d.loc(head)}
	var err error
	if c.Recv, err = d.optExpr(f.get("recv")); err != nil {
		return nil, err
	}
	if c.Args, err = d.exprs(f.get("args")); err != nil {
		return nil, err
	}
	if kw := f.get("kwargs"); kw != nil {
		if kw.Kind != yaml.MappingNode {
			return nil, d.errorf(kw, "kwargs must be a mapping")
		}
		for i := 0; i+1 < len(kw.Content); i += 2 {
			v, err := d.expr(kw.Content[i+1])
			if err != nil {
				return nil, err
			}
			c.KwArgs = append(c.KwArgs, &ast.KwArg{Loc: d.loc(kw.Content[i]), Name: kw.Content[i].Value, Value: v})
		}
	}
	if b := f.get("block"); b != nil {
		bf := d.fields(b)
		params, err := d.params(bf.get("params"))
		if err != nil {
			return nil, err
		}
		body, err := d.body(bf.get("body"))
		if err != nil {
			return nil, err
		}
		c.Block = &ast.BlockArg{Loc: d.loc(b), Params: params, Body: body}
	}
	return c, nil
}

func (d *decoder) caseExpr(f fields, head *yaml.Node, loc token.Loc) (ast.Expr, error) {
	c := &ast.Case{Loc: loc}
	var err error
	if c.Subject, err = d.optExpr(f.get("case")); err != nil {
		return nil, err
	}
	if w := f.get("when"); w != nil {
		if w.Kind != yaml.SequenceNode {
			return nil, d.errorf(w, "when takes a list")
		}
		for _, wn := range w.Content {
			wf := d.fields(wn)
			when := &ast.When{Loc: d.loc(wn)}
			pats := wf.get("match")
			if pats != nil && pats.Kind != yaml.SequenceNode {
				when.Patterns, err = d.body(pats)
			} else {
				when.Patterns, err = d.exprs(pats)
			}
			if err != nil {
				return nil, err
			}
			if when.Body, err = d.body(wf.get("then")); err != nil {
				return nil, err
			}
			c.Whens = append(c.Whens, when)
		}
	}
	if c.Else, err = d.body(f.get("else")); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *decoder) begin(f fields, head *yaml.Node, loc token.Loc) (ast.Expr, error) {
	b := &ast.Begin{Loc: loc}
	var err error
	if b.Body, err = d.body(f.get("begin")); err != nil {
		return nil, err
	}
	if r := f.get("rescue"); r != nil {
		if r.Kind != yaml.SequenceNode {
			return nil, d.errorf(r, "rescue takes a list")
		}
		for _, rn := range r.Content {
			rf := d.fields(rn)
			res := &ast.Rescue{Loc: d.loc(rn)}
			if cls := rf.get("classes"); cls != nil {
				for _, c := range cls.Content {
					ref, err := d.constRef(c)
					if err != nil {
						return nil, err
					}
					res.Classes = append(res.Classes, ref)
				}
			}
			if v := rf.get("var"); v != nil {
				res.Var = v.Value
			}
			if res.Body, err = d.body(rf.get("body")); err != nil {
				return nil, err
			}
			b.Rescues = append(b.Rescues, res)
		}
	}
	if b.Else, err = d.body(f.get("else")); err != nil {
		return nil, err
	}
	if b.Ensure, err = d.body(f.get("ensure")); err != nil {
		return nil, err
	}
	return b, nil
}

// hash decodes `hash: [[key, value], ...]`.
func (d *decoder) hash(n *yaml.Node, loc token.Loc) (ast.Expr, error) {
	h := &ast.HashLit{Loc: loc}
	if n == nil {
		return h, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "hash takes a list of [key, value] pairs")
	}
	for _, p := range n.Content {
		if p.Kind != yaml.SequenceNode || len(p.Content) != 2 {
			return nil, d.errorf(p, "hash pair must be [key, value]")
		}
		k, err := d.expr(p.Content[0])
		if err != nil {
			return nil, err
		}
		v, err := d.expr(p.Content[1])
		if err != nil {
			return nil, err
		}
		h.Pairs = append(h.Pairs, &ast.HashPair{Key: k, Value: v})
	}
	return h, nil
}

func (d *decoder) typeMember(f fields, head *yaml.Node, loc token.Loc) (ast.Expr, error) {
	tm := &ast.TypeMemberDef{Loc: loc, Name: head.Value}
	if v := f.get("variance"); v != nil {
		switch strings.TrimPrefix(v.Value, ":") {
		case "out":
			tm.Variance = ast.Covariant
		case "in":
			tm.Variance = ast.Contravariant
		case "invariant", "":
		default:
			return nil, d.errorf(v, "unknown variance %q", v.Value)
		}
	}
	var err error
	if tm.Fixed, err = d.typ(f.get("fixed")); err != nil {
		return nil, err
	}
	if tm.Upper, err = d.typ(f.get("upper")); err != nil {
		return nil, err
	}
	if tm.Lower, err = d.typ(f.get("lower")); err != nil {
		return nil, err
	}
	return tm, nil
}
