package astio

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/token"
)

// ParseType parses the annotation mini-language. base is the location of
// the first character of s; node locations are offsets from it on the same
// line.
func ParseType(s string, base token.Loc) (ast.TypeExpr, error) {
	p := &typeParser{src: s, base: base}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q after type", p.src[p.pos:])
	}
	return t, nil
}

type typeParser struct {
	src  string
	pos  int
	base token.Loc
}

func (p *typeParser) errorf(format string, args ...any) error {
	loc := p.locAt(p.pos, p.pos)
	return &DecodeError{File: loc.File, Pos: loc.Start, Msg: fmt.Sprintf("type %q: ", p.src) + fmt.Sprintf(format, args...)}
}

func (p *typeParser) locAt(start, end int) token.Loc {
	l := p.base
	l.Start = token.Pos{Line: p.base.Start.Line, Column: p.base.Start.Column + start}
	l.End = token.Pos{Line: p.base.Start.Line, Column: p.base.Start.Column + end}
	return l
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// tmethods are the T.xxx forms; T.nilable must not match T.nil.
var tmethods = []string{"nilable", "any", "all", "untyped", "noreturn", "self_type", "type_parameter", "class_of"}

func (p *typeParser) parseType() (ast.TypeExpr, error) {
	p.skipSpace()
	start := p.pos
	switch {
	case p.accept("["):
		elems, err := p.parseList("]")
		if err != nil {
			return nil, err
		}
		return &ast.TypeTuple{Loc: p.locAt(start, p.pos), Elems: elems}, nil
	case p.accept("{"):
		return p.parseShape(start)
	case strings.HasPrefix(p.src[p.pos:], "T."):
		save := p.pos
		p.pos += 2
		name := p.ident()
		for _, m := range tmethods {
			if m == name {
				return p.parseTMethod(name, start)
			}
		}
		p.pos = save
		return nil, p.errorf("unknown type form T.%s", name)
	}
	ref, err := p.parseConst()
	if err != nil {
		return nil, err
	}
	tn := &ast.TypeName{Ref: ref}
	if p.accept("[") {
		args, err := p.parseList("]")
		if err != nil {
			return nil, err
		}
		tn.Args = args
	}
	tn.Loc = p.locAt(start, p.pos)
	return tn, nil
}

func (p *typeParser) parseTMethod(name string, start int) (ast.TypeExpr, error) {
	switch name {
	case "untyped":
		return &ast.TypeUntyped{Loc: p.locAt(start, p.pos)}, nil
	case "noreturn":
		return &ast.TypeNoReturn{Loc: p.locAt(start, p.pos)}, nil
	case "self_type":
		return &ast.TypeSelf{Loc: p.locAt(start, p.pos)}, nil
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	switch name {
	case "type_parameter":
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		id := p.ident()
		if id == "" {
			return nil, p.errorf("expected type parameter name")
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return &ast.TypeParamRef{Loc: p.locAt(start, p.pos), Name: id}, nil
	case "class_of":
		ref, err := p.parseConst()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return &ast.TypeClassOf{Loc: p.locAt(start, p.pos), Ref: ref}, nil
	}
	members, err := p.parseList(")")
	if err != nil {
		return nil, err
	}
	loc := p.locAt(start, p.pos)
	switch name {
	case "nilable":
		if len(members) != 1 {
			return nil, p.errorf("T.nilable takes one type")
		}
		return &ast.TypeNilable{Loc: loc, Inner: members[0]}, nil
	case "any":
		return &ast.TypeAny{Loc: loc, Members: members}, nil
	default:
		return &ast.TypeAll{Loc: loc, Members: members}, nil
	}
}

func (p *typeParser) parseList(closer string) ([]ast.TypeExpr, error) {
	var out []ast.TypeExpr
	if p.accept(closer) {
		return out, nil
	}
	for {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.accept(closer) {
			return out, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *typeParser) parseShape(start int) (ast.TypeExpr, error) {
	shape := &ast.TypeShape{}
	if !p.accept("}") {
		for {
			p.skipSpace()
			fstart := p.pos
			field := &ast.ShapeField{}
			if p.accept(`"`) {
				end := strings.IndexByte(p.src[p.pos:], '"')
				if end < 0 {
					return nil, p.errorf("unterminated string key")
				}
				field.Key = p.src[p.pos : p.pos+end]
				p.pos += end + 1
				if err := p.expect("=>"); err != nil {
					return nil, err
				}
			} else {
				field.Key = p.ident()
				field.Symbol = true
				if field.Key == "" {
					return nil, p.errorf("expected shape key")
				}
				if err := p.expect(":"); err != nil {
					return nil, err
				}
			}
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			field.Type = t
			field.Loc = p.locAt(fstart, p.pos)
			shape.Fields = append(shape.Fields, field)
			if p.accept("}") {
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	shape.Loc = p.locAt(start, p.pos)
	return shape, nil
}

func (p *typeParser) parseConst() (*ast.ConstRef, error) {
	p.skipSpace()
	start := p.pos
	root := p.accept("::")
	var ref *ast.ConstRef
	for {
		segStart := p.pos
		name := p.ident()
		if name == "" || !unicode.IsUpper(rune(name[0])) {
			p.pos = segStart
			return nil, p.errorf("expected constant name")
		}
		ref = &ast.ConstRef{Loc: p.locAt(start, p.pos), Scope: ref, Name: name, Root: root && ref == nil}
		if !strings.HasPrefix(p.src[p.pos:], "::") {
			return ref, nil
		}
		p.pos += 2
	}
}
