// Package astio reads the AST interchange format written by the external
// parser: a YAML (or JSON) document describing one source file.
package astio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/token"
)

// DecodeError is a malformed interchange document.
type DecodeError struct {
	File string
	Pos  token.Pos
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.File, e.Pos, e.Msg)
}

// DecodeFile reads and decodes one interchange file.
func DecodeFile(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(path, data)
}

// Decode parses an interchange document. A UTF-8 or UTF-16 byte order mark
// selects the input encoding; without one the input is UTF-8.
func Decode(path string, data []byte) (*ast.Program, error) {
	text, err := toUTF8(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	d := &decoder{file: path}
	prog := &ast.Program{File: path, Sigil: ast.SigilTrue}
	if len(doc.Content) == 0 {
		prog.Loc = token.Loc{File: path, Start: token.Pos{Line: 1, Column: 1}}
		return prog, nil
	}
	root := doc.Content[0]
	prog.Loc = d.loc(root)
	prog.Loc.Start = token.Pos{Line: 1, Column: 1}

	bodyNode := root
	if root.Kind == yaml.MappingNode {
		bodyNode = nil
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i].Value, root.Content[i+1]
			switch key {
			case "sigil":
				prog.Sigil = ast.ParseSigil(val.Value)
			case "body":
				bodyNode = val
			case "file":
			default:
				return nil, d.errorf(root.Content[i], "unknown file key %q", key)
			}
		}
	}
	if bodyNode != nil {
		body, err := d.body(bodyNode)
		if err != nil {
			return nil, err
		}
		prog.Body = body
	}
	return prog, nil
}

func toUTF8(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) &&
		!bytes.HasPrefix(data, []byte{0xFE, 0xFF}) &&
		!bytes.HasPrefix(data, []byte{0xFF, 0xFE}) {
		return data, nil
	}
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return io.ReadAll(transform.NewReader(bytes.NewReader(data), dec))
}

type decoder struct {
	file string
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) error {
	return &DecodeError{File: d.file, Pos: token.Pos{Line: n.Line, Column: n.Column}, Msg: fmt.Sprintf(format, args...)}
}

// loc spans a node and all of its children. A `loc: [l, c, el, ec]` key on
// a mapping overrides it.
func (d *decoder) loc(n *yaml.Node) token.Loc {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == "loc" {
				if l, ok := d.explicitLoc(n.Content[i+1]); ok {
					return l
				}
			}
		}
	}
	start := token.Pos{Line: n.Line, Column: n.Column}
	return token.Loc{File: d.file, Start: start, End: endOf(n)}
}

func (d *decoder) explicitLoc(n *yaml.Node) (token.Loc, bool) {
	if n.Kind != yaml.SequenceNode || len(n.Content) != 4 {
		return token.Loc{}, false
	}
	var v [4]int
	for i, c := range n.Content {
		x, err := strconv.Atoi(c.Value)
		if err != nil {
			return token.Loc{}, false
		}
		v[i] = x
	}
	return token.Loc{File: d.file, Start: token.Pos{Line: v[0], Column: v[1]}, End: token.Pos{Line: v[2], Column: v[3]}}, true
}

func endOf(n *yaml.Node) token.Pos {
	end := token.Pos{Line: n.Line, Column: n.Column + scalarWidth(n)}
	for _, c := range n.Content {
		if e := endOf(c); end.Before(e) {
			end = e
		}
	}
	return end
}

func scalarWidth(n *yaml.Node) int {
	if n.Kind != yaml.ScalarNode {
		return 1
	}
	w := len(n.Value)
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		w += 2
	}
	return w
}

// fields indexes the keys of a mapping node.
type fields struct {
	node *yaml.Node
	m    map[string]*yaml.Node
	keys []string
}

func (d *decoder) fields(n *yaml.Node) fields {
	f := fields{node: n, m: make(map[string]*yaml.Node)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i].Value
		f.m[k] = n.Content[i+1]
		f.keys = append(f.keys, k)
	}
	return f
}

func (f fields) get(k string) *yaml.Node {
	n := f.m[k]
	if n != nil && n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return nil
	}
	return n
}

func (f fields) flag(k string) bool {
	n := f.get(k)
	return n != nil && n.Value == "true"
}

func (d *decoder) body(n *yaml.Node) ([]ast.Expr, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		e, err := d.expr(n)
		if err != nil {
			return nil, err
		}
		return []ast.Expr{e}, nil
	}
	out := make([]ast.Expr, 0, len(n.Content))
	for _, c := range n.Content {
		e, err := d.expr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) exprs(n *yaml.Node) ([]ast.Expr, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "expected a list")
	}
	return d.body(n)
}

func (d *decoder) optExpr(n *yaml.Node) (ast.Expr, error) {
	if n == nil {
		return nil, nil
	}
	return d.expr(n)
}

func (d *decoder) typ(n *yaml.Node) (ast.TypeExpr, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.ScalarNode {
		return nil, d.errorf(n, "type annotations are strings")
	}
	base := token.Loc{File: d.file, Start: token.Pos{Line: n.Line, Column: n.Column}}
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		base.Start.Column++
	}
	return ParseType(n.Value, base)
}

func (d *decoder) constRef(n *yaml.Node) (*ast.ConstRef, error) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return nil, d.errorf(n, "expected a constant name")
	}
	ref, err := parseConstPath(n.Value, d.loc(n))
	if err != nil {
		return nil, d.errorf(n, "%v", err)
	}
	return ref, nil
}

func parseConstPath(s string, loc token.Loc) (*ast.ConstRef, error) {
	root := strings.HasPrefix(s, "::")
	s = strings.TrimPrefix(s, "::")
	var ref *ast.ConstRef
	for i, part := range strings.Split(s, "::") {
		if !isConstName(part) {
			return nil, fmt.Errorf("%q is not a constant path", s)
		}
		ref = &ast.ConstRef{Loc: loc, Scope: ref, Name: part, Root: root && i == 0}
	}
	return ref, nil
}

func isConstName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if r != '_' && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
