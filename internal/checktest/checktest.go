// Package checktest loads multi-file fixtures for package tests. A fixture
// is a txtar archive whose comment section holds expectations, one per line:
//
//	error a.ast.yaml:3 7002
//	info a.ast.yaml 7014
//	type a.ast.yaml:5:7 Integer
//
// A file without a line matches a diagnostic anywhere in that file. Every
// diagnostic must be matched by exactly one error or info line.
package checktest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/astio"
	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/token"
)

// Fixture is a decoded archive.
type Fixture struct {
	Name     string
	Files    map[string][]byte
	Programs []*ast.Program
	Expect   []Expectation
}

// Expectation is one line of the archive comment.
type Expectation struct {
	Kind string // "error", "info", "type", "none"
	Args []string
}

// TB is the subset of testing.TB fixtures need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Load reads and decodes a fixture file.
func Load(t TB, path string) *Fixture {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return Parse(t, path, data)
}

// Parse decodes fixture bytes.
func Parse(t TB, name string, data []byte) *Fixture {
	t.Helper()
	f, err := parse(name, data)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return f
}

func parse(name string, data []byte) (*Fixture, error) {
	ar := txtar.Parse(data)
	fx := &Fixture{Name: name, Files: make(map[string][]byte)}
	for _, f := range ar.Files {
		fx.Files[f.Name] = f.Data
		prog, err := astio.Decode(f.Name, f.Data)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", name, err)
		}
		fx.Programs = append(fx.Programs, prog)
	}
	sc := bufio.NewScanner(bytes.NewReader(ar.Comment))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		fx.Expect = append(fx.Expect, Expectation{Kind: parts[0], Args: parts[1:]})
	}
	return fx, nil
}

// Paths returns the file names of the fixture in sorted order.
func (f *Fixture) Paths() []string {
	out := make([]string, 0, len(f.Files))
	for p := range f.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Program returns the decoded file with the given name.
func (f *Fixture) Program(name string) *ast.Program {
	for _, p := range f.Programs {
		if p.File == name {
			return p
		}
	}
	return nil
}

// Replace returns a copy of the fixture with one file re-decoded from new
// contents, for incremental tests.
func (f *Fixture) Replace(t TB, name string, data []byte) *Fixture {
	t.Helper()
	prog, err := astio.Decode(name, data)
	if err != nil {
		t.Fatalf("%v", err)
	}
	cp := &Fixture{Name: f.Name, Files: make(map[string][]byte), Expect: f.Expect}
	for k, v := range f.Files {
		cp.Files[k] = v
	}
	cp.Files[name] = data
	replaced := false
	for _, p := range f.Programs {
		if p.File == name {
			cp.Programs = append(cp.Programs, prog)
			replaced = true
		} else {
			cp.Programs = append(cp.Programs, p)
		}
	}
	if !replaced {
		cp.Programs = append(cp.Programs, prog)
	}
	return cp
}

// Decode parses a single interchange source for tests that need one file.
func Decode(t TB, name, src string) *ast.Program {
	t.Helper()
	prog, err := astio.Decode(name, []byte(src))
	if err != nil {
		t.Fatalf("%v", err)
	}
	return prog
}

// TypeFunc returns the printed type of the expression at a position.
type TypeFunc func(file string, pos token.Pos) (string, bool)

// Mismatches compares diagnostics and types against the expectations of f
// and returns one line per mismatch.
func (f *Fixture) Mismatches(diags []*diagnostics.DiagnosticError, typeAt TypeFunc) []string {
	var out []string
	used := make([]bool, len(diags))
	for _, e := range f.Expect {
		switch e.Kind {
		case "none":
		case "error", "info":
			if len(e.Args) != 2 {
				out = append(out, fmt.Sprintf("malformed expectation %q", e))
				continue
			}
			file, line, err := fileLine(e.Args[0])
			code, cerr := strconv.Atoi(e.Args[1])
			if err != nil || cerr != nil {
				out = append(out, fmt.Sprintf("malformed expectation %q", e))
				continue
			}
			sev := diagnostics.SeverityError
			if e.Kind == "info" {
				sev = diagnostics.SeverityInfo
			}
			found := false
			for i, d := range diags {
				if used[i] || d.Severity != sev || int(d.Code) != code || d.Loc.File != file {
					continue
				}
				if line > 0 && d.Loc.Start.Line != line {
					continue
				}
				used[i], found = true, true
				break
			}
			if !found {
				out = append(out, fmt.Sprintf("missing %s", e))
			}
		case "type":
			if len(e.Args) < 2 {
				out = append(out, fmt.Sprintf("malformed expectation %q", e))
				continue
			}
			file, pos, err := filePos(e.Args[0])
			if err != nil {
				out = append(out, fmt.Sprintf("malformed expectation %q: %v", e, err))
				continue
			}
			want := strings.Join(e.Args[1:], " ")
			got, ok := typeAt(file, pos)
			if !ok {
				got = "<nothing>"
			}
			if got != want {
				out = append(out, fmt.Sprintf("type at %s: got %s, want %s", e.Args[0], got, want))
			}
		default:
			out = append(out, fmt.Sprintf("unknown expectation kind %q", e.Kind))
		}
	}
	for i, d := range diags {
		if !used[i] {
			out = append(out, fmt.Sprintf("unexpected %s", d))
		}
	}
	return out
}

func (e Expectation) String() string {
	return e.Kind + " " + strings.Join(e.Args, " ")
}

// fileLine splits "file" or "file:line".
func fileLine(s string) (string, int, error) {
	file, rest, ok := strings.Cut(s, ":")
	if !ok {
		return s, 0, nil
	}
	line, err := strconv.Atoi(rest)
	return file, line, err
}

// filePos splits "file:line:col".
func filePos(s string) (string, token.Pos, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", token.Pos{}, fmt.Errorf("want file:line:col")
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", token.Pos{}, err
	}
	col, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", token.Pos{}, err
	}
	return parts[0], token.Pos{Line: line, Column: col}, nil
}
