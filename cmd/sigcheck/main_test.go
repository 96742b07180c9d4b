package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const libSrc = `body:
  - class: Box
    body:
      - sig: {params: {x: Integer}, returns: Integer}
      - def: put
        params: [x]
        body:
          - x
`

const appSrc = `body:
  - sig: {returns: Integer}
  - def: main
    body:
      - call: put
        recv: {call: new, recv: Box}
        args: [%s]
`

func writeProject(t *testing.T, arg string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	app := filepath.Join(dir, "app.ast.yaml")
	if err := os.WriteFile(filepath.Join(dir, "lib.ast.yaml"), []byte(libSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(app, []byte(strings.Replace(appSrc, "%s", arg, 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, app
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		arg    string
		code   int
		output []string
	}{
		{"clean", "1", exitOK, []string{"No errors!"}},
		{"mismatch", `"one"`, exitErrors, []string{"error [7002]", "Errors: 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, _ := writeProject(t, tt.arg)
			var stdout, stderr bytes.Buffer
			code := run([]string{"check", dir}, &stdout, &stderr)
			if code != tt.code {
				t.Fatalf("exit code = %d, want %d\nstdout:\n%s\nstderr:\n%s", code, tt.code, stdout.String(), stderr.String())
			}
			for _, want := range tt.output {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("output does not contain %q:\n%s", want, stdout.String())
				}
			}
			if strings.Contains(stdout.String(), "\x1b[") {
				t.Errorf("colour codes written to a non-terminal:\n%s", stdout.String())
			}
		})
	}
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != exitUsage {
		t.Errorf("no args: exit code = %d", code)
	}
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != exitUsage {
		t.Errorf("unknown command: exit code = %d", code)
	}
	if code := run([]string{"print", "bogus", "."}, &stdout, &stderr); code != exitUsage {
		t.Errorf("unknown print mode: exit code = %d", code)
	}
	if code := run([]string{"check"}, &stdout, &stderr); code != exitFatal {
		t.Errorf("no paths: exit code = %d", code)
	}
}

func TestPrintSymbols(t *testing.T) {
	dir, _ := writeProject(t, "1")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"print", "symbols", dir}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"class Box < Object", "def Box#put(x: Integer): Integer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Kernel") {
		t.Errorf("prelude symbols printed:\n%s", out)
	}
}

func TestIndex(t *testing.T) {
	dir, _ := writeProject(t, `"one"`)
	db := filepath.Join(t.TempDir(), "out.db")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"index", "-o", db, dir}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "2 files") || !strings.Contains(stdout.String(), "1 diagnostics") {
		t.Errorf("unexpected summary: %s", stdout.String())
	}
	if _, err := os.Stat(db); err != nil {
		t.Error(err)
	}
}

func TestSessionReload(t *testing.T) {
	dir, app := writeProject(t, "1")
	var opts options
	ctx := context.Background()
	p, err := opts.open(ctx, []string{dir}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	s := &session{p: p, paths: []string{dir}, out: printer{w: &out}}

	if !s.exec(ctx, "reload") || !strings.Contains(out.String(), "0 changed file(s)") {
		t.Fatalf("reload without edits: %s", out.String())
	}

	if err := os.WriteFile(app, []byte(strings.Replace(appSrc, "%s", `"one"`, 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(app, future, future); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	s.exec(ctx, "reload")
	if !strings.Contains(out.String(), "1 changed file(s), 1 diagnostic(s), fast path: true") {
		t.Errorf("reload after edit: %s", out.String())
	}

	out.Reset()
	s.exec(ctx, "diags")
	if !strings.Contains(out.String(), "[7002]") {
		t.Errorf("diags: %s", out.String())
	}

	out.Reset()
	s.exec(ctx, "hover "+app+" 5 15")
	if !strings.Contains(out.String(), "def Box#put(x: Integer): Integer") {
		t.Errorf("hover: %s", out.String())
	}

	out.Reset()
	s.exec(ctx, "type "+app)
	if !strings.Contains(out.String(), "expected FILE LINE COL") {
		t.Errorf("bad args: %s", out.String())
	}

	if s.exec(ctx, "quit") {
		t.Error("quit did not end the session")
	}
}
