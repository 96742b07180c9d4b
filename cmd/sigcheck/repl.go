package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/funvibe/sigcheck/internal/query"
	"github.com/funvibe/sigcheck/internal/token"
)

const historyFile = ".sigcheck_history"

const replHelp = `Commands:
  hover FILE LINE COL   symbol or type under the position
  type FILE LINE COL    type of the innermost expression
  def FILE LINE COL     definition sites of the symbol
  refs FILE LINE COL    definition and reference sites of the symbol
  diags [FILE]          diagnostics of the latest run
  reload                re-check modified files
  quit                  leave
`

var replCommands = []string{"hover", "type", "def", "refs", "diags", "reload", "help", "quit"}

// session answers repl commands against a project.
type session struct {
	p     *project
	paths []string
	out   printer
}

func runRepl(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet("repl", stderr, &opts)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	ctx := context.Background()
	p, err := opts.open(ctx, fs.Args(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	s := &session{p: p, paths: fs.Args(), out: printer{w: stdout, color: useColor(stdout, opts.noColor)}}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		var c []string
		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, line) {
				c = append(c, cmd)
			}
		}
		return c
	})

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintf(stdout, "sigcheck: %d file(s) checked, %d diagnostic(s). Type help for commands.\n",
		len(p.files), len(p.snapshot().Diagnostics))
	for {
		line, err := ln.Prompt("sigcheck> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(stdout)
			return exitOK
		}
		if err != nil {
			fmt.Fprintf(stderr, "sigcheck: %v\n", err)
			return exitFatal
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if !s.exec(ctx, line) {
			return exitOK
		}
	}
}

// exec runs one command and reports whether the session continues.
func (s *session) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	w := s.out.w
	switch fields[0] {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprint(w, replHelp)
	case "reload":
		n, err := s.p.reload(ctx, s.paths)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			break
		}
		snap := s.p.snapshot()
		fmt.Fprintf(w, "%d changed file(s), %d diagnostic(s), fast path: %v\n", n, len(snap.Diagnostics), snap.FastPath)
	case "diags":
		for _, d := range s.p.snapshot().Diagnostics {
			if len(fields) > 1 && d.Loc.File != fields[1] {
				continue
			}
			s.out.diagnostic(d)
		}
	case "hover", "type", "def", "refs":
		file, pos, err := parsePosition(fields[1:])
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			break
		}
		s.position(fields[0], file, pos)
	default:
		fmt.Fprintf(w, "unknown command %q. Type help for commands.\n", fields[0])
	}
	return true
}

func (s *session) position(cmd, file string, pos token.Pos) {
	w := s.out.w
	gs := s.p.snapshot().GlobalState
	switch cmd {
	case "hover":
		if text, ok := query.Hover(gs, file, pos); ok {
			fmt.Fprintln(w, text)
			return
		}
	case "type":
		if typ, loc, ok := query.TypeAt(gs, file, pos); ok {
			fmt.Fprintf(w, "%s  # %s\n", typ, loc)
			return
		}
	case "def", "refs":
		hit, ok := query.SymbolAt(gs, file, pos)
		if !ok {
			break
		}
		locs := query.Definition(gs, hit.Symbol)
		if cmd == "refs" {
			locs = query.References(gs, hit.Symbol)
		}
		fmt.Fprintf(w, "%s (%s)\n", gs.FullName(hit.Symbol), hit.Kind)
		for _, l := range locs {
			fmt.Fprintf(w, "  %s\n", l)
		}
		return
	}
	fmt.Fprintf(w, "nothing at %s:%s\n", file, pos)
}

func parsePosition(args []string) (string, token.Pos, error) {
	if len(args) != 3 {
		return "", token.Pos{}, fmt.Errorf("expected FILE LINE COL")
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line <= 0 {
		return "", token.Pos{}, fmt.Errorf("bad line %q", args[1])
	}
	col, err := strconv.Atoi(args[2])
	if err != nil || col <= 0 {
		return "", token.Pos{}, fmt.Errorf("bad column %q", args[2])
	}
	return args[0], token.Pos{Line: line, Column: col}, nil
}
