package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/eaburns/pretty"

	"github.com/funvibe/sigcheck/internal/cfg"
	"github.com/funvibe/sigcheck/internal/symbols"
)

var printModes = map[string]func(w io.Writer, p *project){
	"ast":         printAST,
	"symbols":     printSymbols,
	"symbols-raw": printSymbolsRaw,
	"cfg":         printCFG,
}

func runPrint(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet("print", stderr, &opts)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "usage: sigcheck print [flags] ast|symbols|symbols-raw|cfg <path>...")
		return exitUsage
	}
	mode, ok := printModes[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "sigcheck: unknown print mode %q\n", fs.Arg(0))
		return exitUsage
	}
	p, err := opts.open(context.Background(), fs.Args()[1:], stderr)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	mode(stdout, p)
	return exitOK
}

func printAST(w io.Writer, p *project) {
	pretty.Indent = "    "
	for _, prog := range p.snapshot().Programs() {
		fmt.Fprintf(w, "# %s\n%s\n", prog.File, pretty.String(prog))
	}
}

// userSymbols returns the symbols defined in the checked files, ordered by
// full name.
func userSymbols(gs *symbols.GlobalState) []symbols.SymbolID {
	var out []symbols.SymbolID
	for _, id := range gs.Symbols() {
		for _, loc := range gs.Symbol(id).Locs {
			if gs.File(loc.File) != nil {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return gs.FullName(out[i]) < gs.FullName(out[j]) })
	return out
}

func printSymbols(w io.Writer, p *project) {
	gs := p.snapshot().GlobalState
	for _, id := range userSymbols(gs) {
		fmt.Fprintf(w, "%s  # %s\n", gs.Show(id), gs.Symbol(id).Loc())
	}
}

func printSymbolsRaw(w io.Writer, p *project) {
	gs := p.snapshot().GlobalState
	cs := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	for _, id := range userSymbols(gs) {
		fmt.Fprintf(w, "# %s\n", gs.FullName(id))
		cs.Fdump(w, gs.Symbol(id))
	}
}

func printCFG(w io.Writer, p *project) {
	gs := p.snapshot().GlobalState
	for _, path := range gs.FilePaths() {
		for _, m := range gs.File(path).Methods {
			fmt.Fprintf(w, "# %s\n%s\n", gs.FullName(m.Method), cfg.Build(m.Def))
		}
	}
}
