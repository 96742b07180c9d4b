package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/funvibe/sigcheck/internal/index"
)

func runIndex(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet("index", stderr, &opts)
	out := fs.String("o", "sigcheck.db", "output database")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	ctx := context.Background()
	p, err := opts.open(ctx, fs.Args(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	db, err := index.Open(*out)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	defer db.Close()
	st, err := index.Write(ctx, db, p.snapshot().GlobalState)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	fmt.Fprintf(stdout, "Wrote %s: %s files, %s symbols, %s locations, %s diagnostics\n", *out,
		humanize.Comma(int64(st.Files)), humanize.Comma(int64(st.Symbols)),
		humanize.Comma(int64(st.Locations)), humanize.Comma(int64(st.Diagnostics)))
	return exitOK
}
