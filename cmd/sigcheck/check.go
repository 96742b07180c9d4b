package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/funvibe/sigcheck/internal/diagnostics"
	"github.com/funvibe/sigcheck/internal/driver"
)

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiRed   = "\x1b[31m"
	ansiCyan  = "\x1b[36m"
	ansiFaint = "\x1b[2m"
)

// useColor reports whether w is a terminal that should get ANSI colours.
func useColor(w io.Writer, disabled bool) bool {
	if disabled {
		return false
	}
	// NO_COLOR convention: https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

type printer struct {
	w     io.Writer
	color bool
}

func (p printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p printer) diagnostic(d *diagnostics.DiagnosticError) {
	sev := p.paint(ansiRed, d.Severity.String())
	if d.Severity == diagnostics.SeverityInfo {
		sev = p.paint(ansiCyan, d.Severity.String())
	}
	fmt.Fprintf(p.w, "%s: %s [%d] %s\n", p.paint(ansiBold, d.Loc.String()), sev, int(d.Code), d.Message)
	for _, r := range d.Related {
		fmt.Fprintf(p.w, "    %s\n", p.paint(ansiFaint, "note: "+r.String()))
	}
}

// report prints the diagnostics of snap and a summary line, and returns the
// number of error-severity diagnostics.
func (p printer) report(snap *driver.Snapshot, files int) int {
	errs := 0
	for _, d := range snap.Diagnostics {
		p.diagnostic(d)
		if d.Severity == diagnostics.SeverityError {
			errs++
		}
	}
	for _, ie := range snap.InternalErrors {
		fmt.Fprintf(p.w, "%s %v\n", p.paint(ansiRed, "INTERNAL ERROR:"), ie)
	}
	summary := fmt.Sprintf("%s file(s), %s symbols, %s", humanize.Comma(int64(files)),
		humanize.Comma(int64(len(snap.GlobalState.Symbols()))), snap.Duration.Round(time.Millisecond))
	if errs == 0 {
		fmt.Fprintf(p.w, "No errors! (%s)\n", summary)
	} else {
		fmt.Fprintf(p.w, "%s: %s (%s)\n", p.paint(ansiBold, "Errors"), humanize.Comma(int64(errs)), summary)
	}
	return errs
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet("check", stderr, &opts)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	p, err := opts.open(context.Background(), fs.Args(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "sigcheck: %v\n", err)
		return exitFatal
	}
	out := printer{w: stdout, color: useColor(stdout, opts.noColor)}
	if out.report(p.snapshot(), len(p.files)) > 0 {
		return exitErrors
	}
	return exitOK
}
