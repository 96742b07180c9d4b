package main

import (
	"fmt"
	"io"
	"os"

	"github.com/funvibe/sigcheck/internal/config"
)

const usage = `Usage: sigcheck <command> [flags] <path>...

Commands:
  check    type check AST files and report diagnostics
  print    print ast | symbols | symbols-raw | cfg for the checked files
  index    export symbols, references and diagnostics to a SQLite database
  serve    check the files and answer queries over gRPC
  repl     check the files and answer queries interactively
  help     show this message

Run 'sigcheck <command> -h' for the flags of a command.
`

// Exit codes.
const (
	exitOK     = 0
	exitErrors = 1
	exitUsage  = 2
	exitFatal  = 3
)

type command func(args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"check": runCheck,
	"print": runPrint,
	"index": runIndex,
	"serve": runServe,
	"repl":  runRepl,
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	switch args[0] {
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "sigcheck: unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
	return cmd(args[1:], stdout, stderr)
}

func main() {
	// Catch panics and show user-friendly error
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(exitFatal)
		}
	}()
	if os.Getenv("SIGCHECK_TEST_MODE") == "1" {
		config.IsTestMode = true
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
