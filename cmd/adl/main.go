// Command adl compiles and runs agent workflow documents.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitRejected = 3
	exitCompile  = 4
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "run":
		err = runCommand(args[1:], stdout, stderr)
	case "plan":
		err = planCommand(args[1:], stdout, stderr)
	case "serve":
		err = serveCommand(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "adl %s\n", version)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}
	if err == nil {
		return exitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintln(stderr, exitErr.Message)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, err)
	return exitFailure
}

func usage(w io.Writer) {
	fmt.Fprint(w, `adl - deterministic agent workflow runner.

Usage:
  adl run [options] DOCUMENT     execute a document
  adl plan [options] DOCUMENT    print the compiled plan and its fingerprint
  adl serve [options]            serve the local executor over HTTP
  adl version                    print the version

Run "adl COMMAND -h" for the options of a command.
`)
}
