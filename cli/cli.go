/*
Package cli implements the vouchers command-line tool.

PURPOSE:
  Operator front-end over the store and the engine:

    vouchers init       --db vouchers.db
    vouchers fill       --db vouchers.db [--seed N]
    vouchers users      create|list|update|delete
    vouchers emissions  create|list|import|export
    vouchers actions    scan|undo --userid N [--voucherid N]

  The actions subcommands address entities by INTERNAL id, bypassing
  token resolution; they are meant for operators and tests, not agents.
  They still run the full engine path, so every invocation leaves a
  ledger row with origin "cli".

EXIT CODES:
  0 on success and on ok-level outcomes; 1 on usage errors,
  infrastructure failures, and non-ok outcomes (the response code's
  message goes to stderr).
*/
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ldt/voucher-engine/store/sqlite"
)

// env carries the writers every subcommand renders to.
type env struct {
	out io.Writer
	err io.Writer
}

// Run executes the CLI and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	e := &env{out: stdout, err: stderr}

	if len(args) == 0 {
		usage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "init":
		err = runInit(e, args[1:])
	case "fill":
		err = runFill(e, args[1:])
	case "users":
		err = runUsers(e, args[1:])
	case "emissions":
		err = runEmissions(e, args[1:])
	case "actions":
		return runActions(e, args[1:])
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: vouchers <command> [flags]

commands:
  init       create or migrate the database
  fill       seed the database with debug data
  users      manage users (create, list, update, delete)
  emissions  manage emissions (create, list, import, export)
  actions    submit scan/undo requests by internal id
`)
}

// newFlagSet builds a pflag set with the shared --db flag.
func newFlagSet(name string, dbPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(dbPath, "db", "vouchers.db", "SQLite database path")
	return fs
}

func openStore(path string) (*sqlite.Store, error) {
	return sqlite.New(path)
}

// runInit opens the store, which migrates the schema as a side effect.
func runInit(e *env, args []string) error {
	var dbPath string
	fs := newFlagSet("init", &dbPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Fprintf(e.out, "database ready: %s\n", dbPath)
	return nil
}

func background() context.Context { return context.Background() }
