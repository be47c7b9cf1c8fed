// users.go - user management subcommands
package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ldt/voucher-engine/engine"
	"github.com/ldt/voucher-engine/store/sqlite"
)

func runUsers(e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: vouchers users create|list|update|delete [flags]")
	}

	switch args[0] {
	case "create":
		return runUsersCreate(e, args[1:])
	case "list":
		return runUsersList(e, args[1:])
	case "update":
		return runUsersUpdate(e, args[1:])
	case "delete":
		return runUsersDelete(e, args[1:])
	}
	return fmt.Errorf("unknown users subcommand %q", args[0])
}

func userSpecFlags(fs *pflag.FlagSet, spec *sqlite.UserSpec) {
	fs.StringVar(&spec.Label, "label", "", "short user name")
	fs.StringVar(&spec.Description, "description", "", "longer user description")
	fs.BoolVar(&spec.CanCashin, "can-cashin", false, "user may cash vouchers in")
	fs.BoolVar(&spec.CanCashinByVoucherID, "can-cashin-by-voucherid", false,
		"user may cash in when presenting the voucher token")
}

func runUsersCreate(e *env, args []string) error {
	var dbPath string
	var spec sqlite.UserSpec
	fs := newFlagSet("users create", &dbPath)
	userSpecFlags(fs, &spec)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if spec.Label == "" {
		return fmt.Errorf("--label is required")
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.CreateUser(background(), spec)
	if err != nil {
		return err
	}
	printUsers(e, *user)
	return nil
}

func runUsersList(e *env, args []string) error {
	var dbPath string
	fs := newFlagSet("users list", &dbPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers(background())
	if err != nil {
		return err
	}
	printUsers(e, users...)
	return nil
}

func runUsersUpdate(e *env, args []string) error {
	var dbPath string
	var id int64
	var spec sqlite.UserSpec
	fs := newFlagSet("users update", &dbPath)
	fs.Int64Var(&id, "id", 0, "internal user id")
	userSpecFlags(fs, &spec)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("--id is required")
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.UpdateUser(background(), engine.UserID(id), spec)
	if err != nil {
		return err
	}
	printUsers(e, *user)
	return nil
}

func runUsersDelete(e *env, args []string) error {
	var dbPath string
	var id int64
	fs := newFlagSet("users delete", &dbPath)
	fs.Int64Var(&id, "id", 0, "internal user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == 0 {
		return fmt.Errorf("--id is required")
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.DeleteUser(background(), engine.UserID(id))
}

func printUsers(e *env, users ...engine.User) {
	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTOKEN\tCASHIN\tCASHIN-BY-VOUCHER\tDESCRIPTION")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\n",
			u.ID, u.Label, u.Token, u.CanCashin, u.CanCashinByVoucherID, u.Description)
	}
	w.Flush()
}
