/*
actions.go - scan/undo by internal id

PURPOSE:
  Submits a request through the full engine path, addressing entities by
  internal id instead of token. Convenient for operators and tests; the
  request is audited like any other, with origin "cli".
*/
package cli

import (
	"fmt"

	"github.com/ldt/voucher-engine/engine"
)

func runActions(e *env, args []string) int {
	if len(args) == 0 || (args[0] != "scan" && args[0] != "undo") {
		fmt.Fprintln(e.err, "usage: vouchers actions scan|undo --userid N [--voucherid N] [flags]")
		return 1
	}
	kind := args[0]

	var dbPath string
	var userID, voucherID int64
	fs := newFlagSet("actions "+kind, &dbPath)
	fs.Int64Var(&userID, "userid", 0, "internal user id")
	fs.Int64Var(&voucherID, "voucherid", 0, "internal voucher id")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(e.err, "error:", err)
		return 1
	}

	store, err := openStore(dbPath)
	if err != nil {
		fmt.Fprintln(e.err, "error:", err)
		return 1
	}
	defer store.Close()

	eng := engine.New(store, engine.Config{})
	resp, err := eng.ProcessByID(background(), engine.OriginCLI, kind,
		engine.UserID(userID), engine.VoucherID(voucherID))
	if err != nil {
		fmt.Fprintln(e.err, "error:", err)
		return 1
	}

	if resp.Level != engine.LevelOK {
		fmt.Fprintf(e.err, "%s: %s\n", resp.Code, resp.Status)
		return 1
	}

	fmt.Fprintf(e.out, "%s: %s\n", resp.Code, resp.Status)
	if resp.Voucher != nil {
		v := resp.Voucher
		fmt.Fprintf(e.out, "voucher %s, value %s", v.Token, v.Value.String())
		if v.CashedinBy != "" {
			fmt.Fprintf(e.out, ", cashed in by %s", v.CashedinBy)
		}
		fmt.Fprintln(e.out)
	}
	return 0
}
