// vouchers is the operator command-line tool; see the cli package.
package main

import (
	"os"

	"github.com/ldt/voucher-engine/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
