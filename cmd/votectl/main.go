// Command votectl is the operator CLI wrapping the admin HTTP surface of
// Events and Elections, plus a one-shot scheduler tick that talks to
// Postgres directly.
//
// A cobra root command carries the persistent connection flags; each leaf
// subcommand maps its failure kind onto a distinct exit code rather than
// a blanket 0/1.
package main

import (
	"os"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/votectl"
)

func main() {
	os.Exit(int(votectl.Run(os.Args[1:])))
}
