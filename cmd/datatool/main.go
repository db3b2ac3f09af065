// Command datatool is the rollup's key-material and network-parameter
// CLI: seed/key derivation for the sequencer and bridge operators, and
// RollupParams generation for a new deployment, per SPEC_FULL.md 6.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "datatool",
		Usage: "key material and rollup parameter generation",
		Commands: []*cli.Command{
			genSeedCmd,
			genSeqPubkeyCmd,
			genSeqPrivkeyCmd,
			genOpXpubCmd,
			genParamsCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "datatool:", err)
		os.Exit(1)
	}
}
