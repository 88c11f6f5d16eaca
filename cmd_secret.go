package main

import (
	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
)

var argparserSecret = &cobra.Command{
	Use:   "secret {[flags]|SUBCOMMAND...}",
	Short: "Manage encrypted pipeline values",
	Long: "Pipeline files travel with the source, so credentials in them (index " +
		"passwords, deploy tokens) are sealed: `matrixci secret encrypt` turns a " +
		"plaintext into a `secure:` value to paste into the pipeline, and `run` " +
		"unseals it with the key file at the moment of use.  The key file itself " +
		"never leaves the machine that runs the build.",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,
}

func init() {
	argparser.AddCommand(argparserSecret)
}
