package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
)

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the matrixci version",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			version := "(unknown)"
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
				version = info.Main.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cmd.Root().Name(), version)
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
