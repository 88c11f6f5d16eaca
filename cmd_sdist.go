// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/sdist"
)

func init() {
	var python string
	cmd := &cobra.Command{
		Use:   "sdist [flags] [DIR]",
		Short: "Build a source distribution",
		Long: "Run `setup.py sdist` in DIR (default \".\") and leave the result under " +
			"DIR/dist/.  The build is pinned to a fixed SOURCE_DATE_EPOCH, so " +
			"building the same tree twice yields the same tarball, digests and all.",
		Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			art, err := sdist.Build(cmd.Context(), dir, python)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", art.SHA256, art.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&python, "python", "",
		"Build with `INTERPRETER` instead of whichever python the PATH offers")
	argparser.AddCommand(cmd)
}
