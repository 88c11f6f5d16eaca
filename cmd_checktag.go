package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/buildenv"
	"github.com/datawire/matrixci/pkg/checktag"
	"github.com/datawire/matrixci/pkg/cliutil"
)

func init() {
	var tag string
	cmd := &cobra.Command{
		Use:   "check-tag [flags] VERSION_FILE",
		Short: "Check that a source version agrees with the checkout's tag",
		Long: "Read the version assignment out of VERSION_FILE (a Python source file " +
			"with a `__version__ = \"...\"` or `version = \"...\"` line) and compare " +
			"it against the tag of the commit being built.  An untagged commit " +
			"passes trivially; a tagged one passes only if tag and version are the " +
			"same release, so a v1.0.2 tag on a 1.0.2 source tree is fine and " +
			"anything else is not." +
			"\n\n" +
			"This is the same check `run` performs for a pipeline with check_tag " +
			"set; having it as its own command keeps it usable from other CI.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			if !cmd.Flags().Changed("tag") {
				facts, err := buildenv.Discover(ctx, filepath.Dir(path))
				if err != nil {
					return err
				}
				tag = facts.Tag
			}
			return checktag.Check(ctx, path, tag)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "",
		"Check against `TAG` instead of asking git about the checkout")
	argparser.AddCommand(cmd)
}
