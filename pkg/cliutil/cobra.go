// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package cliutil is the glue between cobra and how matrixci wants its
// command line to behave: subcommand-only parents, GNU-ish usage errors, and
// help output wrapped to the terminal.
package cliutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// OnlySubcommands is a cobra.PositionalArgs for commands that exist only to
// hold subcommands.  Unlike cobra.NoArgs it names the offending argument and
// suggests near-misses.
func OnlySubcommands(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	err := fmt.Errorf("invalid subcommand %q", args[0])

	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if suggestions := cmd.SuggestionsFor(args[0]); len(suggestions) > 0 {
		err = fmt.Errorf("%w\nDid you mean one of these?\n\t%s", err, strings.Join(suggestions, "\n\t"))
	}

	return cmd.FlagErrorFunc()(cmd, err)
}

// WrapPositionalArgs routes the errors of a cobra.PositionalArgs through
// FlagErrorFunc, so that bad positional arguments and bad flags report the
// same way.
func WrapPositionalArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return FlagErrorFunc(cmd, inner(cmd, args))
	}
}

// RunSubcommands is a cobra.Command.RunE for commands that only hold
// subcommands.  It must be set even though there is nothing to run: with a
// nil RunE cobra treats a bare invocation as success, and a typo'd
// subcommand should not exit 0.
func RunSubcommands(cmd *cobra.Command, args []string) error {
	cmd.SetOutput(cmd.ErrOrStderr())
	cmd.HelpFunc()(cmd, args)
	os.Exit(2)
	return nil
}

// FlagErrorFunc is for (*cobra.Command).SetFlagErrorFunc.  It prints the
// usage error plus a "See --help" pointer and exits 2, the GNU convention
// for bad usage.  It does not return on error, so anything that comes out
// of (*cobra.Command).Execute is an execution error, not a usage error.
func FlagErrorFunc(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}

	// Multi-line errors (such as subcommand suggestions) get a blank line
	// before the "See --help" pointer.
	errStr := strings.TrimRight(err.Error(), "\n")
	if strings.Contains(errStr, "\n") {
		errStr += "\n"
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\nSee '%s --help' for more information.\n",
		cmd.CommandPath(), errStr, cmd.CommandPath())
	os.Exit(2)
	return nil
}
