// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// GetTerminalWidth returns the column count to wrap help output to.
func GetTerminalWidth() int {
	// COLUMNS wins if the shell or the user exports it.
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		return cols
	}

	// Otherwise measure stdout, since that is where the text goes.
	if cols, _, err := term.GetSize(1); err == nil {
		return cols
	}
	if term.IsTerminal(1) {
		return 80
	}

	// Not a terminal; 0 means "don't wrap", which keeps redirected help
	// output grep-able.
	return 0
}
