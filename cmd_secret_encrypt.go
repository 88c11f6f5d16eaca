package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/secrets"
)

func init() {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "encrypt [flags] [PLAINTEXT]",
		Short: "Seal a value for use in a pipeline file",
		Long: "Print the `secure:` form of PLAINTEXT.  With no argument the plaintext " +
			"is read from stdin, which keeps it out of the shell history; a single " +
			"trailing newline is stripped so that `echo` pipes in what you meant.",
		Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyFromFlag(keyFile)
			if err != nil {
				return err
			}
			if len(key) == 0 {
				return fmt.Errorf("no key: pass --key-file or set MATRIXCI_KEY_FILE")
			}

			var plaintext string
			if len(args) == 1 {
				plaintext = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				plaintext = strings.TrimSuffix(string(raw), "\n")
			}

			sealed, err := secrets.Encrypt(key, plaintext)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "",
		"Seal with the key in `KEY_FILE` (default $MATRIXCI_KEY_FILE)")
	argparserSecret.AddCommand(cmd)
}
