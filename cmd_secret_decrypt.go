package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/secrets"
)

func init() {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "decrypt [flags] SECURE_VALUE",
		Short: "Unseal a pipeline value",
		Long: "Print the plaintext of a `secure:` value.  Mind where that output " +
			"ends up.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyFromFlag(keyFile)
			if err != nil {
				return err
			}
			if len(key) == 0 {
				return fmt.Errorf("no key: pass --key-file or set MATRIXCI_KEY_FILE")
			}
			plaintext, err := secrets.Decrypt(key, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "",
		"Unseal with the key in `KEY_FILE` (default $MATRIXCI_KEY_FILE)")
	argparserSecret.AddCommand(cmd)
}
