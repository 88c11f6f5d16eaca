package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/secrets"
)

func init() {
	cmd := &cobra.Command{
		Use:   "genkey KEY_FILE",
		Short: "Generate a new secrets key",
		Long: "Write a fresh random key to KEY_FILE, mode 0600.  An existing file is " +
			"left alone: overwriting the key would orphan every secret sealed with " +
			"it.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists; refusing to overwrite a key", path)
			} else if !os.IsNotExist(err) {
				return err
			}
			key, err := secrets.GenerateKey()
			if err != nil {
				return err
			}
			return secrets.WriteKeyFile(path, key)
		},
	}
	argparserSecret.AddCommand(cmd)
}
