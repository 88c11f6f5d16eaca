package main

import (
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/index"
	"github.com/datawire/matrixci/pkg/sdist"
	"github.com/datawire/matrixci/pkg/secrets"
)

func init() {
	var flags struct {
		Server       string
		Username     string
		Password     string
		KeyFile      string
		SkipExisting bool
	}
	cmd := &cobra.Command{
		Use:   "publish [flags] SDIST_FILE...",
		Short: "Upload source distributions to a package index",
		Long: "Upload already-built sdists to a package index, the same way the " +
			"deploy step of `run` does.  The password may be a `secure:` value; " +
			"pass --key-file (or set MATRIXCI_KEY_FILE) to unseal it.",
		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			key, err := keyFromFlag(flags.KeyFile)
			if err != nil {
				return err
			}
			username, err := secrets.Resolve(key, flags.Username)
			if err != nil {
				return err
			}
			password, err := secrets.Resolve(key, flags.Password)
			if err != nil {
				return err
			}

			client := index.Client{
				UploadURL: flags.Server,
				Username:  username,
				Password:  password,
			}
			for _, filename := range args {
				art, err := sdist.FromFile(filename)
				if err != nil {
					return err
				}
				if flags.SkipExisting {
					have, err := client.HasRelease(ctx, art.Name, art.Version)
					if err != nil {
						return err
					}
					if have {
						dlog.Infof(ctx, "%s %s is already on the index; not uploading",
							art.Name, art.Version)
						continue
					}
				}
				if err := client.Upload(ctx, art); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Server, "server", index.PyPIUploadURL,
		"Upload to the index at `URL`")
	cmd.Flags().StringVar(&flags.Username, "username", os.Getenv("MATRIXCI_INDEX_USERNAME"),
		"Authenticate as `USER` (default $MATRIXCI_INDEX_USERNAME)")
	cmd.Flags().StringVar(&flags.Password, "password", os.Getenv("MATRIXCI_INDEX_PASSWORD"),
		"Authenticate with `PASSWORD`, plaintext or sealed (default $MATRIXCI_INDEX_PASSWORD)")
	cmd.Flags().StringVar(&flags.KeyFile, "key-file", "",
		"Unseal secure: values with the key in `KEY_FILE` (default $MATRIXCI_KEY_FILE)")
	cmd.Flags().BoolVar(&flags.SkipExisting, "skip-existing", false,
		"Succeed without uploading when the index already has this release")
	argparser.AddCommand(cmd)
}
