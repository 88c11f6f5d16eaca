package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/indexserver"
	"github.com/datawire/matrixci/pkg/secrets"
)

func init() {
	var flags struct {
		Listen   string
		Username string
		Password string
		KeyFile  string
	}
	cmd := &cobra.Command{
		Use:   "indexserver [flags] DIR",
		Short: "Serve a package index from a directory",
		Long: "Serve the sdists under DIR as a small Python package index: uploads at " +
			"/legacy/, PEP 503 listings at /simple/, and per-package JSON at " +
			"/pypi/NAME/json.  It exists so a pipeline's deploy step has somewhere " +
			"to publish without involving a real index; point deploy server: (or " +
			"publish --server) at it." +
			"\n\n" +
			"With --username/--password set, uploads require those credentials; " +
			"reads stay open.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := args[0]
			if _, err := os.Stat(dir); err != nil {
				return err
			}

			key, err := keyFromFlag(flags.KeyFile)
			if err != nil {
				return err
			}
			password, err := secrets.Resolve(key, flags.Password)
			if err != nil {
				return err
			}

			srv := &indexserver.Server{
				Dir:      dir,
				Username: flags.Username,
				Password: password,
			}
			group := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
			group.Go("http", func(ctx context.Context) error {
				sc := &dhttp.ServerConfig{Handler: srv.Handler()}
				dlog.Infof(ctx, "serving package index for %s on %s", dir, flags.Listen)
				return sc.ListenAndServe(ctx, flags.Listen)
			})
			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", ":3141",
		"Listen on `ADDR`")
	cmd.Flags().StringVar(&flags.Username, "username", "",
		"Require `USER` for uploads")
	cmd.Flags().StringVar(&flags.Password, "password", "",
		"Require `PASSWORD` for uploads, plaintext or sealed")
	cmd.Flags().StringVar(&flags.KeyFile, "key-file", "",
		"Unseal secure: values with the key in `KEY_FILE` (default $MATRIXCI_KEY_FILE)")
	argparser.AddCommand(cmd)
}
