package cliutil_test

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/datawire/matrixci/pkg/cliutil"
)

//nolint:paralleltest // can't use .Parallel() with .Setenv()
func TestHelpTemplate(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	noopRunE := func(_ *cobra.Command, _ []string) error {
		return nil
	}
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{
			Use:   "demo [flags] INPUT",
			Args:  cobra.ExactArgs(1),
			Short: "One line about the command",
			Long: "A longer paragraph about the command.  It goes on for long enough " +
				"that it has to be wrapped when it is shown on an 80 column terminal.",
			RunE: noopRunE,
		}
		cmd.Flags().BoolP("verbose", "v", false, "Say more")
		return cmd
	}

	testcases := map[string]struct {
		InputCmd     *cobra.Command
		ExpectedHelp string
	}{
		"leaf": {
			InputCmd: newCmd(),
			ExpectedHelp: "" +
				"Usage: demo [flags] INPUT\n" +
				"One line about the command\n" +
				"\n" +
				"A longer paragraph about the command.  It goes on for long enough that it\n" +
				"has to be wrapped when it is shown on an 80 column terminal.\n" +
				"\n" +
				"Flags:\n" +
				"  -v, --verbose   Say more\n" +
				"",
		},
		"subcommand-table": {
			InputCmd: func() *cobra.Command {
				cmd := newCmd()
				cmd.AddCommand(&cobra.Command{
					Use: "frob [flags]",
					Short: "Frobnicate the input until it is entirely frobnicated, " +
						"no matter how long that takes",
					RunE: noopRunE,
				})
				return cmd
			}(),
			ExpectedHelp: "" +
				"Usage: demo [flags] INPUT\n" +
				"One line about the command\n" +
				"\n" +
				"A longer paragraph about the command.  It goes on for long enough that it\n" +
				"has to be wrapped when it is shown on an 80 column terminal.\n" +
				"\n" +
				"Available Commands:\n" +
				"  frob          Frobnicate the input until it is entirely frobnicated, no\n" +
				"                matter how long that takes\n" +
				"\n" +
				"Flags:\n" +
				"  -v, --verbose   Say more\n" +
				"\n" +
				"Use \"demo [command] --help\" for more information about a command.\n" +
				"",
		},
	}
	for tcName, tcData := range testcases {
		tcData := tcData
		t.Run(tcName, func(t *testing.T) {
			tcData.InputCmd.SetHelpTemplate(cliutil.HelpTemplate)

			var out strings.Builder
			tcData.InputCmd.SetOutput(&out)
			tcData.InputCmd.HelpFunc()(tcData.InputCmd, []string{"--help"})

			assert.Equal(t, tcData.ExpectedHelp, out.String())
		})
	}
}
