package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/runner"
	"github.com/datawire/matrixci/pkg/runstore"
)

func init() {
	var flags struct {
		File  string
		DB    string
		Build string
		Limit int
	}
	cmd := &cobra.Command{
		Use:   "history [flags] [DIR]",
		Short: "Show builds recorded in the history database",
		Long: "List past builds, newest first.  The database comes from --db, or else " +
			"from the history setting of the pipeline file in DIR (default \".\").  " +
			"With --build, show that build's per-job results instead; jobs that " +
			"didn't pass bring the tail of their output along.",
		Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			dbURL := flags.DB
			if dbURL == "" {
				pipe, err := pipeline.Load(filepath.Join(dir, flags.File))
				if err != nil {
					return err
				}
				dbURL = pipe.History
			}
			if dbURL == "" {
				return fmt.Errorf("no history database: pass --db or set history in the pipeline file")
			}
			db, err := runstore.OpenFromURL(dbURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.Build != "" {
				build, err := runstore.NewBuildRepository(db).Get(ctx, flags.Build)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "build %s %s  commit=%s ref=%s\n",
					build.ID, build.Status, shortCommit(build.Commit), buildRef(build))
				jobs, err := runstore.NewJobRepository(db).ListByBuild(ctx, build.ID)
				if err != nil {
					return err
				}
				for _, job := range jobs {
					line := fmt.Sprintf("%-8s #%d", job.Status, job.Number)
					if job.Python != "" {
						line += " python=" + job.Python
					}
					if job.Env != "" {
						line += " " + job.Env
					}
					if job.Deployed {
						line += "  [deployed]"
					}
					fmt.Fprintln(out, line)
					if job.Status != string(runner.StatusPassed) && job.Transcript != "" {
						for _, tl := range strings.Split(strings.TrimRight(job.Transcript, "\n"), "\n") {
							fmt.Fprintln(out, "    "+tl)
						}
					}
				}
				return nil
			}

			builds, err := runstore.NewBuildRepository(db).List(ctx, flags.Limit)
			if err != nil {
				return err
			}
			for _, build := range builds {
				fmt.Fprintf(out, "%s  %-8s %-8s %-16s %6s  %s\n",
					build.StartedAt.Local().Format("2006-01-02 15:04"),
					build.Status,
					shortCommit(build.Commit),
					buildRef(build),
					build.FinishedAt.Sub(build.StartedAt).Round(time.Second),
					build.ID,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipeline.DefaultFile,
		"Read the pipeline from `FILE` under DIR")
	cmd.Flags().StringVar(&flags.DB, "db", "",
		"Read history from `DB_URL` instead of the pipeline's setting")
	cmd.Flags().StringVar(&flags.Build, "build", "",
		"Show the jobs of build `ID` instead of the build list")
	cmd.Flags().IntVarP(&flags.Limit, "limit", "n", 20,
		"Show at most `N` builds (0 for all)")
	argparser.AddCommand(cmd)
}

// buildRef names what got built: the tag when there is one, else the branch.
func buildRef(b *runstore.Build) string {
	if b.Tag != "" {
		return "tag " + b.Tag
	}
	if b.Branch != "" {
		return b.Branch
	}
	return "-"
}
