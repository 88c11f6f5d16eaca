package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/datawire/matrixci/pkg/buildenv"
	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/runner"
	"github.com/datawire/matrixci/pkg/runstore"
	"github.com/datawire/matrixci/pkg/workspace"
)

func init() {
	var flags struct {
		File        string
		KeyFile     string
		Concurrency int
		Docker      bool
		History     string
		KeepWork    bool
	}
	cmd := &cobra.Command{
		Use:   "run [flags] [DIR]",
		Short: "Run a pipeline's full job matrix",
		Long: "Expand the pipeline file in DIR (default \".\") in to its job matrix " +
			"and run every job against a clean export of the working tree.  A job is " +
			"fail-fast: its first command to exit non-zero ends it, with the " +
			"after_success/after_failure hooks as the only exception.  Sibling jobs " +
			"still run to completion." +
			"\n\n" +
			"If the pipeline has a deploy section, the one job its gate selects " +
			"publishes after its own script and check_tag steps pass; no other job " +
			"deploys, so a build publishes at most once." +
			"\n\n" +
			"Exits 0 only if every job passed.",
		Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			pipe, err := pipeline.Load(filepath.Join(dir, flags.File))
			if err != nil {
				return err
			}
			key, err := keyFromFlag(flags.KeyFile)
			if err != nil {
				return err
			}
			ws, err := workspace.Open(dir)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := ws.Lock(ctx); err != nil {
				return err
			}
			defer func() {
				_ = ws.Unlock()
			}()

			facts, err := buildenv.Discover(ctx, dir)
			if err != nil {
				return err
			}
			dlog.Infof(ctx, "build %s: commit=%s branch=%s tag=%s",
				facts.BuildID, shortCommit(facts.Commit), facts.Branch, facts.Tag)

			r := &runner.Runner{
				Pipeline:    pipe,
				Facts:       *facts,
				Workspace:   ws,
				Key:         key,
				Concurrency: flags.Concurrency,
				Docker:      flags.Docker,
			}

			var results []*runner.Result
			group := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
			group.Go("build", func(ctx context.Context) error {
				var err error
				results, err = r.Run(ctx)
				return err
			})
			runErr := group.Wait()

			status := runner.BuildStatus(results)
			out := cmd.OutOrStdout()
			for _, res := range results {
				line := fmt.Sprintf("%-8s %s", res.Status, describeJob(res.Job))
				if res.FailedStage != "" {
					line += fmt.Sprintf("  (%s: %v)", res.FailedStage, res.Err)
				}
				if res.Deployed {
					line += "  [deployed]"
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "build %s %s\n", facts.BuildID, status)

			dbURL := flags.History
			if dbURL == "" {
				dbURL = pipe.History
			}
			if dbURL != "" {
				if err := recordBuild(ctx, dbURL, facts, status, results); err != nil {
					// a broken history database doesn't change the verdict
					dlog.Warnf(ctx, "history: %v", err)
				}
			}

			if status == runner.StatusPassed && !flags.KeepWork {
				if err := ws.Cleanup(facts.BuildID); err != nil {
					dlog.Warnf(ctx, "cleanup: %v", err)
				}
			}

			if runErr != nil {
				return runErr
			}
			if status != runner.StatusPassed {
				return fmt.Errorf("build %s", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipeline.DefaultFile,
		"Read the pipeline from `FILE` under DIR")
	cmd.Flags().StringVar(&flags.KeyFile, "key-file", "",
		"Unseal secure: values with the key in `KEY_FILE` (default $MATRIXCI_KEY_FILE)")
	cmd.Flags().IntVarP(&flags.Concurrency, "concurrency", "j", 1,
		"Run up to `N` jobs at once")
	cmd.Flags().BoolVar(&flags.Docker, "docker", false,
		"Run every job in a container, even when the pipeline names no image")
	cmd.Flags().StringVar(&flags.History, "history", "",
		"Record the build to `DB_URL`, overriding the pipeline's history setting")
	cmd.Flags().BoolVar(&flags.KeepWork, "keep-work", false,
		"Keep the job directories of a passed build instead of removing them")
	argparser.AddCommand(cmd)
}

// recordBuild appends one build and its per-job results to the history
// database.
func recordBuild(
	ctx context.Context,
	dbURL string,
	facts *buildenv.Facts,
	status runner.Status,
	results []*runner.Result,
) error {
	db, err := runstore.OpenFromURL(dbURL)
	if err != nil {
		return err
	}
	started, finished := buildSpan(results)
	build := &runstore.Build{
		ID:         facts.BuildID,
		Commit:     facts.Commit,
		Branch:     facts.Branch,
		Tag:        facts.Tag,
		Status:     string(status),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err := runstore.NewBuildRepository(db).Create(ctx, build); err != nil {
		return err
	}
	jobs := runstore.NewJobRepository(db)
	for _, res := range results {
		job := &runstore.Job{
			BuildID:    build.ID,
			Number:     res.Job.Number,
			Python:     res.Job.Python,
			Env:        envString(res.Job.Env),
			Status:     string(res.Status),
			Deployed:   res.Deployed,
			Transcript: res.Transcript,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		if err := jobs.Create(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// buildSpan is the build's wall-clock span, from the first job in to the
// last job out.
func buildSpan(results []*runner.Result) (started, finished time.Time) {
	for _, res := range results {
		if started.IsZero() || res.StartedAt.Before(started) {
			started = res.StartedAt
		}
		if res.FinishedAt.After(finished) {
			finished = res.FinishedAt
		}
	}
	if started.IsZero() {
		started = time.Now()
		finished = started
	}
	return started, finished
}
