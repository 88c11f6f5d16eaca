package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/matrixci/pkg/cliutil"
	"github.com/datawire/matrixci/pkg/pipeline"
)

func init() {
	var flags struct {
		File   string
		Output string
	}
	cmd := &cobra.Command{
		Use:   "jobs [flags] [DIR]",
		Short: "List the jobs a pipeline's matrix expands to",
		Long: "Show the matrix cells `run` would execute, one line per job, without " +
			"running anything.  The job marked [deploy] is the one the deploy gate " +
			"designates; whether it actually deploys still depends on the gate's tag " +
			"and branch conditions at run time.",
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
			jobs, err := pipe.Jobs()
			if err != nil {
				return err
			}

			deployJob := 0
			if pipe.Deploy != nil {
				deployJob = pipe.Deploy.On.Job
				if deployJob == 0 {
					deployJob = 1
				}
			}

			out := cmd.OutOrStdout()
			switch flags.Output {
			case "text":
				for _, job := range jobs {
					line := describeJob(job)
					if job.Number == deployJob {
						line += "  [deploy]"
					}
					fmt.Fprintln(out, line)
				}
			case "yaml":
				type jobDoc struct {
					Job    int      `yaml:"job"`
					Python string   `yaml:"python,omitempty"`
					Env    []string `yaml:"env,omitempty"`
					Deploy bool     `yaml:"deploy,omitempty"`
				}
				docs := make([]jobDoc, 0, len(jobs))
				for _, job := range jobs {
					doc := jobDoc{
						Job:    job.Number,
						Python: job.Python,
						Deploy: job.Number == deployJob,
					}
					for _, v := range job.Env {
						doc.Env = append(doc.Env, v.String())
					}
					docs = append(docs, doc)
				}
				bs, err := yaml.Marshal(docs)
				if err != nil {
					return err
				}
				if _, err := out.Write(bs); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown output format %q (want \"text\" or \"yaml\")", flags.Output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.File, "file", "f", pipeline.DefaultFile,
		"Read the pipeline from `FILE` under DIR")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "text",
		"Print the job list as `FORMAT`: \"text\" or \"yaml\"")
	argparser.AddCommand(cmd)
}
