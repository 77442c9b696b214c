package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/pipeline"
)

var (
	runTitle            string
	runRequirements     string
	runRequirementsFile string
	runMaxCandidates    int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a sourcing job and run it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		requirements := runRequirements
		if runRequirementsFile != "" {
			data, err := os.ReadFile(runRequirementsFile)
			if err != nil {
				return eris.Wrap(err, "read requirements file")
			}
			requirements = string(data)
		}
		if requirements == "" {
			return eris.New("either --requirements or --requirements-file is required")
		}

		job, err := env.Pipeline.Create(ctx, runTitle, requirements, runMaxCandidates)
		if err != nil {
			return eris.Wrap(err, "create job")
		}

		zap.L().Info("job created",
			zap.String("job_id", job.ID),
			zap.String("title", job.Title),
			zap.Int("max_candidates", job.MaxCandidates),
		)

		if err := env.Pipeline.Resume(ctx, job.ID); err != nil {
			return eris.Wrap(err, "run job")
		}

		final, err := env.Store.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}

		zap.L().Info("job finished",
			zap.String("job_id", final.ID),
			zap.String("status", string(final.Status)),
			zap.Int("progress", pipeline.Progress(final)),
			zap.Int("profiles_scored", final.ProfilesScored),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringVar(&runTitle, "title", "", "job title (required)")
	runCmd.Flags().StringVar(&runRequirements, "requirements", "", "free-text job requirements")
	runCmd.Flags().StringVar(&runRequirementsFile, "requirements-file", "", "path to a file with the job requirements")
	runCmd.Flags().IntVar(&runMaxCandidates, "max-candidates", 0, "cap on discovered profiles (default from config)")
	_ = runCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(runCmd)
}
