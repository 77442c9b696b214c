package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/pipeline"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume an interrupted job from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Pipeline.Resume(ctx, args[0]); err != nil {
			return eris.Wrap(err, "resume job")
		}

		job, err := env.Store.GetJob(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("job finished",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int("progress", pipeline.Progress(job)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
