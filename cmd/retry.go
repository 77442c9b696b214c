package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/pipeline"
)

var retryDryRun bool

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry an interrupted job and run it to completion",
	Long:  "Checks the job's retry gate (rate-limit window, failure cooldown, attempt budget) and, when allowed, resumes the job from its last checkpoint. Use --dry-run to check eligibility without resuming.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobID := args[0]

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		if retryDryRun {
			decision, err := env.Retry.CanRetry(ctx, jobID)
			if err != nil {
				return eris.Wrap(err, "check retry")
			}
			printDecision(decision)
			return nil
		}

		decision, err := env.Retry.Retry(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "retry job")
		}
		if !decision.Allowed {
			printDecision(decision)
			return eris.Errorf("job %s is not retriable: %s", jobID, decision.Reason)
		}

		if err := env.Pipeline.Resume(ctx, jobID); err != nil {
			return eris.Wrap(err, "resume job")
		}

		job, err := env.Store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		zap.L().Info("retry finished",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int("retry_count", job.RetryCount),
		)
		return nil
	},
}

func init() {
	retryCmd.Flags().BoolVar(&retryDryRun, "dry-run", false, "check eligibility without resuming")
	rootCmd.AddCommand(retryCmd)
}

func printDecision(d pipeline.Decision) {
	if d.Allowed {
		fmt.Fprintln(os.Stdout, "Retry allowed.")
		return
	}
	fmt.Fprintf(os.Stdout, "Retry denied: %s", d.Reason)
	if d.Wait > 0 {
		fmt.Fprintf(os.Stdout, " (eligible in %s)", d.Wait.Round(time.Second))
	}
	fmt.Fprintln(os.Stdout)
}
