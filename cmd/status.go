package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's current stage, progress and retry state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatStatus(os.Stdout, job)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a detailed single-job view to w.
func formatStatus(out io.Writer, job *model.SourcingJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	_, _ = fmt.Fprintf(w, "Title:\t%s\n", job.Title)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	if job.Status == model.StatusFailed || job.Status == model.StatusRateLimited {
		_, _ = fmt.Fprintf(w, "Interrupted stage:\t%s\n", job.CurrentStage)
	}
	_, _ = fmt.Fprintf(w, "Progress:\t%d%%\n", pipeline.Progress(job))

	if job.TotalBatches > 0 {
		_, _ = fmt.Fprintf(w, "Batches:\tscraped %d/%d, parsed %d/%d, saved %d/%d, scored %d/%d\n",
			job.LastScrapedBatch, job.TotalBatches,
			job.LastParsedBatch, job.TotalBatches,
			job.LastSavedBatch, job.TotalBatches,
			job.LastScoredBatch, job.TotalBatches,
		)
	}
	_, _ = fmt.Fprintf(w, "Profiles:\tfound %d, scraped %d, saved %d, scored %d\n",
		job.TotalProfilesFound, job.ProfilesScraped, job.ProfilesSaved, job.ProfilesScored)

	if job.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "Last error:\t%s\n", job.ErrorMessage)
	}
	if job.RateLimitResetAt != nil {
		_, _ = fmt.Fprintf(w, "Rate limit:\t%s capability, resets %s\n",
			job.RateLimitType, formatETA(*job.RateLimitResetAt))
	}
	if job.RetryAfter != nil && job.Status == model.StatusFailed {
		_, _ = fmt.Fprintf(w, "Retry:\t%d/%d used, next eligible %s\n",
			job.RetryCount, job.MaxRetries, formatETA(*job.RetryAfter))
	}
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Completed:\t%s\n", job.CompletedAt.Format(time.RFC3339))
	}

	_ = w.Flush()
}

// formatETA renders an absolute time with a relative hint.
func formatETA(t time.Time) string {
	wait := time.Until(t).Round(time.Second)
	if wait <= 0 {
		return t.Format(time.RFC3339) + " (now)"
	}
	return fmt.Sprintf("%s (in %s)", t.Format(time.RFC3339), wait)
}
