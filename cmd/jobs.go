package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/pipeline"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect sourcing jobs",
	Long:  "Commands for listing and viewing sourcing jobs and their candidates.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sourcing jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		owner, _ := cmd.Flags().GetString("owner")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status:  model.JobStatus(status),
			OwnerID: owner,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
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
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs candidates --

var jobsCandidatesCmd = &cobra.Command{
	Use:   "candidates <job-id>",
	Short: "List a job's candidates ranked by match score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLocal(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")

		candidates, err := st.RankedCandidates(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "jobs candidates")
		}

		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No scored candidates yet.")
			return nil
		}

		formatCandidatesList(os.Stdout, candidates)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (COMPLETED, FAILED, RATE_LIMITED, ...)")
	jobsListCmd.Flags().String("owner", "", "filter by owner ID")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsCandidatesCmd.Flags().Int("limit", 25, "max number of candidates to display")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsCandidatesCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.SourcingJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tFOUND\tSCORED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t--------\t-----\t------\t-------")

	for i := range jobs {
		j := &jobs[i]

		title := j.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%d\t%s\n",
			truncateID(j.ID),
			title,
			j.Status,
			pipeline.Progress(j),
			j.TotalProfilesFound,
			j.ProfilesScored,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatCandidatesList writes a ranked candidate table to w.
func formatCandidatesList(out io.Writer, candidates []model.CandidateProfile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tNAME\tHEADLINE\tMATCH\tURL")

	for i := range candidates {
		c := &candidates[i]

		headline := c.Headline
		if len(headline) > 40 {
			headline = headline[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%s\n",
			i+1,
			c.FullName,
			headline,
			c.MatchScore(),
			c.ProfileURL,
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID for table display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
