package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/report"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a job's ranked candidates to an XLSX workbook",
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
			return eris.Wrap(err, "export")
		}

		candidates, err := st.RankedCandidates(ctx, job.ID, exportLimit)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		out := exportOut
		if out == "" {
			out = "candidates-" + truncateID(job.ID) + ".xlsx"
		}

		if err := report.WriteWorkbook(out, job, candidates); err != nil {
			return err
		}

		zap.L().Info("export written",
			zap.String("job_id", job.ID),
			zap.String("path", out),
			zap.Int("candidates", len(candidates)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default candidates-<job>.xlsx)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max candidates to export (default 100)")
	rootCmd.AddCommand(exportCmd)
}
