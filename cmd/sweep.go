package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Restart eligible interrupted jobs once",
	Long:  "Finds stale, rate-limited and failed jobs whose retry gates have opened and resumes each from its last checkpoint. Runs restarted jobs to completion before exiting.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.Pool.Sweep(ctx, staleAfter())
		if err != nil {
			return eris.Wrap(err, "sweep")
		}
		env.Pool.Wait()

		zap.L().Info("sweep complete", zap.Int("jobs_restarted", started))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
