package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var learnLog string

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.Flags().StringVarP(&learnLog, "log", "l", "", "Log file to learn from (defaults to paths.log_file)")
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Train the policy on a log file and save it",
	RunE:  runLearn,
}

func runLearn(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := learnLog
	if path == "" {
		path = a.Config.Paths.LogFile
	}

	return withTelemetry(contextOf(cmd), a.Config.Telemetry, func(ctx context.Context) error {
		res, err := a.Learn(ctx, path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Learned from %d lines, %d policy updates, total reward %.2f\n",
			res.Stats.Lines, res.Stats.Updates, res.Stats.TotalReward)
		fmt.Fprintf(out, "Drift %.4f (%s), %d states, policy saved to %s\n",
			res.Drift.DriftScore, res.Stability, a.Agent.QTableSize(), a.Config.Paths.PolicyFile)
		if res.VersionID != "" {
			fmt.Fprintf(out, "Snapshot %s\n", shortID(res.VersionID))
		}
		return nil
	})
}
