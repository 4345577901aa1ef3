package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var dailyLog string

func init() {
	rootCmd.AddCommand(dailyCmd)
	dailyCmd.Flags().StringVarP(&dailyLog, "log", "l", "", "Log file to learn from (defaults to paths.log_file)")
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Learn, append today's drift report and print trends",
	Long: "Loads the saved policy, learns from the log, appends a row to the report CSV,\n" +
		"analyses trends over every row and saves the policy. Prints the result as JSON.",
	RunE: runDaily,
}

func runDaily(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := dailyLog
	if path == "" {
		path = a.Config.Paths.LogFile
	}

	return withTelemetry(contextOf(cmd), a.Config.Telemetry, func(ctx context.Context) error {
		res, err := a.Daily(ctx, path)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}
