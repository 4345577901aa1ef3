package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <version-id>",
	Short: "Restore an earlier policy snapshot",
	Long:  "Marks the snapshot active, rewrites paths.policy_file from it and records\na rollback decision in the provenance log.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.Rollback(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rolled back to %s (%d states, %d updates)\n",
		shortID(v.VersionID), v.QTableSize, v.HistoryLen)
	return nil
}
