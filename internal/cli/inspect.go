package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rlops-agent/internal/logging"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/snapshot"
)

var (
	inspectLast int
	inspectJSON bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectVersionsCmd, inspectDecisionsCmd, inspectSummaryCmd)
	inspectCmd.PersistentFlags().IntVar(&inspectLast, "last", 20, "Show N most recent entries")
	inspectCmd.PersistentFlags().BoolVar(&inspectJSON, "json", false, "Output as JSON instead of a table")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect the saved policy, snapshots and provenance",
}

// #region versions
var inspectVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List policy snapshots, newest last",
	RunE:  runInspectVersions,
}

type versionRow struct {
	VersionID  string  `json:"version_id"`
	ParentID   string  `json:"parent_id,omitempty"`
	Active     bool    `json:"active"`
	QTableSize int     `json:"q_table_size"`
	HistoryLen int     `json:"history_len"`
	DriftScore float64 `json:"drift_score"`
	CreatedAt  string  `json:"created_at"`
}

func runInspectVersions(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	versions, err := store.ListVersions(inspectLast)
	if err != nil {
		return err
	}
	var activeID string
	if cur, err := store.GetCurrent(); err == nil {
		activeID = cur.VersionID
	}

	// store returns newest first, reverse for chronological
	rows := make([]versionRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = versionRow{
			VersionID:  v.VersionID,
			ParentID:   v.ParentID,
			Active:     v.VersionID == activeID,
			QTableSize: v.QTableSize,
			HistoryLen: v.HistoryLen,
			DriftScore: v.Policy.DriftMetrics.DriftScore,
			CreatedAt:  v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no versions found")
		return nil
	}
	fmt.Fprintf(out, "%-10s  %-10s  %6s  %7s  %8s  %s\n", "Version", "Parent", "States", "Updates", "Drift", "Time")
	fmt.Fprintf(out, "%-10s+-%-10s+-%6s+-%7s+-%8s+-%s\n",
		"----------", "----------", "------", "-------", "--------", "--------------------")
	for _, r := range rows {
		id := shortID(r.VersionID)
		if r.Active {
			id += "*"
		}
		fmt.Fprintf(out, "%-10s  %-10s  %6d  %7d  %8.4f  %s\n",
			id, shortID(r.ParentID), r.QTableSize, r.HistoryLen, r.DriftScore, r.CreatedAt)
	}
	return nil
}

// #endregion versions

// #region decisions
var inspectDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List provenance decisions, newest first",
	RunE:  runInspectDecisions,
}

func runInspectDecisions(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := logging.ListDecisions(store.DB(), inspectLast)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no decisions found")
		return nil
	}
	fmt.Fprintf(out, "%-10s  %-9s  %-9s  %-10s  %s\n", "Run", "Trigger", "Decision", "Version", "Reason")
	for _, e := range entries {
		fmt.Fprintf(out, "%-10s  %-9s  %-9s  %-10s  %s\n",
			shortID(e.RunID), e.TriggerType, e.Decision, shortID(e.VersionID), e.Reason)
	}
	return nil
}

// #endregion decisions

// #region summary
var inspectSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarise the saved policy file",
	RunE:  runInspectSummary,
}

func runInspectSummary(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := policy.Load(a.Config.Paths.PolicyFile)
	if err != nil {
		return err
	}
	summary := policy.Summarize(doc.QTable, len(doc.PolicyHistory))

	out := cmd.OutOrStdout()
	if inspectJSON {
		return printJSON(out, summary)
	}
	printSummary(out, doc.QTable, summary)
	return nil
}

func printSummary(w io.Writer, table policy.QTable, s policy.Summary) {
	fmt.Fprintf(w, "States: %d  Learning steps: %d\n\n", s.QTableSize, s.LearningSteps)

	fmt.Fprintf(w, "%-10s  %s\n", "State", "Best action")
	for _, key := range table.Keys() {
		row, _ := table.Lookup(key)
		fmt.Fprintf(w, "%-10s  %s\n", key, row.Best())
	}

	names := make([]string, 0, len(s.AvgQByAction))
	for name := range s.AvgQByAction {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\n%-16s  %s\n", "Action", "Mean Q")
	for _, name := range names {
		fmt.Fprintf(w, "%-16s  %8.4f\n", name, s.AvgQByAction[name])
	}
}

// #endregion summary

// openStore opens the configured snapshot store. The returned func closes it.
func openStore() (*snapshot.Store, func(), error) {
	a, err := openApp()
	if err != nil {
		return nil, nil, err
	}
	if a.Store == nil {
		a.Close()
		return nil, nil, fmt.Errorf("snapshot store is disabled: set paths.snapshot_db")
	}
	return a.Store, func() { a.Close() }, nil
}
