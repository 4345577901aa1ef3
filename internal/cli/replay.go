package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/replay"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

var (
	replayFixture string
	replayLog     string
	replayJSON    bool
	replayRecord  string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayFixture, "fixture", "f", "", "Fixture JSON with expected results")
	replayCmd.Flags().StringVarP(&replayLog, "log", "l", "", "Plain log file to replay from an empty policy")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output the replay summary as JSON")
	replayCmd.Flags().StringVar(&replayRecord, "record", "", "With --log, write the outcomes as a golden fixture to this path")
	replayCmd.MarkFlagsMutuallyExclusive("fixture", "log")
	replayCmd.MarkFlagsOneRequired("fixture", "log")
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay log lines through a seeded agent",
	Long: "Fixture mode compares each line's severity, reward sign and action against the\n" +
		"fixture and fails when any line diverges. Log mode prints the per-line results\n" +
		"and can record them as a new fixture.",
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if replayFixture != "" {
		f, err := replay.LoadFixture(replayFixture)
		if err != nil {
			return err
		}
		results, a := f.Run()
		if replayJSON {
			return printJSON(out, replay.Summarize(results, a.Document()))
		}
		if f.Description != "" {
			fmt.Fprintf(out, "%s\n\n", f.Description)
		}
		if diverge := printComparison(out, results, f.ExpectedResults); diverge > 0 {
			return fmt.Errorf("replay diverged on %d of %d lines", diverge, len(results))
		}
		return nil
	}

	lines, err := readLines(replayLog)
	if err != nil {
		return err
	}
	if replayRecord != "" {
		f := replay.RecordFixture("recorded from "+replayLog, lines, replay.DefaultReplayConfig())
		if err := replay.SaveFixture(replayRecord, f); err != nil {
			return err
		}
		fmt.Fprintf(out, "Recorded %d expected results to %s\n", len(f.ExpectedResults), replayRecord)
		return nil
	}
	results, a := replay.Replay(policy.Document{}, lines, replay.DefaultReplayConfig())
	if replayJSON {
		return printJSON(out, replay.Summarize(results, a.Document()))
	}
	printResults(out, results)
	return nil
}

// printComparison writes a comparison table and returns the number of
// diverging lines. Missing results or expectations count as divergence.
func printComparison(w io.Writer, results []replay.ReplayResult, expected []replay.FixtureExpectedResult) int {
	fmt.Fprintf(w, "%-6s| %-22s| %-22s| %s\n", "Line", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-6s+%-23s+%-23s+%s\n",
		"------", "-----------------------", "-----------------------", "------")

	total := max(len(results), len(expected))
	matches := 0
	for i := 0; i < total; i++ {
		exp, got, match := "-", "-", "DIFF"
		if i < len(expected) {
			exp = expected[i].Describe()
		}
		if i < len(results) {
			got = results[i].Outcome()
		}
		if i < len(expected) && i < len(results) && expected[i].Matches(results[i]) {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-6d| %-22s| %-22s| %s\n", i+1, exp, got, match)
	}

	diverge := total - matches
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)
	return diverge
}

func printResults(w io.Writer, results []replay.ReplayResult) {
	fmt.Fprintf(w, "%-6s  %-8s  %8s  %-14s  %s\n", "Line", "State", "Reward", "Action", "Q")
	for _, r := range results {
		q := "-"
		if r.Updated {
			q = fmt.Sprintf("%.4f", r.QValue)
		}
		fmt.Fprintf(w, "%-6d  %-8s  %8.2f  %-14s  %s\n", r.Index+1, r.Key, r.Reward, r.Action, q)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	err = state.EachLine(f, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	return lines, nil
}
