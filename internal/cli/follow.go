package cli

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/follow"
	"github.com/danielpatrickdp/rlops-agent/internal/logging"
)

var (
	followLog       string
	followFromStart bool
	followSaveEvery int
)

func init() {
	rootCmd.AddCommand(followCmd)
	followCmd.Flags().StringVarP(&followLog, "log", "l", "", "Log file to tail (defaults to paths.log_file)")
	followCmd.Flags().BoolVar(&followFromStart, "from-start", false, "Learn from existing content before tailing")
	followCmd.Flags().IntVar(&followSaveEvery, "save-every", 50, "Save the policy every N updates (0 saves only on exit)")
}

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Tail a log file and learn from each appended line",
	RunE:  runFollow,
}

func runFollow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadPolicy(); err != nil {
		return err
	}
	path := followLog
	if path == "" {
		path = a.Config.Paths.LogFile
	}

	out := cmd.OutOrStdout()
	var stats agent.LearnStats
	onStep := func(line string, step agent.Step) {
		stats.Lines++
		stats.TotalReward += step.Reward
		a.Metrics.LogLines.Inc()
		if step.Updated {
			stats.Updates++
		}
		fmt.Fprintf(out, "%-8s %7.2f  %s\n", step.Key, step.Reward, step.Action)
		if step.Updated && followSaveEvery > 0 && stats.Updates%followSaveEvery == 0 {
			if err := a.SavePolicy(); err != nil {
				log.Printf("save policy: %v", err)
			}
		}
	}

	f, err := follow.New(path, a.Agent.NewSession(), followFromStart, onStep)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("following %s", path)
	if err := f.Run(ctx); err != nil {
		return err
	}

	versionID, err := a.Checkpoint(logging.TriggerFollow, path, stats)
	if err != nil {
		return err
	}
	log.Printf("stopped after %d lines, %d updates; policy saved to %s", stats.Lines, stats.Updates, a.Config.Paths.PolicyFile)
	if versionID != "" {
		log.Printf("snapshot %s", shortID(versionID))
	}
	return nil
}
