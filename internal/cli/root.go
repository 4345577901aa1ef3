package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rlops-agent/internal/app"
	"github.com/danielpatrickdp/rlops-agent/internal/config"
	"github.com/danielpatrickdp/rlops-agent/internal/telemetry"
)

var (
	cfgPath string

	// registerer receives the agent's collectors; tests swap in a fresh registry.
	registerer prometheus.Registerer = prometheus.DefaultRegisterer
)

var rootCmd = &cobra.Command{
	Use:   "rlops",
	Short: "Epsilon-greedy Q-learning agent trained on application logs",
	Long: "Extracts discrete states from log lines, scores them by severity and learns\n" +
		"which operational action to prefer. Drift is tracked in a daily CSV report.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config (defaults when absent)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp loads configuration and builds the application context.
func openApp() (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, registerer)
}

// withTelemetry runs fn with tracing installed per cfg and flushes spans after.
func withTelemetry(ctx context.Context, cfg telemetry.Config, fn func(context.Context) error) error {
	shutdown, err := telemetry.Init(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()
	return fn(ctx)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
