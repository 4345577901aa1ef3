package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/logging"
	"github.com/danielpatrickdp/rlops-agent/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent over gRPC with Prometheus metrics",
	Long: "Exposes SelectAction, Observe, Drift and Save on server.grpc_addr and\n" +
		"/metrics on server.metrics_addr. The policy is saved on shutdown.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.LoadPolicy(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withTelemetry(ctx, a.Config.Telemetry, func(ctx context.Context) error {
		srvCfg := a.Config.Server
		startHistory := a.Agent.HistoryLen()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		httpServer := &http.Server{
			Addr:         srvCfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("metrics listening on %s", srvCfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server error: %v", err)
			}
		}()

		g := server.NewGRPCServer(
			server.New(a.Agent, a.Config.Paths.PolicyFile, a.Metrics),
			rate.Limit(srvCfg.RateLimit), srvCfg.Burst,
		)
		serveErr := server.Serve(ctx, g, srvCfg.GRPCAddr)

		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}

		stats := agent.LearnStats{Updates: a.Agent.HistoryLen() - startHistory}
		if _, err := a.Checkpoint(logging.TriggerServe, srvCfg.GRPCAddr, stats); err != nil {
			return errors.Join(serveErr, err)
		}
		return serveErr
	})
}
