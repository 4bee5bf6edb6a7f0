// Hivemind server — turns natural-language missions into synthesized
// answers by orchestrating a Bayesian swarm of LLM agents.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hivemind-ai/hivemind/pkg/api"
	"github.com/hivemind-ai/hivemind/pkg/config"
	"github.com/hivemind-ai/hivemind/pkg/cost"
	"github.com/hivemind-ai/hivemind/pkg/events"
	"github.com/hivemind-ai/hivemind/pkg/llm"
	"github.com/hivemind-ai/hivemind/pkg/metrics"
	"github.com/hivemind-ai/hivemind/pkg/safety"
	"github.com/hivemind-ai/hivemind/pkg/swarm"
	"github.com/hivemind-ai/hivemind/pkg/tracestore"
	"github.com/hivemind-ai/hivemind/pkg/version"
)

func main() {
	var envFile string

	root := &cobra.Command{
		Use:     "hivemind",
		Short:   "Mission orchestration server backed by a swarm of LLM agents",
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envFile)
		},
	}
	root.Flags().StringVar(&envFile, "env-file", ".env", "Path to the .env file")

	if err := root.Execute(); err != nil {
		slog.Error("Fatal", "error", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.UpstreamAPIKey == "" {
		slog.Warn("No upstream API key configured, missions will fail fast")
	}

	slog.Info("Starting hivemind",
		"version", version.Version,
		"http_port", cfg.HTTPPort,
		"trace_dir", cfg.TraceDir,
		"swarm_size", cfg.SwarmSize)

	store := tracestore.New(cfg.TraceDir)
	bus := events.NewBus()
	scanner := safety.NewScanner()
	reg := metrics.NewRegistry()
	client := llm.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, cfg.Referrer, cfg.AppTitle,
		llm.WithHTTPClient(httpClientFor(cfg)))

	engine := swarm.NewEngine(cfg, client, store, bus, scanner,
		cost.NewEstimator(cfg), reg, swarm.NewStatusRegistry())
	server := api.NewServer(cfg, engine, store, bus, scanner, reg)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

// httpClientFor builds the upstream HTTP client with the configured
// per-call timeout.
func httpClientFor(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.CallTimeout}
}
