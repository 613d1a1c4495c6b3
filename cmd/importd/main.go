// Package main provides the importd binary entry point. Importd runs the
// recipe import pipeline: the enqueue API, the extraction worker, and the
// JetStream infrastructure they share.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/plateful/importer/llm/providers"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/plateful/importer/config"
	importapi "github.com/plateful/importer/processor/import-api"
	importworker "github.com/plateful/importer/processor/import-worker"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "importd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "importd",
		Short: "Recipe import service",
		Long: `Importd runs the recipe import pipeline.

It provides:
- an HTTP API for enqueueing imports by URL, text, or image caption
- an SSRF-guarded fetcher and a structured/LLM/platform extraction chain
- a JetStream work queue with per-recipe idempotency and monthly quotas

State lives in NATS JetStream key-value buckets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	loader := config.NewLoader(logger)
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = loader.LoadFile(configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureJobStream(ctx, natsClient, logger); err != nil {
		return err
	}

	apiComp, workerComp, err := buildComponents(cfg, natsClient, logger)
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := apiComp.Start(signalCtx); err != nil {
		return fmt.Errorf("start import-api: %w", err)
	}
	if err := workerComp.Start(signalCtx); err != nil {
		_ = apiComp.Stop(5 * time.Second)
		return fmt.Errorf("start import-worker: %w", err)
	}

	mux := http.NewServeMux()
	apiComp.RegisterHTTPHandlers("/api/v1", mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(apiComp, workerComp))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	slog.Info("Importd ready", "version", Version)

	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		slog.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	shutdownTimeout := 30 * time.Second
	if err := workerComp.Stop(shutdownTimeout); err != nil {
		slog.Error("Error stopping import-worker", "error", err)
	}
	if err := apiComp.Stop(shutdownTimeout); err != nil {
		slog.Error("Error stopping import-api", "error", err)
	}

	slog.Info("Importd shutdown complete")
	return nil
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	logger.Info("Connecting to NATS", "url", cfg.NATS.URL)

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, cfg.NATS.URL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, cfg.NATS.URL)
	}

	logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// ensureJobStream provisions the work-queue stream and the worker's durable
// consumer. Redelivery of unexpected failures is explicit policy here:
// MaxDeliver bounds retries and BackOff spaces them out.
func ensureJobStream(ctx context.Context, natsClient *natsclient.Client, logger *slog.Logger) error {
	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "RECIPE_IMPORTS",
		Subjects:  []string{"recipe.import.job"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("ensure job stream: %w", err)
	}

	_, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "import-worker",
		FilterSubject: "recipe.import.job",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    3,
		BackOff:       []time.Duration{30 * time.Second, 2 * time.Minute},
	})
	if err != nil {
		return fmt.Errorf("ensure worker consumer: %w", err)
	}

	logger.Debug("JetStream job stream ready", "stream", "RECIPE_IMPORTS")
	return nil
}

// buildComponents constructs the two processors from the loaded config.
func buildComponents(cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) (*importapi.Component, *importworker.Component, error) {
	deps := component.Dependencies{
		NATSClient: natsClient,
		Logger:     logger,
	}

	apiConfig := importapi.DefaultConfig()
	apiConfig.MonthlyImportLimit = cfg.Import.MonthlyLimit
	apiJSON, err := json.Marshal(apiConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal import-api config: %w", err)
	}
	apiDiscoverable, err := importapi.NewComponent(apiJSON, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("create import-api: %w", err)
	}
	apiComp, ok := apiDiscoverable.(*importapi.Component)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected import-api component type %T", apiDiscoverable)
	}

	workerConfig := importworker.DefaultConfig()
	workerConfig.LLMProvider = cfg.LLM.Provider
	workerConfig.LLMModel = cfg.LLM.Model
	workerConfig.LLMURL = cfg.LLM.URL
	workerConfig.LLMAPIKey = cfg.LLM.APIKey
	workerConfig.ApifyToken = cfg.Apify.Token
	workerConfig.FetchTimeout = cfg.Import.FetchTimeout.String()
	workerConfig.GCInterval = cfg.Import.GCInterval.String()
	workerConfig.FailedRowTTL = cfg.Import.FailedRowTTL.String()
	workerJSON, err := json.Marshal(workerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal import-worker config: %w", err)
	}
	workerDiscoverable, err := importworker.NewComponent(workerJSON, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("create import-worker: %w", err)
	}
	workerComp, ok := workerDiscoverable.(*importworker.Component)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected import-worker component type %T", workerDiscoverable)
	}

	return apiComp, workerComp, nil
}

// healthHandler reports both components' health as JSON.
func healthHandler(api, worker component.Discoverable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiHealth := api.Health()
		workerHealth := worker.Health()

		status := http.StatusOK
		if !apiHealth.Healthy || !workerHealth.Healthy {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"import-api":    apiHealth,
			"import-worker": workerHealth,
		})
	}
}
