// Package importworker provides the supervisor side of the import pipeline:
// it consumes import jobs from the work queue, runs the extraction chain
// exactly once per recipe, and persists the terminal outcome.
package importworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plateful/importer/extract"
	"github.com/plateful/importer/extract/freetext"
	"github.com/plateful/importer/extract/jsonld"
	"github.com/plateful/importer/extract/platform"
	"github.com/plateful/importer/llm"
	_ "github.com/plateful/importer/llm/providers" // provider registry
	"github.com/plateful/importer/source"
	"github.com/plateful/importer/source/fetch"
	"github.com/plateful/importer/source/urlguard"
	"github.com/plateful/importer/storage"
)

// Component implements the import-worker processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta
	handler    *Handler
	recipes    *storage.RecipeStore
	metrics    *workerMetrics

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	jobsProcessed  atomic.Int64
	errors         atomic.Int64
	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a new import-worker processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Use default config if ports not set
	if config.Ports == nil {
		config = DefaultConfig()
		// Re-unmarshal to get user-provided values
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Component{
		name:       "import-worker",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		platform:   deps.Platform,
	}

	return c, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start wires the extraction chain and begins consuming import jobs.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.markStopped()
		return fmt.Errorf("get JetStream context: %w", err)
	}

	recipes, err := storage.NewRecipeStore(ctx, js)
	if err != nil {
		c.markStopped()
		return fmt.Errorf("create recipe store: %w", err)
	}
	images, err := storage.NewImageStore(ctx, js)
	if err != nil {
		c.markStopped()
		return fmt.Errorf("create image store: %w", err)
	}

	guard := urlguard.New()
	fetcher := fetch.NewFetcher(guard, fetch.Config{Timeout: c.config.GetFetchTimeout()})

	llmClient := llm.NewClient(llm.EndpointConfig{
		Provider: c.config.LLMProvider,
		Model:    c.config.LLMModel,
		URL:      c.config.LLMURL,
		APIKey:   c.config.LLMAPIKey,
	}, llm.WithLogger(c.logger))
	freetextExtractor := freetext.New(llmClient, freetext.WithLogger(c.logger))

	apifyToken := c.config.ApifyToken
	if apifyToken == "" {
		apifyToken = os.Getenv("APIFY_TOKEN")
	}
	apify := platform.NewApifyClient(platform.ApifyConfig{Token: apifyToken})
	instagram := platform.NewInstagram(apify, freetextExtractor, c.logger)

	orchestrator := extract.NewOrchestrator(
		guard,
		fetcher,
		[]extract.PlatformExtractor{instagram},
		[]extract.Extractor{jsonld.New(), freetextExtractor},
		c.logger,
	)

	metrics := newMetrics(prometheus.DefaultRegisterer)

	c.mu.Lock()
	c.recipes = recipes
	c.metrics = metrics
	c.handler = NewHandler(orchestrator, recipes, images, fetcher, metrics, c.logger)
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.consumeMessages(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.gcLoop(runCtx)
	}()

	c.logger.Info("Import worker started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"gc_interval", c.config.GetGCInterval())

	return nil
}

func (c *Component) markStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// consumeMessages processes incoming import jobs one at a time.
func (c *Component) consumeMessages(ctx context.Context) {
	js, err := c.natsClient.JetStream()
	if err != nil {
		c.logger.Error("Failed to get JetStream context", "error", err)
		return
	}

	consumer, err := js.Consumer(ctx, c.config.StreamName, c.config.ConsumerName)
	if err != nil {
		c.logger.Error("Failed to get consumer", "error", err,
			"stream", c.config.StreamName, "consumer", c.config.ConsumerName)
		return
	}

	c.logger.Info("Consumer connected", "stream", c.config.StreamName, "consumer", c.config.ConsumerName)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // Timeout, try again
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				_ = msg.Nak()
				for remaining := range msgs.Messages() {
					_ = remaining.Nak()
				}
				return
			default:
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage processes a single import job delivery.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.updateLastActivity()

	var job source.ImportJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		c.logger.Warn("Failed to parse import job", "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}
	if err := job.Validate(); err != nil {
		c.logger.Warn("Dropping invalid import job", "job_id", job.JobID, "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	c.logger.Info("Processing import job",
		"job_id", job.JobID,
		"recipe_id", job.RecipeID,
		"kind", job.Kind)

	if err := c.handler.Process(ctx, &job); err != nil {
		// The recipe row is already defensively failed; Nak so stream
		// retry and alerting still observe the delivery.
		c.logger.Error("Import job died unexpectedly", "job_id", job.JobID, "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	c.jobsProcessed.Add(1)
	_ = msg.Ack()
}

// gcLoop periodically purges failed rows older than the configured TTL.
func (c *Component) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.GetGCInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.config.GetFailedRowTTL())
			purged, err := c.recipes.PurgeFailedBefore(ctx, cutoff)
			if err != nil {
				c.logger.Warn("Failed-row GC sweep failed", "error", err)
				c.errors.Add(1)
				continue
			}
			if purged > 0 {
				c.metrics.rowsPurged.Add(float64(purged))
				c.logger.Info("Purged stale failed rows", "count", purged, "cutoff", cutoff)
			}
		}
	}
}

// updateLastActivity safely updates the last activity timestamp.
func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

// getLastActivity safely retrieves the last activity timestamp.
func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}

// Stop gracefully stops the component within the given timeout.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		// Graceful shutdown completed
	case <-time.After(timeout):
		err = fmt.Errorf("stop timed out after %v", timeout)
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Import worker stopped",
		"jobs_processed", c.jobsProcessed.Load(),
		"errors", c.errors.Load())

	return err
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "import-worker",
		Type:        "processor",
		Description: "Recipe import supervisor consuming the job work queue",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

// buildPort creates a component.Port from a PortDefinition.
func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return importWorkerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}
