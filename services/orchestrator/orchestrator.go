// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the core concierge service.
//
// This package contains the main service type that coordinates all
// components: the rate/security gate, conversation state store, product
// resolver, disambiguation machine, context enricher, guardrail
// validator, escalation notifier, HTTP routing, and observability
// infrastructure.
//
// # Hosted Integration
//
// The service supports dependency injection via extensions.ServiceOptions,
// enabling hosted deployments to provide a custom AuthProvider (JWT, API
// keys). The open-source build uses a no-op provider that accepts every
// request as an admin, which is the right posture for a single-tenant
// local deployment.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianConcierge/pkg/extensions"
	"github.com/AleutianAI/AleutianConcierge/services/llm"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/dialog"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/enrich"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/escalation"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/gate"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/guardrail"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/resolver"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/services"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/state"
	"github.com/AleutianAI/AleutianConcierge/services/orchestrator/ttl"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the concierge service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	// Cleanup of background components is automatic on return.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers must
	// not modify routes after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the service configuration.
//
// All fields are optional; zero values take the defaults applied by New().
// External service URLs left empty disable the component they feed, and
// the affected pipeline stage degrades instead of failing.
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses GIN_MODE env var or "debug".
	GinMode string

	// LLMBackend selects the model provider ("ollama", "openai").
	// Empty falls back to the LLM_BACKEND env var via the client factory.
	LLMBackend string

	// LLMRequestsPerSecond throttles outbound model calls. Zero disables
	// throttling.
	LLMRequestsPerSecond float64

	// WeaviateURL is the product search index. Empty disables resolution
	// against the index; every message then takes the no-candidates path.
	WeaviateURL string

	// EmbedderURL and EmbedderModel configure the embedding endpoint the
	// searcher and the ingestion handler share.
	EmbedderURL   string
	EmbedderModel string

	// RerankerURL is the optional cross-encoder endpoint. Empty keeps
	// fused retrieval scores as final.
	RerankerURL string

	// CustomerAPIURL is the platform customer-data service (ownership,
	// purchases, historical events).
	CustomerAPIURL string

	// StrategyAPIURL is the sales-strategy service. Empty uses the
	// keyword fallback table only.
	StrategyAPIURL string

	// RulesPath is the authorized-rules file watched for hot reload.
	// Empty runs with no authorized rules, so every promise in a draft
	// reply is judged unauthorized.
	RulesPath string

	// EscalationWebhookURL receives escalation tickets. Empty keeps
	// tickets local (logged and returned, not delivered).
	EscalationWebhookURL string

	// BadgerPath is the conversation store directory. Empty selects an
	// in-memory BadgerDB, which loses state on restart.
	BadgerPath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// RateWindow and RateMaxRequests configure the per-conversation
	// sliding window. Defaults: 10s, 5.
	RateWindow      time.Duration
	RateMaxRequests int

	// SweepInterval is the background pending-object sweep cadence.
	// Default: 1 hour.
	SweepInterval time.Duration

	// StageTimeout bounds each external pipeline stage. Default: 30s.
	StageTimeout time.Duration

	// EscalateOnHardFailure opens a ticket when the pipeline fails hard.
	// Default: true.
	EscalateOnHardFailure *bool
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 1 * time.Hour
	}
	if cfg.EscalateOnHardFailure == nil {
		v := true
		cfg.EscalateOnHardFailure = &v
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; the sweeper and file-rules watcher run their own goroutines.
type service struct {
	config         Config
	opts           extensions.ServiceOptions
	router         *gin.Engine
	llmClient      llm.LLMClient
	weaviateClient *weaviate.Client
	embedder       resolver.Embedder
	store          state.ConversationStore
	pipeline       *services.MessagePipeline
	validator      *guardrail.Validator
	rules          enrich.RulesProvider
	fileRules      *enrich.FileRules
	sweeper        *ttl.Sweeper
	tracerCleanup  func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates the concierge Service with the given configuration.
//
// # Description
//
// New initializes every component in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Opens the BadgerDB conversation store
//  4. Creates the Weaviate client and ensures the Product schema
//  5. Creates the LLM client and its oracles
//  6. Assembles the resolver, dialog machine, enricher, guardrail
//     validator, and escalation notifier into the message pipeline
//  7. Starts the pending-object sweeper
//  8. Sets up HTTP routes with extension options
//
// If opts is nil, DefaultOptions() is used (no-op auth, admin-everything).
//
// # Outputs
//
//   - Service: Ready-to-run concierge service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - LLM client creation fails when the provider env is misconfigured
//   - Weaviate is optional; without it every resolution has no candidates
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
		s.opts.ApplyDefaults()
	} else {
		s.opts = extensions.DefaultOptions()
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	observability.InitMetrics()

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, resolution disabled", "error", err)
		// Not fatal - the pipeline degrades to the no-candidates path
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to assemble message pipeline: %w", err)
	}

	s.initSweeper()
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting concierge server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("concierge-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the BadgerDB conversation store. An empty BadgerPath
// selects the in-memory DB.
func (s *service) initStore() error {
	store, err := state.NewBadgerStore(state.BadgerConfig{Path: s.config.BadgerPath})
	if err != nil {
		return err
	}
	s.store = store

	if s.config.BadgerPath == "" {
		slog.Warn("No store path configured, conversation state is in-memory only")
	} else {
		slog.Info("Conversation store opened", "path", s.config.BadgerPath)
	}
	return nil
}

// initWeaviate initializes the Weaviate client and the shared embedder.
//
// # Limitations
//
//   - Returns nil error if WeaviateURL is empty (optional dependency)
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, product resolution disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := datatypes.EnsureSchema(context.Background(), s.weaviateClient); err != nil {
		return fmt.Errorf("failed to ensure Product schema: %w", err)
	}

	s.embedder = resolver.NewHTTPEmbedder(s.config.EmbedderURL, s.config.EmbedderModel, s.config.StageTimeout)
	slog.Info("Weaviate client initialized", "url", weaviateURL)

	return nil
}

// initLLMClient creates the throttled model client.
func (s *service) initLLMClient() error {
	var (
		client llm.LLMClient
		err    error
	)
	switch s.config.LLMBackend {
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "":
		s.llmClient, err = llm.NewClientFromEnv()
		return err
	default:
		return fmt.Errorf("unknown LLM backend %q", s.config.LLMBackend)
	}
	if err != nil {
		return err
	}
	s.llmClient = llm.NewThrottledClient(client, s.config.LLMRequestsPerSecond)
	return nil
}

// initPipeline assembles the message pipeline from its components.
func (s *service) initPipeline() error {
	oracles := llm.NewOracles(s.llmClient)
	replies := llm.NewAgentReplyGenerator(s.llmClient)

	var searcher resolver.Searcher
	if s.weaviateClient != nil {
		searcher = resolver.NewWeaviateSearcher(s.weaviateClient, s.embedder)
	}
	var reranker resolver.Reranker
	if s.config.RerankerURL != "" {
		reranker = resolver.NewHTTPReranker(s.config.RerankerURL, s.config.StageTimeout)
	}
	res := resolver.New(searcher, reranker, resolver.Config{})

	var rules enrich.RulesProvider
	if s.config.RulesPath != "" {
		fileRules, err := enrich.NewFileRules(s.config.RulesPath)
		if err != nil {
			return fmt.Errorf("failed to load authorized rules: %w", err)
		}
		s.fileRules = fileRules
		rules = fileRules
	} else {
		slog.Warn("No authorized-rules file configured, all promises will be flagged")
		rules = enrich.StaticRules{}
	}
	s.rules = rules

	var customer enrich.CustomerClient
	if s.config.CustomerAPIURL != "" {
		customer = enrich.NewHTTPCustomerClient(s.config.CustomerAPIURL, s.config.StageTimeout)
	}
	var strategy enrich.StrategyProvider
	if s.config.StrategyAPIURL != "" {
		strategy = enrich.NewHTTPStrategyProvider(s.config.StrategyAPIURL, s.config.StageTimeout)
	}
	enricher := enrich.NewEnricher(rules, customer, strategy, enrich.Config{})

	validator, err := guardrail.NewValidator(oracles)
	if err != nil {
		return fmt.Errorf("failed to build guardrail validator: %w", err)
	}
	s.validator = validator

	notifier := escalation.NewWebhookNotifier(s.config.EscalationWebhookURL, s.config.StageTimeout)

	s.pipeline = services.NewMessagePipeline(
		gate.New(gate.Config{
			Window:      s.config.RateWindow,
			MaxRequests: s.config.RateMaxRequests,
		}),
		s.store,
		res,
		dialog.New(oracles, oracles),
		enricher,
		validator,
		notifier,
		customer,
		oracles,
		replies,
		services.Config{
			StageTimeout:          s.config.StageTimeout,
			EscalateOnHardFailure: *s.config.EscalateOnHardFailure,
		},
	)
	return nil
}

// initSweeper starts the background pending-object sweeper.
func (s *service) initSweeper() {
	s.sweeper = ttl.NewSweeper(s.store, nil, ttl.SweeperConfig{
		Interval: s.config.SweepInterval,
	})
	if err := s.sweeper.Start(context.Background()); err != nil {
		slog.Warn("Pending-object sweeper failed to start", "error", err)
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("concierge-orchestrator"))

	routes.SetupRoutes(s.router, s.pipeline, s.store, s.weaviateClient, s.embedder, s.validator, s.rules, s.opts)
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure.
func (s *service) cleanup() {
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			slog.Warn("Sweeper stop error", "error", err)
		}
	}

	if s.fileRules != nil {
		if err := s.fileRules.Close(); err != nil {
			slog.Warn("Rules watcher close error", "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Conversation store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
