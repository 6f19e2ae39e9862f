// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ranker wires the hybrid ranking engine into a runnable HTTP
// service.
//
// # Description
//
// This package contains the Service type that coordinates all engine
// components:
//   - HTTP routing via Gin
//   - In-memory graph store (optionally seeded from a JSON file)
//   - Weaviate vector store + OpenAI embedder
//   - Local rule-based reasoner
//   - BadgerDB feedback journal
//   - OpenTelemetry tracing
//   - Prometheus metrics
package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/engine"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/feedback"
	"github.com/AleutianAI/Kodiak/services/ranker/graph"
	"github.com/AleutianAI/Kodiak/services/ranker/handlers"
	"github.com/AleutianAI/Kodiak/services/ranker/observability"
	"github.com/AleutianAI/Kodiak/services/ranker/reasoner"
	"github.com/AleutianAI/Kodiak/services/ranker/storage/badger"
	"github.com/AleutianAI/Kodiak/services/ranker/vector"
)

// Service abstracts the ranker lifecycle, enabling testing and
// alternative implementations.
//
// Thread Safety: Implementations must be safe for concurrent use.
// Run() blocks and should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers
	// must not modify routes after construction.
	Router() *gin.Engine

	// Engine returns the underlying ranking engine for programmatic
	// use (operator tooling, tests).
	Engine() *engine.Engine
}

type service struct {
	config        Config
	router        *gin.Engine
	engine        *engine.Engine
	graph         *graph.MemoryStore
	journal       *feedback.Journal
	journalGC     *badger.GCRunner
	tracerCleanup func(context.Context)
}

// New creates a ranker Service with the given configuration.
//
// Initialization order: tracing, metrics, graph store (+ optional
// seed), vector store and embedder, reasoner, feedback journal, engine,
// router. A missing Weaviate URL is not fatal; the vector branch fails
// fast and the engine serves in graph-only mode.
//
// Outputs:
//   - Service: Ready-to-run service.
//   - error: Non-nil if configuration is invalid or a required
//     component cannot be built.
func New(cfg Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &service{config: cfg}

	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	if cfg.Observability.TracingEnabled {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	metrics := observability.NewRankerMetrics(nil)

	s.graph = graph.NewMemoryStore()
	if cfg.Backends.GraphSeedPath != "" {
		if err := loadGraphSeed(s.graph, cfg.Backends.GraphSeedPath); err != nil {
			return nil, fmt.Errorf("load graph seed: %w", err)
		}
	}

	vectors, embedder := s.initVectorBackend()

	journal, err := s.initJournal()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize feedback journal: %w", err)
	}
	s.journal = journal

	eng, err := engine.New(engine.Deps{
		Graph:    s.graph,
		Vectors:  vectors,
		Embedder: embedder,
		Reason:   reasoner.NewLocalReasoner(),
		Journal:  journal,
	}, cfg.Engine, metrics, slog.Default())
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	s.engine = eng

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	slog.Info("Starting ranker server", "port", s.config.Server.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Engine returns the underlying ranking engine.
func (s *service) Engine() *engine.Engine {
	return s.engine
}

// initVectorBackend builds the vector store and embedder. Missing
// Weaviate configuration degrades to an always-unavailable store so the
// circuit breaker and degradation manager steer queries to the graph
// branch. Missing OpenAI credentials fall back to the deterministic
// hash embedder.
func (s *service) initVectorBackend() (vector.Store, vector.Embedder) {
	var vectors vector.Store
	if s.config.Backends.WeaviateURL != "" {
		store, err := vector.NewWeaviateStore(vector.WeaviateConfig{
			URL:    s.config.Backends.WeaviateURL,
			Class:  s.config.Backends.WeaviateClass,
			APIKey: s.config.Backends.WeaviateAPIKey,
		})
		if err != nil {
			slog.Warn("Weaviate initialization failed, running graph-only", "error", err)
		} else {
			vectors = store
			slog.Info("Weaviate vector store initialized", "url", s.config.Backends.WeaviateURL)
		}
	} else {
		slog.Info("Weaviate URL not configured, running graph-only")
	}
	if vectors == nil {
		vectors = unavailableVectorStore{}
	}

	var embedder vector.Embedder
	if s.config.Backends.OpenAIAPIKey != "" {
		e, err := vector.NewOpenAIEmbedder(s.config.Backends.OpenAIAPIKey)
		if err != nil {
			slog.Warn("OpenAI embedder initialization failed, using hash embedder", "error", err)
		} else {
			embedder = e
			slog.Info("Using OpenAI embedding backend")
		}
	}
	if embedder == nil {
		embedder = vector.NewHashEmbedder()
		slog.Info("Using deterministic hash embedding backend")
	}
	return vectors, embedder
}

func (s *service) initJournal() (*feedback.Journal, error) {
	cfg := badger.DefaultConfig()
	cfg.Path = s.config.Backends.BadgerPath
	cfg.InMemory = s.config.Backends.BadgerInMemory
	cfg.Logger = slog.Default()
	if cfg.InMemory {
		cfg = badger.InMemoryConfig()
	}

	db, err := badger.Open(cfg)
	if err != nil {
		// Journal is an audit trail; fall back to memory-only rather
		// than refusing to start.
		slog.Warn("feedback journal disk open failed, falling back to in-memory",
			"path", cfg.Path, "error", err)
		db, err = badger.OpenInMemory()
		if err != nil {
			return nil, err
		}
		cfg = badger.InMemoryConfig()
	}
	s.journalGC = startJournalGC(db, cfg)
	return feedback.NewJournal(db, slog.Default())
}

// startJournalGC starts value log garbage collection for a persistent
// journal database. In-memory journals have no value log on disk, so
// nothing is started for them, nor when the interval disables GC.
func startJournalGC(db *badgerdb.DB, cfg badger.Config) *badger.GCRunner {
	if cfg.InMemory || cfg.GCInterval <= 0 {
		return nil
	}
	gc, err := badger.NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, slog.Default())
	if err != nil {
		slog.Warn("journal GC runner not started", "error", err)
		return nil
	}
	gc.Start()
	slog.Info("journal GC runner started",
		"interval", cfg.GCInterval, "discard_ratio", cfg.GCDiscardRatio)
	return gc
}

// initTracer initializes OpenTelemetry distributed tracing over OTLP
// gRPC. Uses an insecure connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.Observability.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.config.Observability.ServiceName)))
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

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(s.config.Observability.ServiceName))

	feedbackLimiter := rate.NewLimiter(
		rate.Limit(s.config.Server.FeedbackRatePerSecond),
		s.config.Server.FeedbackBurst)

	v1 := s.router.Group("/v1")
	v1.POST("/retrieve", handlers.HandleRetrieve(s.engine))
	v1.POST("/feedback", handlers.RateLimit(feedbackLimiter), handlers.HandleFeedback(s.engine))
	v1.GET("/mode", handlers.HandleMode(s.engine))
	v1.GET("/metrics/snapshot", handlers.HandleMetricsSnapshot(s.engine))
	v1.GET("/health", handlers.HandleHealth())

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.journalGC != nil {
		s.journalGC.Stop()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			slog.Warn("feedback journal close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// unavailableVectorStore stands in when no vector backend is
// configured. Every search fails fast with faults.ErrUnavailable, which
// the degradation manager translates into graph-only operation.
type unavailableVectorStore struct{}

func (unavailableVectorStore) Search(context.Context, []float32, int, vector.Filter) ([]datatypes.VectorHit, error) {
	return nil, fmt.Errorf("%w: no vector backend configured", faults.ErrUnavailable)
}

// graphSeed is the JSON document format for GraphSeedPath.
type graphSeed struct {
	Elements  []datatypes.Element             `json:"elements"`
	Relations []datatypes.PropagationRelation `json:"relations"`
}

// loadGraphSeed populates the in-memory graph store from a JSON file of
// elements and propagation relations.
func loadGraphSeed(store *graph.MemoryStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed graphSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	ctx := context.Background()
	for _, element := range seed.Elements {
		if err := store.UpsertElement(ctx, element); err != nil {
			return fmt.Errorf("seed element %s: %w", element.ID, err)
		}
	}
	for _, relation := range seed.Relations {
		if err := store.AddRelation(ctx, relation); err != nil {
			return fmt.Errorf("seed relation %s->%s: %w", relation.From, relation.To, err)
		}
	}
	slog.Info("graph seed loaded",
		"path", path,
		"elements", len(seed.Elements),
		"relations", len(seed.Relations))
	return nil
}
