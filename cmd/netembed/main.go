// Package main is the entry point of the netembed embedding solver.
//
// netembed jointly scales, places and routes bidirectional network service
// chains on a capacitated substrate network: a topology-driven initial
// embedding followed by tabu-guided iterative improvement under a
// configurable multi-criteria objective.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        CLI / Scenario I/O                   │
//	│  (internal/io: YAML readers and result writer)              │
//	├─────────────────────────────────────────────────────────────┤
//	│                        Service Layer                        │
//	│  (internal/service) validation, caching, metrics, tracing,  │
//	│  optional persistence of finished solves                    │
//	├─────────────────────────────────────────────────────────────┤
//	│                        Engine Layer                         │
//	│  (internal/heuristic) initial embedding, improvement loop,  │
//	│  objective evaluation                                       │
//	├─────────────────────────────────────────────────────────────┤
//	│                        Model Layer                          │
//	│  (internal/model, internal/template, internal/overlay,      │
//	│  internal/paths) substrate, templates, overlays, shortest   │
//	│  paths                                                      │
//	└─────────────────────────────────────────────────────────────┘
//
// # Configuration
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (prefix: NETEMBED_)
//  2. Config files (config.yaml, config/config.yaml, /etc/netembed/config.yaml)
//  3. Default values
//
// Key options (environment variable format):
//
//	NETEMBED_SOLVER_OBJECTIVE   - combined, over-sub, changed, resources, delay
//	NETEMBED_SOLVER_SEED        - RNG seed; same inputs + same seed give the
//	                              same embedding and objective value
//	NETEMBED_LOG_LEVEL          - debug, info, warn, error
//	NETEMBED_METRICS_ENABLED    - Prometheus endpoint on the metrics port
//	NETEMBED_CACHE_ENABLED      - result cache (memory or redis)
//	NETEMBED_DATABASE_ENABLED   - persist finished solves to PostgreSQL
//	NETEMBED_TRACING_ENABLED    - OpenTelemetry tracing via OTLP/gRPC
//
// The scenario files are configured in the scenario section (or the matching
// NETEMBED_SCENARIO_* variables): network, templates, sources and optionally
// fixed instances, a previous embedding, and the result path.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"netembed/internal/heuristic"
	scenarioio "netembed/internal/io"
	"netembed/internal/overlay"
	"netembed/internal/repository"
	"netembed/internal/service"
	"netembed/internal/template"
	"netembed/pkg/cache"
	"netembed/pkg/config"
	"netembed/pkg/logger"
	"netembed/pkg/metrics"
	"netembed/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	log := logger.Log.With("service", cfg.App.Name)

	ctx := context.Background()

	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.ServiceInfo.WithLabelValues(cfg.App.Version, cfg.App.Environment).Set(1)
	metrics.RegisterRuntimeCollector(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if cfg.Metrics.Enabled {
		srv := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics endpoint started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Version:     cfg.App.Version,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	var resultCache *cache.EmbeddingCache
	if cfg.Cache.Enabled {
		backend, err := cache.New(&cache.Options{
			Backend:       cfg.Cache.Driver,
			DefaultTTL:    cfg.Cache.DefaultTTL,
			MaxEntries:    cfg.Cache.MaxEntries,
			RedisAddr:     cfg.Cache.Addr(),
			RedisPassword: cfg.Cache.Password,
			RedisDB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("failed to initialize cache", "error", err)
		}
		defer backend.Close()
		resultCache = cache.NewEmbeddingCache(backend, cfg.Cache.DefaultTTL)
		log.Info("result cache enabled", "driver", cfg.Cache.Driver)
	}

	var store service.Store
	if cfg.Database.Enabled {
		pg, err := repository.NewPostgresStore(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("failed to initialize repository", "error", err)
		}
		defer pg.Close()
		store = pg
		log.Info("embedding history enabled", "database", cfg.Database.Database)
	}

	req, err := loadScenario(cfg)
	if err != nil {
		logger.Fatal("failed to load scenario", "error", err)
	}

	objective, err := heuristic.ParseObjective(cfg.Solver.Objective)
	if err != nil {
		logger.Fatal("invalid solver objective", "error", err)
	}
	svc := service.New(service.Options{
		Engine: heuristic.Options{
			Objective:            objective,
			Seed:                 cfg.Solver.Seed,
			MaxUnsuccessful:      cfg.Solver.MaxUnsuccessfulIterations,
			WorseningThreshold:   cfg.Solver.SlightWorseningThreshold,
			WorseningProbability: cfg.Solver.SlightWorseningProbability,
		},
		CacheTTL: cfg.Cache.DefaultTTL,
	}, resultCache, store, m, logger.WithScenario(cfg.Scenario.Name))

	resp, err := svc.Solve(ctx, &service.Request{
		Scenario:  cfg.Scenario.Name,
		Embedding: req,
	})
	if err != nil {
		logger.Fatal("solve failed", "error", err)
	}

	if err := scenarioio.WriteResult(resp.Document, cfg.Scenario.Result); err != nil {
		logger.Fatal("failed to write result", "error", err)
	}
	log.Info("result written", "path", cfg.Scenario.Result,
		"objective_value", resp.Document.Metrics.ObjectiveValue, "cached", resp.Cached)
}

// loadScenario reads all scenario files named in the configuration.
func loadScenario(cfg *config.Config) (*heuristic.Request, error) {
	nodes, links, err := scenarioio.ReadNetwork(cfg.Scenario.Network)
	if err != nil {
		return nil, err
	}

	var templates []*template.Template
	for _, path := range cfg.Scenario.Templates {
		t, warnings, err := scenarioio.ReadTemplate(path, logger.Log)
		if err != nil {
			return nil, err
		}
		for _, w := range warnings {
			logger.Warn(w)
		}
		templates = append(templates, t)
	}

	var sources []*overlay.Source
	if cfg.Scenario.Sources != "" {
		if sources, err = scenarioio.ReadSources(cfg.Scenario.Sources, templates); err != nil {
			return nil, err
		}
	}

	var fixed []*overlay.FixedInstance
	if cfg.Scenario.Fixed != "" {
		if fixed, err = scenarioio.ReadFixed(cfg.Scenario.Fixed, templates); err != nil {
			return nil, err
		}
	}

	previous := map[*template.Template]*overlay.Overlay{}
	if cfg.Scenario.Previous != "" {
		if previous, err = scenarioio.ReadPreviousEmbedding(cfg.Scenario.Previous, templates); err != nil {
			return nil, err
		}
	}

	return &heuristic.Request{
		Nodes:     nodes,
		Links:     links,
		Templates: templates,
		Previous:  previous,
		Sources:   sources,
		Fixed:     fixed,
	}, nil
}
