// Package service orchestrates embedding solves: request validation, result
// caching, engine invocation, metrics, tracing and optional persistence.
//
// # Concurrency
//
// The engine is single-threaded by design; each Solve call builds its own
// engine and runs it synchronously. Service takes no lock of its own, so
// Solve calls made in parallel run in parallel; the request's templates are
// adapted in place by the engine.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"netembed/internal/heuristic"
	"netembed/internal/io"
	"netembed/internal/repository"
	"netembed/pkg/apperror"
	"netembed/pkg/cache"
	"netembed/pkg/metrics"
	"netembed/pkg/telemetry"
)

// Options configure the service around the engine.
type Options struct {
	Engine heuristic.Options

	// CacheTTL bounds the lifetime of cached results; zero uses the cache's
	// default.
	CacheTTL time.Duration
}

// Service runs embedding requests end to end.
type Service struct {
	opts    Options
	cache   *cache.EmbeddingCache
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Store is the subset of the repository the service needs.
type Store interface {
	Create(ctx context.Context, emb *repository.Embedding) error
}

// Request is one end-to-end solve request.
type Request struct {
	// Scenario names the request in logs, metrics and persisted results.
	Scenario string

	// Embedding is the engine input.
	Embedding *heuristic.Request
}

// Response is the outcome of one solve.
type Response struct {
	// RequestID correlates logs, traces and persisted records.
	RequestID string

	// Cached is set when the result was served from the cache.
	Cached bool

	// Result is the engine outcome; nil on cache hits.
	Result *heuristic.Result

	// Document is the serializable result, from the engine or the cache.
	Document *io.ResultDocument
}

// New creates a service. Cache and store may be nil to disable caching and
// persistence.
func New(opts Options, resultCache *cache.EmbeddingCache, store Store, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.Get()
	}
	return &Service{
		opts:    opts,
		cache:   resultCache,
		store:   store,
		metrics: m,
		log:     log,
	}
}

// Solve validates the request, consults the cache, runs the engine and
// records the outcome.
func (s *Service) Solve(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Embedding == nil {
		return nil, apperror.New(apperror.CodeNilInput, "request is nil")
	}

	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID, "scenario", req.Scenario)
	objective := s.opts.Engine.Objective.String()

	ctx, span := telemetry.StartSpan(ctx, "Service.Solve")
	defer span.End()
	span.SetAttributes(telemetry.ScenarioAttributes(req.Scenario,
		len(req.Embedding.Nodes.IDs), len(req.Embedding.Links.IDs),
		len(req.Embedding.Templates), len(req.Embedding.Sources), len(req.Embedding.Fixed))...)

	timer := metrics.NewTimer(s.metrics.SolveDuration, objective)
	scenarioHash := ScenarioHash(req.Embedding, s.opts.Engine.Seed, objective)

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, scenarioHash, objective)
		if err != nil {
			telemetry.RecordError(ctx, err)
			log.Warn("cache lookup failed", "error", err)
		} else if hit {
			s.metrics.CacheHitsTotal.Inc()
			s.metrics.SolveOperationsTotal.WithLabelValues(objective, "cache_hit").Inc()
			timer.ObserveDuration()
			telemetry.AddEvent(ctx, "cache_hit",
				attribute.Bool(telemetry.AttrCacheHit, true),
				attribute.Float64(telemetry.AttrObjectiveValue, cached.ObjectiveValue))
			log.Info("served embedding from cache", "objective_value", cached.ObjectiveValue)

			var doc io.ResultDocument
			if err := json.Unmarshal(cached.Result, &doc); err != nil {
				log.Warn("cached result unreadable, recomputing", "error", err)
			} else {
				return &Response{RequestID: requestID, Cached: true, Document: &doc}, nil
			}
		}
		if !hit {
			s.metrics.CacheMissesTotal.Inc()
		}
	}

	engine := heuristic.NewEngine(s.opts.Engine, log)
	result, err := engine.Solve(ctx, req.Embedding)
	if err != nil {
		s.metrics.SolveOperationsTotal.WithLabelValues(objective, "error").Inc()
		timer.ObserveDuration()
		telemetry.SetError(ctx, err)
		log.Error("solve failed", "error", err)
		return nil, err
	}

	s.observeResult(objective, result, timer)
	span.SetAttributes(telemetry.SolveAttributes(objective, result.Evaluation.Value,
		len(result.Changed), result.Evaluation.Infeasible)...)

	doc := io.BuildResult(req.Scenario, objective, s.opts.Engine.Seed, req.Embedding.Links, result)

	// infeasible solutions carry an infinite objective value and are not
	// worth replaying, so only feasible results are cached
	if s.cache != nil && !result.Evaluation.Infeasible {
		if payload, err := json.Marshal(doc); err == nil {
			entry := &cache.CachedEmbedding{
				ObjectiveValue:   result.Evaluation.Value,
				Infeasible:       result.Evaluation.Infeasible,
				ChangedInstances: len(result.Changed),
				InitTimeMs:       float64(result.InitTime.Microseconds()) / 1000,
				RuntimeMs:        float64(result.Runtime.Microseconds()) / 1000,
				Result:           payload,
			}
			if err := s.cache.Set(ctx, scenarioHash, objective, entry, s.opts.CacheTTL); err != nil {
				log.Warn("cache store failed", "error", err)
			}
		}
	}

	if s.store != nil {
		s.persist(ctx, log, req, objective, result, doc)
	}

	log.Info("solve completed", "objective_value", result.Evaluation.Value,
		"changed_instances", len(result.Changed), "runtime", result.Runtime)
	return &Response{RequestID: requestID, Result: result, Document: doc}, nil
}

func (s *Service) observeResult(objective string, result *heuristic.Result, timer *metrics.Timer) {
	status := "ok"
	if result.Evaluation.Infeasible {
		status = "infeasible"
	}
	s.metrics.SolveOperationsTotal.WithLabelValues(objective, status).Inc()
	timer.ObserveDuration()
	if !result.Evaluation.Infeasible {
		s.metrics.ObjectiveValue.WithLabelValues(objective).Set(result.Evaluation.Value)
	}
	s.metrics.ChangedInstances.Observe(float64(len(result.Changed)))
	s.metrics.MaxOverSubscription.WithLabelValues("cpu").Set(result.Evaluation.MaxCPUOver)
	s.metrics.MaxOverSubscription.WithLabelValues("mem").Set(result.Evaluation.MaxMemOver)
	s.metrics.MaxOverSubscription.WithLabelValues("dr").Set(result.Evaluation.MaxDROver)
	s.metrics.TemplatesEmbedded.Observe(float64(len(result.Overlays)))
	s.metrics.PathPrecomputeTime.Observe(result.InitTime.Seconds())
}

// persist stores the finished solve; failures are logged, never fatal.
func (s *Service) persist(ctx context.Context, log *slog.Logger, req *Request,
	objective string, result *heuristic.Result, doc *io.ResultDocument) {

	resultData, err := io.MarshalResult(doc)
	if err != nil {
		log.Warn("result serialization for persistence failed", "error", err)
		return
	}
	requestData, _ := json.Marshal(map[string]any{
		"scenario":  req.Scenario,
		"nodes":     len(req.Embedding.Nodes.IDs),
		"links":     len(req.Embedding.Links.IDs),
		"templates": len(req.Embedding.Templates),
		"sources":   len(req.Embedding.Sources),
		"fixed":     len(req.Embedding.Fixed),
	})

	emb := &repository.Embedding{
		Scenario:         req.Scenario,
		Objective:        objective,
		Seed:             s.opts.Engine.Seed,
		ObjectiveValue:   result.Evaluation.Value,
		Infeasible:       result.Evaluation.Infeasible,
		ChangedInstances: len(result.Changed),
		InitTimeMs:       float64(result.InitTime.Microseconds()) / 1000,
		RuntimeMs:        float64(result.Runtime.Microseconds()) / 1000,
		NodeCount:        len(req.Embedding.Nodes.IDs),
		TemplateCount:    len(req.Embedding.Templates),
		RequestData:      requestData,
		ResultData:       resultData,
	}
	if err := s.store.Create(ctx, emb); err != nil {
		log.Warn("persisting embedding failed", "error", err)
	}
}
