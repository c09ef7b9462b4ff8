package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// Бизнес-метрики решателя
	SolveOperationsTotal *prometheus.CounterVec
	SolveDuration        *prometheus.HistogramVec
	ObjectiveValue       *prometheus.GaugeVec
	ChangedInstances     prometheus.Histogram
	MaxOverSubscription  *prometheus.GaugeVec
	TemplatesEmbedded    prometheus.Histogram
	NetworkNodesTotal    prometheus.Histogram
	PathPrecomputeTime   prometheus.Histogram

	// Кэш
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		SolveOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_operations_total",
				Help:      "Total number of embedding solve operations",
			},
			[]string{"objective", "status"},
		),

		SolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_duration_seconds",
				Help:      "Duration of embedding solve operations",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"objective"},
		),

		ObjectiveValue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "objective_value",
				Help:      "Last objective value per objective variant",
			},
			[]string{"objective"},
		),

		ChangedInstances: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "changed_instances",
				Help:      "Instances added or removed against the previous embedding",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),

		MaxOverSubscription: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "max_over_subscription",
				Help:      "Maximum capacity over-subscription of the last solution",
			},
			[]string{"resource"},
		),

		TemplatesEmbedded: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "templates_embedded",
				Help:      "Number of templates embedded per request",
				Buckets:   []float64{1, 2, 3, 5, 10, 20},
			},
		),

		NetworkNodesTotal: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_nodes_total",
				Help:      "Number of substrate nodes in processed requests",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
			},
		),

		PathPrecomputeTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "path_precompute_seconds",
				Help:      "Time spent computing all-pairs shortest paths",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5, 30},
			},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_hits_total",
				Help:      "Total number of result cache hits",
			},
		),

		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_misses_total",
				Help:      "Total number of result cache misses",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service version information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get возвращает глобальный контейнер метрик (инициализируя при необходимости)
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("netembed", "")
	}
	return defaultMetrics
}

// ObserveSolve записывает метрики одного решения
func (m *Metrics) ObserveSolve(objective, status string, duration time.Duration) {
	m.SolveOperationsTotal.WithLabelValues(objective, status).Inc()
	m.SolveDuration.WithLabelValues(objective).Observe(duration.Seconds())
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer запускает HTTP сервер метрик в отдельной горутине
func StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	return srv
}
