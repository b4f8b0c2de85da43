package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// Metrics holds the Prometheus collectors for the service. Every method is
// nil-safe so callers can use Current() unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	documentsProcessed *prometheus.CounterVec
	documentLatency    *prometheus.HistogramVec
	chunksIndexed      prometheus.Counter

	synthesisRuns    *prometheus.CounterVec
	synthesisLatency *prometheus.HistogramVec
	valuesProduced   prometheus.Counter

	vectorOps     *prometheus.CounterVec
	vectorLatency *prometheus.HistogramVec

	workerTasks   *prometheus.CounterVec
	workerLatency *prometheus.HistogramVec
	workerQueue   prometheus.Gauge

	pgStats *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// New builds a Metrics on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karibu_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "karibu_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_llm_requests_total",
			Help: "LLM requests by model/endpoint/status.",
		}, []string{"model", "endpoint", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karibu_llm_request_duration_seconds",
			Help:    "LLM request latency in seconds by model/endpoint/status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"model", "endpoint", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_llm_tokens_total",
			Help: "LLM tokens by model/direction.",
		}, []string{"model", "direction"}),
		documentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_documents_processed_total",
			Help: "Document pipeline runs by outcome.",
		}, []string{"outcome"}),
		documentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karibu_document_processing_duration_seconds",
			Help:    "Document pipeline duration in seconds by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "karibu_chunks_indexed_total",
			Help: "Passages written to the vector index.",
		}),
		synthesisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_synthesis_runs_total",
			Help: "Value synthesis runs by outcome.",
		}, []string{"outcome"}),
		synthesisLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karibu_synthesis_duration_seconds",
			Help:    "Value synthesis duration in seconds by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		valuesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "karibu_values_synthesized_total",
			Help: "Value statements produced by synthesis.",
		}),
		vectorOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_vector_operations_total",
			Help: "Vector provider operations by provider/op/status.",
		}, []string{"provider", "op", "status"}),
		vectorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karibu_vector_operation_duration_seconds",
			Help:    "Vector provider operation latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider", "op", "status"}),
		workerTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "karibu_worker_tasks_total",
			Help: "Background tasks by kind/status.",
		}, []string{"kind", "status"}),
		workerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "karibu_worker_task_duration_seconds",
			Help:    "Background task duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"kind", "status"}),
		workerQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "karibu_worker_queue_depth",
			Help: "Tasks waiting in the background queue.",
		}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "karibu_postgres_pool",
			Help: "Postgres connection pool stats.",
		}, []string{"stat"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.documentsProcessed, m.documentLatency, m.chunksIndexed,
		m.synthesisRuns, m.synthesisLatency, m.valuesProduced,
		m.vectorOps, m.vectorLatency,
		m.workerTasks, m.workerLatency, m.workerQueue,
		m.pgStats,
	)
	return m
}

// Handler serves the Prometheus exposition for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orDefault(model, "unknown")
	endpoint = orDefault(endpoint, "unknown")
	status = orDefault(status, "0")
	m.llmRequests.WithLabelValues(model, endpoint, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, endpoint, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// ObserveDocumentProcessed records one pipeline run. outcome is "processed" or "failed".
func (m *Metrics) ObserveDocumentProcessed(outcome string, dur time.Duration, chunks int) {
	if m == nil {
		return
	}
	outcome = orDefault(outcome, "unknown")
	m.documentsProcessed.WithLabelValues(outcome).Inc()
	m.documentLatency.WithLabelValues(outcome).Observe(dur.Seconds())
	if chunks > 0 {
		m.chunksIndexed.Add(float64(chunks))
	}
}

func (m *Metrics) ObserveSynthesis(outcome string, dur time.Duration, values int) {
	if m == nil {
		return
	}
	outcome = orDefault(outcome, "unknown")
	m.synthesisRuns.WithLabelValues(outcome).Inc()
	m.synthesisLatency.WithLabelValues(outcome).Observe(dur.Seconds())
	if values > 0 {
		m.valuesProduced.Add(float64(values))
	}
}

func (m *Metrics) ObserveVectorOp(provider, op string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	provider = orDefault(provider, "unknown")
	op = orDefault(op, "unknown")
	m.vectorOps.WithLabelValues(provider, op, status).Inc()
	m.vectorLatency.WithLabelValues(provider, op, status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveWorkerTask(kind, status string, dur time.Duration) {
	if m == nil {
		return
	}
	kind = orDefault(kind, "unknown")
	status = orDefault(status, "unknown")
	m.workerTasks.WithLabelValues(kind, status).Inc()
	m.workerLatency.WithLabelValues(kind, status).Observe(dur.Seconds())
}

func (m *Metrics) SetWorkerQueueDepth(n int) {
	if m == nil {
		return
	}
	m.workerQueue.Set(float64(n))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.pgStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func orDefault(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
