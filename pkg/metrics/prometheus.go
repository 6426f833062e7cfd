// Package metrics provides Prometheus metrics for the leadtier scoring service.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the leadtier service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	interactionsApplied   *prometheus.CounterVec
	interactionsDuplicate prometheus.Counter
	interactionsRejected  *prometheus.CounterVec
	scoreComputations     *prometheus.CounterVec
	scoringLatency        *prometheus.HistogramVec
	tierTransitions       *prometheus.CounterVec
	leadsByTier           *prometheus.GaugeVec
	sequencesTriggered    *prometheus.CounterVec
	notificationFailures  *prometheus.CounterVec

	// Batch
	batchDuration prometheus.Histogram
	batchUsers    *prometheus.CounterVec

	// Persistence
	persistenceErrors    *prometheus.CounterVec
	repositoryOpLatency  *prometheus.HistogramVec
	repositoryLeadsTotal prometheus.Gauge

	// Cache
	cacheLookups *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "leadtier",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	ms := m.histogramBuckets

	m.interactionsApplied = m.counterVec("interactions_applied_total", "Interactions applied through the real-time path", "type")
	m.interactionsDuplicate = m.counter("interactions_duplicate_total", "Interactions dropped as redeliveries")
	m.interactionsRejected = m.counterVec("interactions_rejected_total", "Interactions rejected before scoring", "reason")
	m.scoreComputations = m.counterVec("score_computations_total", "Score computations by path", "path")
	m.scoringLatency = m.histogramVec("scoring_latency_milliseconds", "End-to-end scoring latency in milliseconds", ms, "path")
	m.tierTransitions = m.counterVec("tier_transitions_total", "Tier transitions by pair", "from", "to")
	m.leadsByTier = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "leads_by_tier", Help: "Leads per tier at the last distribution query", ConstLabels: m.constLabels,
	}, []string{"tier"})
	m.sequencesTriggered = m.counterVec("sequences_triggered_total", "Email sequences triggered", "sequence")
	m.notificationFailures = m.counterVec("notification_failures_total", "Swallowed post-commit notification failures", "channel")

	m.batchDuration = m.histogram("batch_duration_seconds", "Batch recalculation duration in seconds", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300})
	m.batchUsers = m.counterVec("batch_users_total", "Users processed by batch recalculation", "result")

	m.persistenceErrors = m.counterVec("persistence_errors_total", "Failed writes to the record store", "op")
	m.repositoryOpLatency = m.histogramVec("repository_operation_milliseconds", "Repository operation latency in milliseconds", ms, "store", "op")
	m.repositoryLeadsTotal = m.gauge("repository_leads_total", "Leads known to the repository")

	m.cacheLookups = m.counterVec("cache_lookups_total", "Session cache lookups", "result")

	m.queueSize = m.gauge("queue_size", "Current size of the interaction queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the interaction queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size over capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Interactions enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Interactions dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Interactions rejected by backpressure")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time from enqueue to dequeue in milliseconds", ms)

	m.workerCount = m.gauge("worker_count", "Configured worker goroutines")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently applying an interaction")
	m.workerIdleCount = m.gauge("worker_idle_count", "Workers waiting for work")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-interaction worker latency in milliseconds", ms)
	m.workerErrors = m.counter("worker_errors_total", "Interactions that failed in a worker")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", ms, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func active() *Manager {
	if globalManager == nil || !globalManager.enabled {
		return nil
	}
	return globalManager
}

// RecordInteractionApplied counts an interaction applied through the real-time path.
func RecordInteractionApplied(interactionType string) {
	if m := active(); m != nil {
		m.interactionsApplied.WithLabelValues(interactionType).Inc()
	}
}

// RecordInteractionDuplicate counts a redelivered interaction.
func RecordInteractionDuplicate() {
	if m := active(); m != nil {
		m.interactionsDuplicate.Inc()
	}
}

// RecordInteractionRejected counts an interaction rejected at the boundary.
func RecordInteractionRejected(reason string) {
	if m := active(); m != nil {
		m.interactionsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordScoreComputation counts a score computation and its latency.
// path is "realtime" or "batch".
func RecordScoreComputation(path string, latencyMs float64) {
	if m := active(); m != nil {
		m.scoreComputations.WithLabelValues(path).Inc()
		m.scoringLatency.WithLabelValues(path).Observe(latencyMs)
	}
}

// RecordTierTransition counts a tier change.
func RecordTierTransition(from, to string) {
	if m := active(); m != nil {
		m.tierTransitions.WithLabelValues(from, to).Inc()
	}
}

// UpdateLeadsByTier sets the per-tier lead gauge.
func UpdateLeadsByTier(tier string, count int) {
	if m := active(); m != nil {
		m.leadsByTier.WithLabelValues(tier).Set(float64(count))
	}
}

// RecordSequenceTriggered counts a triggered email sequence.
func RecordSequenceTriggered(sequence string) {
	if m := active(); m != nil {
		m.sequencesTriggered.WithLabelValues(sequence).Inc()
	}
}

// RecordNotificationFailure counts a swallowed broadcast or sequence failure.
func RecordNotificationFailure(channel string) {
	if m := active(); m != nil {
		m.notificationFailures.WithLabelValues(channel).Inc()
	}
}

// RecordBatch records one batch run.
func RecordBatch(durationSeconds float64, updated, failed int) {
	if m := active(); m != nil {
		m.batchDuration.Observe(durationSeconds)
		m.batchUsers.WithLabelValues("updated").Add(float64(updated))
		m.batchUsers.WithLabelValues("failed").Add(float64(failed))
	}
}

// RecordPersistenceError counts a failed store write.
func RecordPersistenceError(op string) {
	if m := active(); m != nil {
		m.persistenceErrors.WithLabelValues(op).Inc()
	}
}

// RecordRepositoryOperation records repository latency.
func RecordRepositoryOperation(store, op string, latencyMs float64) {
	if m := active(); m != nil {
		m.repositoryOpLatency.WithLabelValues(store, op).Observe(latencyMs)
	}
}

// UpdateRepositoryLeadsTotal sets the number of known leads.
func UpdateRepositoryLeadsTotal(count int) {
	if m := active(); m != nil {
		m.repositoryLeadsTotal.Set(float64(count))
	}
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if m := active(); m != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		m.cacheLookups.WithLabelValues(result).Inc()
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if m := active(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := active(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets queue size over capacity.
func UpdateQueueUtilization(utilization float64) {
	if m := active(); m != nil {
		m.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts an enqueued interaction.
func RecordQueueEnqueue() {
	if m := active(); m != nil {
		m.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeued interaction.
func RecordQueueDequeue() {
	if m := active(); m != nil {
		m.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a backpressure rejection.
func RecordQueueEnqueueError() {
	if m := active(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

// RecordQueueProcessingLatency records time spent waiting in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.queueProcessingLatency.Observe(latencyMs)
	}
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if m := active(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	if m := active(); m != nil {
		m.workerActiveCount.Set(float64(count))
	}
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	if m := active(); m != nil {
		m.workerIdleCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records per-interaction worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a failed interaction in a worker.
func RecordWorkerError() {
	if m := active(); m != nil {
		m.workerErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent counts an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	if m := active(); m != nil {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMetrics samples runtime memory, goroutine and GC stats.
func UpdateSystemMetrics() {
	m := active()
	if m == nil {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.HeapAlloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		pause := ms.PauseNs[(ms.NumGC+255)%256]
		m.systemGCPauseTime.Observe(float64(pause) / 1e6)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
