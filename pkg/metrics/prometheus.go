// Package metrics provides Prometheus metrics for the teamcap allocation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service records into.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Allocation engine
	batches          *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	workUnits        *prometheus.CounterVec
	proposalsSource  *prometheus.CounterVec
	droppedMembers   *prometheus.CounterVec
	selectorLatency  prometheus.Histogram
	selectorFailures *prometheus.CounterVec
	backupSelections *prometheus.CounterVec
	commits          *prometheus.CounterVec

	// Store
	peopleTotal    prometheus.Gauge
	workUnitsTotal prometheus.Gauge
	storeLatency   *prometheus.HistogramVec

	// Async batch queue and workers
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected *prometheus.CounterVec
	workerCount   prometheus.Gauge
	workerBusy    prometheus.Gauge
	jobs          *prometheus.CounterVec
	jobLatency    prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByType        *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry so the default Go collectors stay out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "teamcap",
		subsystem:        "allocation",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      map[string]string{},
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.batches = m.counterVec("batches_total", "Allocation batches run, by selection mode", "mode")
	m.batchDuration = m.histogram("batch_duration_milliseconds", "Wall time of one allocation batch", m.histogramBuckets)
	m.workUnits = m.counterVec("work_units_total", "Work units processed, by proposal status", "status")
	m.proposalsSource = m.counterVec("proposals_total", "Proposals produced, by team source", "source")
	m.droppedMembers = m.counterVec("dropped_members_total", "Team members dropped during validation (data quality)", "reason")
	m.selectorLatency = m.histogram("selector_latency_milliseconds", "Latency of the external team selector", m.histogramBuckets)
	m.selectorFailures = m.counterVec("selector_failures_total", "External selector failures recovered by fallback", "reason")
	m.backupSelections = m.counterVec("backup_selections_total", "Deterministic backup selections, by outcome", "outcome")
	m.commits = m.counterVec("commits_total", "Proposal commits, by result", "result")

	m.peopleTotal = m.gauge("people_total", "People known to the store")
	m.workUnitsTotal = m.gauge("stored_work_units_total", "Work units known to the store")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency", "op")

	m.queueSize = m.gauge("queue_size", "Batch jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued batch jobs")
	m.queueRejected = m.counterVec("queue_rejected_total", "Batch jobs rejected by the queue", "reason")
	m.workerCount = m.gauge("worker_count", "Batch workers started")
	m.workerBusy = m.gauge("worker_busy", "Batch workers currently running a job")
	m.jobs = m.counterVec("jobs_total", "Async batch jobs finished, by status", "status")
	m.jobLatency = m.histogram("job_latency_milliseconds", "Time from enqueue to job completion", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Allocation engine recorders.

// RecordBatch counts one batch run in the given mode and its duration.
func RecordBatch(mode string, durationMs float64) {
	globalManager.batches.WithLabelValues(mode).Inc()
	globalManager.batchDuration.Observe(durationMs)
}

// RecordWorkUnit counts a processed work unit by proposal status.
func RecordWorkUnit(status string) {
	globalManager.workUnits.WithLabelValues(status).Inc()
}

// RecordProposalSource counts a proposal by where its team came from.
func RecordProposalSource(source string) {
	globalManager.proposalsSource.WithLabelValues(source).Inc()
}

// RecordDroppedMember counts a team member rejected during validation.
func RecordDroppedMember(reason string) {
	globalManager.droppedMembers.WithLabelValues(reason).Inc()
}

// RecordSelectorLatency records one external selector call.
func RecordSelectorLatency(latencyMs float64) {
	globalManager.selectorLatency.Observe(latencyMs)
}

// RecordSelectorFailure counts a selector failure handled by fallback.
func RecordSelectorFailure(reason string) {
	globalManager.selectorFailures.WithLabelValues(reason).Inc()
}

// RecordBackupSelection counts a backup selection by outcome (found, none).
func RecordBackupSelection(outcome string) {
	globalManager.backupSelections.WithLabelValues(outcome).Inc()
}

// RecordCommit counts a commit by result (applied, duplicate, failed).
func RecordCommit(result string) {
	globalManager.commits.WithLabelValues(result).Inc()
}

// Store recorders.

// UpdatePeopleTotal sets the number of stored people.
func UpdatePeopleTotal(count int) {
	globalManager.peopleTotal.Set(float64(count))
}

// UpdateWorkUnitsTotal sets the number of stored work units.
func UpdateWorkUnitsTotal(count int) {
	globalManager.workUnitsTotal.Set(float64(count))
}

// RecordStoreLatency records a store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// Queue and worker recorders.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a rejected enqueue.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of started workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// IncWorkerBusy marks one more worker as running a job.
func IncWorkerBusy() {
	globalManager.workerBusy.Inc()
}

// DecWorkerBusy marks a worker as idle again.
func DecWorkerBusy() {
	globalManager.workerBusy.Dec()
}

// RecordJob counts a finished job and its end-to-end latency.
func RecordJob(status string, latencyMs float64) {
	globalManager.jobs.WithLabelValues(status).Inc()
	globalManager.jobLatency.Observe(latencyMs)
}

// HTTP recorders.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// System recorders.

// UpdateSystemMemoryUsage sets the heap memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
