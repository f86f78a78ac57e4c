package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// NIS node metrics
	nodeCallsTotal   *prometheus.CounterVec
	nodeCallDuration *prometheus.HistogramVec

	// Reconciliation metrics
	reconciliationsTotal   *prometheus.CounterVec
	reconciliationPages    *prometheus.HistogramVec
	reconciliationDuration *prometheus.HistogramVec
	transactionsFound      *prometheus.CounterVec

	// Notification metrics
	notificationsTotal *prometheus.CounterVec
	harvestingActive   *prometheus.GaugeVec
	cacheLookupsTotal  *prometheus.CounterVec

	// Workflow metrics
	workflowDuration *prometheus.HistogramVec
	activityDuration *prometheus.HistogramVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		nodeCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nem_node_calls_total",
				Help: "Total number of NIS node HTTP calls by endpoint, status and node",
			},
			[]string{"endpoint", "status", "node"},
		),
		nodeCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nem_node_call_duration_seconds",
				Help:    "Duration of NIS node HTTP calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "node"},
		),

		reconciliationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nem_reconciliations_total",
				Help: "Total number of reconciliations by direction and stop reason",
			},
			[]string{"direction", "stop"},
		),
		reconciliationPages: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nem_reconciliation_pages",
				Help:    "Number of transfer pages fetched per reconciliation",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 40},
			},
			[]string{"direction"},
		),
		reconciliationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nem_reconciliation_duration_seconds",
				Help:    "Duration of a reconciliation pass in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"direction"},
		),
		transactionsFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nem_transactions_found_total",
				Help: "Total number of new transactions found by reconciliation",
			},
			[]string{"direction"},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total number of notifications by kind and status",
			},
			[]string{"kind", "status"},
		),
		harvestingActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nem_harvesting_active",
				Help: "1 when the last harvesting check found the account unlocked",
			},
			[]string{"remote"},
		),
		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_cache_lookups_total",
				Help: "Total number of mosaic cache lookups by result",
			},
			[]string{"result"},
		),

		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_duration_seconds",
				Help:    "Duration of check workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"workflow", "status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_duration_seconds",
				Help:    "Duration of workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// RecordNodeCall records a NIS node call with duration.
func (m *Metrics) RecordNodeCall(endpoint, status, node string, duration float64) {
	m.nodeCallsTotal.WithLabelValues(endpoint, status, node).Inc()
	m.nodeCallDuration.WithLabelValues(endpoint, node).Observe(duration)
}

// RecordReconciliation records one reconciliation pass.
func (m *Metrics) RecordReconciliation(direction, stop string, pages, found int, duration float64) {
	m.reconciliationsTotal.WithLabelValues(direction, stop).Inc()
	m.reconciliationPages.WithLabelValues(direction).Observe(float64(pages))
	m.reconciliationDuration.WithLabelValues(direction).Observe(duration)
	m.transactionsFound.WithLabelValues(direction).Add(float64(found))
}

// RecordNotification records a notification attempt. kind is "payment" or "harvesting".
func (m *Metrics) RecordNotification(kind, status string) {
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}

// SetHarvestingActive records the result of the latest harvesting check.
func (m *Metrics) SetHarvestingActive(remote string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.harvestingActive.WithLabelValues(remote).Set(v)
}

// RecordCacheLookup records a mosaic cache lookup. result is "hit", "miss" or "error".
func (m *Metrics) RecordCacheLookup(result string) {
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(workflow, status string, duration float64) {
	m.workflowDuration.WithLabelValues(workflow, status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
