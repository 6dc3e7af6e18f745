package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hermes_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Routing metrics
	RoutesBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_routes_built_total",
			Help: "Total number of trade plans built",
		},
		[]string{"operation", "status"}, // status: success|error
	)

	RouteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_route_duration_seconds",
			Help:    "Plan construction duration in seconds, including reserve reads",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	// Submission metrics
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_submissions_total",
			Help: "Total number of transaction submissions by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: submitted|user_rejected|reverted|network_error
	)

	// Approval metrics
	ApprovalChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_approval_checks_total",
			Help: "Total number of allowance reads",
		},
		[]string{"status"}, // status: sufficient|insufficient|error
	)

	ApprovalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_approval_requests_total",
			Help: "Total number of approval transactions sent",
		},
		[]string{"status"}, // status: success|rejected|failed
	)

	// Pricing metrics
	PricingSolves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_pricing_solves_total",
			Help: "Total number of implied volatility solves",
		},
		[]string{"status"}, // status: success|no_convergence|error
	)

	PricingIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_pricing_iterations",
			Help:    "Iterations spent per implied volatility solve",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 100},
		},
		[]string{"method"}, // method: newton|bisection
	)

	// Chain metrics
	RPCCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_rpc_calls_total",
			Help: "Total number of RPC reads",
		},
		[]string{"method", "status"}, // status: success|error
	)

	RPCLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: clickhouse|redis
	)

	// Price feed metrics
	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_feed_reconnects_total",
			Help: "Total number of price feed reconnect attempts",
		},
		[]string{"status"}, // status: success|failed
	)

	FeedUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_feed_updates_total",
			Help: "Total number of spot price updates received",
		},
		[]string{"symbol"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(RoutesBuilt)
	prometheus.MustRegister(RouteDuration)
	prometheus.MustRegister(Submissions)

	prometheus.MustRegister(ApprovalChecks)
	prometheus.MustRegister(ApprovalRequests)

	prometheus.MustRegister(PricingSolves)
	prometheus.MustRegister(PricingIterations)

	prometheus.MustRegister(RPCCalls)
	prometheus.MustRegister(RPCLatency)
	prometheus.MustRegister(DBQueries)

	prometheus.MustRegister(FeedReconnects)
	prometheus.MustRegister(FeedUpdates)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordRoute records a plan construction attempt
func RecordRoute(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	RoutesBuilt.WithLabelValues(operation, status).Inc()
	RouteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSubmission records a transaction submission outcome
func RecordSubmission(operation, outcome string) {
	Submissions.WithLabelValues(operation, outcome).Inc()
}

// RecordRPCCall records an RPC read
func RecordRPCCall(method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	RPCCalls.WithLabelValues(method, status).Inc()
	RPCLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
}
