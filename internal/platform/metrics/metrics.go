package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the camera gateway.
// It satisfies the lifecycle observer interfaces of the stream and hls
// packages.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	activeSessions         prometheus.Gauge
	sessionsStartedTotal   prometheus.Counter
	sessionsReapedTotal    *prometheus.CounterVec
	engineExitsTotal       prometheus.Counter
	engineStartFailedTotal prometheus.Counter
	fileWaitsTotal         *prometheus.CounterVec
	snapshotsTotal         *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipcam_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipcam_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipcam_active_sessions",
		Help: "Number of live transcoding sessions",
	})
	sessionsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipcam_sessions_started_total",
		Help: "Total number of transcoding sessions started",
	})
	sessionsReapedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcam_sessions_reaped_total",
		Help: "Total number of sessions torn down, by reason",
	}, []string{"reason"})
	engineExitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipcam_engine_exits_total",
		Help: "Total number of engine processes that exited on their own",
	})
	engineStartFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipcam_engine_start_failures_total",
		Help: "Total number of engine processes that failed to launch",
	})
	fileWaitsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcam_hls_file_waits_total",
		Help: "Total number of waits for not-yet-written media files, by outcome",
	}, []string{"outcome"})
	snapshotsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipcam_snapshots_total",
		Help: "Total number of snapshots served, by source",
	}, []string{"source"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeSessions,
		sessionsStartedTotal,
		sessionsReapedTotal,
		engineExitsTotal,
		engineStartFailedTotal,
		fileWaitsTotal,
		snapshotsTotal,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		activeSessions:         activeSessions,
		sessionsStartedTotal:   sessionsStartedTotal,
		sessionsReapedTotal:    sessionsReapedTotal,
		engineExitsTotal:       engineExitsTotal,
		engineStartFailedTotal: engineStartFailedTotal,
		fileWaitsTotal:         fileWaitsTotal,
		snapshotsTotal:         snapshotsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// SessionStarted counts a newly launched session.
func (m *Metrics) SessionStarted() {
	m.sessionsStartedTotal.Inc()
}

// SessionReaped counts a torn down session under reason.
func (m *Metrics) SessionReaped(reason string) {
	m.sessionsReapedTotal.WithLabelValues(reason).Inc()
}

// EngineExited counts an engine process that died without being killed.
func (m *Metrics) EngineExited() {
	m.engineExitsTotal.Inc()
}

// EngineStartFailed counts a failed engine launch.
func (m *Metrics) EngineStartFailed() {
	m.engineStartFailedTotal.Inc()
}

// FileWait counts a finished wait for a media file.
func (m *Metrics) FileWait(outcome string) {
	m.fileWaitsTotal.WithLabelValues(outcome).Inc()
}

// IncSnapshots counts a served snapshot from source ("engine" or "camera").
func (m *Metrics) IncSnapshots(source string) {
	m.snapshotsTotal.WithLabelValues(source).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
