package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jour_active_sessions",
		Help: "Number of active voice sessions",
	})

	totalSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jour_sessions_total",
		Help: "Total number of voice sessions by outcome",
	}, []string{"outcome"}) // outcome: "stopped", "limit", "error"

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jour_session_duration_seconds",
		Help:    "Duration of voice sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jour_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jour_dropped_events_total",
		Help: "Total server events dropped due to backpressure",
	})

	// Analysis metrics
	analysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jour_analysis_requests_total",
		Help: "Total number of analysis requests",
	}, []string{"status"})

	analysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jour_analysis_latency_seconds",
		Help:    "Entry analysis latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Ledger metrics
	ledgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jour_ledger_errors_total",
		Help: "Total number of ledger operation failures",
	}, []string{"operation"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jour_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// Metrics tracks metrics for a single voice session
type Metrics struct {
	sessionID         string
	startTime         time.Time
	analysisStartTime time.Time
	mu                sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a session with its outcome
func (m *Metrics) RecordSessionEnd(outcome string, durationSeconds int) {
	activeSessions.Dec()
	totalSessions.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(float64(durationSeconds))
}

// RecordAnalysisStart records the start of entry analysis
func (m *Metrics) RecordAnalysisStart() {
	m.mu.Lock()
	m.analysisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordAnalysisEnd records the end of entry analysis
func (m *Metrics) RecordAnalysisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.analysisStartTime.IsZero() {
		latency := time.Since(m.analysisStartTime).Seconds()
		analysisLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	analysisRequests.WithLabelValues(status).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordDroppedEvent records a server event dropped under backpressure
func RecordDroppedEvent() {
	droppedEvents.Inc()
}

// RecordLedgerError records a failed ledger operation
func RecordLedgerError(operation string) {
	ledgerErrors.WithLabelValues(operation).Inc()
}
