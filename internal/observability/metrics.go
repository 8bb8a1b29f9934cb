package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translation_gateway_active_sessions",
		Help: "Number of sessions that have not ended",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translation_gateway_sessions_total",
		Help: "Total number of sessions created",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "translation_gateway_session_duration_seconds",
		Help:    "Duration of sessions from creation to end",
		Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
	})

	sessionEnds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_session_ends_total",
		Help: "Sessions ended, by reason",
	}, []string{"reason"})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translation_gateway_active_connections",
		Help: "Number of open WebSocket connections",
	})

	activeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "translation_gateway_active_subscribers",
		Help: "Number of attached subscribers across all sessions",
	})

	// Chunk metrics
	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_chunks_total",
		Help: "Audio chunks by outcome",
	}, []string{"outcome"}) // accepted, rejected, dropped, decode_error, dispatched, skipped, empty

	chunkProcessing = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "translation_gateway_chunk_processing_seconds",
		Help:    "Time from chunk acceptance to result completion",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
	})

	// Adapter metrics
	adapterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_adapter_requests_total",
		Help: "Adapter calls by stage and status",
	}, []string{"stage", "status"})

	adapterLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translation_gateway_adapter_latency_seconds",
		Help:    "Adapter call latency by stage",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	// Cache metrics
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_cache_lookups_total",
		Help: "Dual output cache lookups by result",
	}, []string{"result"}) // hit, miss, shared

	// Delivery metrics
	eventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_events_sent_total",
		Help: "Server events sent to connections by type",
	}, []string{"type"})

	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "translation_gateway_delivery_failures_total",
		Help: "Events that could not be queued to a connection",
	})

	// Connection quality metrics
	probeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "translation_gateway_probe_latency_seconds",
		Help:    "Round trip latency of connection probes",
		Buckets: []float64{0.05, 0.1, 0.3, 0.5, 1.0, 2.0},
	})

	qualityTiers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_quality_samples_total",
		Help: "Connection quality samples by tier",
	}, []string{"tier"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "translation_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translation_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// RecordSessionStart records a newly created session
func RecordSessionStart() {
	activeSessions.Inc()
	sessionsTotal.Inc()
}

// RecordSessionEnd records a session reaching the ended state
func RecordSessionEnd(reason string, startedAt time.Time) {
	activeSessions.Dec()
	sessionEnds.WithLabelValues(reason).Inc()
	sessionDuration.Observe(time.Since(startedAt).Seconds())
}

// RecordConnectionOpened increments the open connection gauge
func RecordConnectionOpened() {
	activeConnections.Inc()
}

// RecordConnectionClosed decrements the open connection gauge
func RecordConnectionClosed() {
	activeConnections.Dec()
}

// RecordSubscriberJoined increments the attached subscriber gauge
func RecordSubscriberJoined() {
	activeSubscribers.Inc()
}

// RecordSubscriberLeft decrements the attached subscriber gauge
func RecordSubscriberLeft() {
	activeSubscribers.Dec()
}

// RecordChunk records a chunk outcome
func RecordChunk(outcome string) {
	chunksTotal.WithLabelValues(outcome).Inc()
}

// RecordChunkProcessing records the end-to-end processing time of a chunk
func RecordChunkProcessing(d time.Duration) {
	chunkProcessing.Observe(d.Seconds())
}

// RecordAdapterCall records one adapter call
func RecordAdapterCall(stage string, d time.Duration, err error) {
	adapterLatency.WithLabelValues(stage).Observe(d.Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	adapterRequests.WithLabelValues(stage, status).Inc()
}

// RecordCacheLookup records a dual output cache lookup
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordEventSent records an event queued to a connection
func RecordEventSent(eventType string) {
	eventsSent.WithLabelValues(eventType).Inc()
}

// RecordDeliveryFailure records an event that could not be queued
func RecordDeliveryFailure() {
	deliveryFailures.Inc()
}

// RecordQualitySample records a connection probe
func RecordQualitySample(tier string, latency time.Duration) {
	probeLatency.Observe(latency.Seconds())
	qualityTiers.WithLabelValues(tier).Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
