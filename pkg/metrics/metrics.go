package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signaling server
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	wsConnections   *prometheus.GaugeVec
	wsFramesTotal   *prometheus.CounterVec
	wsErrorsTotal   *prometheus.CounterVec
	wsDroppedTotal  *prometheus.CounterVec
	roomsActive     prometheus.Gauge
	broadcastsTotal *prometheus.CounterVec

	// Call metrics
	callsTotal    *prometheus.CounterVec
	callsActive   prometheus.Gauge
	callsDuration prometheus.Histogram

	// Notification metrics
	notificationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		wsConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Current number of live WebSocket connections",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
		wsFramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_frames_total",
				Help:        "Total number of inbound WebSocket frames",
				ConstLabels: labels,
			},
			[]string{"endpoint", "type"},
		),
		wsErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket frame errors",
				ConstLabels: labels,
			},
			[]string{"endpoint", "code"},
		),
		wsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_dropped_clients_total",
				Help:        "Clients dropped because their send queue overflowed",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
		roomsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "rooms_active",
				Help:        "Current number of live rooms",
				ConstLabels: labels,
			},
		),
		broadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "room_broadcasts_total",
				Help:        "Total number of room broadcasts",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls by final status",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		callsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Current number of calls not yet in a terminal state",
				ConstLabels: labels,
			},
		),
		callsDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of ended calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_total",
				Help:        "Total number of notifications by delivery outcome",
				ConstLabels: labels,
			},
			[]string{"type", "delivery"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.wsConnections,
		m.wsFramesTotal,
		m.wsErrorsTotal,
		m.wsDroppedTotal,
		m.roomsActive,
		m.broadcastsTotal,
		m.callsTotal,
		m.callsActive,
		m.callsDuration,
		m.notificationsTotal,
	)

	return m
}

// GetRegistry returns the private Prometheus registry
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ConnectionOpened increments the live connection gauge for an endpoint
func (m *Metrics) ConnectionOpened(endpoint string) {
	m.wsConnections.WithLabelValues(endpoint).Inc()
}

// ConnectionClosed decrements the live connection gauge for an endpoint
func (m *Metrics) ConnectionClosed(endpoint string) {
	m.wsConnections.WithLabelValues(endpoint).Dec()
}

// RecordFrame counts an inbound frame by endpoint and type
func (m *Metrics) RecordFrame(endpoint, frameType string) {
	m.wsFramesTotal.WithLabelValues(endpoint, frameType).Inc()
}

// RecordFrameError counts a frame error by endpoint and error code
func (m *Metrics) RecordFrameError(endpoint, code string) {
	m.wsErrorsTotal.WithLabelValues(endpoint, code).Inc()
}

// RecordDroppedClient counts a client dropped for send queue overflow
func (m *Metrics) RecordDroppedClient(endpoint string) {
	m.wsDroppedTotal.WithLabelValues(endpoint).Inc()
}

// SetActiveRooms records the current number of live rooms
func (m *Metrics) SetActiveRooms(n int) {
	m.roomsActive.Set(float64(n))
}

// RecordBroadcast counts a room broadcast by kind
func (m *Metrics) RecordBroadcast(kind string) {
	m.broadcastsTotal.WithLabelValues(kind).Inc()
}

// CallStarted increments the active call gauge
func (m *Metrics) CallStarted() {
	m.callsActive.Inc()
}

// CallFinished records a call reaching a terminal status
func (m *Metrics) CallFinished(status string, duration time.Duration) {
	m.callsActive.Dec()
	m.callsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.callsDuration.Observe(duration.Seconds())
	}
}

// RecordNotification counts a notification by type and delivery outcome (live, queued)
func (m *Metrics) RecordNotification(notificationType, delivery string) {
	m.notificationsTotal.WithLabelValues(notificationType, delivery).Inc()
}
