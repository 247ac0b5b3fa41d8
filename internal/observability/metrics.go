package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the loopback chat backend.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections on the loopback backend.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle events on the loopback backend.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)

	clientConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_connection_state",
			Help: "Realtime connection state: 0 disconnected, 1 connecting, 2 connected.",
		},
	)
	clientReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_reconnect_attempts_total",
			Help: "Automatic reconnect attempts made by the client.",
		},
	)
	clientInboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_inbound_events_total",
			Help: "Realtime events received by the client.",
		},
		[]string{"type"},
	)
	clientDuplicateMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_duplicate_messages_total",
			Help: "Inbound messages discarded because their id was already present.",
		},
	)
	clientReconciledMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_reconciled_messages_total",
			Help: "Optimistic messages replaced by their server-confirmed copy.",
		},
	)
	clientSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_sends_total",
			Help: "Message sends by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		clientConnectionState,
		clientReconnectAttempts,
		clientInboundEvents,
		clientDuplicateMessages,
		clientReconciledMessages,
		clientSendsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func SetConnectionState(state int) {
	clientConnectionState.Set(float64(state))
}

func IncReconnectAttempt() {
	clientReconnectAttempts.Inc()
}

func IncInboundEvent(eventType string) {
	clientInboundEvents.WithLabelValues(eventType).Inc()
}

func IncDuplicateMessage() {
	clientDuplicateMessages.Inc()
}

func IncReconciledMessage() {
	clientReconciledMessages.Inc()
}

func IncSend(result string) {
	clientSendsTotal.WithLabelValues(result).Inc()
}
