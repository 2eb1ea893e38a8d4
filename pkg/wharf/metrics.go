package wharf

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wharfhq/wharf/internal/conn"
)

// These Prometheus vectors are observed directly from the connection
// lifecycle (the server's OnRequest dispatch and its reply) since this
// module has no middleware chain to hang them on.
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wharf_request_duration_seconds",
			Help:    "Request handling duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wharf_requests_in_flight",
			Help: "Number of requests currently being served.",
		},
	)

	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wharf_connections_active",
			Help: "Number of open connections.",
		},
	)

	wsFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wharf_websocket_frames_total",
			Help: "Total number of WebSocket frames received (only direction \"in\" is counted).",
		},
		[]string{"direction", "opcode"},
	)
)

// requestTimer tracks one request's in-flight duration.
type requestTimer struct {
	start time.Time
}

func startRequestTimer() requestTimer {
	requestsInFlight.Inc()
	return requestTimer{start: time.Now()}
}

func (t requestTimer) observe(c *conn.Connection) {
	requestsInFlight.Dec()
	status := strconv.Itoa(int(c.Reply.Status))
	requestsTotal.WithLabelValues(c.Request.Method, status).Inc()
	requestDuration.WithLabelValues(c.Request.Method, status).Observe(time.Since(t.start).Seconds())
}
