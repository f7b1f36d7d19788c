package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

var (
	registerOnce sync.Once

	viciPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vicictl",
			Subsystem: "vici",
			Name:      "packets_total",
			Help:      "VICI packets by direction and packet type.",
		},
		[]string{"direction", "type"},
	)
	viciCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vicictl",
			Subsystem: "vici",
			Name:      "calls_total",
			Help:      "Completed command calls by outcome.",
		},
		[]string{"command", "outcome"},
	)
	viciCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vicictl",
			Subsystem: "vici",
			Name:      "call_duration_seconds",
			Help:      "Command call duration in seconds, request to terminal reply.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	viciEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vicictl",
			Subsystem: "vici",
			Name:      "events_total",
			Help:      "Event packets consumed by event-aware operations.",
		},
		[]string{"event"},
	)
	viciErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vicictl",
			Subsystem: "vici",
			Name:      "errors_total",
			Help:      "Failed client operations by error kind.",
		},
		[]string{"op", "kind"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vicictl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vicictl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			viciPackets, viciCalls, viciCallDuration, viciEvents, viciErrors,
			httpRequests, httpDuration,
		)
	})
}

func RecordPacket(direction, packetType string) {
	RegisterMetrics()
	viciPackets.WithLabelValues(direction, packetType).Inc()
}

func RecordCall(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	viciCalls.WithLabelValues(command, outcome).Inc()
	viciCallDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordEvent(event string) {
	RegisterMetrics()
	viciEvents.WithLabelValues(event).Inc()
}

func RecordError(op, kind string) {
	RegisterMetrics()
	viciErrors.WithLabelValues(op, kind).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
