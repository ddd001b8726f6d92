package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	protocolMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "protocol",
			Name:      "messages_total",
			Help:      "Device protocol messages by direction and type.",
		},
		[]string{"direction", "type"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "protocol",
			Name:      "decode_errors_total",
			Help:      "Inbound frames or payloads that could not be decoded.",
		},
		[]string{"reason"},
	)
	flushBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "flush_bytes",
			Help:      "Size of each batched outgoing transmission.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
		},
	)
	flushMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "flushed_messages_total",
			Help:      "Outgoing messages handed to a transport.",
		},
	)
	oversized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "oversized_flush_attempts_total",
			Help:      "Flushes where no pending message fit the negotiated size.",
		},
	)
	handshakes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wearctl",
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Time from link up to connected or failed.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"success"},
	)
	droppedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber or the hub was full.",
		},
	)
	droppedInbound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "engine",
			Name:      "inbound_dropped_total",
			Help:      "Inbound device buffers dropped because a device inbox was full.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wearctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wearctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			protocolMessages, decodeErrors,
			flushBytes, flushMessages, oversized, handshakes,
			droppedEvents, droppedInbound,
			httpRequests, httpDuration,
		)
	})
}

func RecordMessage(direction, typeName string) {
	RegisterMetrics()
	protocolMessages.WithLabelValues(direction, typeName).Inc()
}

func RecordDecodeError(reason string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(reason).Inc()
}

func RecordFlush(bytes, messages int) {
	RegisterMetrics()
	flushBytes.Observe(float64(bytes))
	flushMessages.Add(float64(messages))
}

func RecordOversizedMessages(pending int) {
	RegisterMetrics()
	if pending > 0 {
		oversized.Inc()
	}
}

func RecordHandshake(duration time.Duration, success bool) {
	RegisterMetrics()
	handshakes.WithLabelValues(strconv.FormatBool(success)).Observe(duration.Seconds())
}

func RecordDroppedEvent() {
	RegisterMetrics()
	droppedEvents.Inc()
}

func RecordDroppedInbound() {
	RegisterMetrics()
	droppedInbound.Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
