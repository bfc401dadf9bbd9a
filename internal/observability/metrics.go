package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stream directions used as metric labels.
const (
	DirectionEncode = "encode"
	DirectionDecode = "decode"
)

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authpipe",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frames signed or verified, by outcome.",
		},
		[]string{"direction", "result"},
	)
	payloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authpipe",
			Subsystem: "stream",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes signed or delivered after verification.",
		},
		[]string{"direction"},
	)
	streamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authpipe",
			Subsystem: "stream",
			Name:      "failures_total",
			Help:      "Terminal stream failures by error kind.",
		},
		[]string{"direction", "kind"},
	)
	peerVerification = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "authpipe",
			Subsystem: "peer",
			Name:      "verification_seconds",
			Help:      "Time from peer key receipt to verification outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authpipe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests to the metrics listener.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "authpipe",
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
		prometheus.MustRegister(framesTotal, payloadBytes, streamFailures, peerVerification, httpRequests, httpDuration)
	})
}

// RecordFrame counts one frame. ok is false when a frame failed signing or
// verification.
func RecordFrame(direction string, payloadLen int, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "invalid"
	}
	framesTotal.WithLabelValues(direction, result).Inc()
	if ok {
		payloadBytes.WithLabelValues(direction).Add(float64(payloadLen))
	}
}

func RecordFailure(direction, kind string) {
	RegisterMetrics()
	streamFailures.WithLabelValues(direction, kind).Inc()
}

func RecordPeerVerification(approved bool, duration time.Duration) {
	RegisterMetrics()
	peerVerification.WithLabelValues(strconv.FormatBool(approved)).Observe(duration.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
