package observability

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chathack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathack",
			Subsystem: "protocol",
			Name:      "frames_total",
			Help:      "Frames decoded (in) and encoded for sending (out).",
		},
		[]string{"link", "direction", "opcode"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathack",
			Subsystem: "protocol",
			Name:      "frame_errors_total",
			Help:      "Inbound byte sequences rejected by the frame reader.",
		},
		[]string{"link"},
	)
	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chathack",
			Subsystem: "reactor",
			Name:      "connections_active",
			Help:      "Live connections owned by the reactor loop.",
		},
		[]string{"link"},
	)
	authResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathack",
			Subsystem: "broker",
			Name:      "auth_results_total",
			Help:      "Connect attempts by answer code.",
		},
		[]string{"mode", "result"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathack",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "File bytes sent or written to disk.",
		},
		[]string{"direction"},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chathack",
			Subsystem: "transfer",
			Name:      "files_total",
			Help:      "File transfers by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			frames, frameErrors, connections,
			authResults, transferBytes, transfers,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func opcodeLabel(op byte) string {
	return fmt.Sprintf("0x%02x", op)
}

func RecordFrameIn(link string, op byte) {
	RegisterMetrics()
	frames.WithLabelValues(link, "in", opcodeLabel(op)).Inc()
}

func RecordFrameOut(link string, op byte) {
	RegisterMetrics()
	frames.WithLabelValues(link, "out", opcodeLabel(op)).Inc()
}

func RecordFrameRejected(link string) {
	RegisterMetrics()
	frameErrors.WithLabelValues(link).Inc()
}

// ConnectionOpened and ConnectionClosed keep the active gauge per link.
func ConnectionOpened(link string) {
	RegisterMetrics()
	connections.WithLabelValues(link).Inc()
}

func ConnectionClosed(link string) {
	RegisterMetrics()
	connections.WithLabelValues(link).Dec()
}

func RecordAuthResult(guest bool, result string) {
	RegisterMetrics()
	mode := "password"
	if guest {
		mode = "guest"
	}
	authResults.WithLabelValues(mode, result).Inc()
}

func RecordTransferBytes(direction string, n int) {
	RegisterMetrics()
	transferBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordTransfer(direction, outcome string) {
	RegisterMetrics()
	transfers.WithLabelValues(direction, outcome).Inc()
}
