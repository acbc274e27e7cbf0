package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(streamFlushesTotal, streamFormatAttemptsTotal) }

var (
	streamFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_flushes_total",
			Help: "Flush attempts of the streaming renderer by outcome (displayed, noop, suppressed, skipped).",
		},
		[]string{"outcome"},
	)

	streamFormatAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_format_attempts_total",
			Help: "Display attempts per format tier and result.",
		},
		[]string{"format", "result"},
	)
)

func IncFlush(outcome string) {
	streamFlushesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncFormatAttempt(format, result string) {
	streamFormatAttemptsTotal.WithLabelValues(norm(format), norm(result)).Inc()
}
