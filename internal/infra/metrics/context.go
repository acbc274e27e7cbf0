package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(contextWindowsTotal, contextSummariesTotal) }

var (
	contextWindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_windows_total",
			Help: "Assembled context windows, by whether an overflow set was summarized.",
		},
		[]string{"summarized"},
	)

	contextSummariesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_summaries_total",
			Help: "Summaries produced, by result (ok, cached, unavailable).",
		},
		[]string{"result"},
	)
)

func IncContextWindow(summarized bool) {
	contextWindowsTotal.WithLabelValues(strconv.FormatBool(summarized)).Inc()
}

func IncSummary(result string) {
	contextSummariesTotal.WithLabelValues(norm(result)).Inc()
}
