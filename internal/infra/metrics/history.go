package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(historyWritesTotal, historyStoreErrorsTotal, historyPrunedTotal) }

var (
	historyWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_writes_total",
			Help: "Turn pair commits by result (ok, empty, error).",
		},
		[]string{"result"},
	)

	historyStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_store_errors_total",
			Help: "History store failures by operation.",
		},
		[]string{"op"},
	)

	historyPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "history_pruned_turns_total",
			Help: "Turns removed by the retention worker.",
		},
	)
)

func IncHistoryWrite(result string) {
	historyWritesTotal.WithLabelValues(norm(result)).Inc()
}

func IncHistoryStoreError(op string) {
	historyStoreErrorsTotal.WithLabelValues(norm(op)).Inc()
}

func AddHistoryPruned(n int64) {
	historyPrunedTotal.Add(float64(n))
}
