package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiPromptTokensEstimated,
		aiStreamsTotal,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "kind", "success"},
	)

	aiPromptTokensEstimated = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens_estimated",
			Help:    "Estimated prompt size of assembled context windows.",
			Buckets: prometheus.ExponentialBuckets(32, 2, 10),
		},
		[]string{"model"},
	)

	aiStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_streams_total",
			Help: "Completion streams by terminal outcome (done, error, canceled).",
		},
		[]string{"provider", "outcome"},
	)
)

// ObserveChatUsage records one completion call. kind is "chat" or "stream".
func ObserveChatUsage(provider, model, kind string, tokensIn, tokensOut int, latencyMs int64, success bool) {
	lbl := []string{norm(provider), norm(model)}
	if tokensIn > 0 {
		aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	}
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), norm(kind), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func ObservePromptTokens(model string, n int) {
	aiPromptTokensEstimated.WithLabelValues(norm(model)).Observe(float64(n))
}

func IncStream(provider, outcome string) {
	aiStreamsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
