package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	tokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Total number of generated tokens",
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmgate",
			Name:      "generations_total",
			Help:      "Finished generations by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llmgate",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Wall time of finished generations",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	loadDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llmgate",
			Subsystem: "model",
			Name:      "load_seconds",
			Help:      "Duration of the last successful model load",
		},
	)
)

func init() {
	prometheus.MustRegister(tokensTotal, generationsTotal, generationDuration, loadDuration)
}
