package broadcast

import "github.com/prometheus/client_golang/prometheus"

var subscribersGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "llmgate",
		Name:      "subscribers",
		Help:      "Connected stream subscribers",
	},
	[]string{"stream"},
)

func init() {
	prometheus.MustRegister(subscribersGauge)
}
