package reset

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/ember/internal/model"
)

var (
	resetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_engine_resets_total",
			Help: "Total number of engine reset attempts, by engine and outcome.",
		},
		[]string{"engine", "outcome"},
	)

	resetDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ember_engine_reset_duration_seconds",
			Help:    "Duration of one engine reset attempt, quiesce to resume, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	resetsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_engine_resets_in_progress",
			Help: "Number of engines currently being reset.",
		},
	)
)

func init() {
	prometheus.MustRegister(resetsTotal)
	prometheus.MustRegister(resetDuration)
	prometheus.MustRegister(resetsInProgress)
}

// initMetrics pre-initializes label combinations so every engine appears
// in /metrics with value 0 from startup, rather than only after its first
// reset.
func initMetrics(engines []model.Engine) {
	for _, eng := range engines {
		resetsTotal.WithLabelValues(eng.Name, model.OutcomeCompleted)
		resetsTotal.WithLabelValues(eng.Name, model.OutcomeFailed)
	}
}
