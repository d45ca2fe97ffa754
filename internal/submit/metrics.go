package submit

import "github.com/prometheus/client_golang/prometheus"

var submissionsHeld = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "ember_submissions_held",
		Help: "Number of engine queues currently parked behind a reset gate.",
	},
)

func init() {
	prometheus.MustRegister(submissionsHeld)
}
