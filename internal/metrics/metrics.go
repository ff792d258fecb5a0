package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "encbench"

var (
	EncodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encodes_total",
			Help:      "Total number of encode trials, labeled by encoder and outcome.",
		},
		[]string{"encoder", "outcome"},
	)

	EncodeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_seconds",
			Help:      "Wall-clock duration of individual encode trials (seconds).",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"encoder"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of hardware-encoder failures retried on a software encoder.",
		},
		[]string{"from", "to"},
	)

	ScoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_total",
			Help:      "Total number of quality-scoring invocations, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	GateSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_skips_total",
			Help:      "Total number of results the integrity gate withheld from submission.",
		},
		[]string{"reason"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of submission attempts reaching a terminal outcome.",
		},
		[]string{"outcome"},
	)

	QueueDrainedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_drained_total",
			Help:      "Total number of retry-queue items swept, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		EncodesTotal,
		EncodeSeconds,
		FallbacksTotal,
		ScoresTotal,
		GateSkipsTotal,
		SubmissionsTotal,
		QueueDrainedTotal,
	)
}
