package radiosession

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sessionMetrics holds the Prometheus collectors for one session engine.
// Registration is opt-in (Config.Metrics.Enabled) since a host embedding
// multiple sessions may want to register its own collectors instead.
type sessionMetrics struct {
	commandsInFlight prometheus.Gauge
	commandsTimedOut prometheus.Counter
	commandsRejected prometheus.Counter
	parseErrors      prometheus.Counter
	framesDropped    *prometheus.CounterVec
	streamGaps       *prometheus.CounterVec
	keepaliveMisses  prometheus.Counter
}

func newSessionMetrics(namespace string) *sessionMetrics {
	if namespace == "" {
		namespace = "radiosession"
	}
	return &sessionMetrics{
		commandsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_in_flight",
			Help:      "Number of control commands awaiting a terminal reply.",
		}),
		commandsTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_timed_out_total",
			Help:      "Commands that never received a terminal reply before their deadline.",
		}),
		commandsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Commands that received a non-zero reply code.",
		}),
		parseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_parse_errors_total",
			Help:      "Status-frame attributes that failed to parse.",
		}),
		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataplane_frames_dropped_total",
			Help:      "Data-plane frames dropped due to per-stream backpressure.",
		}, []string{"stream_id"}),
		streamGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataplane_stream_gaps_total",
			Help:      "Detected frame-index gaps per data stream.",
		}, []string{"stream_id"}),
		keepaliveMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keepalive_misses_total",
			Help:      "Consecutive keep-alive pings that timed out.",
		}),
	}
}
