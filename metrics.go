package forestz

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forestz"

// engineMetrics counts notifications. Collectors always exist so the hot
// path never branches on whether metrics are registered.
type engineMetrics struct {
	opened     prometheus.Counter
	closed     *prometheus.CounterVec
	events     prometheus.Counter
	violations *prometheus.CounterVec
	submitted  prometheus.Counter
	rejected   prometheus.Counter
	open       prometheus.GaugeFunc
}

func newEngineMetrics(r *registry) *engineMetrics {
	return &engineMetrics{
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "spans_opened_total",
			Help: "Spans opened.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "spans_closed_total",
			Help: "Spans closed, by whether flush force-closed them.",
		}, []string{"truncated"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "events_total",
			Help: "Events recorded.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "violations_total",
			Help: "Notifications that broke the open/close contract.",
		}, []string{"kind"}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "trees_submitted_total",
			Help: "Completed trees accepted by the sink.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "trees_rejected_total",
			Help: "Completed trees the sink refused.",
		}),
		open: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "open_spans",
			Help: "Spans currently open.",
		}, func() float64 { return float64(r.len()) }),
	}
}

func (m *engineMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.opened, m.closed, m.events, m.violations, m.submitted, m.rejected, m.open)
}

type queueMetrics struct {
	submitted prometheus.Counter
	delivered prometheus.Counter
	failed    prometheus.Counter
	dropped   *prometheus.CounterVec
	depth     prometheus.GaugeFunc
}

func newQueueMetrics(q *Queue) *queueMetrics {
	return &queueMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "submitted_total",
			Help: "Trees enqueued.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "delivered_total",
			Help: "Trees processed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "process_errors_total",
			Help: "Trees the processor failed or panicked on.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sink", Name: "dropped_total",
			Help: "Trees dropped, by reason.",
		}, []string{"reason"}),
		depth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sink", Name: "queue_depth",
			Help: "Trees waiting for the processor.",
		}, func() float64 { return float64(q.Len()) }),
	}
}

func (m *queueMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.submitted, m.delivered, m.failed, m.dropped, m.depth)
}
