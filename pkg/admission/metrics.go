package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for admission decisions.
//
// All methods are safe on a nil receiver, so collaborators can record
// unconditionally whether or not metrics were configured.
type Metrics struct {
	reg prometheus.Registerer

	checks          *prometheus.CounterVec
	queueRejections *prometheus.CounterVec
	queueWait       prometheus.Histogram
}

// NewMetrics creates a Metrics instance registered against reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,

		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_admission_checks_total",
				Help: "Total number of admission decisions by result",
			},
			[]string{"result"},
		),

		queueRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_admission_queue_rejections_total",
				Help: "Total number of queued requests rejected, by reason",
			},
			[]string{"reason"},
		),

		queueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callisto_admission_queue_wait_seconds",
				Help:    "Time admitted requests spent waiting in the queue",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
	}
}

// RecordCheck records one admission decision.
func (m *Metrics) RecordCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.checks.WithLabelValues(result).Inc()
}

// RecordQueueRejection records a queued request that ended in rejection.
func (m *Metrics) RecordQueueRejection(reason string) {
	if m == nil {
		return
	}
	m.queueRejections.WithLabelValues(reason).Inc()
}

// ObserveQueueWait records how long an admitted request waited.
func (m *Metrics) ObserveQueueWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(wait.Seconds())
}

// registerQueueDepth exposes the live total queue depth as a gauge.
func (m *Metrics) registerQueueDepth(depth func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "callisto_admission_queue_depth",
			Help: "Current number of requests waiting across all keys",
		},
		depth,
	)
}
