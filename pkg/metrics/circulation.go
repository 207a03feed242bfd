package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// CirculationMetrics counts loan transitions, holds and assessed fines.
type CirculationMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	holds       prometheus.Counter
	fines       prometheus.Histogram
}

// NewCirculationMetrics registers the circulation metrics on the provided registerer.
func NewCirculationMetrics(reg prometheus.Registerer) *CirculationMetrics {
	if reg == nil {
		return &CirculationMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_loan_transitions_total",
		Help: "Loan lifecycle transitions by resulting state.",
	}, []string{"transition"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "library_operation_rejections_total",
		Help: "Circulation operations refused by a business rule.",
	}, []string{"operation", "reason"})
	holds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "library_holds_placed_total",
		Help: "Hold requests placed.",
	})
	fines := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "library_return_fine_amount",
		Help:    "Fine assessed on returned loans.",
		Buckets: []float64{0, 50, 100, 250, 500, 1000, 2500},
	})
	reg.MustRegister(transitions, rejections, holds, fines)
	return &CirculationMetrics{
		transitions: transitions,
		rejections:  rejections,
		holds:       holds,
		fines:       fines,
	}
}

// IncTransition counts a loan entering the named state (requested, approved, rejected, returned).
func (c *CirculationMetrics) IncTransition(transition string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(transition)).Inc()
}

// IncRejection counts an operation refused for reason.
func (c *CirculationMetrics) IncRejection(operation, reason string) {
	if c == nil || c.rejections == nil {
		return
	}
	c.rejections.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Inc()
}

func (c *CirculationMetrics) IncHold() {
	if c == nil || c.holds == nil {
		return
	}
	c.holds.Inc()
}

// ObserveFine records the fine charged on a return.
func (c *CirculationMetrics) ObserveFine(amount decimal.Decimal) {
	if c == nil || c.fines == nil {
		return
	}
	c.fines.Observe(amount.InexactFloat64())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
