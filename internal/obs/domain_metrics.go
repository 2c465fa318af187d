package obs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VoucherMetrics counts voucher lifecycle outcomes. It satisfies voucher.Metrics.
type VoucherMetrics struct {
	Issued     *prometheus.CounterVec
	Collisions prometheus.Counter
	Outcomes   *prometheus.CounterVec
	EmailTasks *prometheus.CounterVec
}

// NewVoucherMetrics initialises and registers the voucher collectors on reg.
func NewVoucherMetrics(namespace string, reg prometheus.Registerer) *VoucherMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &VoucherMetrics{
		Issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_issued_total",
			Help:      "Count of issued vouchers by code format.",
		}, []string{"format"}),
		Collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_code_collisions_total",
			Help:      "Number of generated voucher codes rejected because they already existed.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_outcomes_total",
			Help:      "Count of recorded voucher outcomes by status.",
		}, []string{"status"}),
		EmailTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_email_tasks_total",
			Help:      "Count of processed issuance email tasks by result.",
		}, []string{"result"}),
	}

	mustRegisterCollector(reg, m.Issued, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Issued = v
		}
	})
	mustRegisterCollector(reg, m.Collisions, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.Collisions = v
		}
	})
	mustRegisterCollector(reg, m.Outcomes, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Outcomes = v
		}
	})
	mustRegisterCollector(reg, m.EmailTasks, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.EmailTasks = v
		}
	})
	return m
}

// VoucherIssued records an issuance for the tenant's code format.
func (m *VoucherMetrics) VoucherIssued(format string) {
	if m == nil {
		return
	}
	m.Issued.WithLabelValues(format).Inc()
}

// CodeCollision records a generated code that was already taken.
func (m *VoucherMetrics) CodeCollision() {
	if m == nil {
		return
	}
	m.Collisions.Inc()
}

// VoucherOutcome records a redemption or unfulfilled outcome.
func (m *VoucherMetrics) VoucherOutcome(status string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(status).Inc()
}

// EmailTask records the result of an email worker run.
func (m *VoucherMetrics) EmailTask(result string) {
	if m == nil {
		return
	}
	m.EmailTasks.WithLabelValues(result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
