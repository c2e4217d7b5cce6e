package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payroll engine
type Metrics struct {
	PayslipsGenerated       prometheus.Counter
	PayslipCalcFailures     prometheus.Counter
	FilingsCreated          prometheus.Counter
	DisbursementOutcomes    *prometheus.CounterVec
	DisbursedAmount         *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PayslipsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "payroll_payslips_generated_total",
			Help: "Total number of payslips created",
		}),
		PayslipCalcFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "payroll_payslip_calculation_failures_total",
			Help: "Batch entries rejected by the calculator",
		}),
		FilingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "payroll_cnps_filings_created_total",
			Help: "Total number of CNPS filings created",
		}),
		DisbursementOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payroll_disbursement_outcomes_total",
			Help: "Salary payments dispatched, by channel and outcome",
		}, []string{"channel", "outcome"}),
		DisbursedAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payroll_disbursed_amount_xof_total",
			Help: "Net salary amount moved, in XOF",
		}, []string{"channel"}),
		ProviderRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payroll_provider_request_duration_seconds",
			Help:    "Latency of mobile money operator API calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operator", "operation", "outcome"}),
	}
}

// IncrementPayslipsGenerated adds n created payslips
func (m *Metrics) IncrementPayslipsGenerated(n int) {
	if m == nil {
		return
	}
	m.PayslipsGenerated.Add(float64(n))
}

func (m *Metrics) IncrementCalcFailures(n int) {
	if m == nil {
		return
	}
	m.PayslipCalcFailures.Add(float64(n))
}

func (m *Metrics) IncrementFilingsCreated() {
	if m == nil {
		return
	}
	m.FilingsCreated.Inc()
}

func (m *Metrics) RecordDisbursement(channel, outcome string, amount float64) {
	if m == nil {
		return
	}
	m.DisbursementOutcomes.WithLabelValues(channel, outcome).Inc()
	if outcome == "success" {
		m.DisbursedAmount.WithLabelValues(channel).Add(amount)
	}
}

func (m *Metrics) ObserveProviderCall(operator, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestDuration.WithLabelValues(operator, operation, outcome).Observe(elapsed.Seconds())
}
