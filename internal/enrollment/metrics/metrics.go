package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the enrollment pipeline.
type Metrics struct {
	PaymentsCreated    *prometheus.CounterVec
	PaymentsValidated  *prometheus.CounterVec
	PaymentsRejected   prometheus.Counter
	OvershootRejected  prometheus.Counter
	FeesSettled        prometheus.Counter
	Activations        prometheus.Counter
	ReceiptsIssued     prometheus.Counter
	ConflictRetries    prometheus.Counter
	DependencyFailures *prometheus.CounterVec
	ValidateDuration   prometheus.Histogram
	ActivateDuration   prometheus.Histogram
}

// New registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PaymentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esfe_payments_created_total",
			Help: "Pending payments created, by method",
		}, []string{"method"}),
		PaymentsValidated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esfe_payments_validated_total",
			Help: "Payments moved from pending to validated, by method",
		}, []string{"method"}),
		PaymentsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "esfe_payments_rejected_total",
			Help: "Payments moved from pending to rejected",
		}),
		OvershootRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "esfe_payment_overshoot_total",
			Help: "Payment creations or validations refused for exceeding the remaining balance",
		}),
		FeesSettled: f.NewCounter(prometheus.CounterOpts{
			Name: "esfe_fees_settled_total",
			Help: "Fee instances that became settled",
		}),
		Activations: f.NewCounter(prometheus.CounterOpts{
			Name: "esfe_enrollments_activated_total",
			Help: "Enrollments activated",
		}),
		ReceiptsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "esfe_receipts_issued_total",
			Help: "Receipt numbers allocated",
		}),
		ConflictRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "esfe_conflict_retries_total",
			Help: "Transactions retried after contention",
		}),
		DependencyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "esfe_dependency_failures_total",
			Help: "Collaborator failures after commit, by collaborator",
		}, []string{"collaborator"}),
		ValidateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "esfe_validate_payment_duration_seconds",
			Help:    "Duration of ValidatePayment including post-commit side effects",
			Buckets: durationBuckets,
		}),
		ActivateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "esfe_activation_duration_seconds",
			Help:    "Duration of activation transactions",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncPaymentCreated(method string) {
	if m == nil {
		return
	}
	m.PaymentsCreated.WithLabelValues(method).Inc()
}

func (m *Metrics) IncPaymentValidated(method string) {
	if m == nil {
		return
	}
	m.PaymentsValidated.WithLabelValues(method).Inc()
}

func (m *Metrics) IncPaymentRejected() {
	if m == nil {
		return
	}
	m.PaymentsRejected.Inc()
}

func (m *Metrics) IncOvershoot() {
	if m == nil {
		return
	}
	m.OvershootRejected.Inc()
}

func (m *Metrics) IncFeeSettled() {
	if m == nil {
		return
	}
	m.FeesSettled.Inc()
}

func (m *Metrics) IncActivation() {
	if m == nil {
		return
	}
	m.Activations.Inc()
}

func (m *Metrics) IncReceiptIssued() {
	if m == nil {
		return
	}
	m.ReceiptsIssued.Inc()
}

func (m *Metrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.ConflictRetries.Inc()
}

func (m *Metrics) IncDependencyFailure(collaborator string) {
	if m == nil {
		return
	}
	m.DependencyFailures.WithLabelValues(collaborator).Inc()
}

// ObserveValidate records the duration of a ValidatePayment call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveValidate(start time.Time) {
	if m == nil {
		return
	}
	m.ValidateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveActivate(start time.Time) {
	if m == nil {
		return
	}
	m.ActivateDuration.Observe(time.Since(start).Seconds())
}
