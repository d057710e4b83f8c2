package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncPaymentValidated("cash")
	m.IncPaymentValidated("cash")
	m.IncPaymentValidated("bank")
	m.IncActivation()
	m.IncDependencyFailure("email")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsValidated.WithLabelValues("cash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Activations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DependencyFailures.WithLabelValues("email")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncActivation()
		m.IncPaymentCreated("cash")
		m.IncConflictRetry()
	})
}
