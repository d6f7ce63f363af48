package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.LoginCompleted("google", false)
	m.LoginCompleted("google", false)
	m.LoginCompleted("google", true)
	m.CallbackError("keycloak", "idp_error")
	m.ObserveExchange("google", 150*time.Millisecond)
	m.IncrementRateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Logins.WithLabelValues("google", "idp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("google", "mock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackErrors.WithLabelValues("keycloak", "idp_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExchangeDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}
