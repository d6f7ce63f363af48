package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Logins           *prometheus.CounterVec
	CallbackErrors   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	RateLimited      prometheus.Counter
}

// New registers the gateway metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fence_logins_total",
			Help: "Total number of completed logins",
		}, []string{"idp", "mode"}),
		CallbackErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fence_login_callback_errors_total",
			Help: "Total number of failed or rejected login steps",
		}, []string{"idp", "kind"}),
		ExchangeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fence_idp_exchange_duration_seconds",
			Help:    "Time spent redeeming authorization codes at the IdP",
			Buckets: prometheus.DefBuckets,
		}, []string{"idp"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "fence_login_rate_limited_total",
			Help: "Total number of login requests rejected by the rate limiter",
		}),
	}
}

func (m *Metrics) LoginCompleted(idpName string, mock bool) {
	mode := "idp"
	if mock {
		mode = "mock"
	}
	m.Logins.WithLabelValues(idpName, mode).Inc()
}

func (m *Metrics) CallbackError(idpName, kind string) {
	m.CallbackErrors.WithLabelValues(idpName, kind).Inc()
}

func (m *Metrics) ObserveExchange(idpName string, d time.Duration) {
	m.ExchangeDuration.WithLabelValues(idpName).Observe(d.Seconds())
}

func (m *Metrics) IncrementRateLimited() {
	m.RateLimited.Inc()
}
