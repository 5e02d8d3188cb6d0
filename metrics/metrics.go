package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-storefront/models"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// CheckoutMetrics counts payment and order outcomes. A nil *CheckoutMetrics records nothing.
type CheckoutMetrics struct {
	sessionsCreated       *prometheus.CounterVec
	sessionsReused        *prometheus.CounterVec
	signatureFailures     *prometheus.CounterVec
	paymentsAuthorized    *prometheus.CounterVec
	authorizationRejected *prometheus.CounterVec
	ordersCompleted       prometheus.Counter
	outboxDead            prometheus.Counter
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	byProvider := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      name,
			Help:      help,
		}, []string{"provider"})
	}
	ordersCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "orders_completed_total",
		Help:      "Orders created from carts.",
	})
	outboxDead := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "outbox_dead_total",
		Help:      "Order events that exhausted their delivery attempts.",
	})

	m := &CheckoutMetrics{
		sessionsCreated:       byProvider("sessions_created_total", "Payment sessions created upstream."),
		sessionsReused:        byProvider("sessions_reused_total", "Payment session requests answered by an existing pending session."),
		signatureFailures:     byProvider("signature_failures_total", "Gateway callbacks rejected for an invalid signature."),
		paymentsAuthorized:    byProvider("payments_authorized_total", "Payments recorded for authorized sessions."),
		authorizationRejected: byProvider("authorization_rejected_total", "Authorizations declined by the gateway."),
		ordersCompleted:       ordersCompleted,
		outboxDead:            outboxDead,
	}

	reg.MustRegister(
		m.sessionsCreated,
		m.sessionsReused,
		m.signatureFailures,
		m.paymentsAuthorized,
		m.authorizationRejected,
		m.ordersCompleted,
		m.outboxDead,
	)
	return m
}

func (m *CheckoutMetrics) SessionCreated(provider models.ProviderID) {
	if m != nil {
		m.sessionsCreated.WithLabelValues(string(provider)).Inc()
	}
}

func (m *CheckoutMetrics) SessionReused(provider models.ProviderID) {
	if m != nil {
		m.sessionsReused.WithLabelValues(string(provider)).Inc()
	}
}

func (m *CheckoutMetrics) SignatureFailed(provider models.ProviderID) {
	if m != nil {
		m.signatureFailures.WithLabelValues(string(provider)).Inc()
	}
}

func (m *CheckoutMetrics) PaymentAuthorized(provider models.ProviderID) {
	if m != nil {
		m.paymentsAuthorized.WithLabelValues(string(provider)).Inc()
	}
}

func (m *CheckoutMetrics) AuthorizationRejected(provider models.ProviderID) {
	if m != nil {
		m.authorizationRejected.WithLabelValues(string(provider)).Inc()
	}
}

func (m *CheckoutMetrics) OrderCompleted() {
	if m != nil {
		m.ordersCompleted.Inc()
	}
}

func (m *CheckoutMetrics) OutboxDead() {
	if m != nil {
		m.outboxDead.Inc()
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
