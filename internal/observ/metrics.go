package observ

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the presence and space counters. A nil *Metrics, or one
// built with a nil registerer, is a valid no-op.
type Metrics struct {
	connected     prometheus.Gauge
	fanout        *prometheus.CounterVec
	deliveryFails *prometheus.CounterVec
	provisions    *prometheus.CounterVec
	compensations *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hop",
		Name:      "connected_users",
		Help:      "Users with a live realtime connection on this instance.",
	})
	fanout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hop",
		Name:      "notifications_sent_total",
		Help:      "Realtime notifications handed to a connection.",
	}, []string{"event"})
	deliveryFails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hop",
		Name:      "notification_failures_total",
		Help:      "Realtime notifications that could not be delivered.",
	}, []string{"event"})
	provisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hop",
		Name:      "provision_calls_total",
		Help:      "Calls to the remote desktop provisioning API.",
	}, []string{"op", "result"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hop",
		Name:      "provision_compensations_total",
		Help:      "Deprovision attempts for spaces whose creation did not commit.",
	}, []string{"result"})
	reg.MustRegister(connected, fanout, deliveryFails, provisions, compensations)
	return &Metrics{
		connected:     connected,
		fanout:        fanout,
		deliveryFails: deliveryFails,
		provisions:    provisions,
		compensations: compensations,
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil || m.connected == nil {
		return
	}
	m.connected.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil || m.connected == nil {
		return
	}
	m.connected.Dec()
}

func (m *Metrics) NotificationSent(event string) {
	if m == nil || m.fanout == nil {
		return
	}
	m.fanout.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *Metrics) NotificationFailed(event string) {
	if m == nil || m.deliveryFails == nil {
		return
	}
	m.deliveryFails.WithLabelValues(normalizeLabel(event)).Inc()
}

// ProvisionCall records one provisioning API call. op is "create" or "delete".
func (m *Metrics) ProvisionCall(op string, err error) {
	if m == nil || m.provisions == nil {
		return
	}
	m.provisions.WithLabelValues(normalizeLabel(op), resultLabel(err)).Inc()
}

// Compensation records the outcome of one deprovision retry; result is
// "success", "retry" or "abandoned".
func (m *Metrics) Compensation(result string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(result)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
