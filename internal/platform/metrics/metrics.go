// Package metrics provides Prometheus observability for the gateway. Every
// failure class the pipeline absorbs internally (delivery degradation,
// audit write failure) is surfaced here so operators can see what the
// user-facing response hides.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all gateway instruments.
type Metrics struct {
	DispatchesTotal      *prometheus.CounterVec
	PushesTotal          prometheus.Counter
	DeliveryDegradations prometheus.Counter
	AuditEntriesTotal    prometheus.Counter
	AuditFailuresTotal   prometheus.Counter
	RejectionsTotal      *prometheus.CounterVec
	ConnectionsActive    prometheus.Gauge
	NotificationsSwept   prometheus.Counter
}

// New registers all gateway metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all gateway metrics on the given registerer. Tests pass
// a fresh registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dispatches_total",
			Help: "Notification dispatch calls by target kind (user, role, broadcast)",
		}, []string{"target"}),
		PushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_pushes_total",
			Help: "Realtime pushes attempted to live connections",
		}),
		DeliveryDegradations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_delivery_degradations_total",
			Help: "Pushes dropped for a single connection (timeout or closed transport)",
		}),
		AuditEntriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_entries_total",
			Help: "Audit entries successfully appended",
		}),
		AuditFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_audit_failures_total",
			Help: "Audit writes that failed and were handled per the configured policy",
		}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rejections_total",
			Help: "Units of work rejected by the compliance pipeline, by reason",
		}, []string{"reason"}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Currently registered realtime connections",
		}),
		NotificationsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_notifications_swept_total",
			Help: "Expired notifications physically purged by the background sweep",
		}),
	}
}
