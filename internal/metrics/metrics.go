package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics",
	fx.Provide(New),
)

type Metrics struct {
	WebhookEvents   *prometheus.CounterVec
	ReconcileErrors prometheus.Counter
	ImageUploads    *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playtest_webhook_events_total",
			Help: "Webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playtest_order_reconcile_errors_total",
			Help: "Order reconciliations that failed after a verified completion event.",
		}),
		ImageUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playtest_image_uploads_total",
			Help: "Per-image ingestion results.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.WebhookEvents, m.ReconcileErrors, m.ImageUploads)
	return m
}
