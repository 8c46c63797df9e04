package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsCollector interface {
	RecordWebhook(source, outcome string)
	RecordPayout(rail, stage, outcome string)
}

type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWebhook(string, string)        {}
func (NoopMetricsCollector) RecordPayout(string, string, string) {}

type PrometheusMetrics struct {
	webhooks *prometheus.CounterVec
	payouts  *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Subsystem: "settlement",
				Name:      "webhooks_total",
				Help:      "Provider webhooks partitioned by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		payouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Subsystem: "settlement",
				Name:      "payouts_total",
				Help:      "Payout dispatch and requery results partitioned by rail.",
			},
			[]string{"rail", "stage", "outcome"},
		),
	}
}

func (m *PrometheusMetrics) RecordWebhook(source, outcome string) {
	m.webhooks.WithLabelValues(source, outcome).Inc()
}

func (m *PrometheusMetrics) RecordPayout(rail, stage, outcome string) {
	m.payouts.WithLabelValues(rail, stage, outcome).Inc()
}
