package ledger

import (
	"time"

	"walletledger/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOperationDuration(string, time.Duration) {}
func (NoopMetricsCollector) RecordOperationResult(string, string)          {}
func (NoopMetricsCollector) RecordTransaction(models.TransactionType, models.TransactionStatus, decimal.Decimal) {
}
func (NoopMetricsCollector) RecordCacheHit(string)  {}
func (NoopMetricsCollector) RecordCacheMiss(string) {}

// PrometheusMetrics registers the ledger collectors on reg.
type PrometheusMetrics struct {
	operationDuration *prometheus.HistogramVec
	operationResults  *prometheus.CounterVec
	transactions      *prometheus.CounterVec
	volume            *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "walletledger",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger operations including lock waits.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Ledger operations partitioned by result code.",
			},
			[]string{"operation", "result"},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Subsystem: "engine",
				Name:      "transactions_total",
				Help:      "Committed transaction rows by type and status.",
			},
			[]string{"type", "status"},
		),
		volume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Subsystem: "engine",
				Name:      "transaction_volume_total",
				Help:      "Sum of committed transaction amounts by type.",
			},
			[]string{"type"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "History cache lookups partitioned by outcome.",
			},
			[]string{"view", "outcome"},
		),
	}
}

func (m *PrometheusMetrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordOperationResult(operation, result string) {
	m.operationResults.WithLabelValues(operation, result).Inc()
}

func (m *PrometheusMetrics) RecordTransaction(txType models.TransactionType, status models.TransactionStatus, amount decimal.Decimal) {
	m.transactions.WithLabelValues(string(txType), string(status)).Inc()
	m.volume.WithLabelValues(string(txType)).Add(amount.InexactFloat64())
}

func (m *PrometheusMetrics) RecordCacheHit(view string) {
	m.cacheLookups.WithLabelValues(view, "hit").Inc()
}

func (m *PrometheusMetrics) RecordCacheMiss(view string) {
	m.cacheLookups.WithLabelValues(view, "miss").Inc()
}
