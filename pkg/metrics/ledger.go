package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the ledger counters.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// LedgerMetrics records transfer, exchange and timing data for the ledger.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	transfers *prometheus.CounterVec
	exchanges *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Tip and donation attempts by outcome.",
	}, []string{"kind", "outcome"})
	exchanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_exchange_requests_total",
		Help: "Exchange request attempts by currency and outcome.",
	}, []string{"currency", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger write operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(transfers, exchanges, duration)
	return &LedgerMetrics{
		transfers: transfers,
		exchanges: exchanges,
		duration:  duration,
	}
}

// IncTransfer counts one transfer attempt.
func (m *LedgerMetrics) IncTransfer(kind, outcome string) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncExchange counts one exchange request attempt.
func (m *LedgerMetrics) IncExchange(currency, outcome string) {
	if m == nil || m.exchanges == nil {
		return
	}
	m.exchanges.WithLabelValues(normalizeLabel(currency), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records how long the named operation took.
func (m *LedgerMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
