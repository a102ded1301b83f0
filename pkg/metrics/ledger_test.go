package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.IncTransfer("tip", OutcomeSuccess)
	m.IncTransfer("tip", OutcomeSuccess)
	m.IncTransfer("donation", OutcomeRejected)
	m.IncExchange("JPY", OutcomeSuccess)
	m.ObserveDuration("transfer", 20*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ledger_transfers_total", map[string]string{"kind": "tip", "outcome": OutcomeSuccess}); err != nil {
		t.Fatalf("fetch transfers: %v", err)
	} else if got != 2 {
		t.Fatalf("expected tip successes=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "ledger_transfers_total", map[string]string{"kind": "donation", "outcome": OutcomeRejected}); err != nil {
		t.Fatalf("fetch rejected donations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected donation rejections=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "ledger_exchange_requests_total", map[string]string{"currency": "JPY"}); err != nil {
		t.Fatalf("fetch exchanges: %v", err)
	} else if got != 1 {
		t.Fatalf("expected exchange=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "ledger_operation_duration_seconds", "operation", "transfer"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestOutboxMetricsCountsByTopic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("ledger")
	m.IncFailed("ledger")
	m.IncParked("max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_dlq_total", map[string]string{"reason": "max_attempts"}); err != nil || got != 1 {
		t.Fatalf("expected one parked event, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var ledger *LedgerMetrics
	ledger.IncTransfer("tip", OutcomeSuccess)
	ledger.ObserveDuration("transfer", time.Second)

	var outbox *OutboxMetrics
	outbox.IncPublished("topic")

	var maintenance *MaintenanceMetrics
	maintenance.SetFindings("job", 2)

	unregistered := NewLedgerMetrics(nil)
	unregistered.IncExchange("USDT", OutcomeError)
}

func TestMaintenanceMetricsFindingsOverwrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetrics(reg)
	m.IncRun("transfer-audit", OutcomeSuccess)
	m.SetFindings("transfer-audit", 3)
	m.SetFindings("transfer-audit", 1)
	m.ObserveDuration("transfer-audit", 5*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "maintenance_job_findings")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected one findings series, got %v", mf)
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected findings=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_job_runs_total", map[string]string{"job": "transfer-audit", "outcome": OutcomeSuccess}); err != nil || got != 1 {
		t.Fatalf("expected one successful run, got %f (%v)", got, err)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == name && pair.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
