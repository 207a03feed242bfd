package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

func TestCirculationMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCirculationMetrics(reg)
	metrics.IncTransition("approved")
	metrics.IncTransition("approved")
	metrics.IncTransition("")
	metrics.IncRejection("approve", "out_of_stock")
	metrics.IncHold()
	metrics.ObserveFine(decimal.NewFromInt(250))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "library_loan_transitions_total", "transition", "approved"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected approved=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "library_loan_transitions_total", "transition", "unknown"); err != nil {
		t.Fatalf("fetch unknown transition: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "library_operation_rejections_total", "reason", "out_of_stock"); err != nil {
		t.Fatalf("fetch rejections: %v", err)
	} else if got != 1 {
		t.Fatalf("expected out_of_stock=1, got %f", got)
	}

	if mf := findMetricFamily(mfs, "library_holds_placed_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one hold counted")
	}

	if mf := findMetricFamily(mfs, "library_return_fine_amount"); mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() != 250 {
		t.Fatalf("expected fine sum 250")
	}
}

func TestNilCirculationMetricsIsNoop(t *testing.T) {
	var metrics *CirculationMetrics
	metrics.IncTransition("approved")
	metrics.IncRejection("approve", "conflict")
	metrics.IncHold()
	metrics.ObserveFine(decimal.Zero)

	NewCirculationMetrics(nil).IncHold()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
