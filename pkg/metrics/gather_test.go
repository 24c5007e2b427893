package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRegistryExportsStorefrontFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncCheckout("rejected")
	m.IncPersistFailure("restore")
	m.ObserveUpstream("orders", nil, 300*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := counterValue(mfs, "checkout_attempts_total", "outcome", "rejected"); err != nil {
		t.Fatalf("checkout counter: %v", err)
	} else if got != 1 {
		t.Fatalf("expected rejected=1, got %f", got)
	}
	if got, err := counterValue(mfs, "cart_persist_failures_total", "op", "restore"); err != nil {
		t.Fatalf("persist counter: %v", err)
	} else if got != 1 {
		t.Fatalf("expected restore=1, got %f", got)
	}
	if got, err := histogramSum(mfs, "store_api_request_duration_seconds", "endpoint", "orders"); err != nil {
		t.Fatalf("upstream histogram: %v", err)
	} else if got < 0.3 {
		t.Fatalf("expected duration sum >= 0.3, got %f", got)
	}
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func histogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findSeries(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric, nil
				}
			}
		}
		return nil, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}
