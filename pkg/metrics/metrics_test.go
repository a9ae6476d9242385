package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCycleMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCycleMetrics(reg)
	job := "advance-negotiation"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "freightbid_job_success", map[string]string{"job": job}); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "freightbid_job_failure", map[string]string{"job": job}); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "freightbid_cycle_skipped_total", nil); err != nil {
		t.Fatalf("fetch skipped: %v", err)
	} else if got != 1 {
		t.Fatalf("expected skipped=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "freightbid_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNegotiationMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewNegotiationMetrics(reg)
	metrics.IncDispatch("initial", "email", DispatchOutcomeError)
	metrics.IncDispatch("initial", "email", DispatchOutcomeError)
	metrics.IncReply("final", ReplyOutcomeDuplicate)
	metrics.IncCompleted("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	got, err := fetchCounterValue(mfs, "freightbid_dispatch_requests_total", map[string]string{
		"kind": "initial", "channel": "email", "outcome": "error",
	})
	if err != nil {
		t.Fatalf("fetch dispatch: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected dispatch errors=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "freightbid_replies_total", map[string]string{"quote_type": "final", "outcome": "duplicate"}); err != nil || got != 1 {
		t.Fatalf("expected one duplicate final reply, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "freightbid_shipments_completed_total", map[string]string{"outcome": "unknown"}); err != nil || got != 1 {
		t.Fatalf("expected empty outcome normalized to unknown, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var cycle *CycleMetrics
	cycle.IncSuccess("job")
	cycle.IncSkipped()
	var negotiation *NegotiationMetrics
	negotiation.IncDispatch("initial", "api", DispatchOutcomeSent)
	NewNegotiationMetrics(nil).IncCompleted("won")
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
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
