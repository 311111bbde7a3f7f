package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResetBucketFlowsDropsStaleBuckets(t *testing.T) {
	r := New()
	r.ResetBucketFlows()
	r.RecordBucketFlow("Gold", 1e8, 2.5)
	r.RecordBucketFlow("Silver", -3e7, -1)
	if n := testutil.CollectAndCount(r.bucketFlow); n != 2 {
		t.Fatalf("bucket flow series = %d, want 2", n)
	}

	r.ResetBucketFlows()
	r.RecordBucketFlow("Gold", 2e8, 3)
	if n := testutil.CollectAndCount(r.bucketFlow); n != 1 {
		t.Fatalf("bucket flow series after reset = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(r.bucketZ); n != 1 {
		t.Fatalf("bucket z series after reset = %d, want 1", n)
	}
	if v := testutil.ToFloat64(r.bucketFlow.WithLabelValues("Gold")); v != 2e8 {
		t.Fatalf("gold flow = %v", v)
	}
}

func TestIngestedIsSeparateFromLoaded(t *testing.T) {
	r := New()
	r.RecordObservations("sqlite", 120)
	before := testutil.ToFloat64(r.ingested.WithLabelValues("obs-test"))
	r.RecordIngested("obs-test", 3)
	r.RecordIngested("obs-test", 2)

	if v := testutil.ToFloat64(r.ingested.WithLabelValues("obs-test")) - before; v != 5 {
		t.Fatalf("ingested delta = %v, want 5", v)
	}
	if v := testutil.ToFloat64(r.observations.WithLabelValues("sqlite")); v != 120 {
		t.Fatalf("loaded observations = %v, want 120", v)
	}
}

func TestRecordSurvivingBuckets(t *testing.T) {
	r := New()
	r.RecordSurvivingBuckets(7)
	if v := testutil.ToFloat64(r.surviving); v != 7 {
		t.Fatalf("surviving = %v", v)
	}
	r.RecordLatency("compute", 0.01)
	if n := testutil.CollectAndCount(r.latency); n < 1 {
		t.Fatalf("expected latency series, got %d", n)
	}
}
