package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestBucketMetricsNonFiniteEncodesNull(t *testing.T) {
	aum := math.Inf(1)
	ms := []BucketMetrics{
		{Bucket: "Gold", Flow1d: 1, Flow5d: 2, TrendSeries: []float64{1, 2}},
		{Bucket: "Broken", Flow1d: 1, Flow5d: math.Inf(1), UnusualnessZScore: math.NaN(),
			TrendSeries: []float64{1, math.Inf(-1)}, AUM: &aum},
	}
	if ms[1].Finite() || !ms[0].Finite() {
		t.Fatalf("finite: gold=%v broken=%v", ms[0].Finite(), ms[1].Finite())
	}

	b, err := json.Marshal(ms)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[0]["flow_5d"] != 2.0 {
		t.Fatalf("healthy bucket changed: %v", out[0])
	}
	broken := out[1]
	if broken["bucket"] != "Broken" || broken["flow_1d"] != 1.0 {
		t.Fatalf("broken bucket lost finite fields: %v", broken)
	}
	if v, ok := broken["flow_5d"]; !ok || v != nil {
		t.Fatalf("flow_5d = %v, want null", v)
	}
	if broken["unusualness_zscore"] != nil {
		t.Fatalf("zscore = %v, want null", broken["unusualness_zscore"])
	}
	if _, ok := broken["aum_usd"]; ok {
		t.Fatalf("non-finite aum should be omitted: %v", broken["aum_usd"])
	}
	trend := broken["trend_data"].([]any)
	if len(trend) != 2 || trend[0] != 1.0 || trend[1] != nil {
		t.Fatalf("trend = %v", trend)
	}
	if strings.Count(string(b), `"bucket"`) != 2 {
		t.Fatalf("duplicate keys in %s", b)
	}
}

func TestTapeItemNonFiniteEncodesNull(t *testing.T) {
	b, err := json.Marshal(TapeItem{Bucket: "Gold", Flow1d: math.NaN(), PercentChange: 3, Badge: BadgeNormal})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"flow_1d":null`) || !strings.Contains(string(b), `"percent_change":3`) {
		t.Fatalf("encoded %s", b)
	}
}
