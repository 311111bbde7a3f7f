package narrative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/pkg/logger"
)

func fixedFallback() *Fallback {
	f := NewFallback()
	f.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestFormatUSD(t *testing.T) {
	cases := map[float64]string{
		1_234_000_000:  "$1.2B",
		-2_500_000_000: "$2.5B",
		300_000_000:    "$300M",
		-42_400_000:    "$42M",
		950:            "$950",
		0:              "$0",
	}
	for in, want := range cases {
		if got := FormatUSD(in); got != want {
			t.Fatalf("FormatUSD(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFallbackRotation(t *testing.T) {
	stats := models.SummaryStats{
		TopInflows:      []models.BucketMetrics{{Bucket: "Gold", Flow5d: 1.5e9}},
		TopOutflows:     []models.BucketMetrics{{Bucket: "US Equities", Flow5d: -300e6}},
		TopAccelerators: []models.BucketMetrics{{Bucket: "JPY", Acceleration5d: 80e6}},
		ElevatedBuckets: []models.BucketMetrics{{Bucket: "Gold"}, {Bucket: "VIX"}},
	}
	n := fixedFallback().Build(stats)
	want := "Capital flows showed rotation into Gold ($1.5B) and out of US Equities ($300M). JPY showed accelerating momentum with $80M in additional flows."
	if n.Text != want {
		t.Fatalf("narrative\n got: %s\nwant: %s", n.Text, want)
	}
	if len(n.Highlights) != 3 || n.Highlights[2] != "2 buckets showing elevated activity" {
		t.Fatalf("unexpected highlights %v", n.Highlights)
	}
	if !n.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", n.Timestamp)
	}
}

func TestFallbackQuietMarket(t *testing.T) {
	n := fixedFallback().Build(models.SummaryStats{})
	if n.Text != "Capital flows showed minimal activity across major asset classes." {
		t.Fatalf("unexpected narrative %q", n.Text)
	}
	want := []string{"Limited inflow activity", "Minimal outflow pressure", "Normal flow patterns across assets"}
	for i := range want {
		if n.Highlights[i] != want[i] {
			t.Fatalf("highlight %d = %q", i, n.Highlights[i])
		}
	}
}

func TestHTTPNarrator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/narrative" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"narrative":"Flows rotated into havens.","highlights":["a","b","c","d"]}`))
	}))
	defer srv.Close()

	n, err := NewHTTPNarrator(srv.URL, time.Second, fixedFallback(), logger.Nop()).Narrate(context.Background(), models.SummaryStats{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Text != "Flows rotated into havens." || len(n.Highlights) != 3 {
		t.Fatalf("unexpected narrative %+v", n)
	}
}

func TestHTTPNarratorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := NewHTTPNarrator(srv.URL, time.Second, fixedFallback(), logger.Nop()).Narrate(context.Background(), models.SummaryStats{})
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !strings.HasPrefix(n.Text, "Capital flows showed") {
		t.Fatalf("expected template narrative, got %q", n.Text)
	}
}
