package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/pkg/cache"
	"CapFlow/pkg/util"
)

func day(s string) time.Time {
	d, err := util.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestHTTPProviderFetch(t *testing.T) {
	var gotAuth, gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flows" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotStart = r.URL.Query().Get("start_date")
		gotEnd = r.URL.Query().Get("end_date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"date":"2024-01-02","bucket":"Gold","net_flow_usd":1500000,"aum_usd":4000000000000,"price_ccy":"USD"},
			{"date":"2024-01-03","bucket":"VIX","net_flow_usd":-2000000,"aum_usd":0}
		]`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "secret", time.Second)
	obs, err := p.Fetch(context.Background(), day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotStart != "2024-01-01" || gotEnd != "2024-01-31" {
		t.Errorf("range = %s..%s", gotStart, gotEnd)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations", len(obs))
	}
	if obs[0].Bucket != "Gold" || obs[0].NetFlow != 1.5e6 || obs[0].AUM == nil || *obs[0].AUM != 4e12 {
		t.Errorf("unexpected first record %+v", obs[0])
	}
	if !obs[0].Date.Equal(day("2024-01-02")) {
		t.Errorf("date = %v", obs[0].Date)
	}
	if obs[1].AUM != nil {
		t.Errorf("zero AUM should be treated as missing")
	}
}

func TestHTTPProviderRejectsIncompleteRecords(t *testing.T) {
	cases := map[string]string{
		"missing date":   `[{"bucket":"Gold","net_flow_usd":1}]`,
		"missing bucket": `[{"date":"2024-01-02","net_flow_usd":1}]`,
		"missing flow":   `[{"date":"2024-01-02","bucket":"Gold"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewHTTPProvider(srv.URL, "", time.Second).Fetch(context.Background(), time.Time{}, time.Time{})
			if !errors.Is(err, models.ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}

	t.Run("string flow", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"date":"2024-01-02","bucket":"Gold","net_flow_usd":"1"}]`))
		}))
		defer srv.Close()

		if _, err := NewHTTPProvider(srv.URL, "", time.Second).Fetch(context.Background(), time.Time{}, time.Time{}); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

func TestHTTPProviderHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && healthy {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "", time.Second)
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	healthy = false
	if err := p.Health(context.Background()); err == nil {
		t.Fatal("expected health failure")
	}
}

func TestSyntheticProviderDeterministic(t *testing.T) {
	cal := util.WeekdayCalendar()
	buckets := []string{"Gold", "Technology", "VIX", "EM Equities"}
	a := NewSyntheticProvider(42, cal, WithBuckets(buckets))
	b := NewSyntheticProvider(42, cal, WithBuckets(buckets))

	// 2024-01-01 is a Monday; two full weeks.
	from, to := day("2024-01-01"), day("2024-01-14")
	x, err := a.Fetch(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	y, _ := b.Fetch(context.Background(), from, to)

	if len(x) != 10*len(buckets) {
		t.Fatalf("expected %d observations, got %d", 10*len(buckets), len(x))
	}
	for i := range x {
		if x[i].Bucket != y[i].Bucket || x[i].NetFlow != y[i].NetFlow || !x[i].Date.Equal(y[i].Date) {
			t.Fatalf("record %d differs: %+v vs %+v", i, x[i], y[i])
		}
		if wd := x[i].Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend date generated: %v", x[i].Date)
		}
		if x[i].NetFlow != float64(int64(x[i].NetFlow/1e6))*1e6 {
			t.Fatalf("flow not rounded to millions: %v", x[i].NetFlow)
		}
		if x[i].AUM == nil || *x[i].AUM <= 0 || x[i].PriceCurrency != "USD" {
			t.Fatalf("bad record %+v", x[i])
		}
	}

	// A sub-range yields the same values for the overlapping days.
	sub, _ := a.Fetch(context.Background(), day("2024-01-08"), day("2024-01-08"))
	for i, o := range sub {
		want := x[5*len(buckets)+i]
		if o.NetFlow != want.NetFlow || o.Bucket != want.Bucket {
			t.Fatalf("overlap mismatch at %d: %+v vs %+v", i, o, want)
		}
	}
}

func TestSyntheticProviderKnownAUM(t *testing.T) {
	p := NewSyntheticProvider(1, nil, WithBuckets([]string{"US Equities"}))
	obs, _ := p.Fetch(context.Background(), day("2024-01-02"), day("2024-01-02"))
	if len(obs) != 1 || *obs[0].AUM != 25000e9 {
		t.Fatalf("unexpected %+v", obs)
	}
}

type fakeSource struct {
	calls int
	obs   []models.FlowObservation
	err   error
}

func (f *fakeSource) Name() string                 { return "fake" }
func (f *fakeSource) Health(context.Context) error { return nil }
func (f *fakeSource) Fetch(context.Context, time.Time, time.Time) ([]models.FlowObservation, error) {
	f.calls++
	return f.obs, f.err
}

func TestCachedServesFreshEntry(t *testing.T) {
	src := &fakeSource{obs: []models.FlowObservation{
		{Date: day("2024-01-02"), Bucket: "Gold", NetFlow: 1},
		{Date: day("2024-01-05"), Bucket: "Gold", NetFlow: 2},
	}}
	mc := cache.NewMemoryCache()
	defer mc.Close()

	c := NewCached(src, mc, time.Hour, nil)
	ctx := context.Background()
	if _, err := c.Fetch(ctx, day("2024-01-01"), day("2024-01-31")); err != nil {
		t.Fatal(err)
	}
	got, err := c.Fetch(ctx, day("2024-01-03"), day("2024-01-31"))
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", src.calls)
	}
	if len(got) != 1 || got[0].NetFlow != 2 {
		t.Fatalf("range filter failed: %+v", got)
	}

	// A wider range than cached goes upstream.
	_, _ = c.Fetch(ctx, day("2023-12-01"), day("2024-01-31"))
	if src.calls != 2 {
		t.Fatalf("expected refetch for wider range, got %d calls", src.calls)
	}
}

func TestCachedFallsBackOnUpstreamError(t *testing.T) {
	src := &fakeSource{obs: []models.FlowObservation{{Date: day("2024-01-02"), Bucket: "Gold", NetFlow: 1}}}
	mc := cache.NewMemoryCache()
	defer mc.Close()

	c := NewCached(src, mc, time.Hour, nil)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	_, _ = c.Fetch(ctx, day("2024-01-01"), day("2024-01-31"))

	// Entry is now stale and upstream is down.
	now = now.Add(2 * time.Hour)
	src.err = errors.New("boom")
	got, err := c.Fetch(ctx, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if src.calls != 2 || len(got) != 1 {
		t.Fatalf("calls=%d got=%+v", src.calls, got)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(ctx, day("2024-01-01"), day("2024-01-31")); err == nil {
		t.Fatal("expected error without cached series")
	}
}
