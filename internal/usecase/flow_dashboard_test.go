package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/services/analytics"
	"CapFlow/internal/services/narrative"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	mu       sync.Mutex
	obs      []models.FlowObservation
	err      error
	from, to time.Time
}

func (s *stubSource) Name() string                 { return "stub" }
func (s *stubSource) Health(context.Context) error { return s.err }
func (s *stubSource) Fetch(_ context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from, s.to = from, to
	return s.obs, s.err
}

type stubPublisher struct {
	snaps []*models.Snapshot
	err   error
}

func (p *stubPublisher) PublishSnapshot(_ context.Context, s *models.Snapshot) error {
	p.snaps = append(p.snaps, s)
	return p.err
}
func (p *stubPublisher) Close() error { return nil }

type stubMetrics struct {
	observations int
	ingested     map[string]int
	errors       []string
	buckets      map[string]float64
	resets       int
	surviving    int
	ops          []string
}

func (m *stubMetrics) RecordObservations(_ string, n int) { m.observations = n }
func (m *stubMetrics) RecordIngested(topic string, n int) {
	if m.ingested == nil {
		m.ingested = map[string]int{}
	}
	m.ingested[topic] += n
}
func (m *stubMetrics) RecordError(kind string) { m.errors = append(m.errors, kind) }
func (m *stubMetrics) ResetBucketFlows() {
	m.resets++
	m.buckets = map[string]float64{}
}
func (m *stubMetrics) RecordBucketFlow(b string, f5, _ float64) {
	if m.buckets == nil {
		m.buckets = map[string]float64{}
	}
	m.buckets[b] = f5
}
func (m *stubMetrics) RecordSurvivingBuckets(n int)       { m.surviving = n }
func (m *stubMetrics) RecordLatency(op string, _ float64) { m.ops = append(m.ops, op) }

func ptr(v float64) *float64 { return &v }

// seriesFor builds n consecutive days of the given flow ending 2024-02-29.
func seriesFor(bucket string, flow float64, n int, aum *float64) []models.FlowObservation {
	end := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	out := make([]models.FlowObservation, n)
	for i := range out {
		out[i] = models.FlowObservation{Date: end.AddDate(0, 0, i-n+1), Bucket: bucket, NetFlow: flow, AUM: aum}
	}
	return out
}

func fixture() []models.FlowObservation {
	var obs []models.FlowObservation
	obs = append(obs, seriesFor("Gold", 1e8, 25, ptr(4000e9))...)
	obs = append(obs, seriesFor("Technology", -2e8, 25, ptr(8000e9))...)
	obs = append(obs, seriesFor("VIX", 5e6, 25, ptr(0.5e9))...)
	return obs
}

func newDashboard(src *stubSource, opts ...DashboardOption) *FlowDashboard {
	opts = append([]DashboardOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewFlowDashboard(src, analytics.NewEngine(), narrative.NewFallback(), opts...)
}

func TestDashboardBeforeRefresh(t *testing.T) {
	d := newDashboard(&stubSource{})
	ctx := context.Background()

	if _, err := d.Metrics(ctx, FlowQuery{}); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := d.BucketDetail(ctx, "Gold"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	st := d.Status(ctx)
	if st.Provider != "stub" || st.UpdatedAt != nil {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestDashboardRefreshAndViews(t *testing.T) {
	src := &stubSource{obs: fixture()}
	pub := &stubPublisher{}
	met := &stubMetrics{}
	var tape []models.TapeItem
	d := newDashboard(src,
		WithPublisher(pub),
		WithMetrics(met),
		WithLookbackDays(30),
		WithTapeListener(func(items []models.TapeItem) { tape = items }),
	)
	ctx := context.Background()

	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !src.to.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) || !src.from.Equal(src.to.AddDate(0, 0, -30)) {
		t.Fatalf("unexpected fetch window %v..%v", src.from, src.to)
	}

	ms, err := d.Metrics(ctx, FlowQuery{})
	if err != nil || len(ms) != 3 {
		t.Fatalf("metrics: %v %d", err, len(ms))
	}
	if len(pub.snaps) != 1 || pub.snaps[0].Observations != 75 || len(pub.snaps[0].Metrics) != 3 {
		t.Fatalf("unexpected published snapshot %+v", pub.snaps)
	}
	if len(tape) != 3 || tape[0].Bucket != "Technology" {
		t.Fatalf("tape listener got %+v", tape)
	}
	if met.observations != 75 || met.buckets["Gold"] != 5e8 {
		t.Fatalf("metrics not recorded: %+v", met)
	}
	if met.resets != 1 || met.surviving != 3 {
		t.Fatalf("bucket gauges: resets=%d surviving=%d", met.resets, met.surviving)
	}
	if len(met.ops) != 2 || met.ops[0] != "compute" || met.ops[1] != "refresh" {
		t.Fatalf("latency ops = %v", met.ops)
	}

	// Asset class filter resolves through the taxonomy.
	ms, _ = d.Metrics(ctx, FlowQuery{AssetClass: models.AssetClassCommodities})
	if len(ms) != 1 || ms[0].Bucket != "Gold" {
		t.Fatalf("commodities filter: %+v", ms)
	}

	// VIX has 0.5B AUM and drops out at a 1B threshold.
	ms, _ = d.Metrics(ctx, FlowQuery{Noise: ptr(1)})
	if len(ms) != 2 {
		t.Fatalf("noise filter kept %d buckets", len(ms))
	}

	items, _ := d.Tape(ctx, FlowQuery{}, 1)
	if len(items) != 1 || items[0].Bucket != "Technology" {
		t.Fatalf("tape: %+v", items)
	}

	sv, err := d.Summary(ctx, FlowQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if sv.Stats.TopInflows[0].Bucket != "Gold" || sv.Narrative.Text == "" || len(sv.Narrative.Highlights) != 3 {
		t.Fatalf("summary: %+v", sv)
	}

	lb, _ := d.Leaderboards(ctx, FlowQuery{}, models.LeaderboardQuery{Window: "20d", ShowVolRisk: false, MaxRows: 10})
	if lb.TotalInflows != 1 || lb.TotalOutflows != 1 || lb.Inflows[0].Bucket != "Gold" {
		t.Fatalf("leaderboards: %+v", lb)
	}

	st := d.Status(ctx)
	if st.Observations != 75 || st.Buckets != 3 || st.UpdatedAt == nil || st.LastDate == nil ||
		!st.LastDate.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("status: %+v", st)
	}
}

func TestDashboardDefaultAssetClass(t *testing.T) {
	d := newDashboard(&stubSource{obs: fixture()}, WithDefaultAssetClass(models.AssetClassCommodities))
	ctx := context.Background()
	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	ms, err := d.Metrics(ctx, FlowQuery{})
	if err != nil || len(ms) != 1 || ms[0].Bucket != "Gold" {
		t.Fatalf("default class view: %+v %v", ms, err)
	}
	ms, _ = d.Metrics(ctx, FlowQuery{AssetClass: models.AssetClassAll})
	if len(ms) != 3 {
		t.Fatalf("explicit All kept %d buckets", len(ms))
	}
}

func TestDashboardDropsStaleBucketGauges(t *testing.T) {
	src := &stubSource{obs: fixture()}
	met := &stubMetrics{}
	d := newDashboard(src, WithMetrics(met))
	ctx := context.Background()
	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	src.obs = seriesFor("Gold", 1e8, 25, ptr(4000e9))
	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatal(err)
	}
	if _, ok := met.buckets["VIX"]; ok || len(met.buckets) != 1 || met.surviving != 1 {
		t.Fatalf("stale gauges kept: %+v surviving=%d", met.buckets, met.surviving)
	}
}

func TestDashboardNonFiniteBucket(t *testing.T) {
	obs := append(fixture(), seriesFor("Silver", math.MaxFloat64, 3, nil)...)
	met := &stubMetrics{}
	pub := &stubPublisher{}
	d := newDashboard(&stubSource{obs: obs}, WithMetrics(met), WithPublisher(pub))
	ctx := context.Background()

	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(met.errors) != 1 || met.errors[0] != "non_finite" {
		t.Fatalf("errors recorded: %v", met.errors)
	}
	ms, err := d.Metrics(ctx, FlowQuery{})
	if err != nil || len(ms) != 4 {
		t.Fatalf("metrics: %d %v", len(ms), err)
	}
	if _, err := json.Marshal(ms); err != nil {
		t.Fatalf("metrics with an overflowed bucket must encode: %v", err)
	}
	sv, err := d.Summary(ctx, FlowQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := json.Marshal(sv); err != nil {
		t.Fatalf("summary must encode: %v", err)
	}
	if len(pub.snaps) != 1 {
		t.Fatalf("snapshot not published")
	}
}

func TestAPIRefreshInvalidatesSource(t *testing.T) {
	src := &invalidatingSource{stubSource: stubSource{obs: fixture()}}
	d := NewFlowDashboard(src, analytics.NewEngine(), narrative.NewFallback(),
		WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	_ = d.Refresh(ctx, "interval")
	if src.invalidated != 0 {
		t.Fatalf("scheduled refresh invalidated the source")
	}
	_ = d.Refresh(ctx, TriggerAPI)
	if src.invalidated != 1 {
		t.Fatalf("api refresh invalidations = %d", src.invalidated)
	}
}

type invalidatingSource struct {
	stubSource
	invalidated int
}

func (s *invalidatingSource) Invalidate(context.Context) error {
	s.invalidated++
	return nil
}

func TestDashboardBucketDetail(t *testing.T) {
	d := newDashboard(&stubSource{obs: fixture()}, WithNoiseThreshold(1))
	ctx := context.Background()
	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatal(err)
	}

	// Detail ignores the noise filter.
	det, err := d.BucketDetail(ctx, "VIX")
	if err != nil {
		t.Fatal(err)
	}
	if det.AssetClass != models.AssetClassVolRisk || len(det.Observations) != 25 || det.Metrics == nil || det.Metrics.Flow5d != 25e6 {
		t.Fatalf("detail: %+v", det)
	}

	if _, err := d.BucketDetail(ctx, "Nope"); !errors.Is(err, ErrBucketNotFound) {
		t.Fatalf("expected ErrBucketNotFound, got %v", err)
	}
}

func TestDashboardRefreshFailureKeepsPreviousSeries(t *testing.T) {
	src := &stubSource{obs: fixture()}
	met := &stubMetrics{}
	d := newDashboard(src, WithMetrics(met))
	ctx := context.Background()
	_ = d.Refresh(ctx, "test")

	src.err = errors.New("upstream down")
	if err := d.Refresh(ctx, "test"); err == nil {
		t.Fatal("expected refresh error")
	}
	ms, err := d.Metrics(ctx, FlowQuery{})
	if err != nil || len(ms) != 3 {
		t.Fatalf("previous series should still serve: %v %d", err, len(ms))
	}
	if len(met.errors) != 1 || met.errors[0] != "fetch" {
		t.Fatalf("errors recorded: %v", met.errors)
	}
}

func TestDashboardPublishFailureIsNotFatal(t *testing.T) {
	d := newDashboard(&stubSource{obs: fixture()}, WithPublisher(&stubPublisher{err: errors.New("kafka down")}))
	if err := d.Refresh(context.Background(), "test"); err != nil {
		t.Fatalf("publish failure should not fail refresh: %v", err)
	}
}

func TestDashboardEmptySeries(t *testing.T) {
	d := newDashboard(&stubSource{obs: []models.FlowObservation{}})
	ctx := context.Background()
	if err := d.Refresh(ctx, "test"); err != nil {
		t.Fatal(err)
	}
	ms, err := d.Metrics(ctx, FlowQuery{})
	if err != nil || len(ms) != 0 {
		t.Fatalf("expected empty metrics, got %v %v", ms, err)
	}
	sv, err := d.Summary(ctx, FlowQuery{})
	if err != nil || sv.Stats.TopInflows == nil {
		t.Fatalf("summary on empty series: %+v %v", sv, err)
	}
}

type blockingSource struct {
	stubSource
	release chan struct{}
	entered chan struct{}
}

func (b *blockingSource) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	close(b.entered)
	<-b.release
	return b.stubSource.Fetch(ctx, from, to)
}

func TestDashboardRejectsConcurrentRefresh(t *testing.T) {
	src := &blockingSource{release: make(chan struct{}), entered: make(chan struct{})}
	d := NewFlowDashboard(src, analytics.NewEngine(), narrative.NewFallback())
	ctx := context.Background()

	done := make(chan error)
	go func() { done <- d.Refresh(ctx, "a") }()
	<-src.entered

	if err := d.Refresh(ctx, "b"); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("expected ErrRefreshInProgress, got %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestRefresherStopsOnCancel(t *testing.T) {
	src := &stubSource{obs: fixture()}
	d := newDashboard(src)
	r := NewRefresher(d, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	deadline := time.After(2 * time.Second)
	for d.Status(ctx).UpdatedAt == nil {
		select {
		case <-deadline:
			t.Fatal("startup refresh did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
}
