package usecase

import (
	"context"
	"testing"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/repository"
	"CapFlow/internal/service/provider"
	"CapFlow/internal/services/analytics"
	"CapFlow/internal/services/narrative"
	"CapFlow/pkg/cache"
	"CapFlow/pkg/sqldb"
)

func newSQLiteStore(t *testing.T) *repository.SQLObservationStore {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := repository.NewSQLObservationStore(db, sqldb.DriverSQLite, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func goldFlow1d(t *testing.T, d *FlowDashboard) float64 {
	t.Helper()
	ms, err := d.Metrics(context.Background(), FlowQuery{})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	for _, m := range ms {
		if m.Bucket == "Gold" {
			return m.Flow1d
		}
	}
	t.Fatalf("gold missing from %+v", ms)
	return 0
}

// seedAndIngest stores Gold 1e6 for 2024-02-29, refreshes, then ingests Gold
// 5e6 for 2024-03-01 through the Kafka handler.
func seedAndIngest(t *testing.T, d *FlowDashboard, store *repository.SQLObservationStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.StoreBatch(ctx, []models.FlowObservation{
		{Date: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Bucket: "Gold", NetFlow: 1e6},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := d.Refresh(ctx, "startup"); err != nil {
		t.Fatalf("startup refresh: %v", err)
	}
	if got := goldFlow1d(t, d); got != 1e6 {
		t.Fatalf("startup flow_1d = %v", got)
	}

	h := NewKafkaObservationsHandler("capflow.observations", store, nil, nil)
	if err := h.Handle(ctx, []byte(`[{"date":"2024-03-01","bucket":"Gold","net_flow_usd":5e6}]`)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}

func TestIngestedRowsVisibleOnNextRefresh(t *testing.T) {
	store := newSQLiteStore(t)
	d := NewFlowDashboard(provider.NewStoreProvider("sqlite", store), analytics.NewEngine(), narrative.NewFallback(),
		WithClock(func() time.Time { return testNow }))
	seedAndIngest(t, d, store)

	if err := d.Refresh(context.Background(), "interval"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := goldFlow1d(t, d); got != 5e6 {
		t.Fatalf("flow_1d after ingest = %v, want 5e6", got)
	}
	if st := d.Status(context.Background()); st.Observations != 2 {
		t.Fatalf("status observations = %d", st.Observations)
	}
}

func TestAPIRefreshBypassesSourceCache(t *testing.T) {
	store := newSQLiteStore(t)
	src := provider.NewCached(provider.NewStoreProvider("sqlite", store), cache.NewMemoryCache(), time.Hour, nil)
	d := NewFlowDashboard(src, analytics.NewEngine(), narrative.NewFallback(),
		WithClock(func() time.Time { return testNow }))
	seedAndIngest(t, d, store)

	// A scheduled tick inside the TTL is served from the cache.
	if err := d.Refresh(context.Background(), "interval"); err != nil {
		t.Fatalf("interval refresh: %v", err)
	}
	if got := goldFlow1d(t, d); got != 1e6 {
		t.Fatalf("interval refresh flow_1d = %v, want cached 1e6", got)
	}

	if err := d.Refresh(context.Background(), TriggerAPI); err != nil {
		t.Fatalf("api refresh: %v", err)
	}
	if got := goldFlow1d(t, d); got != 5e6 {
		t.Fatalf("api refresh flow_1d = %v, want 5e6", got)
	}
}
