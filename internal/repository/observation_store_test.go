package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/pkg/sqldb"
	"CapFlow/pkg/util"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := util.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func newSQLiteStore(t *testing.T) *SQLObservationStore {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLObservationStore(db, sqldb.DriverSQLite, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	aum := 4e12

	err := s.StoreBatch(ctx, []models.FlowObservation{
		{Date: mustDay(t, "2024-01-03"), Bucket: "Gold", NetFlow: 2e6, AUM: &aum, PriceCurrency: "USD"},
		{Date: mustDay(t, "2024-01-02"), Bucket: "VIX", NetFlow: -1e6},
		{Date: mustDay(t, "2024-01-02"), Bucket: "Gold", NetFlow: 1e6},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Query(ctx, time.Time{}, time.Time{}, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	// Ordered by date then bucket.
	if got[0].Bucket != "Gold" || got[1].Bucket != "VIX" || got[2].Bucket != "Gold" {
		t.Fatalf("unexpected order %+v", got)
	}
	if !got[2].Date.Equal(mustDay(t, "2024-01-03")) || got[2].AUM == nil || *got[2].AUM != aum || got[2].PriceCurrency != "USD" {
		t.Fatalf("unexpected row %+v", got[2])
	}
	if got[1].AUM != nil {
		t.Fatalf("missing AUM should stay nil")
	}
}

func TestSQLiteStoreUpsertAndFilters(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	day := mustDay(t, "2024-01-02")
	_ = s.StoreBatch(ctx, []models.FlowObservation{{Date: day, Bucket: "Gold", NetFlow: 1}})
	if err := s.StoreBatch(ctx, []models.FlowObservation{
		{Date: day, Bucket: "Gold", NetFlow: 5},
		{Date: day, Bucket: "Gold", NetFlow: 7},
		{Date: mustDay(t, "2024-01-10"), Bucket: "Silver", NetFlow: 3},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _ := s.Query(ctx, day, day, nil)
	if len(got) != 1 || got[0].NetFlow != 7 {
		t.Fatalf("expected last write to win, got %+v", got)
	}

	got, _ = s.Query(ctx, time.Time{}, time.Time{}, []string{"Silver"})
	if len(got) != 1 || got[0].Bucket != "Silver" {
		t.Fatalf("bucket filter failed: %+v", got)
	}

	got, err := s.Query(ctx, time.Time{}, time.Time{}, []string{})
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("empty bucket list should yield empty result, got %+v %v", got, err)
	}
}

func TestStoreBatchChunks(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	start := mustDay(t, "2020-01-01")
	obs := make([]models.FlowObservation, 0, insertChunk+10)
	for i := 0; i < insertChunk+10; i++ {
		obs = append(obs, models.FlowObservation{Date: start.AddDate(0, 0, i), Bucket: "Gold", NetFlow: float64(i)})
	}
	if err := s.StoreBatch(ctx, obs); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Query(ctx, time.Time{}, time.Time{}, []string{"Gold"})
	if len(got) != len(obs) {
		t.Fatalf("expected %d rows, got %d", len(obs), len(got))
	}
}

func TestPlaceholders(t *testing.T) {
	pg := &SQLObservationStore{dialect: dialects[sqldb.DriverPostgres]}
	if got := pg.placeholders(2, 3); got != "$3, $4, $5" {
		t.Fatalf("postgres placeholders = %q", got)
	}
	ch := &SQLObservationStore{dialect: dialects[sqldb.DriverClickHouse]}
	if got := ch.placeholders(2, 2); got != "?, ?" {
		t.Fatalf("clickhouse placeholders = %q", got)
	}
	if !strings.Contains(dialects[sqldb.DriverClickHouse].schema("t")[0], "ReplacingMergeTree") {
		t.Fatal("clickhouse schema should dedupe on merge")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := NewSQLObservationStore(nil, "oracle", "", nil); err == nil {
		t.Fatal("expected error")
	}
}
