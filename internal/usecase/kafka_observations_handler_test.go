package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CapFlow/internal/domain/models"
)

type memStore struct {
	rows []models.FlowObservation
	err  error
}

func (s *memStore) Init(context.Context) error { return nil }
func (s *memStore) StoreBatch(_ context.Context, obs []models.FlowObservation) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, obs...)
	return nil
}
func (s *memStore) Query(context.Context, time.Time, time.Time, []string) ([]models.FlowObservation, error) {
	return s.rows, nil
}
func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func TestKafkaObservationsHandler(t *testing.T) {
	store := &memStore{}
	met := &stubMetrics{}
	h := NewKafkaObservationsHandler("capflow.observations", store, met, nil)
	ctx := context.Background()

	if h.Topic() != "capflow.observations" {
		t.Fatalf("topic = %s", h.Topic())
	}

	err := h.Handle(ctx, []byte(`[
		{"date":"2024-01-02","bucket":"Gold","net_flow_usd":1000000,"aum_usd":4e12},
		{"date":"2024-01-02","bucket":"VIX","net_flow_usd":-5}
	]`))
	if err != nil {
		t.Fatalf("handle array: %v", err)
	}
	if err := h.Handle(ctx, []byte(` {"date":"2024-01-03","bucket":"Gold","net_flow_usd":2} `)); err != nil {
		t.Fatalf("handle object: %v", err)
	}
	if len(store.rows) != 3 || store.rows[0].AUM == nil || store.rows[1].AUM != nil {
		t.Fatalf("stored %+v", store.rows)
	}
	if met.ingested["capflow.observations"] != 3 {
		t.Fatalf("ingested recorded = %v", met.ingested)
	}
	// Ingestion must not overwrite the loaded-series gauge.
	if met.observations != 0 {
		t.Fatalf("loaded observations touched by ingestion: %d", met.observations)
	}
	if err := h.Handle(ctx, []byte(`[]`)); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestKafkaObservationsHandlerRejects(t *testing.T) {
	h := NewKafkaObservationsHandler("t", &memStore{}, nil, nil)
	ctx := context.Background()

	if err := h.Handle(ctx, []byte(`   `)); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if err := h.Handle(ctx, []byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
	if err := h.Handle(ctx, []byte(`[{"bucket":"Gold","net_flow_usd":1}]`)); !errors.Is(err, models.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	h = NewKafkaObservationsHandler("t", &memStore{err: errors.New("db down")}, nil, nil)
	if err := h.Handle(ctx, []byte(`[{"date":"2024-01-02","bucket":"Gold","net_flow_usd":1}]`)); err == nil {
		t.Fatal("expected store error")
	}
}
