package repository

import (
	"context"
	"time"

	"CapFlow/internal/domain/models"
)

// FlowSource yields raw daily flow observations for a date range.
type FlowSource interface {
	Name() string
	Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error)
	Health(ctx context.Context) error
}

// ObservationStore persists flow observations.
type ObservationStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreBatch(ctx context.Context, obs []models.FlowObservation) error
	Query(ctx context.Context, from, to time.Time, buckets []string) ([]models.FlowObservation, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// SnapshotPublisher fans computed snapshots out to downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *models.Snapshot) error
	Close() error
}

type Metrics interface {
	RecordObservations(provider string, n int)
	RecordIngested(topic string, n int)
	RecordError(kind string)
	ResetBucketFlows()
	RecordBucketFlow(bucket string, flow5d, z float64)
	RecordSurvivingBuckets(n int)
	RecordLatency(op string, seconds float64)
}
