package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/domain/repository"
	pkgkafka "CapFlow/pkg/kafka"
	"CapFlow/pkg/util"
)

// Producer is the subset of pkg/kafka.Producer the publisher needs.
type Producer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSnapshotPublisher writes one message per bucket, keyed by bucket,
// followed by a summary message keyed "_summary".
type KafkaSnapshotPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaSnapshotPublisher(producer Producer, topic string) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

var _ repository.SnapshotPublisher = (*KafkaSnapshotPublisher)(nil)

type bucketEvent struct {
	Provider   string               `json:"provider"`
	ComputedAt string               `json:"computed_at"`
	AssetClass string               `json:"asset_class"`
	Metrics    models.BucketMetrics `json:"metrics"`
}

type summaryEvent struct {
	Provider     string              `json:"provider"`
	ComputedAt   string              `json:"computed_at"`
	Observations int                 `json:"observations"`
	Buckets      int                 `json:"buckets"`
	Tape         []models.TapeItem   `json:"tape"`
	Summary      models.SummaryStats `json:"summary"`
}

func (p *KafkaSnapshotPublisher) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return nil
	}
	at := snap.ComputedAt.UTC().Format(util.TimestampLayout)
	headers := map[string]string{"provider": snap.Provider}

	msgs := make([]pkgkafka.Message, 0, len(snap.Metrics)+1)
	for _, m := range snap.Metrics {
		v, err := json.Marshal(bucketEvent{
			Provider:   snap.Provider,
			ComputedAt: at,
			AssetClass: models.AssetClassOf(m.Bucket),
			Metrics:    m,
		})
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.Bucket, err)
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(m.Bucket), Value: v, Headers: headers})
	}

	msgs = append(msgs, pkgkafka.Message{
		Key: []byte("_summary"),
		Value: summaryEvent{
			Provider:     snap.Provider,
			ComputedAt:   at,
			Observations: snap.Observations,
			Buckets:      len(snap.Metrics),
			Tape:         snap.Tape,
			Summary:      snap.Summary,
		},
		Headers: headers,
	})

	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
