package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CapFlow/internal/domain/models"
	drepo "CapFlow/internal/domain/repository"
	"CapFlow/pkg/logger"
)

// KafkaObservationsHandler ingests observation batches from a topic into the
// observation store. A message is a JSON array of records, or a single record.
type KafkaObservationsHandler struct {
	topic   string
	store   drepo.ObservationStore
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewKafkaObservationsHandler(topic string, store drepo.ObservationStore, metrics drepo.Metrics, log *logger.Logger) *KafkaObservationsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaObservationsHandler{topic: topic, store: store, metrics: metrics, log: log}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// Handle implements kafka.MessageHandler. Invalid payloads are returned as
// errors so the consumer can retry and dead-letter them.
func (h *KafkaObservationsHandler) Handle(ctx context.Context, data []byte) error {
	start := time.Now()
	records, err := decodeRecords(data)
	if err != nil {
		h.recordError("ingest_decode")
		return err
	}
	obs, err := models.ToObservations(records)
	if err != nil {
		h.recordError("ingest_validate")
		return err
	}
	if len(obs) == 0 {
		return nil
	}
	if err := h.store.StoreBatch(ctx, obs); err != nil {
		h.recordError("ingest_store")
		return fmt.Errorf("store observations: %w", err)
	}

	if h.metrics != nil {
		h.metrics.RecordIngested(h.topic, len(obs))
		h.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	}
	h.log.Debug("observations ingested", logger.String("topic", h.topic), logger.Int("rows", len(obs)))
	return nil
}

func decodeRecords(data []byte) ([]models.ObservationRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	if data[0] == '{' {
		var r models.ObservationRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		return []models.ObservationRecord{r}, nil
	}
	var rs []models.ObservationRecord
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return rs, nil
}

func (h *KafkaObservationsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
