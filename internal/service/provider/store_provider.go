package provider

import (
	"context"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/domain/repository"
)

// StoreProvider serves observations previously ingested into an ObservationStore.
type StoreProvider struct {
	name  string
	store repository.ObservationStore
}

func NewStoreProvider(name string, store repository.ObservationStore) *StoreProvider {
	return &StoreProvider{name: name, store: store}
}

func (p *StoreProvider) Name() string { return p.name }

func (p *StoreProvider) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	return p.store.Query(ctx, from, to, nil)
}

func (p *StoreProvider) Health(ctx context.Context) error {
	return p.store.Health(ctx)
}
