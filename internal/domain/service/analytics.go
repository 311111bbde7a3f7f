package service

import (
	"context"

	"CapFlow/internal/domain/models"
)

// FlowAnalyzer derives per-bucket metrics and the views built on them.
type FlowAnalyzer interface {
	Compute(series []models.FlowObservation, f models.Filters) []models.BucketMetrics
	Tape(metrics []models.BucketMetrics, n int) []models.TapeItem
	Summary(metrics []models.BucketMetrics) models.SummaryStats
	Leaderboards(metrics []models.BucketMetrics, q models.LeaderboardQuery) models.Leaderboards
}

// Narrator turns summary stats into prose.
type Narrator interface {
	Narrate(ctx context.Context, stats models.SummaryStats) (models.Narrative, error)
}
