package analytics

import (
	"math"

	"CapFlow/internal/domain/models"
)

const (
	zWindow     = 5
	minZHistory = 20

	elevatedZ = 1.0
	extremeZ  = 2.0
)

// zScore scores the current 5-observation sum against the population
// distribution of every rolling 5-observation sum in the bucket's history.
func zScore(flows []float64) float64 {
	n := len(flows)
	if n < minZHistory {
		return 0
	}

	sums := make([]float64, 0, n-zWindow+1)
	for end := zWindow; end <= n; end++ {
		sums = append(sums, trailingSum(flows[:end], zWindow))
	}

	var mean float64
	for _, s := range sums {
		mean += s
	}
	mean /= float64(len(sums))

	var variance float64
	for _, s := range sums {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(sums))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (trailingSum(flows, zWindow) - mean) / std
}

// BadgeFor classifies a z-score by magnitude.
func BadgeFor(z float64) models.Badge {
	a := math.Abs(z)
	switch {
	case a > extremeZ:
		return models.BadgeExtreme
	case a > elevatedZ:
		return models.BadgeElevated
	default:
		return models.BadgeNormal
	}
}
