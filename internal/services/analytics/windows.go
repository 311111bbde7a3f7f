package analytics

import "CapFlow/internal/domain/models"

const (
	accelWindow     = 5
	minAccelHistory = 2 * accelWindow
)

func netFlows(obs []models.FlowObservation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.NetFlow
	}
	return out
}

// trailingSum sums the last min(k, len(flows)) values.
func trailingSum(flows []float64, k int) float64 {
	start := len(flows) - k
	if start < 0 {
		start = 0
	}
	var s float64
	for _, v := range flows[start:] {
		s += v
	}
	return s
}

// acceleration compares the two most recent non-overlapping 5-observation
// windows. Shorter histories yield 0.
func acceleration(flows []float64) float64 {
	n := len(flows)
	if n < minAccelHistory {
		return 0
	}
	return trailingSum(flows, accelWindow) - trailingSum(flows[:n-accelWindow], accelWindow)
}

// trend returns a copy of the last k raw flows, most recent last.
func trend(flows []float64, k int) []float64 {
	start := len(flows) - k
	if start < 0 {
		start = 0
	}
	out := make([]float64, len(flows)-start)
	copy(out, flows[start:])
	return out
}
