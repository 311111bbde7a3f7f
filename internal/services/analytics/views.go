package analytics

import (
	"math"
	"sort"

	"CapFlow/internal/domain/models"
)

// Tape returns up to n buckets ranked by |Flow1d| descending. Buckets with no
// 1d flow are skipped. n <= 0 selects the engine's default tape size.
//
// PercentChange compares Flow1d with the average of the prior four days,
// approximated as (Flow5d - Flow1d) / 4 rather than recomputed from raw
// observations. It is 0 when Flow5d == Flow1d.
func (e *Engine) Tape(metrics []models.BucketMetrics, n int) []models.TapeItem {
	if n <= 0 {
		n = e.tapeSize
	}
	ranked := make([]models.BucketMetrics, 0, len(metrics))
	for _, m := range metrics {
		if math.Abs(m.Flow1d) > 0 {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Flow1d) > math.Abs(ranked[j].Flow1d)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	out := make([]models.TapeItem, 0, len(ranked))
	for _, m := range ranked {
		out = append(out, models.TapeItem{
			Bucket:        m.Bucket,
			Flow1d:        m.Flow1d,
			PercentChange: tapePercentChange(m.Flow1d, m.Flow5d),
			Badge:         m.UnusualnessBadge,
		})
	}
	return out
}

func tapePercentChange(flow1d, flow5d float64) float64 {
	if flow5d == flow1d {
		return 0
	}
	prior := (flow5d - flow1d) / 4
	return (flow1d - prior) / math.Abs(prior) * 100
}

// Summary partitions metrics into the top inflow, outflow and accelerator
// lists plus every Elevated or Extreme bucket. Totals span all buckets, not
// just the truncated lists. Buckets with a non-finite flow are left out of
// the rankings and totals.
func (e *Engine) Summary(metrics []models.BucketMetrics) models.SummaryStats {
	var inflows, outflows, accelerators, elevated []models.BucketMetrics
	for _, m := range metrics {
		if finite(m.Flow5d) {
			if m.Flow5d > 0 {
				inflows = append(inflows, m)
			} else if m.Flow5d < 0 {
				outflows = append(outflows, m)
			}
		}
		if m.Acceleration5d > 0 && finite(m.Acceleration5d) {
			accelerators = append(accelerators, m)
		}
		if m.UnusualnessBadge == models.BadgeElevated || m.UnusualnessBadge == models.BadgeExtreme {
			elevated = append(elevated, m)
		}
	}
	sort.SliceStable(inflows, func(i, j int) bool { return inflows[i].Flow5d > inflows[j].Flow5d })
	sort.SliceStable(outflows, func(i, j int) bool { return outflows[i].Flow5d < outflows[j].Flow5d })
	sort.SliceStable(accelerators, func(i, j int) bool {
		return accelerators[i].Acceleration5d > accelerators[j].Acceleration5d
	})

	stats := models.SummaryStats{
		TopInflows:      head(inflows, e.summarySize),
		TopOutflows:     head(outflows, e.summarySize),
		TopAccelerators: head(accelerators, e.summarySize),
		ElevatedBuckets: nonNil(elevated),
	}
	for _, m := range inflows {
		stats.TotalInflows += m.Flow5d
	}
	var out float64
	for _, m := range outflows {
		out += m.Flow5d
	}
	stats.TotalOutflows = math.Abs(out)
	return stats
}

func head(ms []models.BucketMetrics, n int) []models.BucketMetrics {
	if len(ms) > n {
		ms = ms[:n]
	}
	return nonNil(ms)
}

func nonNil(ms []models.BucketMetrics) []models.BucketMetrics {
	if ms == nil {
		return []models.BucketMetrics{}
	}
	return ms
}
