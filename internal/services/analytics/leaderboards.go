package analytics

import (
	"sort"
	"strings"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/domain/repository"
)

// Leaderboards ranks metrics by the selected window flow and by acceleration.
// Totals report how many buckets qualified before truncation to MaxRows.
func (e *Engine) Leaderboards(metrics []models.BucketMetrics, q models.LeaderboardQuery) models.Leaderboards {
	window := repository.NormalizeWindow(q.Window)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	var inflows, outflows, accel, decel []models.BucketMetrics
	for _, m := range metrics {
		if search != "" && !strings.Contains(strings.ToLower(m.Bucket), search) {
			continue
		}
		if !q.ShowVolRisk && models.AssetClassOf(m.Bucket) == models.AssetClassVolRisk {
			continue
		}
		v := windowFlow(m, window)
		if v > 0 {
			inflows = append(inflows, m)
		} else if v < 0 {
			outflows = append(outflows, m)
		}
		if m.Acceleration5d > 0 {
			accel = append(accel, m)
		} else if m.Acceleration5d < 0 {
			decel = append(decel, m)
		}
	}

	sort.SliceStable(inflows, func(i, j int) bool { return windowFlow(inflows[i], window) > windowFlow(inflows[j], window) })
	sort.SliceStable(outflows, func(i, j int) bool { return windowFlow(outflows[i], window) < windowFlow(outflows[j], window) })
	sort.SliceStable(accel, func(i, j int) bool { return accel[i].Acceleration5d > accel[j].Acceleration5d })
	sort.SliceStable(decel, func(i, j int) bool { return decel[i].Acceleration5d < decel[j].Acceleration5d })

	rows := q.MaxRows
	if rows <= 0 {
		rows = len(metrics)
	}
	return models.Leaderboards{
		Window:            string(window),
		Inflows:           head(inflows, rows),
		Outflows:          head(outflows, rows),
		Accelerators:      head(accel, rows),
		Decelerators:      head(decel, rows),
		TotalInflows:      len(inflows),
		TotalOutflows:     len(outflows),
		TotalAccelerators: len(accel),
		TotalDecelerators: len(decel),
	}
}

func windowFlow(m models.BucketMetrics, w repository.Window) float64 {
	switch w {
	case repository.Window1d:
		return m.Flow1d
	case repository.Window20d:
		return m.Flow20d
	default:
		return m.Flow5d
	}
}
