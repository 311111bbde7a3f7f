package analytics

import (
	"math"
	"sort"

	"CapFlow/internal/domain/models"
)

const (
	defaultTapeSize    = 20
	defaultSummarySize = 3
	trendLength        = 20

	aumNoiseUnit  = 1e9
	flowNoiseUnit = 1e6
)

// Engine turns raw flow observations into per-bucket metrics and the views
// derived from them. It holds no series of its own: every call is a pure
// function of its arguments, so one Engine is safe for concurrent use.
type Engine struct {
	tapeSize    int
	summarySize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTapeSize sets the tape length used when Tape is called with n <= 0.
func WithTapeSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.tapeSize = n
		}
	}
}

// WithSummarySize sets how many buckets each top list of Summary keeps.
func WithSummarySize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.summarySize = n
		}
	}
}

// NewEngine creates a flow analytics engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{tapeSize: defaultTapeSize, summarySize: defaultSummarySize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute derives metrics for every bucket that survives the filters.
// Buckets are returned in order of first appearance in the date-sorted series.
// The input slice is not modified.
func (e *Engine) Compute(series []models.FlowObservation, f models.Filters) []models.BucketMetrics {
	if len(series) == 0 {
		return []models.BucketMetrics{}
	}

	sorted := make([]models.FlowObservation, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	order, groups := groupByBucket(sorted)

	var allowed map[string]struct{}
	if f.Buckets != nil {
		allowed = make(map[string]struct{}, len(f.Buckets))
		for _, b := range f.Buckets {
			allowed[b] = struct{}{}
		}
	}

	out := make([]models.BucketMetrics, 0, len(order))
	for _, bucket := range order {
		if allowed != nil {
			if _, ok := allowed[bucket]; !ok {
				continue
			}
		}
		obs := groups[bucket]
		if isNoise(obs, f.NoiseThreshold) {
			continue
		}
		out = append(out, bucketMetrics(bucket, obs))
	}

	applyShareOfFlow(out)
	return out
}

func groupByBucket(sorted []models.FlowObservation) ([]string, map[string][]models.FlowObservation) {
	order := make([]string, 0)
	groups := make(map[string][]models.FlowObservation)
	for _, o := range sorted {
		if _, seen := groups[o.Bucket]; !seen {
			order = append(order, o.Bucket)
		}
		groups[o.Bucket] = append(groups[o.Bucket], o)
	}
	return order, groups
}

// isNoise reports whether a bucket falls under the noise threshold on either
// mean reported AUM or mean absolute daily flow. A threshold of 0 disables it.
func isNoise(obs []models.FlowObservation, threshold float64) bool {
	if threshold <= 0 || len(obs) == 0 {
		return false
	}
	var aumSum, absFlowSum float64
	aumCount := 0
	for _, o := range obs {
		if o.AUM != nil {
			aumSum += *o.AUM
			aumCount++
		}
		absFlowSum += math.Abs(o.NetFlow)
	}
	meanAUM := aumSum / float64(max(1, aumCount))
	meanAbsFlow := absFlowSum / float64(len(obs))
	return meanAUM < threshold*aumNoiseUnit || meanAbsFlow < threshold*flowNoiseUnit
}

func bucketMetrics(bucket string, obs []models.FlowObservation) models.BucketMetrics {
	flows := netFlows(obs)
	m := models.BucketMetrics{
		Bucket:         bucket,
		Flow1d:         trailingSum(flows, 1),
		Flow5d:         trailingSum(flows, 5),
		Flow20d:        trailingSum(flows, 20),
		Acceleration5d: acceleration(flows),
		TrendSeries:    trend(flows, trendLength),
	}
	m.UnusualnessZScore = zScore(flows)
	m.UnusualnessBadge = BadgeFor(m.UnusualnessZScore)

	if latest := obs[len(obs)-1].AUM; latest != nil {
		aum := *latest
		m.AUM = &aum
		if aum != 0 {
			p1 := m.Flow1d / aum * 100
			p5 := m.Flow5d / aum * 100
			m.Flow1dPctAUM = &p1
			m.Flow5dPctAUM = &p5
		}
	}
	return m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// applyShareOfFlow fills ShareOfFlow once every bucket's Flow5d is final.
// Non-finite flows are left out of the denominator so a corrupt bucket
// does not poison the others.
func applyShareOfFlow(metrics []models.BucketMetrics) {
	var total float64
	for _, m := range metrics {
		if finite(m.Flow5d) {
			total += math.Abs(m.Flow5d)
		}
	}
	if total == 0 {
		return
	}
	for i := range metrics {
		metrics[i].ShareOfFlow = math.Abs(metrics[i].Flow5d) / total * 100
	}
}
