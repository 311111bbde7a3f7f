package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"CapFlow/internal/domain/models"
	drepo "CapFlow/internal/domain/repository"
	dservice "CapFlow/internal/domain/service"
	svcmetrics "CapFlow/internal/service/metrics"
	"CapFlow/pkg/logger"
	"CapFlow/pkg/util"
)

var (
	// ErrNoData is returned before the first successful refresh.
	ErrNoData = errors.New("no flow data loaded")
	// ErrBucketNotFound is returned when a bucket has no observations.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrRefreshInProgress is returned when a refresh is already running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// TriggerAPI marks a refresh requested by a client. It bypasses any cache in
// front of the source.
const TriggerAPI = "api"

// invalidator is implemented by sources that keep a local copy of upstream data.
type invalidator interface {
	Invalidate(ctx context.Context) error
}

// FlowQuery selects the buckets a view is computed over.
// A nil Noise means the configured default threshold.
type FlowQuery struct {
	AssetClass string
	Noise      *float64
}

// dataset is an immutable loaded series; it is replaced, never mutated.
type dataset struct {
	provider  string
	series    []models.FlowObservation
	metrics   []models.BucketMetrics // default view: all buckets, default noise
	buckets   int
	updatedAt time.Time
}

// FlowDashboard owns the current flow series and serves every dashboard view
// from it. Refresh swaps the series; readers always see a complete one.
type FlowDashboard struct {
	src       drepo.FlowSource
	analyzer  dservice.FlowAnalyzer
	narrator  dservice.Narrator
	publisher drepo.SnapshotPublisher
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time

	lookbackDays int
	noise        float64
	tapeSize     int
	assetClass   string
	onTape       func([]models.TapeItem)

	refreshMu sync.Mutex
	mu        sync.RWMutex
	data      *dataset
}

// DashboardOption configures FlowDashboard.
type DashboardOption func(*FlowDashboard)

func WithPublisher(p drepo.SnapshotPublisher) DashboardOption {
	return func(d *FlowDashboard) { d.publisher = p }
}

func WithMetrics(m drepo.Metrics) DashboardOption {
	return func(d *FlowDashboard) { d.metrics = m }
}

func WithLogger(l *logger.Logger) DashboardOption {
	return func(d *FlowDashboard) {
		if l != nil {
			d.log = l
		}
	}
}

// WithLookbackDays sets how many calendar days each refresh fetches.
func WithLookbackDays(n int) DashboardOption {
	return func(d *FlowDashboard) {
		if n > 0 {
			d.lookbackDays = n
		}
	}
}

// WithNoiseThreshold sets the default noise threshold (billions of USD AUM).
func WithNoiseThreshold(thr float64) DashboardOption {
	return func(d *FlowDashboard) {
		if thr >= 0 {
			d.noise = thr
		}
	}
}

func WithTapeSize(n int) DashboardOption {
	return func(d *FlowDashboard) {
		if n > 0 {
			d.tapeSize = n
		}
	}
}

// WithDefaultAssetClass sets the class used when a query names none.
func WithDefaultAssetClass(class string) DashboardOption {
	return func(d *FlowDashboard) { d.assetClass = class }
}

// WithTapeListener is called with the default tape after every refresh.
func WithTapeListener(fn func([]models.TapeItem)) DashboardOption {
	return func(d *FlowDashboard) { d.onTape = fn }
}

func WithClock(now func() time.Time) DashboardOption {
	return func(d *FlowDashboard) { d.now = now }
}

func NewFlowDashboard(src drepo.FlowSource, analyzer dservice.FlowAnalyzer, narrator dservice.Narrator, opts ...DashboardOption) *FlowDashboard {
	d := &FlowDashboard{
		src:          src,
		analyzer:     analyzer,
		narrator:     narrator,
		log:          logger.Nop(),
		now:          time.Now,
		lookbackDays: 90,
		tapeSize:     20,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetTapeListener replaces the tape listener after construction.
func (d *FlowDashboard) SetTapeListener(fn func([]models.TapeItem)) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	d.onTape = fn
}

// Refresh fetches the lookback window from the source and replaces the
// loaded series. On failure the previous series stays in place.
func (d *FlowDashboard) Refresh(ctx context.Context, trigger string) error {
	if !d.refreshMu.TryLock() {
		return ErrRefreshInProgress
	}
	defer d.refreshMu.Unlock()

	if inv, ok := d.src.(invalidator); ok && trigger == TriggerAPI {
		if err := inv.Invalidate(ctx); err != nil {
			d.log.Warn("flow cache invalidate failed", logger.String("provider", d.src.Name()), logger.Error(err))
		}
	}

	start := d.now()
	to := util.Day(start)
	from := to.AddDate(0, 0, -d.lookbackDays)

	series, err := d.src.Fetch(ctx, from, to)
	if err != nil {
		svcmetrics.RefreshTotal.WithLabelValues(trigger, "error").Inc()
		d.recordError("fetch")
		d.log.Error("flow refresh failed",
			logger.String("provider", d.src.Name()),
			logger.String("trigger", trigger),
			logger.Error(err),
		)
		return fmt.Errorf("fetch %s: %w", d.src.Name(), err)
	}

	sorted := make([]models.FlowObservation, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	seen := make(map[string]struct{})
	for _, o := range sorted {
		seen[o.Bucket] = struct{}{}
	}

	computeStart := d.now()
	metrics := d.analyzer.Compute(sorted, models.Filters{NoiseThreshold: d.noise})
	computeTime := d.now().Sub(computeStart)
	for _, m := range metrics {
		if !m.Finite() {
			d.recordError("non_finite")
			d.log.Warn("bucket has non-finite metrics",
				logger.String("bucket", m.Bucket),
				logger.Float64("flow_5d", m.Flow5d),
				logger.Float64("zscore", m.UnusualnessZScore),
			)
		}
	}

	ds := &dataset{
		provider:  d.src.Name(),
		series:    sorted,
		metrics:   metrics,
		buckets:   len(seen),
		updatedAt: d.now(),
	}
	d.mu.Lock()
	d.data = ds
	d.mu.Unlock()

	tape := d.analyzer.Tape(ds.metrics, d.tapeSize)
	snap := &models.Snapshot{
		Provider:     ds.provider,
		ComputedAt:   ds.updatedAt,
		Observations: len(sorted),
		Metrics:      ds.metrics,
		Tape:         tape,
		Summary:      d.analyzer.Summary(ds.metrics),
	}
	if d.publisher != nil {
		if err := d.publisher.PublishSnapshot(ctx, snap); err != nil {
			d.recordError("publish")
			d.log.Warn("snapshot publish failed", logger.Error(err))
		}
	}
	if d.onTape != nil {
		d.onTape(tape)
	}
	if d.metrics != nil {
		d.metrics.RecordObservations(ds.provider, len(sorted))
		d.metrics.ResetBucketFlows()
		for _, m := range ds.metrics {
			d.metrics.RecordBucketFlow(m.Bucket, m.Flow5d, m.UnusualnessZScore)
		}
		d.metrics.RecordSurvivingBuckets(len(ds.metrics))
		d.metrics.RecordLatency("compute", computeTime.Seconds())
		d.metrics.RecordLatency("refresh", d.now().Sub(start).Seconds())
	}
	svcmetrics.RefreshTotal.WithLabelValues(trigger, "ok").Inc()

	d.log.Info("flow refresh complete",
		logger.String("provider", ds.provider),
		logger.String("trigger", trigger),
		logger.Int("observations", len(sorted)),
		logger.Int("buckets", len(ds.metrics)),
		logger.Duration("duration_ms", d.now().Sub(start)),
	)
	return nil
}

func (d *FlowDashboard) current() (*dataset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.data == nil {
		return nil, ErrNoData
	}
	return d.data, nil
}

func (d *FlowDashboard) filters(q FlowQuery) models.Filters {
	class := q.AssetClass
	if class == "" {
		class = d.assetClass
	}
	f := models.Filters{
		Buckets:        models.BucketsForClass(class),
		NoiseThreshold: d.noise,
	}
	if q.Noise != nil {
		f.NoiseThreshold = *q.Noise
	}
	return f
}

func (d *FlowDashboard) compute(q FlowQuery) ([]models.BucketMetrics, error) {
	ds, err := d.current()
	if err != nil {
		return nil, err
	}
	f := d.filters(q)
	if f.Buckets == nil && f.NoiseThreshold == d.noise {
		return ds.metrics, nil
	}
	return d.analyzer.Compute(ds.series, f), nil
}

// Metrics returns per-bucket metrics for the query.
func (d *FlowDashboard) Metrics(_ context.Context, q FlowQuery) ([]models.BucketMetrics, error) {
	return d.compute(q)
}

// Tape returns the top n movers by |flow_1d|; n <= 0 uses the configured size.
func (d *FlowDashboard) Tape(_ context.Context, q FlowQuery, n int) ([]models.TapeItem, error) {
	ms, err := d.compute(q)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = d.tapeSize
	}
	return d.analyzer.Tape(ms, n), nil
}

// Summary returns the summary stats with a narrative.
func (d *FlowDashboard) Summary(ctx context.Context, q FlowQuery) (models.SummaryView, error) {
	ms, err := d.compute(q)
	if err != nil {
		return models.SummaryView{}, err
	}
	stats := d.analyzer.Summary(ms)
	n, err := d.narrator.Narrate(ctx, stats)
	if err != nil {
		return models.SummaryView{}, fmt.Errorf("narrate: %w", err)
	}
	return models.SummaryView{Stats: stats, Narrative: n}, nil
}

// Leaderboards ranks the query's buckets.
func (d *FlowDashboard) Leaderboards(_ context.Context, q FlowQuery, lq models.LeaderboardQuery) (models.Leaderboards, error) {
	ms, err := d.compute(q)
	if err != nil {
		return models.Leaderboards{}, err
	}
	return d.analyzer.Leaderboards(ms, lq), nil
}

// BucketDetail returns the raw series and unfiltered metrics for one bucket.
func (d *FlowDashboard) BucketDetail(_ context.Context, bucket string) (models.BucketDetail, error) {
	ds, err := d.current()
	if err != nil {
		return models.BucketDetail{}, err
	}

	var obs []models.FlowObservation
	for _, o := range ds.series {
		if o.Bucket == bucket {
			obs = append(obs, o)
		}
	}
	if len(obs) == 0 {
		return models.BucketDetail{}, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	detail := models.BucketDetail{
		Bucket:       bucket,
		AssetClass:   models.AssetClassOf(bucket),
		Observations: obs,
	}
	if ms := d.analyzer.Compute(obs, models.Filters{}); len(ms) == 1 {
		detail.Metrics = &ms[0]
	}
	return detail, nil
}

// Status describes the loaded series. It never fails; before the first
// refresh only the provider name is set.
func (d *FlowDashboard) Status(context.Context) models.Status {
	st := models.Status{Provider: d.src.Name()}
	ds, err := d.current()
	if err != nil {
		return st
	}
	st.Observations = len(ds.series)
	st.Buckets = ds.buckets
	updated := ds.updatedAt
	st.UpdatedAt = &updated
	if n := len(ds.series); n > 0 {
		first, last := ds.series[0].Date, ds.series[n-1].Date
		st.FirstDate, st.LastDate = &first, &last
	}
	return st
}

// Health checks the upstream source.
func (d *FlowDashboard) Health(ctx context.Context) error {
	return d.src.Health(ctx)
}

func (d *FlowDashboard) recordError(kind string) {
	if d.metrics != nil {
		d.metrics.RecordError(kind)
	}
}
