package provider

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/pkg/util"
)

// Known AUM levels; other buckets draw a seeded value in [100B, 5100B).
var syntheticAUM = map[string]float64{
	"US Equities":   25000e9,
	"Technology":    8000e9,
	"Gold":          4000e9,
	"Bitcoin (BTC)": 1000e9,
	"VIX":           500e9,
}

// themes are market-wide biases shared by correlated buckets.
type themes struct {
	techRotation    float64
	goldInflows     float64
	emergingMarkets float64
	dollarStrength  float64
	riskOff         float64
}

// SyntheticProvider generates plausible daily flows for every taxonomy bucket.
// Output is a pure function of (seed, day, bucket), so overlapping ranges agree.
type SyntheticProvider struct {
	seed    int64
	cal     *util.TradingCalendar
	buckets []string
	themes  themes
}

// SyntheticOption configures a SyntheticProvider.
type SyntheticOption func(*SyntheticProvider)

// WithBuckets restricts generation to the given buckets.
func WithBuckets(buckets []string) SyntheticOption {
	return func(p *SyntheticProvider) {
		p.buckets = append([]string(nil), buckets...)
	}
}

// NewSyntheticProvider builds a generator. A nil calendar means Mon-Fri.
func NewSyntheticProvider(seed int64, cal *util.TradingCalendar, opts ...SyntheticOption) *SyntheticProvider {
	if cal == nil {
		cal = util.WeekdayCalendar()
	}
	p := &SyntheticProvider{
		seed:    seed,
		cal:     cal,
		buckets: models.KnownBuckets(),
	}
	for _, opt := range opts {
		opt(p)
	}

	r := rand.New(rand.NewSource(seed))
	p.themes = themes{
		techRotation:    r.Float64() - 0.5,
		goldInflows:     r.Float64() - 0.5,
		emergingMarkets: r.Float64() - 0.5,
		dollarStrength:  r.Float64() - 0.5,
		riskOff:         r.Float64() - 0.5,
	}
	return p
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

func (p *SyntheticProvider) Health(context.Context) error { return nil }

// Fetch implements repository.FlowSource.
func (p *SyntheticProvider) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	days := p.cal.TradingDays(from, to)
	out := make([]models.FlowObservation, 0, len(days)*len(p.buckets))
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, p.day(d)...)
	}
	return out, nil
}

func (p *SyntheticProvider) day(d time.Time) []models.FlowObservation {
	r := rand.New(rand.NewSource(p.seed ^ (d.Unix()/86400)*1_000_003))

	// 5% of days carry a market-wide shock.
	shock := 0.0
	if r.Float64() < 0.05 {
		shock = (r.Float64() - 0.5) * 3
	}

	out := make([]models.FlowObservation, 0, len(p.buckets))
	for _, b := range p.buckets {
		flow := (r.Float64() - 0.5) * 2e9
		flow += p.themeBias(b)
		flow += shock * r.Float64() * 500e6
		if r.Float64() < 0.3 {
			flow *= 1.2
		}

		aum := p.aum(b)
		out = append(out, models.FlowObservation{
			Date:          d,
			Bucket:        b,
			NetFlow:       math.Round(flow/1e6) * 1e6,
			AUM:           &aum,
			PriceCurrency: "USD",
		})
	}
	return out
}

func (p *SyntheticProvider) themeBias(b string) float64 {
	var bias float64
	if strings.Contains(b, "Technology") || strings.Contains(b, "Growth") {
		bias += p.themes.techRotation * 1e9
	}
	if b == "Gold" || b == "Silver" {
		bias += p.themes.goldInflows * 800e6
	}
	if strings.Contains(b, "EM") || strings.Contains(b, "Asia") {
		bias += p.themes.emergingMarkets * 600e6
	}
	if strings.Contains(b, "USD") {
		bias += p.themes.dollarStrength * 400e6
	}
	if strings.Contains(b, "VIX") || strings.Contains(b, "Vol") {
		bias += p.themes.riskOff * 200e6
	}
	return bias
}

func (p *SyntheticProvider) aum(b string) float64 {
	if v, ok := syntheticAUM[b]; ok {
		return v
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(b))
	r := rand.New(rand.NewSource(p.seed ^ int64(h.Sum64())))
	return math.Round(r.Float64()*5000e9 + 100e9)
}
