package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/service/ratelimit"
	xhttp "CapFlow/pkg/http"
	"CapFlow/pkg/logger"
	"CapFlow/pkg/util"
)

const (
	polygonBaseURL = "https://api.polygon.io"
	polygonPacing  = 200 * time.Millisecond
	// Extra calendar days requested so the first day in range has a previous close.
	priorCloseDays = 7
)

// Default Polygon universe. A symbol prefixed "X:" is a crypto pair.
var polygonSymbols = []string{
	"SPY", "QQQ", "IWM", "EFA", "EEM", "VTI", "ARKK", "VTV", "VUG",
	"XLF", "XLE", "XLK", "XLV", "XLU", "XLI", "XLY", "XLP",
	"X:BTCUSD", "X:ETHUSD", "X:ADAUSD", "X:SOLUSD", "X:MATICUSD", "X:AVAXUSD",
}

// Rough fund sizes used when Polygon reports no AUM.
var polygonAUM = map[string]float64{
	"SPY": 400e9,
	"QQQ": 200e9,
	"IWM": 60e9,
	"EFA": 80e9,
	"EEM": 25e9,
	"VTI": 300e9,
	"BND": 90e9,
	"TLT": 50e9,
	"GLD": 60e9,
}

// Polygon estimates daily bucket flows from Polygon.io daily aggregates:
// price change times VWAP times volume, damped by a log-volume weight.
type Polygon struct {
	apiKey  string
	baseURL string
	symbols []string
	timeout time.Duration
	pacing  time.Duration
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

// PolygonOption configures Polygon.
type PolygonOption func(*Polygon)

func WithPolygonBaseURL(u string) PolygonOption {
	return func(p *Polygon) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithPolygonSymbols replaces the default universe.
func WithPolygonSymbols(symbols []string) PolygonOption {
	return func(p *Polygon) {
		if len(symbols) > 0 {
			p.symbols = symbols
		}
	}
}

// WithPolygonPacing sets the minimum delay between upstream calls.
func WithPolygonPacing(d time.Duration) PolygonOption {
	return func(p *Polygon) {
		if d > 0 {
			p.pacing = d
		}
	}
}

func WithPolygonTimeout(d time.Duration) PolygonOption {
	return func(p *Polygon) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithPolygonLogger(l *logger.Logger) PolygonOption {
	return func(p *Polygon) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPolygon builds a Polygon flow source.
func NewPolygon(apiKey string, opts ...PolygonOption) *Polygon {
	p := &Polygon{
		apiKey:  apiKey,
		baseURL: polygonBaseURL,
		symbols: polygonSymbols,
		timeout: 30 * time.Second,
		pacing:  polygonPacing,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = xhttp.NewClient(xhttp.WithTimeout(p.timeout))
	p.limiter = ratelimit.New(1, pacingPerMinute(p.pacing))
	return p
}

func (p *Polygon) Name() string { return "polygon" }

type polygonBar struct {
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	VWAP   float64 `json:"vw"`
	Time   int64   `json:"t"` // ms
}

type polygonAggs struct {
	Status  string       `json:"status"`
	Error   string       `json:"error"`
	Results []polygonBar `json:"results"`
}

// Fetch implements repository.FlowSource. A symbol that fails is logged and
// skipped; Fetch only fails when every symbol does.
func (p *Polygon) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	from, to = util.Day(from), util.Day(to)

	var (
		out  []models.FlowObservation
		errs []error
	)
	for _, sym := range p.symbols {
		if err := p.limiter.Wait(ctx, p.Name()); err != nil {
			return nil, err
		}
		bars, err := p.aggregates(ctx, sym, from.AddDate(0, 0, -priorCloseDays), to)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn("polygon symbol failed", logger.String("symbol", sym), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		out = append(out, p.estimate(sym, bars, from, to)...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return mergeByDay(out), nil
}

func (p *Polygon) estimate(sym string, bars []dailyBar, from, to time.Time) []models.FlowObservation {
	if base, ok := strings.CutPrefix(sym, "X:"); ok {
		base = strings.TrimSuffix(base, "USD")
		return estimateFlows(bucketForCrypto(base), bars, from, to, func(b dailyBar, pct float64) (float64, *float64) {
			aum := b.Volume * b.Close * 10
			return pct * b.Volume * b.Close * 0.01, &aum
		})
	}
	return estimateFlows(bucketForETF(sym), bars, from, to, func(b dailyBar, pct float64) (float64, *float64) {
		vwap := b.VWAP
		if vwap == 0 {
			vwap = b.Close
		}
		weight := math.Log(b.Volume+1) / 20
		aum, ok := polygonAUM[sym]
		if !ok {
			aum = b.Volume * b.Close * 100
		}
		return pct * vwap * b.Volume * 0.05 * weight, &aum
	})
}

func (p *Polygon) aggregates(ctx context.Context, sym string, from, to time.Time) ([]dailyBar, error) {
	var res polygonAggs
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL: fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
			p.baseURL, sym, util.FormatDate(from), util.FormatDate(to)),
		QueryParams: map[string][]string{
			"apiKey":   {p.apiKey},
			"adjusted": {"true"},
			"sort":     {"asc"},
		},
	}, &res)
	if err != nil {
		return nil, err
	}
	if !polygonOK(res.Status) {
		return nil, fmt.Errorf("polygon status %q: %s", res.Status, res.Error)
	}
	bars := make([]dailyBar, 0, len(res.Results))
	for _, r := range res.Results {
		bars = append(bars, dailyBar{
			Date:   util.Day(time.UnixMilli(r.Time).UTC()),
			Close:  r.Close,
			Volume: r.Volume,
			VWAP:   r.VWAP,
		})
	}
	return bars, nil
}

// Delayed data is what non-realtime plans receive; it is still valid.
func polygonOK(status string) bool {
	return status == "OK" || status == "DELAYED"
}

// Health implements repository.FlowSource with a previous-close lookup.
func (p *Polygon) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var res polygonAggs
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         p.baseURL + "/v2/aggs/ticker/SPY/prev",
		QueryParams: map[string][]string{"apiKey": {p.apiKey}},
	}, &res)
	if err != nil {
		return fmt.Errorf("polygon health: %w", err)
	}
	if !polygonOK(res.Status) || len(res.Results) == 0 {
		return fmt.Errorf("polygon health: status %q: %s", res.Status, res.Error)
	}
	return nil
}
