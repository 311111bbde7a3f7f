package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
	"CapFlow/internal/service/ratelimit"
	xhttp "CapFlow/pkg/http"
	"CapFlow/pkg/logger"
	"CapFlow/pkg/util"
)

const (
	alphaBaseURL = "https://www.alphavantage.co/query"
	// Free tier allows five calls a minute.
	alphaPacing = 12 * time.Second
	// compact returns the last 100 trading days, about 140 calendar days.
	alphaCompactDays = 140
	fxBaseVolume     = 10e9
)

// Default Alpha Vantage universe. A symbol prefixed "FX:" is a currency pair.
var alphaSymbols = []string{"SPY", "QQQ", "GLD"}

// ErrRateLimited is returned when Alpha Vantage answers with its call
// frequency note instead of data.
var ErrRateLimited = errors.New("alpha vantage call frequency limit reached")

// AlphaVantage estimates daily bucket flows from Alpha Vantage daily closes.
// Funds use price change times dollar volume; currency pairs use the rate
// change against a fixed daily volume.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	symbols []string
	timeout time.Duration
	pacing  time.Duration
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

// AlphaOption configures AlphaVantage.
type AlphaOption func(*AlphaVantage)

func WithAlphaBaseURL(u string) AlphaOption {
	return func(a *AlphaVantage) {
		if u != "" {
			a.baseURL = u
		}
	}
}

// WithAlphaSymbols replaces the default universe.
func WithAlphaSymbols(symbols []string) AlphaOption {
	return func(a *AlphaVantage) {
		if len(symbols) > 0 {
			a.symbols = symbols
		}
	}
}

// WithAlphaPacing sets the minimum delay between upstream calls.
func WithAlphaPacing(d time.Duration) AlphaOption {
	return func(a *AlphaVantage) {
		if d > 0 {
			a.pacing = d
		}
	}
}

func WithAlphaTimeout(d time.Duration) AlphaOption {
	return func(a *AlphaVantage) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithAlphaLogger(l *logger.Logger) AlphaOption {
	return func(a *AlphaVantage) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAlphaVantage builds an Alpha Vantage flow source.
func NewAlphaVantage(apiKey string, opts ...AlphaOption) *AlphaVantage {
	a := &AlphaVantage{
		apiKey:  apiKey,
		baseURL: alphaBaseURL,
		symbols: alphaSymbols,
		timeout: 30 * time.Second,
		pacing:  alphaPacing,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client = xhttp.NewClient(xhttp.WithTimeout(a.timeout))
	a.limiter = ratelimit.New(1, pacingPerMinute(a.pacing))
	return a
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

type alphaDay struct {
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// Fetch implements repository.FlowSource. A symbol that fails is logged and
// skipped; Fetch only fails when every symbol does.
func (a *AlphaVantage) Fetch(ctx context.Context, from, to time.Time) ([]models.FlowObservation, error) {
	from, to = util.Day(from), util.Day(to)
	size := "compact"
	if to.Sub(from) > alphaCompactDays*24*time.Hour {
		size = "full"
	}

	var (
		out  []models.FlowObservation
		errs []error
	)
	for _, sym := range a.symbols {
		if err := a.limiter.Wait(ctx, a.Name()); err != nil {
			return nil, err
		}
		obs, err := a.fetchSymbol(ctx, sym, size, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.log.Warn("alpha vantage symbol failed", logger.String("symbol", sym), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		out = append(out, obs...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return mergeByDay(out), nil
}

func (a *AlphaVantage) fetchSymbol(ctx context.Context, sym, size string, from, to time.Time) ([]models.FlowObservation, error) {
	if pair, ok := strings.CutPrefix(sym, "FX:"); ok {
		if len(pair) != 6 {
			return nil, fmt.Errorf("currency pair %q must be six letters", pair)
		}
		base, quote := strings.ToUpper(pair[:3]), strings.ToUpper(pair[3:])
		bars, err := a.series(ctx, map[string][]string{
			"function":    {"FX_DAILY"},
			"from_symbol": {base},
			"to_symbol":   {quote},
			"outputsize":  {size},
		}, "Time Series (FX Daily)")
		if err != nil {
			return nil, err
		}
		// USD-based pairs are booked against the other currency.
		bucket, sign := base, 1.0
		if base == "USD" {
			bucket, sign = quote, -1.0
		}
		obs := estimateFlows(bucket, bars, from, to, func(_ dailyBar, pct float64) (float64, *float64) {
			return sign * pct * fxBaseVolume, nil
		})
		return obs, nil
	}

	bars, err := a.series(ctx, map[string][]string{
		"function":   {"TIME_SERIES_DAILY"},
		"symbol":     {sym},
		"outputsize": {size},
	}, "Time Series (Daily)")
	if err != nil {
		return nil, err
	}
	return estimateFlows(bucketForETF(sym), bars, from, to, func(b dailyBar, pct float64) (float64, *float64) {
		aum := b.Volume * b.Close * 50
		return pct * b.Volume * b.Close * 0.1, &aum
	}), nil
}

// series runs one query and decodes the daily series stored under key.
func (a *AlphaVantage) series(ctx context.Context, q map[string][]string, key string) ([]dailyBar, error) {
	q["apikey"] = []string{a.apiKey}

	var raw map[string]json.RawMessage
	if err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         a.baseURL,
		QueryParams: q,
	}, &raw); err != nil {
		return nil, err
	}
	if err := alphaError(raw); err != nil {
		return nil, err
	}

	var days map[string]alphaDay
	if body, ok := raw[key]; ok {
		if err := json.Unmarshal(body, &days); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("alpha vantage returned no %q", key)
	}

	bars := make([]dailyBar, 0, len(days))
	for ds, d := range days {
		date, err := util.ParseDate(ds)
		if err != nil {
			continue
		}
		closePx, err := strconv.ParseFloat(d.Close, 64)
		if err != nil {
			continue
		}
		vol, _ := strconv.ParseFloat(d.Volume, 64)
		bars = append(bars, dailyBar{Date: date, Close: closePx, Volume: vol})
	}
	return bars, nil
}

func alphaError(raw map[string]json.RawMessage) error {
	msg := func(k string) string {
		var s string
		_ = json.Unmarshal(raw[k], &s)
		return s
	}
	if _, ok := raw["Error Message"]; ok {
		return fmt.Errorf("alpha vantage: %s", msg("Error Message"))
	}
	if _, ok := raw["Note"]; ok {
		return fmt.Errorf("%w: %s", ErrRateLimited, msg("Note"))
	}
	if _, ok := raw["Information"]; ok {
		return fmt.Errorf("alpha vantage: %s", msg("Information"))
	}
	return nil
}

// Health implements repository.FlowSource with a compact SPY lookup.
func (a *AlphaVantage) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := a.series(ctx, map[string][]string{
		"function":   {"TIME_SERIES_DAILY"},
		"symbol":     {"SPY"},
		"outputsize": {"compact"},
	}, "Time Series (Daily)")
	if err != nil {
		return fmt.Errorf("alpha vantage health: %w", err)
	}
	return nil
}
