package provider

import (
	"math"
	"sort"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
)

// etfBuckets maps listed funds to the bucket whose flows they proxy.
// Unmapped symbols keep their own name as the bucket.
var etfBuckets = map[string]string{
	"SPY":  "US Equities",
	"VTI":  "US Equities",
	"QQQ":  "Technology",
	"XLK":  "Technology",
	"IWM":  "Small Cap",
	"EFA":  "DM ex-US Equities",
	"EEM":  "EM Equities",
	"VTEB": "Municipal Bonds",
	"BND":  "US Investment Grade Credit",
	"HYG":  "US High Yield Credit",
	"TLT":  "US Treasuries (Long)",
	"IEF":  "US Treasuries (Intermediate)",
	"SHY":  "US Treasuries (Short)",
	"TIP":  "US TIPS",
	"GLD":  "Gold",
	"SLV":  "Silver",
	"USO":  "Crude Oil (WTI)",
	"UNG":  "Natural Gas",
	"VNQ":  "Real Estate (REITs)",
	"XLF":  "Financials",
	"XLE":  "Energy",
	"XLV":  "Health Care",
	"XLU":  "Utilities",
	"XLI":  "Industrials",
	"XLY":  "Consumer Discretionary",
	"XLP":  "Consumer Staples",
	"ARKK": "Growth",
	"VUG":  "Growth",
	"VTV":  "Value",
}

func bucketForETF(symbol string) string {
	if b, ok := etfBuckets[strings.ToUpper(symbol)]; ok {
		return b
	}
	return symbol
}

func bucketForCrypto(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "BTC":
		return "Bitcoin (BTC)"
	case "ETH":
		return "Ethereum (ETH)"
	default:
		return "Large Cap Altcoins"
	}
}

// dailyBar is one close of a daily price series.
type dailyBar struct {
	Date   time.Time
	Close  float64
	Volume float64
	VWAP   float64
}

// estimateFunc turns a bar and the previous close into a flow and an
// optional AUM estimate.
type estimateFunc func(bar dailyBar, pct float64) (flow float64, aum *float64)

// estimateFlows applies est to each bar after the first in [from, to].
// Bars with a zero previous close are skipped.
func estimateFlows(bucket string, bars []dailyBar, from, to time.Time, est estimateFunc) []models.FlowObservation {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	out := make([]models.FlowObservation, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if cur.Date.Before(from) || (!to.IsZero() && cur.Date.After(to)) {
			continue
		}
		if prev.Close == 0 {
			continue
		}
		pct := (cur.Close - prev.Close) / prev.Close
		flow, aum := est(cur, pct)
		if math.IsNaN(flow) || math.IsInf(flow, 0) {
			continue
		}
		out = append(out, models.FlowObservation{
			Date:          cur.Date,
			Bucket:        bucket,
			NetFlow:       flow,
			AUM:           aum,
			PriceCurrency: "USD",
		})
	}
	return out
}

// mergeByDay sums observations that share a date and bucket, as when two
// funds proxy the same bucket. AUM is summed over the days that report it.
func mergeByDay(obs []models.FlowObservation) []models.FlowObservation {
	type key struct {
		date   time.Time
		bucket string
	}
	idx := make(map[key]int, len(obs))
	out := make([]models.FlowObservation, 0, len(obs))
	for _, o := range obs {
		k := key{o.Date, o.Bucket}
		i, ok := idx[k]
		if !ok {
			if o.AUM != nil {
				v := *o.AUM
				o.AUM = &v
			}
			idx[k] = len(out)
			out = append(out, o)
			continue
		}
		out[i].NetFlow += o.NetFlow
		if o.AUM != nil {
			if out[i].AUM == nil {
				v := *o.AUM
				out[i].AUM = &v
			} else {
				*out[i].AUM += *o.AUM
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Bucket < out[j].Bucket
	})
	return out
}

// pacingPerMinute converts a delay between calls to a sustained rate.
func pacingPerMinute(d time.Duration) float64 {
	return float64(time.Minute) / float64(d)
}
