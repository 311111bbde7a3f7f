package models

import "time"

// FlowObservation is one daily net-flow record for a bucket.
// AUM is optional and may be reported on some days only.
type FlowObservation struct {
	Date          time.Time `json:"date"`
	Bucket        string    `json:"bucket"`
	NetFlow       float64   `json:"net_flow_usd"`
	AUM           *float64  `json:"aum_usd,omitempty"`
	PriceCurrency string    `json:"price_ccy,omitempty"`
	Currency      string    `json:"ccy,omitempty"`
}

// Badge classifies how unusual the current 5d flow is for a bucket.
type Badge string

const (
	BadgeNormal   Badge = "Normal"
	BadgeElevated Badge = "Elevated"
	BadgeExtreme  Badge = "Extreme"
)

// BucketMetrics is the derived analytics record for one bucket.
type BucketMetrics struct {
	Bucket            string    `json:"bucket"`
	Flow1d            float64   `json:"flow_1d"`
	Flow5d            float64   `json:"flow_5d"`
	Flow20d           float64   `json:"flow_20d"`
	Acceleration5d    float64   `json:"acceleration_5d"`
	ShareOfFlow       float64   `json:"share_of_flows_5d"`
	UnusualnessZScore float64   `json:"unusualness_zscore"`
	UnusualnessBadge  Badge     `json:"unusualness_badge"`
	TrendSeries       []float64 `json:"trend_data"`
	AUM               *float64  `json:"aum_usd,omitempty"`
	Flow1dPctAUM      *float64  `json:"flow_1d_pct_aum,omitempty"`
	Flow5dPctAUM      *float64  `json:"flow_5d_pct_aum,omitempty"`
}

// Filters restricts which buckets enter a compute pass.
// A nil Buckets slice means no restriction.
type Filters struct {
	Buckets        []string
	NoiseThreshold float64
}

// TapeItem is one entry of the scrolling flow tape.
type TapeItem struct {
	Bucket        string  `json:"bucket"`
	Flow1d        float64 `json:"flow_1d"`
	PercentChange float64 `json:"percent_change"`
	Badge         Badge   `json:"badge"`
}

// SummaryStats feeds narrative generation.
type SummaryStats struct {
	TopInflows      []BucketMetrics `json:"top_inflows"`
	TopOutflows     []BucketMetrics `json:"top_outflows"`
	TopAccelerators []BucketMetrics `json:"top_accelerators"`
	ElevatedBuckets []BucketMetrics `json:"elevated_buckets"`
	TotalInflows    float64         `json:"total_inflows"`
	TotalOutflows   float64         `json:"total_outflows"`
}

// Narrative is a short prose summary of the current rotation.
type Narrative struct {
	Text       string    `json:"narrative"`
	Highlights []string  `json:"highlights"`
	Timestamp  time.Time `json:"timestamp"`
}
