package models

import (
	"encoding/json"
	"math"
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOrNil maps NaN and ±Inf to nil, which encodes as null.
func finiteOrNil(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

func finitePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return finiteOrNil(*p)
}

// Finite reports whether every numeric field of m is a real number.
func (m BucketMetrics) Finite() bool {
	for _, v := range []float64{m.Flow1d, m.Flow5d, m.Flow20d, m.Acceleration5d, m.ShareOfFlow, m.UnusualnessZScore} {
		if !isFinite(v) {
			return false
		}
	}
	for _, p := range []*float64{m.AUM, m.Flow1dPctAUM, m.Flow5dPctAUM} {
		if p != nil && !isFinite(*p) {
			return false
		}
	}
	for _, v := range m.TrendSeries {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes non-finite values as null so one corrupt bucket does
// not fail the whole payload.
func (m BucketMetrics) MarshalJSON() ([]byte, error) {
	type plain BucketMetrics
	if m.Finite() {
		return json.Marshal(plain(m))
	}

	var trend []*float64
	if m.TrendSeries != nil {
		trend = make([]*float64, len(m.TrendSeries))
		for i, v := range m.TrendSeries {
			trend[i] = finiteOrNil(v)
		}
	}
	return json.Marshal(struct {
		plain
		Flow1d            *float64   `json:"flow_1d"`
		Flow5d            *float64   `json:"flow_5d"`
		Flow20d           *float64   `json:"flow_20d"`
		Acceleration5d    *float64   `json:"acceleration_5d"`
		ShareOfFlow       *float64   `json:"share_of_flows_5d"`
		UnusualnessZScore *float64   `json:"unusualness_zscore"`
		TrendSeries       []*float64 `json:"trend_data"`
		AUM               *float64   `json:"aum_usd,omitempty"`
		Flow1dPctAUM      *float64   `json:"flow_1d_pct_aum,omitempty"`
		Flow5dPctAUM      *float64   `json:"flow_5d_pct_aum,omitempty"`
	}{
		plain:             plain(m),
		Flow1d:            finiteOrNil(m.Flow1d),
		Flow5d:            finiteOrNil(m.Flow5d),
		Flow20d:           finiteOrNil(m.Flow20d),
		Acceleration5d:    finiteOrNil(m.Acceleration5d),
		ShareOfFlow:       finiteOrNil(m.ShareOfFlow),
		UnusualnessZScore: finiteOrNil(m.UnusualnessZScore),
		TrendSeries:       trend,
		AUM:               finitePtr(m.AUM),
		Flow1dPctAUM:      finitePtr(m.Flow1dPctAUM),
		Flow5dPctAUM:      finitePtr(m.Flow5dPctAUM),
	})
}

// MarshalJSON encodes non-finite values as null.
func (t TapeItem) MarshalJSON() ([]byte, error) {
	type plain TapeItem
	if isFinite(t.Flow1d) && isFinite(t.PercentChange) {
		return json.Marshal(plain(t))
	}
	return json.Marshal(struct {
		plain
		Flow1d        *float64 `json:"flow_1d"`
		PercentChange *float64 `json:"percent_change"`
	}{
		plain:         plain(t),
		Flow1d:        finiteOrNil(t.Flow1d),
		PercentChange: finiteOrNil(t.PercentChange),
	})
}
