package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord marks a wire record missing a required field.
var ErrInvalidRecord = errors.New("invalid flow record")

// ObservationRecord is the provider/ingest wire shape of an observation.
// Pointer fields distinguish a missing value from a zero one.
type ObservationRecord struct {
	Date     *string  `json:"date"`
	Bucket   *string  `json:"bucket"`
	NetFlow  *float64 `json:"net_flow_usd"`
	AUM      *float64 `json:"aum_usd"`
	PriceCcy string   `json:"price_ccy"`
	Ccy      string   `json:"ccy"`
}

// ToObservation validates the record. A zero AUM is treated as not reported.
func (r ObservationRecord) ToObservation() (FlowObservation, error) {
	if r.Date == nil || *r.Date == "" {
		return FlowObservation{}, fmt.Errorf("%w: missing date", ErrInvalidRecord)
	}
	if r.Bucket == nil || *r.Bucket == "" {
		return FlowObservation{}, fmt.Errorf("%w: missing bucket", ErrInvalidRecord)
	}
	if r.NetFlow == nil {
		return FlowObservation{}, fmt.Errorf("%w: missing net_flow_usd", ErrInvalidRecord)
	}
	d, err := time.Parse("2006-01-02", *r.Date)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, *r.Date); err != nil {
			return FlowObservation{}, fmt.Errorf("%w: date %q", ErrInvalidRecord, *r.Date)
		}
		y, m, dd := d.Date()
		d = time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	}

	obs := FlowObservation{
		Date:          d,
		Bucket:        *r.Bucket,
		NetFlow:       *r.NetFlow,
		PriceCurrency: r.PriceCcy,
		Currency:      r.Ccy,
	}
	if r.AUM != nil && *r.AUM != 0 {
		aum := *r.AUM
		obs.AUM = &aum
	}
	return obs, nil
}

// ToObservations converts a batch, failing on the first invalid record.
func ToObservations(records []ObservationRecord) ([]FlowObservation, error) {
	out := make([]FlowObservation, 0, len(records))
	for i, r := range records {
		obs, err := r.ToObservation()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}
