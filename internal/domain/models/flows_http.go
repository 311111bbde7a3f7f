package models

// Requests for flow HTTP endpoints. Defined in domain for consistency and reuse.
// An absent noise parameter means "use the configured default threshold".

type FlowsRequest struct {
	AssetClass string  `query:"asset_class" json:"asset_class" validate:"omitempty,oneof=All Equities 'Fixed Income' FX Commodities Alternatives Cash Vol/Risk"`
	Noise      float64 `query:"noise" json:"noise" validate:"gte=0,lte=1000"`
}

type TapeRequest struct {
	AssetClass string  `query:"asset_class" json:"asset_class" validate:"omitempty,oneof=All Equities 'Fixed Income' FX Commodities Alternatives Cash Vol/Risk"`
	Noise      float64 `query:"noise" json:"noise" validate:"gte=0,lte=1000"`
	N          int     `query:"n" json:"n" default:"20" validate:"gte=1,lte=200"`
}

type LeaderboardRequest struct {
	AssetClass  string  `query:"asset_class" json:"asset_class" validate:"omitempty,oneof=All Equities 'Fixed Income' FX Commodities Alternatives Cash Vol/Risk"`
	Noise       float64 `query:"noise" json:"noise" validate:"gte=0,lte=1000"`
	Window      string  `query:"window" json:"window" default:"5d" validate:"oneof=1d 5d 20d"`
	Search      string  `query:"search" json:"search" validate:"max=64"`
	ShowVolRisk string  `query:"show_vol_risk" json:"show_vol_risk" default:"true" validate:"oneof=true false"`
	MaxRows     int     `query:"max_rows" json:"max_rows" default:"10" validate:"gte=1,lte=100"`
}

type BucketRequest struct {
	Bucket string `param:"bucket" json:"bucket" validate:"required,max=128"`
}
