package models

import "time"

// Leaderboards groups ranked buckets for the dashboard tables.
// Note: no transport (json/http) concerns beyond field tags here.
type Leaderboards struct {
	Window            string          `json:"window"`
	Inflows           []BucketMetrics `json:"inflows"`
	Outflows          []BucketMetrics `json:"outflows"`
	Accelerators      []BucketMetrics `json:"accelerators"`
	Decelerators      []BucketMetrics `json:"decelerators"`
	TotalInflows      int             `json:"total_inflows"`
	TotalOutflows     int             `json:"total_outflows"`
	TotalAccelerators int             `json:"total_accelerators"`
	TotalDecelerators int             `json:"total_decelerators"`
}

// BucketDetail is the drill-down view for a single bucket.
type BucketDetail struct {
	Bucket       string            `json:"bucket"`
	AssetClass   string            `json:"asset_class"`
	Metrics      *BucketMetrics    `json:"metrics,omitempty"`
	Observations []FlowObservation `json:"observations"`
}

// SummaryView is the summary plus its narrative.
type SummaryView struct {
	Stats     SummaryStats `json:"stats"`
	Narrative Narrative    `json:"narrative"`
}

// Snapshot is what gets published after every refresh.
type Snapshot struct {
	Provider     string          `json:"provider"`
	ComputedAt   time.Time       `json:"computed_at"`
	Observations int             `json:"observations"`
	Metrics      []BucketMetrics `json:"metrics"`
	Tape         []TapeItem      `json:"tape"`
	Summary      SummaryStats    `json:"summary"`
}

// Status describes the currently loaded series.
type Status struct {
	Provider     string     `json:"provider"`
	Observations int        `json:"observations"`
	Buckets      int        `json:"buckets"`
	FirstDate    *time.Time `json:"first_date,omitempty"`
	LastDate     *time.Time `json:"last_date,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// LeaderboardQuery narrows and sizes the ranking tables.
// Window is one of 1d, 5d, 20d; anything else means 5d.
type LeaderboardQuery struct {
	Window      string
	Search      string
	ShowVolRisk bool
	MaxRows     int
}
