package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CapFlow/internal/domain/models"
)

// Fallback narrates summary stats from fixed templates. It never fails.
type Fallback struct {
	now func() time.Time
}

// NewFallback builds a template narrator.
func NewFallback() *Fallback {
	return &Fallback{now: time.Now}
}

// Narrate implements service.Narrator.
func (f *Fallback) Narrate(_ context.Context, stats models.SummaryStats) (models.Narrative, error) {
	return f.Build(stats), nil
}

// Build returns the narrative without the context plumbing.
func (f *Fallback) Build(stats models.SummaryStats) models.Narrative {
	inflow := first(stats.TopInflows)
	outflow := first(stats.TopOutflows)
	accel := first(stats.TopAccelerators)

	var b strings.Builder
	b.WriteString("Capital flows showed ")
	switch {
	case inflow != nil && outflow != nil:
		fmt.Fprintf(&b, "rotation into %s (%s) and out of %s (%s). ",
			inflow.Bucket, FormatUSD(inflow.Flow5d), outflow.Bucket, FormatUSD(outflow.Flow5d))
	case inflow != nil:
		fmt.Fprintf(&b, "strong inflows into %s (%s). ", inflow.Bucket, FormatUSD(inflow.Flow5d))
	case outflow != nil:
		fmt.Fprintf(&b, "notable outflows from %s (%s). ", outflow.Bucket, FormatUSD(outflow.Flow5d))
	default:
		b.WriteString("minimal activity across major asset classes. ")
	}
	if accel != nil {
		fmt.Fprintf(&b, "%s showed accelerating momentum with %s in additional flows.",
			accel.Bucket, FormatUSD(accel.Acceleration5d))
	}

	highlights := make([]string, 0, 3)
	if inflow != nil {
		highlights = append(highlights, fmt.Sprintf("%s led inflows at %s", inflow.Bucket, FormatUSD(inflow.Flow5d)))
	} else {
		highlights = append(highlights, "Limited inflow activity")
	}
	if outflow != nil {
		highlights = append(highlights, fmt.Sprintf("%s saw outflows of %s", outflow.Bucket, FormatUSD(outflow.Flow5d)))
	} else {
		highlights = append(highlights, "Minimal outflow pressure")
	}
	if n := len(stats.ElevatedBuckets); n > 0 {
		highlights = append(highlights, fmt.Sprintf("%d buckets showing elevated activity", n))
	} else {
		highlights = append(highlights, "Normal flow patterns across assets")
	}

	return models.Narrative{
		Text:       strings.TrimSpace(b.String()),
		Highlights: highlights,
		Timestamp:  f.now().UTC(),
	}
}

func first(ms []models.BucketMetrics) *models.BucketMetrics {
	if len(ms) == 0 {
		return nil
	}
	return &ms[0]
}
