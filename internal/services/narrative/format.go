package narrative

import (
	"fmt"
	"math"
)

// FormatUSD renders an amount by magnitude as $1.2B, $300M or $950.
// The sign is dropped; callers phrase direction in words.
func FormatUSD(amount float64) string {
	a := math.Abs(amount)
	switch {
	case a >= 1e9:
		return fmt.Sprintf("$%.1fB", a/1e9)
	case a >= 1e6:
		return fmt.Sprintf("$%.0fM", a/1e6)
	default:
		return fmt.Sprintf("$%.0f", a)
	}
}
