package scoring

import "github.com/ignite/dormant-leads/internal/config"

// Score weights. They sum to 1.0.
const (
	weightSwap         = 0.40
	weightUnreachable  = 0.35
	weightWindow       = 0.15
	weightSwapCount    = 0.10
	unreachableFullDay = 7.0
	swapCountCeiling   = 3.0
)

// Config holds the eligibility thresholds.
type Config struct {
	MinDaysAfterSwap        int
	MaxActivationWindowDays int
	MinDaysBetweenContacts  int
	MaxSwaps30d             int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinDaysAfterSwap:        3,
		MaxActivationWindowDays: 14,
		MinDaysBetweenContacts:  14,
		MaxSwaps30d:             2,
	}
}

// FromDetection maps the detection section of the app config.
func FromDetection(c config.DetectionConfig) Config {
	return Config{
		MinDaysAfterSwap:        c.MinDaysAfterSwap,
		MaxActivationWindowDays: c.MaxActivationWindowDays,
		MinDaysBetweenContacts:  c.MinDaysBetweenContacts,
		MaxSwaps30d:             c.MaxSwaps30dThreshold,
	}
}
