package cohort

import (
	"time"

	"github.com/ignite/dormant-leads/internal/domain"
)

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

// Definitions returns the cohort catalogue in precedence order.
func Definitions() []domain.Cohort {
	return []domain.Cohort{
		{
			Name:        domain.CohortChurned,
			Description: "Lead TTL has passed; awaiting purge",
			Priority:    1,
			Thresholds:  domain.CohortThresholds{Expired: true},
		},
		{
			Name:        domain.CohortDormant,
			Description: "High dormancy score, no contact for over 60 days",
			Priority:    2,
			Thresholds: domain.CohortThresholds{
				MinRecencyDays:  intPtr(61),
				MinDormantScore: floatPtr(0.6),
			},
		},
		{
			Name:        domain.CohortAtRisk,
			Description: "Valuable device, no contact for over 30 days",
			Priority:    3,
			Thresholds: domain.CohortThresholds{
				MinRecencyDays: intPtr(31),
				MinMonetary:    floatPtr(100),
			},
		},
		{
			Name:        domain.CohortHighValue,
			Description: "Recently and repeatedly engaged, device worth 150+",
			Priority:    4,
			Thresholds: domain.CohortThresholds{
				MaxRecencyDays: intPtr(14),
				MinFrequency:   intPtr(3),
				MinMonetary:    floatPtr(150),
			},
		},
		{
			Name:        domain.CohortMediumValue,
			Description: "Engaged within 30 days, device worth 50-150",
			Priority:    5,
			Thresholds: domain.CohortThresholds{
				MaxRecencyDays: intPtr(30),
				MinFrequency:   intPtr(2),
				MinMonetary:    floatPtr(50),
				MaxMonetary:    floatPtr(150),
			},
		},
		{
			Name:        domain.CohortLowValue,
			Description: "Everything else",
			Priority:    6,
		},
	}
}

// ComputeRFM derives the snapshot used for assignment. Recency counts whole
// days since the last contact, or since creation when never contacted.
func ComputeRFM(s LeadSnapshot, now time.Time) domain.RFM {
	since := s.CreatedAt
	if s.LastContactAt != nil {
		since = *s.LastContactAt
	}
	recency := 0
	if d := now.Sub(since); d > 0 {
		recency = int(d / (24 * time.Hour))
	}
	monetary := 0.0
	if s.EstimatedValue != nil {
		monetary = *s.EstimatedValue
	}
	return domain.RFM{
		RecencyDays:  recency,
		Frequency:    s.ContactCount,
		Monetary:     monetary,
		DormantScore: s.DormantScore,
	}
}

// Classify returns the first cohort whose rule matches. The order of the
// checks is the precedence order and must not change.
func Classify(rfm domain.RFM, expiresAt, now time.Time) string {
	switch {
	case expiresAt.Before(now):
		return domain.CohortChurned
	case rfm.DormantScore >= 0.6 && rfm.RecencyDays > 60:
		return domain.CohortDormant
	case rfm.Monetary >= 100 && rfm.RecencyDays > 30:
		return domain.CohortAtRisk
	case rfm.RecencyDays <= 14 && rfm.Frequency >= 3 && rfm.Monetary >= 150:
		return domain.CohortHighValue
	case rfm.RecencyDays <= 30 && rfm.Frequency >= 2 && rfm.Monetary >= 50 && rfm.Monetary < 150:
		return domain.CohortMediumValue
	default:
		return domain.CohortLowValue
	}
}
