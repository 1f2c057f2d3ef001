package domain

import "time"

// Cohort names. The set is fixed; definitions are upserted by name.
const (
	CohortChurned     = "churned"
	CohortDormant     = "dormant"
	CohortAtRisk      = "at_risk"
	CohortHighValue   = "high_value"
	CohortMediumValue = "medium_value"
	CohortLowValue    = "low_value"
)

// CohortThresholds documents the predicates that admit a lead into a cohort.
// Nil bounds are not applied.
type CohortThresholds struct {
	MinRecencyDays  *int     `json:"min_recency_days,omitempty"`
	MaxRecencyDays  *int     `json:"max_recency_days,omitempty"`
	MinFrequency    *int     `json:"min_frequency,omitempty"`
	MinMonetary     *float64 `json:"min_monetary,omitempty"`
	MaxMonetary     *float64 `json:"max_monetary,omitempty"`
	MinDormantScore *float64 `json:"min_dormant_score,omitempty"`
	Expired         bool     `json:"expired,omitempty"`
}

// Cohort is a named segment definition plus cached aggregate statistics.
type Cohort struct {
	ID                string           `json:"id" db:"id"`
	Name              string           `json:"name" db:"name"`
	Description       string           `json:"description" db:"description"`
	Priority          int              `json:"priority" db:"priority"`
	Thresholds        CohortThresholds `json:"thresholds" db:"thresholds"`
	MemberCount       int              `json:"member_count" db:"member_count"`
	AvgDormantScore   float64          `json:"avg_dormant_score" db:"avg_dormant_score"`
	AvgEstimatedValue float64          `json:"avg_estimated_value" db:"avg_estimated_value"`
	LastRefreshAt     *time.Time       `json:"last_refresh_at,omitempty" db:"last_refresh_at"`
}

// RFM is the recency/frequency/monetary snapshot used for assignment.
type RFM struct {
	RecencyDays  int     `json:"recency_days"`
	Frequency    int     `json:"frequency"`
	Monetary     float64 `json:"monetary"`
	DormantScore float64 `json:"dormant_score"`
}

// CohortMember joins a cohort and a lead at a point in time.
type CohortMember struct {
	ID         string     `json:"id" db:"id"`
	CohortName string     `json:"cohort_name" db:"cohort_name"`
	LeadID     string     `json:"lead_id" db:"lead_id"`
	HashedLine string     `json:"hashed_line" db:"hashed_line"`
	Snapshot   RFM        `json:"snapshot" db:"snapshot"`
	AssignedAt time.Time  `json:"assigned_at" db:"assigned_at"`
	RemovedAt  *time.Time `json:"removed_at,omitempty" db:"removed_at"`
}
