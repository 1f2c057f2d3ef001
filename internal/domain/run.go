package domain

import "time"

// RunType identifies the background task a WorkerRun audits.
type RunType string

const (
	RunDailyRefresh  RunType = "daily_refresh"
	RunTTLPurge      RunType = "ttl_purge"
	RunCohortRebuild RunType = "cohort_rebuild"
)

// RunStatus is the lifecycle of a WorkerRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// WorkerRun is the audit record of one background execution. It is created
// when the run starts and finalized once; it is never mutated afterwards.
type WorkerRun struct {
	ID               string     `json:"id" db:"id"`
	Type             RunType    `json:"type" db:"run_type"`
	Trigger          Trigger    `json:"trigger" db:"trigger"`
	TriggeredBy      string     `json:"triggered_by,omitempty" db:"triggered_by"`
	Status           RunStatus  `json:"status" db:"status"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	RecordsCreated   int        `json:"records_created" db:"records_created"`
	RecordsUpdated   int        `json:"records_updated" db:"records_updated"`
	RecordsFailed    int        `json:"records_failed" db:"records_failed"`
	DurationMs       int64      `json:"duration_ms" db:"duration_ms"`
	Error            string     `json:"error,omitempty" db:"error"`
	ErrorStack       string     `json:"-" db:"error_stack"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// RunCounts are the tallies written when a run is finalized.
type RunCounts struct {
	Processed int
	Created   int
	Updated   int
	Failed    int
}
