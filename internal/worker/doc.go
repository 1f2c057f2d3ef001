// Package worker runs the background jobs: the daily signal refresh, the TTL
// reaper and audited cohort rebuilds. Every run is recorded as a WorkerRun.
package worker
