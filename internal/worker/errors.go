package worker

import "errors"

var (
	// ErrRunInProgress is returned when a run of the same kind is already
	// executing in this process or holds the distributed lease.
	ErrRunInProgress  = errors.New("run already in progress")
	ErrRunNotFound    = errors.New("worker run not found")
	ErrInvalidTrigger = errors.New("trigger must be scheduled or manual")
)
