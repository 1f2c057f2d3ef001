package cohort

import "errors"

// Sentinel errors for the cohort service layer.
var (
	ErrUnknownCohort = errors.New("unknown cohort")
	ErrInvalidPage   = errors.New("page and limit must be positive")
)
