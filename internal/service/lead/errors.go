package lead

import "errors"

// Sentinel errors for the lead service layer.
var (
	ErrNotFound     = errors.New("lead not found")
	ErrInvalidLine  = errors.New("hashed line is required")
	ErrInvalidLimit = errors.New("limit out of range")
	ErrInvalidValue = errors.New("estimated value must be non-negative")
)
