package signal

import "errors"

// Sentinel errors for signal collection.
var (
	ErrEmptyLine     = errors.New("line identifier is empty")
	ErrInvalidMSISDN = errors.New("not a valid E.164 phone number")
	ErrNoNumber      = errors.New("no consented number for line")
)
