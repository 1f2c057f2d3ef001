package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrTemplateNotFound  = errors.New("message template not found")
	ErrInvalidStatus     = errors.New("campaign is not in draft or scheduled status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRate       = errors.New("max_per_hour and batch_size must be between 1 and 1000000")
	ErrInvalidCampaign   = errors.New("invalid campaign")
	ErrInvalidTemplate   = errors.New("invalid message template")
	ErrNoAddress         = errors.New("no consented address")
	ErrInvalidToken      = errors.New("invalid tracking token")
)
