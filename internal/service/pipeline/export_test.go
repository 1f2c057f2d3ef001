package pipeline

import "time"

// SetClock replaces the evaluator clock in tests.
func SetClock(e *Evaluator, now func() time.Time) { e.now = now }
