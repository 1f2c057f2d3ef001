package cohort

import "time"

// SetClock overrides the classifier's time source.
func SetClock(c *Classifier, now func() time.Time) { c.now = now }
