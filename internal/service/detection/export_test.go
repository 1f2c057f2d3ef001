package detection

import "time"

// SetClock replaces the detector clock in tests.
func SetClock(d *Detector, now func() time.Time) { d.now = now }

// SetPageSize shrinks the event page in tests.
func SetPageSize(d *Detector, n int) { d.pageSize = n }
