package schedule

import "time"

// SetNow swaps the scheduler clock for tests.
func SetNow(s *Scheduler, now func() time.Time) { s.now = now }
