package engine

import "time"

// schedule computes tick times from a fixed origin plus N*interval. Pausing
// the engine skips ticks but never shifts the grid, so pause/resume cycles
// accumulate no timing drift: the next tick after resume is the next grid
// boundary, not "now + interval".
type schedule struct {
	origin   time.Time
	interval time.Duration
}

func newSchedule(origin time.Time, interval time.Duration) schedule {
	return schedule{origin: origin, interval: interval}
}

// next returns the first grid time strictly after now.
func (s schedule) next(now time.Time) time.Time {
	if now.Before(s.origin) {
		return s.origin
	}
	elapsed := now.Sub(s.origin)
	n := elapsed/s.interval + 1
	return s.origin.Add(n * s.interval)
}
