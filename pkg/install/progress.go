package install

import "time"

// coalescer throttles downloading-phase progress emission to "at least
// every 500ms of wall time or every whole percent of receivedBytes/totalBytes,
// whichever is sooner" per the install pipeline's progress event rule.
type coalescer struct {
	lastEmit    time.Time
	lastPercent int
	interval    time.Duration
}

func newCoalescer() *coalescer {
	return &coalescer{interval: 500 * time.Millisecond, lastPercent: -1}
}

// shouldEmit reports whether a new downloading-phase event should be sent
// for the given received/total byte counts, observed at now.
func (c *coalescer) shouldEmit(now time.Time, received, total int64) bool {
	if total <= 0 {
		// Unknown total: fall back to wall-clock coalescing alone.
		if now.Sub(c.lastEmit) >= c.interval {
			c.lastEmit = now
			return true
		}
		return false
	}

	percent := int(float64(received) / float64(total) * 100)
	if percent != c.lastPercent {
		c.lastPercent = percent
		c.lastEmit = now
		return true
	}
	if now.Sub(c.lastEmit) >= c.interval {
		c.lastEmit = now
		return true
	}
	return false
}
