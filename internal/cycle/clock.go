package cycle

import "time"

// Clock abstracts the node wall clock. Setting the OS clock needs privileges
// the agent usually does not have, so the default implementation tracks a
// settable offset over the system clock instead.
type Clock interface {
	Now() time.Time
	Set(t time.Time)
}

// OffsetClock applies a settable offset to the system clock. The zero value
// reads straight system time.
type OffsetClock struct {
	offset time.Duration
}

// Now returns the corrected wall time.
func (c *OffsetClock) Now() time.Time {
	return time.Now().Add(c.offset)
}

// Set adjusts the offset so Now returns t from here on.
func (c *OffsetClock) Set(t time.Time) {
	c.offset = time.Until(t)
}
