// Package ticks provides a monotonic tick counter, the way the teacher's
// accnt package tracks nanosecond counters under their own lock rather than
// reading wall-clock time directly.
package ticks

import "sync"

// Counter_t is a monotonically increasing tick count guarded by its own lock,
// mirroring accnt.Accnt_t's Userns/Sysns bookkeeping style.
type Counter_t struct {
	sync.Mutex
	val int
}

// Tick advances the counter by one and returns the new value.
func (c *Counter_t) Tick() int {
	c.Lock()
	c.val++
	v := c.val
	c.Unlock()
	return v
}

// Now returns the current tick value without advancing it.
func (c *Counter_t) Now() int {
	c.Lock()
	v := c.val
	c.Unlock()
	return v
}
