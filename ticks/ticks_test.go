package ticks

import "testing"

func TestTickMonotonic(t *testing.T) {
	var c Counter_t
	a := c.Tick()
	b := c.Tick()
	if b <= a {
		t.Fatalf("Tick() not monotonic: %d then %d", a, b)
	}
	if now := c.Now(); now != b {
		t.Fatalf("Now() = %d, want %d", now, b)
	}
}
