package logic

import "time"

// Gate is a token bucket of one: it is ready when it has never fired or when
// at least Interval has passed since it last fired. It backs the blink
// debounce, the alert cooldown, the posture sample throttle and the snapshot
// throttle.
type Gate struct {
	Interval time.Duration

	last  time.Time
	fired bool
}

// NewGate returns a gate with the given interval.
func NewGate(interval time.Duration) Gate {
	return Gate{Interval: interval}
}

// Ready reports whether the gate may fire at now.
func (g *Gate) Ready(now time.Time) bool {
	return !g.fired || now.Sub(g.last) >= g.Interval
}

// Mark records a firing at now.
func (g *Gate) Mark(now time.Time) {
	g.last = now
	g.fired = true
}

// TryFire marks the gate and returns true if it was ready.
func (g *Gate) TryFire(now time.Time) bool {
	if !g.Ready(now) {
		return false
	}
	g.Mark(now)
	return true
}

// Reset forgets the last firing.
func (g *Gate) Reset() {
	g.last = time.Time{}
	g.fired = false
}
