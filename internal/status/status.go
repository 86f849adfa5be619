// Package status provides a thread-safe status tracker for the posture-coach daemon.
// It is read by HTTP handlers and fans live session snapshots out to
// websocket subscribers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/posture-coach/internal/logic"
	"github.com/sweeney/posture-coach/internal/session"
)

// Config contains daemon configuration for display.
type Config struct {
	CalibrationFrames int
	SnapshotMs        int64
	CooldownMs        int64
	SampleMs          int64
	Detector          string
	Device            string
	Broker            string // empty = MQTT disabled
	HTTPPort          string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session       session.Snapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Completed     int                   // sessions finished since startup
	LastSession   *logic.SessionPayload // most recent finished session
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// subscriberBuffer is the per-subscriber queue depth. Slow subscribers
// lose older snapshots, never newer ones.
const subscriberBuffer = 4

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	subMu  sync.Mutex
	subs   map[int]chan session.Snapshot
	nextID int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   session.IdleSnapshot(),
			StartTime: startTime,
			Config:    cfg,
		},
		subs: make(map[int]chan session.Snapshot),
	}
}

// Update records an emitted session snapshot and forwards it to every
// subscriber. It is the controller's emit callback.
func (t *Tracker) Update(s session.Snapshot) {
	t.mu.Lock()
	t.snap.Session = s.Clone()
	t.mu.Unlock()

	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		offer(ch, s.Clone())
	}
}

// offer sends s without blocking, discarding the oldest queued snapshot
// when the subscriber is behind.
func offer(ch chan session.Snapshot, s session.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe registers a live snapshot feed. The current snapshot is
// delivered first.
func (t *Tracker) Subscribe() (int, <-chan session.Snapshot) {
	ch := make(chan session.Snapshot, subscriberBuffer)

	t.subMu.Lock()
	defer t.subMu.Unlock()

	t.mu.RLock()
	ch <- t.snap.Session.Clone()
	t.mu.RUnlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a feed. Unknown ids are ignored.
func (t *Tracker) Unsubscribe(id int) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of live feeds.
func (t *Tracker) Subscribers() int {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	return len(t.subs)
}

// RecordSession counts a finished session and keeps it for display.
func (t *Tracker) RecordSession(p *logic.SessionPayload) {
	t.mu.Lock()
	t.snap.Completed++
	t.snap.LastSession = p
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Session = s.Session.Clone()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
