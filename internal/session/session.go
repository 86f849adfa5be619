// Package session runs one monitoring session at a time: it owns the camera
// stream, feeds frames through the detector and classifiers, and hands a
// summary payload back when the session stops.
//
// A Controller is driven from a single goroutine (Start, Tick, Stop, Close).
// Snapshot and State may be called from any goroutine.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/posture-coach/internal/detector"
	"github.com/sweeney/posture-coach/internal/logic"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateCalibrating State = "calibrating"
	StateMonitoring  State = "monitoring"
)

// StartFailedMessage is the user-visible error for any setup failure.
const StartFailedMessage = "Unable to start camera session. Check permissions."

var (
	// ErrCameraUnavailable is returned by Start when the camera cannot be
	// opened or played.
	ErrCameraUnavailable = errors.New("session: camera unavailable")

	// ErrDetectorUnavailable is returned by Start when the landmark
	// detector cannot be loaded, and by Tick when it stops responding.
	ErrDetectorUnavailable = errors.New("session: detector unavailable")

	// ErrFrameFault is returned by Tick when processing a frame panicked.
	// The session has been stopped.
	ErrFrameFault = errors.New("session: frame processing fault")
)

// Options tunes a Controller.
type Options struct {
	Thresholds logic.Thresholds
	Device     string

	// SnapshotInterval throttles snapshot emission.
	SnapshotInterval time.Duration

	// AlertCooldown is the minimum gap between two alert cues.
	AlertCooldown time.Duration
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		Thresholds:       logic.DefaultThresholds(),
		Device:           logic.DefaultDevice,
		SnapshotInterval: 250 * time.Millisecond,
		AlertCooldown:    5 * time.Second,
	}
}

// Detectors hands out the shared landmark detector. *detector.Cache
// implements it. Invalidate is called with a detector that stopped
// answering so the next Get reloads it.
type Detectors interface {
	Get(ctx context.Context) (detector.Detector, error)
	Invalidate(d detector.Detector) error
}

// Cue plays the posture alert sound.
type Cue interface {
	Beep() error
}

// Snapshot is an immutable copy of the session as last emitted.
type Snapshot struct {
	SessionID         string                 `json:"sessionId,omitempty"`
	State             State                  `json:"state"`
	Active            bool                   `json:"active"`
	StartedAt         time.Time              `json:"startedAt"`
	DurationSeconds   float64                `json:"durationSeconds"`
	FormattedDuration string                 `json:"formattedDuration"`
	Posture           logic.PostureMetrics   `json:"posture"`
	Eye               logic.EyeStrainMetrics `json:"eye"`
	Error             string                 `json:"error,omitempty"`
	EmittedAt         time.Time              `json:"emittedAt"`
}

// Clone returns a copy sharing no slices or pointers with s.
func (s Snapshot) Clone() Snapshot {
	s.Posture = s.Posture.Clone()
	s.Eye = s.Eye.Clone()
	return s
}

// IdleSnapshot is what a controller reports before its first session.
func IdleSnapshot() Snapshot {
	return Snapshot{
		State:             StateIdle,
		FormattedDuration: "00:00",
		Posture:           logic.InitialPosture(),
	}
}
