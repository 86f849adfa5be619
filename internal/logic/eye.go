package logic

import (
	"time"

	"github.com/sweeney/posture-coach/internal/geometry"
)

// EyeState is the mutable per-session blink bookkeeping.
// Invariant: len(BlinkHistory) == CurrentMinuteIndex-1.
type EyeState struct {
	BlinkHistory         []int
	CurrentMinuteIndex   int
	BlinkCountThisMinute int
	ClosureEvents        int
}

// EyeTracker detects blinks and closures and derives eye-strain warnings.
type EyeTracker struct {
	th    Thresholds
	state EyeState
	blink Gate
}

// NewEyeTracker returns a tracker at the start of a session.
func NewEyeTracker(th Thresholds) *EyeTracker {
	return &EyeTracker{
		th:    th,
		state: EyeState{CurrentMinuteIndex: 1},
		blink: NewGate(th.BlinkDebounce),
	}
}

// EyeEAR returns the mean EAR of both eyes from a face mesh, or false when
// the mesh does not contain the eye contours.
func EyeEAR(face []geometry.Landmark, width, height float64) (float64, bool) {
	left := geometry.EyePoints(face, geometry.LeftEyeIndices, width, height)
	right := geometry.EyePoints(face, geometry.RightEyeIndices, width, height)
	if left == nil || right == nil {
		return 0, false
	}
	ear := (geometry.EAR(left) + geometry.EAR(right)) / 2
	if !geometry.Finite(ear) {
		return 0, false
	}
	return ear, true
}

// Process handles one frame. face is nil when no face was detected; elapsed
// is the time since session start and now is a monotonic reading used for
// the blink debounce.
func (e *EyeTracker) Process(face []geometry.Landmark, width, height float64, elapsed time.Duration, now time.Time) EyeStrainMetrics {
	var earValue *float64
	if face != nil {
		if ear, ok := EyeEAR(face, width, height); ok {
			earValue = &ear
			e.observeEAR(ear, now)
		}
	}

	minuteElapsed := int(elapsed / time.Minute)
	for minuteElapsed >= e.state.CurrentMinuteIndex {
		e.state.BlinkHistory = append(e.state.BlinkHistory, e.state.BlinkCountThisMinute)
		e.state.BlinkCountThisMinute = 0
		e.state.CurrentMinuteIndex++
	}

	recentAvg := e.recentAverage()

	var warnings []Warning
	if recentAvg < e.th.LowBlinkRate && minuteElapsed > 0 {
		warnings = append(warnings, WarningLowBlink)
	}
	if elapsed > e.th.StrainTime {
		warnings = append(warnings, WarningTakeBreak)
	}
	if e.state.ClosureEvents > e.th.ClosureLimit {
		warnings = append(warnings, WarningEyesStrained)
	}

	return EyeStrainMetrics{
		EAR:                     earValue,
		BlinkCountCurrentMinute: e.state.BlinkCountThisMinute,
		TotalBlinks:             e.TotalBlinks(),
		RecentBlinkAverage:      geometry.Round1(recentAvg),
		Warnings:                warnings,
		SessionSeconds:          elapsed.Seconds(),
		ClosureEvents:           e.state.ClosureEvents,
	}
}

func (e *EyeTracker) observeEAR(ear float64, now time.Time) {
	if ear >= e.th.EARThreshold {
		return
	}
	if e.blink.TryFire(now) {
		e.state.BlinkCountThisMinute++
	}
	if ear < e.th.EARThreshold*e.th.ClosureFactor {
		e.state.ClosureEvents++
	}
}

// recentAverage is the mean of the last RollingMinutes completed minutes,
// or the in-progress count before the first minute completes.
func (e *EyeTracker) recentAverage() float64 {
	h := e.state.BlinkHistory
	if len(h) == 0 {
		return float64(e.state.BlinkCountThisMinute)
	}
	if len(h) > e.th.RollingMinutes {
		h = h[len(h)-e.th.RollingMinutes:]
	}
	sum := 0
	for _, v := range h {
		sum += v
	}
	return float64(sum) / float64(len(h))
}

// TotalBlinks returns completed-minute blinks plus the in-progress minute.
func (e *EyeTracker) TotalBlinks() int {
	total := e.state.BlinkCountThisMinute
	for _, v := range e.state.BlinkHistory {
		total += v
	}
	return total
}

// State returns a copy of the bookkeeping state.
func (e *EyeTracker) State() EyeState {
	s := e.state
	s.BlinkHistory = append([]int(nil), e.state.BlinkHistory...)
	return s
}
