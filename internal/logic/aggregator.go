package logic

import (
	"math"
	"time"
)

// Aggregator accumulates session statistics frame by frame.
type Aggregator struct {
	th     Thresholds
	device string

	// posture
	bits      []bool
	badFrames int
	sample    Gate

	// eye
	earSum             float64
	earCount           int
	totalBlinks        int
	closureEvents      int
	lowBlinkAlerts     int
	takeBreakAlerts    int
	eyesStrainedAlerts int
	strainAlerts       int
	warningState       map[Warning]bool
	lastBreak          time.Duration
	hasBreak           bool
	maxWithoutBreak    time.Duration
}

// NewAggregator returns an empty aggregator. An empty device falls back to
// DefaultDevice.
func NewAggregator(th Thresholds, device string) *Aggregator {
	if device == "" {
		device = DefaultDevice
	}
	return &Aggregator{
		th:           th,
		device:       device,
		sample:       NewGate(th.PostureSampleInterval),
		warningState: make(map[Warning]bool),
	}
}

// FrameSample is everything the aggregator needs from one processed frame.
type FrameSample struct {
	Posture PostureMetrics
	// Classified is true when Posture came from threshold classification
	// against a baseline.
	Classified bool
	Eye        EyeStrainMetrics
	Elapsed    time.Duration
	Now        time.Time
}

// Sample folds one frame into the session statistics.
func (a *Aggregator) Sample(s FrameSample) {
	if s.Classified && a.sample.TryFire(s.Now) {
		bad := s.Posture.Level == LevelAlert
		a.bits = append(a.bits, bad)
		if bad {
			a.badFrames++
		}
	}

	if s.Eye.EAR != nil {
		a.earSum += *s.Eye.EAR
		a.earCount++
	}
	a.totalBlinks = s.Eye.TotalBlinks
	a.closureEvents = s.Eye.ClosureEvents

	if a.rising(WarningLowBlink, s.Eye) {
		a.lowBlinkAlerts++
	}
	if a.rising(WarningEyesStrained, s.Eye) {
		a.eyesStrainedAlerts++
	}
	if a.rising(WarningTakeBreak, s.Eye) {
		a.takeBreakAlerts++
		a.strainAlerts++
		if gap := a.gapSinceBreak(s.Elapsed); gap > a.maxWithoutBreak {
			a.maxWithoutBreak = gap
		}
		a.lastBreak = s.Elapsed
		a.hasBreak = true
	}
}

// rising updates the last-seen presence of w and reports a false->true edge.
func (a *Aggregator) rising(w Warning, eye EyeStrainMetrics) bool {
	present := eye.Has(w)
	was := a.warningState[w]
	a.warningState[w] = present
	return present && !was
}

// gapSinceBreak measures from the last break alert, or from session start
// when there has been none.
func (a *Aggregator) gapSinceBreak(at time.Duration) time.Duration {
	if a.hasBreak {
		return at - a.lastBreak
	}
	return at
}

// Finalize builds the session payload. It returns nil when nothing
// qualifies for persistence.
func (a *Aggregator) Finalize(start, end time.Time) *SessionPayload {
	duration := end.Sub(start)
	payload := &SessionPayload{}

	if n := len(a.bits); n > 0 {
		ratio := float64(a.badFrames) / float64(n)
		payload.PostureSession = &PostureSession{
			TimestampStart: start,
			TimestampEnd:   end,
			PostureData:    EncodeBits(a.bits),
			TotalFrames:    n,
			BadFrames:      a.badFrames,
			BadRatio:       ratio,
			TriggerAlert:   ratio >= TriggerAlertRatio,
			Frequency:      a.th.PostureSampleInterval.Seconds(),
			Device:         a.device,
		}
	}

	if duration > 0 && (a.totalBlinks > 0 || a.earCount > 0) {
		maxGap := a.maxWithoutBreak
		if tail := a.gapSinceBreak(duration); tail > maxGap {
			maxGap = tail
		}

		var avgEAR float64
		if a.earCount > 0 {
			avgEAR = a.earSum / float64(a.earCount)
		}
		payload.EyeSession = &EyeSession{
			TimestampStart:             start,
			Duration:                   duration.Seconds(),
			Device:                     a.device,
			AvgBlinkRate:               round2(float64(a.totalBlinks) / duration.Minutes()),
			TotalBlinks:                a.totalBlinks,
			AvgEAR:                     round2(avgEAR),
			EyeClosureEvents:           a.closureEvents,
			StrainAlerts:               a.strainAlerts,
			LowBlinkRateAlerts:         a.lowBlinkAlerts,
			TakeBreakAlerts:            a.takeBreakAlerts,
			EyesStrainedAlerts:         a.eyesStrainedAlerts,
			MaxSessionTimeWithoutBreak: maxGap.Seconds(),
		}
	}

	if payload.PostureSession == nil && payload.EyeSession == nil {
		return nil
	}
	return payload
}

// Samples returns the number of posture bits recorded so far.
func (a *Aggregator) Samples() int {
	return len(a.bits)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
