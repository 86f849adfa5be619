package logic

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func ear(v float64) *float64 { return &v }

func TestAggregatorRisingEdgeCounting(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(DefaultThresholds(), "")

	for i := 0; i < 10; i++ {
		d := time.Duration(i) * 100 * time.Millisecond
		a.Sample(FrameSample{
			Eye:     EyeStrainMetrics{EAR: ear(0.3), Warnings: []Warning{WarningLowBlink}},
			Elapsed: d,
			Now:     start.Add(d),
		})
	}

	p := a.Finalize(start, start.Add(time.Second))
	if p == nil || p.EyeSession == nil {
		t.Fatal("expected eye session")
	}
	if p.EyeSession.LowBlinkRateAlerts != 1 {
		t.Errorf("10 frames of one warning should count once, got %d", p.EyeSession.LowBlinkRateAlerts)
	}
}

func TestAggregatorCountsEachRisingEdge(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(DefaultThresholds(), "")

	pattern := []bool{true, true, false, true, false, false, true}
	for i, on := range pattern {
		var w []Warning
		if on {
			w = []Warning{WarningEyesStrained}
		}
		d := time.Duration(i) * time.Second
		a.Sample(FrameSample{Eye: EyeStrainMetrics{EAR: ear(0.3), Warnings: w}, Elapsed: d, Now: start.Add(d)})
	}

	p := a.Finalize(start, start.Add(10*time.Second))
	if p.EyeSession.EyesStrainedAlerts != 3 {
		t.Errorf("expected 3 rising edges, got %d", p.EyeSession.EyesStrainedAlerts)
	}
}

func TestAggregatorPostureSampling(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(DefaultThresholds(), "desk-cam")

	// Uncalibrated frames are never sampled
	a.Sample(FrameSample{Posture: PostureMetrics{Level: LevelInfo}, Now: start})

	// 30 fps for 3 seconds, bad during the second second
	for i := 0; i < 90; i++ {
		d := time.Duration(i) * time.Second / 30
		level := LevelOK
		if d >= time.Second && d < 2*time.Second {
			level = LevelAlert
		}
		a.Sample(FrameSample{Posture: PostureMetrics{Level: level}, Classified: true, Elapsed: d, Now: start.Add(d)})
	}

	if a.Samples() != 3 {
		t.Fatalf("expected 3 samples at 1 Hz, got %d", a.Samples())
	}

	p := a.Finalize(start, start.Add(3*time.Second))
	if p == nil || p.PostureSession == nil {
		t.Fatal("expected posture session")
	}
	want := &PostureSession{
		TimestampStart: start,
		TimestampEnd:   start.Add(3 * time.Second),
		PostureData:    "010",
		TotalFrames:    3,
		BadFrames:      1,
		BadRatio:       1.0 / 3,
		TriggerAlert:   false,
		Frequency:      1,
		Device:         "desk-cam",
	}
	if diff := cmp.Diff(want, p.PostureSession); diff != "" {
		t.Errorf("posture session mismatch (-want +got):\n%s", diff)
	}
	if p.EyeSession != nil {
		t.Errorf("no EAR or blinks sampled, expected no eye session, got %+v", p.EyeSession)
	}
}

func TestAggregatorFinalizeNothingToPersist(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(DefaultThresholds(), "")

	if p := a.Finalize(start, start.Add(time.Minute)); p != nil {
		t.Errorf("empty session should finalize to nil, got %+v", p)
	}

	// Eye data but zero duration
	a.Sample(FrameSample{Eye: EyeStrainMetrics{EAR: ear(0.3)}, Now: start})
	if p := a.Finalize(start, start); p != nil {
		t.Errorf("zero-duration session should finalize to nil, got %+v", p)
	}
}

func TestAggregatorEyeSessionWithoutEAR(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(DefaultThresholds(), "")

	a.Sample(FrameSample{Eye: EyeStrainMetrics{TotalBlinks: 4}, Elapsed: time.Minute, Now: start.Add(time.Minute)})
	p := a.Finalize(start, start.Add(2*time.Minute))
	if p == nil || p.EyeSession == nil {
		t.Fatal("blinks alone should qualify an eye session")
	}
	if p.EyeSession.AvgEAR != 0 {
		t.Errorf("avg EAR with no samples should be 0, got %v", p.EyeSession.AvgEAR)
	}
	if p.EyeSession.AvgBlinkRate != 2 {
		t.Errorf("expected 2 blinks/min, got %v", p.EyeSession.AvgBlinkRate)
	}
	if p.EyeSession.MaxSessionTimeWithoutBreak != 120 {
		t.Errorf("with no break alert the whole session counts, got %v", p.EyeSession.MaxSessionTimeWithoutBreak)
	}
}

func TestAggregatorTimeWithoutBreak(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAggregator(DefaultThresholds(), "")

	sample := func(at time.Duration, breakDue bool) {
		var w []Warning
		if breakDue {
			w = []Warning{WarningTakeBreak}
		}
		a.Sample(FrameSample{Eye: EyeStrainMetrics{EAR: ear(0.28), Warnings: w}, Elapsed: at, Now: start.Add(at)})
	}

	sample(10*time.Minute, false)
	sample(20*time.Minute, true)
	sample(21*time.Minute, true)
	sample(22*time.Minute, false)
	sample(50*time.Minute, true)

	p := a.Finalize(start, start.Add(55*time.Minute))
	e := p.EyeSession
	if e.TakeBreakAlerts != 2 || e.StrainAlerts != 2 {
		t.Errorf("expected 2 break and strain alerts, got %d/%d", e.TakeBreakAlerts, e.StrainAlerts)
	}
	// Gaps: 0->20 (1200s), 20->50 (1800s), tail 50->55 (300s)
	if e.MaxSessionTimeWithoutBreak != 1800 {
		t.Errorf("expected 1800s without break, got %v", e.MaxSessionTimeWithoutBreak)
	}
	if e.AvgEAR != 0.28 {
		t.Errorf("expected avg EAR 0.28, got %v", e.AvgEAR)
	}
}

func TestEncodeBits(t *testing.T) {
	if got := EncodeBits([]bool{true, false, false, true}); got != "1001" {
		t.Errorf("expected 1001, got %s", got)
	}
	if got := EncodeBits(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
