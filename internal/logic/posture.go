package logic

import (
	"math"

	"github.com/sweeney/posture-coach/internal/geometry"
)

// tiltEpsilon keeps atan2 well-behaved when the two points are vertically aligned.
const tiltEpsilon = 1e-6

// Guidance explains why a pose frame could not be measured.
type Guidance int

const (
	GuidanceNone Guidance = iota
	GuidanceNeedFraming
	GuidanceTrackingLost
)

// ExtractGeometry measures one pose frame. pose holds normalized landmarks;
// width and height scale them to pixels. A frame with missing key landmarks
// returns GuidanceNeedFraming, one with low shoulder or ear confidence returns
// GuidanceTrackingLost.
func ExtractGeometry(pose []geometry.Landmark, width, height float64, th Thresholds) (FrameGeometry, Guidance) {
	need := []int{
		geometry.PoseLeftShoulder, geometry.PoseRightShoulder,
		geometry.PoseLeftEar, geometry.PoseRightEar,
		geometry.PoseLeftEye, geometry.PoseRightEye,
	}
	for _, idx := range need {
		if idx >= len(pose) {
			return FrameGeometry{}, GuidanceNeedFraming
		}
	}

	lShoulder, rShoulder := pose[geometry.PoseLeftShoulder], pose[geometry.PoseRightShoulder]
	lEar, rEar := pose[geometry.PoseLeftEar], pose[geometry.PoseRightEar]

	if lShoulder.Visibility <= th.ShoulderVisibility || rShoulder.Visibility <= th.ShoulderVisibility ||
		lEar.Visibility <= th.EarVisibility || rEar.Visibility <= th.EarVisibility {
		return FrameGeometry{}, GuidanceTrackingLost
	}

	ls := lShoulder.Scale(width, height)
	rs := rShoulder.Scale(width, height)
	le := lEar.Scale(width, height)
	re := rEar.Scale(width, height)
	lEye := pose[geometry.PoseLeftEye].Scale(width, height)
	rEye := pose[geometry.PoseRightEye].Scale(width, height)

	neckLeft := geometry.Angle(le, ls, geometry.Point{X: ls.X, Y: 0})
	neckRight := geometry.Angle(re, rs, geometry.Point{X: rs.X, Y: 0})

	g := FrameGeometry{
		ShoulderAngle: geometry.Angle(ls, rs, geometry.Point{X: rs.X, Y: 0}),
		NeckAngle:     (neckLeft + neckRight) / 2,
		ShoulderTilt:  geometry.DegreesFromSlope(rs.Y-ls.Y, rs.X-ls.X+tiltEpsilon),
		HeadRoll:      geometry.DegreesFromSlope(rEye.Y-lEye.Y, rEye.X-lEye.X+tiltEpsilon),
		NeckHeight:    math.Abs(geometry.Midpoint(le, re).Y - geometry.Midpoint(ls, rs).Y),
	}
	if !geometry.Finite(g.ShoulderAngle, g.NeckAngle, g.ShoulderTilt, g.HeadRoll, g.NeckHeight) {
		return FrameGeometry{}, GuidanceTrackingLost
	}
	return g, GuidanceNone
}

// PostureVerdict is the outcome of classifying one calibrated frame.
type PostureVerdict struct {
	Level           Level
	Status          string
	Alerts          []string
	NeckDropRatio   float64
	NeckDropPercent float64
	ShoulderTiltDeg float64
	HeadTiltDeg     float64
}

// ClassifyPosture compares a frame against the baseline. Percent and degree
// fields are unrounded; thresholds are applied to unrounded values.
func ClassifyPosture(g FrameGeometry, b Baseline, th Thresholds) PostureVerdict {
	var ratio float64
	if b.NeckHeight != 0 {
		ratio = geometry.Clamp((b.NeckHeight-g.NeckHeight)/b.NeckHeight, -0.5, 0.5)
	}
	shoulderDelta := g.ShoulderTilt - b.ShoulderTilt
	headDelta := g.HeadRoll - b.HeadRoll

	var alerts []string
	if ratio > th.NeckDropLimit {
		alerts = append(alerts, AlertNeckForward)
	}
	if math.Abs(shoulderDelta) > th.SideTiltDegrees {
		alerts = append(alerts, AlertShoulderUneven)
	}
	if math.Abs(headDelta) > th.HeadTiltDegrees {
		alerts = append(alerts, AlertHeadTilt)
	}

	v := PostureVerdict{
		Level:           LevelOK,
		Status:          StatusGood,
		Alerts:          []string{AlertMaintain},
		NeckDropRatio:   ratio,
		NeckDropPercent: ratio * 100,
		ShoulderTiltDeg: shoulderDelta,
		HeadTiltDeg:     headDelta,
	}
	if len(alerts) > 0 {
		v.Level = LevelAlert
		v.Status = StatusPoor
		v.Alerts = alerts
	}
	return v
}

// PostureMonitor routes pose frames through calibration and then
// classification, keeping the latest metrics.
type PostureMonitor struct {
	th      Thresholds
	cal     *Calibrator
	metrics PostureMetrics
}

// NewPostureMonitor returns a monitor in the calibrating state.
func NewPostureMonitor(th Thresholds) *PostureMonitor {
	return &PostureMonitor{
		th:      th,
		cal:     NewCalibrator(th.CalibrationFrames),
		metrics: InitialPosture(),
	}
}

// Update processes one pose frame (nil when the detector found no body) and
// returns the new metrics. classified is true only when the frame went
// through threshold classification against a baseline.
func (p *PostureMonitor) Update(pose []geometry.Landmark, width, height float64) (m PostureMetrics, classified bool) {
	var guidance Guidance
	var g FrameGeometry
	if pose == nil {
		guidance = GuidanceNeedFraming
	} else {
		g, guidance = ExtractGeometry(pose, width, height, p.th)
	}

	switch guidance {
	case GuidanceNeedFraming:
		p.guide(StatusNeedFraming, AlertFullyInFrame)
		return p.Metrics(), false
	case GuidanceTrackingLost:
		p.guide(StatusTrackingLost, AlertImproveLighting)
		return p.Metrics(), false
	}

	if p.cal.Baseline() == nil {
		res := p.cal.Observe(g)
		if !res.Accepted {
			p.guide(StatusTrackingLost, AlertImproveLighting)
			return p.Metrics(), false
		}
		if res.Completed {
			p.metrics.Calibrated = true
			p.metrics.CalibrationProgress = 1
			p.metrics.Status = StatusGood
			p.metrics.Level = LevelOK
			p.metrics.Alerts = []string{AlertMonitoring}
		} else {
			p.metrics.Calibrated = false
			p.metrics.CalibrationProgress = res.Progress
			p.metrics.Status = StatusCalibrating
			p.metrics.Level = LevelInfo
			p.metrics.Alerts = []string{AlertHoldSteady}
		}
		return p.Metrics(), false
	}

	v := ClassifyPosture(g, *p.cal.Baseline(), p.th)
	p.metrics = PostureMetrics{
		Calibrated:          true,
		CalibrationProgress: 1,
		Status:              v.Status,
		Level:               v.Level,
		NeckDropPercent:     geometry.Round1(v.NeckDropPercent),
		ShoulderTiltDeg:     geometry.Round1(v.ShoulderTiltDeg),
		HeadTiltDeg:         geometry.Round1(v.HeadTiltDeg),
		Alerts:              v.Alerts,
	}
	return p.Metrics(), true
}

// guide overwrites the status with framing guidance, keeping calibration
// progress and the last measured values.
func (p *PostureMonitor) guide(status, alert string) {
	p.metrics.Status = status
	p.metrics.Level = LevelInfo
	p.metrics.Alerts = []string{alert}
}

// Metrics returns a copy of the latest metrics.
func (p *PostureMonitor) Metrics() PostureMetrics {
	return p.metrics.Clone()
}

// Calibrated reports whether a baseline exists.
func (p *PostureMonitor) Calibrated() bool {
	return p.cal.Baseline() != nil
}

// Baseline returns a copy of the baseline, or nil while calibrating.
func (p *PostureMonitor) Baseline() *Baseline {
	return p.cal.Baseline()
}
