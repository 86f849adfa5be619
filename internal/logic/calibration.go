package logic

import "github.com/sweeney/posture-coach/internal/geometry"

// CalibrationResult reports calibration progress after one observation.
type CalibrationResult struct {
	// Accepted is false when the frame carried non-finite measurements and
	// did not consume a calibration slot.
	Accepted bool
	Progress float64
	// Baseline is set on the frame that completes calibration and on every
	// later call.
	Baseline *Baseline
	// Completed is true only on the frame that produced the baseline.
	Completed bool
}

// Calibrator accumulates the first N valid frames of a session into a
// Baseline.
type Calibrator struct {
	frames int
	target int

	shoulderAngles []float64
	neckAngles     []float64
	shoulderTilts  []float64
	headRolls      []float64

	baseline *Baseline
}

// NewCalibrator creates a calibrator that needs target frames.
func NewCalibrator(target int) *Calibrator {
	if target < 1 {
		target = 1
	}
	return &Calibrator{
		target:         target,
		shoulderAngles: make([]float64, 0, target),
		neckAngles:     make([]float64, 0, target),
		shoulderTilts:  make([]float64, 0, target),
		headRolls:      make([]float64, 0, target),
	}
}

// Observe feeds one frame's measurements. Once the baseline exists the
// calibrator is inert and only reports it.
func (c *Calibrator) Observe(g FrameGeometry) CalibrationResult {
	if c.baseline != nil {
		return CalibrationResult{Accepted: true, Progress: 1, Baseline: c.Baseline()}
	}
	if !geometry.Finite(g.ShoulderAngle, g.NeckAngle, g.ShoulderTilt, g.HeadRoll, g.NeckHeight) {
		return CalibrationResult{Progress: c.Progress()}
	}

	c.shoulderAngles = append(c.shoulderAngles, g.ShoulderAngle)
	c.neckAngles = append(c.neckAngles, g.NeckAngle)
	c.shoulderTilts = append(c.shoulderTilts, g.ShoulderTilt)
	c.headRolls = append(c.headRolls, g.HeadRoll)
	c.frames++

	if c.frames < c.target {
		return CalibrationResult{Accepted: true, Progress: c.Progress()}
	}

	// Neck height is taken from the completing frame, not averaged.
	c.baseline = &Baseline{
		ShoulderAngle: geometry.Mean(c.shoulderAngles),
		NeckAngle:     geometry.Mean(c.neckAngles),
		ShoulderTilt:  geometry.Mean(c.shoulderTilts),
		HeadRoll:      geometry.Mean(c.headRolls),
		NeckHeight:    g.NeckHeight,
	}
	return CalibrationResult{Accepted: true, Progress: 1, Baseline: c.Baseline(), Completed: true}
}

// Progress returns framesSeen/target in [0,1].
func (c *Calibrator) Progress() float64 {
	if c.baseline != nil {
		return 1
	}
	return float64(c.frames) / float64(c.target)
}

// FramesSeen returns the number of accepted calibration frames.
func (c *Calibrator) FramesSeen() int {
	return c.frames
}

// Baseline returns a copy of the baseline, or nil while calibrating.
func (c *Calibrator) Baseline() *Baseline {
	if c.baseline == nil {
		return nil
	}
	b := *c.baseline
	return &b
}
