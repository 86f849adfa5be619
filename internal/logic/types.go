// Package logic contains the pure posture and eye-strain business logic.
// This package has NO external dependencies (no camera, detector, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Level is the severity of a posture reading.
type Level string

const (
	LevelInfo  Level = "info"
	LevelOK    Level = "ok"
	LevelAlert Level = "alert"
)

// Posture statuses and alert strings shown to the user.
const (
	StatusSitUpright   = "Sit upright to calibrate"
	StatusCalibrating  = "Calibrating upright baseline"
	StatusGood         = "Good Posture"
	StatusPoor         = "POOR POSTURE"
	StatusNeedFraming  = "Need better framing"
	StatusTrackingLost = "Tracking lost"

	AlertAlignInFrame    = "Align shoulders and ears in frame"
	AlertHoldSteady      = "Hold steady for 3 seconds"
	AlertMonitoring      = "Live monitoring enabled"
	AlertMaintain        = "Maintain upright posture"
	AlertFullyInFrame    = "Position upper body fully in frame"
	AlertImproveLighting = "Improve lighting or sit closer to camera"

	AlertNeckForward    = "Neck leaning forward"
	AlertShoulderUneven = "Shoulders uneven"
	AlertHeadTilt       = "Head tilt detected"
)

// Warning is an eye-strain warning.
type Warning string

const (
	WarningLowBlink     Warning = "LOW BLINK RATE"
	WarningTakeBreak    Warning = "TAKE A BREAK"
	WarningEyesStrained Warning = "EYES STRAINED"
)

// Thresholds holds every tunable constant of the pipeline.
type Thresholds struct {
	CalibrationFrames int

	NeckDropLimit      float64 // fraction of baseline neck height
	SideTiltDegrees    float64
	HeadTiltDegrees    float64
	ShoulderVisibility float64
	EarVisibility      float64

	EARThreshold   float64
	ClosureFactor  float64 // closure threshold = EARThreshold * ClosureFactor
	BlinkDebounce  time.Duration
	LowBlinkRate   float64 // blinks per minute
	RollingMinutes int
	StrainTime     time.Duration
	ClosureLimit   int

	PostureSampleInterval time.Duration
}

// DefaultThresholds returns the calibrated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CalibrationFrames:  30,
		NeckDropLimit:      0.10,
		SideTiltDegrees:    5,
		HeadTiltDegrees:    8,
		ShoulderVisibility: 0.4,
		EarVisibility:      0.3,

		EARThreshold:   0.23,
		ClosureFactor:  0.8,
		BlinkDebounce:  300 * time.Millisecond,
		LowBlinkRate:   10,
		RollingMinutes: 3,
		StrainTime:     20 * time.Minute,
		ClosureLimit:   50,

		PostureSampleInterval: time.Second,
	}
}

// FrameGeometry is the set of measurements derived from one pose frame.
type FrameGeometry struct {
	ShoulderAngle float64
	NeckAngle     float64
	ShoulderTilt  float64
	HeadRoll      float64
	NeckHeight    float64
}

// Baseline is the calibrated neutral posture. Immutable once created.
type Baseline struct {
	ShoulderAngle float64
	NeckAngle     float64
	ShoulderTilt  float64
	HeadRoll      float64
	NeckHeight    float64
}

// PostureMetrics is the latest posture reading.
type PostureMetrics struct {
	Calibrated          bool     `json:"calibrated"`
	CalibrationProgress float64  `json:"calibrationProgress"`
	Status              string   `json:"status"`
	Level               Level    `json:"level"`
	NeckDropPercent     float64  `json:"neckDropPercent"`
	ShoulderTiltDeg     float64  `json:"shoulderTiltDeg"`
	HeadTiltDeg         float64  `json:"headTiltDeg"`
	Alerts              []string `json:"alerts"`
}

// InitialPosture is the reading shown before the first frame.
func InitialPosture() PostureMetrics {
	return PostureMetrics{
		Status: StatusSitUpright,
		Level:  LevelInfo,
		Alerts: []string{AlertAlignInFrame},
	}
}

// Clone returns a copy that shares no slices with m.
func (m PostureMetrics) Clone() PostureMetrics {
	m.Alerts = append([]string(nil), m.Alerts...)
	return m
}

// EyeStrainMetrics is the latest eye-strain reading.
type EyeStrainMetrics struct {
	EAR                     *float64  `json:"ear"`
	BlinkCountCurrentMinute int       `json:"blinkCountCurrentMinute"`
	TotalBlinks             int       `json:"totalBlinks"`
	RecentBlinkAverage      float64   `json:"recentBlinkAverage"`
	Warnings                []Warning `json:"warnings"`
	SessionSeconds          float64   `json:"sessionSeconds"`
	ClosureEvents           int       `json:"closureEvents"`
}

// Clone returns a copy that shares no pointers or slices with m.
func (m EyeStrainMetrics) Clone() EyeStrainMetrics {
	if m.EAR != nil {
		v := *m.EAR
		m.EAR = &v
	}
	m.Warnings = append([]Warning(nil), m.Warnings...)
	return m
}

// Has reports whether warning w is present.
func (m EyeStrainMetrics) Has(w Warning) bool {
	for _, x := range m.Warnings {
		if x == w {
			return true
		}
	}
	return false
}
