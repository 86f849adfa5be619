package logic

import "time"

// DefaultDevice is reported when no device name is configured.
const DefaultDevice = "local_webcam"

// TriggerAlertRatio is the bad-frame ratio at which a posture session is
// flagged for follow-up.
const TriggerAlertRatio = 0.5

// PostureSession is the finalized posture log of one session.
type PostureSession struct {
	TimestampStart time.Time `json:"timestampStart"`
	TimestampEnd   time.Time `json:"timestampEnd"`
	// PostureData is one '0'/'1' character per sampling tick, '1' = bad.
	PostureData  string  `json:"postureData"`
	TotalFrames  int     `json:"totalFrames"`
	BadFrames    int     `json:"badFrames"`
	BadRatio     float64 `json:"badRatio"`
	TriggerAlert bool    `json:"triggerAlert"`
	Frequency    float64 `json:"frequency"` // seconds per sample
	Device       string  `json:"device"`
}

// EyeSession is the finalized eye-strain summary of one session.
type EyeSession struct {
	TimestampStart             time.Time `json:"timestampStart"`
	Duration                   float64   `json:"duration"` // seconds
	Device                     string    `json:"device"`
	AvgBlinkRate               float64   `json:"avgBlinkRate"` // blinks per minute
	TotalBlinks                int       `json:"totalBlinks"`
	AvgEAR                     float64   `json:"avgEAR"`
	EyeClosureEvents           int       `json:"eyeClosureEvents"`
	StrainAlerts               int       `json:"strainAlerts"`
	LowBlinkRateAlerts         int       `json:"lowBlinkRateAlerts"`
	TakeBreakAlerts            int       `json:"takeBreakAlerts"`
	EyesStrainedAlerts         int       `json:"eyesStrainedAlerts"`
	MaxSessionTimeWithoutBreak float64   `json:"maxSessionTimeWithoutBreak"` // seconds
}

// SessionPayload is handed to persistence sinks once per completed session.
// At least one of the two parts is non-nil.
type SessionPayload struct {
	SessionID      string          `json:"sessionId"`
	PostureSession *PostureSession `json:"postureSession"`
	EyeSession     *EyeSession     `json:"eyeSession"`
}

// EncodeBits renders a posture log as '0'/'1' characters.
func EncodeBits(bits []bool) string {
	b := make([]byte, len(bits))
	for i, bad := range bits {
		if bad {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}
