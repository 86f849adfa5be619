// Package gpio drives the piezo buzzer used for the posture alert cue.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Buzzer plays a short alert tone.
type Buzzer interface {
	// Beep starts a tone and returns without waiting for it to finish.
	Beep() error

	// Close silences the buzzer and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinBuzzer = 18
)

// DefaultPulse is how long a beep holds the line high.
const DefaultPulse = 200 * time.Millisecond
