// Package camera provides video frame acquisition with hardware abstraction.
// The GStreamer implementation reads a V4L2 webcam (build tag gstreamer).
// The fake and synthetic implementations allow running without a camera.
package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Frame is one decoded video frame.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	// Data holds packed RGB pixels. It may be nil for sources that only
	// carry frame geometry (synthetic replay).
	Data []byte
}

// Track is one live capture track of a stream.
type Track interface {
	ID() string
	// Stop ends the track. Stopping twice is a no-op.
	Stop() error
}

// Stream is a live camera stream.
type Stream interface {
	// Play starts delivering frames.
	Play(ctx context.Context) error

	// Frame returns the most recent frame. ok is false when no decodable
	// frame is available yet; callers skip the tick.
	Frame() (frame Frame, ok bool)

	// Tracks lists the stream's capture tracks.
	Tracks() []Track
}

// Source acquires camera streams.
type Source interface {
	// Open acquires the camera. Returns an error if the device is missing
	// or access is denied.
	Open(ctx context.Context) (Stream, error)
}

// ErrNoDevice is returned when no camera is available.
var ErrNoDevice = errors.New("camera: no device")

// Release stops every track of s. It keeps going after a failure and
// returns all errors.
func Release(s Stream) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, tr := range s.Tracks() {
		if err := tr.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop track %s: %w", tr.ID(), err))
		}
	}
	return errors.Join(errs...)
}
