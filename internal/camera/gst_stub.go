//go:build !gstreamer

package camera

import (
	"context"
	"errors"
)

// GstSource is not available without the gstreamer build tag.
type GstSource struct {
	Device string
	Width  int
	Height int
	FPS    int
}

// NewGstSource returns a source that always fails to open.
func NewGstSource(device string, width, height, fps int) *GstSource {
	return &GstSource{Device: device, Width: width, Height: height, FPS: fps}
}

// Open returns ErrNoDevice.
func (s *GstSource) Open(ctx context.Context) (Stream, error) {
	return nil, errors.Join(ErrNoDevice, errors.New("camera: built without gstreamer support"))
}
