package camera

import (
	"context"
	"sync/atomic"
	"time"
)

// SyntheticSource produces pixel-less frames of a fixed size. It drives the
// loop when landmarks come from a recording rather than a real camera.
type SyntheticSource struct {
	Width, Height int
}

// Open returns a stream of blank frames.
func (s SyntheticSource) Open(ctx context.Context) (Stream, error) {
	return &syntheticStream{width: s.Width, height: s.Height, track: &syntheticTrack{}}, nil
}

type syntheticStream struct {
	width, height int
	seq           uint64
	playing       atomic.Bool
	track         *syntheticTrack
}

func (s *syntheticStream) Play(ctx context.Context) error {
	s.playing.Store(true)
	return nil
}

func (s *syntheticStream) Frame() (Frame, bool) {
	if !s.playing.Load() || s.track.stopped.Load() {
		return Frame{}, false
	}
	s.seq++
	return Frame{Seq: s.seq, Timestamp: time.Now(), Width: s.width, Height: s.height}, true
}

func (s *syntheticStream) Tracks() []Track {
	return []Track{s.track}
}

type syntheticTrack struct {
	stopped atomic.Bool
}

func (t *syntheticTrack) ID() string { return "synthetic" }

func (t *syntheticTrack) Stop() error {
	t.stopped.Store(true)
	return nil
}
