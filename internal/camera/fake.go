package camera

import (
	"context"
	"errors"
	"fmt"
)

// FakeSource is a test double that hands out FakeStreams.
type FakeSource struct {
	// OpenError, if set, will be returned by Open.
	OpenError error

	// PlayError, if set, is given to every opened stream.
	PlayError error

	// Width and Height of produced frames (default 1280x720).
	Width, Height int

	// NotReady makes streams report no frame until cleared.
	NotReady bool

	// Streams contains every stream that was opened.
	Streams []*FakeStream
}

// NewFakeSource creates a FakeSource producing 1280x720 frames.
func NewFakeSource() *FakeSource {
	return &FakeSource{Width: 1280, Height: 720}
}

// Open returns a new FakeStream.
func (f *FakeSource) Open(ctx context.Context) (Stream, error) {
	if f.OpenError != nil {
		return nil, f.OpenError
	}
	s := &FakeStream{
		source:    f,
		PlayError: f.PlayError,
		track:     &FakeTrack{id: fmt.Sprintf("fake-video-%d", len(f.Streams))},
	}
	f.Streams = append(f.Streams, s)
	return s, nil
}

// Last returns the most recently opened stream, or nil.
func (f *FakeSource) Last() *FakeStream {
	if len(f.Streams) == 0 {
		return nil
	}
	return f.Streams[len(f.Streams)-1]
}

// FakeStream records playback and hands out blank frames.
type FakeStream struct {
	source    *FakeSource
	track     *FakeTrack
	seq       uint64
	PlayError error
	Playing   bool
}

// Play marks the stream as playing.
func (s *FakeStream) Play(ctx context.Context) error {
	if s.PlayError != nil {
		return s.PlayError
	}
	s.Playing = true
	return nil
}

// Frame returns a blank frame once playing.
func (s *FakeStream) Frame() (Frame, bool) {
	if !s.Playing || s.track.Stopped || s.source.NotReady {
		return Frame{}, false
	}
	s.seq++
	return Frame{Seq: s.seq, Width: s.source.Width, Height: s.source.Height}, true
}

// Tracks returns the single video track.
func (s *FakeStream) Tracks() []Track {
	return []Track{s.track}
}

// Stopped reports whether the stream's track was stopped.
func (s *FakeStream) Stopped() bool {
	return s.track.Stopped
}

// FakeTrack records Stop calls.
type FakeTrack struct {
	id        string
	Stopped   bool
	StopCalls int
	StopError error
}

// ID returns the track id.
func (t *FakeTrack) ID() string { return t.id }

// Stop marks the track stopped.
func (t *FakeTrack) Stop() error {
	t.StopCalls++
	if t.StopError != nil {
		return t.StopError
	}
	t.Stopped = true
	return nil
}

// ErrPermissionDenied mimics a user refusing camera access.
var ErrPermissionDenied = errors.New("camera: permission denied")
