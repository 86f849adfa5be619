//go:build gstreamer

package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstSource captures from a V4L2 webcam through GStreamer.
type GstSource struct {
	Device string // e.g. /dev/video0
	Width  int
	Height int
	FPS    int
}

// NewGstSource returns a source for the given V4L2 device.
func NewGstSource(device string, width, height, fps int) *GstSource {
	return &GstSource{Device: device, Width: width, Height: height, FPS: fps}
}

// Open builds the capture pipeline. The pipeline is not started until Play.
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGB) → appsink
func (s *GstSource) Open(ctx context.Context) (Stream, error) {
	gst.Init(nil)

	launch := fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1 ! appsink name=sink max-buffers=1 drop=true sync=false",
		s.Device, s.Width, s.Height, s.FPS,
	)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("%w: create pipeline for %s: %v", ErrNoDevice, s.Device, err)
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("find appsink: %w", err)
	}

	st := &gstStream{
		pipeline: pipeline,
		width:    s.Width,
		height:   s.Height,
	}
	st.track = &gstTrack{id: s.Device, stream: st}

	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: st.onSample,
	})
	return st, nil
}

type gstStream struct {
	pipeline *gst.Pipeline
	track    *gstTrack
	width    int
	height   int

	mu       sync.Mutex
	latest   Frame
	seq      uint64
	consumed uint64
}

func (s *gstStream) Play(ctx context.Context) error {
	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	return nil
}

// onSample copies the newest buffer; GStreamer reuses the memory.
func (s *gstStream) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	s.mu.Lock()
	s.seq++
	s.latest = Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Data:      frameData,
	}
	s.mu.Unlock()
	return gst.FlowOK
}

// Frame returns the newest frame not yet handed out.
func (s *gstStream) Frame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == 0 || s.seq == s.consumed {
		return Frame{}, false
	}
	s.consumed = s.seq
	return s.latest, true
}

func (s *gstStream) Tracks() []Track {
	return []Track{s.track}
}

type gstTrack struct {
	id      string
	stream  *gstStream
	once    sync.Once
	stopErr error
}

func (t *gstTrack) ID() string { return t.id }

func (t *gstTrack) Stop() error {
	t.once.Do(func() {
		if err := t.stream.pipeline.SetState(gst.StateNull); err != nil {
			t.stopErr = fmt.Errorf("stop pipeline: %w", err)
			return
		}
		log.Printf("camera: released %s", t.id)
	})
	return t.stopErr
}
