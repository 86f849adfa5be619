package session

import (
	"context"
	"time"

	"github.com/sweeney/posture-coach/internal/camera"
	"github.com/sweeney/posture-coach/internal/detector"
	"github.com/sweeney/posture-coach/internal/geometry"
)

// testPose builds a 33-point pose with shoulders at y=0.6 and ears
// neckHeight above them.
func testPose(neckHeight float64) []geometry.Landmark {
	pose := make([]geometry.Landmark, geometry.PoseLandmarkCount)
	for i := range pose {
		pose[i] = geometry.Landmark{X: 0.5, Y: 0.5, Visibility: 0.9}
	}
	earY := 0.6 - neckHeight
	pose[geometry.PoseLeftShoulder] = geometry.Landmark{X: 0.4, Y: 0.6, Visibility: 0.9}
	pose[geometry.PoseRightShoulder] = geometry.Landmark{X: 0.6, Y: 0.6, Visibility: 0.9}
	pose[geometry.PoseLeftEar] = geometry.Landmark{X: 0.42, Y: earY, Visibility: 0.9}
	pose[geometry.PoseRightEar] = geometry.Landmark{X: 0.58, Y: earY, Visibility: 0.9}
	pose[geometry.PoseLeftEye] = geometry.Landmark{X: 0.46, Y: earY - 0.02, Visibility: 0.9}
	pose[geometry.PoseRightEye] = geometry.Landmark{X: 0.54, Y: earY - 0.02, Visibility: 0.9}
	return pose
}

// testFace builds a face mesh whose eyes both have the given EAR once
// scaled to a 1280x720 frame.
func testFace(ear float64) []geometry.Landmark {
	face := make([]geometry.Landmark, geometry.FaceLandmarkCount)
	place := func(indices [6]int, cx float64) {
		const w = 0.04
		h := ear * w * 1280 / 720
		pts := [6]geometry.Landmark{
			{X: cx - w/2, Y: 0.4},
			{X: cx - w/4, Y: 0.4 - h/2},
			{X: cx + w/4, Y: 0.4 - h/2},
			{X: cx + w/2, Y: 0.4},
			{X: cx + w/4, Y: 0.4 + h/2},
			{X: cx - w/4, Y: 0.4 + h/2},
		}
		for i, idx := range indices {
			face[idx] = pts[i]
		}
	}
	place(geometry.LeftEyeIndices, 0.45)
	place(geometry.RightEyeIndices, 0.55)
	return face
}

var (
	goodPose = testPose(0.10)
	badPose  = testPose(0.08)
	openEyes = testFace(0.30)
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeCue counts beeps.
type fakeCue struct {
	beeps []time.Time
	clock *fakeClock
}

func (f *fakeCue) Beep() error {
	f.beeps = append(f.beeps, f.clock.Now())
	return nil
}

// failingDetectors fails every load.
type failingDetectors struct {
	err error
}

func (f failingDetectors) Get(context.Context) (detector.Detector, error) {
	return nil, f.err
}

func (failingDetectors) Invalidate(detector.Detector) error { return nil }

// panicDetector panics on every frame.
type panicDetector struct{}

func (panicDetector) Detect(camera.Frame, time.Time) (detector.Result, error) {
	panic("landmark index out of range")
}

type harness struct {
	clock  *fakeClock
	source *camera.FakeSource
	det    *detector.Fake
	cue    *fakeCue
	emits  []Snapshot
	ctrl   *Controller
}

func newHarness() *harness {
	h := &harness{
		clock:  newFakeClock(),
		source: camera.NewFakeSource(),
		det:    &detector.Fake{},
	}
	h.cue = &fakeCue{clock: h.clock}
	h.ctrl = New(DefaultOptions(), h.source, detector.NewCache(detector.Static(h.det)), h.cue,
		func(s Snapshot) { h.emits = append(h.emits, s) }, h.clock.Now)
	return h
}

// frame advances the clock by step, scripts the detector and ticks once.
func (h *harness) frame(step time.Duration, pose, face []geometry.Landmark) error {
	h.clock.Advance(step)
	h.det.Set(detector.Result{Pose: pose, Face: face})
	_, err := h.ctrl.Tick(context.Background())
	return err
}

// calibrate feeds the 30 calibration frames.
func (h *harness) calibrate(step time.Duration) {
	for i := 0; i < 30; i++ {
		h.frame(step, goodPose, openEyes)
	}
}
