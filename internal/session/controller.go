package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/posture-coach/internal/camera"
	"github.com/sweeney/posture-coach/internal/detector"
	"github.com/sweeney/posture-coach/internal/geometry"
	"github.com/sweeney/posture-coach/internal/logic"
)

// Controller is the session state machine.
type Controller struct {
	opts      Options
	source    camera.Source
	detectors Detectors
	cue       Cue
	emit      func(Snapshot)
	now       func() time.Time

	// Owned by the driving goroutine.
	id       string
	state    State
	stream   camera.Stream
	det      detector.Detector
	start    time.Time
	posture  *logic.PostureMonitor
	eye      *logic.EyeTracker
	agg      *logic.Aggregator
	emitGate logic.Gate
	cueGate  logic.Gate
	eyeLast  logic.EyeStrainMetrics
	lastErr  string

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates an idle controller. cue and emit may be nil. now defaults to
// time.Now; it must return readings carrying a monotonic clock in
// production since throttles and debounces subtract them.
func New(opts Options, source camera.Source, detectors Detectors, cue Cue, emit func(Snapshot), now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	c := &Controller{
		opts:      opts,
		source:    source,
		detectors: detectors,
		cue:       cue,
		emit:      emit,
		now:       now,
		state:     StateIdle,
		snapshot:  IdleSnapshot(),
	}
	c.reset()
	return c
}

// reset discards all per-session state.
func (c *Controller) reset() {
	c.id = ""
	c.start = time.Time{}
	c.posture = logic.NewPostureMonitor(c.opts.Thresholds)
	c.eye = logic.NewEyeTracker(c.opts.Thresholds)
	c.agg = logic.NewAggregator(c.opts.Thresholds, c.opts.Device)
	c.emitGate = logic.NewGate(c.opts.SnapshotInterval)
	c.cueGate = logic.NewGate(c.opts.AlertCooldown)
	c.eyeLast = logic.EyeStrainMetrics{}
}

// Start begins a session. Starting an active session does nothing. On
// failure the controller stays idle and no camera track is left open.
func (c *Controller) Start(ctx context.Context) error {
	if c.state != StateIdle {
		return nil
	}

	det, err := c.detectors.Get(ctx)
	if err != nil {
		return c.startFailed(fmt.Errorf("%w: %v", ErrDetectorUnavailable, err))
	}

	stream, err := c.source.Open(ctx)
	if err != nil {
		return c.startFailed(fmt.Errorf("%w: %v", ErrCameraUnavailable, err))
	}
	if err := stream.Play(ctx); err != nil {
		if rerr := camera.Release(stream); rerr != nil {
			log.Printf("session: release after failed play: %v", rerr)
		}
		return c.startFailed(fmt.Errorf("%w: play: %v", ErrCameraUnavailable, err))
	}

	c.reset()
	c.id = uuid.NewString()
	c.stream = stream
	c.det = det
	c.start = c.now()
	c.state = StateCalibrating
	c.lastErr = ""

	log.Printf("session: started %s", c.id)
	c.publish(c.start, true)
	return nil
}

func (c *Controller) startFailed(err error) error {
	log.Printf("session: start failed: %v", err)
	c.lastErr = StartFailedMessage
	c.publish(c.now(), true)
	return err
}

// Tick processes the current camera frame, if one is ready. It returns a
// non-nil payload only when the tick ended the session (detector lost,
// recording exhausted, or a fault).
func (c *Controller) Tick(ctx context.Context) (payload *logic.SessionPayload, err error) {
	if c.state == StateIdle {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: frame fault: %v\n%s", r, debug.Stack())
			payload = c.Stop(ctx)
			err = fmt.Errorf("%w: %v", ErrFrameFault, r)
		}
	}()

	frame, ok := c.stream.Frame()
	if !ok {
		return nil, nil
	}

	now := c.now()
	res, derr := c.det.Detect(frame, now)
	switch {
	case errors.Is(derr, detector.ErrReplayDone):
		log.Printf("session: recording finished")
		return c.Stop(ctx), nil
	case errors.Is(derr, detector.ErrNoWorker):
		log.Printf("session: detector lost: %v", derr)
		if ierr := c.detectors.Invalidate(c.det); ierr != nil {
			log.Printf("session: close lost detector: %v", ierr)
		}
		p := c.Stop(ctx)
		c.lastErr = StartFailedMessage
		c.publish(c.now(), true)
		return p, fmt.Errorf("%w: %v", ErrDetectorUnavailable, derr)
	case derr != nil:
		// A single bad frame is treated as an empty detection.
		res = detector.Result{}
	}

	c.process(res, frame, now)
	return nil, nil
}

func (c *Controller) process(res detector.Result, frame camera.Frame, now time.Time) {
	w, h := float64(frame.Width), float64(frame.Height)
	elapsed := now.Sub(c.start)

	pm, classified := c.posture.Update(nonEmpty(res.Pose), w, h)
	em := c.eye.Process(nonEmpty(res.Face), w, h, elapsed, now)
	c.eyeLast = em

	c.agg.Sample(logic.FrameSample{
		Posture:    pm,
		Classified: classified,
		Eye:        em,
		Elapsed:    elapsed,
		Now:        now,
	})

	if c.state == StateCalibrating && c.posture.Calibrated() {
		c.state = StateMonitoring
		log.Printf("session: %s calibrated", c.id)
		c.publish(now, true)
		return
	}

	if pm.Level == logic.LevelAlert && c.cue != nil && c.cueGate.TryFire(now) {
		if err := c.cue.Beep(); err != nil {
			log.Printf("session: alert cue: %v", err)
		}
	}

	c.publish(now, false)
}

func nonEmpty(l []geometry.Landmark) []geometry.Landmark {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Stop ends the active session and returns its payload, which is nil when
// nothing was recorded. Stopping an idle controller does nothing.
func (c *Controller) Stop(ctx context.Context) *logic.SessionPayload {
	if c.state == StateIdle {
		return nil
	}

	end := c.now()
	payload := c.agg.Finalize(c.start, end)
	if payload != nil {
		payload.SessionID = c.id
	}
	log.Printf("session: stopped %s after %s (%d posture samples)", c.id, end.Sub(c.start).Round(time.Second), c.agg.Samples())

	c.teardown()
	c.publish(end, true)
	return payload
}

// Close releases the camera without producing a payload. Use Stop to keep
// the session's data.
func (c *Controller) Close() error {
	if c.state == StateIdle {
		return nil
	}
	log.Printf("session: closing %s without saving", c.id)
	err := camera.Release(c.stream)
	c.stream = nil
	c.det = nil
	c.state = StateIdle
	c.reset()
	c.publish(c.now(), true)
	return err
}

func (c *Controller) teardown() {
	if err := camera.Release(c.stream); err != nil {
		log.Printf("session: release camera: %v", err)
	}
	c.stream = nil
	c.det = nil
	c.state = StateIdle
	c.reset()
}

// publish copies the live state into the shared snapshot. Unless force is
// set the emission is throttled.
func (c *Controller) publish(now time.Time, force bool) {
	if force {
		c.emitGate.Mark(now)
	} else if !c.emitGate.TryFire(now) {
		return
	}

	s := Snapshot{
		SessionID: c.id,
		State:     c.state,
		Active:    c.state != StateIdle,
		StartedAt: c.start,
		Posture:   c.posture.Metrics(),
		Error:     c.lastErr,
		EmittedAt: now,
	}
	if s.Active {
		s.DurationSeconds = now.Sub(c.start).Seconds()
		s.Eye = c.eyeLast
	}
	s.FormattedDuration = geometry.FormatDuration(s.DurationSeconds)

	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()

	if c.emit != nil {
		c.emit(s.Clone())
	}
}

// Snapshot returns the last emitted snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Clone()
}

// State returns the state as of the last emitted snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.State
}
