// Package detector turns camera frames into pose and face landmarks.
//
// Inference runs out of process: either a local Python worker speaking
// length-prefixed msgpack over stdio, or a remote gRPC service. The Cache
// loads one detector lazily and shares it across sessions.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/sweeney/posture-coach/internal/camera"
	"github.com/sweeney/posture-coach/internal/geometry"
)

// Result holds the landmarks found in one frame. Either list may be empty
// when nothing was detected.
type Result struct {
	Pose []geometry.Landmark `msgpack:"pose"`
	Face []geometry.Landmark `msgpack:"face"`
}

// Detector finds landmarks in a frame. at must be non-decreasing across
// calls on the same detector.
type Detector interface {
	Detect(frame camera.Frame, at time.Time) (Result, error)
}

// Loader creates a detector. It may block while models load.
type Loader func(ctx context.Context) (Detector, error)

// ErrNoWorker is returned when the inference backend cannot be reached.
var ErrNoWorker = errors.New("detector: worker unavailable")

// Cache memoizes a single Loader call. A failed load is not cached, so the
// next Get retries.
type Cache struct {
	load Loader

	mu       sync.Mutex
	detector Detector
}

// NewCache creates a cache around load.
func NewCache(load Loader) *Cache {
	return &Cache{load: load}
}

// Get returns the shared detector, loading it on first use.
func (c *Cache) Get(ctx context.Context) (Detector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detector != nil {
		return c.detector, nil
	}

	d, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	log.Printf("detector: loaded %T", d)
	c.detector = d
	return d, nil
}

// Loaded reports whether a detector is cached.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector != nil
}

// Detect runs the cached detector, loading it first if needed. A detector
// that reports ErrNoWorker is dropped so the next call reloads it.
func (c *Cache) Detect(frame camera.Frame, at time.Time) (Result, error) {
	d, err := c.Get(context.Background())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNoWorker, err)
	}
	res, err := d.Detect(frame, at)
	if errors.Is(err, ErrNoWorker) {
		if cerr := c.Invalidate(d); cerr != nil {
			log.Printf("detector: close lost detector: %v", cerr)
		}
	}
	return res, err
}

// Invalidate drops d from the cache and closes it, so the next Get loads a
// fresh detector. It does nothing if d is no longer the cached detector.
func (c *Cache) Invalidate(d Detector) error {
	c.mu.Lock()
	if d == nil || c.detector != d {
		c.mu.Unlock()
		return nil
	}
	c.detector = nil
	c.mu.Unlock()

	log.Printf("detector: dropped %T", d)
	if closer, ok := d.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Close releases the cached detector if it holds resources.
func (c *Cache) Close() error {
	c.mu.Lock()
	d := c.detector
	c.detector = nil
	c.mu.Unlock()

	if closer, ok := d.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Static returns a Loader that always yields d.
func Static(d Detector) Loader {
	return func(context.Context) (Detector, error) { return d, nil }
}
