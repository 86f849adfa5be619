package detector

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheLoadsOnce(t *testing.T) {
	calls := 0
	fake := &Fake{}
	c := NewCache(func(context.Context) (Detector, error) {
		calls++
		return fake, nil
	})

	d1, err := c.Get(context.Background())
	require.NoError(t, err)
	d2, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, fake, d1)
	assert.Same(t, d1, d2)
	assert.Equal(t, 1, calls)
	assert.True(t, c.Loaded())
}

func TestCacheRetriesAfterFailure(t *testing.T) {
	calls := 0
	c := NewCache(func(context.Context) (Detector, error) {
		calls++
		if calls == 1 {
			return nil, ErrNoWorker
		}
		return &Fake{}, nil
	})

	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, ErrNoWorker)
	assert.False(t, c.Loaded())

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCacheCloseReleasesDetector(t *testing.T) {
	fake := &Fake{}
	c := NewCache(Static(fake))
	_, err := c.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.True(t, fake.Closed)
	assert.False(t, c.Loaded())
}

func TestCacheInvalidateReloads(t *testing.T) {
	var loaded []*Fake
	c := NewCache(func(context.Context) (Detector, error) {
		f := &Fake{}
		loaded = append(loaded, f)
		return f, nil
	})

	d1, err := c.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(&Fake{}), "a stale detector is ignored")
	assert.True(t, c.Loaded())

	require.NoError(t, c.Invalidate(d1))
	assert.False(t, c.Loaded())
	assert.True(t, loaded[0].Closed)

	d2, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, d1, d2)
	assert.Len(t, loaded, 2)
}

// deadWorker returns a PythonWorker whose process has already gone away.
func deadWorker() *PythonWorker {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	reqR.Close()
	respW.Close()
	return newPythonWorker(reqW, respR, 50*time.Millisecond)
}

func TestCacheDropsLostWorker(t *testing.T) {
	var workers []*PythonWorker
	c := NewCache(func(context.Context) (Detector, error) {
		w := deadWorker()
		workers = append(workers, w)
		return w, nil
	})

	_, err := c.Detect(testFrame(), time.Now())
	require.ErrorIs(t, err, ErrNoWorker)
	assert.False(t, c.Loaded(), "a lost worker must not stay cached")

	d, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, workers[0], d)
	assert.Len(t, workers, 2)
}

func TestCacheDetectLoadFailure(t *testing.T) {
	c := NewCache(func(context.Context) (Detector, error) {
		return nil, errors.New("python3: not found")
	})

	_, err := c.Detect(testFrame(), time.Now())
	require.ErrorIs(t, err, ErrNoWorker)
	assert.Contains(t, err.Error(), "python3: not found")
}

func TestFakeScript(t *testing.T) {
	a := Result{Pose: testPose(0.1)}
	b := Result{Pose: testPose(0.2)}
	f := &Fake{Results: []Result{a, b}}

	r, _ := f.Detect(testFrame(), testTime(0))
	assert.Equal(t, a, r)
	r, _ = f.Detect(testFrame(), testTime(1))
	assert.Equal(t, b, r)
	r, _ = f.Detect(testFrame(), testTime(2))
	assert.Equal(t, b, r, "last result repeats")
	assert.Equal(t, 3, f.CallCount())

	f.Fail(errors.New("boom"))
	_, err := f.Detect(testFrame(), testTime(3))
	assert.Error(t, err)

	f.Fail(nil)
	r, err = f.Detect(testFrame(), testTime(4))
	require.NoError(t, err)
	assert.Equal(t, b, r)
}
