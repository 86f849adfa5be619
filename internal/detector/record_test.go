package detector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.msgpack")
	inner := &Fake{Results: []Result{
		{Pose: testPose(0.1)},
		{Pose: testPose(0.2), Face: testPose(0.3)},
		{},
	}}

	rec, err := NewRecorder(inner, path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := rec.Detect(testFrame(), testTime(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, rec.Count())
	require.NoError(t, rec.Close())
	assert.True(t, inner.Closed)

	replay, err := LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, 3, replay.Remaining())

	w, h := replay.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	r, err := replay.Detect(testFrame(), testTime(0))
	require.NoError(t, err)
	assert.Equal(t, testPose(0.1), r.Pose)

	r, err = replay.Detect(testFrame(), testTime(1))
	require.NoError(t, err)
	assert.Equal(t, testPose(0.3), r.Face)

	_, err = replay.Detect(testFrame(), testTime(2))
	require.NoError(t, err)
	_, err = replay.Detect(testFrame(), testTime(3))
	assert.ErrorIs(t, err, ErrReplayDone)
}

func TestRecorderSkipsFailedFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.msgpack")
	inner := &Fake{Err: ErrNoWorker}
	rec, err := NewRecorder(inner, path)
	require.NoError(t, err)

	_, err = rec.Detect(testFrame(), testTime(0))
	assert.ErrorIs(t, err, ErrNoWorker)
	require.NoError(t, rec.Close())

	replay, err := LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, 0, replay.Remaining())
}
