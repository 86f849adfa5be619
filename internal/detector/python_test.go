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

// pipeWorker connects a PythonWorker to an in-process fake that answers
// with reply for every request it reads.
func pipeWorker(t *testing.T, timeout time.Duration, reply func(workerRequest) workerResponse) (*PythonWorker, <-chan workerRequest) {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	seen := make(chan workerRequest, 16)

	go func() {
		defer respW.Close()
		for {
			var req workerRequest
			if err := readMessage(reqR, &req); err != nil {
				return
			}
			seen <- req
			if reply == nil {
				continue
			}
			if err := writeMessage(respW, reply(req)); err != nil {
				return
			}
		}
	}()

	w := newPythonWorker(reqW, respR, timeout)
	t.Cleanup(func() { w.Close() })
	return w, seen
}

func TestPythonWorkerRoundTrip(t *testing.T) {
	want := Result{Pose: testPose(0.3)}
	w, seen := pipeWorker(t, time.Second, func(workerRequest) workerResponse {
		return workerResponse{Result: want}
	})

	got, err := w.Detect(testFrame(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	req := <-seen
	assert.Equal(t, 640, req.Width)
	assert.Equal(t, 480, req.Height)
	assert.Equal(t, []byte{1, 2, 3}, req.FrameData)
}

func TestPythonWorkerTimestampsIncrease(t *testing.T) {
	w, seen := pipeWorker(t, time.Second, func(workerRequest) workerResponse {
		return workerResponse{}
	})

	at := time.Now()
	for i := 0; i < 3; i++ {
		_, err := w.Detect(testFrame(), at)
		require.NoError(t, err)
	}

	var last int64 = -1
	for i := 0; i < 3; i++ {
		req := <-seen
		assert.Greater(t, req.TimestampMS, last)
		last = req.TimestampMS
	}
}

func TestPythonWorkerReportedError(t *testing.T) {
	w, _ := pipeWorker(t, time.Second, func(workerRequest) workerResponse {
		return workerResponse{Error: "model not loaded"}
	})

	_, err := w.Detect(testFrame(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
	assert.False(t, errors.Is(err, ErrNoWorker), "a reported error leaves the worker usable")
}

func TestPythonWorkerTimeoutBreaksWorker(t *testing.T) {
	w, _ := pipeWorker(t, 50*time.Millisecond, nil)

	_, err := w.Detect(testFrame(), time.Now())
	require.ErrorIs(t, err, ErrNoWorker)

	_, err = w.Detect(testFrame(), time.Now())
	require.ErrorIs(t, err, ErrNoWorker, "worker stays broken")
}

func TestStartPythonWithoutCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := StartPython(ctx, PythonConfig{})
	assert.ErrorIs(t, err, ErrNoWorker)
}
