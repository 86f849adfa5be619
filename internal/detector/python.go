package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/posture-coach/internal/camera"
)

// PythonConfig describes how to launch the landmark worker.
type PythonConfig struct {
	// Command is the worker executable, typically a wrapper script that
	// activates a virtualenv.
	Command string
	Args    []string

	// Timeout bounds one request/response round trip.
	Timeout time.Duration
}

type workerRequest struct {
	FrameData   []byte `msgpack:"frame_data"`
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
	TimestampMS int64  `msgpack:"timestamp_ms"`
}

type workerResponse struct {
	Result
	Error string `msgpack:"error,omitempty"`
}

// PythonWorker runs landmark inference in a child process. Requests are
// serialized; one frame is in flight at a time.
type PythonWorker struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.Reader
	timeout time.Duration

	mu     sync.Mutex
	epoch  time.Time
	lastTS int64
	broken error

	done chan struct{}
}

// StartPython spawns the worker process. ctx bounds the process lifetime.
func StartPython(ctx context.Context, cfg PythonConfig) (*PythonWorker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: no worker command configured", ErrNoWorker)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrNoWorker, cfg.Command, err)
	}

	log.Printf("detector: landmark worker %s spawned (pid %d)", cfg.Command, cmd.Process.Pid)

	w := newPythonWorker(stdin, bufio.NewReader(stdout), cfg.Timeout)
	w.cmd = cmd
	go logStderr(stderr)
	go func() {
		err := cmd.Wait()
		if err != nil && ctx.Err() == nil {
			log.Printf("detector: landmark worker exited: %v", err)
		}
		close(w.done)
	}()
	return w, nil
}

func newPythonWorker(stdin io.WriteCloser, stdout io.Reader, timeout time.Duration) *PythonWorker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PythonWorker{
		stdin:   stdin,
		stdout:  stdout,
		timeout: timeout,
		epoch:   time.Now(),
		done:    make(chan struct{}),
	}
}

// Detect sends one frame and waits for its landmarks.
func (w *PythonWorker) Detect(frame camera.Frame, at time.Time) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return Result{}, w.broken
	}

	req := workerRequest{
		FrameData:   frame.Data,
		Width:       frame.Width,
		Height:      frame.Height,
		TimestampMS: w.timestamp(at),
	}

	type reply struct {
		resp workerResponse
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		var r reply
		if r.err = writeMessage(w.stdin, req); r.err == nil {
			r.err = readMessage(w.stdout, &r.resp)
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			w.broken = fmt.Errorf("%w: %v", ErrNoWorker, r.err)
			return Result{}, w.broken
		}
		if r.resp.Error != "" {
			return Result{}, fmt.Errorf("worker: %s", r.resp.Error)
		}
		return r.resp.Result, nil
	case <-time.After(w.timeout):
		// The stream is now out of step; nothing after this can be trusted.
		w.broken = fmt.Errorf("%w: response timeout after %s", ErrNoWorker, w.timeout)
		return Result{}, w.broken
	}
}

// timestamp maps at onto the worker's clock, strictly increasing.
func (w *PythonWorker) timestamp(at time.Time) int64 {
	ts := at.Sub(w.epoch).Milliseconds()
	if ts <= w.lastTS {
		ts = w.lastTS + 1
	}
	w.lastTS = ts
	return ts
}

// Close closes stdin and waits briefly for the process to exit before
// killing it.
func (w *PythonWorker) Close() error {
	err := w.stdin.Close()
	if w.cmd == nil {
		return err
	}
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		log.Printf("detector: landmark worker %d did not exit, killing", w.cmd.Process.Pid)
		if kerr := w.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			return kerr
		}
	}
	return err
}

// logStderr forwards worker log lines, mapping Python log levels onto slog.
func logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			slog.Error("landmark worker", "line", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			slog.Warn("landmark worker", "line", line)
		default:
			slog.Debug("landmark worker", "line", line)
		}
	}
}
