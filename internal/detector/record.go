package detector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sweeney/posture-coach/internal/camera"
)

// Entry is one recorded detection.
type Entry struct {
	At     time.Time `msgpack:"at"`
	Width  int       `msgpack:"w"`
	Height int       `msgpack:"h"`
	Result
}

// Recorder passes frames to an inner detector and appends every result to
// a msgpack stream file.
type Recorder struct {
	inner Detector

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *msgpack.Encoder
	n    int
}

// NewRecorder creates (or truncates) path and records inner's output.
func NewRecorder(inner Detector, path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &Recorder{inner: inner, file: f, buf: buf, enc: msgpack.NewEncoder(buf)}, nil
}

// Detect runs the inner detector and records a successful result.
func (r *Recorder) Detect(frame camera.Frame, at time.Time) (Result, error) {
	res, err := r.inner.Detect(frame, at)
	if err != nil {
		return res, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return res, nil
	}
	entry := Entry{At: at, Width: frame.Width, Height: frame.Height, Result: res}
	if err := r.enc.Encode(&entry); err != nil {
		return res, fmt.Errorf("record frame: %w", err)
	}
	r.n++
	return res, nil
}

// Count returns the number of recorded entries.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close flushes the recording and closes the inner detector if it can be
// closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	var errs []error
	if r.enc != nil {
		errs = append(errs, r.buf.Flush(), r.file.Close())
		r.enc = nil
	}
	r.mu.Unlock()

	if closer, ok := r.inner.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// ErrReplayDone is returned once every recorded entry has been replayed.
var ErrReplayDone = errors.New("detector: replay exhausted")

// Replay serves recorded results in order, ignoring frame contents.
type Replay struct {
	mu      sync.Mutex
	entries []Entry
	next    int
}

// LoadReplay reads a recording written by Recorder.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("read recording %s: %w", path, err)
	}
	return NewReplay(entries), nil
}

// ReadEntries decodes a msgpack entry stream until EOF.
func ReadEntries(r io.Reader) ([]Entry, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var entries []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, err
		}
		entries = append(entries, e)
	}
}

// NewReplay serves entries in order.
func NewReplay(entries []Entry) *Replay {
	return &Replay{entries: entries}
}

// Detect returns the next recorded result.
func (r *Replay) Detect(frame camera.Frame, at time.Time) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.entries) {
		return Result{}, ErrReplayDone
	}
	e := r.entries[r.next]
	r.next++
	return e.Result, nil
}

// Size returns the frame size of the recording, or zeros when empty.
func (r *Replay) Size() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return 0, 0
	}
	return r.entries[0].Width, r.entries[0].Height
}

// Remaining returns the number of entries not yet replayed.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) - r.next
}
