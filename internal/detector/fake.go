package detector

import (
	"sync"
	"time"

	"github.com/sweeney/posture-coach/internal/camera"
)

// Fake is a scripted detector for tests. It returns Results in order and
// then repeats the last one. Err, when set, is returned instead.
type Fake struct {
	mu      sync.Mutex
	Results []Result
	Err     error
	Calls   []time.Time
	Closed  bool
}

// Detect returns the next scripted result.
func (f *Fake) Detect(frame camera.Frame, at time.Time) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, at)
	if f.Err != nil {
		return Result{}, f.Err
	}
	if len(f.Results) == 0 {
		return Result{}, nil
	}
	r := f.Results[0]
	if len(f.Results) > 1 {
		f.Results = f.Results[1:]
	}
	return r, nil
}

// Set replaces the script with a single repeating result.
func (f *Fake) Set(r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results = []Result{r}
}

// Fail makes every later Detect return err. A nil err clears it.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// CallCount returns how many frames were submitted.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Close records that the detector was released.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
