package gpio

import "sync"

// FakeBuzzer is a test double that counts beeps.
type FakeBuzzer struct {
	mu sync.Mutex

	// Beeps counts successful Beep calls.
	Beeps int

	// Closed tracks if Close was called
	Closed bool

	// BeepError, if set, will be returned by Beep()
	BeepError error
}

// NewFakeBuzzer creates a silent FakeBuzzer.
func NewFakeBuzzer() *FakeBuzzer {
	return &FakeBuzzer{}
}

// Beep records a beep.
func (f *FakeBuzzer) Beep() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BeepError != nil {
		return f.BeepError
	}
	f.Beeps++
	return nil
}

// Count returns the number of recorded beeps.
func (f *FakeBuzzer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Beeps
}

// Close marks the buzzer as closed.
func (f *FakeBuzzer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears the beep count and closed flag.
func (f *FakeBuzzer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Beeps = 0
	f.Closed = false
}

// Silent is a Buzzer that does nothing, used when no buzzer is wired.
type Silent struct{}

// Beep does nothing.
func (Silent) Beep() error { return nil }

// Close does nothing.
func (Silent) Close() error { return nil }
