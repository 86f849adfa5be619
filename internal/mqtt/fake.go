package mqtt

import (
	"sync"

	"github.com/sweeney/posture-coach/internal/logic"
)

// FakePublisher records published sessions and events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Sessions contains all session payloads that were published.
	Sessions []*logic.SessionPayload

	// SessionPayloads contains the JSON that was published for sessions.
	SessionPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishSession.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	commands chan Command
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{commands: make(chan Command, 8)}
}

// PublishSession records the session.
func (f *FakePublisher) PublishSession(p *logic.SessionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatSessionPayload(p)
	if err != nil {
		return err
	}
	f.Sessions = append(f.Sessions, p)
	f.SessionPayloads = append(f.SessionPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Commands returns the channel fed by Send.
func (f *FakePublisher) Commands() <-chan Command {
	return f.commands
}

// Send simulates a control message arriving from the broker.
func (f *FakePublisher) Send(payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	f.commands <- cmd
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// EventNames returns the Event field of every recorded system event.
func (f *FakePublisher) EventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded sessions and events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions = nil
	f.SessionPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
