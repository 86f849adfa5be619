// Package mqtt publishes finished sessions and daemon lifecycle events, and
// receives start/stop commands, with an abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/posture-coach/internal/logic"
)

// Default topics. All are configurable.
const (
	TopicSessions = "ergo/posture/sessions"
	TopicSystem   = "ergo/posture/system"
	TopicControl  = "ergo/posture/control"
)

// Topics groups the topics a publisher uses.
type Topics struct {
	Sessions string
	System   string
	Control  string
}

// DefaultTopics returns the default topic set.
func DefaultTopics() Topics {
	return Topics{Sessions: TopicSessions, System: TopicSystem, Control: TopicControl}
}

// Publisher publishes sessions and events to MQTT.
type Publisher interface {
	// PublishSession sends a finished session to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishSession(p *logic.SessionPayload) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Commands delivers start/stop commands received on the control topic.
	Commands() <-chan Command

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Command is a session control command.
type Command string

const (
	CommandStart Command = "START"
	CommandStop  Command = "STOP"
)

// ParseCommand accepts a bare word ("start", " STOP\n") or a JSON object
// {"command": "START"}.
func ParseCommand(payload []byte) (Command, error) {
	word := strings.TrimSpace(string(payload))
	if strings.HasPrefix(word, "{") {
		var msg struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return "", fmt.Errorf("parse command: %w", err)
		}
		word = msg.Command
	}
	switch c := Command(strings.ToUpper(strings.TrimSpace(word))); c {
	case CommandStart, CommandStop:
		return c, nil
	default:
		return "", fmt.Errorf("unknown command %q", word)
	}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, session state).
type SystemEvent struct {
	Timestamp time.Time
	Event     string        // e.g., "STARTUP", "SHUTDOWN", "SESSION_STARTED", "SESSION_STOPPED", "SESSION_START_FAILED"
	Reason    string        // e.g., "SIGTERM", "SIGINT", "command", or the start failure
	SessionID string        // session events only
	Config    *SystemConfig // startup only
	Retained  bool          // Whether the message should be retained by the broker
}

// SystemConfig is the configuration reported on startup.
type SystemConfig struct {
	CalibrationFrames int    `json:"calibration_frames"`
	SnapshotMs        int64  `json:"snapshot_ms"`
	CooldownMs        int64  `json:"cooldown_ms"`
	SampleMs          int64  `json:"sample_ms"`
	Detector          string `json:"detector"`
	Device            string `json:"device"`
	Broker            string `json:"broker"`
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Config    *SystemConfig `json:"config,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			SessionID: event.SessionID,
			Config:    event.Config,
		},
	}
	return json.Marshal(payload)
}

// SessionMessage wraps a finished session on the sessions topic.
type SessionMessage struct {
	Session *logic.SessionPayload `json:"session"`
}

// FormatSessionPayload creates the JSON payload for a finished session.
func FormatSessionPayload(p *logic.SessionPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil session payload")
	}
	return json.Marshal(SessionMessage{Session: p})
}

// Sink adapts a Publisher to the persistence sink used by the daemon.
type Sink struct {
	Publisher Publisher
}

// Persist publishes the session.
func (s Sink) Persist(ctx context.Context, p *logic.SessionPayload) error {
	return s.Publisher.PublishSession(p)
}

// Name identifies the sink in logs.
func (s Sink) Name() string { return "mqtt" }

// Disabled is the Publisher used when no broker is configured. It accepts
// and drops everything and never delivers commands.
type Disabled struct{}

func (Disabled) PublishSession(*logic.SessionPayload) error { return nil }
func (Disabled) PublishSystem(SystemEvent) error            { return nil }
func (Disabled) Commands() <-chan Command                   { return nil }
func (Disabled) Close() error                               { return nil }
