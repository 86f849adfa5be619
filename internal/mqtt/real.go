package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/posture-coach/internal/logic"
)

// outboxLimit bounds messages held while the broker is unreachable.
const outboxLimit = 100

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are queued and sent on reconnect.
type RealPublisher struct {
	client   paho.Client
	topics   Topics
	commands chan Command

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher connected to the given broker. The
// broker retains an OFFLINE event on the system topic if the connection
// drops uncleanly.
func NewRealPublisher(broker, clientID string, topics Topics) (*RealPublisher, error) {
	p := &RealPublisher{
		topics:   topics,
		commands: make(chan Command, 8),
		outbox:   newOutbox(outboxLimit),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs on every (re)connection: it resubscribes to the control
// topic and flushes the outbox.
func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")
	if p.topics.Control != "" {
		token := c.Subscribe(p.topics.Control, 1, p.onControl)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", p.topics.Control, token.Error())
		}
	}

	p.mu.Lock()
	pending := p.outbox.drain()
	p.mu.Unlock()
	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Printf("mqtt: replay to %s failed, requeueing", msg.topic)
			p.mu.Lock()
			p.outbox.add(msg)
			p.mu.Unlock()
		}
	}
	if len(pending) > 0 {
		log.Printf("mqtt: replayed %d queued messages", len(pending))
	}
}

func (p *RealPublisher) onControl(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("mqtt: ignoring control message: %v", err)
		return
	}
	select {
	case p.commands <- cmd:
	default:
		log.Printf("mqtt: command queue full, dropping %s", cmd)
	}
}

// publish sends now when connected and queues otherwise.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.add(pendingMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSession sends a finished session to the sessions topic.
func (p *RealPublisher) PublishSession(s *logic.SessionPayload) error {
	payload, err := FormatSessionPayload(s)
	if err != nil {
		return fmt.Errorf("format session payload: %w", err)
	}

	// QoS 1 (at-least-once): a session is only ever sent once
	return p.publish(p.topics.Sessions, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// Commands delivers control commands.
func (p *RealPublisher) Commands() <-chan Command {
	return p.commands
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Queued returns the number of messages waiting for a connection.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
