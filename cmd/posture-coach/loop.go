package main

import (
	"context"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/posture-coach/internal/logic"
	"github.com/sweeney/posture-coach/internal/mqtt"
	"github.com/sweeney/posture-coach/internal/session"
	"github.com/sweeney/posture-coach/internal/status"
)

// persistTimeout bounds a single sink write.
const persistTimeout = 5 * time.Second

// sink stores finished sessions. *store.Store and mqtt.Sink implement it.
type sink interface {
	Persist(ctx context.Context, p *logic.SessionPayload) error
	Name() string
}

// loop owns the controller. Every session operation happens on the
// goroutine running run.
type loop struct {
	ctrl       *session.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	tracker    *status.Tracker
	sinks      []sink
	now        func() time.Time
}

func (l *loop) run(ctx context.Context, tick <-chan time.Time, commands <-chan mqtt.Command, sig <-chan os.Signal) error {
	remote := l.publisher.Commands()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			l.stop(ctx, signalName)
			l.refreshMQTT()
			event := mqtt.SystemEvent{
				Timestamp: l.now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case cmd := <-commands:
			l.handle(ctx, cmd, "http")

		case cmd, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			l.handle(ctx, cmd, "mqtt")

		case <-tick:
			id := l.ctrl.Snapshot().SessionID
			p, err := l.ctrl.Tick(ctx)
			if err != nil {
				log.Printf("session error: %v", err)
			}
			if id != "" && l.ctrl.State() == session.StateIdle {
				reason := "finished"
				if err != nil {
					reason = err.Error()
				}
				l.finish(ctx, id, p, reason)
			}
			l.refreshMQTT()
		}
	}
}

func (l *loop) handle(ctx context.Context, cmd mqtt.Command, via string) {
	log.Printf("command %s via %s", cmd, via)
	switch cmd {
	case mqtt.CommandStart:
		if l.ctrl.State() != session.StateIdle {
			return
		}
		if err := l.ctrl.Start(ctx); err != nil {
			l.system(mqtt.SystemEvent{Event: "SESSION_START_FAILED", Reason: err.Error()})
			return
		}
		l.system(mqtt.SystemEvent{Event: "SESSION_STARTED", SessionID: l.ctrl.Snapshot().SessionID, Reason: via})
	case mqtt.CommandStop:
		l.stop(ctx, via)
	}
}

// stop ends an active session, if any.
func (l *loop) stop(ctx context.Context, reason string) {
	id := l.ctrl.Snapshot().SessionID
	if id == "" {
		return
	}
	l.finish(ctx, id, l.ctrl.Stop(ctx), reason)
}

// finish persists a session payload to every sink. Sink failures are
// logged and do not stop the others.
func (l *loop) finish(ctx context.Context, id string, p *logic.SessionPayload, reason string) {
	if p != nil {
		for _, s := range l.sinks {
			pctx, cancel := context.WithTimeout(ctx, persistTimeout)
			if err := s.Persist(pctx, p); err != nil {
				log.Printf("persist to %s: %v", s.Name(), err)
			}
			cancel()
		}
		if l.tracker != nil {
			l.tracker.RecordSession(p)
		}
	} else {
		log.Printf("session %s recorded nothing", id)
	}
	l.system(mqtt.SystemEvent{Event: "SESSION_STOPPED", SessionID: id, Reason: reason})
}

func (l *loop) system(event mqtt.SystemEvent) {
	event.Timestamp = l.now()
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", event.Event, err)
	}
}

func (l *loop) refreshMQTT() {
	if l.tracker != nil && l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}
