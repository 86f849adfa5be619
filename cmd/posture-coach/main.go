// Command posture-coach watches a webcam for poor posture and eye strain,
// and publishes finished sessions to MQTT and a local SQLite store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/sweeney/posture-coach/internal/camera"
	"github.com/sweeney/posture-coach/internal/config"
	"github.com/sweeney/posture-coach/internal/detector"
	"github.com/sweeney/posture-coach/internal/gpio"
	"github.com/sweeney/posture-coach/internal/logic"
	"github.com/sweeney/posture-coach/internal/mqtt"
	"github.com/sweeney/posture-coach/internal/session"
	"github.com/sweeney/posture-coach/internal/status"
	"github.com/sweeney/posture-coach/internal/store"
	"github.com/sweeney/posture-coach/internal/web"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", ".env", "dotenv file (ignored if missing)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	mode := flag.String("detector", "", "Detector mode: python, grpc or replay (overrides config)")
	replay := flag.String("replay", "", "Replay a recording, print the session payload and exit")
	record := flag.String("record", "", "Record detector results to this file")
	serveDetector := flag.String("serve-detector", "", "Also serve the detector over gRPC on this address")
	autoStart := flag.Bool("start", false, "Start a session immediately")

	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["broker"] {
		cfg.MQTT.Broker = *broker
	}
	if set["http"] {
		cfg.HTTP.Addr = *httpAddr
	}
	if set["detector"] {
		cfg.Detector.Mode = *mode
	}
	if set["record"] {
		cfg.Detector.Record = *record
	}
	if *replay != "" {
		cfg.Detector.Mode = config.DetectorReplay
		cfg.Detector.Replay = *replay
		cfg.Camera.Source = config.CameraSynthetic
		if err := cfg.Validate(); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		if err := runReplay(context.Background(), cfg, os.Stdout); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *autoStart, *serveDetector); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, autoStart bool, serveDetector string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	detectors := detector.NewCache(detectorLoader(cfg))
	defer func() {
		if err := detectors.Close(); err != nil {
			log.Printf("detector close: %v", err)
		}
	}()

	var cue session.Cue = gpio.Silent{}
	if cfg.Buzzer.Enabled {
		buzzer, err := gpio.NewRealBuzzer(cfg.Buzzer.Pin, cfg.Buzzer.Pulse)
		if err != nil {
			return fmt.Errorf("init buzzer: %w", err)
		}
		defer buzzer.Close()
		cue = buzzer
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.Disabled{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		mq, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.Topics())
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer mq.Close()
		publisher = mq
		mqttStatus = mq
	}

	var sinks []sink
	var history web.History
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		sinks = append(sinks, st)
		history = st
	}
	if cfg.MQTT.Broker != "" {
		sinks = append(sinks, mqtt.Sink{Publisher: publisher})
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	ctrl := session.New(cfg.SessionOptions(), cameraSource(cfg), detectors, cue, tracker.Update, time.Now)

	startup := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "STARTUP",
		Config:    systemConfig(cfg),
		Retained:  true,
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	commands := make(chan mqtt.Command, 4)

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, history, commands)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	if serveDetector != "" {
		gs, err := serveLandmarks(ctx, serveDetector, detectors)
		if err != nil {
			return err
		}
		defer gs.GracefulStop()
	}

	log.Printf("started: detector=%s camera=%s device=%s broker=%q store=%q",
		cfg.Detector.Mode, cfg.Camera.Source, cfg.Device, cfg.MQTT.Broker, cfg.Store.Path)

	if autoStart {
		commands <- mqtt.CommandStart
	}

	ticker := time.NewTicker(cfg.FrameInterval())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		ctrl:       ctrl,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		sinks:      sinks,
		now:        time.Now,
	}
	return l.run(ctx, ticker.C, commands, sigCh)
}

func detectorLoader(cfg config.Config) detector.Loader {
	var load detector.Loader
	switch cfg.Detector.Mode {
	case config.DetectorGRPC:
		load = func(ctx context.Context) (detector.Detector, error) {
			return detector.DialRemote(cfg.Detector.Addr, cfg.Detector.Timeout)
		}
	case config.DetectorReplay:
		load = func(ctx context.Context) (detector.Detector, error) {
			return detector.LoadReplay(cfg.Detector.Replay)
		}
	default:
		load = func(ctx context.Context) (detector.Detector, error) {
			return detector.StartPython(ctx, detector.PythonConfig{
				Command: cfg.Detector.Command,
				Args:    cfg.Detector.Args,
				Timeout: cfg.Detector.Timeout,
			})
		}
	}
	if cfg.Detector.Record == "" {
		return load
	}
	return func(ctx context.Context) (detector.Detector, error) {
		d, err := load(ctx)
		if err != nil {
			return nil, err
		}
		rec, err := detector.NewRecorder(d, cfg.Detector.Record)
		if err != nil {
			if c, ok := d.(io.Closer); ok {
				c.Close()
			}
			return nil, err
		}
		log.Printf("recording detector results to %s", cfg.Detector.Record)
		return rec, nil
	}
}

func cameraSource(cfg config.Config) camera.Source {
	if cfg.Camera.Source == config.CameraSynthetic {
		return camera.SyntheticSource{Width: cfg.Camera.Width, Height: cfg.Camera.Height}
	}
	return camera.NewGstSource(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, cfg.Timing.FrameRate)
}

// serveLandmarks exposes the shared detector to other hosts. The detector
// is loaded up front; a lost worker is reloaded on the next request.
func serveLandmarks(ctx context.Context, addr string, detectors *detector.Cache) (*grpc.Server, error) {
	if _, err := detectors.Get(ctx); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	gs := grpc.NewServer()
	detector.RegisterLandmarkServer(gs, &detector.Service{Detector: detectors})
	go func() {
		if err := gs.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("landmark server error: %v", err)
		}
	}()
	log.Printf("landmark server listening on %s", addr)
	return gs, nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		CalibrationFrames: cfg.Thresholds.CalibrationFrames,
		SnapshotMs:        cfg.Timing.SnapshotInterval.Milliseconds(),
		CooldownMs:        cfg.Timing.AlertCooldown.Milliseconds(),
		SampleMs:          cfg.Thresholds.SampleInterval.Milliseconds(),
		Detector:          cfg.Detector.Mode,
		Device:            cfg.Device,
		Broker:            cfg.MQTT.Broker,
		HTTPPort:          cfg.HTTP.Addr,
	}
}

func systemConfig(cfg config.Config) *mqtt.SystemConfig {
	return &mqtt.SystemConfig{
		CalibrationFrames: cfg.Thresholds.CalibrationFrames,
		SnapshotMs:        cfg.Timing.SnapshotInterval.Milliseconds(),
		CooldownMs:        cfg.Timing.AlertCooldown.Milliseconds(),
		SampleMs:          cfg.Thresholds.SampleInterval.Milliseconds(),
		Detector:          cfg.Detector.Mode,
		Device:            cfg.Device,
		Broker:            cfg.MQTT.Broker,
	}
}

// runReplay feeds a recording through a session on the recording's own
// clock and prints the resulting payload as JSON.
func runReplay(ctx context.Context, cfg config.Config, w io.Writer) error {
	f, err := os.Open(cfg.Detector.Replay)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	entries, err := detector.ReadEntries(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}

	payload, err := replaySession(ctx, cfg.SessionOptions(), entries)
	if err != nil {
		return err
	}
	if payload == nil {
		return errors.New("recording produced no session data")
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// replaySession runs entries through a controller whose clock follows the
// recorded timestamps.
func replaySession(ctx context.Context, opts session.Options, entries []detector.Entry) (*logic.SessionPayload, error) {
	if len(entries) == 0 {
		return nil, errors.New("empty recording")
	}
	rp := detector.NewReplay(entries)
	w, h := rp.Size()

	clock := &manualClock{t: entries[0].At}
	ctrl := session.New(opts, camera.SyntheticSource{Width: w, Height: h},
		detector.NewCache(detector.Static(rp)), nil, nil, clock.Now)

	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}
	for i := 0; ; i++ {
		if i < len(entries) {
			clock.t = entries[i].At
		}
		p, err := ctrl.Tick(ctx)
		if err != nil {
			return p, err
		}
		if ctrl.State() == session.StateIdle {
			return p, nil
		}
	}
}

type manualClock struct {
	t time.Time
}

func (c *manualClock) Now() time.Time { return c.t }
