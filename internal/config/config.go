// Package config loads posture-coach settings from defaults, an optional
// YAML file, an optional .env file and POSTURE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/posture-coach/internal/gpio"
	"github.com/sweeney/posture-coach/internal/logic"
	"github.com/sweeney/posture-coach/internal/mqtt"
	"github.com/sweeney/posture-coach/internal/session"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Detector modes.
const (
	DetectorPython = "python"
	DetectorGRPC   = "grpc"
	DetectorReplay = "replay"
)

// Camera sources.
const (
	CameraGStreamer = "gstreamer"
	CameraSynthetic = "synthetic"
)

// Config is the complete daemon configuration.
type Config struct {
	Device     string           `yaml:"device"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Timing     TimingConfig     `yaml:"timing"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Store      StoreConfig      `yaml:"store"`
	HTTP       HTTPConfig       `yaml:"http"`
	Buzzer     BuzzerConfig     `yaml:"buzzer"`
}

// ThresholdsConfig holds the posture and eye classifier tuning.
type ThresholdsConfig struct {
	CalibrationFrames  int     `yaml:"calibration_frames"`
	NeckDrop           float64 `yaml:"neck_drop"`
	SideTiltDegrees    float64 `yaml:"side_tilt_deg"`
	HeadTiltDegrees    float64 `yaml:"head_tilt_deg"`
	ShoulderVisibility float64 `yaml:"shoulder_visibility"`
	EarVisibility      float64 `yaml:"ear_visibility"`

	EARThreshold   float64       `yaml:"ear_threshold"`
	ClosureFactor  float64       `yaml:"closure_factor"`
	BlinkDebounce  time.Duration `yaml:"blink_debounce"`
	LowBlinkRate   float64       `yaml:"low_blink_rate"`
	RollingMinutes int           `yaml:"rolling_minutes"`
	StrainTime     time.Duration `yaml:"strain_time"`
	ClosureLimit   int           `yaml:"closure_limit"`

	SampleInterval time.Duration `yaml:"sample_interval"`
}

// TimingConfig holds loop timings.
type TimingConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	AlertCooldown    time.Duration `yaml:"alert_cooldown"`
	FrameRate        int           `yaml:"frame_rate"`
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	Source string `yaml:"source"` // gstreamer, synthetic
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// DetectorConfig selects the landmark detector.
type DetectorConfig struct {
	Mode    string        `yaml:"mode"` // python, grpc, replay
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Addr    string        `yaml:"addr"`
	Replay  string        `yaml:"replay"`
	Record  string        `yaml:"record"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConfig holds broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	Topics   MQTTTopics `yaml:"topics"`
}

// MQTTTopics names the three topics.
type MQTTTopics struct {
	Sessions string `yaml:"sessions"`
	System   string `yaml:"system"`
	Control  string `yaml:"control"`
}

// StoreConfig holds the SQLite path. Empty disables the store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// BuzzerConfig drives the alert cue.
type BuzzerConfig struct {
	Enabled bool          `yaml:"enabled"`
	Pin     int           `yaml:"pin"`
	Pulse   time.Duration `yaml:"pulse"`
}

// Default returns the built-in configuration.
func Default() Config {
	th := logic.DefaultThresholds()
	opts := session.DefaultOptions()
	topics := mqtt.DefaultTopics()
	return Config{
		Device: logic.DefaultDevice,
		Thresholds: ThresholdsConfig{
			CalibrationFrames:  th.CalibrationFrames,
			NeckDrop:           th.NeckDropLimit,
			SideTiltDegrees:    th.SideTiltDegrees,
			HeadTiltDegrees:    th.HeadTiltDegrees,
			ShoulderVisibility: th.ShoulderVisibility,
			EarVisibility:      th.EarVisibility,
			EARThreshold:       th.EARThreshold,
			ClosureFactor:      th.ClosureFactor,
			BlinkDebounce:      th.BlinkDebounce,
			LowBlinkRate:       th.LowBlinkRate,
			RollingMinutes:     th.RollingMinutes,
			StrainTime:         th.StrainTime,
			ClosureLimit:       th.ClosureLimit,
			SampleInterval:     th.PostureSampleInterval,
		},
		Timing: TimingConfig{
			SnapshotInterval: opts.SnapshotInterval,
			AlertCooldown:    opts.AlertCooldown,
			FrameRate:        15,
		},
		Camera: CameraConfig{
			Source: CameraGStreamer,
			Device: "/dev/video0",
			Width:  640,
			Height: 480,
		},
		Detector: DetectorConfig{
			Mode:    DetectorPython,
			Command: "python3",
			Args:    []string{"landmarks_worker.py"},
			Timeout: 2 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID: "posture-coach",
			Topics: MQTTTopics{
				Sessions: topics.Sessions,
				System:   topics.System,
				Control:  topics.Control,
			},
		},
		Store: StoreConfig{Path: "posture.db"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Buzzer: BuzzerConfig{
			Pin:   gpio.PinBuzzer,
			Pulse: gpio.DefaultPulse,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the .env file envFile (skipped when empty or missing) and the
// process environment, then validates it.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if envFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field, each wrapping ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	t := c.Thresholds
	if t.CalibrationFrames <= 0 {
		bad("calibration_frames must be positive, got %d", t.CalibrationFrames)
	}
	for name, v := range map[string]float64{
		"neck_drop":      t.NeckDrop,
		"side_tilt_deg":  t.SideTiltDegrees,
		"head_tilt_deg":  t.HeadTiltDegrees,
		"ear_threshold":  t.EARThreshold,
		"closure_factor": t.ClosureFactor,
		"low_blink_rate": t.LowBlinkRate,
	} {
		if v <= 0 {
			bad("%s must be positive, got %v", name, v)
		}
	}
	if t.ShoulderVisibility < 0 || t.ShoulderVisibility > 1 {
		bad("shoulder_visibility must be within [0,1], got %v", t.ShoulderVisibility)
	}
	if t.EarVisibility < 0 || t.EarVisibility > 1 {
		bad("ear_visibility must be within [0,1], got %v", t.EarVisibility)
	}
	if t.RollingMinutes <= 0 {
		bad("rolling_minutes must be positive, got %d", t.RollingMinutes)
	}
	if t.ClosureLimit <= 0 {
		bad("closure_limit must be positive, got %d", t.ClosureLimit)
	}
	for name, d := range map[string]time.Duration{
		"blink_debounce":    t.BlinkDebounce,
		"strain_time":       t.StrainTime,
		"sample_interval":   t.SampleInterval,
		"snapshot_interval": c.Timing.SnapshotInterval,
		"alert_cooldown":    c.Timing.AlertCooldown,
		"detector.timeout":  c.Detector.Timeout,
	} {
		if d <= 0 {
			bad("%s must be positive, got %v", name, d)
		}
	}
	if c.Timing.FrameRate <= 0 {
		bad("frame_rate must be positive, got %d", c.Timing.FrameRate)
	}

	if !slices.Contains([]string{CameraGStreamer, CameraSynthetic}, c.Camera.Source) {
		bad("unknown camera source %q", c.Camera.Source)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		bad("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}

	switch c.Detector.Mode {
	case DetectorPython:
		if c.Detector.Command == "" {
			bad("detector.command is required in python mode")
		}
	case DetectorGRPC:
		if c.Detector.Addr == "" {
			bad("detector.addr is required in grpc mode")
		}
	case DetectorReplay:
		if c.Detector.Replay == "" {
			bad("detector.replay is required in replay mode")
		}
		if c.Detector.Record != "" {
			bad("detector.record cannot be combined with replay mode")
		}
	default:
		bad("unknown detector mode %q", c.Detector.Mode)
	}

	if c.MQTT.Broker != "" {
		m := c.MQTT.Topics
		if m.Sessions == "" || m.System == "" || m.Control == "" {
			bad("mqtt topics must all be set")
		}
	}

	if c.Buzzer.Enabled {
		if c.Buzzer.Pin < 0 {
			bad("buzzer.pin must not be negative, got %d", c.Buzzer.Pin)
		}
		if c.Buzzer.Pulse <= 0 {
			bad("buzzer.pulse must be positive, got %v", c.Buzzer.Pulse)
		}
	}

	return errors.Join(errs...)
}

// LogicThresholds converts the classifier settings.
func (c Config) LogicThresholds() logic.Thresholds {
	t := c.Thresholds
	return logic.Thresholds{
		CalibrationFrames:     t.CalibrationFrames,
		NeckDropLimit:         t.NeckDrop,
		SideTiltDegrees:       t.SideTiltDegrees,
		HeadTiltDegrees:       t.HeadTiltDegrees,
		ShoulderVisibility:    t.ShoulderVisibility,
		EarVisibility:         t.EarVisibility,
		EARThreshold:          t.EARThreshold,
		ClosureFactor:         t.ClosureFactor,
		BlinkDebounce:         t.BlinkDebounce,
		LowBlinkRate:          t.LowBlinkRate,
		RollingMinutes:        t.RollingMinutes,
		StrainTime:            t.StrainTime,
		ClosureLimit:          t.ClosureLimit,
		PostureSampleInterval: t.SampleInterval,
	}
}

// SessionOptions returns the controller options.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		Thresholds:       c.LogicThresholds(),
		Device:           c.Device,
		SnapshotInterval: c.Timing.SnapshotInterval,
		AlertCooldown:    c.Timing.AlertCooldown,
	}
}

// Topics returns the MQTT topic set.
func (c Config) Topics() mqtt.Topics {
	return mqtt.Topics{
		Sessions: c.MQTT.Topics.Sessions,
		System:   c.MQTT.Topics.System,
		Control:  c.MQTT.Topics.Control,
	}
}

// FrameInterval is the tick period for the frame loop.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Timing.FrameRate)
}
