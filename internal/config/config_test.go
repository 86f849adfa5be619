package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/posture-coach/internal/logic"
	"github.com/sweeney/posture-coach/internal/session"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, logic.DefaultThresholds(), cfg.LogicThresholds())
	assert.Equal(t, session.DefaultOptions(), cfg.SessionOptions())
	assert.Equal(t, "ergo/posture/control", cfg.Topics().Control)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoadWithoutFiles(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "posture.yaml", `
device: desk_cam
thresholds:
  calibration_frames: 45
  ear_threshold: 0.21
  blink_debounce: 250ms
  strain_time: 30m
timing:
  alert_cooldown: 10s
  frame_rate: 30
detector:
  mode: grpc
  addr: localhost:50051
mqtt:
  broker: tcp://10.0.0.2:1883
  topics:
    sessions: home/posture/sessions
store:
  path: ""
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "desk_cam", cfg.Device)
	assert.Equal(t, 45, cfg.Thresholds.CalibrationFrames)
	assert.InDelta(t, 0.21, cfg.Thresholds.EARThreshold, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Thresholds.BlinkDebounce)
	assert.Equal(t, 30*time.Minute, cfg.Thresholds.StrainTime)
	assert.Equal(t, 10*time.Second, cfg.Timing.AlertCooldown)
	assert.Equal(t, time.Second/30, cfg.FrameInterval())
	assert.Equal(t, DetectorGRPC, cfg.Detector.Mode)
	assert.Equal(t, "home/posture/sessions", cfg.Topics().Sessions)
	// Unset keys keep their defaults.
	assert.Equal(t, "ergo/posture/system", cfg.Topics().System)
	assert.InDelta(t, 0.10, cfg.Thresholds.NeckDrop, 1e-9)
	assert.Empty(t, cfg.Store.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "thresholds: [unclosed")
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "posture.yaml", "device: from_file\nhttp:\n  addr: \":9000\"\n")
	t.Setenv("POSTURE_DEVICE", "from_env")
	t.Setenv("POSTURE_ALERT_COOLDOWN", "3s")
	t.Setenv("POSTURE_BUZZER_ENABLED", "true")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Device)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.Timing.AlertCooldown)
	assert.True(t, cfg.Buzzer.Enabled)
}

func TestEnvFile(t *testing.T) {
	env := writeFile(t, ".env", "POSTURE_STORE_PATH=/var/lib/posture.db\nPOSTURE_CALIBRATION_FRAMES=60\n")
	// Variables already set win over the file.
	t.Setenv("POSTURE_CALIBRATION_FRAMES", "20")
	t.Cleanup(func() { os.Unsetenv("POSTURE_STORE_PATH") })

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/posture.db", cfg.Store.Path)
	assert.Equal(t, 20, cfg.Thresholds.CalibrationFrames)
}

func TestEnvFileMissingIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestEnvBadValue(t *testing.T) {
	t.Setenv("POSTURE_FRAME_RATE", "fast")
	_, err := Load("", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "POSTURE_FRAME_RATE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero calibration", func(c *Config) { c.Thresholds.CalibrationFrames = 0 }, "calibration_frames"},
		{"negative ear", func(c *Config) { c.Thresholds.EARThreshold = -1 }, "ear_threshold"},
		{"visibility above one", func(c *Config) { c.Thresholds.EarVisibility = 1.5 }, "ear_visibility"},
		{"zero cooldown", func(c *Config) { c.Timing.AlertCooldown = 0 }, "alert_cooldown"},
		{"zero frame rate", func(c *Config) { c.Timing.FrameRate = 0 }, "frame_rate"},
		{"unknown camera", func(c *Config) { c.Camera.Source = "usb" }, "camera source"},
		{"unknown detector", func(c *Config) { c.Detector.Mode = "onnx" }, "detector mode"},
		{"grpc without addr", func(c *Config) { c.Detector.Mode = DetectorGRPC }, "detector.addr"},
		{"replay without file", func(c *Config) { c.Detector.Mode = DetectorReplay }, "detector.replay"},
		{"replay and record", func(c *Config) {
			c.Detector.Mode = DetectorReplay
			c.Detector.Replay = "in.msgpack"
			c.Detector.Record = "out.msgpack"
		}, "record"},
		{"empty topic", func(c *Config) {
			c.MQTT.Broker = "tcp://localhost:1883"
			c.MQTT.Topics.Control = ""
		}, "mqtt topics"},
		{"buzzer without pulse", func(c *Config) {
			c.Buzzer.Enabled = true
			c.Buzzer.Pulse = 0
		}, "buzzer.pulse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.ClosureLimit = 0
	cfg.Thresholds.RollingMinutes = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closure_limit")
	assert.Contains(t, err.Error(), "rolling_minutes")
}
