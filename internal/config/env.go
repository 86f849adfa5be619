package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POSTURE_"

type override struct {
	name  string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var overrides = []override{
	{"DEVICE", str(func(c *Config) *string { return &c.Device })},

	{"CALIBRATION_FRAMES", integer(func(c *Config) *int { return &c.Thresholds.CalibrationFrames })},
	{"NECK_DROP", float(func(c *Config) *float64 { return &c.Thresholds.NeckDrop })},
	{"SIDE_TILT_DEG", float(func(c *Config) *float64 { return &c.Thresholds.SideTiltDegrees })},
	{"HEAD_TILT_DEG", float(func(c *Config) *float64 { return &c.Thresholds.HeadTiltDegrees })},
	{"EAR_THRESHOLD", float(func(c *Config) *float64 { return &c.Thresholds.EARThreshold })},
	{"LOW_BLINK_RATE", float(func(c *Config) *float64 { return &c.Thresholds.LowBlinkRate })},
	{"STRAIN_TIME", duration(func(c *Config) *time.Duration { return &c.Thresholds.StrainTime })},
	{"SAMPLE_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Thresholds.SampleInterval })},

	{"SNAPSHOT_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Timing.SnapshotInterval })},
	{"ALERT_COOLDOWN", duration(func(c *Config) *time.Duration { return &c.Timing.AlertCooldown })},
	{"FRAME_RATE", integer(func(c *Config) *int { return &c.Timing.FrameRate })},

	{"CAMERA_SOURCE", str(func(c *Config) *string { return &c.Camera.Source })},
	{"CAMERA_DEVICE", str(func(c *Config) *string { return &c.Camera.Device })},

	{"DETECTOR_MODE", str(func(c *Config) *string { return &c.Detector.Mode })},
	{"DETECTOR_COMMAND", str(func(c *Config) *string { return &c.Detector.Command })},
	{"DETECTOR_ADDR", str(func(c *Config) *string { return &c.Detector.Addr })},
	{"DETECTOR_REPLAY", str(func(c *Config) *string { return &c.Detector.Replay })},
	{"DETECTOR_RECORD", str(func(c *Config) *string { return &c.Detector.Record })},
	{"DETECTOR_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Detector.Timeout })},

	{"MQTT_BROKER", str(func(c *Config) *string { return &c.MQTT.Broker })},
	{"MQTT_CLIENT_ID", str(func(c *Config) *string { return &c.MQTT.ClientID })},

	{"STORE_PATH", str(func(c *Config) *string { return &c.Store.Path })},
	{"HTTP_ADDR", str(func(c *Config) *string { return &c.HTTP.Addr })},

	{"BUZZER_ENABLED", boolean(func(c *Config) *bool { return &c.Buzzer.Enabled })},
	{"BUZZER_PIN", integer(func(c *Config) *int { return &c.Buzzer.Pin })},
}

// applyEnv applies POSTURE_* variables found by lookup.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		key := EnvPrefix + o.name
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := o.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
		}
	}
	return nil
}
