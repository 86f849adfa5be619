package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/posture-coach/internal/logic"
	"github.com/sweeney/posture-coach/internal/session"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     string                `json:"start_time"`
	Timestamp     string                `json:"timestamp"`
	MQTT          MQTTStatus            `json:"mqtt"`
	Session       session.Snapshot      `json:"session"`
	Completed     int                   `json:"completed_sessions"`
	LastSession   *logic.SessionPayload `json:"last_session,omitempty"`
	Config        ConfigJSON            `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CalibrationFrames int    `json:"calibration_frames"`
	SnapshotMs        int64  `json:"snapshot_ms"`
	CooldownMs        int64  `json:"cooldown_ms"`
	SampleMs          int64  `json:"sample_ms"`
	Detector          string `json:"detector"`
	Device            string `json:"device"`
	HTTPPort          string `json:"http_port"`
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Enabled:   snap.Config.Broker != "",
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
		},
		Session:     snap.Session,
		Completed:   snap.Completed,
		LastSession: snap.LastSession,
		Config: ConfigJSON{
			CalibrationFrames: snap.Config.CalibrationFrames,
			SnapshotMs:        snap.Config.SnapshotMs,
			CooldownMs:        snap.Config.CooldownMs,
			SampleMs:          snap.Config.SampleMs,
			Detector:          snap.Config.Detector,
			Device:            snap.Config.Device,
			HTTPPort:          snap.Config.HTTPPort,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatSessionJSON returns a single session snapshot as compact JSON, as
// sent on the live feed.
func FormatSessionJSON(s session.Snapshot) []byte {
	data, _ := json.Marshal(s)
	return data
}
