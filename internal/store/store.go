// Package store persists finished sessions to a local SQLite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sweeney/posture-coach/internal/logic"
)

// schema.sql creates the posture_sessions and eye_sessions tables.
//
//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed session sink.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Printf("store: opened %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name identifies the sink in logs.
func (s *Store) Name() string { return "sqlite" }

// Persist writes both parts of a session in one transaction. A nil payload
// is rejected.
func (s *Store) Persist(ctx context.Context, p *logic.SessionPayload) error {
	if p == nil {
		return errors.New("store: nil session payload")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if ps := p.PostureSession; ps != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posture_sessions (id, session_id, timestamp_start, timestamp_end, posture_data,
				total_frames, bad_frames, bad_ratio, trigger_alert, frequency, device)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), p.SessionID, formatTime(ps.TimestampStart), formatTime(ps.TimestampEnd), ps.PostureData,
			ps.TotalFrames, ps.BadFrames, ps.BadRatio, ps.TriggerAlert, ps.Frequency, ps.Device,
		)
		if err != nil {
			return fmt.Errorf("insert posture session: %w", err)
		}
	}

	if es := p.EyeSession; es != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO eye_sessions (id, session_id, timestamp_start, duration, device, avg_blink_rate,
				total_blinks, avg_ear, eye_closure_events, strain_alerts, low_blink_rate_alerts,
				take_break_alerts, eyes_strained_alerts, max_session_time_without_break)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), p.SessionID, formatTime(es.TimestampStart), es.Duration, es.Device, es.AvgBlinkRate,
			es.TotalBlinks, es.AvgEAR, es.EyeClosureEvents, es.StrainAlerts, es.LowBlinkRateAlerts,
			es.TakeBreakAlerts, es.EyesStrainedAlerts, es.MaxSessionTimeWithoutBreak,
		)
		if err != nil {
			return fmt.Errorf("insert eye session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PostureRecord is a stored posture session.
type PostureRecord struct {
	ID        string
	SessionID string
	logic.PostureSession
}

// EyeRecord is a stored eye session.
type EyeRecord struct {
	ID        string
	SessionID string
	logic.EyeSession
}

// Recent returns up to n posture sessions, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]PostureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp_start, timestamp_end, posture_data, total_frames,
			bad_frames, bad_ratio, trigger_alert, frequency, device
		FROM posture_sessions
		ORDER BY timestamp_start DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query posture sessions: %w", err)
	}
	defer rows.Close()

	var out []PostureRecord
	for rows.Next() {
		var r PostureRecord
		var start, end string
		if err := rows.Scan(&r.ID, &r.SessionID, &start, &end, &r.PostureData, &r.TotalFrames,
			&r.BadFrames, &r.BadRatio, &r.TriggerAlert, &r.Frequency, &r.Device); err != nil {
			return nil, fmt.Errorf("scan posture session: %w", err)
		}
		if r.TimestampStart, err = parseTime(start); err != nil {
			return nil, err
		}
		if r.TimestampEnd, err = parseTime(end); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentEye returns up to n eye sessions, newest first.
func (s *Store) RecentEye(ctx context.Context, n int) ([]EyeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp_start, duration, device, avg_blink_rate, total_blinks,
			avg_ear, eye_closure_events, strain_alerts, low_blink_rate_alerts, take_break_alerts,
			eyes_strained_alerts, max_session_time_without_break
		FROM eye_sessions
		ORDER BY timestamp_start DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query eye sessions: %w", err)
	}
	defer rows.Close()

	var out []EyeRecord
	for rows.Next() {
		var r EyeRecord
		var start string
		if err := rows.Scan(&r.ID, &r.SessionID, &start, &r.Duration, &r.Device, &r.AvgBlinkRate,
			&r.TotalBlinks, &r.AvgEAR, &r.EyeClosureEvents, &r.StrainAlerts, &r.LowBlinkRateAlerts,
			&r.TakeBreakAlerts, &r.EyesStrainedAlerts, &r.MaxSessionTimeWithoutBreak); err != nil {
			return nil, fmt.Errorf("scan eye session: %w", err)
		}
		if r.TimestampStart, err = parseTime(start); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
