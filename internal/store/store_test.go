package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/posture-coach/internal/logic"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func payloadAt(id string, start time.Time) *logic.SessionPayload {
	end := start.Add(25 * time.Minute)
	return &logic.SessionPayload{
		SessionID: id,
		PostureSession: &logic.PostureSession{
			TimestampStart: start,
			TimestampEnd:   end,
			PostureData:    "0110",
			TotalFrames:    4,
			BadFrames:      2,
			BadRatio:       0.5,
			TriggerAlert:   true,
			Frequency:      1,
			Device:         logic.DefaultDevice,
		},
		EyeSession: &logic.EyeSession{
			TimestampStart:             start,
			Duration:                   1500,
			Device:                     logic.DefaultDevice,
			AvgBlinkRate:               7.08,
			TotalBlinks:                177,
			AvgEAR:                     0.3,
			StrainAlerts:               1,
			LowBlinkRateAlerts:         1,
			TakeBreakAlerts:            1,
			MaxSessionTimeWithoutBreak: 1200.25,
		},
	}
}

func TestPersistAndRecent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Persist(ctx, payloadAt("first", base)))
	require.NoError(t, s.Persist(ctx, payloadAt("second", base.Add(time.Hour))))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "second", recs[0].SessionID, "newest first")
	assert.Equal(t, "first", recs[1].SessionID)
	assert.NotEmpty(t, recs[0].ID)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)

	got := recs[1]
	assert.True(t, got.TimestampStart.Equal(base))
	assert.True(t, got.TimestampEnd.Equal(base.Add(25*time.Minute)))
	assert.Equal(t, "0110", got.PostureData)
	assert.Equal(t, 0.5, got.BadRatio)
	assert.True(t, got.TriggerAlert)
	assert.Equal(t, "local_webcam", got.Device)

	eyes, err := s.RecentEye(ctx, 1)
	require.NoError(t, err)
	require.Len(t, eyes, 1)
	assert.Equal(t, "second", eyes[0].SessionID)
	assert.Equal(t, 177, eyes[0].TotalBlinks)
	assert.InDelta(t, 1200.25, eyes[0].MaxSessionTimeWithoutBreak, 1e-9)
}

func TestPersistPartialPayload(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	p := payloadAt("eye-only", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	p.PostureSession = nil
	require.NoError(t, s.Persist(ctx, p))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	eyes, err := s.RecentEye(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, eyes, 1)
}

func TestPersistNil(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.Persist(context.Background(), nil))
}

func TestRecentLimit(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Persist(ctx, payloadAt("s", base.Add(time.Duration(i)*time.Hour))))
	}

	recs, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Persist(ctx, payloadAt("kept", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0].SessionID)
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "sqlite", s.Name())
}
