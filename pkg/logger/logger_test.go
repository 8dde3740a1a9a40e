package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_FieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	log.Info("user leveled up",
		UserID("5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"),
		Points(120),
		UserLevel(3),
		StreakDays(7),
		Latency(250*time.Millisecond),
	)

	entry := logLine(t, &buf)
	assert.Equal(t, "user leveled up", entry.Message)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c", entry.Fields["user_id"])
	assert.EqualValues(t, 120, entry.Fields["points"])
	assert.EqualValues(t, 3, entry.Fields["level"])
	assert.EqualValues(t, 7, entry.Fields["streak_days"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("dropped")
	log.Info("dropped too")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	entry := logLine(t, &buf)
	assert.Equal(t, "WARN", entry.Level)
}

func TestLogger_WithAddsPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("evaluator"))

	log.Info("pass finished", Int("awarded", 2))

	entry := logLine(t, &buf)
	assert.Equal(t, "evaluator", entry.Fields["component"])
	assert.EqualValues(t, 2, entry.Fields["awarded"])
}
