package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	now = func() time.Time { return time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC) }
	t.Cleanup(func() {
		SetWriter(os.Stdout)
		SetLevel("INFO")
		_ = SetFormat("text")
		now = time.Now
	})
	return &buf
}

func TestTextFormat(t *testing.T) {
	buf := capture(t)

	Info("session %s connected", "abc")
	assert.Equal(t, "[2025-06-01 10:30:00] [INFO] session abc connected\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"DEBUG", []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{"info", []string{"INFO", "WARN", "ERROR"}},
		{"WARN", []string{"WARN", "ERROR"}},
		{"error", []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := capture(t)
			SetLevel(tt.level)

			Debug("d")
			Info("i")
			Warn("w")
			Error("e")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, len(tt.want))
			for i, lvl := range tt.want {
				assert.Contains(t, lines[i], "["+lvl+"]")
			}
		})
	}
}

func TestUnknownLevelIgnored(t *testing.T) {
	capture(t)
	SetLevel("WARN")
	SetLevel("chatty")
	assert.False(t, Enabled(LevelInfo))
	assert.True(t, Enabled(LevelWarn))
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	require.NoError(t, SetFormat("json"))

	Warn("object %d locked", 7)

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "WARN", got["level"])
	assert.Equal(t, "object 7 locked", got["msg"])
	assert.Equal(t, "2025-06-01T10:30:00Z", got["time"])
}

func TestSetFormatRejectsUnknown(t *testing.T) {
	capture(t)
	assert.Error(t, SetFormat("xml"))
}

func TestSetOutputFile(t *testing.T) {
	capture(t)
	path := filepath.Join(t.TempDir(), "ots.log")

	require.NoError(t, SetOutput(path))
	Error("disk full")
	require.NoError(t, SetOutput("stdout"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ERROR] disk full")
}

func TestSetOutputBadPath(t *testing.T) {
	capture(t)
	assert.Error(t, SetOutput(filepath.Join(t.TempDir(), "missing", "ots.log")))
}
