package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace": TRACE,
		"DEBUG": DEBUG,
		"":      INFO,
		"Warn":  WARN,
		"error": ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("stable", &buf, WARN)

	logger.Info("скрытое сообщение")
	logger.Warn("слот %d занят", 3)
	logger.Error("ошибка хранилища")

	out := buf.String()
	assert.NotContains(t, out, "скрытое")
	assert.Contains(t, out, "[WARN] [stable] слот 3 занят")
	assert.Contains(t, out, "[ERROR] [stable] ошибка хранилища")
}

func TestLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger("eviction")
	require.NoError(t, err)
	logger.SetLevel(ERROR, DEBUG)
	require.NoError(t, logger.OpenFile(dir))

	logger.Debug("tick %d", 1)
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "eviction_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBUG] [eviction] tick 1"))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Info("ничего") })
}

func TestManagerReturnsSameLogger(t *testing.T) {
	lm := GetLoggerManager()
	a := lm.MustGetLogger("test-component")
	b := lm.MustGetLogger("test-component")
	assert.Same(t, a, b)
	assert.Contains(t, lm.ListComponents(), "test-component")
	assert.Error(t, lm.SetLogLevel("missing-component", INFO, INFO))
}
