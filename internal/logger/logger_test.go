package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level Level) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := New(level, path, "")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLevelFiltering(t *testing.T) {
	l, path := newTestLogger(t, LevelWarn)

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	out := readLog(t, path)
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "[WARN] warn line")
	assert.Contains(t, out, "[ERROR] error line")
}

func TestWithPrefixChains(t *testing.T) {
	l, path := newTestLogger(t, LevelDebug)

	l.WithPrefix("gateway").WithPrefix("channel").Info("connected")

	assert.Contains(t, readLog(t, path), "[gateway:channel] connected")
}

func TestWithStampsFields(t *testing.T) {
	l, path := newTestLogger(t, LevelDebug)

	scoped := l.WithPrefix("gateway").With("chat", "c1").With("kernel", "k1")
	scoped.Info("execution completed")
	l.Info("plain line")

	out := readLog(t, path)
	assert.Contains(t, out, "[gateway] chat=c1 kernel=k1 execution completed")
	assert.NotContains(t, out, "plain line chat=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelNone, ParseLevel("none"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestNoneLevelDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := New(LevelNone, path, "")
	require.NoError(t, err)

	l.Error("should not appear")

	assert.NoFileExists(t, path)
}
