package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymatch/internal/config"
	"skymatch/pkg/skymatch"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("whatever"))
}

func TestTraditionalHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "traditional").With("run", 7)

	logger.Debug("hidden")
	logger.Warn("low star count", "points", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] low star count [run=7 points=3]")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "json").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestSetup_FileOutput(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := Setup(config.LoggingConfig{Level: "info", Format: "text", FileOutput: true, LogDir: dir})
	require.NoError(t, err)
	logger.Info("written to file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestIdentificationHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "traditional")

	LogIdentificationStart(logger, "abc", "m42.png", 2048)
	LogIdentificationComplete(logger, "abc", &skymatch.Identification{
		Extraction: &skymatch.Extraction{Points: make([]skymatch.Point, 5)},
		Result:     &skymatch.MatchResult{State: skymatch.StateMatched, Winner: "Orion"},
	})
	LogIdentificationError(logger, "abc", time.Second, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "size=2.0 kB")
	assert.Contains(t, out, "points=5")
	assert.Contains(t, out, "winner=Orion")
	assert.Contains(t, out, "[ERROR] identification failed")
	assert.Contains(t, out, "error=boom")
}
