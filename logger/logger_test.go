package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"drive_collector/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, WARN)
	t.Cleanup(func() { SetOutput(os.Stderr, INFO) })

	Printf("hidden %d", 1)
	Debugf("hidden too")
	Warnf("visible warning %s\n", "w")
	Errorf("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"visible warning w"`)
	assert.Contains(t, out, `"level":"error"`)
}

func TestLogResult_Fields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, DEBUG)
	t.Cleanup(func() { SetOutput(os.Stderr, INFO) })

	LogResult("upload", false, "transport")

	out := buf.String()
	assert.Contains(t, out, `"operation":"upload"`)
	assert.Contains(t, out, `"details":"transport"`)
	assert.Contains(t, out, "upload: FAILED")
}

func TestInitAndClose_WritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Logging.LogFile = filepath.Join(dir, "session.log")
	cfg.Logging.LogToConsole = false

	require.NoError(t, Init(cfg))
	assert.Equal(t, cfg.Logging.LogFile, GetLogFileName())
	Printf("sampling at %d Hz", 50)
	require.NoError(t, Close())

	data, err := os.ReadFile(cfg.Logging.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sampling at 50 Hz")
	assert.Contains(t, string(data), "Session ended")
	assert.Equal(t, "result.log", GetLogFileName())
}
