package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultLevelIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})

	logger.Info("hidden")
	logger.Warn("skipping image", zap.Int64("image", 3))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "skipping image")
	assert.Contains(t, out, "WARN")
}

func TestVerboseLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Verbose: true, Writer: &buf})

	logger.Debug("importing file")
	assert.Contains(t, buf.String(), "importing file")
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{JSON: true, Writer: &buf})

	logger.Error("import failed", zap.String("path", "a.tif"))

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "import failed", entry["msg"])
	assert.Equal(t, "a.tif", entry["path"])
}
