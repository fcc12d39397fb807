package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jing2uo/spt2db/config"
)

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "spt2db.log")
	log, err := New(config.LogConfig{Level: "warn", Format: "json", Output: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("converted", zap.String("path", "a.spt"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"message":"converted"`)
	assert.Contains(t, string(data), `"path":"a.spt"`)
}

func TestSetGlobal(t *testing.T) {
	l := zap.NewExample()
	restore := SetGlobal(l)
	assert.Same(t, l, L())

	restore()
	assert.NotSame(t, l, L())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
