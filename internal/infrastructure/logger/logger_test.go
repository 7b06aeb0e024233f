package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	cfg := Config{Level: "info", Format: "json", Output: path}

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("shift closed", zap.String("shift_id", "s-1"))
	require.NoError(t, Sync(l))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"shift closed"`)
	assert.Contains(t, string(data), `"shift_id":"s-1"`)
}

func TestNew_UnwritableOutput(t *testing.T) {
	_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, "json", ConfigFor("production").Format)
	assert.Equal(t, "console", ConfigFor("development").Format)

	l, err := New(ConfigFor("test"))
	require.NoError(t, err)
	assert.NotNil(t, l)
}
