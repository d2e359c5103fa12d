package nativelog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestResolveDirPrefersExplicitThenEnv(t *testing.T) {
	t.Setenv(EnvLogDir, "/var/log/catalog")
	assert.Equal(t, "/tmp/x", ResolveDir(" /tmp/x "))
	assert.Equal(t, "/var/log/catalog", ResolveDir(""))
}

func TestZapLoggerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)
	var console bytes.Buffer

	logger, err := NewZapLogger(Options{
		Dir:    dir,
		Level:  "warn",
		Stdout: zapcore.AddSync(&console),
		Now:    func() time.Time { return day },
	})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("push failed")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(filepath.Join(dir, "catalog_2030-03-01.log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "push failed")
	assert.NotContains(t, string(raw), "hidden")
	assert.Contains(t, console.String(), "push failed")
}

func TestZapLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewZapLogger(Options{Dir: t.TempDir(), Level: "loud"})
	assert.Error(t, err)
}

func TestColorOnlyOnConsole(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2030, 3, 2, 0, 0, 0, 0, time.UTC)
	var console bytes.Buffer

	logger, err := NewZapLogger(Options{
		Dir:    dir,
		Stdout: zapcore.AddSync(&console),
		Color:  true,
		Now:    func() time.Time { return day },
	})
	require.NoError(t, err)
	logger.Info("ready")

	raw, err := os.ReadFile(filepath.Join(dir, DailyFilename(day)))
	require.NoError(t, err)
	assert.Contains(t, console.String(), "\x1b[")
	assert.NotContains(t, string(raw), "\x1b[")
}
