package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := SetupLogger(&Config{
		Level:      LogLevelInfo,
		EnableFile: true,
		LogDir:     dir,
		Filename:   "harness.log",
		MaxSize:    1,
	})
	require.NoError(t, err)

	logger.Info("scenario started", zap.String("scenario", "auth/basic-dcr"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "harness.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "scenario started")
	assert.Contains(t, string(data), "auth/basic-dcr")
}

func TestSetupLoggerRequiresOutput(t *testing.T) {
	_, err := SetupLogger(&Config{Level: LogLevelInfo})
	assert.Error(t, err)
}

func TestSetupCommandLoggerLevels(t *testing.T) {
	logger, err := SetupCommandLogger(false, "", false, "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	logger, err = SetupCommandLogger(true, "", false, "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	// An explicit level wins over the verbose default.
	logger, err = SetupCommandLogger(true, LogLevelError, false, "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.WarnLevel))
}

func TestFilePathWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path, err := FilePathWithDir(dir, "x.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.log"), path)
	assert.DirExists(t, dir)
}
