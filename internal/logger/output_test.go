package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orgoj/lokilog/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Helper to create a temporary log file path
func tempLogFilePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func TestOpenOutput_Stdout(t *testing.T) {
	w, err := OpenOutput("", config.LogRotation{})
	require.NoError(t, err)
	assert.IsType(t, nopCloser{}, w)
	assert.NoError(t, w.Close())
}

func TestOpenOutput_PlainFile(t *testing.T) {
	path := tempLogFilePath(t, "plain.log")

	w, err := OpenOutput(path, config.LogRotation{})
	require.NoError(t, err)
	assert.IsType(t, &os.File{}, w)

	l := NewAppLogger(w, INFO, FormatText)
	l.Info("to file")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO: to file")
}

func TestOpenOutput_Rotation(t *testing.T) {
	tests := []struct {
		name        string
		rotation    config.LogRotation
		wantSizeMB  int
		wantAgeDays int
	}{
		{"bare MB", config.LogRotation{MaxSize: "10"}, 10, 0},
		{"units", config.LogRotation{MaxSize: "2GB"}, 2048, 0},
		{"below one MB", config.LogRotation{MaxSize: "10K"}, 1, 0},
		{"age in days", config.LogRotation{MaxAge: "7d"}, 0, 7},
		{"age under a day", config.LogRotation{MaxAge: "3h"}, 0, 1},
		{"backups only", config.LogRotation{MaxBackups: 2, Compress: true}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tempLogFilePath(t, "rotated.log")
			w, err := OpenOutput(path, tt.rotation)
			require.NoError(t, err)
			defer w.Close()

			lj, ok := w.(*lumberjack.Logger)
			require.True(t, ok, "expected a lumberjack writer, got %T", w)
			assert.Equal(t, path, lj.Filename)
			assert.Equal(t, tt.wantSizeMB, lj.MaxSize)
			assert.Equal(t, tt.wantAgeDays, lj.MaxAge)
			assert.Equal(t, tt.rotation.MaxBackups, lj.MaxBackups)
			assert.Equal(t, tt.rotation.Compress, lj.Compress)
		})
	}
}

func TestOpenOutput_InvalidRotation(t *testing.T) {
	_, err := OpenOutput(tempLogFilePath(t, "x.log"), config.LogRotation{MaxSize: "huge"})
	assert.Error(t, err)

	_, err = OpenOutput(tempLogFilePath(t, "y.log"), config.LogRotation{MaxAge: "forever"})
	assert.Error(t, err)
}

func TestOpenOutput_UnwritableDirectory(t *testing.T) {
	_, err := OpenOutput(filepath.Join(t.TempDir(), "missing", "dir", "app.log"), config.LogRotation{})
	assert.Error(t, err)
}
