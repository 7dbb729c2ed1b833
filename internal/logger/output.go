// internal/logger/output.go

package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/orgoj/lokilog/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// OpenOutput returns the writer for local log lines. An empty path means
// stdout. With any rotation limit configured the file is managed by
// lumberjack, otherwise it is a plain append-only file.
func OpenOutput(path string, rotation config.LogRotation) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}

	maxSizeMB, err := rotationMaxSizeMB(rotation.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("invalid rotation.max_size '%s' for '%s': %w", rotation.MaxSize, path, err)
	}

	var maxAgeDays int
	if rotation.MaxAge != "" {
		ageDuration, err := config.ParseDuration(rotation.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid rotation.max_age '%s' for '%s': %w", rotation.MaxAge, path, err)
		}
		// lumberjack counts in whole days
		maxAgeDays = int(ageDuration / (24 * time.Hour))
		if maxAgeDays == 0 {
			maxAgeDays = 1
		}
	}

	if maxSizeMB > 0 || maxAgeDays > 0 || rotation.MaxBackups > 0 {
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     maxAgeDays,
			Compress:   rotation.Compress,
			LocalTime:  false,
		}, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}

// rotationMaxSizeMB accepts a bare MB count ("10") or a size with units
// ("512K", "1GB"), rounding anything non-zero up to lumberjack's 1MB minimum.
func rotationMaxSizeMB(maxSize string) (int, error) {
	if maxSize == "" {
		return 0, nil
	}
	if mb, err := strconv.Atoi(maxSize); err == nil {
		if mb < 0 {
			return 0, fmt.Errorf("size cannot be negative: %d", mb)
		}
		return mb, nil
	}

	sizeBytes, err := config.ParseSize(maxSize)
	if err != nil {
		return 0, err
	}
	mb := int(sizeBytes / (1024 * 1024))
	if sizeBytes > 0 && mb == 0 {
		mb = 1
	}
	return mb, nil
}
