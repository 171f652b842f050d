// Package storage owns the on-disk side of log files: the size-rotated
// appender, listing and opening of rotated segments, and line iteration.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/coffersTech/filelog/internal/metrics"
)

// ErrWriterClosed is returned by writes on a closed or failed writer.
var ErrWriterClosed = errors.New("writer is closed")

const (
	DefaultMaxSizeBytes = 5 * 1024 * 1024
	DefaultMaxBackups   = 3
)

// RotationConfig bounds a log file and its history.
type RotationConfig struct {
	// MaxSizeBytes triggers rotation once the active file reaches it.
	// Zero or less disables rotation.
	MaxSizeBytes int64
	// MaxBackups is the number of rotated segments kept. Zero discards
	// the rotated file.
	MaxBackups int
	// Compress stores rotated segments as zstd (.zst).
	Compress bool
}

// DefaultRotationConfig returns 5 MiB files with 3 backups.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeBytes: DefaultMaxSizeBytes,
		MaxBackups:   DefaultMaxBackups,
	}
}

// RotatingWriter appends lines to one file and rotates it by size.
// It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	fs   afero.Fs
	path string
	cfg  RotationConfig
	log  zerolog.Logger

	file afero.File
	size int64
}

// OpenRotatingWriter opens path for appending, creating the parent
// directory when needed.
func OpenRotatingWriter(fs afero.Fs, path string, cfg RotationConfig, log zerolog.Logger) (*RotatingWriter, error) {
	w := &RotatingWriter{
		fs:   fs,
		path: path,
		cfg:  cfg,
		log:  log.With().Str("file", path).Logger(),
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// openFile opens the active file and records its size. The caller must hold
// the mutex (or own w exclusively).
func (w *RotatingWriter) openFile() error {
	if err := w.fs.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = f
	w.size = info.Size()
	return nil
}

// WriteLine appends line plus a newline in a single write, then rotates if
// the file has reached its size limit. A failed rotation is logged and does
// not fail the write.
func (w *RotatingWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("write %s: %w", w.path, ErrWriterClosed)
	}

	n, err := w.file.Write([]byte(line + "\n"))
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}

	if w.cfg.MaxSizeBytes > 0 && w.size >= w.cfg.MaxSizeBytes {
		if err := w.rotate(); err != nil {
			metrics.Rotations.WithLabelValues("error").Inc()
			w.log.Error().Err(err).Msg("rotation failed")
			return nil
		}
		metrics.Rotations.WithLabelValues("ok").Inc()
	}
	return nil
}

// rotate closes the active file, shifts backups and reopens an empty file.
// The caller must hold the mutex.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.file = nil
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	if w.cfg.MaxBackups <= 0 {
		if err := w.fs.Remove(w.path); err != nil {
			w.log.Warn().Err(err).Msg("failed to discard rotated file")
		}
		return w.openFile()
	}

	w.shiftBackups()

	first := BackupPath(w.path, 1)
	if err := w.fs.Rename(w.path, first); err != nil {
		if openErr := w.openFile(); openErr != nil {
			return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if w.cfg.Compress {
		if err := compressFile(w.fs, first); err != nil {
			w.log.Warn().Err(err).Str("segment", first).Msg("backup left uncompressed")
		}
	}

	return w.openFile()
}

// shiftBackups drops the oldest backup and renames .i to .i+1, newest last.
func (w *RotatingWriter) shiftBackups() {
	oldest := BackupPath(w.path, w.cfg.MaxBackups)
	w.fs.Remove(oldest)
	w.fs.Remove(oldest + CompressedSuffix)

	for i := w.cfg.MaxBackups - 1; i >= 1; i-- {
		from, to := BackupPath(w.path, i), BackupPath(w.path, i+1)
		if ok, _ := afero.Exists(w.fs, from+CompressedSuffix); ok {
			w.fs.Rename(from+CompressedSuffix, to+CompressedSuffix)
		}
		if ok, _ := afero.Exists(w.fs, from); ok {
			w.fs.Rename(from, to)
		}
	}
}

// BackupPath returns the path of the n-th most recent backup of path.
func BackupPath(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// Sync flushes the active file.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close syncs and closes the active file. Closing twice is a no-op.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Size returns the size of the active file in bytes.
func (w *RotatingWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *RotatingWriter) Path() string {
	return w.path
}
