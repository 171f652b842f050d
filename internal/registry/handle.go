package registry

import (
	"fmt"
	"time"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/metrics"
	"github.com/coffersTech/filelog/internal/model"
	"github.com/coffersTech/filelog/internal/storage"
)

// Handle is a named logger bound to one writer and one encoding. It is safe
// for concurrent use.
type Handle struct {
	name      string
	writer    *storage.RotatingWriter
	formatter format.Formatter
	console   *consoleSink
	clock     func() time.Time
}

func (h *Handle) Name() string {
	return h.name
}

// Path is the active file the handle appends to.
func (h *Handle) Path() string {
	return h.writer.Path()
}

func (h *Handle) Encoding() format.Encoding {
	return h.formatter.Encoding()
}

// Log formats a record stamped with the current time and appends it. The
// console mirror is best effort and never fails the call.
func (h *Handle) Log(level model.Level, msg string, attrs ...model.Attr) error {
	return h.logAt(h.clock(), level, msg, attrs)
}

func (h *Handle) logAt(ts time.Time, level model.Level, msg string, attrs []model.Attr) error {
	line, err := h.formatter.Encode(model.LogRecord{
		Timestamp:  ts,
		Level:      level,
		Source:     h.name,
		Message:    msg,
		Attributes: attrs,
	})
	if err != nil {
		metrics.WriteErrors.WithLabelValues(h.name).Inc()
		return fmt.Errorf("logger %s: %w", h.name, err)
	}

	if err := h.writer.WriteLine(line); err != nil {
		metrics.WriteErrors.WithLabelValues(h.name).Inc()
		return fmt.Errorf("logger %s: %w", h.name, err)
	}
	metrics.RecordsWritten.WithLabelValues(h.name).Inc()

	if h.console != nil {
		h.console.write(level, line)
	}
	return nil
}

// The level helpers take alternating key/value pairs, as log/slog does.

func (h *Handle) Debug(msg string, kv ...any) error {
	return h.Log(model.LevelDebug, msg, model.Attrs(kv...)...)
}

func (h *Handle) Info(msg string, kv ...any) error {
	return h.Log(model.LevelInfo, msg, model.Attrs(kv...)...)
}

func (h *Handle) Success(msg string, kv ...any) error {
	return h.Log(model.LevelSuccess, msg, model.Attrs(kv...)...)
}

func (h *Handle) Warning(msg string, kv ...any) error {
	return h.Log(model.LevelWarning, msg, model.Attrs(kv...)...)
}

func (h *Handle) Error(msg string, kv ...any) error {
	return h.Log(model.LevelError, msg, model.Attrs(kv...)...)
}

func (h *Handle) Critical(msg string, kv ...any) error {
	return h.Log(model.LevelCritical, msg, model.Attrs(kv...)...)
}
