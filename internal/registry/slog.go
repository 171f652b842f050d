package registry

import (
	"context"
	"log/slog"

	"github.com/coffersTech/filelog/internal/model"
)

// Slog exposes the handle as a *slog.Logger. Group names are flattened into
// dotted attribute keys.
func (h *Handle) Slog() *slog.Logger {
	return slog.New(&slogHandler{h: h})
}

type slogHandler struct {
	h      *Handle
	attrs  []model.Attr
	prefix string
}

func (s *slogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (s *slogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make([]model.Attr, 0, len(s.attrs)+r.NumAttrs())
	attrs = append(attrs, s.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = flatten(attrs, s.prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = s.h.clock()
	}
	return s.h.logAt(ts, levelFromSlog(r.Level), r.Message, attrs)
}

func (s *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	s2 := *s
	s2.attrs = make([]model.Attr, 0, len(s.attrs)+len(attrs))
	s2.attrs = append(s2.attrs, s.attrs...)
	for _, a := range attrs {
		s2.attrs = flatten(s2.attrs, s.prefix, a)
	}
	return &s2
}

func (s *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	s2 := *s
	s2.prefix = s.prefix + name + "."
	return &s2
}

func flatten(dst []model.Attr, prefix string, a slog.Attr) []model.Attr {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			dst = flatten(dst, inner, ga)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	return append(dst, model.Attr{Key: prefix + a.Key, Value: v.Any()})
}

// levelFromSlog maps slog levels onto the closed level set. Anything at or
// above ERROR+4 is CRITICAL.
func levelFromSlog(l slog.Level) model.Level {
	switch {
	case l < slog.LevelInfo:
		return model.LevelDebug
	case l < slog.LevelWarn:
		return model.LevelInfo
	case l < slog.LevelError:
		return model.LevelWarning
	case l < slog.LevelError+4:
		return model.LevelError
	default:
		return model.LevelCritical
	}
}

