package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/model"
)

// DateLayout is the bare-date input shape accepted by ParseBound.
const DateLayout = "2006-01-02"

// ErrInvalidTimeRange reports a window whose start is after its end.
var ErrInvalidTimeRange = errors.New("start time is after end time")

// ValidationError reports bad query input. It is always raised before any
// file is opened.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Filter selects records by inclusive time window, level, source substring
// and result count. A zero Start or End leaves that side of the window open.
type Filter struct {
	Start  time.Time
	End    time.Time
	Level  model.Level
	Source string
	// Limit caps the number of matches; 0 means unlimited.
	Limit int
}

// FilterOption sets an optional criterion.
type FilterOption func(*Filter)

// WithLevel matches records of one level, case-insensitively. Aliases such
// as WARN are normalized. An empty level disables the criterion.
func WithLevel(level string) FilterOption {
	return func(f *Filter) {
		if strings.TrimSpace(level) == "" {
			f.Level = ""
			return
		}
		f.Level, _ = model.ParseLevel(level)
	}
}

// WithSource matches records whose source contains s, case-insensitively.
func WithSource(s string) FilterOption {
	return func(f *Filter) { f.Source = s }
}

func WithLimit(n int) FilterOption {
	return func(f *Filter) { f.Limit = n }
}

// ParseBound parses a window bound. Full timestamps are read in loc unless
// they carry an offset. A bare date becomes 00:00:00 of that day for a start
// and 23:59:59 for an end.
func ParseBound(s string, isEnd bool, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	field := "start time"
	if isEnd {
		field = "end time"
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: field, Err: errors.New("empty")}
	}

	if d, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		if isEnd {
			y, m, day := d.Date()
			return time.Date(y, m, day, 23, 59, 59, 0, loc), nil
		}
		return d, nil
	}
	if t, ok := format.ParseTimestamp(s, loc); ok {
		return t, nil
	}
	return time.Time{}, &ValidationError{
		Field: field,
		Value: s,
		Err:   errors.New("want YYYY-MM-DD, YYYY-MM-DD HH:MM:SS or RFC 3339"),
	}
}

// NewFilter parses both bounds in loc, applies opts and validates the result.
func NewFilter(start, end string, loc *time.Location, opts ...FilterOption) (Filter, error) {
	s, err := ParseBound(start, false, loc)
	if err != nil {
		return Filter{}, err
	}
	e, err := ParseBound(end, true, loc)
	if err != nil {
		return Filter{}, err
	}

	f := Filter{Start: s, End: e}
	for _, opt := range opts {
		opt(&f)
	}
	return f, f.Validate()
}

// Validate checks the window and limit.
func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return &ValidationError{
			Field: "time range",
			Value: fmt.Sprintf("%s > %s", f.Start.Format(format.TimeLayout), f.End.Format(format.TimeLayout)),
			Err:   ErrInvalidTimeRange,
		}
	}
	if f.Limit < 0 {
		return &ValidationError{Field: "limit", Value: fmt.Sprint(f.Limit), Err: errors.New("must not be negative")}
	}
	return nil
}

// Match reports whether rec satisfies every criterion except Limit.
func (f Filter) Match(rec model.LogRecord) bool {
	if !f.Start.IsZero() && rec.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && rec.Timestamp.After(f.End) {
		return false
	}
	if f.Level != "" && !strings.EqualFold(string(rec.Level), string(f.Level)) {
		return false
	}
	if f.Source != "" && !strings.Contains(strings.ToLower(rec.Source), strings.ToLower(f.Source)) {
		return false
	}
	return true
}
