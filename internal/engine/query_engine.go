// Package engine answers time-window queries over log files by a linear
// scan. Files of either encoding are read; malformed lines are skipped.
package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/metrics"
	"github.com/coffersTech/filelog/internal/model"
	"github.com/coffersTech/filelog/internal/storage"
)

// QueryEngine scans log files. It holds no lock and no file between calls.
type QueryEngine struct {
	fs      afero.Fs
	loc     *time.Location
	clock   func() time.Time
	decoder *format.Decoder
	log     zerolog.Logger
}

// Option configures a QueryEngine.
type Option func(*QueryEngine)

func WithClock(clock func() time.Time) Option {
	return func(qe *QueryEngine) { qe.clock = clock }
}

// WithLocation sets the zone used for zone-less timestamps and bounds.
func WithLocation(loc *time.Location) Option {
	return func(qe *QueryEngine) { qe.loc = loc }
}

func WithDiag(l zerolog.Logger) Option {
	return func(qe *QueryEngine) { qe.log = l }
}

// NewQueryEngine creates an engine reading from fs.
func NewQueryEngine(fs afero.Fs, opts ...Option) *QueryEngine {
	qe := &QueryEngine{
		fs:    fs,
		loc:   time.Local,
		clock: time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(qe)
	}
	if qe.loc == nil {
		qe.loc = time.Local
	}
	qe.decoder = format.NewDecoder(qe.loc)
	return qe
}

// Location is the zone bounds and zone-less timestamps are read in.
func (qe *QueryEngine) Location() *time.Location {
	return qe.loc
}

// Filter builds a validated Filter with bounds parsed in the engine's zone.
func (qe *QueryEngine) Filter(start, end string, opts ...FilterOption) (Filter, error) {
	return NewFilter(start, end, qe.loc, opts...)
}

// FilterLogs returns the original text of matching lines in file order.
// Input is validated before the file is opened.
func (qe *QueryEngine) FilterLogs(path, start, end string, opts ...FilterOption) ([]string, error) {
	f, err := qe.Filter(start, end, opts...)
	if err != nil {
		return nil, err
	}
	return qe.Scan(path, f)
}

// Scan returns matching lines of one file, stopping once f.Limit matches
// are collected.
func (qe *QueryEngine) Scan(path string, f Filter) ([]string, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	defer observe("scan", time.Now())

	var result []string
	_, err := qe.scan(path, f, func(line string, _ model.LogRecord) bool {
		result = append(result, line)
		return f.Limit == 0 || len(result) < f.Limit
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScanSegments is Scan over the rotated history of path, oldest segment
// first, sharing one limit.
func (qe *QueryEngine) ScanSegments(path string, f Filter) ([]string, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	defer observe("segments", time.Now())

	segs, err := qe.segments(path)
	if err != nil {
		return nil, err
	}

	var result []string
	for _, seg := range segs {
		done := false
		_, err := qe.scan(seg.Path, f, func(line string, _ model.LogRecord) bool {
			result = append(result, line)
			done = f.Limit > 0 && len(result) >= f.Limit
			return !done
		})
		if err != nil {
			// A backup can be rotated away between listing and opening.
			if errors.Is(err, os.ErrNotExist) && seg.Index > 0 {
				qe.log.Debug().Str("segment", seg.Path).Msg("segment vanished during scan")
				continue
			}
			return nil, err
		}
		if done {
			break
		}
	}
	return result, nil
}

func (qe *QueryEngine) segments(path string) ([]storage.Segment, error) {
	segs, err := storage.Segments(qe.fs, path)
	if err != nil {
		return nil, fmt.Errorf("list segments of %s: %w", path, err)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("list segments of %s: %w", path, os.ErrNotExist)
	}
	return segs, nil
}

// LastNMinutes returns matches in [now-n minutes, now].
func (qe *QueryEngine) LastNMinutes(path string, n int, opts ...FilterOption) ([]string, error) {
	return qe.lastN(path, n, time.Minute, "minutes", opts)
}

func (qe *QueryEngine) LastNHours(path string, n int, opts ...FilterOption) ([]string, error) {
	return qe.lastN(path, n, time.Hour, "hours", opts)
}

func (qe *QueryEngine) LastNDays(path string, n int, opts ...FilterOption) ([]string, error) {
	return qe.lastN(path, n, 24*time.Hour, "days", opts)
}

func (qe *QueryEngine) lastN(path string, n int, unit time.Duration, field string, opts []FilterOption) ([]string, error) {
	if n < 0 {
		return nil, &ValidationError{Field: field, Value: fmt.Sprint(n), Err: errors.New("must not be negative")}
	}
	return qe.Last(path, time.Duration(n)*unit, opts...)
}

// Last returns matches in [now-d, now]. Now is sampled once.
func (qe *QueryEngine) Last(path string, d time.Duration, opts ...FilterOption) ([]string, error) {
	f, err := qe.Window(d, opts...)
	if err != nil {
		return nil, err
	}
	return qe.Scan(path, f)
}

// Window builds the validated Filter for [now-d, now].
func (qe *QueryEngine) Window(d time.Duration, opts ...FilterOption) (Filter, error) {
	if d < 0 {
		return Filter{}, &ValidationError{Field: "window", Value: d.String(), Err: errors.New("must not be negative")}
	}
	now := qe.clock().In(qe.loc)
	f := Filter{Start: now.Add(-d), End: now}
	for _, opt := range opts {
		opt(&f)
	}
	return f, f.Validate()
}

// scanStats counts what a scan read.
type scanStats struct {
	Lines     int
	Malformed int
}

// scan streams path, calling visit for every decoded line matching f (limit
// aside) until visit returns false.
func (qe *QueryEngine) scan(path string, f Filter, visit func(line string, rec model.LogRecord) bool) (scanStats, error) {
	var st scanStats
	it, err := storage.OpenLines(qe.fs, path)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", path, err)
	}
	defer it.Close()

	defer func() {
		metrics.LinesScanned.Add(float64(st.Lines))
		metrics.MalformedLines.Add(float64(st.Malformed))
	}()

	for it.Next() {
		st.Lines = it.LinesRead()
		line := it.Line()
		rec, ok := qe.decoder.Decode(line)
		if !ok {
			st.Malformed++
			continue
		}
		if !f.Match(rec) {
			continue
		}
		if !visit(line, rec) {
			break
		}
	}
	if err := it.Err(); err != nil {
		return st, fmt.Errorf("read %s: %w", path, err)
	}
	return st, nil
}

func observe(op string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
