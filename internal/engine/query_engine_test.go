package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/filelog/internal/format"
	"github.com/coffersTech/filelog/internal/model"
	"github.com/coffersTech/filelog/internal/storage"
)

var utc = time.UTC

const scenario = `[2025-05-05 10:00:00] [INFO] [scraper_text] Retry attempt 1
[2025-05-06 09:00:00] [WARNING] [main] Disk space low
[2025-05-07 23:59:59] [ERROR] [scraper_json] Page failed
`

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func newEngine(fs afero.Fs, now time.Time) *QueryEngine {
	return NewQueryEngine(fs, WithLocation(utc), WithClock(func() time.Time { return now }))
}

// countingFs counts file opens and serves file contents one line per Read,
// so the number of lines handed out equals the number of lines consumed.
type countingFs struct {
	afero.Fs
	opens  int
	served int
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.opens++
	f, err := c.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &lineFile{File: f, rest: string(data), fs: c}, nil
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.opens++
	return c.Fs.OpenFile(name, flag, perm)
}

type lineFile struct {
	afero.File
	rest string
	fs   *countingFs
}

func (l *lineFile) Read(p []byte) (int, error) {
	if l.rest == "" {
		return 0, io.EOF
	}
	end := strings.IndexByte(l.rest, '\n') + 1
	if end == 0 {
		end = len(l.rest)
	}
	if end > len(p) {
		end = len(p)
	}
	n := copy(p, l.rest[:end])
	l.rest = l.rest[n:]
	if strings.HasSuffix(string(p[:n]), "\n") || l.rest == "" {
		l.fs.served++
	}
	return n, nil
}

func TestFilterLogsBareDates(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/logs/app.log", scenario)
	qe := newEngine(fs, time.Now())

	lines, err := qe.FilterLogs("/logs/app.log", "2025-05-05", "2025-05-06")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[2025-05-05 10:00:00] [INFO] [scraper_text] Retry attempt 1",
		"[2025-05-06 09:00:00] [WARNING] [main] Disk space low",
	}, lines)

	f, err := qe.Filter("2025-05-05", "2025-05-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 5, 0, 0, 0, 0, utc), f.Start)
	assert.Equal(t, time.Date(2025, 5, 6, 23, 59, 59, 0, utc), f.End)

	lines, err = qe.FilterLogs("/logs/app.log", "2025-05-05", "2025-05-07")
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestFilterLogsCriteria(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/logs/app.log", scenario)
	qe := newEngine(fs, time.Now())

	tests := []struct {
		name string
		opts []FilterOption
		want int
	}{
		{"level exact", []FilterOption{WithLevel("warning")}, 1},
		{"level alias", []FilterOption{WithLevel("WARN")}, 1},
		{"level miss", []FilterOption{WithLevel("debug")}, 0},
		{"source substring", []FilterOption{WithSource("SCRAPER")}, 2},
		{"source and level", []FilterOption{WithSource("scraper"), WithLevel("error")}, 1},
		{"limit", []FilterOption{WithLimit(2)}, 2},
		{"zero limit is unlimited", []FilterOption{WithLimit(0)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := qe.FilterLogs("/logs/app.log", "2025-05-01 00:00:00", "2025-05-31T00:00:00", tt.opts...)
			require.NoError(t, err)
			assert.Len(t, lines, tt.want)
		})
	}
}

func TestStartAfterEndOpensNoFile(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	writeFile(t, fs.Fs, "/logs/app.log", scenario)
	qe := newEngine(fs, time.Now())

	_, err := qe.FilterLogs("/logs/app.log", "2025-05-06", "2025-05-05")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = qe.FilterLogs("/logs/app.log", "yesterday", "2025-05-05")
	assert.True(t, IsValidation(err))

	_, err = qe.FilterLogs("/logs/app.log", "2025-05-05", "2025-05-06", WithLimit(-1))
	assert.True(t, IsValidation(err))

	assert.Equal(t, 0, fs.opens)
}

func TestParseBound(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		in    string
		isEnd bool
		want  time.Time
		err   bool
	}{
		{"2025-05-05", false, time.Date(2025, 5, 5, 0, 0, 0, 0, plus2), false},
		{"2025-05-05", true, time.Date(2025, 5, 5, 23, 59, 59, 0, plus2), false},
		{"2025-05-05 10:11:12", true, time.Date(2025, 5, 5, 10, 11, 12, 0, plus2), false},
		{"2025-05-05T10:11:12", false, time.Date(2025, 5, 5, 10, 11, 12, 0, plus2), false},
		{"2025-05-05T10:11:12Z", false, time.Date(2025, 5, 5, 10, 11, 12, 0, time.UTC), false},
		{"05/05/2025", false, time.Time{}, true},
		{"", true, time.Time{}, true},
		{"2025-02-30", false, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q end=%v", tt.in, tt.isEnd), func(t *testing.T) {
			got, err := ParseBound(tt.in, tt.isEnd, plus2)
			if tt.err {
				var ve *ValidationError
				assert.True(t, errors.As(err, &ve))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestMissingFile(t *testing.T) {
	qe := newEngine(afero.NewMemMapFs(), time.Now())

	_, err := qe.FilterLogs("/logs/none.log", "2025-05-05", "2025-05-06")
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = qe.ScanSegments("/logs/none.log", Filter{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLimitStopsReading(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		if i%2 == 1 {
			sb.WriteString("garbage without brackets\n")
			continue
		}
		fmt.Fprintf(&sb, "[2025-05-05 10:00:%02d] [INFO] [svc] n=%d\n", i, i)
	}

	fs := &countingFs{Fs: afero.NewMemMapFs()}
	writeFile(t, fs.Fs, "/app.log", sb.String())
	qe := newEngine(fs, time.Now())

	lines, err := qe.FilterLogs("/app.log", "2025-05-05", "2025-05-05", WithLimit(3))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "n=4")
	// Matches sit on lines 1, 3 and 5; nothing after the third is read.
	assert.Equal(t, 5, fs.served)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	clean := scenario
	noisy := "Traceback (most recent call last):\n" +
		"[2025-05-05 10:00:00] [INFO] [scraper_text] Retry attempt 1\n" +
		"[not a time] [INFO] [x] y\n" +
		"{\"broken\": json\n" +
		"[2025-05-06 09:00:00] [WARNING] [main] Disk space low\n" +
		"\n" +
		"[2025-05-07 23:59:59] [ERROR] [scraper_json] Page failed\n"
	writeFile(t, fs, "/clean.log", clean)
	writeFile(t, fs, "/noisy.log", noisy)
	qe := newEngine(fs, time.Now())

	for _, lvl := range []string{"", "info", "warning", "error"} {
		a, err := qe.FilterLogs("/clean.log", "2025-01-01", "2025-12-31", WithLevel(lvl))
		require.NoError(t, err)
		b, err := qe.FilterLogs("/noisy.log", "2025-01-01", "2025-12-31", WithLevel(lvl))
		require.NoError(t, err)
		assert.Equal(t, a, b, "level %q", lvl)
	}

	sum, err := qe.Summarize("/noisy.log", Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 4, sum.Malformed)
	assert.Equal(t, 7, sum.LinesRead)
}

func TestMixedEncodings(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/mixed.log",
		"[2025-05-05 10:00:00] [INFO] [text] one\n"+
			`{"timestamp":"2025-05-05T11:00:00Z","level":"ERROR","name":"json","message":"two","page":3}`+"\n")
	qe := newEngine(fs, time.Now())

	lines, err := qe.FilterLogs("/mixed.log", "2025-05-05", "2025-05-05", WithLevel("ERROR"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "{"))
}

func TestLastN(t *testing.T) {
	now := time.Date(2025, 5, 7, 12, 0, 0, 0, utc)
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app.log",
		"[2025-05-07 11:55:00] [INFO] [a] five minutes ago\n"+
			"[2025-05-07 10:30:00] [INFO] [a] ninety minutes ago\n"+
			"[2025-05-05 12:00:00] [INFO] [a] two days ago\n"+
			"[2025-05-07 12:00:01] [INFO] [a] future\n")
	qe := newEngine(fs, now)

	lines, err := qe.LastNMinutes("/app.log", 10)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	lines, err = qe.LastNHours("/app.log", 2)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	lines, err = qe.LastNDays("/app.log", 2, WithSource("a"))
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	lines, err = qe.LastNMinutes("/app.log", 0)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = qe.LastNHours("/app.log", -1)
	assert.True(t, IsValidation(err))
}

func TestScanSegmentsAcrossRotation(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := storage.RotationConfig{MaxSizeBytes: 200, MaxBackups: 5, Compress: true}
	w, err := storage.OpenRotatingWriter(fs, "/logs/app.log", cfg, zerolog.Nop())
	require.NoError(t, err)

	base := time.Date(2025, 5, 5, 10, 0, 0, 0, utc)
	enc := format.NewTextFormat(utc)
	for i := 0; i < 20; i++ {
		line, err := enc.Encode(model.LogRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Level:     model.LevelInfo,
			Source:    "svc",
			Message:   fmt.Sprintf("n=%02d", i),
		})
		require.NoError(t, err)
		require.NoError(t, w.WriteLine(line))
	}
	require.NoError(t, w.Close())

	segs, err := storage.Segments(fs, "/logs/app.log")
	require.NoError(t, err)
	require.Greater(t, len(segs), 2)

	qe := newEngine(fs, time.Now())
	all, err := qe.ScanSegments("/logs/app.log", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 20)
	for i, l := range all {
		assert.True(t, strings.HasSuffix(l, fmt.Sprintf("n=%02d", i)), l)
	}

	limited, err := qe.ScanSegments("/logs/app.log", Filter{Limit: 7})
	require.NoError(t, err)
	assert.Equal(t, all[:7], limited)

	active, err := qe.Scan("/logs/app.log", Filter{})
	require.NoError(t, err)
	assert.Less(t, len(active), 20)
}

func TestHistogram(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app.log",
		"[2025-05-05 10:00:05] [INFO] [a] x\n"+
			"[2025-05-05 10:00:59] [ERROR] [a] x\n"+
			"[2025-05-05 10:02:00] [INFO] [a] x\n"+
			"[2025-05-05 10:01:30] [INFO] [b] x\n")
	qe := newEngine(fs, time.Now())

	points, err := qe.Histogram("/app.log", Filter{}, time.Minute)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, time.Date(2025, 5, 5, 10, 0, 0, 0, utc), points[0].Time)
	assert.Equal(t, 2, points[0].Count)
	assert.Equal(t, 1, points[1].Count)
	assert.Equal(t, time.Date(2025, 5, 5, 10, 2, 0, 0, utc), points[2].Time)

	points, err = qe.Histogram("/app.log", Filter{Level: model.LevelInfo}, time.Hour)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 3, points[0].Count)

	_, err = qe.Histogram("/app.log", Filter{}, 0)
	assert.True(t, IsValidation(err))
}

func TestSummarize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/app.log", scenario)
	qe := newEngine(fs, time.Now())

	f, err := qe.Filter("2025-05-05", "2025-05-06")
	require.NoError(t, err)
	sum, err := qe.Summarize("/app.log", f)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, map[string]int{"INFO": 1, "WARNING": 1}, sum.LevelDist)
	assert.Equal(t, map[string]int{"scraper_text": 1, "main": 1}, sum.TopSources)
	require.NotNil(t, sum.First)
	assert.Equal(t, time.Date(2025, 5, 5, 10, 0, 0, 0, utc), *sum.First)
	assert.Equal(t, time.Date(2025, 5, 6, 9, 0, 0, 0, utc), *sum.Last)
}

// TestFilterCorrectness_PropertyBased checks that a line is returned iff its
// record is in the window and passes the level and source criteria.
func TestFilterCorrectness_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	day := time.Date(2025, 5, 5, 0, 0, 0, 0, utc)
	levels := model.Levels()
	sources := []string{"api", "API-gateway", "worker"}
	needles := []string{"", "api", "WORK", "gate"}
	enc := format.NewTextFormat(utc)

	decodeSeed := func(v int) model.LogRecord {
		return model.LogRecord{
			Timestamp: day.Add(time.Duration(v%86400) * time.Second),
			Level:     levels[(v/86400)%len(levels)],
			Source:    sources[(v/(86400*len(levels)))%len(sources)],
			Message:   fmt.Sprintf("seed %d", v),
		}
	}

	properties.Property("filter returns exactly the matching records", prop.ForAll(
		func(seeds []int, a, b, lvl, needle int) bool {
			if a > b {
				a, b = b, a
			}
			var sb strings.Builder
			var records []model.LogRecord
			for _, s := range seeds {
				rec := decodeSeed(s)
				line, err := enc.Encode(rec)
				if err != nil {
					return false
				}
				sb.WriteString(line + "\n")
				records = append(records, rec)
			}

			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/p.log", []byte(sb.String()), 0644); err != nil {
				return false
			}
			qe := newEngine(fs, time.Now())

			f := Filter{
				Start:  day.Add(time.Duration(a) * time.Second),
				End:    day.Add(time.Duration(b) * time.Second),
				Source: needles[needle],
			}
			if lvl >= 0 {
				f.Level = levels[lvl]
			}

			got, err := qe.Scan("/p.log", f)
			if err != nil {
				return false
			}

			var want []string
			for _, rec := range records {
				inWindow := !rec.Timestamp.Before(f.Start) && !rec.Timestamp.After(f.End)
				levelOK := f.Level == "" || rec.Level == f.Level
				sourceOK := f.Source == "" || strings.Contains(strings.ToLower(rec.Source), strings.ToLower(f.Source))
				if inWindow && levelOK && sourceOK {
					line, _ := enc.Encode(rec)
					want = append(want, line)
				}
			}
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 86400*len(levels)*len(sources)-1)),
		gen.IntRange(0, 86399),
		gen.IntRange(0, 86399),
		gen.IntRange(-1, len(levels)-1),
		gen.IntRange(0, len(needles)-1),
	))

	properties.TestingRun(t)
}
