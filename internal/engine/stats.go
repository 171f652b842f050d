package engine

import (
	"time"

	"github.com/coffersTech/filelog/internal/model"
)

// Summary describes the records of a file matching a filter.
type Summary struct {
	Total      int            `json:"total"`
	Malformed  int            `json:"malformed"`
	LinesRead  int            `json:"lines_read"`
	LevelDist  map[string]int `json:"level_dist"`
	TopSources map[string]int `json:"top_sources"`
	First      *time.Time     `json:"first,omitempty"`
	Last       *time.Time     `json:"last,omitempty"`
}

// Summarize counts matching records by level and by source. The filter's
// limit is ignored.
func (qe *QueryEngine) Summarize(path string, f Filter) (Summary, error) {
	if err := f.Validate(); err != nil {
		return Summary{}, err
	}
	defer observe("summary", time.Now())

	sum := Summary{
		LevelDist:  make(map[string]int),
		TopSources: make(map[string]int),
	}
	var first, last time.Time

	st, err := qe.scan(path, f, func(_ string, rec model.LogRecord) bool {
		sum.Total++
		sum.LevelDist[string(rec.Level)]++
		sum.TopSources[rec.Source]++
		if first.IsZero() || rec.Timestamp.Before(first) {
			first = rec.Timestamp
		}
		if rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
		return true
	})
	if err != nil {
		return Summary{}, err
	}

	sum.Malformed = st.Malformed
	sum.LinesRead = st.Lines
	if sum.Total > 0 {
		sum.First, sum.Last = &first, &last
	}
	return sum, nil
}
