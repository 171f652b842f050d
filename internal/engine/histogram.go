package engine

import (
	"errors"
	"sort"
	"time"

	"github.com/coffersTech/filelog/internal/model"
)

type HistogramPoint struct {
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
}

// Histogram aggregates matching records into interval-wide buckets aligned
// to the Unix epoch, in ascending time order. The filter's limit is ignored.
func (qe *QueryEngine) Histogram(path string, f Filter, interval time.Duration) ([]HistogramPoint, error) {
	if interval < time.Second {
		return nil, &ValidationError{Field: "interval", Value: interval.String(), Err: errors.New("must be at least 1s")}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	defer observe("histogram", time.Now())

	step := int64(interval / time.Second)
	buckets := make(map[int64]int)

	_, err := qe.scan(path, f, func(_ string, rec model.LogRecord) bool {
		ts := rec.Timestamp.Unix()
		bucket := ts - mod(ts, step)
		buckets[bucket]++
		return true
	})
	if err != nil {
		return nil, err
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: time.Unix(t, 0).In(qe.loc), Count: c})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return points, nil
}

// mod is the non-negative remainder, so pre-1970 buckets floor correctly.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
