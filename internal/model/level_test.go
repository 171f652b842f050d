package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  Level
		known bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Success", LevelSuccess, true},
		{"warn", LevelWarning, true},
		{"WARNING", LevelWarning, true},
		{" error ", LevelError, true},
		{"fatal", LevelCritical, true},
		{"critical", LevelCritical, true},
		{"trace", Level("TRACE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestLevelRank(t *testing.T) {
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		assert.Less(t, levels[i-1].Rank(), levels[i].Rank(), "%s should rank below %s", levels[i-1], levels[i])
	}
	assert.Equal(t, -1, Level("TRACE").Rank())
	assert.False(t, Level("TRACE").Known())
}

func TestAttrs(t *testing.T) {
	attrs := Attrs("page", 1, 42, "skipped", "status", "ok", "dangling")
	assert.Equal(t, []Attr{
		{Key: "page", Value: 1},
		{Key: "status", Value: "ok"},
		{Key: "dangling", Value: nil},
	}, attrs)

	rec := LogRecord{Attributes: attrs}
	v, ok := rec.Attr("status")
	assert.True(t, ok)
	assert.Equal(t, "ok", v)

	_, ok = rec.Attr("missing")
	assert.False(t, ok)
	assert.Nil(t, Attrs())
}
