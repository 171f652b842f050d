// Package format renders log records into single persisted lines and parses
// those lines back into records.
//
// Two encodings exist: the bracketed text line
//
//	[2025-05-05 10:00:00] [INFO] [scraper] Page fetched
//
// and a one-object-per-line JSON form whose reserved keys are timestamp,
// level, name and message. Encode and Decode of each variant are inverses for
// timestamp (to the second), level, source and message.
package format

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coffersTech/filelog/internal/model"
)

// Encoding selects a Formatter variant.
type Encoding string

const (
	EncodingText Encoding = "text"
	EncodingJSON Encoding = "json"
)

// TimeLayout is the on-disk timestamp layout of the text encoding.
const TimeLayout = "2006-01-02 15:04:05"

// ErrEmptyLevel is returned when encoding a record without a level.
var ErrEmptyLevel = errors.New("record has no level")

// Formatter is the encode/decode pair defining a file's on-disk representation.
type Formatter interface {
	Encoding() Encoding
	// Encode renders rec as one line without a trailing newline.
	Encode(rec model.LogRecord) (string, error)
	// Decode parses a line. ok is false for malformed lines.
	Decode(line string) (rec model.LogRecord, ok bool)
}

// ParseEncoding accepts "text" or "json" in any case.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case EncodingText, "":
		return EncodingText, nil
	case EncodingJSON:
		return EncodingJSON, nil
	default:
		return "", fmt.Errorf("unknown encoding %q (want text or json)", s)
	}
}

// New returns the Formatter for enc. A nil loc means time.Local.
func New(enc Encoding, loc *time.Location) (Formatter, error) {
	switch enc {
	case EncodingText, "":
		return NewTextFormat(loc), nil
	case EncodingJSON:
		return NewJSONFormat(loc), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// Detect guesses the encoding of a persisted line.
func Detect(line string) Encoding {
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "{") {
		return EncodingJSON
	}
	return EncodingText
}

// Decoder decodes lines of either encoding, choosing per line with Detect.
// It is safe for concurrent use.
type Decoder struct {
	text *TextFormat
	json *JSONFormat
}

// NewDecoder creates a Decoder interpreting zone-less timestamps in loc.
func NewDecoder(loc *time.Location) *Decoder {
	return &Decoder{
		text: NewTextFormat(loc),
		json: NewJSONFormat(loc),
	}
}

// Decode parses line with the detected encoding.
func (d *Decoder) Decode(line string) (model.LogRecord, bool) {
	if Detect(line) == EncodingJSON {
		return d.json.Decode(line)
	}
	return d.text.Decode(line)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the timestamp shapes found in log files. Layouts
// without a zone are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func locationOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
