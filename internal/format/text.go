package format

import (
	"regexp"
	"strings"
	"time"

	"github.com/coffersTech/filelog/internal/model"
)

var textLine = regexp.MustCompile(`^\[([^\]]*)\] \[([^\]]*)\] \[([^\]]*)\] ?(.*)$`)

var (
	lineBreaks   = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")
	bracketField = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "]", ")")
)

// TextFormat is the bracketed line encoding.
type TextFormat struct {
	loc *time.Location
}

// NewTextFormat creates a TextFormat rendering timestamps in loc.
func NewTextFormat(loc *time.Location) *TextFormat {
	return &TextFormat{loc: locationOrLocal(loc)}
}

func (f *TextFormat) Encoding() Encoding {
	return EncodingText
}

// Encode renders rec as "[ts] [LEVEL] [source] message". Line breaks become
// spaces and a ']' inside the level or source becomes ')'.
func (f *TextFormat) Encode(rec model.LogRecord) (string, error) {
	if rec.Level == "" {
		return "", ErrEmptyLevel
	}

	var sb strings.Builder
	sb.Grow(len(TimeLayout) + len(rec.Level) + len(rec.Source) + len(rec.Message) + 9)
	sb.WriteByte('[')
	sb.WriteString(rec.Timestamp.In(f.loc).Format(TimeLayout))
	sb.WriteString("] [")
	sb.WriteString(bracketField.Replace(string(rec.Level)))
	sb.WriteString("] [")
	sb.WriteString(bracketField.Replace(rec.Source))
	sb.WriteString("] ")
	sb.WriteString(lineBreaks.Replace(rec.Message))
	return sb.String(), nil
}

// Decode parses a text line. The first group must be a TimeLayout timestamp.
func (f *TextFormat) Decode(line string) (model.LogRecord, bool) {
	line = strings.TrimRight(line, "\r\n")
	m := textLine.FindStringSubmatch(line)
	if m == nil {
		return model.LogRecord{}, false
	}

	ts, err := time.ParseInLocation(TimeLayout, m[1], f.loc)
	if err != nil {
		return model.LogRecord{}, false
	}

	lvl, _ := model.ParseLevel(m[2])
	return model.LogRecord{
		Timestamp: ts,
		Level:     lvl,
		Source:    m[3],
		Message:   m[4],
	}, true
}
