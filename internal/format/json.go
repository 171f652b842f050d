package format

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/filelog/internal/model"
)

// Reserved keys of the JSON encoding. Attributes never override them.
const (
	KeyTimestamp = "timestamp"
	KeyLevel     = "level"
	KeyName      = "name"
	KeyMessage   = "message"
)

func isReserved(key string) bool {
	switch key {
	case KeyTimestamp, KeyLevel, KeyName, KeyMessage:
		return true
	}
	return false
}

// JSONFormat is the one-object-per-line encoding.
type JSONFormat struct {
	loc     *time.Location
	parsers fastjson.ParserPool
	arenas  sync.Pool
}

// NewJSONFormat creates a JSONFormat rendering timestamps in loc.
func NewJSONFormat(loc *time.Location) *JSONFormat {
	return &JSONFormat{
		loc: locationOrLocal(loc),
		arenas: sync.Pool{
			New: func() interface{} { return new(fastjson.Arena) },
		},
	}
}

func (f *JSONFormat) Encoding() Encoding {
	return EncodingJSON
}

// Encode renders the reserved fields in fixed order followed by attributes
// in insertion order. An attribute named like a reserved key is dropped; a
// repeated attribute key keeps its last value.
func (f *JSONFormat) Encode(rec model.LogRecord) (string, error) {
	if rec.Level == "" {
		return "", ErrEmptyLevel
	}

	a := f.arenas.Get().(*fastjson.Arena)
	defer func() {
		a.Reset()
		f.arenas.Put(a)
	}()

	obj := a.NewObject()
	obj.Set(KeyTimestamp, a.NewString(rec.Timestamp.In(f.loc).Truncate(time.Second).Format(time.RFC3339)))
	obj.Set(KeyLevel, a.NewString(jsonSafe(string(rec.Level))))
	obj.Set(KeyName, a.NewString(jsonSafe(rec.Source)))
	obj.Set(KeyMessage, a.NewString(jsonSafe(rec.Message)))

	for _, attr := range rec.Attributes {
		key := jsonSafe(attr.Key)
		if isReserved(key) {
			continue
		}
		obj.Set(key, arenaValue(a, attr.Value))
	}

	return string(obj.MarshalTo(nil)), nil
}

// arenaValue converts a Go value into a fastjson value.
func arenaValue(a *fastjson.Arena, v any) *fastjson.Value {
	switch x := v.(type) {
	case nil:
		return a.NewNull()
	case string:
		return a.NewString(jsonSafe(x))
	case bool:
		if x {
			return a.NewTrue()
		}
		return a.NewFalse()
	case int:
		return a.NewNumberInt(x)
	case int8, int16, int32, int64:
		return a.NewNumberString(fmt.Sprint(x))
	case uint, uint8, uint16, uint32, uint64:
		return a.NewNumberString(fmt.Sprint(x))
	case float32:
		return floatValue(a, float64(x))
	case float64:
		return floatValue(a, x)
	case time.Time:
		return a.NewString(x.Format(time.RFC3339Nano))
	case time.Duration:
		return a.NewString(x.String())
	case error:
		return a.NewString(jsonSafe(x.Error()))
	case fmt.Stringer:
		return a.NewString(jsonSafe(x.String()))
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return a.NewString(fmt.Sprint(v))
	}
	parsed, err := fastjson.ParseBytes(raw)
	if err != nil {
		return a.NewString(string(raw))
	}
	return parsed
}

// jsonSafe makes s survive the fastjson marshaller unchanged. Invalid UTF-8
// becomes U+FFFD. Runes the marshaller would write as Go escapes (\x, \a,
// \v, \U) are dropped: C0 controls other than tab, CR and LF, DEL, and
// non-printable runes outside the BMP.
func jsonSafe(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r > 0xFFFF && !strconv.IsPrint(r):
			return -1
		}
		return r
	}, s)
}

func floatValue(a *fastjson.Arena, f float64) *fastjson.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return a.NewString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return a.NewNumberFloat64(f)
}

// Decode parses a JSON line. timestamp, level and name must be strings and
// the timestamp must parse; message defaults to empty.
func (f *JSONFormat) Decode(line string) (model.LogRecord, bool) {
	p := f.parsers.Get()
	defer f.parsers.Put(p)

	v, err := p.Parse(line)
	if err != nil {
		return model.LogRecord{}, false
	}
	obj, err := v.Object()
	if err != nil {
		return model.LogRecord{}, false
	}

	tsRaw, ok := stringField(obj, KeyTimestamp)
	if !ok {
		return model.LogRecord{}, false
	}
	ts, ok := ParseTimestamp(tsRaw, f.loc)
	if !ok {
		return model.LogRecord{}, false
	}
	lvlRaw, ok := stringField(obj, KeyLevel)
	if !ok {
		return model.LogRecord{}, false
	}
	name, ok := stringField(obj, KeyName)
	if !ok {
		return model.LogRecord{}, false
	}
	msg, _ := stringField(obj, KeyMessage)

	lvl, _ := model.ParseLevel(lvlRaw)
	rec := model.LogRecord{
		Timestamp: ts.In(f.loc),
		Level:     lvl,
		Source:    name,
		Message:   msg,
	}

	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		if isReserved(k) {
			return
		}
		rec.Attributes = append(rec.Attributes, model.Attr{Key: k, Value: goValue(val)})
	})

	return rec, true
}

func stringField(obj *fastjson.Object, key string) (string, bool) {
	v := obj.Get(key)
	if v == nil {
		return "", false
	}
	b, err := v.StringBytes()
	if err != nil {
		return "", false
	}
	return string(b), true
}

// goValue converts a decoded attribute back to a Go value. Integers come
// back as int64, other numbers as float64, objects and arrays as raw JSON.
func goValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	default:
		return v.String()
	}
}
