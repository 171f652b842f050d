package model

import "time"

// Attr is a single structured attribute attached to a record.
type Attr struct {
	Key   string
	Value any
}

// LogRecord represents a structured log entry.
// It is the logical view of a log line: built by callers before it is
// encoded, and rebuilt fresh by the query engine when a line is decoded.
type LogRecord struct {
	Timestamp  time.Time
	Level      Level
	Source     string
	Message    string
	Attributes []Attr
}

// Attr returns the value of the first attribute with the given key.
func (r LogRecord) Attr(key string) (any, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// Attrs converts alternating key/value arguments into attributes.
// A trailing key without a value is kept with a nil value; non-string keys
// are skipped along with their value.
func Attrs(kv ...any) []Attr {
	if len(kv) == 0 {
		return nil
	}
	attrs := make([]Attr, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		var val any
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		attrs = append(attrs, Attr{Key: key, Value: val})
	}
	return attrs
}
