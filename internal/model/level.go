package model

import "strings"

// Level is the severity of a record as it appears on disk.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelSuccess  Level = "SUCCESS"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Rank orders levels by severity. SUCCESS sits next to INFO.
// Unknown levels rank -1.
func (l Level) Rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelSuccess:
		return 2
	case LevelWarning:
		return 3
	case LevelError:
		return 4
	case LevelCritical:
		return 5
	default:
		return -1
	}
}

// Known reports whether l is one of the fixed severity levels.
func (l Level) Known() bool {
	return l.Rank() >= 0
}

func (l Level) String() string {
	return string(l)
}

// ParseLevel converts user or on-disk text to a Level.
// WARN and FATAL are accepted as aliases. Unknown text is upper-cased and
// returned with ok=false so callers can still keep it verbatim.
func ParseLevel(s string) (Level, bool) {
	up := strings.ToUpper(strings.TrimSpace(s))
	switch up {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "SUCCESS":
		return LevelSuccess, true
	case "WARN", "WARNING":
		return LevelWarning, true
	case "ERROR":
		return LevelError, true
	case "CRITICAL", "FATAL":
		return LevelCritical, true
	default:
		return Level(up), false
	}
}

// Levels returns the fixed severity set in ascending order.
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelSuccess, LevelWarning, LevelError, LevelCritical}
}
