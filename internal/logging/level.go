package logging

import "strings"

// Level mirrors logrus's severity ordering so the proxy core can filter
// messages without importing logrus outside this package.
type Level uint8

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	// NilLevel disables logging entirely; it cannot be used as a message level.
	NilLevel
)

func (l Level) String() string {
	switch l {
	case PanicLevel:
		return "panic"
	case FatalLevel:
		return "fatal"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	default:
		return "nil"
	}
}

// ParseLevel returns the Level whose name contains s (case-insensitive),
// defaulting to InfoLevel when nothing matches.
func ParseLevel(s string) Level {
	s = strings.ToLower(s)
	for _, l := range []Level{PanicLevel, FatalLevel, ErrorLevel, WarnLevel, InfoLevel, DebugLevel} {
		if strings.Contains(l.String(), s) {
			return l
		}
	}
	return InfoLevel
}
