// Package logging wraps logrus the way the rest of the proxy core expects to
// consume it: components never hold a concrete logger, only a FuncLog lazily
// resolved at call time, so a component built before logging is configured
// still logs correctly once it is.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields are structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger is the minimal structured-logging surface every proxy-core
// component depends on.
type Logger interface {
	io.Writer
	SetLevel(Level)
	GetLevel() Level
	WithFields(Fields) Logger
	Entry(level Level, format string, args ...interface{})
}

// FuncLog lazily resolves a Logger; components store this instead of a
// concrete Logger so construction order never matters.
type FuncLog func() Logger

type logger struct {
	lvl Level
	std *logrus.Logger
	fld logrus.Fields
}

// New returns a Logger backed by a dedicated logrus.Logger instance writing
// to os.Stderr with text formatting.
func New() Logger {
	std := logrus.New()
	return &logger{lvl: InfoLevel, std: std, fld: logrus.Fields{}}
}

func toLogrusLevel(l Level) logrus.Level {
	switch l {
	case PanicLevel:
		return logrus.PanicLevel
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	default:
		return logrus.PanicLevel
	}
}

func (l *logger) SetLevel(lvl Level) {
	l.lvl = lvl
	if lvl != NilLevel {
		l.std.SetLevel(toLogrusLevel(lvl))
	}
}

func (l *logger) GetLevel() Level { return l.lvl }

func (l *logger) WithFields(f Fields) Logger {
	merged := make(logrus.Fields, len(l.fld)+len(f))
	for k, v := range l.fld {
		merged[k] = v
	}
	for k, v := range f {
		merged[k] = v
	}
	return &logger{lvl: l.lvl, std: l.std, fld: merged}
}

func (l *logger) Entry(level Level, format string, args ...interface{}) {
	if l.lvl == NilLevel || level > l.lvl {
		return
	}
	l.std.WithFields(l.fld).Logf(toLogrusLevel(level), format, args...)
}

// Write implements io.Writer so a Logger can be handed to anything expecting
// a writer (e.g. as an *http.Server.ErrorLog sink).
func (l *logger) Write(p []byte) (int, error) {
	l.Entry(ErrorLevel, "%s", string(p))
	return len(p), nil
}

var def = New()

// Default returns the process-wide fallback logger used by components that
// were not handed a FuncLog explicitly.
func Default() Logger { return def }
