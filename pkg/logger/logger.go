package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the key/value logger passed to every layer of the service.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New builds a JSON logger on stdout at the given level ("debug", "info", ...).
func New(level string) Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewConsole builds a human readable logger, used in development.
func NewConsole(level string) Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}

func NewWithWriter(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// Nop discards everything.
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func (l *zeroLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.write(l.zl.Debug(), msg, keysAndValues)
}

func (l *zeroLogger) Info(msg string, keysAndValues ...interface{}) {
	l.write(l.zl.Info(), msg, keysAndValues)
}

func (l *zeroLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.write(l.zl.Warn(), msg, keysAndValues)
}

func (l *zeroLogger) Error(msg string, keysAndValues ...interface{}) {
	l.write(l.zl.Error(), msg, keysAndValues)
}

// Fatal logs and exits the process.
func (l *zeroLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.write(l.zl.WithLevel(zerolog.FatalLevel), msg, keysAndValues)
	os.Exit(1)
}

func (l *zeroLogger) With(keysAndValues ...interface{}) Logger {
	ctx := l.zl.With()
	for i := 0; i < len(keysAndValues); i += 2 {
		key, value := pair(keysAndValues, i)
		ctx = ctx.Interface(key, value)
	}
	return &zeroLogger{zl: ctx.Logger()}
}

func (l *zeroLogger) write(ev *zerolog.Event, msg string, keysAndValues []interface{}) {
	if ev == nil {
		return
	}
	for i := 0; i < len(keysAndValues); i += 2 {
		key, value := pair(keysAndValues, i)
		if err, ok := value.(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, value)
	}
	ev.Msg(msg)
}

func pair(keysAndValues []interface{}, i int) (string, interface{}) {
	key, ok := keysAndValues[i].(string)
	if !ok {
		key = fmt.Sprintf("%v", keysAndValues[i])
	}
	if i+1 >= len(keysAndValues) {
		return key, "(MISSING)"
	}
	return key, keysAndValues[i+1]
}
