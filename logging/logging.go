// Package logging adapts zerolog to the key-value Logger interface used by the
// dfu package.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLevel names the environment variable read by LevelFromEnv.
const EnvLevel = "NRFDFU_LOG_LEVEL"

// Logger writes key-value pairs as zerolog fields.
type Logger struct {
	zl zerolog.Logger
}

// New returns a console logger writing to w, tagged with app. The level comes
// from NRFDFU_LOG_LEVEL and defaults to info.
func New(w io.Writer, app string) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	zl := zerolog.New(output).Level(LevelFromEnv()).With().Timestamp().Str("app", app).Logger()
	return &Logger{zl: zl}
}

// NewDefault returns New(os.Stderr, app).
func NewDefault(app string) *Logger {
	return New(os.Stderr, app)
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// NewTest returns a debug-level logger that writes through t.Log.
func NewTest(t zerolog.TestingLog) *Logger {
	zl := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// WithLevel returns a copy of l that drops events below level.
func (l *Logger) WithLevel(level zerolog.Level) *Logger {
	return &Logger{zl: l.zl.Level(level)}
}

// Debug logs msg at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Debug(), keysAndValues).Msg(msg)
}

// Info logs msg at info level.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Info(), keysAndValues).Msg(msg)
}

// Error logs msg at error level.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Error(), keysAndValues).Msg(msg)
}

// fields attaches alternating key/value pairs to e. A trailing key without a
// value is logged under "!BADKEY".
func fields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	if e == nil {
		return nil
	}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 >= len(keysAndValues) {
			e = e.Interface("!BADKEY", keysAndValues[i])
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		switch v := keysAndValues[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

// LevelFromEnv parses NRFDFU_LOG_LEVEL. Unset or unknown values yield info.
func LevelFromEnv() zerolog.Level {
	level, err := ParseLevel(os.Getenv(EnvLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ParseLevel accepts trace, debug, info, warn, error and off. An empty string is info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "off", "disabled", "none":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
