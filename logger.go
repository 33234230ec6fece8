package netsched

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured logging interface used for debug output.
// Arguments are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig controls debug logging. Individual areas can be toggled to get
// insight without noise.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogBatching  bool
	LogAdmission bool
	LogPrefetch  bool
	LogRateLimit bool
	// RequestIDGen generates correlation IDs attached to log lines and
	// errors. Defaults to a UUID generator.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with all areas enabled but logging
// off until Enabled is set.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogBatching:  true,
		LogAdmission: true,
		LogPrefetch:  true,
		LogRateLimit: true,
	}
}

// SimpleLogger writes human-readable lines to stderr.
type SimpleLogger struct{}

// NewSimpleLogger returns a console logger suitable for development.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log("DEBUG", msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log("INFO", msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log("WARN", msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log("ERROR", msg, keysAndValues...)
}

func (l *SimpleLogger) log(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		b.WriteString(fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	fmt.Fprintln(os.Stderr, b.String())
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

// NewDefaultZerologLogger returns a zerolog-backed Logger writing JSON lines
// to stderr at debug level.
func NewDefaultZerologLogger() *ZerologLogger {
	return &ZerologLogger{l: zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)}
}

func (z *ZerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.emit(z.l.Debug(), msg, keysAndValues)
}

func (z *ZerologLogger) Info(msg string, keysAndValues ...interface{}) {
	z.emit(z.l.Info(), msg, keysAndValues)
}

func (z *ZerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.emit(z.l.Warn(), msg, keysAndValues)
}

func (z *ZerologLogger) Error(msg string, keysAndValues ...interface{}) {
	z.emit(z.l.Error(), msg, keysAndValues)
}

func (z *ZerologLogger) emit(ev *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		ev = ev.Interface(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1])
	}
	ev.Msg(msg)
}
