package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	lgbmerrors "github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// Format selects the zerolog output encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// zerologLogger implements Logger on top of zerolog.
type zerologLogger struct {
	zl    zerolog.Logger
	level *levelVar
}

// levelVar is shared by every logger derived from one provider so that
// SetLevel affects loggers handed out earlier.
type levelVar struct {
	mu    sync.RWMutex
	level Level
}

func (v *levelVar) get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	v.level = l
	v.mu.Unlock()
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// NewZerologLogger returns a Logger writing to w at the given minimum level.
func NewZerologLogger(w io.Writer, level Level, format Format) Logger {
	return &zerologLogger{
		zl:    newZerolog(w, format),
		level: &levelVar{level: level},
	}
}

func newZerolog(w io.Writer, format Format) zerolog.Logger {
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func (z *zerologLogger) Debug(msg string, fields ...any) { z.log(LevelDebug, msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any)  { z.log(LevelInfo, msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { z.log(LevelWarn, msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { z.log(LevelError, msg, fields) }

func (z *zerologLogger) log(level Level, msg string, fields []any) {
	if level < z.level.get() {
		return
	}
	ev := z.zl.WithLevel(toZerologLevel(level))
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			if st := extractStacktrace(err); st != "" && level >= LevelError {
				ev = ev.Str(StacktraceAttrKey, st)
			}
			fields = fields[1:]
		}
	}
	if len(fields) > 1 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

func (z *zerologLogger) With(fields ...any) Logger {
	if len(fields) < 2 {
		return z
	}
	return &zerologLogger{
		zl:    z.zl.With().Fields(fields).Logger(),
		level: z.level,
	}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= z.level.get()
}

// ZerologProvider is the default LoggerProvider.
type ZerologProvider struct {
	root *zerologLogger
}

// NewZerologProvider creates a provider whose loggers share one writer and level.
func NewZerologProvider(w io.Writer, level Level, format Format) *ZerologProvider {
	return &ZerologProvider{root: NewZerologLogger(w, level, format).(*zerologLogger)}
}

func (p *ZerologProvider) GetLogger() Logger { return p.root }

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return p.root.With(ComponentKey, name)
}

func (p *ZerologProvider) SetLevel(level Level) { p.root.level.set(level) }

// staticProvider serves one fixed Logger, used by SetLogger.
type staticProvider struct {
	logger Logger
}

func (p *staticProvider) GetLogger() Logger { return p.logger }

func (p *staticProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

func (p *staticProvider) SetLevel(Level) {}

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo, FormatConsole)
)

func init() {
	lgbmerrors.SetZerologWarnFunc(func(w error) {
		GetLoggerWithName("warnings").Warn(w.Error(), "warning", w)
	})
}

// GetLogger returns the process-wide default Logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns the default Logger tagged with ComponentKey=name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetProvider replaces the process-wide provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// SetLogger installs l as the process-wide Logger.
func SetLogger(l Logger) {
	SetProvider(&staticProvider{logger: l})
}

// SetLevel changes the minimum level of the current provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}
