package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/platinummonkey/clinicq/pkg/contextkeys"
	"github.com/platinummonkey/clinicq/pkg/reqctx"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return levelNames[InfoLevel]
	}
	return levelNames[l]
}

// ParseLogLevel parses a log level name, defaulting to InfoLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) slogLevel() slog.Level {
	return map[LogLevel]slog.Level{
		DebugLevel: slog.LevelDebug,
		WarnLevel:  slog.LevelWarn,
		ErrorLevel: slog.LevelError,
	}[l] // InfoLevel and unknown levels map to the zero value, slog.LevelInfo
}

// Logger writes one JSON object per line through log/slog. Derived loggers
// share the handler of their parent.
type Logger struct {
	slog  *slog.Logger
	level LogLevel
}

// NewLogger creates a JSON logger writing to output, or stdout when nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{slog: slog.New(handler), level: level}
}

// NopLogger returns a logger that discards everything
func NopLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

var defaultLogger = NewLogger(InfoLevel, os.Stdout)

func (l *Logger) with(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

// WithField returns a logger that adds key to every message
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields adds several fields at once, in key order
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithError adds err as the "error" field. A nil error returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// Named tags every message with the component that produced it
func (l *Logger) Named(component string) *Logger {
	return l.with("component", component)
}

func (l *Logger) emit(level slog.Level, msg string) {
	l.slog.Log(context.Background(), level, msg)
}

func (l *Logger) Debug(message string) { l.emit(slog.LevelDebug, message) }
func (l *Logger) Info(message string)  { l.emit(slog.LevelInfo, message) }
func (l *Logger) Warn(message string)  { l.emit(slog.LevelWarn, message) }
func (l *Logger) Error(message string) { l.emit(slog.LevelError, message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(slog.LevelError, fmt.Sprintf(format, args...))
}

// WithLogger binds logger to ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return contextkeys.WithLogger(ctx, logger)
}

// GetLogger returns the logger bound to ctx, or a stdout logger at info level
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return defaultLogger
}

// FromContext returns the context logger enriched with the bound request
// metadata and acting tenant.
func FromContext(ctx context.Context) *Logger {
	return Enrich(ctx, GetLogger(ctx))
}

// Enrich adds request_id, actor_id, tenant and the active trace ids from ctx
// to logger
func Enrich(ctx context.Context, logger *Logger) *Logger {
	if rc, ok := reqctx.Get(ctx); ok {
		if rc.RequestID != "" {
			logger = logger.WithField("request_id", rc.RequestID)
		}
		if rc.ActorID != "" {
			logger = logger.WithField("actor_id", rc.ActorID)
		}
	}

	if tenant := contextkeys.GetTenant(ctx); tenant != "" {
		logger = logger.WithField("tenant", tenant)
	}

	return UpdateLoggerWithTraceContext(ctx, logger)
}
