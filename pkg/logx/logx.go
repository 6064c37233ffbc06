package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Fields is structured log metadata.
type Fields map[string]any

// Logger writes leveled, optionally structured log lines.
type Logger struct {
	mu       sync.Mutex
	level    Level
	json     bool
	writer   io.Writer
	exitFunc func(int)
}

// NewLogger creates a logger. Format is taken from LOG_FORMAT ("json" or
// console) and level from LOG_LEVEL unless changed later.
func NewLogger() *Logger {
	return &Logger{
		level:    ParseLevel(os.Getenv("LOG_LEVEL")),
		json:     strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
		writer:   os.Stdout,
		exitFunc: os.Exit,
	}
}

// SetLevel changes the minimum severity that gets written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	now := time.Now()

	if l.json {
		entry := map[string]any{
			"time":    now.Format(time.RFC3339Nano),
			"level":   level.String(),
			"message": msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if err != nil {
			entry["error"] = err.Error()
		}
		b, mErr := json.Marshal(entry)
		if mErr != nil {
			b = []byte(fmt.Sprintf(`{"level":"ERROR","message":"logx: marshal failed: %v"}`, mErr))
		}
		fmt.Fprintln(l.writer, string(b))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", now.Format("2006-01-02 15:04:05"), level.String(), msg)
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	if err != nil {
		fmt.Fprintf(&b, " error=%q", err.Error())
	}
	fmt.Fprintln(l.writer, b.String())
}

var defaultLogger = NewLogger()

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(logger *Logger) { defaultLogger = logger }

// SetLevel sets the level on the default logger.
func SetLevel(level Level) { defaultLogger.SetLevel(level) }

func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil, nil) }
func Info(msg string)  { defaultLogger.log(LevelInfo, msg, nil, nil) }
func Warn(msg string)  { defaultLogger.log(LevelWarn, msg, nil, nil) }
func Error(msg string) { defaultLogger.log(LevelError, msg, nil, nil) }

func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil, nil)
	defaultLogger.exitFunc(1)
}

func Debugf(format string, args ...any) {
	defaultLogger.log(LevelDebug, fmt.Sprintf(format, args...), nil, nil)
}

func Infof(format string, args ...any) {
	defaultLogger.log(LevelInfo, fmt.Sprintf(format, args...), nil, nil)
}

func Warnf(format string, args ...any) {
	defaultLogger.log(LevelWarn, fmt.Sprintf(format, args...), nil, nil)
}

func Errorf(format string, args ...any) {
	defaultLogger.log(LevelError, fmt.Sprintf(format, args...), nil, nil)
}

func Fatalf(format string, args ...any) {
	defaultLogger.log(LevelFatal, fmt.Sprintf(format, args...), nil, nil)
	defaultLogger.exitFunc(1)
}

// WithFields starts a structured entry on the default logger.
func WithFields(fields Fields) *Entry {
	return &Entry{logger: defaultLogger, fields: fields}
}

// WithField starts a structured entry carrying a single field.
func WithField(key string, value any) *Entry {
	return WithFields(Fields{key: value})
}

// WithError starts a structured entry carrying an error.
func WithError(err error) *Entry {
	return &Entry{logger: defaultLogger, err: err}
}
