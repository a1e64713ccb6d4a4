package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
)

const trueStr = "true"

var logLevelNames = map[LogLevel]string{
	LogDebug: "debug",
	LogInfo:  "info",
	LogWarn:  "warn",
	LogError: "error",
	LogFatal: "fatal",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	case LogFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel converts a config/flag value such as "debug" or "WARN" into a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LogInfo, nil
	}
	if name == "warning" {
		return LogWarn, nil
	}
	for level, levelName := range logLevelNames {
		if levelName == name {
			return level, nil
		}
	}
	return LogInfo, fmt.Errorf("unknown log level %q", s)
}

// logSink lets tests redirect every component logger at once
type logSink struct {
	mu sync.RWMutex
	w  zapcore.WriteSyncer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *logSink) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Sync()
}

var (
	sink     = &logSink{w: zapcore.Lock(os.Stderr)}
	logLevel = zap.NewAtomicLevelAt(initialLevel().zapLevel())
	baseLog  = newBaseLogger()
)

func initialLevel() LogLevel {
	if os.Getenv("LSP_TESTER_DEBUG") == trueStr {
		return LogDebug
	}
	return LogInfo
}

func newBaseLogger() *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, logLevel)
	return zap.New(core)
}

// SetLogLevel sets the minimum level for all component loggers
func SetLogLevel(level LogLevel) {
	logLevel.SetLevel(level.zapLevel())
}

// GetLogLevel returns the current minimum level
func GetLogLevel() LogLevel {
	switch logLevel.Level() {
	case zapcore.DebugLevel:
		return LogDebug
	case zapcore.WarnLevel:
		return LogWarn
	case zapcore.ErrorLevel:
		return LogError
	case zapcore.FatalLevel:
		return LogFatal
	default:
		return LogInfo
	}
}

// SetLogOutput redirects log output and returns a func restoring the previous writer.
func SetLogOutput(w io.Writer) func() {
	sink.mu.Lock()
	prev := sink.w
	sink.w = zapcore.AddSync(w)
	sink.mu.Unlock()
	return func() {
		sink.mu.Lock()
		sink.w = prev
		sink.mu.Unlock()
	}
}

// SafeLogger provides STDIO-safe logging that never writes to stdout.
// Stdout may be a language server's input stream, so everything goes to the shared sink.
type SafeLogger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewSafeLogger creates a new safe logger with the given prefix
func NewSafeLogger(prefix string) *SafeLogger {
	return &SafeLogger{
		prefix: prefix,
		sugar:  baseLog.Named(prefix).Sugar(),
	}
}

// With returns a child logger that attaches the key/value pairs to every entry
func (l *SafeLogger) With(keysAndValues ...interface{}) *SafeLogger {
	return &SafeLogger{
		prefix: l.prefix,
		sugar:  l.sugar.With(keysAndValues...),
	}
}

// Debug logs a debug message
func (l *SafeLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message
func (l *SafeLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *SafeLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *SafeLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *SafeLogger) Fatal(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

// Sync flushes buffered entries
func (l *SafeLogger) Sync() error {
	return l.sugar.Sync()
}

// Global logger instances for convenience
var (
	LSPLogger = NewSafeLogger("LSP")
	CLILogger = NewSafeLogger("CLI")
)

// SanitizeErrorForLogging renders an error payload as a single bounded log line.
// Server stack traces are cut to their first line.
func SanitizeErrorForLogging(v interface{}) string {
	if v == nil {
		return ""
	}
	var s string
	switch e := v.(type) {
	case error:
		s = e.Error()
	case string:
		s = e
	default:
		s = fmt.Sprintf("%v", e)
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	const maxLen = 200
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
