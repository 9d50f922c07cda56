package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry.
type LogLevel int

const (
	INFO  LogLevel = 0
	WARN  LogLevel = 1
	ERROR LogLevel = 2
	DEBUG LogLevel = 3
)

func (l LogLevel) String() string {
	switch l {
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case DEBUG:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

var (
	mu      sync.Mutex
	logger  = zap.NewNop().Sugar()
	logFile *os.File
	logPath string
)

// InitLogger opens (or creates) the log file under the XDG state home
// (~/.local/state/<appName>/<appName>.log) and returns the resolved absolute
// path so the caller can show it in error messages.
func InitLogger(appName string, debug bool) (string, error) {
	rel := filepath.Join(appName, appName+".log")
	p, err := xdg.StateFile(rel)
	if err != nil {
		return "", fmt.Errorf("logging: resolve state path: %w", err)
	}
	if err := InitFile(p, debug); err != nil {
		return "", err
	}
	return p, nil
}

// InitFile points the logger at an explicit file path.
func InitFile(p string, debug bool) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		FunctionKey:    zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(f), level)

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logger.Sync()
		_ = logFile.Close()
	}
	logger = zap.New(core).Sugar()
	logFile = f
	logPath = p
	return nil
}

// Log writes a structured line to the log file. Safe to call from any goroutine.
// If the logger has not been initialised, the entry is silently dropped.
// source names the document, script or tool the entry is about.
func Log(level LogLevel, source, message string, keysAndValues ...any) {
	mu.Lock()
	l := logger
	mu.Unlock()

	if source != "" {
		keysAndValues = append([]any{"source", source}, keysAndValues...)
	}
	switch level {
	case DEBUG:
		l.Debugw(message, keysAndValues...)
	case WARN:
		l.Warnw(message, keysAndValues...)
	case ERROR:
		l.Errorw(message, keysAndValues...)
	default:
		l.Infow(message, keysAndValues...)
	}
}

// Path returns the resolved log file path (empty string if not initialised).
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	logger = zap.NewNop().Sugar()
	logPath = ""
}
