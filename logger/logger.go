package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"drive_collector/config"

	"github.com/rs/zerolog"
)

var (
	mu           sync.RWMutex
	log          = newConsoleLogger(os.Stderr)
	logFile      *os.File
	logLevel     = INFO
	logToConsole = true
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

func newConsoleLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()
}

// parseLevel maps the configured level name to zerolog, defaulting to info
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN, "warning":
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the logging system using configuration
func Init(cfg *config.Config) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	logPath := cfg.Logging.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cwd, logPath)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	// File output is JSON so sessions can be grepped and parsed later
	var w io.Writer = f
	if cfg.Logging.LogToConsole {
		w = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})
	}

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	logLevel = cfg.Logging.LogLevel
	logToConsole = cfg.Logging.LogToConsole
	log = zerolog.New(w).Level(parseLevel(logLevel)).With().Timestamp().Logger()
	mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	Printf("=== Session started at %s ===", timestamp)
	Printf("Log file: %s", logPath)
	Printf("Log level: %s", logLevel)
	Printf("Log to console: %t", logToConsole)
	LogDivider()

	return nil
}

// SetOutput redirects logging to w at the given level, closing nothing.
// Tests use it to capture or silence output.
func SetOutput(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	logLevel = level
}

// Close closes the log file
func Close() error {
	mu.Lock()
	f := logFile
	mu.Unlock()
	if f == nil {
		return nil
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	LogDivider()
	Printf("=== Session ended at %s ===", timestamp)

	mu.Lock()
	logFile = nil
	log = newConsoleLogger(os.Stderr)
	mu.Unlock()
	return f.Close()
}

// L returns the underlying logger for structured fields
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Component returns a child logger tagged with the component name
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}

func trim(s string) string {
	return strings.TrimRight(s, "\n")
}

// Printf prints formatted text to log (respects log level)
func Printf(format string, v ...interface{}) {
	l := L()
	l.Info().Msg(trim(fmt.Sprintf(format, v...)))
}

// Println prints a line to log (respects log level)
func Println(v ...interface{}) {
	l := L()
	l.Info().Msg(trim(fmt.Sprintln(v...)))
}

// Debugf prints formatted debug text
func Debugf(format string, v ...interface{}) {
	l := L()
	l.Debug().Msg(trim(fmt.Sprintf(format, v...)))
}

// Warnf prints formatted warning text
func Warnf(format string, v ...interface{}) {
	l := L()
	l.Warn().Msg(trim(fmt.Sprintf(format, v...)))
}

// Errorf prints formatted error text
func Errorf(format string, v ...interface{}) {
	l := L()
	l.Error().Msg(trim(fmt.Sprintf(format, v...)))
}

// Fatalf prints formatted fatal error and exits (always logged)
func Fatalf(format string, v ...interface{}) {
	l := L()
	l.WithLevel(zerolog.FatalLevel).Msg(trim(fmt.Sprintf(format, v...)))
	Close()
	os.Exit(1)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v", command, args[1:])
		return
	}
	Printf("Command executed: %s", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println("------------------------------------------------------------")
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	l := L()
	ev := l.Info()
	if !success {
		ev = l.Error()
	}
	if details != "" {
		ev = ev.Str("details", details)
	}
	ev.Str("operation", operation).Msgf("%s: %s", operation, status)
}

// LogProgress logs progress information
func LogProgress(current, total int, item string) {
	Printf("Progress: [%d/%d] %s", current, total, item)
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	mu.RLock()
	defer mu.RUnlock()
	if logFile != nil {
		return logFile.Name()
	}
	return "result.log"
}
