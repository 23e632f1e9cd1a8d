package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger provides structured, component-tagged logging for driver internals.
// By default entries go to a run-specific file under the zendriver log
// directory; if that directory cannot be prepared the logger falls back to
// stderr.
//
// Debugf output is suppressed unless the ZENDRIVER_DEBUG environment
// variable is non-empty. All other levels write unconditionally.
type Logger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	debug     bool
	closeOnce sync.Once
}

var (
	// Run ID shared by every logger created in this process.
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored.
	logDir string

	initOnce sync.Once
	initErr  error
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// initLogDirectory ensures the log directory exists. ZENDRIVER_LOG_DIR
// overrides the default of ~/.zendriver/logs.
func initLogDirectory() error {
	initOnce.Do(func() {
		if dir := os.Getenv("ZENDRIVER_LOG_DIR"); dir != "" {
			logDir = dir
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".zendriver", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger creates a logger for a specific component, e.g. "session" or
// "browser". Loggers for all components of one run append to the same file.
//
// If the log directory or file cannot be prepared, a stderr fallback logger
// is returned along with the error so callers can detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-zendriver.log", id))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	return &Logger{
		runID:     id,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
		debug:     os.Getenv("ZENDRIVER_DEBUG") != "",
	}, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging
// is unavailable.
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
	logger.Printf("WARNING: failed to initialize file logging: %v", err)

	return &Logger{
		runID:     getRunID(),
		component: component,
		logger:    logger,
		debug:     os.Getenv("ZENDRIVER_DEBUG") != "",
	}
}

// Nop returns a logger that discards everything. Useful for tests and for
// embedding the driver where its internal logging is unwanted.
func Nop() *Logger {
	return &Logger{
		runID:     getRunID(),
		component: "nop",
		logger:    log.New(io.Discard, "", 0),
	}
}

func (l *Logger) formatEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(l.formatEntry(level, fmt.Sprintf(format, v...)))
}

// Debugf logs a debug-level message. Suppressed unless ZENDRIVER_DEBUG is set.
func (l *Logger) Debugf(format string, v ...any) {
	if !l.debug {
		return
	}
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) {
	l.write("ERROR", format, v...)
}

// RunID returns the process-wide run ID.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path of the log file, or "" in fallback mode.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
