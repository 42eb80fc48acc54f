// Package logging provides categorized file-based logging for pongogo.
// Logs are written to <project>/.pongogo/logs/ with a separate file per
// category. The stdio transport owns stdout, so nothing here may ever write
// to it; diagnostics go to files or stderr only.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and configuration resolution
	CategoryStore     Category = "store"     // Persistence substrate operations
	CategoryKnowledge Category = "knowledge" // Instruction loading and indexing
	CategoryRouting   Category = "routing"   // Engine decisions and scoring
	CategoryWatcher   Category = "watcher"   // Filesystem watch and reload
	CategoryServer    Category = "server"    // Stdio JSON-RPC transport
	CategoryDiscovery Category = "discovery" // Artifact/observation lifecycle
)

// Log levels, lowest first.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger writes to a single category's log file. A Logger with a nil inner
// logger is a no-op, which is the production default.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	logLevel  = LevelInfo
	levelMu   sync.RWMutex
)

// Initialize sets up the logging directory under the given project root.
// level is one of "debug", "info", "warn", "error"; anything else means info.
// Initialize is safe to skip entirely: all loggers degrade to no-ops.
func Initialize(projectRoot, level string) error {
	if projectRoot == "" {
		return fmt.Errorf("project root required")
	}

	SetLevel(level)

	dir := filepath.Join(projectRoot, ".pongogo", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	loggersMu.Lock()
	logsDir = dir
	loggersMu.Unlock()

	Boot("=== pongogo logging initialized ===")
	Boot("Logs directory: %s", dir)
	Boot("Log level: %s", level)
	return nil
}

// SetLevel updates the global level filter.
func SetLevel(level string) {
	levelMu.Lock()
	defer levelMu.Unlock()
	switch level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
}

func currentLevel() int {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return logLevel
}

// Get returns (or creates) the logger for a category. Returns a no-op
// logger when Initialize has not run or the file cannot be opened.
func Get(category Category) *Logger {
	loggersMu.RLock()
	dir := logsDir
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a plain file-delete.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error. Errors are always written when a file is open.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	logsDir = ""
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Knowledge logs to the knowledge category.
func Knowledge(format string, args ...interface{}) {
	Get(CategoryKnowledge).Info(format, args...)
}

// KnowledgeDebug logs debug to the knowledge category.
func KnowledgeDebug(format string, args ...interface{}) {
	Get(CategoryKnowledge).Debug(format, args...)
}

// Routing logs to the routing category.
func Routing(format string, args ...interface{}) {
	Get(CategoryRouting).Info(format, args...)
}

// RoutingDebug logs debug to the routing category.
func RoutingDebug(format string, args ...interface{}) {
	Get(CategoryRouting).Debug(format, args...)
}

// Watcher logs to the watcher category.
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}

// Server logs to the server category.
func Server(format string, args ...interface{}) {
	Get(CategoryServer).Info(format, args...)
}

// Discovery logs to the discovery category.
func Discovery(format string, args ...interface{}) {
	Get(CategoryDiscovery).Info(format, args...)
}

// =============================================================================
// TIMERS - coarse duration tracking for slow operations
// =============================================================================

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, name string) *Timer {
	return &Timer{category: category, name: name, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %s", t.name, time.Since(t.start))
}
