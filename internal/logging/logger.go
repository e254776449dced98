// Package logging provides config-driven categorized file-based logging for adfbridge.
// Logs are written to .adfbridge/logs/ with separate files per category.
// Logging is controlled by debug_mode in .adfbridge/config.json - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and configuration discovery
	CategoryConfig    Category = "config"    // Config loading and env overrides
	CategoryTransport Category = "transport" // MCP and REST wire traffic
	CategoryUpdate    Category = "update"    // Update orchestration
	CategoryResponse  Category = "response"  // Response normalization
	CategoryJournal   Category = "journal"   // Submission journal
	CategoryDevServer Category = "devserver" // Protocol server supervisor
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryBoot,
	CategoryConfig,
	CategoryTransport,
	CategoryUpdate,
	CategoryResponse,
	CategoryJournal,
	CategoryDevServer,
}

// DirName is the per-workspace state directory.
const DirName = ".adfbridge"

// loggingConfig mirrors the logging section of .adfbridge/config.json.
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// StructuredLogEntry is one line of JSON-format output.
type StructuredLogEntry struct {
	Timestamp int64          `json:"ts"`
	Category  string         `json:"cat"`
	Level     string         `json:"lvl"`
	Message   string         `json:"msg"`
	RequestID string         `json:"req,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	CloseAll()
	workspace = ws
	logsDir = filepath.Join(workspace, DirName, "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		configMu.Lock()
		config = loggingConfig{}
		configMu.Unlock()
	}

	if !IsDebugMode() {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== adfbridge logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", levelName(logLevel))

	configMu.RLock()
	cats := make([]string, 0, len(config.Categories))
	for cat := range config.Categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		boot.Debug("Category '%s': %v", cat, config.Categories[cat])
	}
	configMu.RUnlock()

	return nil
}

// loadConfig reads the logging section of .adfbridge/config.json. The
// file may carry comments and trailing commas.
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	path := filepath.Join(workspace, DirName, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		config = loggingConfig{}
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &cf); err != nil {
		config = loggingConfig{}
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	logLevel = parseLevel(config.Level)
	return nil
}

func parseLevel(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelName(level int) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the filter are enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
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

func jsonFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

func (l *Logger) write(level int, requestID string, fields map[string]any, msg string) {
	if l.logger == nil || logLevel > level {
		return
	}
	name := levelName(level)
	if jsonFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     name,
			Message:   msg,
			RequestID: requestID,
			Fields:    fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	if requestID != "" {
		msg = fmt.Sprintf("[req:%s] %s", requestID, msg)
	}
	if len(fields) > 0 {
		msg = fmt.Sprintf("%s | %v", msg, fields)
	}
	l.logger.Printf("[%s] %s", levelTag(level), msg)
}

func levelTag(level int) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.write(LevelDebug, "", nil, fmt.Sprintf(format, args...))
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.write(LevelInfo, "", nil, fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.write(LevelWarn, "", nil, fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.write(LevelError, "", nil, fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
		delete(loggers, cat)
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - no-ops when the category is disabled
// =============================================================================

func Boot(format string, args ...any)      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...any) { Get(CategoryBoot).Debug(format, args...) }

func Config(format string, args ...any)      { Get(CategoryConfig).Info(format, args...) }
func ConfigDebug(format string, args ...any) { Get(CategoryConfig).Debug(format, args...) }
func ConfigWarn(format string, args ...any)  { Get(CategoryConfig).Warn(format, args...) }

func Transport(format string, args ...any)      { Get(CategoryTransport).Info(format, args...) }
func TransportDebug(format string, args ...any) { Get(CategoryTransport).Debug(format, args...) }
func TransportWarn(format string, args ...any)  { Get(CategoryTransport).Warn(format, args...) }
func TransportError(format string, args ...any) { Get(CategoryTransport).Error(format, args...) }

func Update(format string, args ...any)      { Get(CategoryUpdate).Info(format, args...) }
func UpdateDebug(format string, args ...any) { Get(CategoryUpdate).Debug(format, args...) }
func UpdateWarn(format string, args ...any)  { Get(CategoryUpdate).Warn(format, args...) }
func UpdateError(format string, args ...any) { Get(CategoryUpdate).Error(format, args...) }

func Response(format string, args ...any)      { Get(CategoryResponse).Info(format, args...) }
func ResponseDebug(format string, args ...any) { Get(CategoryResponse).Debug(format, args...) }

func Journal(format string, args ...any)      { Get(CategoryJournal).Info(format, args...) }
func JournalDebug(format string, args ...any) { Get(CategoryJournal).Debug(format, args...) }
func JournalError(format string, args ...any) { Get(CategoryJournal).Error(format, args...) }

func DevServer(format string, args ...any)      { Get(CategoryDevServer).Info(format, args...) }
func DevServerDebug(format string, args ...any) { Get(CategoryDevServer).Debug(format, args...) }
func DevServerWarn(format string, args ...any)  { Get(CategoryDevServer).Warn(format, args...) }
func DevServerError(format string, args ...any) { Get(CategoryDevServer).Error(format, args...) }

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]any
}

// WithRequestID creates a request-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]any),
	}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value any) *RequestLogger {
	r.fields[key] = value
	return r
}

// RequestID returns the correlation ID.
func (r *RequestLogger) RequestID() string { return r.requestID }

func (r *RequestLogger) Debug(format string, args ...any) {
	r.logger.write(LevelDebug, r.requestID, r.fields, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Info(format string, args ...any) {
	r.logger.write(LevelInfo, r.requestID, r.fields, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...any) {
	r.logger.write(LevelWarn, r.requestID, r.fields, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Error(format string, args ...any) {
	r.logger.write(LevelError, r.requestID, r.fields, fmt.Sprintf(format, args...))
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
