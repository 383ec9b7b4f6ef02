package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Logger
	verbose bool
}

var defaultLogger *Logger

// Categories for consistent logging
const (
	CategoryNetwork  = "NETWORK"
	CategoryProvider = "PROVIDER"
	CategoryUpload   = "UPLOAD"
	CategorySession  = "SESSION"
	CategoryPairing  = "PAIRING"
	CategoryNotify   = "NOTIFY"
	CategoryConfig   = "CONFIG"
	CategoryHTTP     = "HTTP"
	CategoryCLI      = "CLI"
	CategoryError    = "ERROR"
)

// Options controls how the default logger is built
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // auto, text, json
	Verbose bool
	Output  io.Writer
}

func init() {
	// Keep package helpers usable before Init is called
	Init(Options{Level: "error"})
}

// Init initializes the logging system
func Init(opts Options) {
	logger := logrus.New()

	// Configure output
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	format := strings.ToLower(opts.Format)
	if format == "" || format == "auto" {
		if isTTY(logger.Out) {
			format = "text"
		} else {
			format = "json"
		}
	}

	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			ForceColors:     isTTY(logger.Out),
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	// Disable caller reporting to keep output cleaner
	logger.SetReportCaller(false)

	defaultLogger = &Logger{
		Logger:  logger,
		verbose: opts.Verbose || level >= logrus.DebugLevel,
	}
}

// isTTY checks if the output is a terminal
func isTTY(output io.Writer) bool {
	file, ok := output.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// IsVerbose returns whether debug logging is enabled
func IsVerbose() bool {
	if defaultLogger == nil {
		return false
	}
	return defaultLogger.verbose
}

// Base exposes the underlying logrus logger, e.g. for http.Server.ErrorLog
func Base() *logrus.Logger {
	return defaultLogger.Logger
}

// Helper function to log with category field
func (l *Logger) logWithCategory(level logrus.Level, category string, message string, fields logrus.Fields) {
	if !l.IsLevelEnabled(level) {
		return
	}
	entryFields := logrus.Fields{}
	for k, v := range fields {
		entryFields[k] = v
	}
	entryFields["category"] = category

	l.WithFields(entryFields).Log(level, message)
}

// Network Operations Logging Functions
func HTTPRequest(method, url string, headers map[string]string) {
	if !IsVerbose() {
		return
	}
	fields := logrus.Fields{
		"method": method,
		"url":    url,
	}
	if len(headers) > 0 {
		fields["headers"] = headers
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryNetwork, "HTTP request", fields)
}

func HTTPResponse(statusCode int, body string, duration time.Duration) {
	if !IsVerbose() {
		return
	}
	fields := logrus.Fields{
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}
	if body != "" {
		// Limit body length for readability
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		fields["body"] = body
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryNetwork, "HTTP response", fields)
}

func ProviderConfig(providerName string, config map[string]interface{}) {
	if !IsVerbose() || len(config) == 0 {
		return
	}
	redacted := make(map[string]interface{}, len(config))
	for k, v := range config {
		if strings.Contains(strings.ToLower(k), "key") {
			v = "***"
		}
		redacted[k] = v
	}
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryProvider, "Provider configuration", logrus.Fields{
		"provider": providerName,
		"config":   redacted,
	})
}

// Configuration Logging Functions
func ConfigLoad(source string, values interface{}) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryConfig, "Loading configuration", logrus.Fields{
		"source": source,
		"values": values,
	})
}

func ProviderSelection(providers []string) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryConfig, "Provider chain", logrus.Fields{
		"providers": providers,
	})
}

// Upload Process Logging Functions
func UploadStart(filename string, provider string, size int64) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryUpload, "Starting upload", logrus.Fields{
		"filename": filename,
		"provider": provider,
		"size":     size,
	})
}

func UploadComplete(filename string, provider string, url string, duration time.Duration) {
	fields := logrus.Fields{
		"filename":    filename,
		"provider":    provider,
		"duration_ms": duration.Milliseconds(),
	}
	if IsVerbose() {
		fields["url"] = url
	}
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryUpload, "Upload completed", fields)
}

func UploadError(filename string, provider string, err error) {
	defaultLogger.logWithCategory(logrus.WarnLevel, CategoryUpload, "Upload failed", logrus.Fields{
		"filename": filename,
		"provider": provider,
		"error":    err,
	})
}

// Concurrency Logging Functions
func ConcurrencySettings(workers int, semaphoreSize int) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryUpload, "Concurrency settings", logrus.Fields{
		"workers":        workers,
		"semaphore_size": semaphoreSize,
	})
}

// Session Logging Functions
func SessionCreated(id, path string) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategorySession, "Session created", logrus.Fields{
		"session_id": id,
		"path":       path,
	})
}

func SessionDestroyed(id, path string) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategorySession, "Session destroyed", logrus.Fields{
		"session_id": id,
		"path":       path,
	})
}

// Pairing Logging Functions
func StateTransition(sessionID string, from, to string, event string) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryPairing, "State transition", logrus.Fields{
		"session_id": sessionID,
		"from":       from,
		"to":         to,
		"event":      event,
	})
}

func PairingCodeIssued(sessionID string, attempt int) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryPairing, "Pairing code issued", logrus.Fields{
		"session_id": sessionID,
		"attempt":    attempt,
	})
}

func ConnectionClosed(sessionID string, code int, kind string) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryPairing, "Connection closed", logrus.Fields{
		"session_id": sessionID,
		"close_code": code,
		"kind":       kind,
	})
}

func NotificationFailed(sessionID string, kind string, err error) {
	defaultLogger.logWithCategory(logrus.WarnLevel, CategoryNotify, "Notification failed", logrus.Fields{
		"session_id": sessionID,
		"kind":       kind,
		"error":      err,
	})
}

// HTTP front door
func Request(method, path string, status int, duration time.Duration) {
	defaultLogger.logWithCategory(logrus.InfoLevel, CategoryHTTP, "Request handled", logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// CLI and Flag Processing Logging Functions
func FlagProcessing(flag string, value interface{}) {
	defaultLogger.logWithCategory(logrus.DebugLevel, CategoryCLI, "Flag processing", logrus.Fields{
		"flag":  flag,
		"value": value,
	})
}

// Error Context Logging Functions
func ErrorContext(context string, err error, details map[string]interface{}) {
	if err == nil {
		return
	}
	fields := logrus.Fields{
		"context": context,
		"error":   err,
	}
	for k, v := range details {
		fields[k] = v
	}
	defaultLogger.logWithCategory(logrus.ErrorLevel, CategoryError, "Error occurred", fields)
}

// General logging methods for direct access
func Info(message string, fields logrus.Fields) {
	defaultLogger.logWithCategory(logrus.InfoLevel, "GENERAL", message, fields)
}

func Debug(message string, fields logrus.Fields) {
	defaultLogger.logWithCategory(logrus.DebugLevel, "GENERAL", message, fields)
}

func Error(message string, fields logrus.Fields) {
	defaultLogger.logWithCategory(logrus.ErrorLevel, "GENERAL", message, fields)
}

func Warn(message string, fields logrus.Fields) {
	defaultLogger.logWithCategory(logrus.WarnLevel, "GENERAL", message, fields)
}
