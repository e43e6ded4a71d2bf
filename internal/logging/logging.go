// Package logging provides Ashford's structured logger. It keeps the
// teacher's package-level Debug/Info/Warn/Error(msg, fields...) call shape
// and its PII-redaction pass (internal/pkg/logger in the teacher repo), but
// swaps the hand-rolled os.Stderr JSON writer for github.com/sirupsen/logrus
// so the rest of the ambient stack (hooks, formatters, level parsing) comes
// from the library instead of being reinvented.
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	base   = logrus.New()
	logger = logrus.NewEntry(base)
)

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	base.SetLevel(logrus.InfoLevel)
	base.AddHook(&redactHook{enabled: true})
}

// Configure sets the minimum level and whether PII redaction runs, per
// Config.Log in internal/config.
func Configure(level string, redactPII bool) {
	mu.Lock()
	defer mu.Unlock()

	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	}
	for _, h := range base.Hooks[logrus.AllLevels[0]] {
		if rh, ok := h.(*redactHook); ok {
			rh.enabled = redactPII
		}
	}
}

// WithField returns an Entry carrying a single structured field, for
// request/job-scoped loggers (e.g. job_id, trace_id).
func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { logWithFields(logrus.DebugLevel, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { logWithFields(logrus.InfoLevel, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { logWithFields(logrus.WarnLevel, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { logWithFields(logrus.ErrorLevel, msg, fields...) }

// logWithFields parses fields as alternating key/value pairs, matching the
// teacher's variadic convention, and hands them to logrus as a Fields map.
// Redaction happens in the hook, not here, so it applies uniformly
// regardless of call site.
func logWithFields(level logrus.Level, msg string, fields ...interface{}) {
	entry := logger
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		entry = entry.WithField(key, fields[i+1])
	}
	entry.Log(level, msg)
}
