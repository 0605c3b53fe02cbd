// Package logging provides structured logging with trace ID propagation.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	UserIDKey  ContextKey = "user_id"
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with CRAG-specific structured helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the named service at the given level/format.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger using LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry carrying trace/user identifiers from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := ctx.Value(UserIDKey); userID != nil {
		entry = entry.WithField("user_id", userID)
	}
	return entry
}

func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// NewTraceID mints a fresh trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// LogAdmissionDecision records a tier/scope admission outcome.
// CRAG's analogue of the teacher's LogBlockchainTx: same "outcome of a
// domain-specific gated operation" shape, different domain.
func (l *Logger) LogAdmissionDecision(ctx context.Context, subject, decision, reason string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"subject":  subject,
		"decision": decision,
		"reason":   reason,
	}).Info("admission decision")
}

// LogCredentialOperation records a vault operation without ever including
// the credential value itself.
func (l *Logger) LogCredentialOperation(ctx context.Context, name, operation string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"credential": name,
		"operation":  operation,
	})
	if err != nil {
		entry.WithError(err).Warn("credential operation failed")
		return
	}
	entry.Info("credential operation succeeded")
}

// LogSecurityEvent records a security-relevant occurrence.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, details map[string]interface{}) {
	fields := logrus.Fields{"event_type": eventType, "severity": "security"}
	for k, v := range details {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Warn("security event")
}

// LogGatewayRequest records the outcome of a gateway admission pipeline run.
func (l *Logger) LogGatewayRequest(ctx context.Context, endpoint, path string, cached bool, latency time.Duration, err error) {
	fields := logrus.Fields{
		"endpoint":    endpoint,
		"path":        path,
		"cached":      cached,
		"duration_ms": latency.Milliseconds(),
	}
	entry := l.WithContext(ctx).WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("gateway request failed")
		return
	}
	entry.Info("gateway request")
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level logger, lazily falling back to a
// generic one if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("crag", "info", "json")
	}
	return defaultLogger
}
