package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs authentication attempts
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := al.baseAttrs("auth", event.EventType)
	attrs = append(attrs, slog.Bool("success", event.Success))
	attrs = append(attrs, event.attrs()...)

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLockout records a key entering a lock tier
func (al *AuditLogger) LogLockout(keyType, identifier string, attempts int, lockedUntil time.Time) {
	attrs := al.baseAttrs("lockout", "key_locked")
	attrs = append(attrs,
		slog.String("key_type", keyType),
		slog.String("identifier", MaskIdentifier(keyType, identifier)),
		slog.Int("attempts", attempts),
		slog.String("locked_until", lockedUntil.UTC().Format(time.RFC3339)),
	)
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

// LogAdminAction records an operator changing limiter state. identifier may
// be empty for store-wide actions.
func (al *AuditLogger) LogAdminAction(eventType, actorID, keyType, identifier string, metadata map[string]string) {
	attrs := al.baseAttrs("lockout", eventType)
	if actorID != "" {
		attrs = append(attrs, slog.String("actor_id", actorID))
	}
	if keyType != "" {
		attrs = append(attrs, slog.String("key_type", keyType))
	}
	if identifier != "" {
		attrs = append(attrs, slog.String("identifier", MaskIdentifier(keyType, identifier)))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) baseAttrs(auditType, eventType string) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
}

func (e AuditEvent) attrs() []slog.Attr {
	var attrs []slog.Attr
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(e.Email)))
	}
	if e.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", e.IPAddress))
	}
	if e.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", e.FailureReason))
	}
	for key, val := range e.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	return attrs
}
