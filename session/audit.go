package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmcleod/cardledger/metrics"
)

// AuditEvent identifies a session transition being logged.
type AuditEvent string

const (
	AuditLoginSuccess           AuditEvent = "login_success"
	AuditLoginRejected          AuditEvent = "login_rejected"
	AuditLogout                 AuditEvent = "logout"
	AuditTokenCleared           AuditEvent = "token_cleared"
	AuditTokenChangedExternally AuditEvent = "token_changed_externally"
	AuditSessionExpired         AuditEvent = "session_expired"
)

// auditLogger wraps slog.Logger for structured session audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newAuditLogger(logger *slog.Logger, m *metrics.Recorder) *auditLogger {
	return &auditLogger{
		logger:  logger.With("component", "audit"),
		metrics: m,
	}
}

func (al *auditLogger) log(event AuditEvent, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", baseAttrs...)
	al.metrics.ObserveTransition(string(event))
	if event == AuditLoginRejected {
		al.metrics.ObserveLoginFailure()
	}
}

// logUser is a convenience for events about a known user. The token itself
// is never logged.
func (al *auditLogger) logUser(event AuditEvent, u User, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("subject", u.Subject),
		slog.String("role", string(u.Role)),
	}
	al.log(event, append(attrs, extra...)...)
}

func (al *auditLogger) logFailure(event AuditEvent, reason error, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason.Error()),
	}
	al.log(event, append(attrs, extra...)...)
}
