package console

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies a console action worth an audit record. Session
// transitions are audited by the session itself.
type AuditEvent string

const (
	AuditRegister         AuditEvent = "register"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditUpload           AuditEvent = "upload"
	AuditExport           AuditEvent = "export"
	AuditAdminAction      AuditEvent = "admin_action"
)

type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", append(base, attrs...)...)
}
