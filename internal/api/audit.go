package api

import (
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/audit"
)

// recordAudit writes an audit entry for a privacy-sensitive operation.
// A nil repository disables auditing. Failures are logged but do not
// fail the request; the operation itself already succeeded.
func recordAudit(r *http.Request, repo audit.Repository, entityType, entityID, action string) {
	if repo == nil {
		return
	}
	if err := audit.LogAccessFromRequest(r, repo, entityType, entityID, action); err != nil {
		slog.WarnContext(r.Context(), "audit logging failed",
			"error", err,
			"entity_type", entityType,
			"action", action,
		)
	}
}
