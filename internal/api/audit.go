package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/icsolutions/identity-core/internal/audit"
)

// recordAudit writes an entry to the audit trail. Failures are logged
// and swallowed: the trail never blocks the request path.
func (s *Server) recordAudit(ctx context.Context, action, entityType, entityID, accountID string, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		AccountID:  accountID,
		Source:     "api",
		Details:    details,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("recording audit entry", "error", err, "action", action)
	}
}

// handleListAudit returns audit trail entries, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		AccountID: q.Get("account_id"),
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v) //nolint:errcheck // zero falls back to default
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v) //nolint:errcheck // zero falls back to default
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
