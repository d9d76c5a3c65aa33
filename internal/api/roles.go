package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/icsolutions/identity-core/internal/audit"
	"github.com/icsolutions/identity-core/internal/identity"
)

// handleListRoles returns all roles.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.List(r.Context())
	if err != nil {
		s.logger.Error("listing roles", "error", err)
		writeInternalError(w, "failed to list roles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
		"count": len(roles),
	})
}

// createRoleRequest is the request body for POST /roles.
type createRoleRequest struct {
	Name string `json:"name"`
}

// handleCreateRole creates a new role.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "role name is required")
		return
	}

	role := &identity.Role{Name: req.Name}
	if err := s.roles.Create(r.Context(), role); err != nil {
		if errors.Is(err, identity.ErrRoleExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "role already exists")
			return
		}
		s.logger.Error("creating role", "error", err)
		writeInternalError(w, "failed to create role")
		return
	}

	p := principalFrom(r.Context())
	s.recordAudit(r.Context(), audit.ActionRoleChange, "role", role.ID, p.AccountID, map[string]any{
		"name": role.Name, "created": true,
	})

	writeJSON(w, http.StatusCreated, role)
}

// handleDeleteRole removes a role. Guarded by the delete policy.
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r.Context())

	if err := s.roles.Delete(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			writeNotFound(w, "role not found")
			return
		}
		s.logger.Error("deleting role", "error", err, "role_id", id)
		writeInternalError(w, "failed to delete role")
		return
	}

	s.recordAudit(r.Context(), audit.ActionRoleChange, "role", id, p.AccountID, map[string]any{
		"deleted": true,
	})

	w.WriteHeader(http.StatusNoContent)
}
