package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/icsolutions/identity-core/internal/audit"
	"github.com/icsolutions/identity-core/internal/identity"
)

// handleListAccounts returns all accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		s.logger.Error("listing accounts", "error", err)
		writeInternalError(w, "failed to list accounts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// handleGetAccount returns one account with its roles and claims.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := s.accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("getting account", "error", err, "account_id", id)
		writeInternalError(w, "failed to get account")
		return
	}

	roles, err := s.accounts.ListRoles(r.Context(), id)
	if err != nil {
		s.logger.Error("listing account roles", "error", err, "account_id", id)
		writeInternalError(w, "failed to get account")
		return
	}

	claims, err := s.accounts.ListClaims(r.Context(), id)
	if err != nil {
		s.logger.Error("listing account claims", "error", err, "account_id", id)
		writeInternalError(w, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"roles":   roles,
		"claims":  claims,
	})
}

// handleDeleteAccount removes an account. Guarded by the delete policy.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFrom(r.Context())

	if err := s.accounts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("deleting account", "error", err, "account_id", id)
		writeInternalError(w, "failed to delete account")
		return
	}

	s.recordAudit(r.Context(), audit.ActionAccountDeleted, "account", id, p.AccountID, nil)

	w.WriteHeader(http.StatusNoContent)
}

// setClaimRequest is the request body for PUT /accounts/{id}/claims/{type}.
type setClaimRequest struct {
	Value string `json:"value"`
}

// handleSetClaim assigns a claim value, replacing any existing value of
// the same type.
func (s *Server) handleSetClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claimType := chi.URLParam(r, "type")
	p := principalFrom(r.Context())

	var req setClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == "" {
		writeBadRequest(w, "claim value is required")
		return
	}

	if err := s.accounts.SetClaim(r.Context(), id, claimType, req.Value); err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("setting claim", "error", err, "account_id", id)
		writeInternalError(w, "failed to set claim")
		return
	}

	s.recordAudit(r.Context(), audit.ActionClaimChange, "account", id, p.AccountID, map[string]any{
		"claim_type": claimType,
		"value":      req.Value,
	})

	writeJSON(w, http.StatusOK, identity.Claim{Type: claimType, Value: req.Value})
}

// handleRemoveClaim deletes a claim from an account.
func (s *Server) handleRemoveClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claimType := chi.URLParam(r, "type")
	p := principalFrom(r.Context())

	if err := s.accounts.RemoveClaim(r.Context(), id, claimType); err != nil {
		if errors.Is(err, identity.ErrClaimNotFound) {
			writeNotFound(w, "claim not found")
			return
		}
		s.logger.Error("removing claim", "error", err, "account_id", id)
		writeInternalError(w, "failed to remove claim")
		return
	}

	s.recordAudit(r.Context(), audit.ActionClaimChange, "account", id, p.AccountID, map[string]any{
		"claim_type": claimType,
		"removed":    true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleAttachRole adds an account to a role.
func (s *Server) handleAttachRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	roleID := chi.URLParam(r, "roleID")
	p := principalFrom(r.Context())

	if err := s.accounts.AttachRole(r.Context(), id, roleID); err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			writeNotFound(w, "role or account not found")
			return
		}
		s.logger.Error("attaching role", "error", err, "account_id", id)
		writeInternalError(w, "failed to attach role")
		return
	}

	s.recordAudit(r.Context(), audit.ActionRoleChange, "account", id, p.AccountID, map[string]any{
		"role_id": roleID, "attached": true,
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleDetachRole removes an account from a role.
func (s *Server) handleDetachRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	roleID := chi.URLParam(r, "roleID")
	p := principalFrom(r.Context())

	if err := s.accounts.DetachRole(r.Context(), id, roleID); err != nil {
		if errors.Is(err, identity.ErrRoleNotFound) {
			writeNotFound(w, "role membership not found")
			return
		}
		s.logger.Error("detaching role", "error", err, "account_id", id)
		writeInternalError(w, "failed to detach role")
		return
	}

	s.recordAudit(r.Context(), audit.ActionRoleChange, "account", id, p.AccountID, map[string]any{
		"role_id": roleID, "attached": false,
	})

	w.WriteHeader(http.StatusNoContent)
}
