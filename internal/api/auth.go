package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/icsolutions/identity-core/internal/audit"
	"github.com/icsolutions/identity-core/internal/identity"
	"github.com/icsolutions/identity-core/internal/obs"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// confirmRequest is the request body for POST /auth/confirm.
type confirmRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// changePasswordRequest is the request body for POST /auth/change-password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// toTokenResponse converts a minted pair to the wire form.
func toTokenResponse(pair *identity.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(pair.AccessExpiresAt).Seconds()),
	}
}

// handleRegister creates a new unconfirmed account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	account, err := s.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionRegister, "account", account.ID, account.ID, nil)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    account.ID,
		"email": account.Email,
	})
}

// handleConfirmEmail completes registration with the emailed token.
func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.service.ConfirmEmail(r.Context(), req.Email, req.Token); err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionConfirmEmail, "account", "", "", map[string]any{
		"email": req.Email,
	})

	writeJSON(w, http.StatusOK, map[string]any{"confirmed": true})
}

// handleLogin authenticates an email/password pair and returns a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.RecordLogin(loginOutcome(err))
		if errors.Is(err, identity.ErrAccountLockedOut) {
			obs.RecordLockout()
			s.recordAudit(r.Context(), audit.ActionLockout, "account", "", "", map[string]any{"email": req.Email})
		} else {
			s.recordAudit(r.Context(), audit.ActionLoginFailed, "account", "", "", map[string]any{"email": req.Email})
		}
		s.writeAuthError(w, err)
		return
	}

	obs.RecordLogin("success")
	s.recordAudit(r.Context(), audit.ActionLogin, "account", "", "", map[string]any{"email": req.Email})

	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// handleRefresh rotates a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.RecordRotation(rotationOutcome(err))
		s.writeAuthError(w, err)
		return
	}

	obs.RecordRotation("success")
	s.recordAudit(r.Context(), audit.ActionRefresh, "account", "", "", nil)

	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// handleLogout revokes the caller's refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	if err := s.service.Logout(r.Context(), p.AccountID); err != nil {
		writeInternalError(w, "logout failed")
		return
	}

	s.recordAudit(r.Context(), audit.ActionLogout, "account", p.AccountID, p.AccountID, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword rotates the caller's password and kills the
// refresh token issued under the old one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p := principalFrom(r.Context())

	if err := s.service.ChangePassword(r.Context(), p.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionPasswordChange, "account", p.AccountID, p.AccountID, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the caller's identity as seen by the guards.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	grants := make(map[string][]string, len(p.Grants))
	for claimType, g := range p.Grants {
		grants[claimType] = g.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": p.AccountID,
		"roles":      p.Roles,
		"grants":     grants,
	})
}

// loginOutcome maps a login error to a metric label.
func loginOutcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrAccountLockedOut):
		return "locked_out"
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return "unconfirmed"
	default:
		return "error"
	}
}

// rotationOutcome maps a refresh error to a metric label.
func rotationOutcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidRefreshToken):
		return "invalid"
	case errors.Is(err, identity.ErrExpiredRefreshToken):
		return "expired"
	default:
		return "error"
	}
}
