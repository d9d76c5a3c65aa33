package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/icsolutions/identity-core/internal/identity"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeLockedOut    = "locked_out"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps domain authentication errors to HTTP responses.
// Credential failures and token failures both map to 401; the lockout
// gets its own code so clients can explain the wait to the user.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, identity.ErrAccountLockedOut):
		writeError(w, http.StatusUnauthorized, ErrCodeLockedOut, "account temporarily locked")
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "email address not confirmed")
	case errors.Is(err, identity.ErrInvalidRefreshToken), errors.Is(err, identity.ErrExpiredRefreshToken):
		writeUnauthorized(w, "invalid or expired refresh token")
	case errors.Is(err, identity.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid email address")
	case errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "password does not meet minimum requirements")
	case errors.Is(err, identity.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "email already registered")
	case errors.Is(err, identity.ErrInvalidConfirmation):
		writeBadRequest(w, "invalid confirmation token")
	case errors.Is(err, identity.ErrAccountNotFound):
		writeNotFound(w, "account not found")
	default:
		s.logger.Error("unhandled auth error", "error", err)
		writeInternalError(w, "internal server error")
	}
}
