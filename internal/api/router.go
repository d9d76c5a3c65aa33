package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/icsolutions/identity-core/internal/identity"
	"github.com/icsolutions/identity-core/internal/obs"
)

// Claim grants guarding the management routes. Management of accounts,
// roles, and claims requires the corresponding Customer grant; deleting
// an account additionally requires the Admin role via the delete policy.
const (
	grantRead   = "R"
	grantWrite  = "W"
	grantDelete = "D"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(obs.Instrument)

	// Prometheus scrape endpoint (no auth required)
	r.Handle("/metrics", obs.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/confirm", s.handleConfirmEmail)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/auth/me", s.handleMe)
				r.Post("/auth/logout", s.handleLogout)
				r.Post("/auth/change-password", s.handleChangePassword)
			})

			// Account management
			r.Route("/accounts", func(r chi.Router) {
				r.With(s.requireClaim(identity.CustomerClaimType, grantRead)).
					Get("/", s.handleListAccounts)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requireClaim(identity.CustomerClaimType, grantRead)).
						Get("/", s.handleGetAccount)
					r.With(s.requireDeletePolicy(grantDelete)).
						Delete("/", s.handleDeleteAccount)

					r.With(s.requireClaim(identity.CustomerClaimType, grantWrite)).
						Group(func(r chi.Router) {
							r.Put("/claims/{type}", s.handleSetClaim)
							r.Delete("/claims/{type}", s.handleRemoveClaim)
							r.Put("/roles/{roleID}", s.handleAttachRole)
							r.Delete("/roles/{roleID}", s.handleDetachRole)
						})
				})
			})

			// Role management
			r.Route("/roles", func(r chi.Router) {
				r.With(s.requireClaim(identity.CustomerClaimType, grantRead)).
					Get("/", s.handleListRoles)
				r.With(s.requireClaim(identity.CustomerClaimType, grantWrite)).
					Post("/", s.handleCreateRole)
				r.With(s.requireDeletePolicy(grantDelete)).
					Delete("/{id}", s.handleDeleteRole)
			})

			// Audit trail
			r.With(s.requireClaim(identity.CustomerClaimType, grantRead)).
				Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
