/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the
 * API endpoints, associates them with their handlers, and applies the
 * middleware stack: logging, panic recovery, timeouts, CORS, bearer auth
 * and transfer rate limiting.
 *
 * @dependencies
 * - net/http, time: Standard Go libraries.
 * - github.com/go-chi/chi/v5: HTTP routing.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/transfa/ledger-service/internal/app"
)

// RouterConfig carries the router's cross-cutting settings.
type RouterConfig struct {
	InternalAPIKey        string
	TransferRatePerMinute int
	RateLimiter           app.RateLimiter
}

// LedgerRoutes creates and returns the router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, service *app.Service, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Internal-Api-Key"},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints.
	r.Post("/accounts/register", h.RegisterHandler)
	r.Post("/accounts/login", h.LoginHandler)
	r.Get("/tokens", h.TokenCatalogHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(service))

		r.Get("/accounts/me", h.MeHandler)
		r.Put("/accounts/me/profile", h.UpdateProfileHandler)
		r.Put("/accounts/me/theme", h.UpdateThemeHandler)
		r.Get("/transfers/history", h.HistoryHandler)

		// Transfer endpoints carry the per-account rate limit.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cfg.RateLimiter, "transfers", cfg.TransferRatePerMinute))

			r.Post("/transfers/trigger", h.TriggerHandler)
			r.Post("/transfers/receive", h.ReceiveHandler)
			r.Post("/tokens/purchase", h.PurchaseHandler)
		})
	})

	// Operator endpoints gated by the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(cfg.InternalAPIKey))

		r.Put("/accounts/{accountID}/verify", h.VerifyAccountHandler)
	})

	return r
}
