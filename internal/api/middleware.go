/**
 * @description
 * This file contains custom middleware for the HTTP router: bearer token
 * authentication, internal API key gating for operator endpoints, and
 * fixed-window rate limiting on transfer endpoints.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - internal/app: Session token parsing and the rate limiter contract.
 */

package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/transfa/ledger-service/internal/app"
)

// accountIDContextKey is a custom type for the context key to avoid
// collisions.
type accountIDContextKey string

const accountIDKey accountIDContextKey = "accountID"

// GetAccountID extracts the authenticated account id from the request
// context.
func GetAccountID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok
}

// AuthMiddleware validates the bearer session token and stores the account
// id in the request context.
func AuthMiddleware(service *app.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := service.ParseSessionToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, claims.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAPIKeyMiddleware gates operator endpoints behind a shared secret
// carried in the X-Internal-Api-Key header.
func InternalAPIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-Api-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware applies a per-account fixed-window limit to the
// wrapped handlers. A nil limiter disables limiting.
func RateLimitMiddleware(limiter app.RateLimiter, scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			accountID, ok := GetAccountID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, strconv.FormatInt(accountID, 10), perMinute, time.Minute)
			if err != nil {
				// Rate limiting degrades open on limiter faults.
				log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if retryAfter > 0 {
				log.Printf("level=warn component=api msg=\"rate limit exceeded\" scope=%s account_id=%d count=%d", scope, accountID, count)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
