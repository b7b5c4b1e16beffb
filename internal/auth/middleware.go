package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const tenantContextKey contextKey = "tenant"

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// TenantInfo holds tenant information extracted from authentication
type TenantInfo struct {
	ID   uuid.UUID
	Name string
}

// WithTenant stores tenant info in the context.
func WithTenant(ctx context.Context, info TenantInfo) context.Context {
	return context.WithValue(ctx, tenantContextKey, info)
}

// TenantFromContext returns the authenticated tenant, if any.
func TenantFromContext(ctx context.Context) (TenantInfo, bool) {
	info, ok := ctx.Value(tenantContextKey).(TenantInfo)
	return info, ok
}

// ErrorHandler renders an authentication failure.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware requires a valid bearer token on every request whose path is not
// in skip, and stores the token's tenant in the request context.
func (m *JWTManager) Middleware(onError ErrorHandler, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, ErrMissingToken)
				return
			}
			claims, err := m.ValidateToken(token)
			if err != nil {
				onError(w, r, err)
				return
			}
			tenantID, _ := claims.GetTenantID()

			ctx := WithTenant(r.Context(), TenantInfo{ID: tenantID, Name: claims.TenantName})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
