package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"pulse/internal/model"
	"pulse/internal/service"
)

type contextKey string

const callerKey contextKey = "caller"

// TokenValidator turns a bearer token into an approved caller
type TokenValidator interface {
	ValidateToken(token string) (*model.Caller, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireCaller validates any caller JWT from the Authorization header
func (m *AuthMiddleware) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireAdmin validates an admin JWT from the Authorization header
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		if caller.Role != model.RoleAdmin {
			deny(w, http.StatusForbidden, "admin role required", service.ReasonUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (*model.Caller, bool) {
	token := extractBearerToken(r)
	if token == "" {
		deny(w, http.StatusUnauthorized, "missing authorization header", service.ReasonUnauthorized)
		return nil, false
	}
	caller, err := m.validator.ValidateToken(token)
	if err != nil {
		deny(w, http.StatusUnauthorized, "invalid or expired token", service.ReasonUnauthorized)
		return nil, false
	}
	return caller, true
}

// WithCaller attaches the approved caller to ctx
func WithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller extracts the caller from context
func GetCaller(ctx context.Context) *model.Caller {
	if v, ok := ctx.Value(callerKey).(*model.Caller); ok {
		return v
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func deny(w http.ResponseWriter, status int, message string, reason service.Reason) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "reason": string(reason)})
}
