package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims represents the claims expected on administrative tokens.
type AdminClaims struct {
	AdminID        string
	OrganizationID string
}

// JWTValidator validates administrative bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*AdminClaims, error)
}

type contextKeyAdminID struct{}
type contextKeyOrganizationID struct{}

// Context keys exported for use in handlers.
var (
	ContextKeyAdminID        = contextKeyAdminID{}
	ContextKeyOrganizationID = contextKeyOrganizationID{}
)

// GetAdminID retrieves the authenticated admin ID from the context.
func GetAdminID(ctx context.Context) string {
	adminID, ok := ctx.Value(ContextKeyAdminID).(string)
	if !ok {
		return ""
	}
	return adminID
}

// GetOrganizationID retrieves the admin's organization scope from the context.
func GetOrganizationID(ctx context.Context) string {
	orgID, ok := ctx.Value(ContextKeyOrganizationID).(string)
	if !ok {
		return ""
	}
	return orgID
}

// HMACValidator checks HS256 tokens against a shared signing key.
type HMACValidator struct {
	signingKey []byte
}

func NewHMACValidator(signingKey string) *HMACValidator {
	return &HMACValidator{signingKey: []byte(signingKey)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	out := &AdminClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.AdminID = sub
	}
	if org, ok := claims["org"].(string); ok {
		out.OrganizationID = org
	}
	if out.AdminID == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return out, nil
}

// RequireAuth guards the administrative surface with bearer-token auth.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyAdminID, claims.AdminID)
			ctx = context.WithValue(ctx, ContextKeyOrganizationID, claims.OrganizationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"unauthorized","error_description":%q}`, description)
}
