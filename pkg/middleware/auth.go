package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// SessionHeader carries the guest session token for anonymous carts.
const SessionHeader = "X-Session-Token"

type contextKeyType string

const (
	claimsKey  contextKeyType = "claims"
	sessionKey contextKeyType = "session_token"
)

// Claims are the identity fields read from a bearer token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// HMACValidator returns a TokenValidator for HS256 tokens signed with secret.
func HMACValidator(secret string) TokenValidator {
	key := []byte(secret)
	return func(tokenString string) (*Claims, error) {
		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		}, jwt.WithExpirationRequired())
		if err != nil {
			return nil, err
		}

		mc, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return nil, errors.New("invalid token claims")
		}
		userID, _ := mc["user_id"].(string)
		if userID == "" {
			return nil, errors.New("token has no user_id")
		}
		email, _ := mc["email"].(string)
		role, _ := mc["role"].(string)
		return &Claims{UserID: userID, Email: email, Role: role}, nil
	}
}

// IssueToken signs an HS256 token for c that expires after ttl.
func IssueToken(secret string, c Claims, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": c.UserID,
		"email":   c.Email,
		"role":    c.Role,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	})
	return token.SignedString([]byte(secret))
}

// Auth rejects requests without a valid bearer token.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing bearer token"), nil)
				return
			}
			ctx, err := authenticate(r.Context(), validate, token)
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(ctx, r)))
		})
	}
}

// OptionalAuth lets anonymous requests through, identified only by their
// session header. A bearer token that is present must still be valid.
func OptionalAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token, ok := bearerToken(r); ok {
				var err error
				ctx, err = authenticate(ctx, validate, token)
				if err != nil {
					httputil.WriteError(w, r, err, nil)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(withSession(ctx, r)))
		})
	}
}

// RequireRole allows only callers whose token carries one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

func authenticate(ctx context.Context, validate TokenValidator, token string) (context.Context, error) {
	claims, err := validate(token)
	if err != nil {
		return ctx, apperrors.Unauthorized("invalid or expired token")
	}
	ctx = context.WithValue(ctx, claimsKey, claims)
	return logger.WithUserID(ctx, claims.UserID), nil
}

func withSession(ctx context.Context, r *http.Request) context.Context {
	token := strings.TrimSpace(r.Header.Get(SessionHeader))
	if token == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, sessionKey, token)
	return logger.WithSession(ctx, token)
}

// ClaimsFromContext returns the authenticated claims, or nil for guests.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext returns the authenticated role or "".
func RoleFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}

// SessionTokenFromContext returns the guest session token or "".
func SessionTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey).(string)
	return s
}
