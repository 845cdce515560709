package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"modrota/internal/contextutils"
	"modrota/internal/response"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// RoleAdmin marks operators allowed to mutate scope configs.
const RoleAdmin = "admin"

// claims is the token payload the platform's auth service issues.
type claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens and loads caller identity into the
// request context.
type Authenticator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewAuthenticator creates a JWT authenticator with the shared HS256 secret.
// Tokens from any other issuer are rejected; an empty issuer disables the
// check.
func NewAuthenticator(secret, issuer string, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := a.parseToken(r)
		if err != nil {
			a.logger.Debug("Authentication failed",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			response.WriteError(w, r, http.StatusUnauthorized, "invalid or missing token")
			return
		}

		ctx := contextutils.WithUserID(r.Context(), c.UserID)
		ctx = contextutils.WithRole(ctx, c.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers without the admin role. Must be
// stacked after RequireAuth.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextutils.GetRole(r.Context()) != RoleAdmin {
			response.WriteError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) parseToken(r *http.Request) (*claims, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	var opts []jwt.ParserOption
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || c.UserID == 0 {
		return nil, fmt.Errorf("invalid token claims")
	}
	return &c, nil
}
