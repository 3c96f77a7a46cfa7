package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/httputil"
	"github.com/TheHatt/revboard/pkg/logger"
)

type sessionKey struct{}

// Session is the verified identity of the caller.
type Session struct {
	UserID             string
	TenantID           string
	Role               string
	AllowedLocationIDs []string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	TenantID           string   `json:"tenant_id,omitempty"`
	Role               string   `json:"role,omitempty"`
	AllowedLocationIDs []string `json:"allowed_location_ids,omitempty"`
}

// ParseToken verifies an HS256 token signed with secret and returns its session.
func ParseToken(token, secret string) (*Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Session{
		UserID:             claims.Subject,
		TenantID:           claims.TenantID,
		Role:               claims.Role,
		AllowedLocationIDs: claims.AllowedLocationIDs,
	}, nil
}

// JWTAuth rejects requests without a valid bearer token and stores the
// resulting Session in the request context.
func JWTAuth(secret string, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if header == "" || !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing or malformed bearer token"), l)
				return
			}

			sess, err := ParseToken(strings.TrimSpace(token), secret)
			if err != nil {
				l.WarnContext(r.Context(), "rejected token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), l)
				return
			}

			ctx := WithSession(r.Context(), sess)
			ctx = logger.WithUserID(ctx, sess.UserID)
			if sess.TenantID != "" {
				ctx = logger.WithTenantID(ctx, sess.TenantID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only sessions whose role is one of roles.
func RequireRole(l *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), l)
				return
			}
			if _, ok := allowed[sess.Role]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), l)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session stored by JWTAuth, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}
