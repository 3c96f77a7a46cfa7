package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/TheHatt/revboard/internal/domain"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
	"github.com/TheHatt/revboard/pkg/httputil"
	"github.com/TheHatt/revboard/pkg/middleware"
)

type scopeKey struct{}

// ScopeResolver derives the access scope of an authenticated user.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, userID, activeTenantID string, claimed []string) (*domain.AccessScope, error)
}

// ResolveScope turns the verified session into an AccessScope and stores it
// in the request context. It must run after middleware.JWTAuth.
func ResolveScope(resolver ScopeResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := middleware.SessionFromContext(r.Context())
			if sess == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), logger)
				return
			}

			scope, err := resolver.ResolveScope(r.Context(), sess.UserID, sess.TenantID, sess.AllowedLocationIDs)
			if err != nil {
				httputil.WriteError(w, r, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), scopeKey{}, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// scopeFromContext returns the scope stored by ResolveScope.
func scopeFromContext(ctx context.Context) (*domain.AccessScope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*domain.AccessScope)
	return scope, ok && scope != nil
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
