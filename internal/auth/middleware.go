package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/obs"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

var errNoToken = errors.New("auth: token missing")

// Middleware authenticates bearer tokens issued by Service.
type Middleware struct {
	Service *Service
}

// RequireAuth stores the token's principal on the context. A tenant already
// resolved from the request must match the token's organization; without one
// the token's organization becomes the tenant.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if !common.IsAppError(err) {
				err = unauthorized("missing or invalid token", err)
			}
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects principals that hold none of roles.
func RequireRole(roles ...common.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := common.PrincipalFrom(r.Context())
			if !ok {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			if !p.HasRole(roles...) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var errForeignTenant = common.NewAppError("FORBIDDEN", "token does not belong to this organization", http.StatusForbidden, nil)

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	ctx := r.Context()
	if m.Service == nil {
		return ctx, errors.New("auth: service not configured")
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return ctx, errNoToken
	}
	p, err := m.Service.ParseAccessToken(token)
	if err != nil {
		return ctx, err
	}

	org := p.OrganizationID.String()
	if current, ok := tenant.FromContext(ctx); ok {
		scope, err := tenant.NewScope(current)
		if err != nil || scope.OrganizationID != p.OrganizationID {
			return ctx, errForeignTenant
		}
	} else {
		ctx = tenant.WithTenant(ctx, org)
	}
	ctx = common.WithPrincipal(ctx, p)
	obs.SetLogField(ctx, "user_id", p.UserID.String())
	obs.SetLogField(ctx, "role", string(p.Role))
	obs.SetLogField(ctx, "tenant", org)
	return ctx, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
