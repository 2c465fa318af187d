package middleware

import (
	"errors"
	"net/http"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

var (
	errTenantRequired = common.NewAppError("TENANT_REQUIRED", "organization is required", http.StatusBadRequest, nil)
	errTenantInvalid  = common.NewAppError("TENANT_INVALID", "organization identifier is invalid", http.StatusBadRequest, nil)
)

// RequireTenant stops requests that reach tenant routes without a usable
// organization scope. It runs after auth, which fills the scope from the token.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := tenant.ScopeFromContext(r.Context())
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, tenant.ErrTenantInvalid):
			common.WriteError(w, errTenantInvalid)
		default:
			common.WriteError(w, errTenantRequired)
		}
	})
}
