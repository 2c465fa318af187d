package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// TenantTx runs fn in a tenant bound transaction.
type TenantTx interface {
	WithTenantTx(ctx context.Context, scope tenant.Scope, fn func(q *store.Queries) error) error
}

// Handler exposes the current billing period usage.
type Handler struct {
	Store TenantTx
	Gate  Gate
	Now   func() time.Time
}

// Usage handles GET /api/billing/usage.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing not configured", nil)
		return
	}
	scope, err := tenant.ScopeFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant context is required", nil)
		return
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	var usage Usage
	err = h.Store.WithTenantTx(r.Context(), scope, func(q *store.Queries) error {
		var uerr error
		usage, uerr = h.Gate.Usage(r.Context(), q, scope.OrganizationID, now)
		return uerr
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": usage})
}
