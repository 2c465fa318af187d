package audit

import (
	"net/http"
	"strings"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves the admin audit log listing.
type Handler struct {
	Store Store
}

// List returns a page of the tenant's audit logs for administrators.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	scope, err := tenant.ScopeFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant context is required", nil)
		return
	}
	q := r.URL.Query()
	limit := common.QueryInt(q, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := max(common.QueryInt(q, "offset", 0), 0)
	action := strings.TrimSpace(q.Get("action"))

	rows, err := h.Store.ListAuditLogs(r.Context(), scope, action, limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	if rows == nil {
		rows = []store.AuditLog{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
