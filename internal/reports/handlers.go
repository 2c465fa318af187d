package reports

import (
	"errors"
	"net/http"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Handler exposes reporting endpoints.
type Handler struct {
	Svc *Service
}

// Summary handles GET /api/reports/summary?from=&to=.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORTS_NOT_CONFIGURED", "reports service not configured", nil)
		return
	}
	scope, err := tenant.ScopeFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant context is required", nil)
		return
	}
	q := r.URL.Query()
	from, to, err := h.Svc.Range(q.Get("from"), q.Get("to"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	summary, err := h.Svc.Summary(r.Context(), scope, from, to)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantMissing) {
			common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant context is required", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "REPORTS_ERROR", "failed to build report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}
