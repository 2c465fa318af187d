package directory

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Handler exposes client, agency and centre endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Principal, tenant.Scope, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "directory service not configured", nil)
		return common.Principal{}, tenant.Scope{}, false
	}
	p, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return common.Principal{}, tenant.Scope{}, false
	}
	scope, err := tenant.ScopeFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant context is required", nil)
		return common.Principal{}, tenant.Scope{}, false
	}
	return p, scope, true
}

// CreateClient handles POST /api/clients.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in ClientInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.CreateClient(r.Context(), scope, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// ListClients handles GET /api/clients?search=.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	rows, pagination, err := h.Svc.ListClients(r.Context(), scope, strings.TrimSpace(r.URL.Query().Get("search")), page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []store.Client{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows, "pagination": pagination})
}

// GetClient handles GET /api/clients/{id}.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "client not found", nil)
		return
	}
	c, err := h.Svc.GetClient(r.Context(), scope, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// CreateAgency handles POST /api/agencies.
func (h *Handler) CreateAgency(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in AgencyInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	a, err := h.Svc.CreateAgency(r.Context(), p, scope, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": a})
}

// ListAgencies handles GET /api/agencies.
func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.ListAgencies(r.Context(), scope)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []store.Agency{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// CreateCenter handles POST /api/centers.
func (h *Handler) CreateCenter(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in CenterInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.CreateCenter(r.Context(), p, scope, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// ListCenters handles GET /api/centers.
func (h *Handler) ListCenters(w http.ResponseWriter, r *http.Request) {
	_, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.ListCenters(r.Context(), scope)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []store.Center{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
