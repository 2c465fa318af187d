package voucher

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/audit"
	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Auditor records audit entries without failing the request.
type Auditor interface {
	RecordBestEffort(ctx context.Context, scope tenant.Scope, actor audit.Actor, action, resourceType, resourceID string, req *http.Request, status int, metadata map[string]any)
}

// Handler exposes voucher operations over HTTP.
type Handler struct {
	Svc   *Service
	Audit Auditor
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Principal, tenant.Scope, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher service not configured", nil)
		return common.Principal{}, tenant.Scope{}, false
	}
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return common.Principal{}, tenant.Scope{}, false
	}
	scope, err := tenant.ScopeFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant context is required", nil)
		return common.Principal{}, tenant.Scope{}, false
	}
	return principal, scope, true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		common.WriteError(w, notFound("voucher not found"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) record(r *http.Request, scope tenant.Scope, principal common.Principal, action, id string, status int, meta map[string]any) {
	if h.Audit == nil {
		return
	}
	h.Audit.RecordBestEffort(r.Context(), scope, audit.ActorFromPrincipal(principal), action, "voucher", id, r, status, meta)
}

// Issue handles POST /api/vouchers.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req IssueRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.Issue(r.Context(), principal, scope, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.record(r, scope, principal, audit.ActionVoucherIssue, view.ID.String(), http.StatusCreated, map[string]any{
		"code":     view.Code,
		"clientId": view.Client.ID,
		"agencyId": view.AgencyID,
	})
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// List handles GET /api/vouchers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, perPage := common.ParsePagination(r, 20)
	views, pagination, err := h.Svc.List(r.Context(), principal, scope, ListParams{
		Status:   q.Get("status"),
		Validity: q.Get("validity"),
		ClientID: q.Get("clientId"),
		AgencyID: q.Get("agencyId"),
		Code:     q.Get("code"),
		FromDate: q.Get("fromDate"),
		ToDate:   q.Get("toDate"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views, "pagination": pagination})
}

// Get handles GET /api/vouchers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.Svc.Get(r.Context(), principal, scope, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Lookup handles GET /api/vouchers/lookup?code=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	detail, err := h.Svc.Lookup(r.Context(), principal, scope, r.URL.Query().Get("code"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Redeem handles POST /api/vouchers/{id}/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req RedeemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Redeem(r.Context(), principal, scope, id, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.record(r, scope, principal, audit.ActionVoucherRedeem, id.String(), http.StatusOK, map[string]any{
		"code":     out.Voucher.Code,
		"centerId": out.Redemption.CenterID,
		"weightKg": out.Redemption.WeightKg,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Unfulfilled handles POST /api/vouchers/{id}/unfulfilled.
func (h *Handler) Unfulfilled(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req UnfulfilledRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	out, err := h.Svc.MarkUnfulfilled(r.Context(), principal, scope, id, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.record(r, scope, principal, audit.ActionVoucherUnfulfilled, id.String(), http.StatusOK, map[string]any{
		"code":   out.Voucher.Code,
		"reason": out.Redemption.FailureReason,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Invalidate handles POST /api/vouchers/{id}/invalidate.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	view, err := h.Svc.Invalidate(r.Context(), principal, scope, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.record(r, scope, principal, audit.ActionVoucherInvalidate, id.String(), http.StatusOK, map[string]any{"code": view.Code})
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Delete handles DELETE /api/vouchers/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	view, err := h.Svc.Delete(r.Context(), principal, scope, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.record(r, scope, principal, audit.ActionVoucherDelete, id.String(), http.StatusNoContent, map[string]any{
		"code":     view.Code,
		"clientId": view.Client.ID,
		"agencyId": view.AgencyID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Eligibility handles GET /api/clients/{id}/eligibility.
func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	principal, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	clientID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, notFound("client not found"))
		return
	}
	result, err := h.Svc.ClientEligibility(r.Context(), principal, scope, clientID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}
