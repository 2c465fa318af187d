package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

type listStore struct {
	stubStore
	receivedScope  tenant.Scope
	receivedAction string
	receivedLimit  int
	receivedOffset int
}

func (l *listStore) ListAuditLogs(_ context.Context, scope tenant.Scope, action string, limit, offset int) ([]store.AuditLog, error) {
	l.receivedScope = scope
	l.receivedAction = action
	l.receivedLimit = limit
	l.receivedOffset = offset
	return []store.AuditLog{{Action: ActionVoucherIssue, ResourceType: "voucher"}}, nil
}

func TestHandlerList(t *testing.T) {
	st := &listStore{}
	h := Handler{Store: st}
	orgID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/audit-logs?limit=25&offset=10&action=voucher.issue", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), orgID.String()))
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if st.receivedLimit != 25 || st.receivedOffset != 10 {
		t.Fatalf("unexpected pagination params: %d/%d", st.receivedLimit, st.receivedOffset)
	}
	if st.receivedScope.OrganizationID != orgID || st.receivedAction != ActionVoucherIssue {
		t.Fatalf("unexpected query: %v %s", st.receivedScope, st.receivedAction)
	}
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Data) != 1 {
		t.Fatalf("expected one log entry, got %d", len(payload.Data))
	}
}

func TestHandlerListRequiresTenant(t *testing.T) {
	h := Handler{Store: &listStore{}}
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestMiddlewareRecordsPrincipal(t *testing.T) {
	st := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: st, Enabled: true}}
	orgID := uuid.New()
	p := common.Principal{UserID: uuid.New(), OrganizationID: orgID, Role: common.RoleAdmin}

	handler := rec.Middleware(HTTPConfig{Action: "agency.create", ResourceType: "agency"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/agencies", nil)
	ctx := tenant.WithTenant(req.Context(), orgID.String())
	req = req.WithContext(common.WithPrincipal(ctx, p))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !st.called {
		t.Fatal("expected audit entry")
	}
	if st.lastInsert.ActorUserID == nil || *st.lastInsert.ActorUserID != p.UserID {
		t.Fatalf("unexpected actor: %v", st.lastInsert.ActorUserID)
	}
	if st.lastInsert.Status == nil || *st.lastInsert.Status != http.StatusCreated {
		t.Fatalf("unexpected status: %v", st.lastInsert.Status)
	}
}

func TestMiddlewareSkipsFailures(t *testing.T) {
	st := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: st, Enabled: true}}
	handler := rec.Middleware(HTTPConfig{Action: "agency.create", SkipFailures: true})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/agencies", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), uuid.NewString()))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if st.called {
		t.Fatal("expected failed request to be skipped")
	}
}

func TestMiddlewareReadsCreatedID(t *testing.T) {
	st := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: st, Enabled: true}}
	created := uuid.NewString()
	handler := rec.Middleware(HTTPConfig{Action: ActionCenterCreate, ResourceType: "center"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]string{"id": created, "name": "Depot"}})
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/centers", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), uuid.NewString()))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected response to pass through, got %d", rr.Code)
	}
	if st.lastInsert.ResourceID == nil || *st.lastInsert.ResourceID != created {
		t.Fatalf("expected resource id %s, got %v", created, st.lastInsert.ResourceID)
	}
	if st.lastInsert.Action != ActionCenterCreate {
		t.Fatalf("unexpected action %q", st.lastInsert.Action)
	}
}
