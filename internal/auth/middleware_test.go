package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

func TestRequireAuth(t *testing.T) {
	svc := newTestService(t, time.Now())
	p := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleStaff}
	token, _, err := svc.IssueAccessToken(p)
	require.NoError(t, err)

	var (
		gotPrincipal common.Principal
		gotTenant    string
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal, _ = common.PrincipalFrom(r.Context())
		gotTenant, _ = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware{Service: svc}.RequireAuth(next)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vouchers", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, p.UserID, gotPrincipal.UserID)
	require.Equal(t, p.OrganizationID.String(), gotTenant)

	req = httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req = req.WithContext(tenant.WithTenant(req.Context(), uuid.NewString()))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(common.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/audit-logs", nil)
	staff := common.WithPrincipal(req.Context(), common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleStaff})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(staff))
	require.Equal(t, http.StatusForbidden, rr.Code)

	admin := common.WithPrincipal(req.Context(), common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleAdmin})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(admin))
	require.Equal(t, http.StatusOK, rr.Code)
}
