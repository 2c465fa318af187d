package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/http/middleware"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

func TestRequireTenant(t *testing.T) {
	cases := []struct {
		name   string
		ctx    func(context.Context) context.Context
		status int
		code   string
	}{
		{name: "missing", ctx: func(c context.Context) context.Context { return c }, status: http.StatusBadRequest, code: "TENANT_REQUIRED"},
		{name: "invalid", ctx: func(c context.Context) context.Context { return tenant.With(c, "tenant-123") }, status: http.StatusBadRequest, code: "TENANT_INVALID"},
		{name: "present", ctx: func(c context.Context) context.Context { return tenant.With(c, uuid.NewString()) }, status: http.StatusOK},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
			req = req.WithContext(tc.ctx(req.Context()))
			rec := httptest.NewRecorder()
			middleware.RequireTenant(next).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.code != "" && !strings.Contains(rec.Body.String(), tc.code) {
				t.Fatalf("expected %s in body %s", tc.code, rec.Body.String())
			}
		})
	}
}
