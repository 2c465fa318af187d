package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type slugMap map[string]uuid.UUID

func (m slugMap) OrganizationIDBySlug(_ context.Context, slug string) (uuid.UUID, error) {
	id, ok := m[slug]
	if !ok {
		return uuid.Nil, errors.New("not found")
	}
	return id, nil
}

func captureTenant(t *testing.T, r *Resolver, req *http.Request) (string, int) {
	t.Helper()
	var got string
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, _ = From(req.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return got, rec.Code
}

func TestResolverHeader(t *testing.T) {
	id := uuid.New()
	r := NewResolver("", "", nil)
	req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	req.Header.Set("X-Organization-ID", id.String())
	got, code := captureTenant(t, r, req)
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, id.String(), got)
}

func TestResolverSubdomainSlug(t *testing.T) {
	id := uuid.New()
	r := NewResolver("", "hubs.example.org", slugMap{"leeds": id})
	req := httptest.NewRequest(http.MethodGet, "http://leeds.hubs.example.org:8080/api/vouchers", nil)
	got, code := captureTenant(t, r, req)
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, id.String(), got)
}

func TestResolverUnknownSlug(t *testing.T) {
	r := NewResolver("", "hubs.example.org", slugMap{})
	req := httptest.NewRequest(http.MethodGet, "http://nowhere.hubs.example.org/api/vouchers", nil)
	_, code := captureTenant(t, r, req)
	require.Equal(t, http.StatusNotFound, code)
}

func TestResolverNoHintPassesThrough(t *testing.T) {
	r := NewResolver("", "hubs.example.org", nil)
	req := httptest.NewRequest(http.MethodGet, "http://hubs.example.org/api/vouchers", nil)
	got, code := captureTenant(t, r, req)
	require.Equal(t, http.StatusNoContent, code)
	require.Empty(t, got)
}

func TestScopeFromContext(t *testing.T) {
	_, err := ScopeFromContext(context.Background())
	require.ErrorIs(t, err, ErrTenantMissing)

	_, err = ScopeFromContext(With(context.Background(), "not-a-uuid"))
	require.ErrorIs(t, err, ErrTenantInvalid)

	id := uuid.New()
	scope, err := ScopeFromContext(With(context.Background(), id.String()))
	require.NoError(t, err)
	require.Equal(t, id, scope.OrganizationID)
	require.Equal(t, "org:"+id.String()+":reports", PrefixKey(scope, "reports"))
}

func TestPolicy(t *testing.T) {
	p := Policy{TenantIndex: 7, CodeFormat: CodeFormatSequential, AutoExpiryDays: 7, ConsentExempt: true}
	require.True(t, p.Sequential())
	require.Equal(t, "E-007-", p.SequencePrefix())

	issue := time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)
	expiry, ok := p.DeriveExpiry(issue)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), expiry)

	v, allowed := p.ConsentDefault()
	require.True(t, v)
	require.True(t, allowed)

	_, ok = Policy{}.DeriveExpiry(issue)
	require.False(t, ok)
	_, allowed = Policy{}.ConsentDefault()
	require.False(t, allowed)
}

func TestResolverHints(t *testing.T) {
	r := NewResolver("X-Org", ".hubs.example.org.", nil)
	cases := map[string]string{
		"leeds.hubs.example.org":         "leeds",
		"api.leeds.hubs.example.org:443": "leeds",
		"hubs.example.org":               "",
		"10.0.0.4:8080":                  "",
		"[::1]:8080":                     "",
		"elsewhere.test":                 "",
	}
	for host, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
		req.Host = host
		require.Equal(t, want, r.Resolve(req), host)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	req.Host = "leeds.hubs.example.org"
	req.Header.Set("X-Org", " bradford ")
	require.Equal(t, "bradford", r.Resolve(req))
}

func TestResolverRejectsSlugWithoutLookup(t *testing.T) {
	r := NewResolver("", "", nil)
	req := httptest.NewRequest(http.MethodGet, "/api/vouchers", nil)
	req.Header.Set(DefaultHeader, "leeds")
	_, code := captureTenant(t, r, req)
	require.Equal(t, http.StatusBadRequest, code)
}
