package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

type memDir struct {
	clients  map[uuid.UUID]store.Client
	agencies []store.Agency
	centers  []store.Center
	search   string
	limit    int
	offset   int
}

func newMemDir() *memDir { return &memDir{clients: map[uuid.UUID]store.Client{}} }

func (m *memDir) InTenant(_ context.Context, _ tenant.Scope, fn func(q Querier) error) error {
	return fn(m)
}

func (m *memDir) CreateClient(_ context.Context, arg store.CreateClientParams) (store.Client, error) {
	c := store.Client{ID: uuid.New(), OrganizationID: arg.OrganizationID, FirstName: arg.FirstName, LastName: arg.LastName, Postcode: arg.Postcode, YearOfBirth: arg.YearOfBirth}
	m.clients[c.ID] = c
	return c, nil
}

func (m *memDir) GetClient(_ context.Context, orgID, id uuid.UUID) (store.Client, error) {
	c, ok := m.clients[id]
	if !ok || c.OrganizationID != orgID {
		return store.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memDir) ListClients(_ context.Context, _ uuid.UUID, search string, limit, offset int) ([]store.Client, int, error) {
	m.search, m.limit, m.offset = search, limit, offset
	out := make([]store.Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memDir) CreateAgency(_ context.Context, orgID uuid.UUID, name string, email *string) (store.Agency, error) {
	a := store.Agency{ID: uuid.New(), OrganizationID: orgID, Name: name, ContactEmail: email}
	m.agencies = append(m.agencies, a)
	return a, nil
}

func (m *memDir) ListAgencies(context.Context, uuid.UUID) ([]store.Agency, error) {
	return m.agencies, nil
}

func (m *memDir) CreateCenter(_ context.Context, orgID uuid.UUID, name string, address *string) (store.Center, error) {
	c := store.Center{ID: uuid.New(), OrganizationID: orgID, Name: name, Address: address}
	m.centers = append(m.centers, c)
	return c, nil
}

func (m *memDir) ListCenters(context.Context, uuid.UUID) ([]store.Center, error) {
	return m.centers, nil
}

func serve(h http.HandlerFunc, method, target, body string, p common.Principal, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := tenant.WithTenant(req.Context(), p.OrganizationID.String())
	ctx = common.WithPrincipal(ctx, p)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	rr := httptest.NewRecorder()
	h(rr, req.WithContext(ctx))
	return rr
}

func newHandler(db *memDir) *Handler {
	return &Handler{Svc: &Service{Store: db, Now: func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }}}
}

func TestCreateAndGetClient(t *testing.T) {
	db := newMemDir()
	h := newHandler(db)
	p := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleThirdParty}

	rr := serve(h.CreateClient, http.MethodPost, "/api/clients", `{"firstName":" Ada ","lastName":"Lovelace","postcode":"sw1a 1aa","yearOfBirth":1980}`, p, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Data store.Client `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "Ada", created.Data.FirstName)
	require.Equal(t, "SW1A 1AA", *created.Data.Postcode)

	rr = serve(h.GetClient, http.MethodGet, "/api/clients/x", "", p, map[string]string{"id": created.Data.ID.String()})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h.GetClient, http.MethodGet, "/api/clients/x", "", p, map[string]string{"id": uuid.NewString()})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateClientValidation(t *testing.T) {
	h := newHandler(newMemDir())
	p := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleStaff}

	rr := serve(h.CreateClient, http.MethodPost, "/api/clients", `{"firstName":"Ada"}`, p, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"field":"lastName"`)

	rr = serve(h.CreateClient, http.MethodPost, "/api/clients", `{"firstName":"Ada","lastName":"L","yearOfBirth":2030}`, p, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "yearOfBirth")
}

func TestListClientsPagination(t *testing.T) {
	db := newMemDir()
	h := newHandler(db)
	p := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleStaff}

	rr := serve(h.ListClients, http.MethodGet, "/api/clients?search=%20love%20&page=2&limit=10", "", p, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "love", db.search)
	require.Equal(t, 10, db.limit)
	require.Equal(t, 10, db.offset)
	require.Contains(t, rr.Body.String(), `"data":[]`)
}

func TestAgencyAndCenterWritesAreStaffOnly(t *testing.T) {
	db := newMemDir()
	h := newHandler(db)
	third := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleThirdParty}
	admin := common.Principal{UserID: uuid.New(), OrganizationID: third.OrganizationID, Role: common.RoleAdmin}

	rr := serve(h.CreateAgency, http.MethodPost, "/api/agencies", `{"name":"Citizens Advice"}`, third, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = serve(h.CreateCenter, http.MethodPost, "/api/centers", `{"name":"Main Street"}`, third, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(h.CreateAgency, http.MethodPost, "/api/agencies", `{"name":"Citizens Advice","contactEmail":"not-an-email"}`, admin, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h.CreateAgency, http.MethodPost, "/api/agencies", `{"name":"Citizens Advice","contactEmail":"hub@example.org"}`, admin, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = serve(h.CreateCenter, http.MethodPost, "/api/centers", `{"name":"Main Street","address":"1 Main St"}`, admin, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(h.ListAgencies, http.MethodGet, "/api/agencies", "", third, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "hub@example.org")
	rr = serve(h.ListCenters, http.MethodGet, "/api/centers", "", third, nil)
	require.Contains(t, rr.Body.String(), "Main Street")
}
