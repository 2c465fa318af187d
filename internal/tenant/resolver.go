package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/common"
)

// DefaultHeader carries an explicit organization id or slug.
const DefaultHeader = "X-Organization-ID"

// SlugLookup maps an organization slug, taken from a subdomain or the
// header, to its id.
type SlugLookup interface {
	OrganizationIDBySlug(ctx context.Context, slug string) (uuid.UUID, error)
}

// Resolver finds the organization a request targets.
type Resolver struct {
	HeaderName string
	RootDomain string
	Lookup     SlugLookup
}

// NewResolver builds a Resolver. An empty headerName selects DefaultHeader.
func NewResolver(headerName, rootDomain string, lookup SlugLookup) *Resolver {
	if strings.TrimSpace(headerName) == "" {
		headerName = DefaultHeader
	}
	return &Resolver{
		HeaderName: headerName,
		RootDomain: strings.Trim(strings.ToLower(strings.TrimSpace(rootDomain)), "."),
		Lookup:     lookup,
	}
}

// Middleware stores the resolved organization id on the request context.
// Requests without a hint pass through; RequireAuth later falls back to the
// principal's organization.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hint := r.Resolve(req)
		if hint == "" {
			next.ServeHTTP(w, req)
			return
		}
		id, err := r.organizationID(req.Context(), hint)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(WithTenant(req.Context(), id)))
	})
}

func (r *Resolver) organizationID(ctx context.Context, hint string) (string, error) {
	if id, err := uuid.Parse(hint); err == nil {
		return id.String(), nil
	}
	if r.Lookup == nil {
		return "", common.NewAppError("TENANT_INVALID", "organization identifier is invalid", http.StatusBadRequest, nil)
	}
	id, err := r.Lookup.OrganizationIDBySlug(ctx, strings.ToLower(hint))
	if err != nil {
		return "", common.NewAppError("TENANT_NOT_FOUND", "organization not found", http.StatusNotFound, err)
	}
	return id.String(), nil
}

// Resolve returns the raw tenant hint: the header value if set, otherwise the
// label directly below RootDomain. IP hosts never carry a hint.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if v := strings.TrimSpace(req.Header.Get(r.HeaderName)); v != "" {
		return v
	}
	if r.RootDomain == "" {
		return ""
	}
	host := strings.ToLower(stripPort(req.Host))
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	sub, ok := strings.CutSuffix(host, "."+r.RootDomain)
	if !ok || sub == "" {
		return ""
	}
	if i := strings.LastIndexByte(sub, '.'); i >= 0 {
		sub = sub[i+1:]
	}
	return sub
}

func stripPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}
