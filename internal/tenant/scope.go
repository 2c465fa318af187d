package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrTenantMissing indicates the tenant identifier was not found in context.
	ErrTenantMissing = errors.New("tenant missing")
	// ErrTenantInvalid indicates the tenant identifier could not be parsed.
	ErrTenantInvalid = errors.New("tenant invalid")
)

// Scope identifies the organization every tenant-scoped read and write is bound to.
type Scope struct {
	OrganizationID uuid.UUID
}

// NewScope parses id into a Scope.
func NewScope(id string) (Scope, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrTenantInvalid, err)
	}
	if parsed == uuid.Nil {
		return Scope{}, ErrTenantInvalid
	}
	return Scope{OrganizationID: parsed}, nil
}

// IsZero reports whether the scope carries no organization.
func (s Scope) IsZero() bool { return s.OrganizationID == uuid.Nil }

// String returns the organization id.
func (s Scope) String() string { return s.OrganizationID.String() }

// ScopeFromContext builds a Scope from the tenant stored on ctx.
func ScopeFromContext(ctx context.Context) (Scope, error) {
	tenantID, ok := From(ctx)
	if !ok {
		return Scope{}, ErrTenantMissing
	}
	return NewScope(tenantID)
}
