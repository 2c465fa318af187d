package common

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	userIDKey    ctxKey = "auth/user-id"
	principalKey ctxKey = "auth/principal"
)

// Role is the coarse permission level carried by an access token.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStaff      Role = "staff"
	RoleThirdParty Role = "third_party"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleThirdParty:
		return true
	}
	return false
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           Role
	// AgencyID is set for third-party users and binds them to one agency.
	AgencyID *uuid.UUID
}

// IsThirdParty reports whether the principal acts on behalf of an agency.
func (p Principal) IsThirdParty() bool { return p.Role == RoleThirdParty }

// HasRole reports whether the principal holds any of the supplied roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithPrincipal stores the principal and its user id on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return WithUserID(ctx, p.UserID.String())
}

// PrincipalFrom extracts the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
