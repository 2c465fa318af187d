package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

var (
	ErrNotFound  = errors.New("directory: not found")
	ErrForbidden = errors.New("directory: forbidden")
)

// Querier is the subset of store.Queries used by the directory.
type Querier interface {
	CreateClient(ctx context.Context, arg store.CreateClientParams) (store.Client, error)
	GetClient(ctx context.Context, orgID, id uuid.UUID) (store.Client, error)
	ListClients(ctx context.Context, orgID uuid.UUID, search string, limit, offset int) ([]store.Client, int, error)
	CreateAgency(ctx context.Context, orgID uuid.UUID, name string, contactEmail *string) (store.Agency, error)
	ListAgencies(ctx context.Context, orgID uuid.UUID) ([]store.Agency, error)
	CreateCenter(ctx context.Context, orgID uuid.UUID, name string, address *string) (store.Center, error)
	ListCenters(ctx context.Context, orgID uuid.UUID) ([]store.Center, error)
}

// TxRunner runs fn inside a tenant transaction.
type TxRunner interface {
	InTenant(ctx context.Context, scope tenant.Scope, fn func(q Querier) error) error
}

// PgStore adapts store.Store to TxRunner.
type PgStore struct {
	Store *store.Store
}

// InTenant implements TxRunner.
func (p PgStore) InTenant(ctx context.Context, scope tenant.Scope, fn func(q Querier) error) error {
	return p.Store.WithTenantTx(ctx, scope, func(q *store.Queries) error {
		return fn(q)
	})
}

// ClientInput is the body of POST /api/clients.
type ClientInput struct {
	FirstName      string  `json:"firstName" validate:"required,max=100"`
	LastName       string  `json:"lastName" validate:"required,max=100"`
	Postcode       *string `json:"postcode" validate:"omitempty,max=16"`
	Address        *string `json:"address" validate:"omitempty,max=400"`
	NoFixedAddress bool    `json:"noFixedAddress"`
	YearOfBirth    *int32  `json:"yearOfBirth" validate:"omitempty,min=1900"`
}

// AgencyInput is the body of POST /api/agencies.
type AgencyInput struct {
	Name         string  `json:"name" validate:"required,max=200"`
	ContactEmail *string `json:"contactEmail" validate:"omitempty,email"`
}

// CenterInput is the body of POST /api/centers.
type CenterInput struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Address *string `json:"address" validate:"omitempty,max=400"`
}

// Service manages clients, agencies and food bank centres.
type Service struct {
	Store    TxRunner
	Validate *validator.Validate
	Now      func() time.Time
}

func (s *Service) validate(v any) error {
	if s.Validate == nil {
		s.Validate = common.NewValidator()
	}
	if err := s.Validate.Struct(v); err != nil {
		return common.ValidationFailed("request is invalid", err, common.FieldErrors(err)...)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func staffOnly(p common.Principal) error {
	if !p.HasRole(common.RoleAdmin, common.RoleStaff) {
		return common.NewAppError("FORBIDDEN", "only food bank staff may manage this resource", http.StatusForbidden, ErrForbidden)
	}
	return nil
}

// CreateClient registers a client. Every role may create clients.
func (s *Service) CreateClient(ctx context.Context, scope tenant.Scope, in ClientInput) (store.Client, error) {
	if err := s.validate(in); err != nil {
		return store.Client{}, err
	}
	if in.YearOfBirth != nil && int(*in.YearOfBirth) > s.now().Year() {
		return store.Client{}, common.ValidationFailed("yearOfBirth is in the future", nil,
			common.FieldError{Field: "yearOfBirth", Reason: common.ReasonInvalid})
	}
	postcode := common.TrimmedOrNil(in.Postcode)
	if postcode != nil {
		upper := strings.ToUpper(*postcode)
		postcode = &upper
	}
	var out store.Client
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var cerr error
		out, cerr = q.CreateClient(ctx, store.CreateClientParams{
			OrganizationID: scope.OrganizationID,
			FirstName:      strings.TrimSpace(in.FirstName),
			LastName:       strings.TrimSpace(in.LastName),
			Postcode:       postcode,
			Address:        common.TrimmedOrNil(in.Address),
			NoFixedAddress: in.NoFixedAddress,
			YearOfBirth:    in.YearOfBirth,
		})
		return cerr
	})
	if err != nil {
		return store.Client{}, fmt.Errorf("create client: %w", err)
	}
	return out, nil
}

// GetClient loads a client.
func (s *Service) GetClient(ctx context.Context, scope tenant.Scope, id uuid.UUID) (store.Client, error) {
	var out store.Client
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var gerr error
		out, gerr = q.GetClient(ctx, scope.OrganizationID, id)
		return gerr
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.Client{}, common.NewAppError("NOT_FOUND", "client not found", http.StatusNotFound, ErrNotFound)
	}
	return out, err
}

// ListClients searches clients by name or postcode.
func (s *Service) ListClients(ctx context.Context, scope tenant.Scope, search string, page, perPage int) ([]store.Client, common.Pagination, error) {
	p := common.NewPagination(page, perPage, 0)
	var (
		rows  []store.Client
		total int
	)
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var lerr error
		rows, total, lerr = q.ListClients(ctx, scope.OrganizationID, search, perPage, p.Offset())
		return lerr
	})
	if err != nil {
		return nil, common.Pagination{}, fmt.Errorf("list clients: %w", err)
	}
	return rows, common.NewPagination(page, perPage, total), nil
}

// CreateAgency registers a referring agency. Staff only.
func (s *Service) CreateAgency(ctx context.Context, principal common.Principal, scope tenant.Scope, in AgencyInput) (store.Agency, error) {
	if err := staffOnly(principal); err != nil {
		return store.Agency{}, err
	}
	if err := s.validate(in); err != nil {
		return store.Agency{}, err
	}
	var out store.Agency
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var cerr error
		out, cerr = q.CreateAgency(ctx, scope.OrganizationID, strings.TrimSpace(in.Name), common.TrimmedOrNil(in.ContactEmail))
		return cerr
	})
	if err != nil {
		return store.Agency{}, fmt.Errorf("create agency: %w", err)
	}
	return out, nil
}

// ListAgencies returns all agencies of the tenant.
func (s *Service) ListAgencies(ctx context.Context, scope tenant.Scope) ([]store.Agency, error) {
	var out []store.Agency
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var lerr error
		out, lerr = q.ListAgencies(ctx, scope.OrganizationID)
		return lerr
	})
	return out, err
}

// CreateCenter registers a food bank centre. Staff only.
func (s *Service) CreateCenter(ctx context.Context, principal common.Principal, scope tenant.Scope, in CenterInput) (store.Center, error) {
	if err := staffOnly(principal); err != nil {
		return store.Center{}, err
	}
	if err := s.validate(in); err != nil {
		return store.Center{}, err
	}
	var out store.Center
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var cerr error
		out, cerr = q.CreateCenter(ctx, scope.OrganizationID, strings.TrimSpace(in.Name), common.TrimmedOrNil(in.Address))
		return cerr
	})
	if err != nil {
		return store.Center{}, fmt.Errorf("create centre: %w", err)
	}
	return out, nil
}

// ListCenters returns all centres of the tenant.
func (s *Service) ListCenters(ctx context.Context, scope tenant.Scope) ([]store.Center, error) {
	var out []store.Center
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var lerr error
		out, lerr = q.ListCenters(ctx, scope.OrganizationID)
		return lerr
	})
	return out, err
}
