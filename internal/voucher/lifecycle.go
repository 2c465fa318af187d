package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Validity filter values.
const (
	ValidityValid   = "valid"
	ValidityExpired = "expired"
)

// ListParams are the query parameters of GET /api/vouchers.
type ListParams struct {
	Status   string
	Validity string
	ClientID string
	AgencyID string
	Code     string
	FromDate string
	ToDate   string
	Page     int
	PerPage  int
}

// ReferralView is the referral record shown on voucher details.
type ReferralView struct {
	ID                      uuid.UUID       `json:"id"`
	Notes                   string          `json:"notes"`
	IncomeSource            *string         `json:"incomeSource,omitempty"`
	ReferralReasons         json.RawMessage `json:"referralReasons,omitempty"`
	EthnicGroup             *string         `json:"ethnicGroup,omitempty"`
	HouseholdByAge          json.RawMessage `json:"householdByAge,omitempty"`
	ContactConsent          bool            `json:"contactConsent"`
	DietaryConsent          bool            `json:"dietaryConsent"`
	DietaryRequirements     *string         `json:"dietaryRequirements,omitempty"`
	MoreThan3VouchersReason *string         `json:"moreThan3VouchersReason,omitempty"`
	ParcelNotes             *string         `json:"parcelNotes,omitempty"`
}

// Detail is a voucher with its referral details and outcome.
type Detail struct {
	View
	ReferralDetails *ReferralView   `json:"referralDetails"`
	Redemption      *RedemptionView `json:"redemption"`
}

// List returns the tenant's vouchers. Third-party callers only see their agency.
func (s *Service) List(ctx context.Context, principal common.Principal, scope tenant.Scope, p ListParams) ([]View, common.Pagination, error) {
	if s == nil || s.Store == nil {
		return nil, common.Pagination{}, errors.New("voucher service not configured")
	}
	filter, err := s.filterOf(principal, scope, p)
	if err != nil {
		return nil, common.Pagination{}, err
	}
	var (
		rows  []store.VoucherRow
		total int
	)
	err = s.Store.InTenant(ctx, scope, func(q Querier) error {
		var lerr error
		rows, total, lerr = q.ListVouchers(ctx, filter)
		return lerr
	})
	if err != nil {
		return nil, common.Pagination{}, fmt.Errorf("list vouchers: %w", err)
	}
	views := make([]View, 0, len(rows))
	for _, row := range rows {
		views = append(views, viewOf(row, filter.Today))
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return views, common.NewPagination(page, filter.Limit, total), nil
}

func (s *Service) filterOf(principal common.Principal, scope tenant.Scope, p ListParams) (store.VoucherFilter, error) {
	f := store.VoucherFilter{OrganizationID: scope.OrganizationID, Today: s.today()}
	var fields []FieldError
	if strings.TrimSpace(p.Status) != "" {
		st, err := ParseStatus(p.Status)
		if err != nil {
			fields = append(fields, FieldError{Field: "status", Reason: ReasonInvalid})
		}
		f.Status = string(st)
	}
	switch v := strings.ToLower(strings.TrimSpace(p.Validity)); v {
	case "":
	case ValidityValid, ValidityExpired:
		f.Validity = v
	default:
		fields = append(fields, FieldError{Field: "validity", Reason: ReasonInvalid})
	}
	var err error
	if f.ClientID, err = common.ParseOptionalUUID(p.ClientID); err != nil {
		fields = append(fields, FieldError{Field: "clientId", Reason: ReasonInvalid})
	}
	if f.AgencyID, err = common.ParseOptionalUUID(p.AgencyID); err != nil {
		fields = append(fields, FieldError{Field: "agencyId", Reason: ReasonInvalid})
	}
	if strings.TrimSpace(p.FromDate) != "" {
		d, err := ParseDate(p.FromDate, s.Location)
		if err != nil {
			fields = append(fields, FieldError{Field: "fromDate", Reason: ReasonInvalid})
		}
		f.FromDate = &d
	}
	if strings.TrimSpace(p.ToDate) != "" {
		d, err := ParseDate(p.ToDate, s.Location)
		if err != nil {
			fields = append(fields, FieldError{Field: "toDate", Reason: ReasonInvalid})
		}
		f.ToDate = &d
	}
	if len(fields) > 0 {
		return store.VoucherFilter{}, validationFailed("invalid voucher filter", fields...)
	}
	f.CodePrefix = trimCode(p.Code)

	if principal.IsThirdParty() {
		if principal.AgencyID == nil {
			return store.VoucherFilter{}, forbidden("third-party user is not bound to an agency")
		}
		id := *principal.AgencyID
		f.AgencyID = &id
	}

	perPage := p.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > common.MaxPerPage {
		perPage = common.MaxPerPage
	}
	f.Limit = perPage
	page := p.Page
	if page <= 0 {
		page = 1
	}
	f.Offset = (page - 1) * perPage
	return f, nil
}

// Get returns a voucher by id.
func (s *Service) Get(ctx context.Context, principal common.Principal, scope tenant.Scope, id uuid.UUID) (Detail, error) {
	return s.detail(ctx, principal, scope, func(q Querier) (store.VoucherRow, error) {
		return q.GetVoucher(ctx, scope.OrganizationID, id)
	})
}

// Lookup returns a voucher by its code, ignoring case and surrounding spaces.
func (s *Service) Lookup(ctx context.Context, principal common.Principal, scope tenant.Scope, code string) (Detail, error) {
	code = trimCode(code)
	if code == "" {
		return Detail{}, validationFailed("code is required", FieldError{Field: "code", Reason: ReasonRequired})
	}
	return s.detail(ctx, principal, scope, func(q Querier) (store.VoucherRow, error) {
		return q.GetVoucherByCode(ctx, scope.OrganizationID, code)
	})
}

func (s *Service) detail(ctx context.Context, principal common.Principal, scope tenant.Scope, load func(q Querier) (store.VoucherRow, error)) (Detail, error) {
	if s == nil || s.Store == nil {
		return Detail{}, errors.New("voucher service not configured")
	}
	today := s.today()
	var out Detail
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		row, err := load(q)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("voucher not found")
			}
			return fmt.Errorf("load voucher: %w", err)
		}
		// Other agencies' vouchers are reported as missing to third-party users.
		if principal.IsThirdParty() && (principal.AgencyID == nil || *principal.AgencyID != row.AgencyID) {
			return notFound("voucher not found")
		}
		out = Detail{View: viewOf(row, today)}

		ref, err := q.GetReferralDetails(ctx, scope.OrganizationID, row.ReferralDetailsID)
		switch {
		case err == nil:
			rv := referralViewOf(ref)
			out.ReferralDetails = &rv
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load referral details: %w", err)
		}

		red, err := q.GetRedemptionByVoucher(ctx, scope.OrganizationID, row.ID)
		switch {
		case err == nil:
			rv := redemptionViewOf(red)
			out.Redemption = &rv
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	return out, nil
}

// Invalidate manually expires an issued voucher.
func (s *Service) Invalidate(ctx context.Context, principal common.Principal, scope tenant.Scope, id uuid.UUID) (View, error) {
	if s == nil || s.Store == nil {
		return View{}, errors.New("voucher service not configured")
	}
	if !principal.HasRole(common.RoleAdmin, common.RoleStaff) {
		return View{}, forbidden("only food bank staff may invalidate vouchers")
	}
	today := s.today()
	var out View
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		v, err := q.GetVoucherForUpdate(ctx, scope.OrganizationID, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("voucher not found")
			}
			return fmt.Errorf("lock voucher: %w", err)
		}
		if Status(v.Status) != StatusIssued {
			return conflict(fmt.Sprintf("voucher is %s and cannot be invalidated", v.Status))
		}
		if err := q.UpdateVoucherStatus(ctx, store.UpdateVoucherStatusParams{
			OrganizationID: scope.OrganizationID,
			ID:             v.ID,
			Status:         string(StatusExpired),
		}); err != nil {
			return fmt.Errorf("update voucher status: %w", err)
		}
		row, err := q.GetVoucher(ctx, scope.OrganizationID, v.ID)
		if err != nil {
			return fmt.Errorf("reload voucher: %w", err)
		}
		out = viewOf(row, today)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.emit(ctx, scope, TopicVoucherInvalidated, id, map[string]any{"voucherId": id, "code": out.Code})
	return out, nil
}

// Delete removes a voucher that has no recorded outcome, together with its referral details.
func (s *Service) Delete(ctx context.Context, principal common.Principal, scope tenant.Scope, id uuid.UUID) (View, error) {
	if s == nil || s.Store == nil {
		return View{}, errors.New("voucher service not configured")
	}
	if !principal.HasRole(common.RoleAdmin, common.RoleStaff) {
		return View{}, forbidden("only food bank staff may delete vouchers")
	}
	today := s.today()
	var out View
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		if _, err := q.GetVoucherForUpdate(ctx, scope.OrganizationID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("voucher not found")
			}
			return fmt.Errorf("lock voucher: %w", err)
		}
		row, err := q.GetVoucher(ctx, scope.OrganizationID, id)
		if err != nil {
			return fmt.Errorf("load voucher: %w", err)
		}
		if _, err := q.GetRedemptionByVoucher(ctx, scope.OrganizationID, id); err == nil {
			return conflict("voucher has a recorded outcome and cannot be deleted")
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load redemption: %w", err)
		}
		if err := q.DeleteVoucher(ctx, scope.OrganizationID, id); err != nil {
			return fmt.Errorf("delete voucher: %w", err)
		}
		if err := q.DeleteReferralDetails(ctx, scope.OrganizationID, row.ReferralDetailsID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete referral details: %w", err)
		}
		out = viewOf(row, today)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.emit(ctx, scope, TopicVoucherDeleted, id, map[string]any{"voucherId": id, "code": out.Code})
	return out, nil
}

// ClientEligibility reports whether the next voucher for the client needs a justification.
func (s *Service) ClientEligibility(ctx context.Context, principal common.Principal, scope tenant.Scope, clientID uuid.UUID) (Eligibility, error) {
	if s == nil || s.Store == nil {
		return Eligibility{}, errors.New("voucher service not configured")
	}
	today := s.today()
	var out Eligibility
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		if _, err := q.GetClient(ctx, scope.OrganizationID, clientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("client not found")
			}
			return fmt.Errorf("load client: %w", err)
		}
		var eerr error
		out, eerr = s.Eligibility.Evaluate(ctx, q, scope.OrganizationID, clientID, today)
		return eerr
	})
	return out, err
}

func referralViewOf(r store.ReferralDetails) ReferralView {
	return ReferralView{
		ID:                      r.ID,
		Notes:                   r.Notes,
		IncomeSource:            r.IncomeSource,
		ReferralReasons:         r.ReferralReasons,
		EthnicGroup:             r.EthnicGroup,
		HouseholdByAge:          r.HouseholdByAge,
		ContactConsent:          r.ContactConsent,
		DietaryConsent:          r.DietaryConsent,
		DietaryRequirements:     r.DietaryRequirements,
		MoreThan3VouchersReason: r.MoreThan3VouchersReason,
		ParcelNotes:             r.ParcelNotes,
	}
}
