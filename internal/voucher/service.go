package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/support-hubs/internal/billing"
	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/events"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Domain event topics emitted by the service.
const (
	TopicVoucherIssued      = events.TopicVoucherIssued
	TopicVoucherRedeemed    = events.TopicVoucherRedeemed
	TopicVoucherUnfulfilled = events.TopicVoucherUnfulfilled
	TopicVoucherInvalidated = events.TopicVoucherInvalidated
	TopicVoucherDeleted     = events.TopicVoucherDeleted
)

// QuotaGate decides whether the tenant may issue another voucher.
type QuotaGate interface {
	Check(ctx context.Context, q billing.Source, orgID uuid.UUID, now time.Time) error
}

// Metrics receives domain counters. Implementations must be safe for concurrent use.
type Metrics interface {
	VoucherIssued(format string)
	CodeCollision()
	VoucherOutcome(status string)
}

// Service implements voucher issuance, redemption and lifecycle operations.
type Service struct {
	Store          TxRunner
	Codes          CodeGenerator
	Eligibility    EligibilityPolicy
	Quota          QuotaGate
	Validate       *validator.Validate
	Events         EventEmitter
	Metrics        Metrics
	Logger         zerolog.Logger
	Location       *time.Location
	NotesMaxLength int
	// Now defaults to time.Now.
	Now func() time.Time
}

// IssueRequest is the body of POST /api/vouchers.
type IssueRequest struct {
	ClientID         string           `json:"clientId" validate:"required,uuid"`
	AgencyID         string           `json:"agencyId" validate:"required,uuid"`
	FoodBankCenterID *string          `json:"foodBankCenterId" validate:"omitempty,uuid"`
	IssueDate        string           `json:"issueDate" validate:"required"`
	ExpiryDate       string           `json:"expiryDate"`
	CollectionNotes  *string          `json:"collectionNotes"`
	WeightKg         *decimal.Decimal `json:"weightKg"`
	ReferralDetails  *ReferralInput   `json:"referralDetails" validate:"required"`
}

// ClientSummary is the client block embedded in voucher views.
type ClientSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

// View is the API representation of a voucher.
type View struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Status            Status           `json:"status"`
	EffectiveStatus   Status           `json:"effectiveStatus"`
	IssueDate         string           `json:"issueDate"`
	ExpiryDate        string           `json:"expiryDate"`
	Client            ClientSummary    `json:"client"`
	AgencyID          uuid.UUID        `json:"agencyId"`
	AgencyName        string           `json:"agencyName,omitempty"`
	FoodBankCenterID  *uuid.UUID       `json:"foodBankCenterId"`
	ReferralDetailsID uuid.UUID        `json:"referralDetailsId"`
	WeightKg          *decimal.Decimal `json:"weightKg,omitempty"`
	CollectionNotes   *string          `json:"collectionNotes,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) today() time.Time {
	return CivilDate(s.now(), s.Location)
}

func (s *Service) validator() *validator.Validate {
	if s.Validate == nil {
		s.Validate = common.NewValidator()
	}
	return s.Validate
}

// Issue creates a voucher and its referral details in one tenant transaction.
// The domain event is emitted after commit; its failure does not undo the voucher.
func (s *Service) Issue(ctx context.Context, principal common.Principal, scope tenant.Scope, req IssueRequest) (View, error) {
	if s == nil || s.Store == nil {
		return View{}, errors.New("voucher service not configured")
	}
	if err := s.validator().Struct(req); err != nil {
		return View{}, validationFailed("request is invalid", common.FieldErrors(err)...)
	}
	clientID := uuid.MustParse(req.ClientID)
	agencyID := uuid.MustParse(req.AgencyID)
	today := s.today()

	var (
		view   View
		policy tenant.Policy
		agency store.Agency
	)
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		org, err := q.GetOrganization(ctx, scope.OrganizationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return referencedNotFound("organization not found")
			}
			return fmt.Errorf("load organization: %w", err)
		}
		policy = policyOf(org)

		referral, err := buildReferral(*req.ReferralDetails, policy, s.NotesMaxLength)
		if err != nil {
			return err
		}

		client, err := q.GetClient(ctx, scope.OrganizationID, clientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return referencedNotFound("client not found")
			}
			return fmt.Errorf("load client: %w", err)
		}

		if err := s.Eligibility.Check(ctx, q, scope.OrganizationID, client.ID, today, req.ReferralDetails.MoreThan3VouchersReason); err != nil {
			return err
		}

		agency, err = q.GetAgency(ctx, scope.OrganizationID, agencyID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return referencedNotFound("agency not found")
			}
			return fmt.Errorf("load agency: %w", err)
		}
		if principal.IsThirdParty() && (principal.AgencyID == nil || *principal.AgencyID != agency.ID) {
			return forbidden("third-party users may only issue vouchers for their own agency")
		}

		issueDate, expiryDate, err := resolveDates(req, policy, s.Location)
		if err != nil {
			return err
		}

		centerID, err := common.ParseOptionalUUID(derefString(req.FoodBankCenterID))
		if err != nil {
			return validationFailed("foodBankCenterId is invalid", FieldError{Field: "foodBankCenterId", Reason: ReasonInvalid})
		}
		if centerID != nil {
			if _, err := q.GetCenter(ctx, scope.OrganizationID, *centerID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return referencedNotFound("food bank centre not found")
				}
				return fmt.Errorf("load centre: %w", err)
			}
		}
		if err := checkWeight(req.WeightKg); err != nil {
			return err
		}

		if s.Quota != nil {
			if err := s.Quota.Check(ctx, q, scope.OrganizationID, s.now()); err != nil {
				return err
			}
		}

		details, err := q.InsertReferralDetails(ctx, referral)
		if err != nil {
			return fmt.Errorf("insert referral details: %w", err)
		}

		var issuedBy *uuid.UUID
		if principal.UserID != uuid.Nil {
			id := principal.UserID
			issuedBy = &id
		}
		params := store.InsertVoucherParams{
			OrganizationID:    scope.OrganizationID,
			IssueDate:         issueDate,
			ExpiryDate:        expiryDate,
			ClientID:          client.ID,
			AgencyID:          agency.ID,
			FoodBankCenterID:  centerID,
			ReferralDetailsID: details.ID,
			IssuedByID:        issuedBy,
			WeightKg:          nullWeight(req.WeightKg),
			CollectionNotes:   common.TrimmedOrNil(req.CollectionNotes),
		}
		created, err := s.insertWithFreshCode(ctx, q, policy, params)
		if err != nil {
			return err
		}
		view = viewOf(store.VoucherRow{
			Voucher:         created,
			ClientFirstName: client.FirstName,
			ClientLastName:  client.LastName,
			AgencyName:      agency.Name,
		}, today)
		return nil
	})
	if err != nil {
		return View{}, err
	}

	if s.Metrics != nil {
		s.Metrics.VoucherIssued(string(policy.CodeFormat))
	}
	s.Logger.Info().
		Str("organization_id", scope.String()).
		Str("voucher_id", view.ID.String()).
		Str("code", view.Code).
		Msg("voucher issued")
	s.emit(ctx, scope, TopicVoucherIssued, view.ID, IssuedEvent{
		VoucherID:          view.ID,
		Code:               view.Code,
		ClientID:           view.Client.ID,
		AgencyID:           agency.ID,
		AgencyName:         agency.Name,
		AgencyContactEmail: agency.ContactEmail,
		IssueDate:          view.IssueDate,
		ExpiryDate:         view.ExpiryDate,
	})
	return view, nil
}

// IssuedEvent is the payload of the voucher.issued event.
type IssuedEvent struct {
	VoucherID          uuid.UUID `json:"voucherId"`
	Code               string    `json:"code"`
	ClientID           uuid.UUID `json:"clientId"`
	AgencyID           uuid.UUID `json:"agencyId"`
	AgencyName         string    `json:"agencyName"`
	AgencyContactEmail *string   `json:"agencyContactEmail,omitempty"`
	IssueDate          string    `json:"issueDate"`
	ExpiryDate         string    `json:"expiryDate"`
}

// insertWithFreshCode mints codes until the insert succeeds. A code that
// passed the existence check can still collide with another tenant's row.
// Local and cross-tenant collisions draw from the same attempt budget.
func (s *Service) insertWithFreshCode(ctx context.Context, q Querier, policy tenant.Policy, params store.InsertVoucherParams) (store.Voucher, error) {
	for attempt := 0; attempt < s.Codes.attempts(); attempt++ {
		code, taken, err := s.Codes.draw(ctx, q, policy)
		if err != nil {
			return store.Voucher{}, err
		}
		if taken {
			continue
		}
		params.Code = code
		created, inserted, err := q.InsertVoucher(ctx, params)
		if err != nil {
			return store.Voucher{}, fmt.Errorf("insert voucher: %w", err)
		}
		if inserted {
			return created, nil
		}
		if s.Metrics != nil {
			s.Metrics.CodeCollision()
		}
		s.Logger.Debug().Str("organization_id", policy.OrganizationID.String()).Int("attempt", attempt+1).Msg("voucher code collision")
	}
	return store.Voucher{}, codeGenerationExhausted()
}

func (s *Service) emit(ctx context.Context, scope tenant.Scope, topic string, id uuid.UUID, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, scope, topic, id, payload); err != nil {
		s.Logger.Warn().Err(err).
			Str("organization_id", scope.String()).
			Str("topic", topic).
			Str("voucher_id", id.String()).
			Msg("emit domain event failed")
	}
}

// resolveDates parses the issue and expiry dates. An omitted expiry is derived
// from the tenant's auto expiry setting when it has one.
func resolveDates(req IssueRequest, policy tenant.Policy, loc *time.Location) (time.Time, time.Time, error) {
	issue, err := ParseDate(req.IssueDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, validationFailed("issueDate must be YYYY-MM-DD or RFC3339",
			FieldError{Field: "issueDate", Reason: ReasonInvalid})
	}
	var exp time.Time
	if strings.TrimSpace(req.ExpiryDate) == "" {
		derived, ok := policy.DeriveExpiry(issue)
		if !ok {
			return time.Time{}, time.Time{}, validationFailed("expiryDate is required",
				FieldError{Field: "expiryDate", Reason: ReasonRequired})
		}
		exp = derived
	} else {
		exp, err = ParseDate(req.ExpiryDate, loc)
		if err != nil {
			return time.Time{}, time.Time{}, validationFailed("expiryDate must be YYYY-MM-DD or RFC3339",
				FieldError{Field: "expiryDate", Reason: ReasonInvalid})
		}
	}
	if exp.Before(issue) {
		return time.Time{}, time.Time{}, validationFailed("expiryDate must not be before issueDate",
			FieldError{Field: "expiryDate", Reason: ReasonInvalid})
	}
	return issue, exp, nil
}

func policyOf(org store.Organization) tenant.Policy {
	p := tenant.Policy{
		OrganizationID: org.ID,
		TenantIndex:    int(org.TenantIndex),
		CodeFormat:     tenant.CodeFormat(org.CodeFormat),
		ConsentExempt:  org.ConsentExempt,
	}
	if p.CodeFormat == "" {
		p.CodeFormat = tenant.CodeFormatRandom
	}
	if org.AutoExpiryDays != nil {
		p.AutoExpiryDays = int(*org.AutoExpiryDays)
	}
	return p
}

func viewOf(row store.VoucherRow, today time.Time) View {
	v := View{
		ID:                row.ID,
		Code:              row.Code,
		Status:            Status(row.Status),
		EffectiveStatus:   EffectiveStatus(Status(row.Status), row.ExpiryDate, today),
		IssueDate:         FormatDate(row.IssueDate),
		ExpiryDate:        FormatDate(row.ExpiryDate),
		Client:            ClientSummary{ID: row.ClientID, FirstName: row.ClientFirstName, LastName: row.ClientLastName},
		AgencyID:          row.AgencyID,
		AgencyName:        row.AgencyName,
		FoodBankCenterID:  row.FoodBankCenterID,
		ReferralDetailsID: row.ReferralDetailsID,
		CollectionNotes:   row.CollectionNotes,
		CreatedAt:         row.CreatedAt,
	}
	if row.WeightKg.Valid {
		w := row.WeightKg.Decimal
		v.WeightKg = &w
	}
	return v
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
