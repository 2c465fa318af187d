package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// DefaultUnfulfilledReason is recorded when no reason is supplied.
const DefaultUnfulfilledReason = "not collected"

// RedeemRequest is the body of POST /api/vouchers/{id}/redeem.
type RedeemRequest struct {
	CenterID string           `json:"centerId" validate:"required,uuid"`
	WeightKg *decimal.Decimal `json:"weightKg"`
}

// UnfulfilledRequest is the body of POST /api/vouchers/{id}/unfulfilled.
type UnfulfilledRequest struct {
	CenterID *string `json:"centerId" validate:"omitempty,uuid"`
	Reason   *string `json:"reason" validate:"omitempty,max=400"`
}

// RedemptionView is the API representation of a redemption outcome.
type RedemptionView struct {
	ID            uuid.UUID        `json:"id"`
	VoucherID     uuid.UUID        `json:"voucherId"`
	RedeemedAt    time.Time        `json:"redeemedAt"`
	RedeemedByID  *uuid.UUID       `json:"redeemedById,omitempty"`
	CenterID      *uuid.UUID       `json:"centerId"`
	FailureReason *string          `json:"failureReason,omitempty"`
	WeightKg      *decimal.Decimal `json:"weightKg,omitempty"`
}

// OutcomeView is returned by redeem and unfulfilled.
type OutcomeView struct {
	Voucher    View           `json:"voucher"`
	Redemption RedemptionView `json:"redemption"`
}

// Redeem records a successful collection at a centre.
func (s *Service) Redeem(ctx context.Context, principal common.Principal, scope tenant.Scope, voucherID uuid.UUID, req RedeemRequest) (OutcomeView, error) {
	if err := s.validator().Struct(req); err != nil {
		return OutcomeView{}, validationFailed("request is invalid", common.FieldErrors(err)...)
	}
	if err := checkWeight(req.WeightKg); err != nil {
		return OutcomeView{}, err
	}
	centerID := uuid.MustParse(req.CenterID)
	return s.recordOutcome(ctx, principal, scope, voucherID, outcome{
		status:   StatusRedeemed,
		centerID: &centerID,
		weight:   nullWeight(req.WeightKg),
	})
}

// MarkUnfulfilled records that the voucher was presented but not fulfilled.
func (s *Service) MarkUnfulfilled(ctx context.Context, principal common.Principal, scope tenant.Scope, voucherID uuid.UUID, req UnfulfilledRequest) (OutcomeView, error) {
	if err := s.validator().Struct(req); err != nil {
		return OutcomeView{}, validationFailed("request is invalid", common.FieldErrors(err)...)
	}
	centerID, err := common.ParseOptionalUUID(derefString(req.CenterID))
	if err != nil {
		return OutcomeView{}, validationFailed("centerId is invalid", FieldError{Field: "centerId", Reason: ReasonInvalid})
	}
	reason := DefaultUnfulfilledReason
	if trimmed := common.TrimmedOrNil(req.Reason); trimmed != nil {
		reason = *trimmed
	}
	return s.recordOutcome(ctx, principal, scope, voucherID, outcome{
		status:   StatusUnfulfilled,
		centerID: centerID,
		reason:   &reason,
	})
}

type outcome struct {
	status   Status
	centerID *uuid.UUID
	reason   *string
	weight   decimal.NullDecimal
}

func (s *Service) recordOutcome(ctx context.Context, principal common.Principal, scope tenant.Scope, voucherID uuid.UUID, o outcome) (OutcomeView, error) {
	if s == nil || s.Store == nil {
		return OutcomeView{}, errors.New("voucher service not configured")
	}
	if !principal.HasRole(common.RoleAdmin, common.RoleStaff) {
		return OutcomeView{}, forbidden("only food bank staff may record voucher outcomes")
	}
	today := s.today()

	var out OutcomeView
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		v, err := q.GetVoucherForUpdate(ctx, scope.OrganizationID, voucherID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFound("voucher not found")
			}
			return fmt.Errorf("lock voucher: %w", err)
		}
		if err := redeemable(v, today); err != nil {
			return err
		}
		if o.centerID != nil {
			if _, err := q.GetCenter(ctx, scope.OrganizationID, *o.centerID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return referencedNotFound("food bank centre not found")
				}
				return fmt.Errorf("load centre: %w", err)
			}
		}

		var actor *uuid.UUID
		if principal.UserID != uuid.Nil {
			id := principal.UserID
			actor = &id
		}
		red, err := q.InsertRedemption(ctx, store.Redemption{
			OrganizationID: scope.OrganizationID,
			VoucherID:      v.ID,
			RedeemedByID:   actor,
			CenterID:       o.centerID,
			FailureReason:  o.reason,
			WeightKg:       o.weight,
		})
		if err != nil {
			if errors.Is(err, store.ErrUniqueViolation) {
				return conflict("voucher already has a recorded outcome")
			}
			return fmt.Errorf("insert redemption: %w", err)
		}
		if err := q.UpdateVoucherStatus(ctx, store.UpdateVoucherStatusParams{
			OrganizationID: scope.OrganizationID,
			ID:             v.ID,
			Status:         string(o.status),
			WeightKg:       o.weight,
		}); err != nil {
			return fmt.Errorf("update voucher status: %w", err)
		}

		row, err := q.GetVoucher(ctx, scope.OrganizationID, v.ID)
		if err != nil {
			return fmt.Errorf("reload voucher: %w", err)
		}
		out = OutcomeView{Voucher: viewOf(row, today), Redemption: redemptionViewOf(red)}
		return nil
	})
	if err != nil {
		return OutcomeView{}, err
	}

	if s.Metrics != nil {
		s.Metrics.VoucherOutcome(string(o.status))
	}
	topic := TopicVoucherRedeemed
	if o.status == StatusUnfulfilled {
		topic = TopicVoucherUnfulfilled
	}
	s.emit(ctx, scope, topic, voucherID, map[string]any{
		"voucherId": voucherID,
		"code":      out.Voucher.Code,
		"centerId":  o.centerID,
	})
	return out, nil
}

// redeemable enforces the guard order: a persisted expiry wins, then terminal
// states, then a lapsed expiry date.
func redeemable(v store.Voucher, today time.Time) error {
	switch Status(v.Status) {
	case StatusExpired:
		return expired(fmt.Sprintf("voucher expired on %s", FormatDate(v.ExpiryDate)))
	case StatusRedeemed:
		return conflict("voucher already redeemed")
	case StatusUnfulfilled:
		return conflict("voucher already marked unfulfilled")
	}
	if v.ExpiryDate.Before(today) {
		return expired(fmt.Sprintf("voucher expired on %s", FormatDate(v.ExpiryDate)))
	}
	return nil
}

func redemptionViewOf(r store.Redemption) RedemptionView {
	v := RedemptionView{
		ID:            r.ID,
		VoucherID:     r.VoucherID,
		RedeemedAt:    r.RedeemedAt,
		RedeemedByID:  r.RedeemedByID,
		CenterID:      r.CenterID,
		FailureReason: r.FailureReason,
	}
	if r.WeightKg.Valid {
		w := r.WeightKg.Decimal
		v.WeightKg = &w
	}
	return v
}

func trimCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
