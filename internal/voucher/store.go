package voucher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// Querier captures the database methods required by the voucher service.
// Every method is expected to run inside a tenant transaction.
type Querier interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (store.Organization, error)
	GetSubscriptionPlan(ctx context.Context, id string) (store.SubscriptionPlan, error)
	CountVouchersCreatedBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) (int, error)

	GetClient(ctx context.Context, orgID, id uuid.UUID) (store.Client, error)
	GetAgency(ctx context.Context, orgID, id uuid.UUID) (store.Agency, error)
	GetCenter(ctx context.Context, orgID, id uuid.UUID) (store.Center, error)

	CountClientVouchersSince(ctx context.Context, orgID, clientID uuid.UUID, since time.Time) (int, error)

	InsertReferralDetails(ctx context.Context, arg store.InsertReferralDetailsParams) (store.ReferralDetails, error)
	GetReferralDetails(ctx context.Context, orgID, id uuid.UUID) (store.ReferralDetails, error)
	DeleteReferralDetails(ctx context.Context, orgID, id uuid.UUID) error

	VoucherCodeExists(ctx context.Context, code string) (bool, error)
	NextVoucherSequence(ctx context.Context, orgID uuid.UUID, prefix string) (int, error)
	InsertVoucher(ctx context.Context, arg store.InsertVoucherParams) (store.Voucher, bool, error)

	GetVoucher(ctx context.Context, orgID, id uuid.UUID) (store.VoucherRow, error)
	GetVoucherByCode(ctx context.Context, orgID uuid.UUID, code string) (store.VoucherRow, error)
	GetVoucherForUpdate(ctx context.Context, orgID, id uuid.UUID) (store.Voucher, error)
	ListVouchers(ctx context.Context, f store.VoucherFilter) ([]store.VoucherRow, int, error)
	UpdateVoucherStatus(ctx context.Context, arg store.UpdateVoucherStatusParams) error
	DeleteVoucher(ctx context.Context, orgID, id uuid.UUID) error

	InsertRedemption(ctx context.Context, arg store.Redemption) (store.Redemption, error)
	GetRedemptionByVoucher(ctx context.Context, orgID, voucherID uuid.UUID) (store.Redemption, error)
}

// TxRunner runs fn inside a transaction bound to the tenant scope.
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

// EventEmitter publishes domain events after a successful commit.
type EventEmitter interface {
	Emit(ctx context.Context, scope tenant.Scope, topic string, aggregateID uuid.UUID, payload any) (store.DomainEvent, error)
}

// maxWeightKg is the first value that no longer fits NUMERIC(10,2).
var maxWeightKg = decimal.New(1, 8)

// checkWeight rejects weights the weight_kg columns cannot hold once rounded
// to two decimals.
func checkWeight(w *decimal.Decimal) error {
	if w == nil {
		return nil
	}
	if w.IsNegative() {
		return validationFailed("weightKg must not be negative", FieldError{Field: "weightKg", Reason: ReasonInvalid})
	}
	if w.Round(2).GreaterThanOrEqual(maxWeightKg) {
		return validationFailed("weightKg is too large", FieldError{Field: "weightKg", Reason: ReasonInvalid})
	}
	return nil
}

func nullWeight(w *decimal.Decimal) decimal.NullDecimal {
	if w == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: w.Round(2), Valid: true}
}
