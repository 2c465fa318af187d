package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// InsertReferralDetailsParams holds the referral case record.
type InsertReferralDetailsParams struct {
	OrganizationID          uuid.UUID
	Notes                   string
	IncomeSource            *string
	ReferralReasons         json.RawMessage
	EthnicGroup             *string
	HouseholdByAge          json.RawMessage
	ContactConsent          bool
	DietaryConsent          bool
	DietaryRequirements     *string
	MoreThan3VouchersReason *string
	ParcelNotes             *string
}

const referralColumns = `id, organization_id, notes, income_source, referral_reasons, ethnic_group, household_by_age,
contact_consent, dietary_consent, dietary_requirements, more_than_3_vouchers_reason, parcel_notes, created_at`

func scanReferral(row interface{ Scan(...any) error }) (ReferralDetails, error) {
	var r ReferralDetails
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Notes, &r.IncomeSource, &r.ReferralReasons, &r.EthnicGroup,
		&r.HouseholdByAge, &r.ContactConsent, &r.DietaryConsent, &r.DietaryRequirements,
		&r.MoreThan3VouchersReason, &r.ParcelNotes, &r.CreatedAt)
	return r, err
}

// InsertReferralDetails persists a referral record.
func (q *Queries) InsertReferralDetails(ctx context.Context, arg InsertReferralDetailsParams) (ReferralDetails, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO referral_details (organization_id, notes, income_source, referral_reasons,
ethnic_group, household_by_age, contact_consent, dietary_consent, dietary_requirements,
more_than_3_vouchers_reason, parcel_notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING `+referralColumns,
		arg.OrganizationID, arg.Notes, arg.IncomeSource, nullJSON(arg.ReferralReasons), arg.EthnicGroup,
		nullJSON(arg.HouseholdByAge), arg.ContactConsent, arg.DietaryConsent, arg.DietaryRequirements,
		arg.MoreThan3VouchersReason, arg.ParcelNotes)
	r, err := scanReferral(row)
	return r, mapWriteError(err)
}

// GetReferralDetails loads a referral record.
func (q *Queries) GetReferralDetails(ctx context.Context, orgID, id uuid.UUID) (ReferralDetails, error) {
	row := q.db.QueryRow(ctx, `SELECT `+referralColumns+` FROM referral_details WHERE organization_id = $1 AND id = $2`, orgID, id)
	r, err := scanReferral(row)
	return r, notFound(err)
}

// DeleteReferralDetails removes a referral record.
func (q *Queries) DeleteReferralDetails(ctx context.Context, orgID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM referral_details WHERE organization_id = $1 AND id = $2`, orgID, id)
	return err
}

// InsertVoucherParams holds the voucher columns set at issuance.
type InsertVoucherParams struct {
	OrganizationID    uuid.UUID
	Code              string
	IssueDate         time.Time
	ExpiryDate        time.Time
	ClientID          uuid.UUID
	AgencyID          uuid.UUID
	FoodBankCenterID  *uuid.UUID
	ReferralDetailsID uuid.UUID
	IssuedByID        *uuid.UUID
	WeightKg          decimal.NullDecimal
	CollectionNotes   *string
}

const voucherColumns = `v.id, v.organization_id, v.code, v.status, v.issue_date, v.expiry_date, v.client_id, v.agency_id,
v.food_bank_center_id, v.referral_details_id, v.issued_by_id, v.weight_kg, v.collection_notes, v.created_at, v.updated_at`

func voucherDest(v *Voucher) []any {
	return []any{&v.ID, &v.OrganizationID, &v.Code, &v.Status, &v.IssueDate, &v.ExpiryDate, &v.ClientID, &v.AgencyID,
		&v.FoodBankCenterID, &v.ReferralDetailsID, &v.IssuedByID, &v.WeightKg, &v.CollectionNotes, &v.CreatedAt, &v.UpdatedAt}
}

const voucherRowSelect = `SELECT ` + voucherColumns + `, c.first_name, c.last_name, a.name
FROM vouchers v
JOIN clients c ON c.id = v.client_id
JOIN agencies a ON a.id = v.agency_id`

func scanVoucherRow(row interface{ Scan(...any) error }) (VoucherRow, error) {
	var r VoucherRow
	dest := append(voucherDest(&r.Voucher), &r.ClientFirstName, &r.ClientLastName, &r.AgencyName)
	err := row.Scan(dest...)
	return r, err
}

// InsertVoucher inserts a voucher unless its code is taken. inserted is false
// on a code collision so the caller can draw a new code without aborting the
// transaction.
func (q *Queries) InsertVoucher(ctx context.Context, arg InsertVoucherParams) (v Voucher, inserted bool, err error) {
	row := q.db.QueryRow(ctx, `INSERT INTO vouchers AS v (organization_id, code, status, issue_date, expiry_date, client_id,
agency_id, food_bank_center_id, referral_details_id, issued_by_id, weight_kg, collection_notes)
VALUES ($1, $2, 'issued', $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT ON CONSTRAINT vouchers_code_key DO NOTHING
RETURNING `+voucherColumns,
		arg.OrganizationID, arg.Code, arg.IssueDate, arg.ExpiryDate, arg.ClientID, arg.AgencyID,
		arg.FoodBankCenterID, arg.ReferralDetailsID, arg.IssuedByID, arg.WeightKg, arg.CollectionNotes)
	if err := row.Scan(voucherDest(&v)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, false, nil
		}
		return Voucher{}, false, mapWriteError(err)
	}
	return v, true, nil
}

// VoucherCodeExists reports whether any visible voucher uses code.
func (q *Queries) VoucherCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vouchers WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

// GetVoucher loads a voucher with client and agency names.
func (q *Queries) GetVoucher(ctx context.Context, orgID, id uuid.UUID) (VoucherRow, error) {
	row := q.db.QueryRow(ctx, voucherRowSelect+` WHERE v.organization_id = $1 AND v.id = $2`, orgID, id)
	r, err := scanVoucherRow(row)
	return r, notFound(err)
}

// GetVoucherByCode loads a voucher by its code, case-insensitively.
func (q *Queries) GetVoucherByCode(ctx context.Context, orgID uuid.UUID, code string) (VoucherRow, error) {
	row := q.db.QueryRow(ctx, voucherRowSelect+` WHERE v.organization_id = $1 AND v.code = upper($2)`, orgID, strings.TrimSpace(code))
	r, err := scanVoucherRow(row)
	return r, notFound(err)
}

// GetVoucherForUpdate locks the voucher row for the rest of the transaction.
func (q *Queries) GetVoucherForUpdate(ctx context.Context, orgID, id uuid.UUID) (Voucher, error) {
	var v Voucher
	err := q.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers v
WHERE v.organization_id = $1 AND v.id = $2 FOR UPDATE`, orgID, id).Scan(voucherDest(&v)...)
	return v, notFound(err)
}

// CountClientVouchersSince counts a client's vouchers of any status issued on or after since.
func (q *Queries) CountClientVouchersSince(ctx context.Context, orgID, clientID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM vouchers
WHERE organization_id = $1 AND client_id = $2 AND issue_date >= $3::date`, orgID, clientID, since).Scan(&n)
	return n, err
}

// UpdateVoucherStatusParams describes a status transition.
type UpdateVoucherStatusParams struct {
	OrganizationID  uuid.UUID
	ID              uuid.UUID
	Status          string
	WeightKg        decimal.NullDecimal
	CollectionNotes *string
}

// UpdateVoucherStatus sets the status, keeping existing weight and notes when none are supplied.
func (q *Queries) UpdateVoucherStatus(ctx context.Context, arg UpdateVoucherStatusParams) error {
	tag, err := q.db.Exec(ctx, `UPDATE vouchers
SET status = $3, weight_kg = COALESCE($4, weight_kg), collection_notes = COALESCE($5, collection_notes), updated_at = now()
WHERE organization_id = $1 AND id = $2`, arg.OrganizationID, arg.ID, arg.Status, arg.WeightKg, arg.CollectionNotes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVoucher removes a voucher row.
func (q *Queries) DeleteVoucher(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM vouchers WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// VoucherFilter narrows voucher listings. Today anchors the derived expiry rule.
type VoucherFilter struct {
	OrganizationID uuid.UUID
	Status         string
	Validity       string
	ClientID       *uuid.UUID
	AgencyID       *uuid.UUID
	CodePrefix     string
	FromDate       *time.Time
	ToDate         *time.Time
	Today          time.Time
	Limit          int
	Offset         int
}

// effectiveStatusSQL mirrors voucher.EffectiveStatus: issued vouchers past their expiry date read as expired.
const effectiveStatusSQL = `(CASE WHEN v.status = 'issued' AND v.expiry_date < %[1]s::date THEN 'expired' ELSE v.status END)`

func (f VoucherFilter) where() (string, []any) {
	clauses := []string{"v.organization_id = $1"}
	args := []any{f.OrganizationID}
	add := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	today := ""
	todayParam := func() string {
		if today == "" {
			today = add(f.Today)
		}
		return today
	}
	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf(effectiveStatusSQL, todayParam())+" = "+add(f.Status))
	}
	switch f.Validity {
	case "valid":
		clauses = append(clauses, fmt.Sprintf("v.status = 'issued' AND v.expiry_date >= %s::date", todayParam()))
	case "expired":
		clauses = append(clauses, fmt.Sprintf("(v.status = 'expired' OR (v.status = 'issued' AND v.expiry_date < %s::date))", todayParam()))
	}
	if f.ClientID != nil {
		clauses = append(clauses, "v.client_id = "+add(*f.ClientID))
	}
	if f.AgencyID != nil {
		clauses = append(clauses, "v.agency_id = "+add(*f.AgencyID))
	}
	if p := strings.TrimSpace(f.CodePrefix); p != "" {
		clauses = append(clauses, "v.code LIKE "+add(escapeLike(strings.ToUpper(p)))+" || '%'")
	}
	if f.FromDate != nil {
		clauses = append(clauses, "v.issue_date >= "+add(*f.FromDate)+"::date")
	}
	if f.ToDate != nil {
		clauses = append(clauses, "v.issue_date <= "+add(*f.ToDate)+"::date")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListVouchers returns a page of vouchers newest first along with the total match count.
func (q *Queries) ListVouchers(ctx context.Context, f VoucherFilter) ([]VoucherRow, int, error) {
	where, args := f.where()
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM vouchers v`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	pageArgs := append(args, limit, f.Offset)
	rows, err := q.db.Query(ctx, voucherRowSelect+where+
		fmt.Sprintf(" ORDER BY v.issue_date DESC, v.created_at DESC, v.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2),
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]VoucherRow, 0, limit)
	for rows.Next() {
		r, err := scanVoucherRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// InsertRedemption records a redemption outcome.
func (q *Queries) InsertRedemption(ctx context.Context, arg Redemption) (Redemption, error) {
	var r Redemption
	err := q.db.QueryRow(ctx, `INSERT INTO redemptions (organization_id, voucher_id, redeemed_by_id, center_id, failure_reason, weight_kg)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, organization_id, voucher_id, redeemed_at, redeemed_by_id, center_id, failure_reason, weight_kg`,
		arg.OrganizationID, arg.VoucherID, arg.RedeemedByID, arg.CenterID, arg.FailureReason, arg.WeightKg).
		Scan(&r.ID, &r.OrganizationID, &r.VoucherID, &r.RedeemedAt, &r.RedeemedByID, &r.CenterID, &r.FailureReason, &r.WeightKg)
	return r, mapWriteError(err)
}

// GetRedemptionByVoucher loads the redemption of a voucher.
func (q *Queries) GetRedemptionByVoucher(ctx context.Context, orgID, voucherID uuid.UUID) (Redemption, error) {
	var r Redemption
	err := q.db.QueryRow(ctx, `SELECT id, organization_id, voucher_id, redeemed_at, redeemed_by_id, center_id, failure_reason, weight_kg
FROM redemptions WHERE organization_id = $1 AND voucher_id = $2`, orgID, voucherID).
		Scan(&r.ID, &r.OrganizationID, &r.VoucherID, &r.RedeemedAt, &r.RedeemedByID, &r.CenterID, &r.FailureReason, &r.WeightKg)
	return r, notFound(err)
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
