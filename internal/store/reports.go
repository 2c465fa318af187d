package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusCount is the number of vouchers in one effective status.
type StatusCount struct {
	Status string
	Count  int
}

// AgencyCount is the number of vouchers issued by one agency.
type AgencyCount struct {
	AgencyID   uuid.UUID
	AgencyName string
	Issued     int
	Redeemed   int
}

// VoucherStatusCounts groups vouchers issued in [from, to] by effective status as of today.
func (q *Queries) VoucherStatusCounts(ctx context.Context, orgID uuid.UUID, from, to, today time.Time) ([]StatusCount, error) {
	rows, err := q.db.Query(ctx, `SELECT
  CASE WHEN status = 'issued' AND expiry_date < $4::date THEN 'expired' ELSE status END AS effective,
  count(*)
FROM vouchers
WHERE organization_id = $1 AND issue_date >= $2::date AND issue_date <= $3::date
GROUP BY effective ORDER BY effective`, orgID, from, to, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// redeemedWeightSQL falls back to the weight set at issuance when the
// redemption did not record its own.
const redeemedWeightSQL = `SELECT sum(COALESCE(r.weight_kg, v.weight_kg)) FROM redemptions r
JOIN vouchers v ON v.id = r.voucher_id AND v.organization_id = r.organization_id
WHERE r.organization_id = $1 AND r.failure_reason IS NULL
  AND r.redeemed_at >= $2::date AND r.redeemed_at < ($3::date + 1)`

// RedeemedWeight sums the parcel weight of successful redemptions in [from, to].
func (q *Queries) RedeemedWeight(ctx context.Context, orgID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := q.db.QueryRow(ctx, redeemedWeightSQL, orgID, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// AgencyCounts lists issuance and redemption counts per agency for vouchers issued in [from, to].
func (q *Queries) AgencyCounts(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]AgencyCount, error) {
	rows, err := q.db.Query(ctx, `SELECT a.id, a.name, count(v.id), count(v.id) FILTER (WHERE v.status = 'redeemed')
FROM agencies a
JOIN vouchers v ON v.agency_id = a.id AND v.issue_date >= $2::date AND v.issue_date <= $3::date
WHERE a.organization_id = $1
GROUP BY a.id, a.name ORDER BY count(v.id) DESC, a.name`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgencyCount
	for rows.Next() {
		var ac AgencyCount
		if err := rows.Scan(&ac.AgencyID, &ac.AgencyName, &ac.Issued, &ac.Redeemed); err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}
