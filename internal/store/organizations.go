package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const organizationColumns = `id, name, slug, subscription_plan_id, subscription_status, tenant_index,
code_format, consent_exempt, auto_expiry_days, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.SubscriptionPlanID, &o.SubscriptionStatus, &o.TenantIndex,
		&o.CodeFormat, &o.ConsentExempt, &o.AutoExpiryDays, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// GetOrganization loads an organization by id.
func (q *Queries) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	row := q.db.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	o, err := scanOrganization(row)
	return o, notFound(err)
}

// OrganizationIDBySlug resolves a subdomain slug.
func (q *Queries) OrganizationIDBySlug(ctx context.Context, slug string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, `SELECT id FROM organizations WHERE slug = $1`, slug).Scan(&id)
	return id, notFound(err)
}

// GetSubscriptionPlan loads a plan by id.
func (q *Queries) GetSubscriptionPlan(ctx context.Context, id string) (SubscriptionPlan, error) {
	var p SubscriptionPlan
	err := q.db.QueryRow(ctx, `SELECT id, name, monthly_voucher_limit FROM subscription_plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.MonthlyVoucherLimit)
	return p, notFound(err)
}

// CountVouchersCreatedBetween counts vouchers created in [from, to) for the organization.
func (q *Queries) CountVouchersCreatedBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM vouchers
WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3`, orgID, from, to).Scan(&n)
	return n, err
}

// NextVoucherSequence atomically advances the per-organization code counter.
// The first call seeds the counter from the number of existing codes with prefix.
func (q *Queries) NextVoucherSequence(ctx context.Context, orgID uuid.UUID, prefix string) (int, error) {
	var next int
	err := q.db.QueryRow(ctx, `INSERT INTO organization_voucher_counters (organization_id, last_value)
VALUES ($1, (SELECT count(*) FROM vouchers WHERE organization_id = $1 AND code LIKE $2 || '%') + 1)
ON CONFLICT (organization_id) DO UPDATE
SET last_value = organization_voucher_counters.last_value + 1, updated_at = now()
RETURNING last_value`, orgID, prefix).Scan(&next)
	return next, err
}
