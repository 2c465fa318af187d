package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
)

// CodeQuotaExceeded is returned when a tenant may not issue more vouchers.
const CodeQuotaExceeded = "QUOTA_EXCEEDED"

// ErrQuotaExceeded is wrapped by every gate rejection.
var ErrQuotaExceeded = errors.New("billing: quota exceeded")

// Subscription statuses that allow issuance.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
)

// Source reads the subscription data for a tenant.
type Source interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (store.Organization, error)
	GetSubscriptionPlan(ctx context.Context, id string) (store.SubscriptionPlan, error)
	CountVouchersCreatedBetween(ctx context.Context, orgID uuid.UUID, from, to time.Time) (int, error)
}

// Usage summarises the current billing period of a tenant.
type Usage struct {
	Status      string `json:"subscriptionStatus"`
	PlanID      string `json:"planId,omitempty"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
	Issued      int    `json:"issued"`
	// Limit is nil when the plan is unlimited.
	Limit     *int `json:"limit"`
	CanIssue  bool `json:"canIssue"`
	Remaining *int `json:"remaining"`
}

// Gate decides whether a tenant may issue another voucher this month.
type Gate struct {
	// DefaultMonthlyLimit applies to tenants without a plan. Zero means unlimited.
	DefaultMonthlyLimit int
	Location            *time.Location
}

// Check returns a QUOTA_EXCEEDED AppError when issuance is not allowed.
func (g Gate) Check(ctx context.Context, q Source, orgID uuid.UUID, now time.Time) error {
	usage, err := g.Usage(ctx, q, orgID, now)
	if err != nil {
		return err
	}
	if usage.CanIssue {
		return nil
	}
	if !activeStatus(usage.Status) {
		return quotaExceeded(fmt.Sprintf("subscription is %s; voucher issuance is disabled", usage.Status), usage)
	}
	return quotaExceeded(fmt.Sprintf("monthly voucher limit of %d reached", *usage.Limit), usage)
}

// Usage computes the issuance counters of the calendar month containing now.
func (g Gate) Usage(ctx context.Context, q Source, orgID uuid.UUID, now time.Time) (Usage, error) {
	org, err := q.GetOrganization(ctx, orgID)
	if err != nil {
		return Usage{}, fmt.Errorf("load organization: %w", err)
	}
	start, end := g.period(now)
	issued, err := q.CountVouchersCreatedBetween(ctx, orgID, start, end)
	if err != nil {
		return Usage{}, fmt.Errorf("count monthly vouchers: %w", err)
	}

	usage := Usage{
		Status:      org.SubscriptionStatus,
		PeriodStart: start.Format("2006-01-02"),
		PeriodEnd:   end.AddDate(0, 0, -1).Format("2006-01-02"),
		Issued:      issued,
	}
	limit := g.DefaultMonthlyLimit
	if org.SubscriptionPlanID != nil && *org.SubscriptionPlanID != "" {
		usage.PlanID = *org.SubscriptionPlanID
		plan, err := q.GetSubscriptionPlan(ctx, *org.SubscriptionPlanID)
		if err != nil {
			return Usage{}, fmt.Errorf("load plan: %w", err)
		}
		limit = 0
		if plan.MonthlyVoucherLimit != nil {
			limit = int(*plan.MonthlyVoucherLimit)
		}
	}
	if limit > 0 {
		remaining := limit - issued
		if remaining < 0 {
			remaining = 0
		}
		usage.Limit = &limit
		usage.Remaining = &remaining
	}
	usage.CanIssue = activeStatus(org.SubscriptionStatus) && (usage.Limit == nil || issued < limit)
	return usage, nil
}

// period returns [first of month, first of next month) in the gate location.
func (g Gate) period(now time.Time) (time.Time, time.Time) {
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func activeStatus(status string) bool {
	return status == StatusActive || status == StatusTrialing
}

func quotaExceeded(message string, usage Usage) *common.AppError {
	err := common.NewAppError(CodeQuotaExceeded, message, http.StatusPaymentRequired, ErrQuotaExceeded)
	err.Details = usage
	return err
}
