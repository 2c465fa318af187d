package voucher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Window modes for the eligibility look-back.
const (
	WindowFixed    = "fixed"
	WindowCalendar = "calendar"
)

// EligibilityCounter counts a client's recent vouchers.
type EligibilityCounter interface {
	CountClientVouchersSince(ctx context.Context, orgID, clientID uuid.UUID, since time.Time) (int, error)
}

// EligibilityPolicy limits how many vouchers a client may receive in the
// look-back window before a written justification is required.
type EligibilityPolicy struct {
	Window    string
	Days      int
	Threshold int
}

// DefaultEligibility matches the production defaults: three vouchers per 180 days.
func DefaultEligibility() EligibilityPolicy {
	return EligibilityPolicy{Window: WindowFixed, Days: 180, Threshold: 3}
}

// Eligibility is the outcome of an eligibility evaluation.
type Eligibility struct {
	ClientID              uuid.UUID `json:"clientId"`
	RecentVouchers        int       `json:"recentVouchers"`
	Threshold             int       `json:"threshold"`
	WindowStart           string    `json:"windowStart"`
	JustificationRequired bool      `json:"justificationRequired"`
}

// WindowStart returns the first civil date counted for today.
func (p EligibilityPolicy) WindowStart(today time.Time) time.Time {
	if p.Window == WindowCalendar {
		return today.AddDate(0, -6, 0)
	}
	days := p.Days
	if days <= 0 {
		days = 180
	}
	return today.AddDate(0, 0, -days)
}

func (p EligibilityPolicy) threshold() int {
	if p.Threshold <= 0 {
		return 3
	}
	return p.Threshold
}

// Evaluate counts the client's vouchers of any status issued since the window start.
func (p EligibilityPolicy) Evaluate(ctx context.Context, q EligibilityCounter, orgID, clientID uuid.UUID, today time.Time) (Eligibility, error) {
	start := p.WindowStart(today)
	count, err := q.CountClientVouchersSince(ctx, orgID, clientID, start)
	if err != nil {
		return Eligibility{}, fmt.Errorf("count recent vouchers: %w", err)
	}
	return Eligibility{
		ClientID:              clientID,
		RecentVouchers:        count,
		Threshold:             p.threshold(),
		WindowStart:           FormatDate(start),
		JustificationRequired: count >= p.threshold(),
	}, nil
}

// Check rejects issuance when the threshold is reached and no reason is given.
func (p EligibilityPolicy) Check(ctx context.Context, q EligibilityCounter, orgID, clientID uuid.UUID, today time.Time, reason *string) error {
	result, err := p.Evaluate(ctx, q, orgID, clientID, today)
	if err != nil {
		return err
	}
	if result.JustificationRequired && (reason == nil || strings.TrimSpace(*reason) == "") {
		return missingJustification(result.RecentVouchers, result.Threshold)
	}
	return nil
}
