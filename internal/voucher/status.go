package voucher

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/support-hubs/internal/store"
)

// Status is the lifecycle state of a voucher.
type Status string

const (
	StatusIssued      Status = store.VoucherStatusIssued
	StatusRedeemed    Status = store.VoucherStatusRedeemed
	StatusExpired     Status = store.VoucherStatusExpired
	StatusUnfulfilled Status = store.VoucherStatusUnfulfilled
)

// ParseStatus validates a status filter value.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case StatusIssued, StatusRedeemed, StatusExpired, StatusUnfulfilled:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// EffectiveStatus derives the status shown to users: an issued voucher whose
// expiry date is before today reads as expired.
func EffectiveStatus(status Status, expiry, today time.Time) Status {
	if status == StatusIssued && expiry.Before(today) {
		return StatusExpired
	}
	return status
}

const dateLayout = "2006-01-02"

// CivilDate returns midnight UTC of the calendar date t falls on in loc.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp and returns the civil date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if d, err := time.Parse(dateLayout, trimmed); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return CivilDate(ts, loc), nil
}

// FormatDate renders a civil date.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}
