package tenant

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CodeFormat selects how voucher codes are minted for a tenant.
type CodeFormat string

const (
	CodeFormatRandom     CodeFormat = "random"
	CodeFormatSequential CodeFormat = "sequential"
)

// Policy is the per-organization issuance configuration stored on the organization row.
type Policy struct {
	OrganizationID uuid.UUID
	TenantIndex    int
	CodeFormat     CodeFormat
	ConsentExempt  bool
	// AutoExpiryDays derives the expiry date when the caller omits one. Zero disables it.
	AutoExpiryDays int
}

// Sequential reports whether codes follow the E-<index>-<seq> format.
func (p Policy) Sequential() bool { return p.CodeFormat == CodeFormatSequential }

// SequencePrefix returns the code prefix shared by all sequential codes of the tenant.
func (p Policy) SequencePrefix() string {
	return fmt.Sprintf("E-%03d-", p.TenantIndex)
}

// DeriveExpiry returns issue + AutoExpiryDays when automatic expiry is configured.
func (p Policy) DeriveExpiry(issue time.Time) (time.Time, bool) {
	if p.AutoExpiryDays <= 0 {
		return time.Time{}, false
	}
	return issue.AddDate(0, 0, p.AutoExpiryDays), true
}

// ConsentDefault returns the value assumed for an omitted consent flag.
// Only exempt tenants may omit them; others must send an explicit true.
func (p Policy) ConsentDefault() (value bool, allowed bool) {
	if p.ConsentExempt {
		return true, true
	}
	return false, false
}
