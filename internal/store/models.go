package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Voucher statuses as persisted.
const (
	VoucherStatusIssued      = "issued"
	VoucherStatusRedeemed    = "redeemed"
	VoucherStatusExpired     = "expired"
	VoucherStatusUnfulfilled = "unfulfilled"
)

// Organization is a tenant with its subscription and issuance policy.
type Organization struct {
	ID                 uuid.UUID
	Name               string
	Slug               string
	SubscriptionPlanID *string
	SubscriptionStatus string
	TenantIndex        int32
	CodeFormat         string
	ConsentExempt      bool
	AutoExpiryDays     *int32
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SubscriptionPlan caps monthly voucher issuance.
type SubscriptionPlan struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	MonthlyVoucherLimit *int32 `json:"monthlyVoucherLimit,omitempty"`
}

// Client is a person receiving vouchers.
type Client struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Postcode       *string   `json:"postcode,omitempty"`
	Address        *string   `json:"address,omitempty"`
	NoFixedAddress bool      `json:"noFixedAddress"`
	YearOfBirth    *int32    `json:"yearOfBirth,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Agency is a referring organization.
type Agency struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Name           string    `json:"name"`
	ContactEmail   *string   `json:"contactEmail,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Center is a food bank centre where vouchers are redeemed.
type Center struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Name           string    `json:"name"`
	Address        *string   `json:"address,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReferralDetails is the case record attached one-to-one to a voucher.
type ReferralDetails struct {
	ID                      uuid.UUID
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
	CreatedAt               time.Time
}

// Voucher is a dated entitlement for one food parcel.
type Voucher struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	Code              string
	Status            string
	IssueDate         time.Time
	ExpiryDate        time.Time
	ClientID          uuid.UUID
	AgencyID          uuid.UUID
	FoodBankCenterID  *uuid.UUID
	ReferralDetailsID uuid.UUID
	IssuedByID        *uuid.UUID
	WeightKg          decimal.NullDecimal
	CollectionNotes   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// VoucherRow is a voucher joined with the names shown in listings.
type VoucherRow struct {
	Voucher
	ClientFirstName string
	ClientLastName  string
	AgencyName      string
}

// Redemption records the outcome of a voucher at a centre.
type Redemption struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	VoucherID      uuid.UUID
	RedeemedAt     time.Time
	RedeemedByID   *uuid.UUID
	CenterID       *uuid.UUID
	FailureReason  *string
	WeightKg       decimal.NullDecimal
}

// AuditLog is an append-only audit trail entry.
type AuditLog struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	ActorUserID    *uuid.UUID      `json:"actorUserId,omitempty"`
	ActorRole      *string         `json:"actorRole,omitempty"`
	Action         string          `json:"action"`
	ResourceType   string          `json:"resourceType"`
	ResourceID     *string         `json:"resourceId,omitempty"`
	Method         *string         `json:"method,omitempty"`
	Path           *string         `json:"path,omitempty"`
	Route          *string         `json:"route,omitempty"`
	Status         *int32          `json:"status,omitempty"`
	IP             *string         `json:"ip,omitempty"`
	UserAgent      *string         `json:"userAgent,omitempty"`
	RequestID      *string         `json:"requestId,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// DomainEvent is a persisted business event.
type DomainEvent struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Topic          string
	AggregateID    uuid.UUID
	Payload        json.RawMessage
	OccurredAt     time.Time
}
