package voucher

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// DefaultNotesMaxLength caps notes and parcel notes, counted in characters.
const DefaultNotesMaxLength = 400

// ReferralInput is the referral case record supplied with an issuance.
type ReferralInput struct {
	Notes                   string          `json:"notes"`
	IncomeSource            *string         `json:"incomeSource"`
	ReferralReasons         json.RawMessage `json:"referralReasons"`
	EthnicGroup             *string         `json:"ethnicGroup"`
	HouseholdByAge          json.RawMessage `json:"householdByAge"`
	ContactConsent          *bool           `json:"contactConsent"`
	DietaryConsent          *bool           `json:"dietaryConsent"`
	DietaryRequirements     *string         `json:"dietaryRequirements"`
	MoreThan3VouchersReason *string         `json:"moreThan3VouchersReason"`
	ParcelNotes             *string         `json:"parcelNotes"`
}

// buildReferral validates the referral input and returns the insert params.
// Over-long text is rejected rather than truncated.
func buildReferral(in ReferralInput, policy tenant.Policy, maxLen int) (store.InsertReferralDetailsParams, error) {
	if maxLen <= 0 {
		maxLen = DefaultNotesMaxLength
	}
	var fields []FieldError
	if strings.TrimSpace(in.Notes) == "" {
		fields = append(fields, FieldError{Field: "referralDetails.notes", Reason: ReasonRequired})
	} else if utf8.RuneCountInString(in.Notes) > maxLen {
		fields = append(fields, FieldError{Field: "referralDetails.notes", Reason: ReasonFieldTooLong, Limit: maxLen})
	}
	if in.ParcelNotes != nil && utf8.RuneCountInString(*in.ParcelNotes) > maxLen {
		fields = append(fields, FieldError{Field: "referralDetails.parcelNotes", Reason: ReasonFieldTooLong, Limit: maxLen})
	}

	contact, ok := consentValue(in.ContactConsent, policy)
	if !ok {
		fields = append(fields, FieldError{Field: "referralDetails.contactConsent", Reason: ReasonConsent})
	}
	dietary, ok := consentValue(in.DietaryConsent, policy)
	if !ok {
		fields = append(fields, FieldError{Field: "referralDetails.dietaryConsent", Reason: ReasonConsent})
	}
	reasons, ok := structuredJSON(in.ReferralReasons)
	if !ok {
		fields = append(fields, FieldError{Field: "referralDetails.referralReasons", Reason: ReasonInvalid})
	}
	household, ok := structuredJSON(in.HouseholdByAge)
	if !ok {
		fields = append(fields, FieldError{Field: "referralDetails.householdByAge", Reason: ReasonInvalid})
	}
	if len(fields) > 0 {
		return store.InsertReferralDetailsParams{}, validationFailed("referral details are invalid", fields...)
	}

	return store.InsertReferralDetailsParams{
		OrganizationID:          policy.OrganizationID,
		Notes:                   in.Notes,
		IncomeSource:            common.TrimmedOrNil(in.IncomeSource),
		ReferralReasons:         reasons,
		EthnicGroup:             common.TrimmedOrNil(in.EthnicGroup),
		HouseholdByAge:          household,
		ContactConsent:          contact,
		DietaryConsent:          dietary,
		DietaryRequirements:     common.TrimmedOrNil(in.DietaryRequirements),
		MoreThan3VouchersReason: common.TrimmedOrNil(in.MoreThan3VouchersReason),
		ParcelNotes:             in.ParcelNotes,
	}, nil
}

// consentValue requires an explicit true unless the tenant is consent exempt,
// in which case an omitted flag defaults to true.
func consentValue(flag *bool, policy tenant.Policy) (bool, bool) {
	if flag == nil {
		return policy.ConsentDefault()
	}
	if *flag {
		return true, true
	}
	return false, policy.ConsentExempt
}

// structuredJSON accepts an absent value, null, a JSON object or a JSON array.
func structuredJSON(raw json.RawMessage) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, true
	}
	if (trimmed[0] != '{' && trimmed[0] != '[') || !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}
