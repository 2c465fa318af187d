package voucher

import (
	"errors"
	"net/http"

	"github.com/noah-isme/support-hubs/internal/common"
)

// Error codes returned by voucher operations.
const (
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeMissingJustification    = "MISSING_JUSTIFICATION"
	CodeNotFound                = "NOT_FOUND"
	CodeForbidden               = "FORBIDDEN"
	CodeQuotaExceeded           = "QUOTA_EXCEEDED"
	CodeCodeGenerationExhausted = "CODE_GENERATION_EXHAUSTED"
	CodeExpired                 = "EXPIRED"
	CodeConflict                = "CONFLICT"
)

var (
	ErrValidation              = errors.New("voucher: validation failed")
	ErrMissingJustification    = errors.New("voucher: justification required")
	ErrNotFound                = errors.New("voucher: not found")
	ErrForbidden               = errors.New("voucher: forbidden")
	ErrCodeGenerationExhausted = errors.New("voucher: code generation exhausted")
	ErrExpired                 = errors.New("voucher: expired")
	ErrConflict                = errors.New("voucher: conflict")
)

// FieldError describes one rejected input field.
type FieldError = common.FieldError

// Field error reasons.
const (
	ReasonRequired     = common.ReasonRequired
	ReasonFieldTooLong = common.ReasonFieldTooLong
	ReasonInvalid      = common.ReasonInvalid
	ReasonConsent      = common.ReasonConsent
)

func validationFailed(message string, fields ...FieldError) *common.AppError {
	return common.ValidationFailed(message, ErrValidation, fields...)
}

func missingJustification(count, threshold int) *common.AppError {
	err := common.NewAppError(CodeMissingJustification,
		"client has received the maximum number of vouchers in the eligibility window; a reason is required",
		http.StatusBadRequest, ErrMissingJustification)
	err.Details = map[string]any{"recentVouchers": count, "threshold": threshold, "field": "moreThan3VouchersReason"}
	return err
}

// referencedNotFound is used when a referenced entity in a request body is missing.
func referencedNotFound(message string) *common.AppError {
	return common.NewAppError(CodeNotFound, message, http.StatusBadRequest, ErrNotFound)
}

func notFound(message string) *common.AppError {
	return common.NewAppError(CodeNotFound, message, http.StatusNotFound, ErrNotFound)
}

func forbidden(message string) *common.AppError {
	return common.NewAppError(CodeForbidden, message, http.StatusForbidden, ErrForbidden)
}

func codeGenerationExhausted() *common.AppError {
	return common.NewAppError(CodeCodeGenerationExhausted, "unable to generate a unique voucher code", http.StatusInternalServerError, ErrCodeGenerationExhausted)
}

func expired(message string) *common.AppError {
	return common.NewAppError(CodeExpired, message, http.StatusBadRequest, ErrExpired)
}

func conflict(message string) *common.AppError {
	return common.NewAppError(CodeConflict, message, http.StatusConflict, ErrConflict)
}
