package common

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Limit  int    `json:"limit,omitempty"`
}

// Field error reasons.
const (
	ReasonRequired     = "Required"
	ReasonFieldTooLong = "FieldTooLong"
	ReasonInvalid      = "Invalid"
	ReasonConsent      = "ConsentRequired"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidationFailed builds the 400 VALIDATION_FAILED error with field details.
func ValidationFailed(message string, cause error, fields ...FieldError) *AppError {
	err := NewAppError("VALIDATION_FAILED", message, http.StatusBadRequest, cause)
	if len(fields) > 0 {
		err.Details = map[string]any{"fields": fields}
	}
	return err
}

// FieldErrors converts validator errors to FieldErrors. Other errors yield nil.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		item := FieldError{Field: field, Reason: ReasonInvalid}
		switch fe.Tag() {
		case "required", "required_if", "required_without":
			item.Reason = ReasonRequired
		case "max":
			item.Reason = ReasonFieldTooLong
			item.Limit, _ = strconv.Atoi(fe.Param())
		}
		out = append(out, item)
	}
	return out
}
