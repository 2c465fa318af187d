package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes {"error":{"code":...,"message":...,"details":...}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, struct {
		Error ErrorBody `json:"error"`
	}{ErrorBody{Code: code, Message: message, Details: details}})
}

var errBodyRequired = NewAppError("VALIDATION_FAILED", "request body is required", http.StatusBadRequest, nil)

// DecodeJSON decodes exactly one JSON value from the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errBodyRequired
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return NewAppError("VALIDATION_FAILED", "invalid JSON payload", http.StatusBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return NewAppError("VALIDATION_FAILED", "request body must contain a single JSON object", http.StatusBadRequest, err)
	}
	return nil
}
