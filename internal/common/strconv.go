package common

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// QueryInt reads key from q, returning def when it is absent or not an integer.
func QueryInt(q url.Values, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(q.Get(key)))
	if err != nil {
		return def
	}
	return n
}

// ParseOptionalUUID parses value when non-blank. Blank input yields nil.
func ParseOptionalUUID(value string) (*uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// TrimmedOrNil trims *value and maps blank results to nil.
func TrimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	if s := strings.TrimSpace(*value); s != "" {
		return &s
	}
	return nil
}
