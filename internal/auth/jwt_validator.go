package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	errNilToken       = errors.New("auth: token is nil")
	errMissingAlg     = errors.New("auth: token missing algorithm")
	errMissingExpiry  = errors.New("auth: token missing expiration")
	errMissingSubject = errors.New("auth: token missing subject")
)

// TokenValidator checks the registered claims of an access token and the
// private claims a principal is built from.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	// RequiredClaims lists private claims that must be present.
	RequiredClaims []string
}

// Validate reports the first problem found with tok, signed using alg, at now.
func (v TokenValidator) Validate(tok jwt.Token, alg jwa.SignatureAlgorithm, now time.Time) error {
	switch {
	case tok == nil:
		return errNilToken
	case alg == "":
		return errMissingAlg
	case v.Algorithm != "" && alg != v.Algorithm:
		return fmt.Errorf("auth: unexpected token algorithm %s", alg)
	case tok.Expiration().IsZero():
		return errMissingExpiry
	case tok.Subject() == "":
		return errMissingSubject
	}
	return jwt.Validate(tok, v.options(now)...)
}

func (v TokenValidator) options(now time.Time) []jwt.ValidateOption {
	opts := make([]jwt.ValidateOption, 0, 4+len(v.RequiredClaims))
	opts = append(opts, jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })))
	if v.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	for _, claim := range v.RequiredClaims {
		opts = append(opts, jwt.WithRequiredClaim(claim))
	}
	return opts
}
