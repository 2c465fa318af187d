package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/support-hubs/internal/common"
)

const defaultAccessTTL = 15 * time.Minute

// Private claim names carried by access tokens.
const (
	claimOrganization = "org"
	claimRole         = "role"
	claimAgency       = "agency_id"
)

// Service issues and verifies HS256 access tokens that carry a principal.
type Service struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// NewService constructs a Service from cfg.
func NewService(cfg Config) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "support-hubs"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "support-hubs-api"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:         issuer,
			Audience:       audience,
			ClockSkew:      clockSkew,
			Algorithm:      jwa.HS256,
			RequiredClaims: []string{claimOrganization, claimRole},
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}

// IssueAccessToken signs a token for p and returns it with its expiry.
func (s *Service) IssueAccessToken(p common.Principal) (string, time.Time, error) {
	if p.UserID == uuid.Nil || p.OrganizationID == uuid.Nil {
		return "", time.Time{}, errors.New("auth: principal requires user and organization")
	}
	if !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("auth: unknown role %q", p.Role)
	}
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(p.UserID.String()).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(claimOrganization, p.OrganizationID.String()).
		Claim(claimRole, string(p.Role))
	if p.AgencyID != nil {
		builder = builder.Claim(claimAgency, p.AgencyID.String())
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// ParseAccessToken verifies token and returns the principal it carries.
func (s *Service) ParseAccessToken(token string) (common.Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Principal{}, unauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return common.Principal{}, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}
	p, err := principalFromToken(parsed)
	if err != nil {
		return common.Principal{}, unauthorized("invalid token", err)
	}
	return p, nil
}

func principalFromToken(tok jwt.Token) (common.Principal, error) {
	userID, err := uuid.Parse(tok.Subject())
	if err != nil {
		return common.Principal{}, fmt.Errorf("auth: subject: %w", err)
	}
	org, err := uuid.Parse(stringClaim(tok, claimOrganization))
	if err != nil {
		return common.Principal{}, fmt.Errorf("auth: org claim: %w", err)
	}
	role := common.Role(stringClaim(tok, claimRole))
	if !role.Valid() {
		return common.Principal{}, fmt.Errorf("auth: unknown role %q", role)
	}
	p := common.Principal{UserID: userID, OrganizationID: org, Role: role}
	if raw := stringClaim(tok, claimAgency); raw != "" {
		agency, err := uuid.Parse(raw)
		if err != nil {
			return common.Principal{}, fmt.Errorf("auth: agency claim: %w", err)
		}
		p.AgencyID = &agency
	}
	if p.IsThirdParty() && p.AgencyID == nil {
		return common.Principal{}, errors.New("auth: third-party token without agency")
	}
	return p, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
