package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/support-hubs/internal/common"
)

func newTestService(t *testing.T, now time.Time) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret:         "super-secret-key",
		AccessTokenTTL: time.Minute,
		Issuer:         "support-hubs",
		Audience:       "support-hubs-api",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.WithNow(func() time.Time { return now })
	return svc
}

func TestServiceRoundTripsPrincipal(t *testing.T) {
	svc := newTestService(t, time.Now())
	agency := uuid.New()
	want := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleThirdParty, AgencyID: &agency}

	token, expires, err := svc.IssueAccessToken(want)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	if expires.IsZero() {
		t.Fatal("expected expiry")
	}
	got, err := svc.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if got.UserID != want.UserID || got.OrganizationID != want.OrganizationID || got.Role != want.Role {
		t.Fatalf("unexpected principal: %+v", got)
	}
	if got.AgencyID == nil || *got.AgencyID != agency {
		t.Fatalf("unexpected agency: %v", got.AgencyID)
	}
}

func TestServiceRejectsUnknownRole(t *testing.T) {
	svc := newTestService(t, time.Now())
	if _, _, err := svc.IssueAccessToken(common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: "root"}); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestServiceParseAccessTokenRejectsAlgorithmMismatch(t *testing.T) {
	fixed := time.Now()
	svc := newTestService(t, fixed)

	built, err := jwt.NewBuilder().
		Subject(uuid.NewString()).
		Issuer(svc.issuer).
		Audience([]string{svc.audience}).
		IssuedAt(fixed).
		Expiration(fixed.Add(svc.accessTTL)).
		Claim(claimOrganization, uuid.NewString()).
		Claim(claimRole, "staff").
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS384, svc.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.ParseAccessToken(string(signed)); err == nil {
		t.Fatal("expected algorithm mismatch error")
	}
}

func TestServiceParseAccessTokenRejectsExpiredAndForeignKeys(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	svc := newTestService(t, issuedAt)
	p := common.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: common.RoleStaff}
	token, _, err := svc.IssueAccessToken(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.WithNow(time.Now)
	_, err = svc.ParseAccessToken(token)
	if err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if appErr, ok := err.(*common.AppError); !ok || appErr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401 app error, got %v", err)
	}

	other, err := NewService(Config{Secret: "another-secret"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fresh, _, _ := newTestService(t, time.Now()).IssueAccessToken(p)
	if _, err := other.ParseAccessToken(fresh); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestServiceRejectsThirdPartyWithoutAgency(t *testing.T) {
	fixed := time.Now()
	svc := newTestService(t, fixed)
	built, _ := jwt.NewBuilder().
		Subject(uuid.NewString()).
		Issuer(svc.issuer).
		Audience([]string{svc.audience}).
		IssuedAt(fixed).
		Expiration(fixed.Add(time.Minute)).
		Claim(claimOrganization, uuid.NewString()).
		Claim(claimRole, string(common.RoleThirdParty)).
		Build()
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS256, svc.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.ParseAccessToken(string(signed)); err == nil {
		t.Fatal("expected third-party token without agency to be rejected")
	}
}
