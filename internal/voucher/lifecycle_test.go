package voucher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

func withTenant(ctx context.Context, id uuid.UUID) context.Context {
	return tenant.WithTenant(ctx, id.String())
}

func TestListMarksLapsedVouchersExpired(t *testing.T) {
	f := newFixture(t)
	f.seedVoucher(store.VoucherStatusIssued, fixedNow.AddDate(0, 0, -30), fixedNow.AddDate(0, 0, -1))

	views, page, err := f.svc.List(context.Background(), f.staff(), f.scope, ListParams{Validity: "EXPIRED", Code: " e-7 "})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, StatusIssued, views[0].Status)
	require.Equal(t, StatusExpired, views[0].EffectiveStatus)
	require.Equal(t, 1, page.TotalItems)
	require.Equal(t, ValidityExpired, f.db.lastFilter.Validity)
	require.Equal(t, "E-7", f.db.lastFilter.CodePrefix)
	require.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), f.db.lastFilter.Today)
}

func TestListRestrictsThirdPartyToAgency(t *testing.T) {
	f := newFixture(t)
	f.seedVoucher(store.VoucherStatusIssued, fixedNow, fixedNow.AddDate(0, 0, 7))
	foreign := f.seedVoucher(store.VoucherStatusIssued, fixedNow, fixedNow.AddDate(0, 0, 7))
	foreign.AgencyID = f.other.ID
	f.db.vouchers[foreign.ID] = foreign

	views, _, err := f.svc.List(context.Background(), f.thirdParty(f.agency.ID), f.scope, ListParams{AgencyID: f.other.ID.String()})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, f.agency.ID, *f.db.lastFilter.AgencyID)
}

func TestListRejectsBadFilters(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.List(context.Background(), f.staff(), f.scope, ListParams{Status: "lost", Validity: "maybe", FromDate: "yesterday"})
	e := appErr(t, err)
	require.Equal(t, CodeValidationFailed, e.Code)
	require.Len(t, e.Details.(map[string]any)["fields"].([]FieldError), 3)
}

func TestGetAndLookup(t *testing.T) {
	f := newFixture(t)
	issued, err := f.svc.Issue(context.Background(), f.staff(), f.scope, f.request())
	require.NoError(t, err)

	detail, err := f.svc.Lookup(context.Background(), f.staff(), f.scope, "  "+strings.ToLower(issued.Code)+" ")
	require.NoError(t, err)
	require.Equal(t, issued.ID, detail.ID)
	require.NotNil(t, detail.ReferralDetails)
	require.Equal(t, "Family of four, recently unemployed", detail.ReferralDetails.Notes)
	require.Nil(t, detail.Redemption)

	_, err = f.svc.Get(context.Background(), f.thirdParty(f.other.ID), f.scope, issued.ID)
	require.Equal(t, http.StatusNotFound, appErr(t, err).HTTPStatus)

	_, err = f.svc.Redeem(context.Background(), f.staff(), f.scope, issued.ID, RedeemRequest{CenterID: f.center.ID.String()})
	require.NoError(t, err)
	detail, err = f.svc.Get(context.Background(), f.staff(), f.scope, issued.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Redemption)
	require.Equal(t, StatusRedeemed, detail.EffectiveStatus)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	v := f.seedVoucher(store.VoucherStatusIssued, fixedNow, fixedNow.AddDate(0, 0, 7))

	_, err := f.svc.Invalidate(context.Background(), f.thirdParty(f.agency.ID), f.scope, v.ID)
	require.Equal(t, http.StatusForbidden, appErr(t, err).HTTPStatus)

	view, err := f.svc.Invalidate(context.Background(), f.staff(), f.scope, v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, view.Status)

	_, err = f.svc.Invalidate(context.Background(), f.staff(), f.scope, v.ID)
	require.Equal(t, http.StatusConflict, appErr(t, err).HTTPStatus)

	_, err = f.svc.Redeem(context.Background(), f.staff(), f.scope, v.ID, RedeemRequest{CenterID: f.center.ID.String()})
	require.Equal(t, CodeExpired, appErr(t, err).Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	kept, err := f.svc.Issue(context.Background(), f.staff(), f.scope, f.request())
	require.NoError(t, err)
	removed, err := f.svc.Issue(context.Background(), f.staff(), f.scope, f.request())
	require.NoError(t, err)

	_, err = f.svc.Redeem(context.Background(), f.staff(), f.scope, kept.ID, RedeemRequest{CenterID: f.center.ID.String()})
	require.NoError(t, err)
	_, err = f.svc.Delete(context.Background(), f.staff(), f.scope, kept.ID)
	require.Equal(t, http.StatusConflict, appErr(t, err).HTTPStatus)
	require.Contains(t, f.db.vouchers, kept.ID)

	_, err = f.svc.Delete(context.Background(), f.staff(), f.scope, removed.ID)
	require.NoError(t, err)
	require.NotContains(t, f.db.vouchers, removed.ID)
	require.NotContains(t, f.db.referrals, removed.ReferralDetailsID)

	_, err = f.svc.Delete(context.Background(), f.staff(), f.scope, removed.ID)
	require.Equal(t, http.StatusNotFound, appErr(t, err).HTTPStatus)
}

func TestClientEligibility(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.seedVoucher(store.VoucherStatusRedeemed, fixedNow.AddDate(0, -1, 0), fixedNow.AddDate(0, -1, 7))
	}
	result, err := f.svc.ClientEligibility(context.Background(), f.staff(), f.scope, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.RecentVouchers)
	require.True(t, result.JustificationRequired)
	require.Equal(t, "2023-12-18", result.WindowStart)

	_, err = f.svc.ClientEligibility(context.Background(), f.staff(), f.scope, uuid.New())
	require.Equal(t, http.StatusNotFound, appErr(t, err).HTTPStatus)
}

func TestListHandlerPagination(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc}
	req := httptest.NewRequest(http.MethodGet, "/api/vouchers?page=3&limit=500&status=issued", nil)
	ctx := common.WithPrincipal(req.Context(), f.staff())
	req = req.WithContext(withTenant(ctx, f.org.ID))
	rr := httptest.NewRecorder()
	h.List(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, common.MaxPerPage, f.db.lastFilter.Limit)
	require.Equal(t, 2*common.MaxPerPage, f.db.lastFilter.Offset)
	require.Equal(t, store.VoucherStatusIssued, f.db.lastFilter.Status)
}
