package voucher

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// fakeDB is an in-memory Querier. InTenant snapshots the mutable tables and
// restores them when fn fails, mimicking a rolled back transaction.
type fakeDB struct {
	mu sync.Mutex

	orgs        map[uuid.UUID]store.Organization
	plans       map[string]store.SubscriptionPlan
	clients     map[uuid.UUID]store.Client
	agencies    map[uuid.UUID]store.Agency
	centers     map[uuid.UUID]store.Center
	referrals   map[uuid.UUID]store.ReferralDetails
	vouchers    map[uuid.UUID]store.Voucher
	redemptions map[uuid.UUID]store.Redemption
	counters    map[uuid.UUID]int
	// foreignCodes belong to other tenants: invisible to existence checks
	// but rejected by the global unique constraint.
	foreignCodes map[string]bool

	now        func() time.Time
	lastFilter store.VoucherFilter
	scopes     []tenant.Scope
}

func newFakeDB(now func() time.Time) *fakeDB {
	return &fakeDB{
		orgs:         map[uuid.UUID]store.Organization{},
		plans:        map[string]store.SubscriptionPlan{},
		clients:      map[uuid.UUID]store.Client{},
		agencies:     map[uuid.UUID]store.Agency{},
		centers:      map[uuid.UUID]store.Center{},
		referrals:    map[uuid.UUID]store.ReferralDetails{},
		vouchers:     map[uuid.UUID]store.Voucher{},
		redemptions:  map[uuid.UUID]store.Redemption{},
		counters:     map[uuid.UUID]int{},
		foreignCodes: map[string]bool{},
		now:          now,
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeDB) InTenant(_ context.Context, scope tenant.Scope, fn func(q Querier) error) error {
	if scope.IsZero() {
		return tenant.ErrTenantMissing
	}
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	referrals, vouchers := cloneMap(f.referrals), cloneMap(f.vouchers)
	redemptions, counters := cloneMap(f.redemptions), cloneMap(f.counters)
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.referrals, f.vouchers, f.redemptions, f.counters = referrals, vouchers, redemptions, counters
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeDB) GetOrganization(_ context.Context, id uuid.UUID) (store.Organization, error) {
	if org, ok := f.orgs[id]; ok {
		return org, nil
	}
	return store.Organization{}, store.ErrNotFound
}

func (f *fakeDB) GetSubscriptionPlan(_ context.Context, id string) (store.SubscriptionPlan, error) {
	if p, ok := f.plans[id]; ok {
		return p, nil
	}
	return store.SubscriptionPlan{}, store.ErrNotFound
}

func (f *fakeDB) CountVouchersCreatedBetween(_ context.Context, orgID uuid.UUID, from, to time.Time) (int, error) {
	n := 0
	for _, v := range f.vouchers {
		if v.OrganizationID == orgID && !v.CreatedAt.Before(from) && v.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) GetClient(_ context.Context, orgID, id uuid.UUID) (store.Client, error) {
	if c, ok := f.clients[id]; ok && c.OrganizationID == orgID {
		return c, nil
	}
	return store.Client{}, store.ErrNotFound
}

func (f *fakeDB) GetAgency(_ context.Context, orgID, id uuid.UUID) (store.Agency, error) {
	if a, ok := f.agencies[id]; ok && a.OrganizationID == orgID {
		return a, nil
	}
	return store.Agency{}, store.ErrNotFound
}

func (f *fakeDB) GetCenter(_ context.Context, orgID, id uuid.UUID) (store.Center, error) {
	if c, ok := f.centers[id]; ok && c.OrganizationID == orgID {
		return c, nil
	}
	return store.Center{}, store.ErrNotFound
}

func (f *fakeDB) CountClientVouchersSince(_ context.Context, orgID, clientID uuid.UUID, since time.Time) (int, error) {
	n := 0
	for _, v := range f.vouchers {
		if v.OrganizationID == orgID && v.ClientID == clientID && !v.IssueDate.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) InsertReferralDetails(_ context.Context, arg store.InsertReferralDetailsParams) (store.ReferralDetails, error) {
	r := store.ReferralDetails{
		ID:                      uuid.New(),
		OrganizationID:          arg.OrganizationID,
		Notes:                   arg.Notes,
		IncomeSource:            arg.IncomeSource,
		ReferralReasons:         arg.ReferralReasons,
		EthnicGroup:             arg.EthnicGroup,
		HouseholdByAge:          arg.HouseholdByAge,
		ContactConsent:          arg.ContactConsent,
		DietaryConsent:          arg.DietaryConsent,
		DietaryRequirements:     arg.DietaryRequirements,
		MoreThan3VouchersReason: arg.MoreThan3VouchersReason,
		ParcelNotes:             arg.ParcelNotes,
		CreatedAt:               f.now(),
	}
	f.referrals[r.ID] = r
	return r, nil
}

func (f *fakeDB) GetReferralDetails(_ context.Context, orgID, id uuid.UUID) (store.ReferralDetails, error) {
	if r, ok := f.referrals[id]; ok && r.OrganizationID == orgID {
		return r, nil
	}
	return store.ReferralDetails{}, store.ErrNotFound
}

func (f *fakeDB) DeleteReferralDetails(_ context.Context, orgID, id uuid.UUID) error {
	if r, ok := f.referrals[id]; ok && r.OrganizationID == orgID {
		delete(f.referrals, id)
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeDB) VoucherCodeExists(_ context.Context, code string) (bool, error) {
	for _, v := range f.vouchers {
		if v.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) NextVoucherSequence(_ context.Context, orgID uuid.UUID, prefix string) (int, error) {
	if _, ok := f.counters[orgID]; !ok {
		n := 0
		for _, v := range f.vouchers {
			if v.OrganizationID == orgID && strings.HasPrefix(v.Code, prefix) {
				n++
			}
		}
		f.counters[orgID] = n
	}
	f.counters[orgID]++
	return f.counters[orgID], nil
}

func (f *fakeDB) InsertVoucher(_ context.Context, arg store.InsertVoucherParams) (store.Voucher, bool, error) {
	if f.foreignCodes[arg.Code] {
		return store.Voucher{}, false, nil
	}
	for _, v := range f.vouchers {
		if v.Code == arg.Code {
			return store.Voucher{}, false, nil
		}
	}
	now := f.now()
	v := store.Voucher{
		ID:                uuid.New(),
		OrganizationID:    arg.OrganizationID,
		Code:              arg.Code,
		Status:            store.VoucherStatusIssued,
		IssueDate:         arg.IssueDate,
		ExpiryDate:        arg.ExpiryDate,
		ClientID:          arg.ClientID,
		AgencyID:          arg.AgencyID,
		FoodBankCenterID:  arg.FoodBankCenterID,
		ReferralDetailsID: arg.ReferralDetailsID,
		IssuedByID:        arg.IssuedByID,
		WeightKg:          arg.WeightKg,
		CollectionNotes:   arg.CollectionNotes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.vouchers[v.ID] = v
	return v, true, nil
}

func (f *fakeDB) row(v store.Voucher) store.VoucherRow {
	c := f.clients[v.ClientID]
	return store.VoucherRow{
		Voucher:         v,
		ClientFirstName: c.FirstName,
		ClientLastName:  c.LastName,
		AgencyName:      f.agencies[v.AgencyID].Name,
	}
}

func (f *fakeDB) GetVoucher(_ context.Context, orgID, id uuid.UUID) (store.VoucherRow, error) {
	if v, ok := f.vouchers[id]; ok && v.OrganizationID == orgID {
		return f.row(v), nil
	}
	return store.VoucherRow{}, store.ErrNotFound
}

func (f *fakeDB) GetVoucherByCode(_ context.Context, orgID uuid.UUID, code string) (store.VoucherRow, error) {
	for _, v := range f.vouchers {
		if v.OrganizationID == orgID && strings.EqualFold(v.Code, code) {
			return f.row(v), nil
		}
	}
	return store.VoucherRow{}, store.ErrNotFound
}

func (f *fakeDB) GetVoucherForUpdate(_ context.Context, orgID, id uuid.UUID) (store.Voucher, error) {
	if v, ok := f.vouchers[id]; ok && v.OrganizationID == orgID {
		return v, nil
	}
	return store.Voucher{}, store.ErrNotFound
}

func (f *fakeDB) ListVouchers(_ context.Context, filter store.VoucherFilter) ([]store.VoucherRow, int, error) {
	f.lastFilter = filter
	var out []store.VoucherRow
	for _, v := range f.vouchers {
		if v.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.AgencyID != nil && v.AgencyID != *filter.AgencyID {
			continue
		}
		out = append(out, f.row(v))
	}
	return out, len(out), nil
}

func (f *fakeDB) UpdateVoucherStatus(_ context.Context, arg store.UpdateVoucherStatusParams) error {
	v, ok := f.vouchers[arg.ID]
	if !ok || v.OrganizationID != arg.OrganizationID {
		return store.ErrNotFound
	}
	v.Status = arg.Status
	if arg.WeightKg.Valid {
		v.WeightKg = arg.WeightKg
	}
	if arg.CollectionNotes != nil {
		v.CollectionNotes = arg.CollectionNotes
	}
	f.vouchers[arg.ID] = v
	return nil
}

func (f *fakeDB) DeleteVoucher(_ context.Context, orgID, id uuid.UUID) error {
	if v, ok := f.vouchers[id]; ok && v.OrganizationID == orgID {
		delete(f.vouchers, id)
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeDB) InsertRedemption(_ context.Context, arg store.Redemption) (store.Redemption, error) {
	if _, ok := f.redemptions[arg.VoucherID]; ok {
		return store.Redemption{}, &store.UniqueViolationError{Constraint: "redemptions_voucher_key"}
	}
	arg.ID = uuid.New()
	arg.RedeemedAt = f.now()
	f.redemptions[arg.VoucherID] = arg
	return arg, nil
}

func (f *fakeDB) GetRedemptionByVoucher(_ context.Context, orgID, voucherID uuid.UUID) (store.Redemption, error) {
	if r, ok := f.redemptions[voucherID]; ok && r.OrganizationID == orgID {
		return r, nil
	}
	return store.Redemption{}, store.ErrNotFound
}

type recordingEvents struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (r *recordingEvents) Emit(_ context.Context, scope tenant.Scope, topic string, aggregateID uuid.UUID, payload any) (store.DomainEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	if r.err != nil {
		return store.DomainEvent{}, r.err
	}
	raw, _ := json.Marshal(payload)
	return store.DomainEvent{ID: uuid.New(), OrganizationID: scope.OrganizationID, Topic: topic, AggregateID: aggregateID, Payload: raw}, nil
}

type countingMetrics struct {
	issued     int
	collisions int
	outcomes   []string
}

func (m *countingMetrics) VoucherIssued(string) { m.issued++ }
func (m *countingMetrics) CodeCollision() { m.collisions++ }
func (m *countingMetrics) VoucherOutcome(status string) { m.outcomes = append(m.outcomes, status) }

// repeatReader yields each byte value in turn for blocks of eleven bytes.
type repeatReader struct {
	values []byte
	pos    int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		block := r.pos / 11
		if block >= len(r.values) {
			block = len(r.values) - 1
		}
		p[i] = r.values[block]
		r.pos++
	}
	return len(p), nil
}
