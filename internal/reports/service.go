package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
	"github.com/noah-isme/support-hubs/internal/voucher"
)

// ErrInvalidRange is returned when from is after to.
var ErrInvalidRange = errors.New("reports: invalid range")

// Querier defines the aggregate queries the summary runs.
type Querier interface {
	VoucherStatusCounts(ctx context.Context, orgID uuid.UUID, from, to, today time.Time) ([]store.StatusCount, error)
	RedeemedWeight(ctx context.Context, orgID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	AgencyCounts(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]store.AgencyCount, error)
}

// TxRunner runs fn inside a tenant transaction.
type TxRunner interface {
	InTenant(ctx context.Context, scope tenant.Scope, fn func(q Querier) error) error
}

// PgStore adapts store.Store to TxRunner.
type PgStore struct {
	Store *store.Store
}

// InTenant implements TxRunner.
func (p PgStore) InTenant(ctx context.Context, scope tenant.Scope, fn func(q Querier) error) error {
	return p.Store.WithTenantTx(ctx, scope, func(q *store.Queries) error {
		return fn(q)
	})
}

// AgencySummary is one row of the per-agency breakdown.
type AgencySummary struct {
	AgencyID   uuid.UUID `json:"agencyId"`
	AgencyName string    `json:"agencyName"`
	Issued     int       `json:"issued"`
	Redeemed   int       `json:"redeemed"`
}

// Summary aggregates vouchers issued within [From, To].
type Summary struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	Total          int             `json:"total"`
	ByStatus       map[string]int  `json:"byStatus"`
	RedeemedWeight decimal.Decimal `json:"redeemedWeightKg"`
	Agencies       []AgencySummary `json:"agencies"`
}

// Service provides cached access to voucher reporting aggregates.
type Service struct {
	Store        TxRunner
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Location     *time.Location
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) today() time.Time {
	return voucher.CivilDate(s.now(), s.Location)
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Range resolves the requested bounds. Empty values default to the last DefaultRange days.
func (s *Service) Range(fromRaw, toRaw string) (from, to time.Time, err error) {
	to = s.today()
	if strings.TrimSpace(toRaw) != "" {
		if to, err = voucher.ParseDate(toRaw, s.Location); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
		}
	}
	days := s.DefaultRange
	if days <= 0 {
		days = 30
	}
	from = to.AddDate(0, 0, -days)
	if strings.TrimSpace(fromRaw) != "" {
		if from, err = voucher.ParseDate(fromRaw, s.Location); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must not be after to", ErrInvalidRange)
	}
	return from, to, nil
}

// Summary returns the aggregate for [from, to]. Effective statuses are computed as of today,
// so the cache key includes it.
func (s *Service) Summary(ctx context.Context, scope tenant.Scope, from, to time.Time) (Summary, error) {
	if s == nil || s.Store == nil {
		return Summary{}, fmt.Errorf("reports service not configured")
	}
	if scope.IsZero() {
		return Summary{}, tenant.ErrTenantMissing
	}
	today := s.today()
	key := tenant.PrefixKey(scope, cacheKey("rp", "summary", voucher.FormatDate(from), voucher.FormatDate(to), voucher.FormatDate(today)))
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	var (
		statuses []store.StatusCount
		weight   decimal.Decimal
		agencies []store.AgencyCount
	)
	err := s.Store.InTenant(ctx, scope, func(q Querier) error {
		var qerr error
		if statuses, qerr = q.VoucherStatusCounts(ctx, scope.OrganizationID, from, to, today); qerr != nil {
			return fmt.Errorf("status counts: %w", qerr)
		}
		if weight, qerr = q.RedeemedWeight(ctx, scope.OrganizationID, from, to); qerr != nil {
			return fmt.Errorf("redeemed weight: %w", qerr)
		}
		if agencies, qerr = q.AgencyCounts(ctx, scope.OrganizationID, from, to); qerr != nil {
			return fmt.Errorf("agency counts: %w", qerr)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		From:           voucher.FormatDate(from),
		To:             voucher.FormatDate(to),
		ByStatus:       map[string]int{},
		RedeemedWeight: weight.Round(2),
		Agencies:       make([]AgencySummary, 0, len(agencies)),
	}
	for _, st := range []voucher.Status{voucher.StatusIssued, voucher.StatusRedeemed, voucher.StatusUnfulfilled, voucher.StatusExpired} {
		out.ByStatus[string(st)] = 0
	}
	for _, sc := range statuses {
		out.ByStatus[sc.Status] += sc.Count
		out.Total += sc.Count
	}
	for _, ac := range agencies {
		out.Agencies = append(out.Agencies, AgencySummary(ac))
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (Summary, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Summary{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var out Summary
	if err := json.Unmarshal(data, &out); err != nil {
		return Summary{}, false
	}
	return out, true
}

func (s *Service) store(ctx context.Context, key string, value Summary) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.R.Set(ctx, key, data, s.TTL).Err(); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("reports cache write failed")
	}
}
