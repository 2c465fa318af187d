package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Eligibility window modes.
const (
	WindowFixed    = "fixed"
	WindowCalendar = "calendar"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	JWTClockSkew       time.Duration
	CORSAllowedOrigins []string
	TenantHeader       string
	TenantRootDomain   string
	Timezone           *time.Location
	MigrateOnStart     bool

	Voucher   VoucherConfig
	Billing   BillingConfig
	Reports   ReportsConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Notify    NotifyConfig
	Queue     QueueConfig

	IdempotencyTTL time.Duration
}

// VoucherConfig tunes issuance rules.
type VoucherConfig struct {
	NotesMaxLength       int
	CodeMaxAttempts      int
	EligibilityWindow    string
	EligibilityDays      int
	EligibilityThreshold int
}

// BillingConfig tunes the subscription gate.
type BillingConfig struct {
	// DefaultMonthlyLimit applies to tenants without a plan. Zero means unlimited.
	DefaultMonthlyLimit int
}

// ReportsConfig controls reporting caches.
type ReportsConfig struct {
	CacheTTL time.Duration
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	IssuePerMinute int
	// Global is an ulule/limiter formatted rate such as "300-M".
	Global string
}

// AuditConfig toggles the audit trail.
type AuditConfig struct {
	Enabled      bool
	SamplingRate float64
}

// NotifyConfig controls outbound notifications.
type NotifyConfig struct {
	EmailEnabled bool
	EmailFrom    string
}

// QueueConfig controls the background worker.
type QueueConfig struct {
	Concurrency int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	loc, err := time.LoadLocation(valueOrDefault(k.String("APP_TIMEZONE"), "UTC"))
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "support-hubs"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "support-hubs-web"),
		JWTClockSkew:       parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TenantHeader:       valueOrDefault(k.String("TENANT_HEADER"), "X-Organization-ID"),
		TenantRootDomain:   strings.TrimSpace(k.String("TENANT_ROOT_DOMAIN")),
		Timezone:           loc,
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		Voucher: VoucherConfig{
			NotesMaxLength:       parseInt(k.String("VOUCHER_NOTES_MAX_LENGTH"), 400),
			CodeMaxAttempts:      parseInt(k.String("VOUCHER_CODE_MAX_ATTEMPTS"), 20),
			EligibilityWindow:    strings.ToLower(valueOrDefault(k.String("VOUCHER_ELIGIBILITY_WINDOW"), WindowFixed)),
			EligibilityDays:      parseInt(k.String("VOUCHER_ELIGIBILITY_DAYS"), 180),
			EligibilityThreshold: parseInt(k.String("VOUCHER_ELIGIBILITY_THRESHOLD"), 3),
		},
		Billing: BillingConfig{
			DefaultMonthlyLimit: parseInt(k.String("BILLING_DEFAULT_MONTHLY_LIMIT"), 0),
		},
		Reports: ReportsConfig{
			CacheTTL: parseDuration(k.String("REPORTS_CACHE_TTL"), "5m"),
		},
		RateLimit: RateLimitConfig{
			IssuePerMinute: parseInt(k.String("RATE_LIMIT_ISSUE_PER_MINUTE"), 30),
			Global:         valueOrDefault(k.String("RATE_LIMIT_GLOBAL"), "300-M"),
		},
		Audit: AuditConfig{
			Enabled:      parseBoolDefault(k.String("AUDIT_ENABLED"), true),
			SamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),
		},
		Notify: NotifyConfig{
			EmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
			EmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@supporthubs.local"),
		},
		Queue: QueueConfig{
			Concurrency: parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		},
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	switch cfg.Voucher.EligibilityWindow {
	case WindowFixed, WindowCalendar:
	default:
		return nil, fmt.Errorf("VOUCHER_ELIGIBILITY_WINDOW must be %q or %q", WindowFixed, WindowCalendar)
	}
	if cfg.Voucher.NotesMaxLength <= 0 {
		return nil, errors.New("VOUCHER_NOTES_MAX_LENGTH must be positive")
	}
	if cfg.Voucher.CodeMaxAttempts <= 0 {
		return nil, errors.New("VOUCHER_CODE_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
