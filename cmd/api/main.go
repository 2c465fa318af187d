package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/support-hubs/internal/audit"
	"github.com/noah-isme/support-hubs/internal/auth"
	"github.com/noah-isme/support-hubs/internal/billing"
	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/config"
	"github.com/noah-isme/support-hubs/internal/directory"
	"github.com/noah-isme/support-hubs/internal/events"
	"github.com/noah-isme/support-hubs/internal/health"
	tenantmw "github.com/noah-isme/support-hubs/internal/http/middleware"
	"github.com/noah-isme/support-hubs/internal/notify"
	"github.com/noah-isme/support-hubs/internal/obs"
	"github.com/noah-isme/support-hubs/internal/ratelimit"
	"github.com/noah-isme/support-hubs/internal/reports"
	"github.com/noah-isme/support-hubs/internal/security"
	"github.com/noah-isme/support-hubs/internal/store"
	"github.com/noah-isme/support-hubs/internal/tenant"
	"github.com/noah-isme/support-hubs/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "support_hubs")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	voucherMetrics := obs.NewVoucherMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "support-hubs-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := store.Open(openCtx, cfg.DatabaseURL, obs.PGXTracer{})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer st.Close()

	redisClient := mustInitRedis(openCtx, cfg, metricsEnabled, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient, err := newTaskClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse queue redis url")
	}
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	authService, err := auth.NewService(auth.Config{
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: time.Duration(envInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		ClockSkew:      cfg.JWTClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authMiddleware := auth.Middleware{Service: authService}
	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, st.Queries())

	auditStore := store.AuditLogStore{Store: st}
	auditSvc := &audit.Service{
		Store:        auditStore,
		Enabled:      cfg.Audit.Enabled,
		SamplingRate: cfg.Audit.SamplingRate,
		Logger:       logger.With().Str("component", "audit").Logger(),
	}
	auditRecorder := audit.HTTPRecorder{
		Service: auditSvc,
		OnError: func(err error) { logger.Warn().Err(err).Msg("audit record failed") },
	}
	auditHandler := audit.Handler{Store: auditStore}

	bus := &events.Bus{
		Store: store.EventStore{Store: st},
		Notifiers: []events.Notifier{
			notify.IssuanceEmailNotifier{
				Queue:     taskClient,
				Enabled:   cfg.Notify.EmailEnabled,
				QueueName: envOrDefault("QUEUE_EMAIL_NAME", "email"),
				MaxRetry:  envInt("QUEUE_EMAIL_MAX_RETRY", 5),
			},
		},
	}

	validate := common.NewValidator()
	gate := billing.Gate{DefaultMonthlyLimit: cfg.Billing.DefaultMonthlyLimit, Location: cfg.Timezone}

	voucherSvc := &voucher.Service{
		Store: voucher.PgStore{Store: st},
		Codes: voucher.CodeGenerator{MaxAttempts: cfg.Voucher.CodeMaxAttempts},
		Eligibility: voucher.EligibilityPolicy{
			Window:    cfg.Voucher.EligibilityWindow,
			Days:      cfg.Voucher.EligibilityDays,
			Threshold: cfg.Voucher.EligibilityThreshold,
		},
		Quota:          gate,
		Validate:       validate,
		Events:         bus,
		Metrics:        voucherMetrics,
		Logger:         logger.With().Str("component", "voucher").Logger(),
		Location:       cfg.Timezone,
		NotesMaxLength: cfg.Voucher.NotesMaxLength,
	}
	voucherHandler := &voucher.Handler{Svc: voucherSvc, Audit: auditSvc}

	directoryHandler := &directory.Handler{Svc: &directory.Service{Store: directory.PgStore{Store: st}, Validate: validate}}
	billingHandler := &billing.Handler{Store: st, Gate: gate}
	reportsHandler := &reports.Handler{Svc: &reports.Service{
		Store:        reports.PgStore{Store: st},
		R:            redisClient,
		TTL:          cfg.Reports.CacheTTL,
		DefaultRange: envInt("REPORTS_DEFAULT_RANGE_DAYS", 30),
		Location:     cfg.Timezone,
		Logger:       logger.With().Str("component", "reports").Logger(),
	}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	issueLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:issue"},
		Config: ratelimit.Config{
			Key:    ratelimit.IssuerKey("issue"),
			Window: time.Minute,
			Max:    cfg.RateLimit.IssuePerMinute,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("issue rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(security.Headers{
		Enable:                envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS:            envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", false),
		NoStore:               true,
		TrustForwardedProto:   envBool("SECURE_TRUST_FORWARDED_PROTO", false),
	}.Middleware)
	r.Use(security.CORS(strings.Join(allowedOrigins(cfg), ",")))
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: st, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api", func(api chi.Router) {
		if globalLimit := mustGlobalLimiter(cfg, redisClient, logger); globalLimit != nil {
			api.Use(globalLimit)
		}
		api.Use(resolver.Middleware)
		api.Use(authMiddleware.RequireAuth)
		api.Use(tenantmw.RequireTenant)

		api.Route("/vouchers", func(v chi.Router) {
			v.With(issueLimit.Middleware, idem.Middleware).Post("/", voucherHandler.Issue)
			v.Get("/", voucherHandler.List)
			v.Get("/lookup", voucherHandler.Lookup)
			v.Route("/{id}", func(one chi.Router) {
				one.Get("/", voucherHandler.Get)
				one.Delete("/", voucherHandler.Delete)
				one.With(idem.Middleware).Post("/redeem", voucherHandler.Redeem)
				one.With(idem.Middleware).Post("/unfulfilled", voucherHandler.Unfulfilled)
				one.Post("/invalidate", voucherHandler.Invalidate)
			})
		})

		api.Route("/clients", func(c chi.Router) {
			c.With(auditRecorder.Middleware(audit.HTTPConfig{Action: audit.ActionClientCreate, ResourceType: "client", SkipFailures: true})).
				Post("/", directoryHandler.CreateClient)
			c.Get("/", directoryHandler.ListClients)
			c.Get("/{id}", directoryHandler.GetClient)
			c.Get("/{id}/eligibility", voucherHandler.Eligibility)
		})
		api.Route("/agencies", func(a chi.Router) {
			a.With(auditRecorder.Middleware(audit.HTTPConfig{Action: audit.ActionAgencyCreate, ResourceType: "agency", SkipFailures: true})).
				Post("/", directoryHandler.CreateAgency)
			a.Get("/", directoryHandler.ListAgencies)
		})
		api.Route("/centers", func(c chi.Router) {
			c.With(auditRecorder.Middleware(audit.HTTPConfig{Action: audit.ActionCenterCreate, ResourceType: "center", SkipFailures: true})).
				Post("/", directoryHandler.CreateCenter)
			c.Get("/", directoryHandler.ListCenters)
		})

		api.Get("/billing/usage", billingHandler.Usage)
		api.With(auth.RequireRole(common.RoleAdmin, common.RoleStaff)).Get("/reports/summary", reportsHandler.Summary)
		api.With(auth.RequireRole(common.RoleAdmin)).Get("/audit-logs", auditHandler.List)
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "support-hubs-api", otelhttp.WithFilter(func(req *http.Request) bool {
			return !strings.HasPrefix(req.URL.Path, "/health") && req.URL.Path != "/metrics"
		}))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func mustInitRedis(ctx context.Context, cfg *config.Config, metrics bool, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func newTaskClient(cfg *config.Config) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}

// mustGlobalLimiter returns nil when RATE_LIMIT_GLOBAL is "off".
func mustGlobalLimiter(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) func(http.Handler) http.Handler {
	if strings.EqualFold(cfg.RateLimit.Global, "off") {
		return nil
	}
	limiterStore, err := ratelimit.NewLimiterStore(rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise global limiter store")
	}
	mw, err := ratelimit.Global(limiterStore, cfg.RateLimit.Global)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise global limiter")
	}
	return mw
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
