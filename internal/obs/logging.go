package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/support-hubs/internal/common"
	"github.com/noah-isme/support-hubs/internal/tenant"
)

// NewLogger builds the process logger. format "console" (or "text") selects
// human-readable output; anything else writes JSON lines to stdout.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "support-hubs").Logger()
}

// RequestLogger writes one line per request once the response is complete.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware installs the per-request log field set read back by the logger.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewStatusRecorder(w)
		r = r.WithContext(WithLogFields(r.Context()))
		next.ServeHTTP(rec, r)

		ctx := r.Context()
		status := rec.Status()
		fields := logFieldsFrom(ctx)

		evt := l.levelFor(status).
			Str("method", r.Method).
			Str("route", routeLabel(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.BytesWritten()).
			Str("request_id", middleware.GetReqID(ctx))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		org, ok := tenant.FromContext(ctx)
		if !ok {
			org = fields["tenant"]
		}
		withNonEmpty(evt, "tenant", org)
		if withNonEmpty(evt, "user_id", fields["user_id"]) {
			withNonEmpty(evt, "role", fields["role"])
		}
		withNonEmpty(evt, "remote_addr", common.ClientIP(r))
		withNonEmpty(evt, "user_agent", r.UserAgent())
		evt.Msg("http_request")
	})
}

func withNonEmpty(evt *zerolog.Event, key, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	evt.Str(key, value)
	return true
}

func (l RequestLogger) levelFor(status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return l.Logger.Error()
	case status >= http.StatusBadRequest:
		return l.Logger.Warn()
	default:
		return l.Logger.Info()
	}
}
