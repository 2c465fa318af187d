package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/support-hubs/internal/tenant"
)

type ctxSpanKey struct{}

const maxStatementLen = 300

// PGXTracer implements pgx.QueryTracer to create spans for database interactions.
// Spans carry the organization bound to the request so tenant transactions can
// be told apart.
type PGXTracer struct{}

// TraceQueryStart starts a span for the SQL statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := sqlOperation(data.SQL)
	ctx, span := otel.Tracer("github.com/noah-isme/support-hubs/store").Start(ctx, "pgx "+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	)
	if org, ok := tenant.FromContext(ctx); ok {
		span.SetAttributes(attribute.String("app.organization_id", org))
	}
	return context.WithValue(ctx, ctxSpanKey{}, span)
}

// TraceQueryEnd ends the span. pgx.ErrNoRows is recorded as a normal outcome.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(ctxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()
	switch {
	case data.Err == nil:
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	case errors.Is(data.Err, pgx.ErrNoRows):
		span.SetAttributes(attribute.Int64("db.rows_affected", 0))
	default:
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, "query failed")
	}
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
