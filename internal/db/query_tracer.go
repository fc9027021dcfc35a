package db

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"

	"github.com/restitch/restitch/internal/logging"
)

const slowQueryThreshold = 250 * time.Millisecond

type queryStartKey struct{}

type queryTrace struct {
	span      *sentry.Span
	query     string
	startedAt time.Time
}

// queryTracer emits a db.query span for every statement issued inside a
// traced request and logs statements slower than threshold.
type queryTracer struct {
	logger    *slog.Logger
	threshold time.Duration
}

func newQueryTracer(logger *slog.Logger, threshold time.Duration) *queryTracer {
	return &queryTracer{logger: logger, threshold: threshold}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	trace := &queryTrace{
		query:     normalizeQuery(data.SQL),
		startedAt: time.Now(),
	}

	if sentry.SpanFromContext(ctx) != nil {
		span := sentry.StartSpan(
			ctx,
			"db.query",
			sentry.WithDescription(trace.query),
			sentry.WithSpanOrigin(sentry.SpanOriginManual),
		)
		span.SetData("db.system", "postgresql")
		if operation, table := describeQuery(trace.query); operation != "" {
			span.SetData("db.operation", operation)
			if table != "" {
				span.SetData("db.sql.table", table)
			}
		}
		trace.span = span
		ctx = span.Context()
	}

	return context.WithValue(ctx, queryStartKey{}, trace)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	trace, _ := ctx.Value(queryStartKey{}).(*queryTrace)
	if trace == nil {
		return
	}

	elapsed := time.Since(trace.startedAt)
	if t.threshold > 0 && elapsed >= t.threshold {
		logging.FromContext(ctx, t.logger).Warn("slow query",
			"query", trace.query,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	span := trace.span
	if span == nil {
		return
	}
	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}
	if rowsAffected := data.CommandTag.RowsAffected(); rowsAffected >= 0 {
		span.SetData("db.rows_affected", rowsAffected)
	}
	span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}
	const maxLen = 512
	if len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

// describeQuery returns the statement verb and, when it can be found, the
// first table the statement touches.
func describeQuery(query string) (string, string) {
	parts := strings.Fields(query)
	if len(parts) == 0 {
		return "", ""
	}
	operation := strings.ToUpper(parts[0])

	var marker string
	switch operation {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		return operation, tableName(parts, 1)
	default:
		return operation, ""
	}
	for i, part := range parts {
		if strings.EqualFold(part, marker) {
			return operation, tableName(parts, i+1)
		}
	}
	return operation, ""
}

func tableName(parts []string, i int) string {
	if i >= len(parts) {
		return ""
	}
	name := strings.Trim(parts[i], `"(;`)
	if strings.EqualFold(name, "ONLY") {
		return tableName(parts, i+1)
	}
	return strings.ToLower(name)
}
