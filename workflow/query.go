package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLookupTimeout bounds a record lookup when none is configured.
const DefaultLookupTimeout = 15 * time.Second

// RecordQuery serves record lookups straight from the ledger, without caching.
type RecordQuery struct {
	ledger  interfaces.LedgerClient
	timeout time.Duration
	tracer  trace.Tracer
	log     *slog.Logger
}

// NewRecordQuery creates a query service bounding every lookup by timeout.
func NewRecordQuery(ledger interfaces.LedgerClient, timeout time.Duration, log *slog.Logger) *RecordQuery {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &RecordQuery{
		ledger:  ledger,
		timeout: timeout,
		tracer:  otel.Tracer(instrumentationName),
		log:     log,
	}
}

// Lookup returns the record of owner. A missing record is reported as
// *interfaces.NotFoundError.
func (q *RecordQuery) Lookup(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	ctx, span := q.tracer.Start(ctx, "workflow.Lookup",
		trace.WithAttributes(attribute.String("owner", owner.String())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	record, err := q.ledger.Get(ctx, owner)
	endSpan(span, ignoreNotFound(err))
	if err != nil {
		q.log.Debug("Record lookup failed",
			slog.String("owner", owner.String()),
			"err", err)
	}
	return record, err
}
