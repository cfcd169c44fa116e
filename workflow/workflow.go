package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/ruteri/trustmesh-backend/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ruteri/trustmesh-backend/workflow"

// Ledger operation names used in logs, spans and retry metrics.
const (
	opGet      = "get"
	opRegister = "register"
	opUpdate   = "update"
)

// Default retry policy for ledger calls.
const (
	DefaultRetryAttempts     = 3
	DefaultRetryInitialDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay     = 5 * time.Second
)

// WorkflowOpts configures a Workflow.
type WorkflowOpts struct {
	// RetryAttempts is the total number of attempts of a ledger call that
	// keeps failing as unavailable, the first one included.
	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Workflow uploads content and anchors its identifier on the ledger.
type Workflow struct {
	store  interfaces.ContentStore
	ledger interfaces.LedgerClient
	opts   WorkflowOpts
	tracer trace.Tracer
	log    *slog.Logger
}

// NewWorkflow creates a registration workflow over the given store and ledger.
func NewWorkflow(store interfaces.ContentStore, ledger interfaces.LedgerClient, opts WorkflowOpts, log *slog.Logger) *Workflow {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryInitialDelay <= 0 {
		opts.RetryInitialDelay = DefaultRetryInitialDelay
	}
	if opts.RetryMaxDelay < opts.RetryInitialDelay {
		opts.RetryMaxDelay = max(DefaultRetryMaxDelay, opts.RetryInitialDelay)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Workflow{
		store:  store,
		ledger: ledger,
		opts:   opts,
		tracer: opts.TracerProvider.Tracer(instrumentationName),
		log:    log,
	}
}

// Upload stores blob on the selected backend without anchoring it.
func (w *Workflow) Upload(ctx context.Context, blob interfaces.ContentBlob, backend interfaces.BackendSelector) (interfaces.ContentIdentifier, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Upload",
		trace.WithAttributes(attribute.String("backend", backend.String())))
	defer span.End()

	cid, err := w.store.Put(ctx, blob, backend)
	endSpan(span, err)
	return cid, err
}

// Publish uploads blob to backend and anchors the resulting identifier for
// owner. It returns the record as read back from the ledger.
func (w *Workflow) Publish(ctx context.Context, owner interfaces.Identity, blob interfaces.ContentBlob, backend interfaces.BackendSelector) (record interfaces.Record, err error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Publish",
		trace.WithAttributes(
			attribute.String("owner", owner.String()),
			attribute.String("backend", backend.String()),
		))
	start := time.Now()

	outcome := metrics.OutcomeSuccess
	defer func() {
		if err != nil {
			outcome = interfaces.ErrorKind(err)
		}
		metrics.RecordPublish(backend.String(), outcome)
		endSpan(span, err)
		span.End()
	}()

	cid, err := w.Upload(ctx, blob, backend)
	if err != nil {
		w.log.Warn("Publish aborted, upload failed",
			slog.String("owner", owner.String()),
			slog.String("backend", backend.String()),
			"err", err)
		return interfaces.Record{}, err
	}
	span.SetAttributes(attribute.String("cid", cid.String()))

	op, fn, err := w.chooseMutation(ctx, owner)
	if err != nil {
		return interfaces.Record{}, err
	}

	receipt, err := w.mutate(ctx, op, fn, owner, cid)

	var rejected *interfaces.RejectedError
	if op == opRegister && errors.As(err, &rejected) && !errors.Is(err, interfaces.ErrNoSigner) {
		// Another publish for the same owner may have registered in between.
		if _, getErr := w.get(ctx, owner); getErr == nil {
			w.log.Info("Owner registered concurrently, updating instead",
				slog.String("owner", owner.String()),
				slog.String("cid", cid.String()))
			op = opUpdate
			receipt, err = w.mutate(ctx, op, w.ledger.Update, owner, cid)
		}
	}

	var timeoutErr *interfaces.ReceiptTimeoutError
	if errors.As(err, &timeoutErr) {
		record, err = w.reconcile(ctx, owner, cid, timeoutErr)
		if err != nil {
			return interfaces.Record{}, err
		}
		outcome = metrics.OutcomeReconciled
		return record, nil
	}
	if err != nil {
		w.log.Warn("Anchoring failed",
			slog.String("op", op),
			slog.String("owner", owner.String()),
			slog.String("cid", cid.String()),
			"err", err)
		return interfaces.Record{}, err
	}

	record, err = w.get(ctx, owner)
	if err != nil {
		return interfaces.Record{}, err
	}
	if record.ContentIdentifier != cid {
		// A concurrent publish for the same owner landed after ours.
		w.log.Warn("Ledger holds a different identifier after anchoring",
			slog.String("owner", owner.String()),
			slog.String("cid", cid.String()),
			slog.String("ledger_cid", record.ContentIdentifier.String()))
	}

	var txHash string
	if receipt != nil {
		txHash = receipt.TxHash
	}
	w.log.Info("Published record",
		slog.String("op", op),
		slog.String("owner", owner.String()),
		slog.String("backend", backend.String()),
		slog.String("cid", cid.String()),
		slog.String("tx", txHash),
		slog.Uint64("timestamp", record.Timestamp),
		slog.Duration("duration", time.Since(start)))

	return record, nil
}

type mutation func(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error)

// chooseMutation picks Register for owners without a record and Update otherwise.
func (w *Workflow) chooseMutation(ctx context.Context, owner interfaces.Identity) (string, mutation, error) {
	_, err := w.get(ctx, owner)
	switch {
	case errors.Is(err, interfaces.ErrRecordNotFound):
		return opRegister, w.ledger.Register, nil
	case err != nil:
		return "", nil, err
	default:
		return opUpdate, w.ledger.Update, nil
	}
}

func (w *Workflow) mutate(ctx context.Context, op string, fn mutation, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	var receipt *interfaces.TxReceipt
	err := w.retry(ctx, op, func(ctx context.Context) error {
		var err error
		receipt, err = fn(ctx, owner, cid)
		return err
	})
	return receipt, err
}

// reconcile resolves a receipt timeout by reading the record back.
func (w *Workflow) reconcile(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier, timeoutErr *interfaces.ReceiptTimeoutError) (interfaces.Record, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.reconcile",
		trace.WithAttributes(attribute.String("tx", timeoutErr.TxHash)))
	defer span.End()

	record, err := w.get(ctx, owner)
	if err == nil && record.ContentIdentifier == cid {
		w.log.Info("Reconciled anchoring after receipt timeout",
			slog.String("owner", owner.String()),
			slog.String("cid", cid.String()),
			slog.String("tx", timeoutErr.TxHash))
		endSpan(span, nil)
		return record, nil
	}

	ambiguous := &interfaces.AnchorAmbiguousError{
		Owner:    owner,
		Expected: cid,
		Err:      timeoutErr,
	}
	if err == nil {
		ambiguous.Observed = record.ContentIdentifier
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		ambiguous.Err = errors.Join(timeoutErr, err)
	}

	w.log.Error("Anchoring outcome is ambiguous",
		slog.String("owner", owner.String()),
		slog.String("expected_cid", cid.String()),
		slog.String("observed_cid", ambiguous.Observed.String()),
		slog.String("tx", timeoutErr.TxHash),
		"err", err)
	endSpan(span, ambiguous)
	return interfaces.Record{}, ambiguous
}

func (w *Workflow) get(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	var record interfaces.Record
	err := w.retry(ctx, opGet, func(ctx context.Context) error {
		var err error
		record, err = w.ledger.Get(ctx, owner)
		return err
	})
	return record, err
}

// retry runs fn until it succeeds, fails with anything other than
// *interfaces.UnavailableError, or the attempt budget is spent.
func (w *Workflow) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := w.tracer.Start(ctx, "ledger."+op)
	defer span.End()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.opts.RetryInitialDelay
	exp.MaxInterval = w.opts.RetryMaxDelay
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(w.opts.RetryAttempts-1)), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var unavailable *interfaces.UnavailableError
		if errors.As(err, &unavailable) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, next time.Duration) {
		metrics.RecordLedgerRetry(op)
		w.log.Debug("Retrying ledger call",
			slog.String("op", op),
			slog.Int("attempt", attempts),
			slog.Duration("backoff", next),
			"err", err)
	})

	span.SetAttributes(attribute.Int("attempts", attempts))
	endSpan(span, ignoreNotFound(err))

	var unavailable *interfaces.UnavailableError
	switch {
	case errors.As(err, &unavailable) && attempts >= w.opts.RetryAttempts:
		return fmt.Errorf("ledger %s failed after %d attempts: %w", op, attempts, err)
	case err != nil && err == ctx.Err():
		// Cancelled while backing off.
		return &interfaces.UnavailableError{Op: op, Err: err}
	}
	return err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
