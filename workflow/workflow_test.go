package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/ruteri/trustmesh-backend/ledger"
	"github.com/ruteri/trustmesh-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/atomic"
)

var ownerA = mustIdentity("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func mustIdentity(s string) interfaces.Identity {
	id, err := interfaces.NewIdentityFromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonBlob(s string) interfaces.ContentBlob {
	return interfaces.ContentBlob{Data: []byte(s), MediaType: interfaces.MediaTypeJSON}
}

// stubStore answers uploads with a fixed sequence of identifiers or an error.
type stubStore struct {
	mu    sync.Mutex
	ids   []interfaces.ContentIdentifier
	err   error
	calls int
}

func (s *stubStore) Put(_ context.Context, _ interfaces.ContentBlob, backend interfaces.BackendSelector) (interfaces.ContentIdentifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", &interfaces.UploadError{Backend: backend, Err: s.err}
	}
	id := s.ids[0]
	if len(s.ids) > 1 {
		s.ids = s.ids[1:]
	}
	return id, nil
}

// anySigner authorizes every owner.
type anySigner struct{}

func (anySigner) TransactOpts(_ context.Context, owner interfaces.Identity) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: owner.Address()}, nil
}

func fastOpts() WorkflowOpts {
	return WorkflowOpts{
		RetryAttempts:     3,
		RetryInitialDelay: time.Millisecond,
		RetryMaxDelay:     2 * time.Millisecond,
	}
}

func frozenLedger() *ledger.MemoryLedger {
	l := ledger.NewMemoryLedger(anySigner{})
	fixed := time.Unix(1700000000, 0)
	l.SetClock(func() time.Time { return fixed })
	return l
}

func TestPublish_RegisterThenUpdate(t *testing.T) {
	store := &stubStore{ids: []interfaces.ContentIdentifier{"bafy123", "bafy456"}}
	l := frozenLedger()
	wf := NewWorkflow(store, l, fastOpts(), testLogger())
	query := NewRecordQuery(l, time.Second, testLogger())
	ctx := context.Background()

	_, err := query.Lookup(ctx, ownerA)
	require.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	first, err := wf.Publish(ctx, ownerA, jsonBlob(`{"x":1}`), interfaces.Web3Backend)
	require.NoError(t, err)
	assert.Equal(t, ownerA, first.Owner)
	assert.Equal(t, interfaces.ContentIdentifier("bafy123"), first.ContentIdentifier)

	looked, err := query.Lookup(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, first, looked)

	second, err := wf.Publish(ctx, ownerA, jsonBlob(`{"x":2}`), interfaces.Web3Backend)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContentIdentifier("bafy456"), second.ContentIdentifier)

	looked, err = query.Lookup(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContentIdentifier("bafy456"), looked.ContentIdentifier)
	assert.Greater(t, looked.Timestamp, first.Timestamp)
}

func TestPublish_UploadFailureLeavesLedgerUntouched(t *testing.T) {
	l := frozenLedger()
	ctx := context.Background()

	ok := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, l, fastOpts(), testLogger())
	before, err := ok.Publish(ctx, ownerA, jsonBlob(`{"x":1}`), interfaces.Web3Backend)
	require.NoError(t, err)

	failing := &stubStore{err: interfaces.ErrBackendUnavailable}
	mockLedger := new(ledger.MockLedgerClient)
	wf := NewWorkflow(failing, mockLedger, fastOpts(), testLogger())

	_, err = wf.Publish(ctx, ownerA, jsonBlob(`{"x":2}`), interfaces.PinataBackend)
	var uploadErr *interfaces.UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, interfaces.PinataBackend, uploadErr.Backend)
	assert.Equal(t, interfaces.KindUpload, interfaces.ErrorKind(err))
	mockLedger.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	mockLedger.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
	mockLedger.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	after, err := NewRecordQuery(l, time.Second, testLogger()).Lookup(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPublish_RegisterUnavailableExhaustsRetries(t *testing.T) {
	m := new(ledger.MockLedgerClient)
	m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, &interfaces.NotFoundError{Owner: ownerA})
	m.On("Register", mock.Anything, ownerA, interfaces.ContentIdentifier("bafy123")).
		Return(nil, &interfaces.UnavailableError{Op: "register", Err: errors.New("connection refused")}).Times(3)

	wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, m, fastOpts(), testLogger())

	_, err := wf.Publish(context.Background(), ownerA, jsonBlob(`{"x":1}`), interfaces.Web3Backend)
	var unavailable *interfaces.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, interfaces.KindLedgerUnavailable, interfaces.ErrorKind(err))
	m.AssertNumberOfCalls(t, "Register", 3)

	_, err = NewRecordQuery(m, time.Second, testLogger()).Lookup(context.Background(), ownerA)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	record := interfaces.Record{Owner: ownerA, ContentIdentifier: "bafy123", Timestamp: 42}
	unavailable := &interfaces.UnavailableError{Op: "get", Err: errors.New("502 Bad Gateway")}

	m := new(ledger.MockLedgerClient)
	m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, unavailable).Once()
	m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, &interfaces.NotFoundError{Owner: ownerA}).Once()
	m.On("Register", mock.Anything, ownerA, record.ContentIdentifier).
		Return(nil, &interfaces.UnavailableError{Op: "register", Err: errors.New("timeout")}).Once()
	m.On("Register", mock.Anything, ownerA, record.ContentIdentifier).
		Return(&interfaces.TxReceipt{TxHash: "0x01", BlockNumber: 7}, nil).Once()
	m.On("Get", mock.Anything, ownerA).Return(record, nil).Once()

	wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, m, fastOpts(), testLogger())

	got, err := wf.Publish(context.Background(), ownerA, jsonBlob(`{"x":1}`), interfaces.Web3Backend)
	require.NoError(t, err)
	assert.Equal(t, record, got)
	m.AssertNumberOfCalls(t, "Get", 3)
	m.AssertNumberOfCalls(t, "Register", 2)
	m.AssertExpectations(t)
}

func TestPublish_RejectedIsNotRetried(t *testing.T) {
	existing := interfaces.Record{Owner: ownerA, ContentIdentifier: "bafyold", Timestamp: 1}

	m := new(ledger.MockLedgerClient)
	m.On("Get", mock.Anything, ownerA).Return(existing, nil)
	m.On("Update", mock.Anything, ownerA, interfaces.ContentIdentifier("bafy123")).
		Return(nil, &interfaces.RejectedError{Op: "update", Reason: "execution reverted"})

	wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, m, fastOpts(), testLogger())

	_, err := wf.Publish(context.Background(), ownerA, jsonBlob(`{"x":1}`), interfaces.Web3Backend)
	var rejected *interfaces.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, interfaces.KindLedgerRejected, interfaces.ErrorKind(err))
	m.AssertNumberOfCalls(t, "Update", 1)
	m.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

// barrierLedger holds the first n Get calls until all of them arrived, so
// concurrent publishers all observe the ledger before anyone writes.
type barrierLedger struct {
	*ledger.MemoryLedger
	pending *atomic.Int32
	arrived sync.WaitGroup
}

func newBarrierLedger(n int) *barrierLedger {
	l := &barrierLedger{MemoryLedger: frozenLedger(), pending: atomic.NewInt32(int32(n))}
	l.arrived.Add(n)
	return l
}

func (l *barrierLedger) Get(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	if l.pending.Dec() >= 0 {
		l.arrived.Done()
		l.arrived.Wait()
	}
	return l.MemoryLedger.Get(ctx, owner)
}

func TestPublish_ConcurrentFirstPublishesBothLand(t *testing.T) {
	l := newBarrierLedger(2)
	cids := []interfaces.ContentIdentifier{"bafyA", "bafyB"}

	var wg sync.WaitGroup
	errs := make([]error, len(cids))
	for i, cid := range cids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{cid}}, l, fastOpts(), testLogger())
			_, errs[i] = wf.Publish(context.Background(), ownerA, jsonBlob(`{}`), interfaces.Web3Backend)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "publisher %d", i)
	}

	record, err := l.MemoryLedger.Get(context.Background(), ownerA)
	require.NoError(t, err)
	assert.Contains(t, cids, record.ContentIdentifier)
}

func TestPublish_RegisterRejectedWithoutRecord(t *testing.T) {
	m := new(ledger.MockLedgerClient)
	m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, &interfaces.NotFoundError{Owner: ownerA})
	m.On("Register", mock.Anything, ownerA, interfaces.ContentIdentifier("bafy123")).
		Return(nil, &interfaces.RejectedError{Op: "register", Reason: "execution reverted"})

	wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, m, fastOpts(), testLogger())

	_, err := wf.Publish(context.Background(), ownerA, jsonBlob(`{}`), interfaces.Web3Backend)
	assert.Equal(t, interfaces.KindLedgerRejected, interfaces.ErrorKind(err))
	m.AssertNumberOfCalls(t, "Get", 2)
	m.AssertNumberOfCalls(t, "Register", 1)
	m.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublish_ReceiptTimeout(t *testing.T) {
	timeout := &interfaces.ReceiptTimeoutError{Op: "register", TxHash: "0xabc", Err: context.DeadlineExceeded}

	tests := []struct {
		name         string
		afterTimeout func(m *ledger.MockLedgerClient)
		wantErr      bool
		wantObserved interfaces.ContentIdentifier
	}{
		{
			name: "reconciled",
			afterTimeout: func(m *ledger.MockLedgerClient) {
				m.On("Get", mock.Anything, ownerA).
					Return(interfaces.Record{Owner: ownerA, ContentIdentifier: "bafy123", Timestamp: 9}, nil)
			},
		},
		{
			name: "not mined",
			afterTimeout: func(m *ledger.MockLedgerClient) {
				m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, &interfaces.NotFoundError{Owner: ownerA})
			},
			wantErr: true,
		},
		{
			name: "other identifier",
			afterTimeout: func(m *ledger.MockLedgerClient) {
				m.On("Get", mock.Anything, ownerA).
					Return(interfaces.Record{Owner: ownerA, ContentIdentifier: "bafyother", Timestamp: 9}, nil)
			},
			wantErr:      true,
			wantObserved: "bafyother",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(ledger.MockLedgerClient)
			m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, &interfaces.NotFoundError{Owner: ownerA}).Once()
			m.On("Register", mock.Anything, ownerA, interfaces.ContentIdentifier("bafy123")).Return(nil, timeout).Once()
			tt.afterTimeout(m)

			wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, m, fastOpts(), testLogger())
			got, err := wf.Publish(context.Background(), ownerA, jsonBlob(`{}`), interfaces.Web3Backend)

			m.AssertNumberOfCalls(t, "Register", 1)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, interfaces.ContentIdentifier("bafy123"), got.ContentIdentifier)
				return
			}

			var ambiguous *interfaces.AnchorAmbiguousError
			require.ErrorAs(t, err, &ambiguous)
			assert.Equal(t, interfaces.ContentIdentifier("bafy123"), ambiguous.Expected)
			assert.Equal(t, tt.wantObserved, ambiguous.Observed)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, interfaces.KindAnchorAmbiguous, interfaces.ErrorKind(err))
		})
	}
}

func TestPublish_CancelledWhileBackingOff(t *testing.T) {
	m := new(ledger.MockLedgerClient)
	m.On("Get", mock.Anything, ownerA).Return(interfaces.Record{}, &interfaces.UnavailableError{Op: "get", Err: errors.New("down")})

	opts := fastOpts()
	opts.RetryInitialDelay = 10 * time.Second
	opts.RetryMaxDelay = 10 * time.Second
	wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, m, opts, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := wf.Publish(ctx, ownerA, jsonBlob(`{}`), interfaces.Web3Backend)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, interfaces.KindLedgerUnavailable, interfaces.ErrorKind(err))
	m.AssertNumberOfCalls(t, "Get", 1)
}

func TestPublish_FileBackend(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	store := storage.NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
		interfaces.FileBackend: backend,
	}, storage.ContentStoreOpts{UploadTimeout: time.Second}, testLogger())

	wf := NewWorkflow(store, frozenLedger(), fastOpts(), testLogger())

	blob := jsonBlob(`{"name":"trustmesh"}`)
	want, err := storage.ComputeCID(blob.Data)
	require.NoError(t, err)

	record, err := wf.Publish(context.Background(), ownerA, blob, interfaces.FileBackend)
	require.NoError(t, err)
	assert.Equal(t, want, record.ContentIdentifier)

	_, err = wf.Publish(context.Background(), ownerA, blob, interfaces.Web3Backend)
	assert.ErrorIs(t, err, interfaces.ErrUnknownBackend)
}

func TestPublish_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	opts := fastOpts()
	opts.TracerProvider = provider
	wf := NewWorkflow(&stubStore{ids: []interfaces.ContentIdentifier{"bafy123"}}, frozenLedger(), opts, testLogger())

	_, err := wf.Publish(context.Background(), ownerA, jsonBlob(`{}`), interfaces.Web3Backend)
	require.NoError(t, err)

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.ElementsMatch(t, []string{
		"workflow.Upload",
		"ledger.get",
		"ledger.register",
		"ledger.get",
		"workflow.Publish",
	}, names)
}
