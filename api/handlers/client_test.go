package handlers

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/ruteri/trustmesh-backend/ledger"
	"github.com/ruteri/trustmesh-backend/storage"
	"github.com/ruteri/trustmesh-backend/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat development account #0.
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newBackend(t *testing.T, publishToken string) (*httptest.Server, interfaces.Identity) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signers, err := ledger.NewKeyedSigners(big.NewInt(31337), devKey)
	require.NoError(t, err)
	identities := signers.Identities()
	require.Len(t, identities, 1)

	fileBackend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	store := storage.NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
		interfaces.FileBackend: fileBackend,
	}, storage.ContentStoreOpts{UploadTimeout: time.Second, MaxPayloadSize: 1 << 20}, logger)

	memLedger := ledger.NewMemoryLedger(signers)
	wf := workflow.NewWorkflow(store, memLedger, workflow.WorkflowOpts{
		RetryAttempts:     3,
		RetryInitialDelay: time.Millisecond,
	}, logger)

	mux := chi.NewRouter()
	NewHandler(wf, workflow.NewRecordQuery(memLedger, time.Second, logger), logger).
		RequirePublishToken(publishToken).
		RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, identities[0]
}

func TestClient_EndToEnd(t *testing.T) {
	srv, owner := newBackend(t, "")
	client := NewClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	_, err := client.Record(ctx, owner)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	metadata := []byte(`{"name":"node-1","endpoint":"https://node-1.example"}`)
	want, err := storage.ComputeCID(metadata)
	require.NoError(t, err)

	cid, err := client.Upload(ctx, interfaces.FileBackend, metadata)
	require.NoError(t, err)
	assert.Equal(t, want, cid)

	published, err := client.Publish(ctx, owner, interfaces.FileBackend, metadata)
	require.NoError(t, err)
	assert.Equal(t, owner, published.Owner)
	assert.Equal(t, want, published.ContentIdentifier)

	record, err := client.Record(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, published, record)
}

func TestClient_Errors(t *testing.T) {
	srv, owner := newBackend(t, "")
	client := NewClient(srv.URL, nil)
	ctx := context.Background()

	_, err := client.Upload(ctx, interfaces.PinataBackend, []byte(`{}`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, interfaces.KindUpload, apiErr.Kind)

	_, err = client.Upload(ctx, interfaces.FileBackend, []byte(`not json`))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, interfaces.KindBadRequest, apiErr.Kind)

	// Only the configured key may anchor records.
	stranger, err := interfaces.NewIdentityFromHex(testAddress)
	require.NoError(t, err)
	require.NotEqual(t, owner, stranger)
	_, err = client.Publish(ctx, stranger, interfaces.FileBackend, []byte(`{}`))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, interfaces.KindLedgerRejected, apiErr.Kind)
	assert.NotErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestClient_Unreachable(t *testing.T) {
	srv, owner := newBackend(t, "")
	srv.Close()

	_, err := NewClient(srv.URL, nil).Record(context.Background(), owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not reach backend")
}

func TestClient_PublishToken(t *testing.T) {
	srv, owner := newBackend(t, "s3cret")
	ctx := context.Background()

	_, err := NewClient(srv.URL, srv.Client()).Publish(ctx, owner, interfaces.FileBackend, []byte(`{}`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, interfaces.KindUnauthorized, apiErr.Kind)

	_, err = NewClient(srv.URL, srv.Client()).Record(ctx, owner)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	record, err := NewClient(srv.URL, srv.Client()).WithToken("s3cret").Publish(ctx, owner, interfaces.FileBackend, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, owner, record.Owner)
}
