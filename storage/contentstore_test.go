package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestContentStore_Put(t *testing.T) {
	blob := interfaces.ContentBlob{Data: []byte(`{"a":1}`), MediaType: interfaces.MediaTypeJSON}

	t.Run("routes to selected backend", func(t *testing.T) {
		web3 := &MockStorageBackend{name: "web3"}
		pinata := &MockStorageBackend{name: "pinata"}
		pinata.On("Put", mock.Anything, blob).Return(interfaces.ContentIdentifier("bafkreipinata"), nil)

		store := NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
			interfaces.Web3Backend:   web3,
			interfaces.PinataBackend: pinata,
		}, ContentStoreOpts{}, testLogger())

		id, err := store.Put(context.Background(), blob, interfaces.PinataBackend)
		require.NoError(t, err)
		assert.Equal(t, interfaces.ContentIdentifier("bafkreipinata"), id)

		web3.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		pinata.AssertExpectations(t)
	})

	t.Run("unknown selector", func(t *testing.T) {
		store := NewContentStore(nil, ContentStoreOpts{}, testLogger())

		_, err := store.Put(context.Background(), blob, interfaces.VaultBackend)

		var uploadErr *interfaces.UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.Equal(t, interfaces.VaultBackend, uploadErr.Backend)
		assert.ErrorIs(t, err, interfaces.ErrUnknownBackend)
	})

	t.Run("backend failure is wrapped", func(t *testing.T) {
		backend := &MockStorageBackend{name: "web3"}
		backend.On("Put", mock.Anything, blob).Return(interfaces.ContentIdentifier(""), interfaces.ErrMissingCredentials)

		store := NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
			interfaces.Web3Backend: backend,
		}, ContentStoreOpts{}, testLogger())

		_, err := store.Put(context.Background(), blob, interfaces.Web3Backend)

		var uploadErr *interfaces.UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.ErrorIs(t, err, interfaces.ErrMissingCredentials)
		assert.Equal(t, interfaces.KindUpload, interfaces.ErrorKind(err))
		backend.AssertNumberOfCalls(t, "Put", 1)
	})

	t.Run("oversized and empty payloads are rejected locally", func(t *testing.T) {
		backend := &MockStorageBackend{name: "file"}
		store := NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
			interfaces.FileBackend: backend,
		}, ContentStoreOpts{MaxPayloadSize: 4}, testLogger())

		_, err := store.Put(context.Background(), blob, interfaces.FileBackend)
		assert.ErrorIs(t, err, interfaces.ErrPayloadRejected)

		_, err = store.Put(context.Background(), interfaces.ContentBlob{}, interfaces.FileBackend)
		assert.ErrorIs(t, err, interfaces.ErrPayloadRejected)

		backend.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	})

	t.Run("upload timeout reaches the backend", func(t *testing.T) {
		backend := &MockStorageBackend{name: "ipfs"}
		backend.On("Put", mock.Anything, blob).
			Run(func(args mock.Arguments) {
				ctx := args.Get(0).(context.Context)
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
			}).
			Return(interfaces.ContentIdentifier(""), errors.New("deadline exceeded"))

		store := NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
			interfaces.IPFSBackend: backend,
		}, ContentStoreOpts{UploadTimeout: time.Second}, testLogger())

		_, err := store.Put(context.Background(), blob, interfaces.IPFSBackend)
		assert.Error(t, err)
		backend.AssertExpectations(t)
	})
}

func TestContentStore_Backends(t *testing.T) {
	store := NewContentStore(map[interfaces.BackendSelector]interfaces.StorageBackend{
		interfaces.Web3Backend:   &MockStorageBackend{name: "web3"},
		interfaces.FileBackend:   &MockStorageBackend{name: "file"},
		interfaces.PinataBackend: &MockStorageBackend{name: "pinata"},
	}, ContentStoreOpts{}, testLogger())

	assert.Equal(t, []interfaces.BackendSelector{
		interfaces.FileBackend, interfaces.PinataBackend, interfaces.Web3Backend,
	}, store.Backends())
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, testLogger())
	require.NoError(t, err)

	data := []byte(`{"hello":"world"}`)
	id, err := backend.Put(context.Background(), interfaces.ContentBlob{Data: data, MediaType: interfaces.MediaTypeJSON})
	require.NoError(t, err)

	expected, err := ComputeCID(data)
	require.NoError(t, err)
	assert.Equal(t, expected, id)

	// Idempotent: same content, same identifier.
	again, err := backend.Put(context.Background(), interfaces.ContentBlob{Data: data})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	stored, err := backend.Fetch(id)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.True(t, backend.Available(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backend.Put(ctx, interfaces.ContentBlob{Data: data})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCID(t *testing.T) {
	id, err := ComputeCID([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContentIdentifier(testCID), id)

	parsed, err := ParseCID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	assert.NoError(t, err, "CIDv0 is accepted")

	_, err = ParseCID("not-a-cid")
	assert.ErrorIs(t, err, interfaces.ErrInvalidContentIdentifier)
}
