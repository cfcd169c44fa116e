package ledger

import (
	"context"

	"github.com/ruteri/trustmesh-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockLedgerClient mocks the interfaces.LedgerClient interface
type MockLedgerClient struct {
	mock.Mock
}

// Register mocks the Register method
func (m *MockLedgerClient) Register(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	args := m.Called(ctx, owner, cid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.TxReceipt), args.Error(1)
}

// Update mocks the Update method
func (m *MockLedgerClient) Update(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	args := m.Called(ctx, owner, cid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.TxReceipt), args.Error(1)
}

// Get mocks the Get method
func (m *MockLedgerClient) Get(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(interfaces.Record), args.Error(1)
}
