package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// MemoryLedger provides an in-memory implementation of interfaces.LedgerClient
// with the TrustMesh contract's rules, for tests and local development
// without a blockchain connection.
//
//   - register succeeds once per owner; repeating it with the same identifier is a no-op
//   - update requires an existing record
//   - every write is a new block whose timestamp is strictly greater than the previous one
//   - only owners the SignerSource can sign for may write
type MemoryLedger struct {
	mutex   sync.RWMutex
	records map[interfaces.Identity]interfaces.Record
	signers SignerSource
	now     func() time.Time

	blockNumber   uint64
	lastTimestamp uint64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger(signers SignerSource) *MemoryLedger {
	return &MemoryLedger{
		records: make(map[interfaces.Identity]interfaces.Record),
		signers: signers,
		now:     time.Now,
	}
}

// SetClock replaces the clock block timestamps are derived from.
func (m *MemoryLedger) SetClock(now func() time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = now
}

// Register creates the record for owner.
func (m *MemoryLedger) Register(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	if err := m.authorize(ctx, methodRegister, owner); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.records[owner]; ok {
		if existing.ContentIdentifier != cid {
			return nil, &interfaces.RejectedError{Op: methodRegister, Reason: "execution reverted: already registered"}
		}
		return m.mine(methodRegister, owner, cid), nil
	}

	receipt := m.mine(methodRegister, owner, cid)
	m.records[owner] = interfaces.Record{
		Owner:             owner,
		ContentIdentifier: cid,
		Timestamp:         m.lastTimestamp,
	}
	return receipt, nil
}

// Update replaces the identifier and timestamp of owner's record.
func (m *MemoryLedger) Update(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	if err := m.authorize(ctx, methodUpdate, owner); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.records[owner]; !ok {
		return nil, &interfaces.RejectedError{Op: methodUpdate, Reason: "execution reverted: not registered"}
	}

	receipt := m.mine(methodUpdate, owner, cid)
	m.records[owner] = interfaces.Record{
		Owner:             owner,
		ContentIdentifier: cid,
		Timestamp:         m.lastTimestamp,
	}
	return receipt, nil
}

// Get returns owner's record or *interfaces.NotFoundError.
func (m *MemoryLedger) Get(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Record{}, &interfaces.UnavailableError{Op: methodGet, Err: err}
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	record, ok := m.records[owner]
	if !ok {
		return interfaces.Record{}, &interfaces.NotFoundError{Owner: owner}
	}
	return record, nil
}

func (m *MemoryLedger) authorize(ctx context.Context, op string, owner interfaces.Identity) error {
	if err := ctx.Err(); err != nil {
		return &interfaces.UnavailableError{Op: op, Err: err}
	}
	if m.signers == nil {
		return &interfaces.RejectedError{Op: op, Reason: "caller is not authenticated", Err: interfaces.ErrNoSigner}
	}
	if _, err := m.signers.TransactOpts(ctx, owner); err != nil {
		return &interfaces.RejectedError{Op: op, Reason: "caller is not authenticated", Err: err}
	}
	return nil
}

// mine advances the chain by one block. Must be called with the mutex held.
func (m *MemoryLedger) mine(method string, owner interfaces.Identity, cid interfaces.ContentIdentifier) *interfaces.TxReceipt {
	m.blockNumber++

	timestamp := uint64(m.now().Unix())
	if timestamp <= m.lastTimestamp {
		timestamp = m.lastTimestamp + 1
	}
	m.lastTimestamp = timestamp

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], m.blockNumber)
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%x", method, owner, cid, nonce)))

	return &interfaces.TxReceipt{
		TxHash:      common.Hash(hash).Hex(),
		BlockNumber: m.blockNumber,
	}
}
