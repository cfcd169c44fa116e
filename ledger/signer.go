package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// SignerSource provides the signing capability for an owner. A ledger write
// on behalf of an owner is only possible if the source can sign for it.
type SignerSource interface {
	TransactOpts(ctx context.Context, owner interfaces.Identity) (*bind.TransactOpts, error)
}

// KeyedSigners is a SignerSource backed by in-process ECDSA keys.
type KeyedSigners struct {
	mu      sync.RWMutex
	chainID *big.Int
	keys    map[interfaces.Identity]*ecdsa.PrivateKey
}

// NewKeyedSigners creates a signer source from hex-encoded private keys
// (with or without 0x prefix).
func NewKeyedSigners(chainID *big.Int, hexKeys ...string) (*KeyedSigners, error) {
	s := &KeyedSigners{
		chainID: chainID,
		keys:    make(map[interfaces.Identity]*ecdsa.PrivateKey, len(hexKeys)),
	}

	for i, hexKey := range hexKeys {
		hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
		if hexKey == "" {
			continue
		}
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key at position %d: %w", i, err)
		}
		s.Add(key)
	}

	return s, nil
}

// Add registers a key and returns the identity it signs for.
func (s *KeyedSigners) Add(key *ecdsa.PrivateKey) interfaces.Identity {
	id := interfaces.Identity(crypto.PubkeyToAddress(key.PublicKey))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = key
	return id
}

// Identities returns the identities this source can sign for.
func (s *KeyedSigners) Identities() []interfaces.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]interfaces.Identity, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b interfaces.Identity) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

// TransactOpts returns transaction options signing as owner.
func (s *KeyedSigners) TransactOpts(ctx context.Context, owner interfaces.Identity) (*bind.TransactOpts, error) {
	s.mu.RLock()
	key, ok := s.keys[owner]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoSigner, owner)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("could not create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}
