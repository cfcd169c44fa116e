package storage

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data. Backends that
// do not assign identifiers themselves address content by this value.
func ComputeCID(data []byte) (interfaces.ContentIdentifier, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return interfaces.ContentIdentifier(cid.NewCidV1(cid.Raw, sum).String()), nil
}

// ParseCID validates an identifier returned by a provider. Both CIDv0 (Qm…)
// and CIDv1 strings are accepted; the canonical input string is returned.
func ParseCID(raw string) (interfaces.ContentIdentifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", interfaces.ErrInvalidContentIdentifier)
	}
	if _, err := cid.Decode(raw); err != nil {
		return "", fmt.Errorf("%w: %q: %v", interfaces.ErrInvalidContentIdentifier, raw, err)
	}
	return interfaces.ContentIdentifier(raw), nil
}
