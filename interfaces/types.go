// Package interfaces defines the core types and contracts of the TrustMesh
// registration backend. It provides the contract between the storage layer,
// the ledger client and the registration workflow without implementation details.
package interfaces

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is the 20-byte ledger address of a record owner.
// It is supplied by an external wallet or signer and never generated here.
type Identity [20]byte

// NewIdentityFromHex parses a hex address with or without the 0x prefix.
func NewIdentityFromHex(addr string) (Identity, error) {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		addr = "0x" + addr
	}
	if !common.IsHexAddress(addr) {
		return Identity{}, fmt.Errorf("invalid identity %q: expected 40 hex characters", addr)
	}
	return Identity(common.HexToAddress(addr)), nil
}

// String returns the EIP-55 checksummed hex form of the identity.
func (id Identity) String() string {
	return common.Address(id).Hex()
}

// Address returns the identity as a go-ethereum address.
func (id Identity) Address() common.Address {
	return common.Address(id)
}

// IsZero reports whether the identity is the zero address.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *Identity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewIdentityFromHex(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ContentIdentifier is the opaque identifier a storage backend assigns to
// uploaded content. Equality is string equality.
type ContentIdentifier string

// String returns the identifier as a string.
func (c ContentIdentifier) String() string {
	return string(c)
}

// MediaTypeJSON is the media type of metadata blobs submitted through the API.
const MediaTypeJSON = "application/json"

// ContentBlob is a payload to be uploaded together with its declared media type.
type ContentBlob struct {
	Data      []byte
	MediaType string
}

// IsJSON reports whether the blob declares a JSON media type.
func (b ContentBlob) IsJSON() bool {
	mt := strings.ToLower(strings.TrimSpace(b.MediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == MediaTypeJSON
}

// Record is the ledger entry anchoring a content identifier to its owner.
// Owner and Timestamp are always assigned by the ledger.
type Record struct {
	Owner             Identity          `json:"owner"`
	ContentIdentifier ContentIdentifier `json:"ipfsHash"`
	Timestamp         uint64            `json:"timestamp"`
}

// TxReceipt describes a mined anchoring transaction.
type TxReceipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// BackendSelector names the storage backend an upload goes to.
// Selection is always supplied by the caller.
type BackendSelector string

const (
	// Web3Backend uploads through the Web3.Storage HTTP API.
	Web3Backend BackendSelector = "web3"
	// PinataBackend pins through the Pinata API.
	PinataBackend BackendSelector = "pinata"
	// IPFSBackend adds content to a Kubo node.
	IPFSBackend BackendSelector = "ipfs"
	// S3Backend writes to an S3-compatible pinning gateway.
	S3Backend BackendSelector = "s3"
	// FileBackend stores content in a local directory.
	FileBackend BackendSelector = "file"
	// VaultBackend stores content in HashiCorp Vault KV v2.
	VaultBackend BackendSelector = "vault"
)

// KnownBackends lists all selectors this build can serve.
var KnownBackends = []BackendSelector{Web3Backend, PinataBackend, IPFSBackend, S3Backend, FileBackend, VaultBackend}

// ParseBackendSelector validates a selector string.
func ParseBackendSelector(s string) (BackendSelector, error) {
	sel := BackendSelector(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownBackends {
		if sel == known {
			return sel, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// String returns the selector name.
func (b BackendSelector) String() string {
	return string(b)
}
