package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is matched by NotFoundError via errors.Is.
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnknownBackend is returned when a backend selector is not recognised
	// or not configured.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrMissingCredentials is returned when a backend has no usable credentials.
	ErrMissingCredentials = errors.New("missing storage backend credentials")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrPayloadRejected is returned when a backend refuses the payload because
	// of its size or format.
	ErrPayloadRejected = errors.New("payload rejected by storage backend")

	// ErrInvalidContentIdentifier is returned when a backend answers with
	// something that does not parse as a content identifier.
	ErrInvalidContentIdentifier = errors.New("invalid content identifier")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrMalformedRecord is returned when the ledger answers a read with a
	// value that does not decode into a Record.
	ErrMalformedRecord = errors.New("malformed ledger record")

	// ErrNoSigner is returned when no signing capability is available for an owner.
	ErrNoSigner = errors.New("no signer available for owner")
)

// UploadError reports that a storage backend rejected or could not accept content.
// No ledger interaction happens after an UploadError; retrying the whole
// publish is safe for the caller.
type UploadError struct {
	Backend BackendSelector
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.Backend, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// NotFoundError reports that the ledger holds no record for Owner.
type NotFoundError struct {
	Owner Identity
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record for %s", e.Owner)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// RejectedError reports that the ledger explicitly refused an operation,
// for example an authorization failure or a contract revert. Never retried.
type RejectedError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ledger rejected %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("ledger rejected %s: %v", e.Op, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// UnavailableError reports a network or node failure talking to the ledger.
// The operation did not take effect as far as the client can tell and is safe to retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ledger unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ReceiptTimeoutError reports that a transaction was submitted but its receipt
// was not observed in time. The outcome is ambiguous and must be reconciled
// with a read before any retry.
type ReceiptTimeoutError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("no receipt for %s transaction %s: %v", e.Op, e.TxHash, e.Err)
}

func (e *ReceiptTimeoutError) Unwrap() error { return e.Err }

// AnchorAmbiguousError is returned when a receipt timeout could not be
// reconciled: the ledger does not (yet) hold the expected identifier.
type AnchorAmbiguousError struct {
	Owner    Identity
	Expected ContentIdentifier
	Observed ContentIdentifier
	Err      error
}

func (e *AnchorAmbiguousError) Error() string {
	observed := string(e.Observed)
	if observed == "" {
		observed = "<none>"
	}
	return fmt.Sprintf("anchor for %s is ambiguous: expected %s, ledger holds %s: %v", e.Owner, e.Expected, observed, e.Err)
}

func (e *AnchorAmbiguousError) Unwrap() error { return e.Err }

// Error kinds surfaced to API callers.
const (
	KindUpload            = "upload"
	KindNotFound          = "not_found"
	KindLedgerRejected    = "ledger_rejected"
	KindLedgerUnavailable = "ledger_unavailable"
	KindReceiptTimeout    = "receipt_timeout"
	KindAnchorAmbiguous   = "anchor_ambiguous"
	KindBadRequest        = "bad_request"
	KindUnauthorized      = "unauthorized"
	KindInternal          = "internal"
)

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	var (
		uploadErr    *UploadError
		ambiguousErr *AnchorAmbiguousError
		timeoutErr   *ReceiptTimeoutError
		rejectedErr  *RejectedError
		unavailErr   *UnavailableError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &uploadErr):
		return KindUpload
	case errors.As(err, &ambiguousErr):
		return KindAnchorAmbiguous
	case errors.Is(err, ErrRecordNotFound):
		return KindNotFound
	case errors.As(err, &rejectedErr):
		return KindLedgerRejected
	case errors.As(err, &timeoutErr):
		return KindReceiptTimeout
	case errors.As(err, &unavailErr):
		return KindLedgerUnavailable
	default:
		return KindInternal
	}
}
