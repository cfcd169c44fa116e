package interfaces

import "context"

// LedgerClient is the narrow interface over the on-chain record registry.
//
// Mutating calls are authenticated as owner by an external signing mechanism;
// the ledger itself sets Record.Owner to the authenticated caller. Failures are
// reported as *RejectedError, *UnavailableError or *ReceiptTimeoutError so that
// callers can tell terminal refusals from retryable and ambiguous outcomes.
type LedgerClient interface {
	// Register creates the record for owner. Registering the identifier the
	// record already holds has no further effect.
	Register(ctx context.Context, owner Identity, cid ContentIdentifier) (*TxReceipt, error)

	// Update replaces the identifier and timestamp of an existing record.
	Update(ctx context.Context, owner Identity, cid ContentIdentifier) (*TxReceipt, error)

	// Get returns the record of owner, or *NotFoundError.
	Get(ctx context.Context, owner Identity) (Record, error)
}
