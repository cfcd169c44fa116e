// Package workflow implements the registration workflow and the record query
// service of the TrustMesh backend.
//
// Publish uploads a blob to the caller-selected storage backend and anchors the
// returned content identifier on the ledger for the owner:
//
//  1. ContentStore.Put. An upload failure is returned as is and the ledger
//     is never touched.
//  2. LedgerClient.Get decides between Register (no record yet) and Update.
//  3. Ledger calls failing with *interfaces.UnavailableError are retried with
//     exponential backoff up to the configured number of attempts.
//  4. A *interfaces.ReceiptTimeoutError is reconciled with a read. If the ledger
//     already holds the uploaded identifier the publish succeeded, otherwise
//     *interfaces.AnchorAmbiguousError is returned.
//  5. *interfaces.RejectedError is terminal.
//  6. On success the record is re-read and returned as the ledger reports it.
//
// The workflow holds no state across calls; concurrent publishes for the same
// owner race at the ledger, which applies last-write-wins.
package workflow
