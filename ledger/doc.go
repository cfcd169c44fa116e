// Package ledger anchors content identifiers against owner identities on the
// TrustMesh contract.
//
// The contract surface consumed is:
//
//	function register(string ipfsHash)
//	function update(string ipfsHash)
//	function get(address) view returns (tuple(address owner, string ipfsHash, uint256 timestamp))
//
// # Implementations
//
// OnchainLedgerClient talks to a deployed contract through go-ethereum's
// bind.BoundContract. Writes are signed with transaction options from a
// SignerSource and awaited with bind.WaitMined under a receipt timeout.
//
// MemoryLedger keeps records in memory and enforces the same rules as the
// contract. It backs tests and the "--ledger memory" development mode.
//
// MockLedgerClient is a testify mock for scripting failure sequences.
//
// # Failure Taxonomy
//
// Every error returned by a LedgerClient in this package is one of:
//
//   - *interfaces.NotFoundError: get found no record (zero owner or revert)
//   - *interfaces.RejectedError: the ledger refused (revert, failed receipt,
//     missing signer, 4xx RPC answer)
//   - *interfaces.UnavailableError: the node could not be reached or failed
//   - *interfaces.ReceiptTimeoutError: a transaction was sent but no receipt
//     was observed in time
//
// Clients never retry; the registration workflow owns the retry budget.
package ledger
