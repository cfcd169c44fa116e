/*
Package api defines the HTTP surface of the TrustMesh registration backend.

The package holds the request and response types and the server
configuration; subpackage handlers implements the routes and a Go client
for them.

# Routes

	POST /upload-ipfs/{backend}          upload JSON metadata, returns {"ipfsHash": cid}
	POST /publish/{address}/{backend}    upload and anchor for address, returns the record
	GET  /record/{address}               read the record of address

Request bodies are JSON documents of at most 1 MiB. Errors are returned as
{"error": message, "kind": kind} where kind is one of upload, not_found,
ledger_rejected, ledger_unavailable, receipt_timeout, anchor_ambiguous,
bad_request or internal.
*/
package api
