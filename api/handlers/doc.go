/*
Package handlers implements the HTTP routes of the TrustMesh registration
backend and a Go client for them.

Handler validates path parameters and request bodies, delegates to an
api.Publisher and an api.RecordLookup and maps workflow errors onto status
codes:

	upload (unknown backend)   400
	upload (other)             500
	not_found                  404
	ledger_rejected            422
	ledger_unavailable         503
	receipt_timeout            504
	anchor_ambiguous           504
	internal                   500

POST /publish signs with whatever keys the server was given and does not
know who is calling. It is an operator endpoint: put it behind
RequirePublishToken (PUBLISH_TOKEN) or a trusted network, otherwise anyone
who reaches the server can write records for those identities. Requests
without the token get 401 with kind "unauthorized".

Client is the counterpart used by cmd/record_client. It decodes error
bodies into *APIError, which matches interfaces.ErrRecordNotFound for 404
answers.
*/
package handlers
