// Package storage uploads metadata blobs to content-addressed storage providers.
//
// A ContentStore routes each upload to the backend the caller selected and
// reports every failure as *interfaces.UploadError. Backends never retry;
// the registration workflow decides what to do with a failure.
//
//   - web3: Web3.Storage upload API
//   - pinata: Pinata pinning API (pinJSONToIPFS / pinFileToIPFS)
//   - ipfs: a Kubo node API, content added as CIDv1
//   - s3: S3-compatible IPFS pinning gateways such as Filebase
//   - file: a local directory, for development
//   - vault: HashiCorp Vault KV v2, for private deployments
//
// # Storage URI Format
//
// Backends are configured with location URIs:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
//   - web3://api.web3.storage
//   - pinata://api.pinata.cloud
//   - ipfs://127.0.0.1:5001/?timeout=30s
//   - s3://bucket-name/prefix/?region=us-east-1&endpoint=s3.filebase.com
//   - file:///var/lib/trustmesh/
//   - vault://vault.example.com:8200/secret/trustmesh
//
// Web3.Storage and Pinata credentials come from configuration only; URIs
// carrying user info are refused for those schemes. "insecure=true" selects
// plain HTTP for web3, pinata and vault.
//
// A primary URI may be followed by mirror URIs separated by '|'. Mirrors get
// a best-effort copy and never affect the returned identifier.
//
// # Content Addressing
//
// Identifiers returned by providers are validated as CIDs before they reach
// the caller. Backends that do not assign identifiers themselves (s3, file,
// vault) address content by its CIDv1 with the raw codec and a sha2-256
// multihash, see ComputeCID.
package storage
