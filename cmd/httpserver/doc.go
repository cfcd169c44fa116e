// Package main (cmd/httpserver) runs the TrustMesh registration backend.
//
// The server uploads metadata to the configured content-addressed storage
// backends and anchors the resulting identifiers in the TrustMesh contract.
// Service settings come from the environment (see package config); operational
// settings such as logging, tracing and the metrics listener come from flags.
//
// Example usage against a local Hardhat node:
//
//	CONTRACT_ADDRESS=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	LEDGER_PRIVATE_KEYS=0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80 \
//	STORAGE_BACKENDS='ipfs://127.0.0.1:5001|file:///var/lib/trustmesh' \
//	trustmesh-backend --log-debug
//
// Development without a chain:
//
//	STORAGE_BACKENDS=file:///tmp/trustmesh trustmesh-backend --ledger memory
//
// The server shuts down gracefully on SIGINT or SIGTERM.
package main
