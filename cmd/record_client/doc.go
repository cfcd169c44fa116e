// Package main (cmd/record_client) is a command line client for the
// TrustMesh registration backend.
//
//	record_client upload --backend pinata --metadata node.json
//	record_client publish --owner 0xf39F...2266 --backend web3 < node.json
//	record_client record --owner 0xf39F...2266
package main
