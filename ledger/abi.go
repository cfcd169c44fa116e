package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// TrustMeshABI is the contract surface the ledger client consumes.
// get returns a single tuple, matching the deployed TrustMesh contract.
const TrustMeshABI = `[
	{
		"type": "function",
		"name": "register",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "ipfsHash", "type": "string"}],
		"outputs": []
	},
	{
		"type": "function",
		"name": "update",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "ipfsHash", "type": "string"}],
		"outputs": []
	},
	{
		"type": "function",
		"name": "get",
		"stateMutability": "view",
		"inputs": [{"name": "", "type": "address"}],
		"outputs": [{
			"name": "",
			"type": "tuple",
			"components": [
				{"name": "owner", "type": "address"},
				{"name": "ipfsHash", "type": "string"},
				{"name": "timestamp", "type": "uint256"}
			]
		}]
	}
]`

const (
	methodRegister = "register"
	methodUpdate   = "update"
	methodGet      = "get"
)

// recordTuple mirrors the tuple returned by get.
type recordTuple struct {
	Owner     common.Address
	IpfsHash  string
	Timestamp *big.Int
}

// ParsedABI returns the parsed TrustMesh ABI.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(TrustMeshABI))
}
