package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// revertError mimics the JSON-RPC error a node returns for a reverted call.
type revertError struct{ reason string }

func (e *revertError) Error() string          { return "execution reverted: " + e.reason }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.reason }

// fakeChain is a bind.ContractBackend and bind.DeployBackend executing the
// TrustMesh contract in memory.
type fakeChain struct {
	mu       sync.Mutex
	abi      abi.ABI
	chainID  *big.Int
	records  map[common.Address]recordTuple
	receipts map[common.Hash]*types.Receipt
	nonces   map[common.Address]uint64
	block    uint64

	callErr      error
	sendErr      error
	dropReceipts bool
	noCode       bool
	// skipPreflight lets reverting transactions through gas estimation so
	// they are mined with a failed status.
	skipPreflight bool
}

func newFakeChain(chainID *big.Int) *fakeChain {
	parsed, err := ParsedABI()
	if err != nil {
		panic(err)
	}
	return &fakeChain{
		abi:      parsed,
		chainID:  chainID,
		records:  make(map[common.Address]recordTuple),
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
	}
}

// execute applies a register/update call and reports the revert reason, if any.
func (f *fakeChain) execute(from common.Address, data []byte, apply bool) error {
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return &revertError{reason: "unknown selector"}
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return &revertError{reason: "bad calldata"}
	}
	cid := args[0].(string)

	existing, exists := f.records[from]
	switch method.Name {
	case methodRegister:
		if exists && existing.IpfsHash != cid {
			return &revertError{reason: "already registered"}
		}
	case methodUpdate:
		if !exists {
			return &revertError{reason: "not registered"}
		}
	default:
		return &revertError{reason: "not a mutation"}
	}

	if apply && !(exists && method.Name == methodRegister) {
		f.records[from] = recordTuple{
			Owner:     from,
			IpfsHash:  cid,
			Timestamp: new(big.Int).SetUint64(1_700_000_000 + f.block),
		}
	}
	return nil
}

func (f *fakeChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	if f.noCode {
		return nil, nil
	}
	return []byte{0x60, 0x80}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.noCode {
		return nil, nil
	}

	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil || method.Name != methodGet {
		return nil, &revertError{reason: "unsupported call"}
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	record, ok := f.records[args[0].(common.Address)]
	if !ok {
		record = recordTuple{Timestamp: big.NewInt(0)}
	}
	return method.Outputs.Pack(record)
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(f.block)}, nil
}

func (f *fakeChain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return f.CodeAt(ctx, account, nil)
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return 0, f.sendErr
	}
	if f.skipPreflight {
		return 100_000, nil
	}
	if err := f.execute(call.From, call.Data, false); err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}

	from, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return err
	}

	f.block++
	f.nonces[from]++

	status := types.ReceiptStatusSuccessful
	if err := f.execute(from, tx.Data(), true); err != nil {
		status = types.ReceiptStatusFailed
	}

	if !f.dropReceipts {
		f.receipts[tx.Hash()] = &types.Receipt{
			Status:      status,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(f.block),
		}
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeChain) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeChain) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}
