package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// Default bounds for ledger calls.
const (
	DefaultCallTimeout    = 15 * time.Second
	DefaultReceiptTimeout = 60 * time.Second
)

// OnchainLedgerOpts bounds the calls made by OnchainLedgerClient.
type OnchainLedgerOpts struct {
	// CallTimeout bounds a single RPC interaction (call, estimate, send).
	CallTimeout time.Duration
	// ReceiptTimeout bounds waiting for a sent transaction to be mined.
	ReceiptTimeout time.Duration
}

// OnchainLedgerClient implements interfaces.LedgerClient against a deployed
// TrustMesh contract.
type OnchainLedgerClient struct {
	contract *bind.BoundContract
	backend  bind.DeployBackend
	address  common.Address
	signers  SignerSource
	opts     OnchainLedgerOpts
	log      *slog.Logger
}

// NewOnchainLedgerClient creates a new client for the TrustMesh contract at the
// specified address. It requires a ContractBackend for calls and transactions
// and a DeployBackend for awaiting receipts; an *ethclient.Client is both.
func NewOnchainLedgerClient(client bind.ContractBackend, backend bind.DeployBackend, address common.Address, signers SignerSource, opts OnchainLedgerOpts, log *slog.Logger) (*OnchainLedgerClient, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("could not parse ledger ABI: %w", err)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &OnchainLedgerClient{
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		backend:  backend,
		address:  address,
		signers:  signers,
		opts:     opts,
		log:      log,
	}, nil
}

// Address returns the contract address.
func (c *OnchainLedgerClient) Address() common.Address {
	return c.address
}

// Register creates the record for owner.
func (c *OnchainLedgerClient) Register(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	return c.transact(ctx, methodRegister, owner, cid)
}

// Update replaces the identifier of owner's existing record.
func (c *OnchainLedgerClient) Update(ctx context.Context, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	return c.transact(ctx, methodUpdate, owner, cid)
}

// Get reads owner's record. A reverted call or an empty record is reported
// as *interfaces.NotFoundError.
func (c *OnchainLedgerClient) Get(ctx context.Context, owner interfaces.Identity) (interfaces.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: callCtx}, &out, methodGet, owner.Address())
	if err != nil {
		if isRevert(err) {
			return interfaces.Record{}, &interfaces.NotFoundError{Owner: owner}
		}
		return interfaces.Record{}, classifyError(methodGet, err)
	}

	if len(out) != 1 {
		return interfaces.Record{}, malformed(fmt.Sprintf("get returned %d values", len(out)))
	}
	tuple := *abi.ConvertType(out[0], new(recordTuple)).(*recordTuple)

	if interfaces.Identity(tuple.Owner).IsZero() {
		return interfaces.Record{}, &interfaces.NotFoundError{Owner: owner}
	}

	var timestamp uint64
	if tuple.Timestamp != nil {
		if !tuple.Timestamp.IsUint64() {
			return interfaces.Record{}, malformed(fmt.Sprintf("timestamp %s out of range", tuple.Timestamp))
		}
		timestamp = tuple.Timestamp.Uint64()
	}

	return interfaces.Record{
		Owner:             interfaces.Identity(tuple.Owner),
		ContentIdentifier: interfaces.ContentIdentifier(tuple.IpfsHash),
		Timestamp:         timestamp,
	}, nil
}

func malformed(reason string) error {
	return &interfaces.RejectedError{Op: methodGet, Reason: reason, Err: interfaces.ErrMalformedRecord}
}

func (c *OnchainLedgerClient) transact(ctx context.Context, method string, owner interfaces.Identity, cid interfaces.ContentIdentifier) (*interfaces.TxReceipt, error) {
	auth, err := c.signers.TransactOpts(ctx, owner)
	if err != nil {
		return nil, &interfaces.RejectedError{Op: method, Reason: "caller is not authenticated", Err: err}
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, c.opts.CallTimeout)
	opts := *auth
	opts.Context = sendCtx
	tx, err := c.contract.Transact(&opts, method, cid.String())
	cancelSend()
	if err != nil {
		c.log.Warn("Ledger transaction not sent",
			slog.String("method", method),
			slog.String("owner", owner.String()),
			"err", err)
		return nil, classifyError(method, err)
	}

	c.log.Debug("Ledger transaction sent",
		slog.String("method", method),
		slog.String("owner", owner.String()),
		slog.String("tx", tx.Hash().Hex()))

	waitCtx, cancelWait := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancelWait()

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, &interfaces.ReceiptTimeoutError{Op: method, TxHash: tx.Hash().Hex(), Err: err}
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &interfaces.RejectedError{
			Op:     method,
			Reason: fmt.Sprintf("transaction %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber),
		}
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	return &interfaces.TxReceipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: block,
	}, nil
}
