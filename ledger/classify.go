package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/trustmesh-backend/interfaces"
)

// JSON-RPC error codes that signal a node-side problem rather than a refusal.
const (
	rpcCodeInternal      = -32603
	rpcCodeLimitExceeded = -32005
	rpcCodeRevert        = 3
)

// Node answers that mean "try again later" even though they carry an error code.
var transientMessages = []string{
	"header not found",
	"too many requests",
	"rate limit",
	"timeout",
	"timed out",
	"service unavailable",
}

// Node answers that refuse the transaction outright.
var refusalMessages = []string{
	"execution reverted",
	"insufficient funds",
	"nonce too low",
	"intrinsic gas too low",
	"replacement transaction underpriced",
	"gas required exceeds allowance",
}

// classifyError maps a go-ethereum error onto the ledger failure taxonomy.
// Anything not recognised as an explicit refusal is treated as unavailability.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &interfaces.UnavailableError{Op: op, Err: err}
	}

	if errors.Is(err, bind.ErrNoCode) {
		return &interfaces.RejectedError{Op: op, Reason: "no contract code at ledger address", Err: err}
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500,
			httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusRequestTimeout:
			return &interfaces.UnavailableError{Op: op, Err: err}
		default:
			return &interfaces.RejectedError{Op: op, Reason: httpErr.Status, Err: err}
		}
	}

	if isRevert(err) {
		return &interfaces.RejectedError{Op: op, Reason: revertReason(err), Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range refusalMessages {
		if strings.Contains(msg, m) {
			return &interfaces.RejectedError{Op: op, Reason: err.Error(), Err: err}
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if rpcErr.ErrorCode() == rpcCodeInternal || rpcErr.ErrorCode() == rpcCodeLimitExceeded {
			return &interfaces.UnavailableError{Op: op, Err: err}
		}
		for _, m := range transientMessages {
			if strings.Contains(msg, m) {
				return &interfaces.UnavailableError{Op: op, Err: err}
			}
		}
		return &interfaces.RejectedError{Op: op, Reason: err.Error(), Err: err}
	}

	return &interfaces.UnavailableError{Op: op, Err: err}
}

// isRevert reports whether err is an EVM revert.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcCodeRevert {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return fmt.Sprintf("%s (data: %v)", err.Error(), dataErr.ErrorData())
	}
	return err.Error()
}
