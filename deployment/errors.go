package deployment

import (
	"errors"
	"fmt"

	"github.com/whispernft/whisper-deployments/chain/evm"
	"github.com/whispernft/whisper-deployments/chain/evm/provider"
)

// The kinds of deployment failures. Every error returned by Deploy matches exactly one of them
// with errors.Is.
var (
	// ErrConfig reports a problem with the local setup: a missing or invalid key, a missing
	// artifact or one that cannot be deployed, or a compiler mismatch.
	ErrConfig = errors.New("configuration error")
	// ErrNetwork reports a failure to talk to the node: dial and transport failures, timeouts and
	// cancellation.
	ErrNetwork = errors.New("network error")
	// ErrChainRejected reports that the node or the chain refused the deployment, either with a
	// JSON-RPC error response or with a reverted receipt.
	ErrChainRejected = errors.New("chain rejected the transaction")
)

var (
	errNoClient  = errors.New("chain has no client")
	errNoConfirm = errors.New("chain has no confirm function")
)

// Error is a deployment failure. Kind is one of ErrConfig, ErrNetwork and ErrChainRejected, Op
// names the step which failed and Err is the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError creates an Error of the given kind.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil when err is not a deployment error.
func KindOf(err error) error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}

	return nil
}

// classify wraps an error returned while talking to the chain. Reverted receipts and JSON-RPC
// error responses are rejections, anything else happened on the way to the node.
func classify(op string, err error) *Error {
	if errors.Is(err, provider.ErrTxReverted) || evm.IsRPCError(err) {
		return NewError(ErrChainRejected, op, err)
	}

	return NewError(ErrNetwork, op, err)
}
