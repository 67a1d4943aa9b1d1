package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/whispernft/whisper-deployments/chain/evm"
)

// ErrTxReverted is returned by confirm functions when the transaction was mined with a failed
// status.
var ErrTxReverted = errors.New("transaction reverted")

// ConfirmFunctor is an interface for creating a confirmation function for transactions on the
// EVM chain.
type ConfirmFunctor interface {
	// Generate returns a function that confirms transactions on the EVM chain.
	Generate(
		ctx context.Context, chainName string, client evm.OnchainClient, from common.Address,
	) (evm.ConfirmFunc, error)
}

// ConfirmFuncGeth returns a ConfirmFunctor that uses the Geth client to confirm transactions.
//
// A zero waitMinedTimeout waits until the receipt is found or the context passed to the confirm
// function is cancelled.
func ConfirmFuncGeth(waitMinedTimeout time.Duration, opts ...func(*confirmFuncGeth)) ConfirmFunctor {
	cf := &confirmFuncGeth{
		tickInterval:     1 * time.Second, // the same value we have in bind.WaitMined hardcoded in "go-ethereum"
		waitMinedTimeout: waitMinedTimeout,
	}
	for _, o := range opts {
		o(cf)
	}

	return cf
}

func WithTickInterval(interval time.Duration) func(*confirmFuncGeth) {
	return func(o *confirmFuncGeth) {
		o.tickInterval = interval
	}
}

// confirmFuncGeth implements the ConfirmFunctor interface which generates a confirmation function
// for transactions using the Geth client.
type confirmFuncGeth struct {
	tickInterval     time.Duration
	waitMinedTimeout time.Duration
}

// Generate returns a function that confirms transactions using the Geth client.
func (g *confirmFuncGeth) Generate(
	_ context.Context, chainName string, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	return func(ctx context.Context, tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for chain %s", chainName)
		}

		waitCtx, cancel := g.waitContext(ctx)
		defer cancel()

		receipt, err := WaitMinedWithInterval(waitCtx, g.tickInterval, client, tx.Hash())
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for chain %s: %w",
				tx.Hash().Hex(), chainName, err,
			)
		}

		return checkReceipt(waitCtx, chainName, client, from, tx, receipt)
	}, nil
}

func (g *confirmFuncGeth) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.waitMinedTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, g.waitMinedTimeout)
}

// checkReceipt returns the block number of a successful receipt, or an error wrapping
// ErrTxReverted with the decoded revert reason when the transaction failed.
func checkReceipt(
	ctx context.Context,
	chainName string,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (uint64, error) {
	if receipt == nil {
		return 0, fmt.Errorf("receipt was nil for tx %s for chain %s", tx.Hash().Hex(), chainName)
	}

	blockNum := receipt.BlockNumber.Uint64()

	if receipt.Status == types.ReceiptStatusFailed {
		reason, err := getErrorReasonFromTx(ctx, caller, from, tx, receipt)
		if err == nil && reason != "" {
			return blockNum, fmt.Errorf("tx %s %w for chain %s: %s",
				tx.Hash().Hex(), ErrTxReverted, chainName, reason,
			)
		}

		return blockNum, fmt.Errorf("tx %s %w, could not decode error reason for chain %s",
			tx.Hash().Hex(), ErrTxReverted, chainName,
		)
	}

	return blockNum, nil
}

// WaitMinedWithInterval is a custom function that allows to get receipts faster for networks with
// instant blocks. It polls until the receipt is found or ctx is done.
func WaitMinedWithInterval(ctx context.Context, tick time.Duration, b bind.DeployBackend, txHash common.Hash) (*types.Receipt, error) {
	queryTicker := time.NewTicker(tick)
	defer queryTicker.Stop()
	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queryTicker.C:
		}
	}
}
