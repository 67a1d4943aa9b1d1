package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ConfirmFunc waits for the transaction to be confirmed and returns the block number it was
// included in. It stops waiting once ctx is done.
type ConfirmFunc func(ctx context.Context, tx *types.Transaction) (uint64, error)

// OnchainClient is an EVM chain client.
// For EVM specifically we can use existing geth interface to abstract chain clients.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Chain represents an EVM chain reached through a named network profile.
type Chain struct {
	// Name is the network profile name, e.g. "morphTestnet".
	Name    string
	ChainID *big.Int

	Client OnchainClient
	// DeployerKey signs the contract-creation transactions. It carries the fixed gas price of
	// the network profile when one is configured.
	DeployerKey *bind.TransactOpts
	Confirm     ConfirmFunc
}

// String returns chain name and chain ID "<name> (<chain id>)"
func (c Chain) String() string {
	id := "unknown"
	if c.ChainID != nil {
		id = c.ChainID.String()
	}

	return fmt.Sprintf("%s (%s)", c.Name, id)
}

// DeployerAddress returns the address of the deployer key, or the zero address when the chain
// has no deployer key.
func (c Chain) DeployerAddress() common.Address {
	if c.DeployerKey == nil {
		return common.Address{}
	}

	return c.DeployerKey.From
}
