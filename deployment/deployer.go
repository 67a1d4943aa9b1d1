// Package deployment deploys a compiled contract to an EVM network and reports where it landed.
package deployment

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/ksuid"

	"github.com/whispernft/whisper-deployments/artifact"
	"github.com/whispernft/whisper-deployments/chain/evm"
	"github.com/whispernft/whisper-deployments/engine/config/network"
	"github.com/whispernft/whisper-deployments/pkg/logger"
)

// ArtifactResolver looks up compiled contracts by name.
type ArtifactResolver interface {
	Resolve(name string) (*artifact.Artifact, error)
}

var _ ArtifactResolver = (*artifact.Resolver)(nil)

// Hooks are called as the deployment progresses. Any of them may be nil.
type Hooks struct {
	// OnSigner is called once the deployer account is known.
	OnSigner func(deployer common.Address)
	// OnBalance is called with the balance of the deployer in wei.
	OnBalance func(deployer common.Address, balance *big.Int)
	// OnSubmitted is called once the creation transaction was accepted by the node.
	OnSubmitted func(txHash common.Hash, address common.Address)
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithHooks sets the progress hooks.
func WithHooks(h Hooks) Option {
	return func(d *Deployer) {
		d.hooks = h
	}
}

// WithGasLimit sets a fixed gas limit, which skips gas estimation.
func WithGasLimit(limit uint64) Option {
	return func(d *Deployer) {
		d.gasLimit = limit
	}
}

// Result describes a successful deployment.
type Result struct {
	RunID       string
	Network     string
	Contract    string
	Deployer    common.Address
	Balance     *big.Int
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
}

// Deployer deploys contracts with the deployer key of a chain.
type Deployer struct {
	lggr     logger.Logger
	chain    evm.Chain
	resolver ArtifactResolver

	hooks    Hooks
	gasLimit uint64
}

// New creates a Deployer for chain which reads artifacts from resolver.
func New(lggr logger.Logger, chain evm.Chain, resolver ArtifactResolver, opts ...Option) *Deployer {
	d := &Deployer{
		lggr:     lggr.Named("deployer"),
		chain:    chain,
		resolver: resolver,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Deploy deploys the contract with the given name and waits for the creation transaction to be
// mined. The transaction is submitted once and never retried.
//
// Deploy blocks until the receipt is found or ctx is done; the chain's confirm function may
// bound the wait further. Returned errors are of type *Error.
func (d *Deployer) Deploy(ctx context.Context, contractName string) (*Result, error) {
	res := &Result{
		RunID:    ksuid.New().String(),
		Network:  d.chain.Name,
		Contract: contractName,
	}
	lggr := d.lggr.With("runID", res.RunID, "network", d.chain.Name, "contract", contractName)

	if d.chain.DeployerKey == nil {
		return nil, NewError(ErrConfig, "acquire signer", network.ErrDeployerKeyNotSet)
	}
	if d.chain.Client == nil {
		return nil, NewError(ErrConfig, "check chain", errNoClient)
	}
	if d.chain.Confirm == nil {
		return nil, NewError(ErrConfig, "check chain", errNoConfirm)
	}

	opts := *d.chain.DeployerKey
	opts.Context = ctx
	if d.gasLimit > 0 {
		opts.GasLimit = d.gasLimit
	}

	res.Deployer = opts.From
	lggr.Infow("Deploying contracts with the account", "deployer", res.Deployer.Hex())
	if d.hooks.OnSigner != nil {
		d.hooks.OnSigner(res.Deployer)
	}

	balance, err := d.chain.Client.BalanceAt(ctx, res.Deployer, nil)
	if err != nil {
		return nil, classify("fetch balance", err)
	}
	res.Balance = balance

	lggr.Infow("Account balance", "deployer", res.Deployer.Hex(), "balanceWei", balance.String())
	if d.hooks.OnBalance != nil {
		d.hooks.OnBalance(res.Deployer, balance)
	}

	a, err := d.resolver.Resolve(contractName)
	if err != nil {
		return nil, NewError(ErrConfig, "resolve artifact", err)
	}

	parsedABI, err := a.ParsedABI()
	if err != nil {
		return nil, NewError(ErrConfig, "resolve artifact", err)
	}

	bytecode, err := a.Bytecode()
	if err != nil {
		return nil, NewError(ErrConfig, "resolve artifact", err)
	}

	lggr.Debugw("Resolved artifact",
		"artifact", a.FullyQualifiedName(),
		"solcVersion", a.SolcVersion,
		"bytecodeSize", len(bytecode),
	)

	address, tx, _, err := bind.DeployContract(&opts, parsedABI, bytecode, d.chain.Client)
	if err != nil {
		return nil, classify("submit transaction", err)
	}
	res.Address = address
	res.TxHash = tx.Hash()

	lggr.Infow("Deployment transaction submitted",
		"txHash", res.TxHash.Hex(),
		"nonce", tx.Nonce(),
		"gasPrice", tx.GasPrice().String(),
		"gasLimit", tx.Gas(),
		"address", address.Hex(),
	)
	if d.hooks.OnSubmitted != nil {
		d.hooks.OnSubmitted(res.TxHash, address)
	}

	blockNumber, err := d.chain.Confirm(ctx, tx)
	if err != nil {
		return nil, classify("confirm transaction", err)
	}
	res.BlockNumber = blockNumber

	lggr.Infow("Contract deployed",
		"address", res.Address.Hex(),
		"txHash", res.TxHash.Hex(),
		"blockNumber", res.BlockNumber,
	)

	return res, nil
}
