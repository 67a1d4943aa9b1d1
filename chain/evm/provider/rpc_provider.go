package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/whispernft/whisper-deployments/chain/evm"
	"github.com/whispernft/whisper-deployments/pkg/logger"
)

// ChainProvider initializes an evm.Chain ready to deploy contracts to.
type ChainProvider interface {
	Initialize(ctx context.Context) (evm.Chain, error)
	Name() string
}

var (
	_ ChainProvider = (*RPCChainProvider)(nil)
	_ ChainProvider = (*SimChainProvider)(nil)
)

// ErrChainIDMismatch is returned when the node reports a chain ID which differs from the one
// configured for the network.
var ErrChainIDMismatch = errors.New("chain ID mismatch")

// RPCChainProviderConfig holds the configuration to initialize the RPCChainProvider.
type RPCChainProviderConfig struct {
	// Required: A generator for the deployer key. Use TransactorFromRaw to create a deployer
	// key from a private key.
	DeployerTransactorGen SignerGenerator
	// Required: At least one RPC must be provided to connect to the EVM node.
	RPCs []evm.RPC
	// Required: ConfirmFunctor is a type that generates a confirmation function for transactions.
	// Use ConfirmFuncGeth.
	ConfirmFunctor ConfirmFunctor
	// Optional: ChainID is the expected chain ID of the network. When set, the chain ID reported
	// by the node must match it. When nil, the chain ID reported by the node is used.
	ChainID *big.Int
	// Optional: ClientOpts are additional options to configure the MultiClient used by the
	// RPCChainProvider, such as the retry configuration.
	ClientOpts []evm.MultiClientOption
	// Optional: Logger is the logger to use for the RPCChainProvider. If not provided, a default
	// logger will be used.
	Logger logger.Logger
}

// validate checks if the RPCChainProviderConfig is valid.
func (c RPCChainProviderConfig) validate() error {
	if c.DeployerTransactorGen == nil {
		return errors.New("deployer transactor generator is required")
	}
	if c.ConfirmFunctor == nil {
		return errors.New("confirm functor is required")
	}
	if len(c.RPCs) == 0 {
		return errors.New("at least one RPC is required")
	}

	return nil
}

// RPCChainProvider is a chain provider that provides a chain that connects to an EVM node via RPC.
type RPCChainProvider struct {
	name   string
	config RPCChainProviderConfig

	chain *evm.Chain
}

// NewRPCChainProvider creates a new RPCChainProvider for the named network with the given
// configuration.
func NewRPCChainProvider(name string, config RPCChainProviderConfig) *RPCChainProvider {
	return &RPCChainProvider{
		name:   name,
		config: config,
	}
}

// Initialize dials the RPCs, resolves the chain ID, generates the deployer key and sets up the
// confirm function. It returns the initialized chain or an error if initialization fails.
func (p *RPCChainProvider) Initialize(ctx context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil // Already initialized
	}

	if p.config.Logger == nil {
		lggr, err := logger.New()
		if err != nil {
			return evm.Chain{}, fmt.Errorf("failed to create default logger: %w", err)
		}
		p.config.Logger = lggr
	}

	if err := p.config.validate(); err != nil {
		return evm.Chain{}, fmt.Errorf("failed to validate provider config: %w", err)
	}

	client, err := evm.NewMultiClient(ctx, p.config.Logger, evm.RPCConfig{
		ChainName: p.name,
		RPCs:      p.config.RPCs,
	}, p.config.ClientOpts...)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to create multi-client: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to get chain ID for %s: %w", p.name, err)
	}
	if want := p.config.ChainID; want != nil && want.Sign() > 0 && want.Cmp(chainID) != 0 {
		return evm.Chain{}, fmt.Errorf("%w: network %s is configured with %s but the node reports %s",
			ErrChainIDMismatch, p.name, want, chainID,
		)
	}

	deployerKey, err := p.config.DeployerTransactorGen.Generate(chainID)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate deployer key: %w", err)
	}

	confirmFunc, err := p.config.ConfirmFunctor.Generate(ctx, p.name, client, deployerKey.From)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate confirm function: %w", err)
	}

	p.chain = &evm.Chain{
		Name:        p.name,
		ChainID:     chainID,
		Client:      client,
		DeployerKey: deployerKey,
		Confirm:     confirmFunc,
	}

	return *p.chain, nil
}

// Name returns the name of the RPCChainProvider.
func (*RPCChainProvider) Name() string {
	return "EVM RPC Chain Provider"
}
