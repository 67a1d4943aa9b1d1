package provider

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/whispernft/whisper-deployments/chain/evm"
)

var (
	// simChainID is the chain ID for the simulated EVM chain. This is always set to 1337 across
	// all instances of EVM Simulated Chains.
	simChainID = params.AllDevChainProtocolChanges.ChainID
	// defaultPrefundWei is the amount of wei the deployer account is funded with by default.
	defaultPrefundWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
)

// SimChainProviderConfig holds the configuration to initialize the SimChainProvider.
type SimChainProviderConfig struct {
	// Optional: Name of the simulated network. Defaults to "simulated".
	Name string
	// Optional: DeployerKey is the hex encoded private key of the deployer. A random key is
	// generated when empty.
	DeployerKey string
	// Optional: PrefundWei is the genesis balance of the deployer. Defaults to 1,000,000 Ether.
	// Use a non nil zero value for an unfunded deployer.
	PrefundWei *big.Int
	// Optional: GeneratorOptions are applied to the deployer transactor, e.g. WithGasPrice.
	GeneratorOptions []GeneratorOption
	// Optional: BlockTime configures the time between blocks being committed. By default, this is
	// set to 0s, meaning that a block is committed whenever the Confirm function is called.
	// Use a negative value to never commit blocks, simulating a network which never confirms.
	BlockTime time.Duration
	// Optional: WaitMinedTimeout bounds the Confirm function. Zero waits until the context of
	// Initialize is cancelled.
	WaitMinedTimeout time.Duration
}

// SimChainProvider manages a simulated EVM chain that is backed by go-ethereum's in memory
// simulated backend.
type SimChainProvider struct {
	t      *testing.T
	config SimChainProviderConfig

	chain *evm.Chain
}

// NewSimChainProvider creates a new SimChainProvider with the given configuration.
func NewSimChainProvider(t *testing.T, config SimChainProviderConfig) *SimChainProvider {
	t.Helper()

	if config.Name == "" {
		config.Name = "simulated"
	}
	if config.PrefundWei == nil {
		config.PrefundWei = defaultPrefundWei
	}

	return &SimChainProvider{
		t:      t,
		config: config,
	}
}

// Initialize sets up the simulated chain with a prefunded deployer account. It returns an
// initialized evm.Chain whose Confirm function goes through the same receipt checks as the RPC
// provider.
func (p *SimChainProvider) Initialize(ctx context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil // Already initialized
	}

	var gen SignerGenerator
	if p.config.DeployerKey != "" {
		gen = TransactorFromRaw(p.config.DeployerKey, p.config.GeneratorOptions...)
	} else {
		key, err := crypto.GenerateKey()
		require.NoError(p.t, err, "failed to generate deployer key")
		gen = TransactorFromRaw(common.Bytes2Hex(crypto.FromECDSA(key)), p.config.GeneratorOptions...)
	}

	deployerKey, err := gen.Generate(simChainID)
	if err != nil {
		return evm.Chain{}, err
	}

	genesis := types.GenesisAlloc{
		deployerKey.From: {Balance: p.config.PrefundWei},
	}

	backend := simulated.NewBackend(genesis, simulated.WithBlockGasLimit(50000000))
	p.t.Cleanup(func() { _ = backend.Close() })
	backend.Commit() // Commit the genesis block

	if p.config.BlockTime > 0 {
		startAutoMine(p.t, backend, p.config.BlockTime)
	}

	// Wrap the simulated client to implement the OnchainClient interface.
	client := NewSimClient(p.t, backend)

	confirm := ConfirmFuncGeth(p.config.WaitMinedTimeout, WithTickInterval(10*time.Millisecond))
	geth, err := confirm.Generate(ctx, p.config.Name, client, deployerKey.From)
	if err != nil {
		return evm.Chain{}, err
	}

	p.chain = &evm.Chain{
		Name:        p.config.Name,
		ChainID:     simChainID,
		Client:      client,
		DeployerKey: deployerKey,
		Confirm: func(ctx context.Context, tx *types.Transaction) (uint64, error) {
			// Ensure the transaction is mined by committing a new block
			if tx != nil && p.config.BlockTime == 0 {
				client.Commit()
			}

			return geth(ctx, tx)
		},
	}

	return *p.chain, nil
}

// Name returns the name of the SimChainProvider.
func (*SimChainProvider) Name() string {
	return "Simulated EVM Chain Provider"
}

// Backend returns the simulated client of an initialized chain.
func (p *SimChainProvider) Backend() *SimClient {
	if p.chain == nil {
		return nil
	}

	client, _ := p.chain.Client.(*SimClient)

	return client
}

// startAutoMine triggers the simulated backend to create a new block at intervals defined by
// `blockTime`. After the test is done, it stops the mining goroutine.
func startAutoMine(t *testing.T, backend *simulated.Backend, blockTime time.Duration) {
	t.Helper()

	ctx := t.Context()
	ticker := time.NewTicker(blockTime)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				backend.Commit()
			case <-ctx.Done():
				return
			}
		}
	}()
}

var _ bind.DeployBackend = (*SimClient)(nil)
