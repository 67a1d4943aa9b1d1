// Package cli builds the whisper-deploy command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/whispernft/whisper-deployments/artifact"
	"github.com/whispernft/whisper-deployments/chain/evm"
	"github.com/whispernft/whisper-deployments/chain/evm/provider"
	"github.com/whispernft/whisper-deployments/deployment"
	"github.com/whispernft/whisper-deployments/engine/config"
	"github.com/whispernft/whisper-deployments/engine/config/env"
	"github.com/whispernft/whisper-deployments/engine/config/network"
	"github.com/whispernft/whisper-deployments/pkg/logger"
)

// DefaultContract is the contract deployed when --contract is not given.
const DefaultContract = "WhisperNFT"

var (
	rootLong = longDesc(`
	Deploys a compiled contract to an EVM network and prints its address.

	The network profile, compiler version and artifacts directory come from the built-in
	defaults, the optional whisper.toml project file and the optional networks.yaml manifest.
	The deployer key is read from DEPLOYER_KEY or PRIVATE_KEY, which may be set in a .env file.
`)

	rootExample = examples(`
		# Deploy WhisperNFT to the default network (morphTestnet)
		whisper-deploy

		# Deploy to another profile of the networks manifest with debug logs
		whisper-deploy --network local --networks ./networks.yaml --log-level debug
`)
)

// flags holds the values of the command line flags.
type flags struct {
	network      string
	configFile   string
	networksFile string
	envFile      string
	contract     string
	logLevel     string
}

// NewRootCommand creates the whisper-deploy command.
func NewRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "whisper-deploy",
		Short:         "Deploy the WhisperNFT contract",
		Long:          rootLong,
		Example:       rootExample,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	flagSet := cmd.Flags()
	flagSet.StringVar(&f.network, "network", "", "Network profile to deploy to (defaults to the configured default network)")
	flagSet.StringVar(&f.configFile, "config", "", "Path to the TOML project file (defaults to ./"+config.DefaultProjectFile+" when present)")
	flagSet.StringVar(&f.networksFile, "networks", "", "Path to the YAML networks manifest (defaults to ./"+config.DefaultNetworksFile+" when present)")
	flagSet.StringVar(&f.envFile, "env-file", ".env", "Path to the dotenv file holding the deployer key")
	flagSet.StringVar(&f.contract, "contract", DefaultContract, "Name of the contract artifact to deploy")
	flagSet.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func run(cmd *cobra.Command, f *flags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	lggrCfg, err := logger.ParseLevel(f.logLevel)
	if err != nil {
		return deployment.NewError(deployment.ErrConfig, "parse log level", err)
	}
	lggr, err := lggrCfg.New()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = lggr.Sync() }()

	cfg, err := loadConfig(f)
	if err != nil {
		return deployment.NewError(deployment.ErrConfig, "load config", err)
	}

	n, err := cfg.Network(f.network)
	if err != nil {
		return deployment.NewError(deployment.ErrConfig, "select network", err)
	}

	// Fail before dialing the node when there is nothing to sign with.
	key, err := n.DeployerKey()
	if err != nil {
		return deployment.NewError(deployment.ErrConfig, "acquire signer", err)
	}

	rpcs, err := n.EVMRPCs()
	if err != nil {
		return deployment.NewError(deployment.ErrConfig, "select network", err)
	}

	resolver, err := artifact.NewResolver(cfg.Paths.Artifacts,
		artifact.WithCompilerVersion(cfg.Solidity.Version),
		artifact.WithLogger(lggr),
	)
	if err != nil {
		return deployment.NewError(deployment.ErrConfig, "resolve artifact", err)
	}
	lggr.Infow("Reading artifacts", "dir", resolver.Dir(), "solidity", cfg.Solidity.Version)

	chain, err := provider.NewRPCChainProvider(n.Name, provider.RPCChainProviderConfig{
		DeployerTransactorGen: provider.TransactorFromRaw(key, provider.WithGasPrice(n.GasPriceWei())),
		RPCs:                  rpcs,
		ConfirmFunctor:        provider.ConfirmFuncGeth(n.WaitMinedTimeout.Std()),
		ChainID:               n.ChainIDBig(),
		Logger:                lggr,
	}).Initialize(ctx)
	if err != nil {
		return initError(err)
	}

	lggr.Infow("Connected to network", "network", chain.String())

	hooks := deployment.Hooks{
		OnSigner: func(deployer common.Address) {
			fmt.Fprintln(out, "Deploying contracts with the account:", deployer.Hex())
		},
		OnBalance: func(_ common.Address, balance *big.Int) {
			fmt.Fprintln(out, "Account balance:", balance.String())
		},
	}

	res, err := deployment.New(lggr, chain, resolver, deployment.WithHooks(hooks)).Deploy(ctx, f.contract)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s deployed to: %s\n", res.Contract, color.GreenString(res.Address.Hex()))

	return nil
}

// loadConfig loads the secrets and the configuration files. Files given by flag must exist, the
// default files are only read when present in the working directory.
func loadConfig(f *flags) (*config.Config, error) {
	secrets, err := env.Load(f.envFile)
	if err != nil {
		return nil, err
	}

	opts := []config.LoadOption{config.WithSecrets(secrets)}

	if path := pathOrDefault(f.configFile, config.DefaultProjectFile); path != "" {
		opts = append(opts, config.WithProjectFile(path))
	}
	if path := pathOrDefault(f.networksFile, config.DefaultNetworksFile); path != "" {
		opts = append(opts, config.WithNetworksFiles(path))
	}

	return config.Load(opts...)
}

func pathOrDefault(path, def string) string {
	if path != "" {
		return path
	}

	if _, err := os.Stat(def); errors.Is(err, fs.ErrNotExist) {
		return ""
	}

	return def
}

// initError classifies a failure to initialize the chain. Key and chain ID problems are local,
// anything else happened while dialing the node.
func initError(err error) error {
	switch {
	case errors.Is(err, provider.ErrMissingKey):
		return deployment.NewError(deployment.ErrConfig, "acquire signer",
			errors.Join(network.ErrDeployerKeyNotSet, err),
		)
	case errors.Is(err, provider.ErrInvalidKey):
		return deployment.NewError(deployment.ErrConfig, "acquire signer", err)
	case errors.Is(err, provider.ErrChainIDMismatch):
		return deployment.NewError(deployment.ErrConfig, "initialize chain", err)
	case evm.IsRPCError(err):
		return deployment.NewError(deployment.ErrChainRejected, "initialize chain", err)
	default:
		return deployment.NewError(deployment.ErrNetwork, "initialize chain", err)
	}
}
