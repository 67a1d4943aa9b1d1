// Package config resolves the configuration of a deployment: the compiler version, the artifacts
// location and the network profiles, merged from built-in defaults, the project file, the network
// manifests and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"

	"github.com/whispernft/whisper-deployments/engine/config/env"
	"github.com/whispernft/whisper-deployments/engine/config/network"
)

const (
	// DefaultProjectFile is the name of the optional project file.
	DefaultProjectFile = "whisper.toml"
	// DefaultNetworksFile is the name of the optional network manifest.
	DefaultNetworksFile = "networks.yaml"
	// DefaultSolidityVersion is the compiler version the artifacts are expected to be built with.
	DefaultSolidityVersion = "0.8.24"
	// DefaultArtifactsDir is the directory holding the compiled artifacts.
	DefaultArtifactsDir = "artifacts"
)

// SolidityConfig holds the compiler settings.
type SolidityConfig struct {
	Version string `toml:"version"`
}

// PathsConfig holds the project paths.
type PathsConfig struct {
	Artifacts string `toml:"artifacts"`
}

// Config is the resolved configuration. It should be treated as read only once loaded.
type Config struct {
	Solidity       SolidityConfig
	DefaultNetwork string
	Paths          PathsConfig
	Networks       *network.Config
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Solidity:       SolidityConfig{Version: DefaultSolidityVersion},
		DefaultNetwork: network.DefaultName,
		Paths:          PathsConfig{Artifacts: DefaultArtifactsDir},
		Networks:       network.NewConfig([]network.Network{network.Default()}),
	}
}

// Validate checks that the compiler version is valid semver, that the default network exists and
// that every network profile is valid.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.SolidityVersion(); err != nil {
		errs = append(errs, err)
	}

	if c.Paths.Artifacts == "" {
		errs = append(errs, errors.New("paths.artifacts is required"))
	}

	if _, err := c.Networks.NetworkByName(c.DefaultNetwork); err != nil {
		errs = append(errs, fmt.Errorf("default network: %w", err))
	}

	if err := c.Networks.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SolidityVersion returns the parsed compiler version.
func (c *Config) SolidityVersion() (*semver.Version, error) {
	v, err := semver.NewVersion(c.Solidity.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid solidity version %q: %w", c.Solidity.Version, err)
	}

	return v, nil
}

// Network returns the network profile with the given name. An empty name selects the default
// network.
func (c *Config) Network(name string) (network.Network, error) {
	if name == "" {
		name = c.DefaultNetwork
	}

	return c.Networks.NetworkByName(name)
}

// LoadOption defines a function which modifies the load configuration.
type LoadOption func(*loadConfig)

// loadConfig holds the configuration for loading the config.
type loadConfig struct {
	projectFile   string
	networksFiles []string
	secrets       *env.Config
}

// WithProjectFile reads the TOML project file at path. The file must exist.
func WithProjectFile(path string) LoadOption {
	return func(c *loadConfig) {
		c.projectFile = path
	}
}

// WithNetworksFiles reads the YAML network manifests at paths, in order. The files must exist.
func WithNetworksFiles(paths ...string) LoadOption {
	return func(c *loadConfig) {
		c.networksFiles = append(c.networksFiles, paths...)
	}
}

// WithSecrets sets the secrets which are injected into every network profile.
func WithSecrets(secrets *env.Config) LoadOption {
	return func(c *loadConfig) {
		c.secrets = secrets
	}
}

// Load resolves the configuration. Sources are applied in increasing precedence: the built-in
// defaults, the project file, the network manifests and the secrets.
//
// A missing deployer key is not an error here, it is reported when the signer is acquired.
func Load(opts ...LoadOption) (*Config, error) {
	loadCfg := &loadConfig{}
	for _, opt := range opts {
		opt(loadCfg)
	}

	cfg := Default()

	if loadCfg.projectFile != "" {
		data, err := os.ReadFile(loadCfg.projectFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read project file: %w", err)
		}

		if err := applyProjectFile(cfg, data); err != nil {
			return nil, fmt.Errorf("failed to parse project file %s: %w", loadCfg.projectFile, err)
		}
	}

	if len(loadCfg.networksFiles) > 0 {
		manifest, err := network.Load(loadCfg.networksFiles)
		if err != nil {
			return nil, err
		}

		cfg.Networks.Merge(manifest)
	}

	if loadCfg.secrets != nil && loadCfg.secrets.EVM.DeployerKey != "" {
		for _, n := range cfg.Networks.Networks() {
			cfg.Networks.Set(n.WithAccounts(loadCfg.secrets.EVM.DeployerKey))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// projectFile is the TOML representation of the project file. Pointers distinguish omitted
// values from explicit zero values.
type projectFile struct {
	DefaultNetwork string                        `toml:"default_network"`
	Solidity       SolidityConfig                `toml:"solidity"`
	Paths          PathsConfig                   `toml:"paths"`
	Networks       map[string]projectFileNetwork `toml:"networks"`
}

type projectFileNetwork struct {
	URL      string        `toml:"url"`
	RPCs     []network.RPC `toml:"rpcs"`
	ChainID  *uint64       `toml:"chain_id"`
	GasPrice *uint64       `toml:"gas_price"`
	// A string, so that a bare number is rejected instead of read as nanoseconds.
	WaitMinedTimeout *string `toml:"wait_mined_timeout"`
}

// applyProjectFile overlays the values set in the TOML document onto cfg. Network tables with
// the name of an existing profile update that profile, other tables start from the default
// profile without its URL.
func applyProjectFile(cfg *Config, data []byte) error {
	var pf projectFile

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pf); err != nil {
		return err
	}

	if pf.DefaultNetwork != "" {
		cfg.DefaultNetwork = pf.DefaultNetwork
	}
	if pf.Solidity.Version != "" {
		cfg.Solidity.Version = pf.Solidity.Version
	}
	if pf.Paths.Artifacts != "" {
		cfg.Paths.Artifacts = pf.Paths.Artifacts
	}

	for name, fn := range pf.Networks {
		n, err := cfg.Networks.NetworkByName(name)
		if err != nil {
			n = network.Network{Name: name, GasPrice: network.DefaultGasPrice}
		}

		if fn.URL != "" {
			n.URL = fn.URL
		}
		if fn.RPCs != nil {
			n.RPCs = fn.RPCs
		}
		if fn.ChainID != nil {
			n.ChainID = *fn.ChainID
		}
		if fn.GasPrice != nil {
			n.GasPrice = *fn.GasPrice
		}
		if fn.WaitMinedTimeout != nil {
			if err := n.WaitMinedTimeout.UnmarshalText([]byte(*fn.WaitMinedTimeout)); err != nil {
				return fmt.Errorf("network %s: wait_mined_timeout: %w", name, err)
			}
		}

		cfg.Networks.Set(n)
	}

	return nil
}
