package network

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/whispernft/whisper-deployments/chain/evm"
)

const (
	// DefaultName is the name of the built-in network profile.
	DefaultName = "morphTestnet"
	// DefaultURL is the RPC URL of the built-in network profile.
	DefaultURL = "https://rpc-quicknode-holesky.morphl2.io/"
	// DefaultGasPrice is the fixed gas price in wei used when a profile does not set one.
	DefaultGasPrice uint64 = 2_000_000_000
)

// ErrDeployerKeyNotSet is returned when a profile has no account to deploy from.
var ErrDeployerKeyNotSet = errors.New("deployer key is not set: set DEPLOYER_KEY or PRIVATE_KEY")

// Network is a named network profile.
type Network struct {
	// Name identifies the profile. In the TOML project file the table key is used instead.
	Name string `yaml:"name" toml:"-"`
	// URL is a shorthand for a single HTTP or websocket RPC. It is dialed before any entry of RPCs.
	URL string `yaml:"url,omitempty" toml:"url,omitempty"`
	// RPCs are additional endpoints which the client fails over to.
	RPCs []RPC `yaml:"rpcs,omitempty" toml:"rpcs,omitempty"`
	// ChainID is the expected chain ID. Zero means the ID reported by the node is used.
	ChainID uint64 `yaml:"chain_id,omitempty" toml:"chain_id,omitempty"`
	// GasPrice is the fixed gas price in wei. Zero lets the node suggest the fees.
	GasPrice uint64 `yaml:"gas_price" toml:"gas_price"`
	// WaitMinedTimeout bounds the wait for a receipt. Zero waits until cancelled.
	WaitMinedTimeout Duration `yaml:"wait_mined_timeout,omitempty" toml:"wait_mined_timeout,omitempty"`
	// Accounts holds the private keys of the profile, the first one being the deployer.
	//
	// WARNING: This field is sensitive. It is only populated from the environment and is never
	// read from or written to files.
	Accounts []string `yaml:"-" toml:"-"`
}

// Default returns the built-in network profile.
func Default() Network {
	return Network{
		Name:     DefaultName,
		URL:      DefaultURL,
		GasPrice: DefaultGasPrice,
	}
}

// Validate validates the network configuration to ensure that all required fields are set.
// Accounts are not checked here; a missing key is reported when the signer is acquired.
func (n Network) Validate() error {
	if n.Name == "" {
		return errors.New("name is required")
	}

	if n.URL == "" && len(n.RPCs) == 0 {
		return errors.New("a url or at least one RPC is required")
	}

	if n.URL != "" {
		if _, err := parseURL(n.URL); err != nil {
			return err
		}
	}

	for i, rpc := range n.RPCs {
		if err := rpc.Validate(); err != nil {
			return fmt.Errorf("rpc %d: %w", i, err)
		}
	}

	if n.WaitMinedTimeout < 0 {
		return errors.New("wait_mined_timeout must not be negative")
	}

	return nil
}

// DeployerKey returns the first account of the profile.
func (n Network) DeployerKey() (string, error) {
	if len(n.Accounts) == 0 || n.Accounts[0] == "" {
		return "", ErrDeployerKeyNotSet
	}

	return n.Accounts[0], nil
}

// WithAccounts returns a copy of the network holding the given accounts.
func (n Network) WithAccounts(accounts ...string) Network {
	n.Accounts = slices.Clone(accounts)
	n.RPCs = slices.Clone(n.RPCs)

	return n
}

// GasPriceWei returns the fixed gas price, or nil when the node should suggest the fees.
func (n Network) GasPriceWei() *big.Int {
	if n.GasPrice == 0 {
		return nil
	}

	return new(big.Int).SetUint64(n.GasPrice)
}

// ChainIDBig returns the expected chain ID, or nil when it is not configured.
func (n Network) ChainIDBig() *big.Int {
	if n.ChainID == 0 {
		return nil
	}

	return new(big.Int).SetUint64(n.ChainID)
}

// EVMRPCs converts the URL and the RPCs of the profile into the RPCs dialed by the client.
func (n Network) EVMRPCs() ([]evm.RPC, error) {
	rpcs := make([]evm.RPC, 0, len(n.RPCs)+1)

	if n.URL != "" {
		u, err := parseURL(n.URL)
		if err != nil {
			return nil, err
		}

		rpc := evm.RPC{Name: n.Name}
		switch u.Scheme {
		case "ws", "wss":
			rpc.WSURL = n.URL
			rpc.PreferredURLScheme = evm.URLSchemePreferenceWS
		default:
			rpc.HTTPURL = n.URL
			rpc.PreferredURLScheme = evm.URLSchemePreferenceHTTP
		}

		rpcs = append(rpcs, rpc)
	}

	for _, r := range n.RPCs {
		pref, err := evm.URLSchemePreferenceFromString(r.PreferredURLScheme)
		if err != nil {
			return nil, err
		}

		rpcs = append(rpcs, evm.RPC{
			Name:               r.RPCName,
			HTTPURL:            r.HTTPURL,
			WSURL:              r.WSURL,
			PreferredURLScheme: pref,
		})
	}

	return rpcs, nil
}

// RPC represents an RPC configuration in the flattened structure
type RPC struct {
	RPCName            string `yaml:"rpc_name" toml:"rpc_name"`
	PreferredURLScheme string `yaml:"preferred_url_scheme" toml:"preferred_url_scheme"`
	HTTPURL            string `yaml:"http_url" toml:"http_url"`
	WSURL              string `yaml:"ws_url" toml:"ws_url"`
}

// PreferredEndpoint returns the correct endpoint based on the preferred URL scheme. By default, it
// returns the HTTP URL.
func (rpc RPC) PreferredEndpoint() string {
	if rpc.PreferredURLScheme == "ws" || rpc.PreferredURLScheme == "wss" {
		return rpc.WSURL
	}

	return rpc.HTTPURL
}

// Validate checks that the preferred endpoint is set and is a valid URL.
func (rpc RPC) Validate() error {
	if _, err := evm.URLSchemePreferenceFromString(rpc.PreferredURLScheme); err != nil {
		return err
	}

	endpoint := rpc.PreferredEndpoint()
	if endpoint == "" {
		return fmt.Errorf("rpc %q has no url for its preferred scheme", rpc.RPCName)
	}

	_, err := parseURL(endpoint)

	return err
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return u, nil
	default:
		return nil, fmt.Errorf("invalid url %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// Duration is a time.Duration which is read from and written to files as a string such as "90s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}

	*d = Duration(parsed)

	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Only strings with a unit are
// accepted, a bare number would otherwise be read as nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" {
		return fmt.Errorf("invalid duration %q at line %d: use a string with a unit, such as \"5m\"",
			value.Value, value.Line,
		)
	}

	return d.UnmarshalText([]byte(value.Value))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
