package network

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML representation of network configuration.
type Manifest struct {
	// A YAML array of networks.
	Networks []Network `yaml:"networks"`
}

// Config represents the configuration of a collection of networks. This is loaded from the YAML
// manifest file/s.
type Config struct {
	// networks is a map of networks by their name. This differs from the manifest representation
	// of the networks so that we can ensure uniqueness and quickly lookup a network by its name.
	networks map[string]Network
}

// NewConfig creates a new config from a slice of networks. Any duplicate names will be
// overwritten.
func NewConfig(networks []Network) *Config {
	nmap := make(map[string]Network, len(networks))

	for _, network := range networks {
		nmap[network.Name] = network
	}

	return &Config{
		networks: nmap,
	}
}

// Validate ensures that all networks are valid.
func (c *Config) Validate() error {
	var errs []error
	for _, network := range c.Networks() {
		if err := network.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("network %q: %w", network.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Networks returns all networks in the config, ordered by name.
func (c *Config) Networks() []Network {
	networks := make([]Network, 0, len(c.networks))
	for _, name := range c.Names() {
		networks = append(networks, c.networks[name])
	}

	return networks
}

// Names returns the sorted names of all networks in the config.
func (c *Config) Names() []string {
	return slices.Sorted(maps.Keys(c.networks))
}

// NetworkByName retrieves a network by its name. If the network is not found, an error is
// returned.
func (c *Config) NetworkByName(name string) (Network, error) {
	network, ok := c.networks[name]
	if !ok {
		return Network{}, fmt.Errorf("network %q not found in configuration, available networks: %v",
			name, c.Names(),
		)
	}

	return network, nil
}

// Set adds or replaces a network.
func (c *Config) Set(network Network) {
	if c.networks == nil {
		c.networks = make(map[string]Network)
	}

	c.networks[network.Name] = network
}

// Merge merges another config into the current config.
// It overwrites any networks with the same name.
func (c *Config) Merge(other *Config) {
	if c.networks == nil {
		c.networks = make(map[string]Network)
	}

	maps.Copy(c.networks, other.networks)
}

// MarshalYAML implements the yaml.Marshaler interface for the Config struct.
// It converts the internal map structure to a YAML format with a top-level "networks" key.
func (c *Config) MarshalYAML() (any, error) {
	node := Manifest{
		Networks: c.Networks(),
	}

	return node, nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Config struct.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	node := Manifest{}

	if err := value.Decode(&node); err != nil {
		return err
	}

	*c = *NewConfig(node.Networks)

	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Fields which are omitted from the
// manifest keep the values of the default profile, so an omitted gas_price stays fixed at
// DefaultGasPrice while an explicit zero defers to the node.
func (n *Network) UnmarshalYAML(value *yaml.Node) error {
	type plain Network

	raw := plain{GasPrice: DefaultGasPrice}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*n = Network(raw)

	return nil
}

// Load loads configuration from the specified file paths, and merges them into a single Config.
// Later files take precedence over earlier ones.
func Load(filePaths []string) (*Config, error) {
	cfg := NewConfig([]Network{})

	for _, fp := range filePaths {
		data, err := os.ReadFile(fp)
		if err != nil {
			return nil, fmt.Errorf("failed to read networks file: %w", err)
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal networks YAML %s: %w", fp, err)
		}

		cfg.Merge(&fileCfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate networks configuration: %w", err)
	}

	return cfg, nil
}
