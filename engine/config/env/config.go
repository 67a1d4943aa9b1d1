// Package env loads the secrets of the deployment tool from the environment.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EVMConfig holds the EVM secrets.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type EVMConfig struct {
	DeployerKey string `mapstructure:"deployer_key"` // Secret: The private key of the deployer account.
}

// Config wraps the secrets read from the environment.
type Config struct {
	EVM EVMConfig `mapstructure:"evm"`
}

// Load reads the optional dotenv file at envFile into the process environment and then loads the
// config from the environment variables. Variables which are already set in the environment take
// precedence over the ones in the file. A missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); !errors.Is(err, fs.ErrNotExist) {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	return LoadEnv()
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := viper.New()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}

	return cfg, nil
}

var (
	// envBindings maps config keys to the environment variables that can provide their value.
	//
	// The first name is the preferred one, the second is the legacy name used by the Hardhat
	// scripts. Viper uses the first one that is set.
	envBindings = map[string][]string{
		"evm.deployer_key": {"DEPLOYER_KEY", "PRIVATE_KEY"},
	}
)

// KeyEnvVars returns the names of the environment variables which can hold the deployer key.
func KeyEnvVars() []string {
	return slices.Clone(envBindings["evm.deployer_key"])
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
