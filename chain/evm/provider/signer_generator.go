package provider

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMissingKey is returned when a signer is requested from an empty private key.
	ErrMissingKey = errors.New("deployer private key is not set")
	// ErrInvalidKey is returned when the private key cannot be parsed.
	ErrInvalidKey = errors.New("invalid deployer private key")
)

// SignerGenerator is an interface for generating geth's *bind.TransactOpts instances. These
// instances are used to sign the contract-creation transactions through geth bindings.
type SignerGenerator interface {
	Generate(chainID *big.Int) (*bind.TransactOpts, error)
}

var (
	_ SignerGenerator = (*transactorFromRaw)(nil)
	_ SignerGenerator = (*transactorRandom)(nil)
)

// GeneratorOptions contains configuration options for the SignerGenerator.
type GeneratorOptions struct {
	gasLimit uint64
	gasPrice *big.Int
}

// GeneratorOption is a function that modifies GeneratorOptions.
type GeneratorOption func(*GeneratorOptions)

// WithGasLimit fixes the gas limit of every transaction signed by the transactor. Zero lets the
// bindings estimate it.
func WithGasLimit(gasLimit uint64) GeneratorOption {
	return func(opts *GeneratorOptions) {
		opts.gasLimit = gasLimit
	}
}

// WithGasPrice fixes the legacy gas price, in wei, of every transaction signed by the transactor.
// A nil or zero price lets the bindings query the node.
func WithGasPrice(gasPrice *big.Int) GeneratorOption {
	return func(opts *GeneratorOptions) {
		opts.gasPrice = gasPrice
	}
}

func (o *GeneratorOptions) apply(transactor *bind.TransactOpts) {
	if o.gasLimit > 0 {
		transactor.GasLimit = o.gasLimit
	}
	if o.gasPrice != nil && o.gasPrice.Sign() > 0 {
		transactor.GasPrice = new(big.Int).Set(o.gasPrice)
	}
}

func newGeneratorOptions(opts []GeneratorOption) *GeneratorOptions {
	o := &GeneratorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// TransactorFromRaw returns a generator which creates a transactor from a hex encoded private
// key, with or without the 0x prefix.
func TransactorFromRaw(privKey string, opts ...GeneratorOption) SignerGenerator {
	return &transactorFromRaw{
		privKey: privKey,
		opts:    newGeneratorOptions(opts),
	}
}

// transactorFromRaw is a SignerGenerator that creates a transactor from a private key.
type transactorFromRaw struct {
	privKey string
	opts    *GeneratorOptions
}

// Generate parses the hex encoded private key and returns the bind transactor options.
func (g *transactorFromRaw) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(g.privKey), "0x")
	if raw == "" {
		return nil, ErrMissingKey
	}

	privKey, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to convert private key to ECDSA: %w", ErrInvalidKey, err)
	}

	transactor, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return nil, err
	}
	g.opts.apply(transactor)

	return transactor, nil
}

// TransactorRandom is a SignerGenerator that creates a transactor with a random private key.
// A random private key is generated the first time Generate() is called, and the same key is
// used for subsequent calls.
func TransactorRandom(opts ...GeneratorOption) SignerGenerator {
	return &transactorRandom{opts: newGeneratorOptions(opts)}
}

// transactorRandom is a SignerGenerator that creates a transactor from a random keypair.
type transactorRandom struct {
	privKey *ecdsa.PrivateKey
	opts    *GeneratorOptions
}

// Generate generates a random key and returns the bind transactor options.
func (g *transactorRandom) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	if g.privKey == nil {
		privKey, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate random private key: %w", err)
		}
		g.privKey = privKey
	}

	transactor, err := bind.NewKeyedTransactorWithChainID(g.privKey, chainID)
	if err != nil {
		return nil, err
	}
	g.opts.apply(transactor)

	return transactor, nil
}
