package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	"github.com/whispernft/whisper-deployments/pkg/logger"
)

const (
	// A single attempt per endpoint. A failed send is never resubmitted to the same node.
	RPCDefaultRetryAttempts = 1
	RPCDefaultRetryDelay    = time.Second
	RPCDefaultRetryTimeout  = 10 * time.Second

	RPCDefaultDialRetryAttempts = 1
	RPCDefaultDialRetryDelay    = time.Second
	RPCDefaultDialTimeout       = 10 * time.Second

	RPCDefaultHealthCheckTimeout = 2 * time.Second
)

// RetryConfig bounds the attempts made against each endpoint of a MultiClient.
type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

// DefaultRetryConfig returns the retry configuration used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// MultiClientOption configures a MultiClient.
type MultiClientOption func(*MultiClient)

// WithRetryConfig overrides the default retry configuration of a MultiClient.
func WithRetryConfig(cfg RetryConfig) MultiClientOption {
	return func(mc *MultiClient) {
		mc.RetryConfig = cfg
	}
}

var _ OnchainClient = (*MultiClient)(nil)

// MultiClient talks to a network through a preferred endpoint and a list of backups. A call
// moves on to the next endpoint only when the current one fails at the transport level. A
// JSON-RPC error response is returned as is: every node of the network would answer the same.
type MultiClient struct {
	*ethclient.Client
	Backups     []*ethclient.Client
	RetryConfig RetryConfig

	lggr      logger.Logger
	chainName string
	mu        sync.RWMutex
}

// NewMultiClient dials the endpoints of cfg in order and keeps the ones answering
// eth_blockNumber. The first healthy endpoint becomes the preferred one.
func NewMultiClient(ctx context.Context, lggr logger.Logger, cfg RPCConfig, opts ...MultiClientOption) (*MultiClient, error) {
	if len(cfg.RPCs) == 0 {
		return nil, errors.New("no RPCs provided, need at least one")
	}

	mc := &MultiClient{
		RetryConfig: DefaultRetryConfig(),
		lggr:        lggr.With("network", cfg.ChainName),
		chainName:   cfg.ChainName,
	}
	for _, opt := range opts {
		opt(mc)
	}

	healthy := make([]*ethclient.Client, 0, len(cfg.RPCs))
	for i, r := range cfg.RPCs {
		client, err := mc.dial(ctx, r)
		if err != nil {
			mc.lggr.Warnw("Skipping RPC, dial failed", "index", i, "rpc", r.Name, "err", err)

			continue
		}
		if err := healthCheck(ctx, client); err != nil {
			mc.lggr.Warnw("Skipping RPC, health check failed", "index", i, "rpc", r.Name, "err", err)
			client.Close()

			continue
		}
		healthy = append(healthy, client)
	}

	if len(healthy) == 0 {
		return nil, fmt.Errorf("no valid RPC clients created for chain %q", cfg.ChainName)
	}

	mc.Client = healthy[0]
	mc.Backups = healthy[1:]

	return mc, nil
}

func healthCheck(ctx context.Context, client *ethclient.Client) error {
	ctx, cancel := context.WithTimeout(ctx, RPCDefaultHealthCheckTimeout)
	defer cancel()

	if _, err := client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// call runs fn against each endpoint in turn until one succeeds or answers with a JSON-RPC
// error. Successful backups are promoted to preferred.
func call[T any](ctx context.Context, mc *MultiClient, op string, fn func(context.Context, *ethclient.Client) (T, error)) (T, error) {
	var (
		out     T
		lastErr error
		traceID = uuid.NewString()
	)

	for i, client := range mc.clients() {
		retries := 0
		err := retry.Do(func() error {
			attemptCtx, cancel := ensureTimeout(ctx, mc.RetryConfig.Timeout)
			defer cancel()

			res, err := fn(attemptCtx, client)
			if err != nil {
				if IsRPCError(err) {
					return retry.Unrecoverable(err)
				}
				mc.lggr.Warnw("RPC call failed", "traceID", traceID, "op", op, "index", i, "err", maybeDataErr(err))

				return err
			}
			out = res

			return nil
		},
			retry.Attempts(mc.RetryConfig.Attempts),
			retry.Delay(mc.RetryConfig.Delay),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(uint, error) { retries++ }),
		)
		if err == nil {
			if retries > 0 {
				mc.lggr.Infow("RPC call succeeded after retries", "traceID", traceID, "op", op, "index", i, "retries", retries)
			}
			mc.reorderRPCs(i)

			return out, nil
		}
		if IsRPCError(err) || ctx.Err() != nil {
			return out, err
		}
		lastErr = err
		mc.lggr.Debugw("Trying next RPC", "traceID", traceID, "op", op, "index", i)
	}

	return out, errors.Join(lastErr, fmt.Errorf("all backup clients failed for chain %q", mc.chainName))
}

// exec is call for operations without a result.
func exec(ctx context.Context, mc *MultiClient, op string, fn func(context.Context, *ethclient.Client) error) error {
	_, err := call(ctx, mc, op, func(ctx context.Context, c *ethclient.Client) (struct{}, error) {
		return struct{}{}, fn(ctx, c)
	})

	return err
}

func (mc *MultiClient) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, mc, "ChainID", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
}

func (mc *MultiClient) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return call(ctx, mc, "BalanceAt", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, block)
	})
}

func (mc *MultiClient) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	return call(ctx, mc, "NonceAt", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.NonceAt(ctx, account, block)
	})
}

func (mc *MultiClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return call(ctx, mc, "PendingNonceAt", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

func (mc *MultiClient) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	return call(ctx, mc, "CodeAt", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CodeAt(ctx, account, block)
	})
}

func (mc *MultiClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return call(ctx, mc, "PendingCodeAt", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.PendingCodeAt(ctx, account)
	})
}

func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return call(ctx, mc, "CallContract", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ctx, msg, block)
	})
}

func (mc *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return call(ctx, mc, "HeaderByNumber", func(ctx context.Context, c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

func (mc *MultiClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return call(ctx, mc, "SuggestGasPrice", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

func (mc *MultiClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return call(ctx, mc, "SuggestGasTipCap", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ctx)
	})
}

func (mc *MultiClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return call(ctx, mc, "EstimateGas", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.EstimateGas(ctx, msg)
	})
}

func (mc *MultiClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return exec(ctx, mc, "SendTransaction", func(ctx context.Context, c *ethclient.Client) error {
		return c.SendTransaction(ctx, tx)
	})
}

func (mc *MultiClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return call(ctx, mc, "FilterLogs", func(ctx context.Context, c *ethclient.Client) ([]types.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

func (mc *MultiClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return call(ctx, mc, "SubscribeFilterLogs", func(ctx context.Context, c *ethclient.Client) (ethereum.Subscription, error) {
		return c.SubscribeFilterLogs(ctx, q, ch)
	})
}

func (mc *MultiClient) dial(ctx context.Context, r RPC) (*ethclient.Client, error) {
	endpoint, err := r.ToEndpoint()
	if err != nil {
		return nil, err
	}

	var client *ethclient.Client
	err = retry.Do(func() error {
		dialCtx, cancel := context.WithTimeout(ctx, mc.RetryConfig.DialTimeout)
		defer cancel()

		mc.lggr.Debugw("Dialing RPC", "rpc", r.Name, "endpoint", endpoint)
		client, err = ethclient.DialContext(dialCtx, endpoint)

		return err
	},
		retry.Attempts(mc.RetryConfig.DialAttempts),
		retry.Delay(mc.RetryConfig.DialDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial endpoint %q for RPC %s: %w", endpoint, r.Name, err)
	}

	return client, nil
}

// ensureTimeout keeps the deadline of parent when it has one and applies timeout otherwise.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok || timeout <= 0 {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}

// reorderRPCs makes the client at index (as returned by clients) the preferred one. The
// clients ahead of it rotate to the end of the backups.
func (mc *MultiClient) reorderRPCs(index int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if index < 1 || index > len(mc.Backups) {
		return
	}

	all := append([]*ethclient.Client{mc.Client}, mc.Backups...)
	rotated := append(all[index:len(all):len(all)], all[:index]...)

	mc.Client = rotated[0]
	mc.Backups = rotated[1:]
}

func (mc *MultiClient) clients() []*ethclient.Client {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return append([]*ethclient.Client{mc.Client}, mc.Backups...)
}

// IsRPCError reports whether err carries a JSON-RPC error response from the node, as opposed to
// a transport failure.
func IsRPCError(err error) bool {
	var rerr rpc.Error

	return errors.As(err, &rerr)
}

func maybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
