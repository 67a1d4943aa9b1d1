package deployment

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispernft/whisper-deployments/artifact"
	"github.com/whispernft/whisper-deployments/chain/evm"
	"github.com/whispernft/whisper-deployments/chain/evm/provider"
	"github.com/whispernft/whisper-deployments/internal/testutils/fakerpc"
	"github.com/whispernft/whisper-deployments/internal/testutils/hhartifacts"
	"github.com/whispernft/whisper-deployments/pkg/logger"
)

const (
	morphHoleskyChainID uint64 = 2810
	// twoEther is 2 ETH in wei, as returned by the node for eth_getBalance.
	twoEther = "0x1bc16d674ec80000"
)

var fixedGasPrice = big.NewInt(2_000_000_000)

// newFakeNode starts a node which accepts a deployment from a fresh account.
func newFakeNode(t *testing.T) *fakerpc.Server {
	t.Helper()

	node := fakerpc.New(t, morphHoleskyChainID)
	node.Handle("eth_getBalance", fakerpc.Result(twoEther))
	node.Handle("eth_getTransactionCount", fakerpc.Result("0x0"))
	node.Handle("eth_estimateGas", fakerpc.Result("0x186a0"))
	node.Handle("eth_sendRawTransaction", fakerpc.Result("0x"+common.Bytes2Hex(make([]byte, 32))))
	node.Handle("eth_getTransactionReceipt", fakerpc.Receipt(1, 7))

	return node
}

// newRPCChain initializes a chain against node the way the CLI does.
func newRPCChain(ctx context.Context, t *testing.T, node *fakerpc.Server, hexKey string) evm.Chain {
	t.Helper()

	p := provider.NewRPCChainProvider("morphTestnet", provider.RPCChainProviderConfig{
		DeployerTransactorGen: provider.TransactorFromRaw(hexKey, provider.WithGasPrice(fixedGasPrice)),
		RPCs: []evm.RPC{{
			Name:               "fake",
			HTTPURL:            node.URL,
			PreferredURLScheme: evm.URLSchemePreferenceHTTP,
		}},
		ConfirmFunctor: provider.ConfirmFuncGeth(0, provider.WithTickInterval(10*time.Millisecond)),
		Logger:         logger.Test(t),
	})

	chain, err := p.Initialize(ctx)
	require.NoError(t, err)

	return chain
}

func newKey(t *testing.T) (string, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return hexutil.Encode(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func whisperNFTResolver(t *testing.T) *artifactResolverStub {
	t.Helper()

	return &artifactResolverStub{resolver: newResolver(t, hhartifacts.Contract{
		SourceName:  "contracts/WhisperNFT.sol",
		Name:        "WhisperNFT",
		SolcVersion: "0.8.24",
	})}
}

func Test_Deployer_Deploy_RPC(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)

	var (
		mu     sync.Mutex
		sentTx *types.Transaction
	)
	node.Handle("eth_sendRawTransaction", func(params json.RawMessage) (any, *fakerpc.Error) {
		var args []string
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
			return nil, &fakerpc.Error{Code: -32602, Message: "invalid params"}
		}

		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(common.FromHex(args[0])); err != nil {
			return nil, &fakerpc.Error{Code: -32602, Message: err.Error()}
		}

		mu.Lock()
		sentTx = tx
		mu.Unlock()

		return tx.Hash().Hex(), nil
	})

	hexKey, from := newKey(t)
	chain := newRPCChain(t.Context(), t, node, hexKey)
	resolver := whisperNFTResolver(t)

	got, err := New(logger.Test(t), chain, resolver).Deploy(t.Context(), "WhisperNFT")
	require.NoError(t, err)

	assert.Equal(t, "2000000000000000000", got.Balance.String())
	assert.Equal(t, from, got.Deployer)
	assert.Equal(t, crypto.CreateAddress(from, 0), got.Address)
	assert.Equal(t, uint64(7), got.BlockNumber)
	assert.Equal(t, "morphTestnet", got.Network)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, sentTx)
	assert.Nil(t, sentTx.To(), "expected a contract creation")
	assert.Equal(t, fixedGasPrice, sentTx.GasPrice())
	assert.Equal(t, uint64(100_000), sentTx.Gas())
	assert.Equal(t, big.NewInt(int64(morphHoleskyChainID)), sentTx.ChainId())
	assert.Equal(t, hhartifacts.ReturnsFortyTwoInitCode, hexutil.Encode(sentTx.Data()))
	assert.Equal(t, got.TxHash, sentTx.Hash())

	assert.Equal(t, 1, node.Calls("eth_sendRawTransaction"))
	assert.Equal(t, 1, resolver.calls)
}

func Test_Deployer_Deploy_RPC_Rejected(t *testing.T) {
	t.Parallel()

	const reason = "insufficient funds for gas * price + value: balance 0, tx cost 200000000000000"

	node := newFakeNode(t)
	node.Handle("eth_sendRawTransaction", fakerpc.Fail(-32000, reason))

	hexKey, _ := newKey(t)
	chain := newRPCChain(t.Context(), t, node, hexKey)

	got, err := New(logger.Test(t), chain, whisperNFTResolver(t)).Deploy(t.Context(), "WhisperNFT")
	require.Error(t, err)
	assert.Nil(t, got)

	require.ErrorIs(t, err, ErrChainRejected)
	require.ErrorContains(t, err, reason)
	assert.Equal(t, 1, node.Calls("eth_sendRawTransaction"), "the transaction must not be retried")
	assert.Zero(t, node.Calls("eth_getTransactionReceipt"))
}

func Test_Deployer_Deploy_RPC_NeverConfirms(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	node.Handle("eth_getTransactionReceipt", fakerpc.Null())

	hexKey, _ := newKey(t)
	chain := newRPCChain(t.Context(), t, node, hexKey)

	const wait = 300 * time.Millisecond
	ctx, cancel := context.WithTimeout(t.Context(), wait)
	defer cancel()

	start := time.Now()
	got, err := New(logger.Test(t), chain, whisperNFTResolver(t)).Deploy(ctx, "WhisperNFT")
	require.Error(t, err)
	assert.Nil(t, got)

	assert.GreaterOrEqual(t, time.Since(start), wait, "the deployer must wait until the context is done")
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, node.Calls("eth_getTransactionReceipt"))
	assert.Equal(t, 1, node.Calls("eth_sendRawTransaction"))
}

func Test_Deployer_Deploy_RPC_Reverted(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	node.Handle("eth_getTransactionReceipt", fakerpc.Receipt(0, 7))
	node.Handle("eth_call", fakerpc.Fail(3, "execution reverted: Ownable: caller is not the owner"))

	hexKey, _ := newKey(t)
	chain := newRPCChain(t.Context(), t, node, hexKey)

	_, err := New(logger.Test(t), chain, whisperNFTResolver(t)).Deploy(t.Context(), "WhisperNFT")
	require.ErrorIs(t, err, ErrChainRejected)
	require.ErrorIs(t, err, provider.ErrTxReverted)
	require.ErrorContains(t, err, "Ownable: caller is not the owner")
}

func Test_Deployer_Deploy_RPC_RevertedWithData(t *testing.T) {
	t.Parallel()

	const reason = "Ownable: caller is not the owner"

	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	require.NoError(t, err)
	data := hexutil.Encode(append(common.FromHex("0x08c379a0"), packed...))

	node := newFakeNode(t)
	node.Handle("eth_getTransactionReceipt", fakerpc.Receipt(0, 7))
	node.Handle("eth_call", func(json.RawMessage) (any, *fakerpc.Error) {
		return nil, &fakerpc.Error{Code: 3, Message: "execution reverted", Data: data}
	})

	hexKey, _ := newKey(t)
	chain := newRPCChain(t.Context(), t, node, hexKey)

	_, err = New(logger.Test(t), chain, whisperNFTResolver(t)).Deploy(t.Context(), "WhisperNFT")
	require.ErrorIs(t, err, ErrChainRejected)
	require.ErrorIs(t, err, provider.ErrTxReverted)
	require.ErrorContains(t, err, reason)
	assert.NotContains(t, err.Error(), "0x08c379a0")
}

func Test_Deployer_Deploy_RPC_StopsPollingOnReturn(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	node.Handle("eth_getTransactionReceipt", fakerpc.Null())

	hexKey, _ := newKey(t)
	// The chain outlives the deployment.
	chain := newRPCChain(context.Background(), t, node, hexKey)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	_, err := New(logger.Test(t), chain, whisperNFTResolver(t)).Deploy(ctx, "WhisperNFT")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	polls := node.Calls("eth_getTransactionReceipt")
	require.Positive(t, polls)

	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, node.Calls("eth_getTransactionReceipt"), polls+1, "receipt polling must stop with Deploy")
}

func Test_Deployer_Deploy_RPC_NodeUnreachable(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)

	hexKey, _ := newKey(t)
	chain := newRPCChain(t.Context(), t, node, hexKey)

	node.Close()

	_, err := New(logger.Test(t), chain, whisperNFTResolver(t)).Deploy(t.Context(), "WhisperNFT")
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorContains(t, err, "fetch balance")
}

// artifactResolverStub counts the lookups of a real resolver.
type artifactResolverStub struct {
	resolver ArtifactResolver
	calls    int
}

func (s *artifactResolverStub) Resolve(name string) (*artifact.Artifact, error) {
	s.calls++

	return s.resolver.Resolve(name)
}
