package evm

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispernft/whisper-deployments/internal/testutils/fakerpc"
	"github.com/whispernft/whisper-deployments/pkg/logger"
)

// Helper RPC server that always answers with a non JSON-RPC HTTP failure
func newBrokenRPCServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestMultiClient(t *testing.T) {
	t.Parallel()

	node := fakerpc.New(t, 2810)
	lggr := logger.Test(t)

	mc, err := NewMultiClient(t.Context(), lggr, RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "primary", HTTPURL: node.URL, PreferredURLScheme: URLSchemePreferenceHTTP},
	}})
	require.NoError(t, err)
	require.NotNil(t, mc)

	assert.Equal(t, "morphTestnet", mc.chainName)
	assert.Equal(t, DefaultRetryConfig(), mc.RetryConfig)
	assert.Empty(t, mc.Backups)

	// Expect error if no RPCs provided.
	_, err = NewMultiClient(t.Context(), lggr, RPCConfig{ChainName: "morphTestnet"})
	require.ErrorContains(t, err, "no RPCs provided")

	// Expect second client to be set as backup.
	mc, err = NewMultiClient(t.Context(), lggr, RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "primary", HTTPURL: node.URL},
		{Name: "backup", HTTPURL: node.URL},
	}})
	require.NoError(t, err)
	assert.Len(t, mc.Backups, 1)
}

func TestMultiClient_SkipsUnhealthyRPCs(t *testing.T) {
	t.Parallel()

	var (
		node   = fakerpc.New(t, 2810)
		broken = newBrokenRPCServer(t)
		lggr   = logger.Test(t)
	)

	mc, err := NewMultiClient(t.Context(), lggr, RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "broken", HTTPURL: broken.URL},
		{Name: "healthy", HTTPURL: node.URL},
	}})
	require.NoError(t, err)
	assert.Empty(t, mc.Backups)

	_, err = NewMultiClient(t.Context(), lggr, RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "broken", HTTPURL: broken.URL},
	}})
	require.ErrorContains(t, err, "no valid RPC clients created")
}

func TestMultiClient_BalanceAt(t *testing.T) {
	t.Parallel()

	node := fakerpc.New(t, 2810)
	node.Handle("eth_getBalance", fakerpc.Result("0x1bc16d674ec80000"))

	mc, err := NewMultiClient(t.Context(), logger.Test(t), RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "primary", HTTPURL: node.URL},
	}})
	require.NoError(t, err)

	balance, err := mc.BalanceAt(t.Context(), common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", balance.String())

	id, err := mc.ChainID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(2810), id.Uint64())
}

func TestMultiClient_RPCErrorIsNotFailedOver(t *testing.T) {
	t.Parallel()

	var (
		primary = fakerpc.New(t, 2810)
		backup  = fakerpc.New(t, 2810)
	)
	primary.Handle("eth_estimateGas", fakerpc.Fail(-32000, "insufficient funds for gas * price + value"))
	backup.Handle("eth_estimateGas", fakerpc.Result("0x5208"))

	mc, err := NewMultiClient(t.Context(), logger.Test(t), RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "primary", HTTPURL: primary.URL},
		{Name: "backup", HTTPURL: backup.URL},
	}})
	require.NoError(t, err)

	_, err = mc.EstimateGas(t.Context(), ethereum.CallMsg{})
	require.ErrorContains(t, err, "insufficient funds for gas * price + value")
	assert.True(t, IsRPCError(err))
	assert.Equal(t, 1, primary.Calls("eth_estimateGas"))
	assert.Equal(t, 0, backup.Calls("eth_estimateGas"))
}

func TestMultiClient_FailsOverOnTransportError(t *testing.T) {
	t.Parallel()

	var (
		primary = fakerpc.New(t, 2810)
		backup  = fakerpc.New(t, 2810)
	)
	backup.Handle("eth_getBalance", fakerpc.Result("0x2a"))

	mc, err := NewMultiClient(t.Context(), logger.Test(t), RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "primary", HTTPURL: primary.URL},
		{Name: "backup", HTTPURL: backup.URL},
	}})
	require.NoError(t, err)
	first := mc.Client

	// The primary goes away after the health check.
	primary.Close()

	balance, err := mc.BalanceAt(t.Context(), common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())
	assert.NotSame(t, first, mc.Client, "the backup is promoted")
	assert.Same(t, first, mc.Backups[0])
}

func TestMultiClient_WithRetryConfig(t *testing.T) {
	t.Parallel()

	node := fakerpc.New(t, 2810)
	cfg := RetryConfig{Attempts: 3, Delay: time.Millisecond, DialAttempts: 2, DialDelay: time.Millisecond}

	mc, err := NewMultiClient(t.Context(), logger.Test(t), RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "primary", HTTPURL: node.URL},
	}}, WithRetryConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, cfg, mc.RetryConfig)
}

func TestMultiClient_reorderRPCs(t *testing.T) {
	t.Parallel()

	node := fakerpc.New(t, 2810)

	mc, err := NewMultiClient(t.Context(), logger.Test(t), RPCConfig{ChainName: "morphTestnet", RPCs: []RPC{
		{Name: "a", HTTPURL: node.URL},
		{Name: "b", HTTPURL: node.URL},
		{Name: "c", HTTPURL: node.URL},
	}})
	require.NoError(t, err)

	a, b, c := mc.Client, mc.Backups[0], mc.Backups[1]

	mc.reorderRPCs(0)
	assert.Same(t, a, mc.Client)

	mc.reorderRPCs(5)
	assert.Same(t, a, mc.Client)

	mc.reorderRPCs(2)
	assert.Same(t, c, mc.Client)
	require.Len(t, mc.Backups, 2)
	assert.Same(t, a, mc.Backups[0])
	assert.Same(t, b, mc.Backups[1])

	mc.reorderRPCs(1)
	assert.Same(t, a, mc.Client)
	assert.Equal(t, []*ethclient.Client{b, c}, mc.Backups)
}

func TestRPC_ToEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    RPC
		want    string
		wantErr string
	}{
		{
			name: "http preferred",
			give: RPC{Name: "a", HTTPURL: "http://localhost:8545", WSURL: "ws://localhost:8546", PreferredURLScheme: URLSchemePreferenceHTTP},
			want: "http://localhost:8545",
		},
		{
			name: "ws preferred",
			give: RPC{Name: "a", HTTPURL: "http://localhost:8545", WSURL: "ws://localhost:8546", PreferredURLScheme: URLSchemePreferenceWS},
			want: "ws://localhost:8546",
		},
		{
			name: "no preference falls back to http",
			give: RPC{Name: "a", HTTPURL: "http://localhost:8545"},
			want: "http://localhost:8545",
		},
		{
			name:    "ws preferred without ws url",
			give:    RPC{Name: "a", HTTPURL: "http://localhost:8545", PreferredURLScheme: URLSchemePreferenceWS},
			wantErr: "prefers websocket but has no ws url",
		},
		{
			name:    "missing http url",
			give:    RPC{Name: "a"},
			wantErr: "has no http url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.give.ToEndpoint()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLSchemePreferenceFromString(t *testing.T) {
	t.Parallel()

	for give, want := range map[string]URLSchemePreference{
		"":      URLSchemePreferenceHTTP,
		"http":  URLSchemePreferenceHTTP,
		"HTTPS": URLSchemePreferenceHTTP,
		"ws":    URLSchemePreferenceWS,
		"wss":   URLSchemePreferenceWS,
	} {
		got, err := URLSchemePreferenceFromString(give)
		require.NoError(t, err)
		assert.Equal(t, want, got, give)
	}

	_, err := URLSchemePreferenceFromString("grpc")
	require.Error(t, err)
}
