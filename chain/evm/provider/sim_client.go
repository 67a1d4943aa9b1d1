package provider

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"

	"github.com/whispernft/whisper-deployments/chain/evm"
)

var _ evm.OnchainClient = (*SimClient)(nil)

// SimClient wraps a simulated backend so it can serve as the client of an evm.Chain, while still
// exposing the block production controls of the backend to tests.
type SimClient struct {
	mu sync.Mutex

	simulated.Client
	sim *simulated.Backend
}

// NewSimClient creates a new SimClient from a simulated backend.
func NewSimClient(t *testing.T, sim *simulated.Backend) *SimClient {
	t.Helper()

	require.NotNil(t, sim, "simulated backend must not be nil")

	return &SimClient{
		sim:    sim,
		Client: sim.Client(),
	}
}

// Commit seals a block containing all pending transactions and returns its hash.
func (b *SimClient) Commit() common.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sim.Commit()
}

// Rollback drops all pending transactions, as if the node never received them.
func (b *SimClient) Rollback() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sim.Rollback()
}

// AdjustTime moves the timestamp of the pending block forward.
func (b *SimClient) AdjustTime(d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sim.AdjustTime(d)
}
