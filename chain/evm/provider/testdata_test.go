package provider

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Defines a general test EVM address
var (
	testAddr1 = common.HexToAddress("0xc1d6fEcd5D09Ad67cF5E0FC9633D89759DD84271")
)

// Defines standard variables for a test chain.
var (
	testChainID    uint64 = 2810                                // Morph Holesky
	testChainIDBig        = new(big.Int).SetUint64(testChainID) // Defines the testChainID in *big.Int format
	testGasPrice          = big.NewInt(2_000_000_000)           // 2 gwei
)

// testInitCode is the creation bytecode of a contract whose runtime code returns 42.
const testInitCode = "600a600c600039600a6000f3602a60005260206000f3"

// testRevertingInitCode is creation bytecode which always reverts.
const testRevertingInitCode = "60006000fd"
