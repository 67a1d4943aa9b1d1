// Package hhartifacts writes Hardhat style artifact trees for tests.
package hhartifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	// ReturnsFortyTwoInitCode is creation bytecode whose runtime code returns 42.
	ReturnsFortyTwoInitCode = "0x600a600c600039600a6000f3602a60005260206000f3"
	// ReturnsFortyTwoRuntimeCode is the runtime code deployed by ReturnsFortyTwoInitCode.
	ReturnsFortyTwoRuntimeCode = "0x602a60005260206000f3"
	// RevertingInitCode is creation bytecode which always reverts.
	RevertingInitCode = "0x60006000fd"

	// NFTABI is a subset of the ABI of an ERC721 contract without constructor arguments.
	NFTABI = `[
  {"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
  {"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"from","type":"address"},{"indexed":true,"internalType":"address","name":"to","type":"address"},{"indexed":true,"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"Transfer","type":"event"}
]`
)

// Contract describes an artifact to write.
type Contract struct {
	// SourceName is the source path, e.g. "contracts/WhisperNFT.sol".
	SourceName string
	// Name is the contract name, e.g. "WhisperNFT".
	Name string
	// ABI defaults to NFTABI.
	ABI string
	// Bytecode defaults to ReturnsFortyTwoInitCode. Use "0x" for an abstract contract.
	Bytecode string
	// SolcVersion is written to the build info. No debug file or build info is written when
	// empty.
	SolcVersion string
}

// Write writes the artifact of c into the artifacts directory dir and returns the path of the
// artifact file.
func Write(t *testing.T, dir string, c Contract) string {
	t.Helper()

	if c.ABI == "" {
		c.ABI = NFTABI
	}
	if c.Bytecode == "" {
		c.Bytecode = ReturnsFortyTwoInitCode
	}

	contractDir := filepath.Join(dir, filepath.FromSlash(c.SourceName))
	require.NoError(t, os.MkdirAll(contractDir, 0o755))

	artifactPath := filepath.Join(contractDir, c.Name+".json")
	writeJSON(t, artifactPath, map[string]any{
		"_format":                "hh-sol-artifact-1",
		"contractName":           c.Name,
		"sourceName":             c.SourceName,
		"abi":                    json.RawMessage(c.ABI),
		"bytecode":               c.Bytecode,
		"deployedBytecode":       "0x",
		"linkReferences":         map[string]any{},
		"deployedLinkReferences": map[string]any{},
	})

	if c.SolcVersion == "" {
		return artifactPath
	}

	buildID := c.Name + "-build"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build-info"), 0o755))
	writeJSON(t, filepath.Join(dir, "build-info", buildID+".json"), map[string]any{
		"_format":         "hh-sol-build-info-1",
		"id":              buildID,
		"solcVersion":     c.SolcVersion,
		"solcLongVersion": c.SolcVersion + "+commit.e11b9ed9",
	})

	// The build info path is relative to the directory of the debug file.
	rel := strings.Repeat("../", len(strings.Split(c.SourceName, "/")))

	writeJSON(t, filepath.Join(contractDir, c.Name+".dbg.json"), map[string]any{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": rel + "build-info/" + buildID + ".json",
	})

	return artifactPath
}

// WhisperNFT writes the default WhisperNFT artifact compiled with solc 0.8.24 into dir.
func WhisperNFT(t *testing.T, dir string) string {
	t.Helper()

	return Write(t, dir, Contract{
		SourceName:  "contracts/WhisperNFT.sol",
		Name:        "WhisperNFT",
		SolcVersion: "0.8.24",
	})
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
