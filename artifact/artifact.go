// Package artifact reads the contract artifacts produced by Hardhat.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FormatHardhatArtifact is the format marker of Hardhat contract artifacts.
const FormatHardhatArtifact = "hh-sol-artifact-1"

var (
	// ErrArtifactNotFound is returned when no artifact matches the requested contract.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrAmbiguousArtifact is returned when more than one artifact matches a bare contract name.
	ErrAmbiguousArtifact = errors.New("ambiguous artifact")
	// ErrInvalidArtifact is returned when an artifact cannot be parsed or holds unusable data.
	ErrInvalidArtifact = errors.New("invalid artifact")
	// ErrCompilerMismatch is returned when the artifact was built with an incompatible compiler.
	ErrCompilerMismatch = errors.New("compiler version mismatch")
)

// LinkReference is the position of an unlinked library address in the bytecode.
type LinkReference struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Artifact is a compiled contract as written by Hardhat to
// artifacts/<sourceName>/<contractName>.json.
type Artifact struct {
	Format           string                                `json:"_format"`
	ContractName     string                                `json:"contractName"`
	SourceName       string                                `json:"sourceName"`
	ABI              json.RawMessage                       `json:"abi"`
	RawBytecode      string                                `json:"bytecode"`
	DeployedBytecode string                                `json:"deployedBytecode"`
	LinkReferences   map[string]map[string][]LinkReference `json:"linkReferences"`

	// Path is the file the artifact was read from.
	Path string `json:"-"`
	// SolcVersion is the compiler version from the build info. Empty when the build info is
	// not available.
	SolcVersion string `json:"-"`
}

// FullyQualifiedName returns the name in the sourceName:contractName form.
func (a *Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

// ParsedABI parses the ABI of the artifact.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	if len(a.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("%w: %s has no abi", ErrInvalidArtifact, a.FullyQualifiedName())
	}

	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: failed to parse abi of %s: %w",
			ErrInvalidArtifact, a.FullyQualifiedName(), err,
		)
	}

	return parsed, nil
}

// Bytecode returns the decoded creation bytecode. Abstract contracts and interfaces have no
// bytecode, and bytecode with unlinked library placeholders cannot be deployed as is; both are
// rejected.
func (a *Artifact) Bytecode() ([]byte, error) {
	raw := strings.TrimSpace(a.RawBytecode)
	if raw == "" || raw == "0x" {
		return nil, fmt.Errorf("%w: %s has empty bytecode, it may be abstract or an interface",
			ErrInvalidArtifact, a.FullyQualifiedName(),
		)
	}

	if strings.Contains(raw, "__$") || len(a.LinkReferences) > 0 {
		return nil, fmt.Errorf("%w: %s has unlinked library references",
			ErrInvalidArtifact, a.FullyQualifiedName(),
		)
	}

	if !strings.HasPrefix(raw, "0x") {
		raw = "0x" + raw
	}

	code, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode bytecode of %s: %w",
			ErrInvalidArtifact, a.FullyQualifiedName(), err,
		)
	}

	return code, nil
}

// parseArtifact decodes and checks an artifact file.
func parseArtifact(path string, data []byte) (*Artifact, error) {
	a := &Artifact{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidArtifact, path, err)
	}

	if a.Format != FormatHardhatArtifact {
		return nil, fmt.Errorf("%w: %s has format %q, expected %q",
			ErrInvalidArtifact, path, a.Format, FormatHardhatArtifact,
		)
	}

	if a.ContractName == "" {
		return nil, fmt.Errorf("%w: %s has no contract name", ErrInvalidArtifact, path)
	}

	a.Path = path

	return a, nil
}
