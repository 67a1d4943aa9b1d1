package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/whispernft/whisper-deployments/pkg/logger"
)

// buildInfoDir is the directory in the artifacts directory holding the compiler inputs and
// outputs, which is not searched for contract artifacts.
const buildInfoDir = "build-info"

// debugFile is the sibling of an artifact which points at its build info.
type debugFile struct {
	Format    string `json:"_format"`
	BuildInfo string `json:"buildInfo"`
}

// buildInfo holds the fields of a Hardhat build info file used by the resolver.
type buildInfo struct {
	SolcVersion     string `json:"solcVersion"`
	SolcLongVersion string `json:"solcLongVersion"`
}

// Resolver finds artifacts by contract name in a Hardhat artifacts directory.
type Resolver struct {
	dir  string
	lggr logger.Logger

	compilerVersion *semver.Version
	constraint      *semver.Constraints
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver) error

// WithCompilerVersion requires artifacts to be compiled with a patch compatible compiler, i.e.
// one which satisfies ~major.minor.patch of version. Artifacts without build info are not
// checked.
func WithCompilerVersion(version string) ResolverOption {
	return func(r *Resolver) error {
		v, err := semver.NewVersion(version)
		if err != nil {
			return fmt.Errorf("invalid compiler version %q: %w", version, err)
		}

		c, err := semver.NewConstraint("~" + v.String())
		if err != nil {
			return fmt.Errorf("invalid compiler constraint for %q: %w", version, err)
		}

		r.compilerVersion = v
		r.constraint = c

		return nil
	}
}

// WithLogger sets the logger of the resolver.
func WithLogger(lggr logger.Logger) ResolverOption {
	return func(r *Resolver) error {
		r.lggr = lggr.Named("artifact")

		return nil
	}
}

// NewResolver creates a resolver for the artifacts directory dir.
func NewResolver(dir string, opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{
		dir:  dir,
		lggr: logger.Nop(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Dir returns the artifacts directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve finds the artifact for name, which is either a bare contract name such as
// "WhisperNFT" or a fully qualified one such as "contracts/WhisperNFT.sol:WhisperNFT".
func (r *Resolver) Resolve(name string) (*Artifact, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: contract name is empty", ErrArtifactNotFound)
	}

	info, err := os.Stat(r.dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: artifacts directory %s does not exist, compile the contracts first",
			ErrArtifactNotFound, r.dir,
		)
	}

	path, err := r.find(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	a, err := parseArtifact(path, data)
	if err != nil {
		return nil, err
	}

	if err := r.checkCompiler(a); err != nil {
		return nil, err
	}

	r.lggr.Debugw("Resolved artifact",
		"contract", a.FullyQualifiedName(),
		"path", a.Path,
		"solcVersion", a.SolcVersion,
	)

	return a, nil
}

// find returns the path of the artifact file for name.
func (r *Resolver) find(name string) (string, error) {
	if source, contract, ok := strings.Cut(name, ":"); ok {
		path := filepath.Join(r.dir, filepath.FromSlash(source), contract+".json")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}

		return path, nil
	}

	var matches []string
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != r.dir && d.Name() == buildInfoDir {
				return filepath.SkipDir
			}

			return nil
		}

		if d.Name() == name+".json" {
			matches = append(matches, path)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search artifacts in %s: %w", r.dir, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, r.dir)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, r.qualifiedName(m))
		}
		slices.Sort(names)

		return "", fmt.Errorf("%w: %s matches %s, use a fully qualified name",
			ErrAmbiguousArtifact, name, strings.Join(names, ", "),
		)
	}
}

// qualifiedName derives the sourceName:contractName form from an artifact path.
func (r *Resolver) qualifiedName(path string) string {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return path
	}

	source, file := filepath.Split(filepath.ToSlash(rel))

	return strings.TrimSuffix(source, "/") + ":" + strings.TrimSuffix(file, ".json")
}

// checkCompiler reads the build info of the artifact, records its compiler version and checks
// it against the configured constraint.
func (r *Resolver) checkCompiler(a *Artifact) error {
	version, err := readSolcVersion(a.Path)
	if err != nil {
		return err
	}

	if version == "" {
		if r.constraint != nil {
			r.lggr.Warnw("No build info found, skipping compiler version check",
				"contract", a.FullyQualifiedName(),
			)
		}

		return nil
	}

	a.SolcVersion = version

	if r.constraint == nil {
		return nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %s has invalid solc version %q: %w",
			ErrInvalidArtifact, a.FullyQualifiedName(), version, err,
		)
	}

	if !r.constraint.Check(v) {
		return fmt.Errorf("%w: %s was compiled with solc %s, expected ~%s",
			ErrCompilerMismatch, a.FullyQualifiedName(), v, r.compilerVersion,
		)
	}

	return nil
}

// readSolcVersion follows the debug file of the artifact at path to its build info and returns
// the compiler version without the commit suffix. It returns an empty version when either file
// does not exist.
func readSolcVersion(path string) (string, error) {
	dbgPath := strings.TrimSuffix(path, ".json") + ".dbg.json"

	data, err := os.ReadFile(dbgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read debug file %s: %w", dbgPath, err)
	}

	var dbg debugFile
	if err = json.Unmarshal(data, &dbg); err != nil {
		return "", fmt.Errorf("%w: failed to parse debug file %s: %w", ErrInvalidArtifact, dbgPath, err)
	}

	if dbg.BuildInfo == "" {
		return "", nil
	}

	biPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))

	data, err = os.ReadFile(biPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read build info %s: %w", biPath, err)
	}

	var bi buildInfo
	if err = json.Unmarshal(data, &bi); err != nil {
		return "", fmt.Errorf("%w: failed to parse build info %s: %w", ErrInvalidArtifact, biPath, err)
	}

	version := bi.SolcVersion
	if version == "" {
		version = bi.SolcLongVersion
	}

	// 0.8.24+commit.e11b9ed9
	version, _, _ = strings.Cut(version, "+")

	return version, nil
}
