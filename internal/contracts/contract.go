package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/compose-network/zksync-devkit/internal/compiler"
	"github.com/compose-network/zksync-devkit/internal/infra/filesystem"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	// Artifact is the persisted form of a compiled contract.
	Artifact struct {
		ContractName   string          `json:"contractName"`
		ABI            json.RawMessage `json:"abi"`
		Bytecode       hexutil.Bytes   `json:"bytecode"`
		SourceCode     string          `json:"sourceCode"`
		ZkvyperVersion string          `json:"zkvyperVersion"`
		CompilerArgs   []string        `json:"compilerArgs,omitempty"`
	}

	// Contract is an artifact with its parsed ABI.
	Contract struct {
		Artifact
		Parsed abi.ABI
	}
)

// FromOutput wraps a compiler output.
func FromOutput(out *compiler.Output) (*Contract, error) {
	version := ""
	if out.ZkvyperVersion != nil {
		version = out.ZkvyperVersion.Original()
	}

	return NewContract(Artifact{
		ContractName:   out.ContractName,
		ABI:            out.ABI,
		Bytecode:       out.Bytecode,
		SourceCode:     out.SourceCode,
		ZkvyperVersion: version,
		CompilerArgs:   out.CompilerArgs,
	})
}

func NewContract(artifact Artifact) (*Contract, error) {
	rawABI := artifact.ABI
	if len(rawABI) == 0 {
		rawABI = json.RawMessage("[]")
	}

	parsed, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI for %s: %w", artifact.ContractName, err)
	}

	return &Contract{Artifact: artifact, Parsed: parsed}, nil
}

// ArtifactPath is where the artifact of name is stored under dir.
func ArtifactPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

func SaveArtifact(w filesystem.Writer, dir string, c *Contract) (string, error) {
	path := ArtifactPath(dir, c.ContractName)
	if err := w.WriteJSON(path, c.Artifact); err != nil {
		return "", fmt.Errorf("failed to write artifact for %s: %w", c.ContractName, err)
	}
	return path, nil
}

func LoadArtifact(r filesystem.Reader, path string) (*Contract, error) {
	var artifact Artifact
	if err := r.ReadJSON(path, &artifact); err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return NewContract(artifact)
}
