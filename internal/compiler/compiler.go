package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/compose-network/zksync-devkit/configs"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrVyperNotFound = errors.New("vyper executable not found")
	ErrVersion       = errors.New("could not parse zkvyper version")

	versionPattern = regexp.MustCompile(`\b(v\d+\.\d+\.\d+\S*)`)
)

// Output is the combined_json result of one contract.
type Output struct {
	ContractName   string
	SourceCode     string
	ZkvyperVersion *semver.Version
	CompilerArgs   []string
	Bytecode       []byte

	ABI               json.RawMessage
	MethodIdentifiers map[string]string
	BytecodeRuntime   string
	Warnings          []json.RawMessage
	FactoryDeps       json.RawMessage

	// zkvyper 1.5.3 and later
	Layout  json.RawMessage
	Userdoc json.RawMessage
	Devdoc  json.RawMessage
}

// contractOutput is the JSON shape of a single contract entry.
type contractOutput struct {
	Bytecode          string            `json:"bytecode"`
	ABI               json.RawMessage   `json:"abi"`
	MethodIdentifiers map[string]string `json:"method_identifiers"`
	BytecodeRuntime   string            `json:"bytecode_runtime"`
	Warnings          []json.RawMessage `json:"warnings"`
	FactoryDeps       json.RawMessage   `json:"factory_deps"`
	Layout            json.RawMessage   `json:"layout"`
	Userdoc           json.RawMessage   `json:"userdoc"`
	Devdoc            json.RawMessage   `json:"devdoc"`
}

// Compiler runs zkvyper against the vyper executable it was configured with.
type Compiler struct {
	zkvyperPath string
	vyperPath   string
	args        []string
	logger      *slog.Logger
}

func New(cfg configs.Compiler) *Compiler {
	zkvyperPath := cfg.ZkvyperPath
	if zkvyperPath == "" {
		zkvyperPath = "zkvyper"
	}

	return &Compiler{
		zkvyperPath: zkvyperPath,
		vyperPath:   cfg.VyperPath,
		args:        cfg.Args,
		logger:      logger.Named("zkvyper_compiler"),
	}
}

// CompileSource compiles source under name. A name that points to an
// existing file is compiled in place and named after its stem; anything
// else is written to a temporary name.vy first.
func (c *Compiler) CompileSource(ctx context.Context, source, name string) (*Output, error) {
	if _, err := os.Stat(name); err == nil {
		contractName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		return c.Compile(ctx, contractName, name, source)
	}

	dir, err := os.MkdirTemp("", "zkvyper-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, name+".vy")
	if err := os.WriteFile(filename, []byte(source), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", filename, err)
	}

	return c.Compile(ctx, name, filename, source)
}

// CompileFile compiles the contract at path.
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Output, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	contractName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return c.Compile(ctx, contractName, path, string(source))
}

// Compile runs zkvyper with combined_json output on filename.
func (c *Compiler) Compile(ctx context.Context, contractName, filename, source string) (*Output, error) {
	vyperPath, err := c.resolveVyper()
	if err != nil {
		return nil, err
	}

	c.logger.
		With("contract", contractName).
		With("file", filename).
		With("vyper", vyperPath).
		Info("compiling contract")

	args := []string{"--vyper", vyperPath, "-f", "combined_json"}
	args = append(args, c.args...)
	args = append(args, "--", filename)

	stdout, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", contractName, err)
	}

	var combined map[string]json.RawMessage
	if err := json.Unmarshal(stdout, &combined); err != nil {
		return nil, fmt.Errorf("failed to parse zkvyper output: %w", err)
	}

	raw, err := ContractOutput(combined)
	if err != nil {
		return nil, err
	}

	var contract contractOutput
	if err := json.Unmarshal(raw, &contract); err != nil {
		return nil, fmt.Errorf("failed to parse contract output: %w", err)
	}

	if len(contract.ABI) > 0 {
		if _, err := abi.JSON(bytes.NewReader(contract.ABI)); err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", contractName, err)
		}
	}

	version, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.With("contract", contractName).With("zkvyper", version.Original()).Info("contract compiled")

	return &Output{
		ContractName:      contractName,
		SourceCode:        source,
		ZkvyperVersion:    version,
		CompilerArgs:      c.args,
		Bytecode:          common.FromHex(contract.Bytecode),
		ABI:               contract.ABI,
		MethodIdentifiers: contract.MethodIdentifiers,
		BytecodeRuntime:   contract.BytecodeRuntime,
		Warnings:          contract.Warnings,
		FactoryDeps:       contract.FactoryDeps,
		Layout:            contract.Layout,
		Userdoc:           contract.Userdoc,
		Devdoc:            contract.Devdoc,
	}, nil
}

// VyperVersion returns the version reported by the vyper executable zkvyper
// is pointed at.
func (c *Compiler) VyperVersion(ctx context.Context) (string, error) {
	vyperPath, err := c.resolveVyper()
	if err != nil {
		return "", err
	}

	out, err := exec.CommandContext(ctx, vyperPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get vyper version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Version returns the version reported by zkvyper --version.
func (c *Compiler) Version(ctx context.Context) (*semver.Version, error) {
	stdout, err := c.run(ctx, "--version")
	if err != nil {
		return nil, err
	}
	return ParseVersion(string(stdout))
}

// ParseVersion extracts the first vX.Y.Z token from zkvyper's version banner.
func ParseVersion(output string) (*semver.Version, error) {
	match := versionPattern.FindString(output)
	if match == "" {
		return nil, fmt.Errorf("%w from %q", ErrVersion, strings.TrimSpace(output))
	}

	version, err := semver.NewVersion(match)
	if err != nil {
		return nil, fmt.Errorf("%w from %q: %w", ErrVersion, match, err)
	}
	return version, nil
}

func (c *Compiler) resolveVyper() (string, error) {
	if c.vyperPath != "" {
		return c.vyperPath, nil
	}
	path, err := exec.LookPath("vyper")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVyperNotFound, err)
	}
	return path, nil
}

func (c *Compiler) run(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.zkvyperPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.With("args", strings.Join(args, " ")).Debug("running zkvyper")

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("zkvyper failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("zkvyper failed: %w", err)
	}

	return stdout.Bytes(), nil
}
