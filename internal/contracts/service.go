package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/zksync-devkit/internal/compiler"
	"github.com/compose-network/zksync-devkit/internal/env"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/compose-network/zksync-devkit/internal/verifier"
	"github.com/compose-network/zksync-devkit/internal/zksync"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNoVerifier = errors.New("no explorer configured")

type (
	DeployOptions struct {
		Sender *common.Address
		Salt   *common.Hash
		// Dependencies are the bytecodes of contracts the deployed one creates.
		Dependencies [][]byte
	}

	CallOptions struct {
		Sender *common.Address
		// Transact broadcasts the call as a transaction after the dry run.
		Transact bool
	}

	CallResult struct {
		Values      []any
		Computation *zksync.Computation
	}
)

// Service compiles, deploys, calls and verifies contracts against one
// environment.
type Service struct {
	env      *env.Env
	compiler *compiler.Compiler
	explorer *verifier.Explorer
	logger   *slog.Logger
}

func NewService(e *env.Env, c *compiler.Compiler, explorer *verifier.Explorer) *Service {
	return &Service{
		env:      e,
		compiler: c,
		explorer: explorer,
		logger:   logger.Named("contracts_service"),
	}
}

func (s *Service) Compile(ctx context.Context, path string) (*Contract, error) {
	out, err := s.compiler.CompileFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return FromOutput(out)
}

// Deploy packs the constructor arguments and deploys c.
func (s *Service) Deploy(ctx context.Context, c *Contract, args []any, opts DeployOptions) (*env.DeployResult, error) {
	calldata, err := c.Parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack constructor arguments for %s: %w", c.ContractName, err)
	}

	result, err := s.env.DeployCode(ctx, env.DeployParams{
		Sender:              opts.Sender,
		Bytecode:            c.Bytecode,
		ConstructorCalldata: calldata,
		DependencyBytecodes: opts.Dependencies,
		Salt:                opts.Salt,
		ContractName:        c.ContractName,
		ABI:                 c.ABI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", c.ContractName, err)
	}

	s.logger.
		With("contract", c.ContractName).
		With("address", result.Address.Hex()).
		Info("contract deployed")

	return result, nil
}

// Call runs method on the contract at address. A failed computation is
// returned as its VM error, with the stack trace logged.
func (s *Service) Call(ctx context.Context, c *Contract, address common.Address, method string, args []any, opts CallOptions) (*CallResult, error) {
	m, ok := c.Parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in %s", method, c.ContractName)
	}

	data, err := c.Parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack arguments for %s: %w", method, err)
	}

	s.env.RegisterContract(address, c.ContractName)

	computation, err := s.env.ExecuteCode(ctx, env.CallParams{
		To:          &address,
		Sender:      opts.Sender,
		Data:        data,
		IsModifying: opts.Transact,
	})
	if err != nil {
		return nil, err
	}

	if vmErr := computation.RaiseIfError(); vmErr != nil {
		s.logger.
			With("method", method).
			With("stack_trace", computation.StackTrace().String()).
			Error("contract call failed")
		return &CallResult{Computation: computation}, vmErr
	}

	values, err := m.Outputs.Unpack(computation.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s output: %w", method, err)
	}

	return &CallResult{Values: values, Computation: computation}, nil
}

// Verify submits c deployed at address to the explorer. With wait set it
// blocks until the explorer finishes.
func (s *Service) Verify(ctx context.Context, c *Contract, address common.Address, constructorArgs []byte, wait bool) (string, error) {
	if s.explorer == nil {
		return "", ErrNoVerifier
	}

	vyperVersion, err := s.compiler.VyperVersion(ctx)
	if err != nil {
		return "", err
	}

	id, err := s.explorer.Verify(ctx, verifier.Request{
		Address:              address,
		ContractName:         c.ContractName,
		Sources:              map[string]string{c.ContractName + ".vy": c.SourceCode},
		VyperVersion:         vyperVersion,
		ZkvyperVersion:       c.ZkvyperVersion,
		ConstructorArguments: constructorArgs,
	})
	if err != nil {
		return "", err
	}

	if wait {
		if err := s.explorer.WaitForVerification(ctx, id); err != nil {
			return id, err
		}
	}
	return id, nil
}
