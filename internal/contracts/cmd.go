package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/compose-network/zksync-devkit/internal/accounts"
	"github.com/compose-network/zksync-devkit/internal/compiler"
	"github.com/compose-network/zksync-devkit/internal/deployments"
	"github.com/compose-network/zksync-devkit/internal/env"
	fsjson "github.com/compose-network/zksync-devkit/internal/infra/filesystem/json"
	"github.com/compose-network/zksync-devkit/internal/node"
	"github.com/compose-network/zksync-devkit/internal/rpc"
	"github.com/compose-network/zksync-devkit/internal/verifier"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

const defaultArtifactsDir = "artifacts"

var (
	senderFlag    string
	saltFlag      string
	outDirFlag    string
	transactFlag  bool
	waitFlag      bool
	ctorArgsFlag  string
	artifactsFlag string
)

var CMD = &cobra.Command{
	Use:   "contracts",
	Short: "Compile, deploy, call and verify zkSync Vyper contracts",
}

var compileCmd = &cobra.Command{
	Use:   "compile <file.vy>",
	Short: "Compile a Vyper contract with zkvyper and write its artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := compiler.New(configs.Values.Compiler)
		out, err := c.CompileFile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("contract compilation failed: %w", err)
		}

		contract, err := FromOutput(out)
		if err != nil {
			return err
		}

		path, err := SaveArtifact(fsjson.NewWriter(), outDirFlag, contract)
		if err != nil {
			return err
		}

		slog.With("contract", contract.ContractName).With("artifact", path).Info("contract compiled")
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy <artifact.json|file.vy> [constructor args...]",
	Short: "Deploy a contract through the ContractDeployer system contract",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeFn, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		contract, err := loadContract(ctx, svc, args[0])
		if err != nil {
			return err
		}

		ctorArgs, err := ParseArgs(contract.Parsed.Constructor.Inputs, args[1:])
		if err != nil {
			return err
		}

		opts := DeployOptions{}
		if opts.Sender, err = optionalAddress(senderFlag); err != nil {
			return err
		}
		if saltFlag != "" {
			salt := common.HexToHash(saltFlag)
			opts.Salt = &salt
		}

		result, err := svc.Deploy(ctx, contract, ctorArgs, opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s deployed at %s (tx %s)\n", contract.ContractName, result.Address.Hex(), result.TxHash.Hex())
		return nil
	},
}

var callCmd = &cobra.Command{
	Use:   "call <artifact.json|file.vy> <address> <method> [args...]",
	Short: "Call a contract method, broadcasting it with --transact",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeFn, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		contract, err := loadContract(ctx, svc, args[0])
		if err != nil {
			return err
		}
		if !common.IsHexAddress(args[1]) {
			return fmt.Errorf("invalid contract address %q", args[1])
		}
		address := common.HexToAddress(args[1])

		method, ok := contract.Parsed.Methods[args[2]]
		if !ok {
			return fmt.Errorf("method %s not found in %s", args[2], contract.ContractName)
		}
		callArgs, err := ParseArgs(method.Inputs, args[3:])
		if err != nil {
			return err
		}

		opts := CallOptions{Transact: transactFlag}
		if opts.Sender, err = optionalAddress(senderFlag); err != nil {
			return err
		}

		result, err := svc.Call(ctx, contract, address, method.Name, callArgs, opts)
		if err != nil {
			if result != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), result.Computation.CallTrace().String())
			}
			return err
		}

		for _, value := range result.Values {
			fmt.Fprintln(cmd.OutOrStdout(), value)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <artifact.json|file.vy> <address>",
	Short: "Verify a deployed contract on the block explorer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeFn, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		contract, err := loadContract(ctx, svc, args[0])
		if err != nil {
			return err
		}
		if !common.IsHexAddress(args[1]) {
			return fmt.Errorf("invalid contract address %q", args[1])
		}

		var ctorArgs []byte
		if ctorArgsFlag != "" {
			if ctorArgs, err = hexutil.Decode(ctorArgsFlag); err != nil {
				return fmt.Errorf("invalid constructor arguments: %w", err)
			}
		}

		id, err := svc.Verify(ctx, contract, common.HexToAddress(args[1]), ctorArgs, waitFlag)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "verification id %s\n", id)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&outDirFlag, "out", defaultArtifactsDir, "Directory the artifact is written to")

	for _, c := range []*cobra.Command{deployCmd, callCmd} {
		c.Flags().StringVar(&senderFlag, "sender", "", "Sender address, defaults to the default account")
	}
	deployCmd.Flags().StringVar(&saltFlag, "salt", "", "CREATE salt as 32 byte hex")
	callCmd.Flags().BoolVar(&transactFlag, "transact", false, "Broadcast the call as a transaction")
	verifyCmd.Flags().StringVar(&ctorArgsFlag, "constructor-args", "", "ABI encoded constructor arguments as hex")
	verifyCmd.Flags().BoolVar(&waitFlag, "wait", false, "Wait until the explorer finishes verification")
	CMD.PersistentFlags().StringVar(&artifactsFlag, "artifacts", "", "Directory to look up artifacts by contract name")

	CMD.AddCommand(compileCmd, deployCmd, callCmd, verifyCmd)
}

// newService wires the environment from configs.Values. Without configured
// accounts the anvil-zksync test accounts are used.
func newService(ctx context.Context) (*Service, func(), error) {
	cfg := configs.Values
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	keyring, err := accounts.FromConfig(cfg.Accounts)
	if err != nil {
		return nil, nil, err
	}
	if keyring.Len() == 0 {
		slog.Warn("no accounts configured, using anvil-zksync test accounts")
		if keyring, err = node.TestKeyring(); err != nil {
			return nil, nil, err
		}
	}

	client, err := rpc.Dial(ctx, cfg.Network.RPCURL, cfg.Network.Nickname, rpc.WithPollInterval(cfg.Tx.PollInterval))
	if err != nil {
		return nil, nil, err
	}

	opts := []env.Option{env.WithPollTimeout(cfg.Tx.PollTimeout)}
	if cfg.Accounts.DefaultAccount != "" {
		opts = append(opts, env.WithDefaultAccount(common.HexToAddress(cfg.Accounts.DefaultAccount)))
	}
	if cfg.Deployments.Dir != "" {
		opts = append(opts, env.WithDeploymentStore(deployments.NewStore(cfg.Deployments.Dir)))
	}

	var explorer *verifier.Explorer
	if cfg.Network.ExplorerURL != "" {
		explorer = verifier.New(cfg.Network.ExplorerURL, cfg.Verifier)
	}

	svc := NewService(env.New(client, keyring, opts...), compiler.New(cfg.Compiler), explorer)
	return svc, client.Close, nil
}

// loadContract compiles .vy sources and reads anything else as an artifact,
// either by path or by contract name under --artifacts.
func loadContract(ctx context.Context, svc *Service, ref string) (*Contract, error) {
	if strings.HasSuffix(ref, ".vy") {
		return svc.Compile(ctx, ref)
	}

	path := ref
	if _, err := os.Stat(path); err != nil && artifactsFlag != "" {
		path = ArtifactPath(artifactsFlag, strings.TrimSuffix(filepath.Base(ref), ".json"))
	}
	return LoadArtifact(fsjson.NewReader(), path)
}

func optionalAddress(s string) (*common.Address, error) {
	if s == "" {
		return nil, nil
	}
	if !common.IsHexAddress(s) {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	return &addr, nil
}
