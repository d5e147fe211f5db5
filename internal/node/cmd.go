package node

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var CMD = &cobra.Command{
	Use:   "node",
	Short: "Run a local anvil-zksync test node until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.Values.Node
		if err := cfg.Validate(); err != nil {
			return err
		}

		n, err := New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := n.Start(ctx); err != nil {
			return fmt.Errorf("error occurred starting node: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "anvil-zksync listening on %s\n\nTest accounts:\n", n.URL())
		for i, account := range TestAccounts {
			fmt.Fprintf(out, "(%d) %s %s\n", i, account.Address.Hex(), account.PrivateKey)
		}

		<-ctx.Done()
		slog.Info("shutting down node")

		return n.Stop(context.WithoutCancel(ctx))
	},
}

func init() {
	declareStringFlag("backend", "node.backend", "", "Node backend (binary or docker)")
	declareIntFlag("port", "node.port", 0, "Preferred node port")
	declareStringFlag("fork-url", "node.fork-url", "", "Fork the network at this RPC URL")
	declareUint64Flag("fork-at", "node.fork-at", 0, "Fork at this block number")
}

func declareStringFlag(name, key, defaultValue, description string) {
	CMD.Flags().String(name, defaultValue, description)
	if err := viper.BindPFlag(key, CMD.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}

func declareIntFlag(name, key string, defaultValue int, description string) {
	CMD.Flags().Int(name, defaultValue, description)
	if err := viper.BindPFlag(key, CMD.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}

func declareUint64Flag(name, key string, defaultValue uint64, description string) {
	CMD.Flags().Uint64(name, defaultValue, description)
	if err := viper.BindPFlag(key, CMD.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}
