package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/compose-network/zksync-devkit/internal/contracts"
	"github.com/compose-network/zksync-devkit/internal/logger"
	"github.com/compose-network/zksync-devkit/internal/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "zkdevkit"

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "CLI for deploying and calling contracts on zkSync",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.SetDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.SetEnvPrefix("ZKDEVKIT")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()

		if execPath, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(execPath))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		configErr := viper.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		if configErr != nil && !errors.As(configErr, &notFound) {
			const errMsg = "error reading config file"
			slog.With("err", configErr.Error()).Error(errMsg)
			return errors.Join(configErr, errors.New(errMsg))
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		level, err := logger.ParseLevel(configs.Values.Log.Level)
		if err != nil {
			return err
		}
		logger.Initialize(level, string(configs.Values.Log.Format))

		if configErr != nil {
			slog.Debug("no config file found, relying on flags and defaults")
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		return nil
	},
}

func main() {
	rootCmd.AddCommand(contracts.CMD)
	rootCmd.AddCommand(node.CMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}
