package configs

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var Values Config

type (
	NodeBackend string
	LogFormat   string

	Config struct {
		Network     Network     `mapstructure:"network"`
		Accounts    Accounts    `mapstructure:"accounts"`
		Tx          Tx          `mapstructure:"tx"`
		Compiler    Compiler    `mapstructure:"compiler"`
		Node        Node        `mapstructure:"node"`
		Verifier    Verifier    `mapstructure:"verifier"`
		Deployments Deployments `mapstructure:"deployments"`
		Log         Log         `mapstructure:"log"`
	}

	Network struct {
		RPCURL      string `mapstructure:"rpc-url"`
		Nickname    string `mapstructure:"nickname"`
		ExplorerURL string `mapstructure:"explorer-url"`
	}

	Accounts struct {
		DefaultAccount string     `mapstructure:"default-account"`
		PrivateKeys    []string   `mapstructure:"private-keys"`
		Keystores      []Keystore `mapstructure:"keystores"`
	}

	Keystore struct {
		Dir         string `mapstructure:"dir"`
		Address     string `mapstructure:"address"`
		PasswordEnv string `mapstructure:"password-env"`
	}

	Tx struct {
		PollTimeout  time.Duration `mapstructure:"poll-timeout"`
		PollInterval time.Duration `mapstructure:"poll-interval"`
	}

	Compiler struct {
		ZkvyperPath string   `mapstructure:"zkvyper-path"`
		VyperPath   string   `mapstructure:"vyper-path"`
		Args        []string `mapstructure:"args"`
	}

	Node struct {
		Backend        NodeBackend   `mapstructure:"backend"`
		BinaryPath     string        `mapstructure:"binary-path"`
		Image          string        `mapstructure:"image"`
		Port           int           `mapstructure:"port"`
		ForkURL        string        `mapstructure:"fork-url"`
		ForkAt         uint64        `mapstructure:"fork-at"`
		Args           []string      `mapstructure:"args"`
		StartupTimeout time.Duration `mapstructure:"startup-timeout"`
	}

	Verifier struct {
		Timeout        time.Duration `mapstructure:"timeout"`
		InitialBackoff time.Duration `mapstructure:"initial-backoff"`
		BackoffFactor  float64       `mapstructure:"backoff-factor"`
	}

	Deployments struct {
		Dir string `mapstructure:"dir"`
	}

	Log struct {
		Level  string    `mapstructure:"level"`
		Format LogFormat `mapstructure:"format"`
	}
)

const (
	NodeBackendBinary NodeBackend = "binary"
	NodeBackendDocker NodeBackend = "docker"

	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

func (c *Config) Validate() error {
	var errs []error

	for _, validate := range []func() error{
		c.Network.Validate,
		c.Accounts.Validate,
		c.Tx.Validate,
		c.Node.Validate,
		c.Verifier.Validate,
		c.Log.Validate,
	} {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Network) Validate() error {
	if c.RPCURL == "" {
		return errors.New("network.rpc-url is required")
	}
	if _, err := url.ParseRequestURI(c.RPCURL); err != nil {
		return fmt.Errorf("network.rpc-url is invalid: %w", err)
	}
	if c.ExplorerURL != "" {
		if _, err := url.ParseRequestURI(c.ExplorerURL); err != nil {
			return fmt.Errorf("network.explorer-url is invalid: %w", err)
		}
	}
	return nil
}

func (c *Accounts) Validate() error {
	var errs []error

	if c.DefaultAccount != "" && !common.IsHexAddress(c.DefaultAccount) {
		errs = append(errs, errors.New("accounts.default-account must be a hex address"))
	}
	for i, ks := range c.Keystores {
		if ks.Dir == "" {
			errs = append(errs, fmt.Errorf("accounts.keystores[%d].dir is required", i))
		}
		if !common.IsHexAddress(ks.Address) {
			errs = append(errs, fmt.Errorf("accounts.keystores[%d].address must be a hex address", i))
		}
		if ks.PasswordEnv == "" {
			errs = append(errs, fmt.Errorf("accounts.keystores[%d].password-env is required", i))
		}
	}

	return errors.Join(errs...)
}

func (c *Tx) Validate() error {
	var errs []error

	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("tx.poll-timeout must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("tx.poll-interval must be positive"))
	} else if c.PollTimeout > 0 && c.PollInterval > c.PollTimeout {
		errs = append(errs, errors.New("tx.poll-interval must not exceed tx.poll-timeout"))
	}

	return errors.Join(errs...)
}

func (c *Node) Validate() error {
	var errs []error

	switch c.Backend {
	case NodeBackendBinary:
		if c.BinaryPath == "" {
			errs = append(errs, errors.New("node.binary-path is required for the binary backend"))
		}
	case NodeBackendDocker:
		if c.Image == "" {
			errs = append(errs, errors.New("node.image is required for the docker backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("node.backend must be either '%s' or '%s'", NodeBackendBinary, NodeBackendDocker))
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, errors.New("node.port must be between 0 and 65535"))
	}
	if c.ForkAt != 0 && c.ForkURL == "" {
		errs = append(errs, errors.New("node.fork-at requires node.fork-url"))
	}

	return errors.Join(errs...)
}

func (c *Verifier) Validate() error {
	var errs []error

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("verifier.timeout must be positive"))
	}
	if c.InitialBackoff <= 0 {
		errs = append(errs, errors.New("verifier.initial-backoff must be positive"))
	}
	if c.BackoffFactor < 1 {
		errs = append(errs, errors.New("verifier.backoff-factor must be at least 1"))
	}

	return errors.Join(errs...)
}

func (c *Log) Validate() error {
	if c.Format != LogFormatJSON && c.Format != LogFormatText {
		return fmt.Errorf("log.format must be either '%s' or '%s'", LogFormatJSON, LogFormatText)
	}
	return nil
}
