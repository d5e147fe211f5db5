package configs

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8011", cfg.Network.RPCURL)
	assert.Equal(t, 240*time.Second, cfg.Tx.PollTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Tx.PollInterval)
	assert.Equal(t, NodeBackendBinary, cfg.Node.Backend)
	assert.Equal(t, 8011, cfg.Node.Port)
	assert.InDelta(t, 1.5, cfg.Verifier.BackoffFactor, 1e-9)
	assert.Equal(t, LogFormatJSON, cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestSetDefaultsKeepsOverrides(t *testing.T) {
	v := viper.New()
	require.NoError(t, SetDefaults(v))

	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
network:
  rpc-url: https://sepolia.era.zksync.dev
tx:
  poll-timeout: 10s
`)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "https://sepolia.era.zksync.dev", cfg.Network.RPCURL)
	assert.Equal(t, "local", cfg.Network.Nickname)
	assert.Equal(t, 10*time.Second, cfg.Tx.PollTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Tx.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errs   []string
	}{
		{
			name:   "missing rpc url",
			modify: func(c *Config) { c.Network.RPCURL = "" },
			errs:   []string{"network.rpc-url is required"},
		},
		{
			name: "bad keystore entry",
			modify: func(c *Config) {
				c.Accounts.Keystores = []Keystore{{Address: "nope"}}
			},
			errs: []string{
				"accounts.keystores[0].dir is required",
				"accounts.keystores[0].address must be a hex address",
				"accounts.keystores[0].password-env is required",
			},
		},
		{
			name: "poll interval above timeout",
			modify: func(c *Config) {
				c.Tx.PollTimeout = time.Second
				c.Tx.PollInterval = 2 * time.Second
			},
			errs: []string{"tx.poll-interval must not exceed tx.poll-timeout"},
		},
		{
			name: "unknown backend and fork block without url",
			modify: func(c *Config) {
				c.Node.Backend = "vm"
				c.Node.ForkAt = 10
			},
			errs: []string{"node.backend must be either", "node.fork-at requires node.fork-url"},
		},
		{
			name:   "docker backend without image",
			modify: func(c *Config) { c.Node.Backend = NodeBackendDocker; c.Node.Image = "" },
			errs:   []string{"node.image is required"},
		},
		{
			name:   "unknown log format",
			modify: func(c *Config) { c.Log.Format = "xml" },
			errs:   []string{"log.format must be either"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MustDefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			for _, msg := range tt.errs {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}
