package configs

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	//go:embed config.example.yaml
	defaultConfigYAML string

	defaultSettings = sync.OnceValues(func() (map[string]any, error) {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(defaultConfigYAML)); err != nil {
			return nil, fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
		}
		return v.AllSettings(), nil
	})
)

// DefaultConfig returns the parsed configuration from the embedded config.example.yaml.
func DefaultConfig() (Config, error) {
	v := viper.New()
	if err := SetDefaults(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode embedded config.example.yaml: %w", err)
	}

	return cfg, nil
}

// MustDefaultConfig returns embedded defaults or panics if they cannot be loaded.
func MustDefaultConfig() Config {
	cfg, err := DefaultConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}

// SetDefaults registers every embedded value as a default of v, so a config
// file only needs to name the keys it changes.
func SetDefaults(v *viper.Viper) error {
	settings, err := defaultSettings()
	if err != nil {
		return err
	}

	setDefaults(v, "", settings)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, settings map[string]any) {
	for key, value := range settings {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, value)
	}
}
