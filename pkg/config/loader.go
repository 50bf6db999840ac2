package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

const (
	// configBaseName is looked up as .symdict.yaml in the search paths.
	configBaseName = ".symdict"
	configFormat   = "yaml"
	envPrefix      = "SYMDICT"
)

// Load resolves the effective configuration from three layers: built-in
// defaults, an optional YAML config file, and SYMDICT_* environment
// variables, with later layers winning. An empty path searches for
// .symdict.yaml in the working directory and $HOME, where a missing file is
// fine. An explicit path must be readable.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigType(configFormat)
	vp.SetEnvPrefix(envPrefix)
	vp.AutomaticEnv()

	for key, value := range defaultSettings() {
		vp.SetDefault(key, value)
	}

	if err := readConfigFile(vp, path); err != nil {
		return nil, err
	}

	cfg := new(Config)

	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(vp *viper.Viper, path string) error {
	if path != "" {
		vp.SetConfigFile(path)

		err := vp.ReadInConfig()
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}

		return nil
	}

	vp.SetConfigName(configBaseName)
	vp.AddConfigPath(".")

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		vp.AddConfigPath(home)
	}

	err := vp.ReadInConfig()

	var fileMissing viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &fileMissing) {
		return fmt.Errorf("read config: %w", err)
	}

	return nil
}

// defaultSettings maps viper keys to their built-in defaults. Keys are flat,
// so SYMDICT_<KEY> environment overrides need no replacer.
func defaultSettings() map[string]any {
	return map[string]any{
		"log_level":             DefaultLogLevel,
		"log_json":              DefaultLogJSON,
		"environment":           DefaultEnvironment,
		"otlp_endpoint":         DefaultOTLPEndpoint,
		"otlp_insecure":         DefaultOTLPInsecure,
		"diag_addr":             DefaultDiagAddr,
		"hibernation_threshold": DefaultHibernationThreshold,
		"shards":                DefaultShards,
		"case_sensitive":        DefaultCaseSensitive,
	}
}
