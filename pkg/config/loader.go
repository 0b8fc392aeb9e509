package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cifworks/ciftree/pkg/errors"
)

// Load reads a configuration file, applies CIFTREE_* environment overrides,
// and validates the result. YAML and JSON files are both accepted.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CIFTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig,
			"failed to read config %s", path)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("conversion.strict", d.Conversion.Strict)
	v.SetDefault("cache.memory_entries", d.Cache.MemoryEntries)
	v.SetDefault("cache.disk_enabled", d.Cache.DiskEnabled)
	v.SetDefault("conversion.permit_empty_blocks", d.Conversion.PermitEmptyBlocks)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
}

// Save writes the configuration to a YAML file
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file")
	}
	return nil
}
