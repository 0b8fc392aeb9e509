// Package config defines the ciftree configuration model.
//
// Configuration is sectioned: paths to the dictionary and schemas, conversion
// behavior, metadata cache tuning, and logging. All sections have working
// defaults so a zero-value load succeeds for permissive conversions that do
// not need schema files.
package config

import (
	"time"

	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/logger"
)

// Config is the root configuration for all ciftree operations
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths" mapstructure:"paths"`
	Conversion ConversionConfig `yaml:"conversion" json:"conversion" mapstructure:"conversion"`
	Cache      CacheConfig      `yaml:"cache" json:"cache" mapstructure:"cache"`
	Logging    logger.Config    `yaml:"logging" json:"logging" mapstructure:"logging"`
}

// PathsConfig locates the metadata sources
type PathsConfig struct {
	// Dictionary is the data dictionary file driving mapping generation
	Dictionary string `yaml:"dictionary" json:"dictionary" mapstructure:"dictionary"`
	// XSDSchema is the XML schema used by the validation gate and the XML
	// exporter's attribute/element decisions. Optional.
	XSDSchema string `yaml:"xsd_schema" json:"xsd_schema" mapstructure:"xsd_schema"`
	// JSONSchema is the JSON schema used by the validation gate. Optional.
	JSONSchema string `yaml:"json_schema" json:"json_schema" mapstructure:"json_schema"`
	// CacheDir holds the on-disk metadata cache. Empty disables the disk tier.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" mapstructure:"cache_dir"`
}

// ConversionConfig controls resolver and flattener behavior
type ConversionConfig struct {
	// Strict makes unresolved relationships and validation failures fatal.
	// Permissive mode demotes orphans to top level and skips validation.
	Strict bool `yaml:"strict" json:"strict" mapstructure:"strict"`
	// PermitEmptyBlocks allows blocks with zero categories through conversion
	PermitEmptyBlocks bool `yaml:"permit_empty_blocks" json:"permit_empty_blocks" mapstructure:"permit_empty_blocks"`
}

// CacheConfig tunes the two-tier metadata cache
type CacheConfig struct {
	// MemoryEntries caps the in-memory LRU tier
	MemoryEntries int `yaml:"memory_entries" json:"memory_entries" mapstructure:"memory_entries"`
	// DiskEnabled controls the compressed on-disk tier
	DiskEnabled bool `yaml:"disk_enabled" json:"disk_enabled" mapstructure:"disk_enabled"`
	// TTL bounds how long a disk entry is trusted before reparse
	TTL time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`
}

// DefaultConfig returns a configuration with working defaults
func DefaultConfig() *Config {
	return &Config{
		Conversion: ConversionConfig{
			Strict: false,
		},
		Cache: CacheConfig{
			MemoryEntries: 64,
			DiskEnabled:   false,
			TTL:           24 * time.Hour,
		},
		Logging: logger.DefaultConfig(),
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Cache.MemoryEntries <= 0 {
		return errors.Newf(errors.ErrorTypeConfig,
			"cache.memory_entries must be positive, got %d", c.Cache.MemoryEntries)
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrorTypeConfig, "cache.ttl must not be negative")
	}
	if c.Cache.DiskEnabled && c.Paths.CacheDir == "" {
		return errors.New(errors.ErrorTypeConfig,
			"cache.disk_enabled requires paths.cache_dir")
	}
	if c.Conversion.Strict && c.Paths.Dictionary == "" {
		return errors.New(errors.ErrorTypeConfig,
			"conversion.strict requires paths.dictionary")
	}
	return nil
}
