// Package config loads treestore configuration from flags, environment,
// a YAML file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the complete treestore configuration.
//
// Sources, highest precedence first:
//  1. CLI flags bound with Load
//  2. Environment variables (TREESTORE_*)
//  3. Configuration file
//  4. Default values
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Mount   MountConfig   `mapstructure:"mount"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig locates the store and picks its digest function.
type StoreConfig struct {
	// Root is the store directory. objects/, refs/ and scratch dirs live
	// directly under it, so it must sit on a single filesystem.
	Root string `mapstructure:"root" validate:"required"`

	// Hash is the multihash function name used for tree digests.
	// A store keeps the function it was created with.
	Hash string `mapstructure:"hash" validate:"required,oneof=sha2-256 sha2-512 blake3"`
}

// MountConfig selects how read-only views are exposed.
type MountConfig struct {
	// Backend is "bind" (kernel bind mount, needs CAP_SYS_ADMIN) or "fuse"
	// (go-fuse loopback, works unprivileged with fusermount).
	Backend string `mapstructure:"backend" validate:"required,oneof=bind fuse"`

	// AllowOther lets other users read FUSE views. Ignored for bind.
	AllowOther bool `mapstructure:"allow_other"`

	// Debug enables go-fuse request tracing.
	Debug bool `mapstructure:"debug"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error
	// (case-insensitive, normalized to lowercase).
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`

	// Format is console or json.
	Format string `mapstructure:"format" validate:"required,oneof=console json"`

	// Output is stderr, stdout or a file path. Files are rotated.
	Output string `mapstructure:"output" validate:"required"`
}

// keys lists every configuration key so environment variables are seen
// by Unmarshal even when no file or flag mentions them.
var keys = []string{
	"store.root",
	"store.hash",
	"mount.backend",
	"mount.allow_other",
	"mount.debug",
	"logging.level",
	"logging.format",
	"logging.output",
}

// FlagBindings maps configuration keys to the CLI flags that override them.
type FlagBindings map[string]*pflag.Flag

// Load loads configuration from file, environment, flags and defaults,
// then validates it.
//
// configPath may be empty to use $XDG_CONFIG_HOME/treestore/config.yaml.
// A missing file is not an error.
func Load(configPath string, flags FlagBindings) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// TREESTORE_STORE_ROOT, TREESTORE_MOUNT_BACKEND, ...
	v.SetEnvPrefix("TREESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// getConfigDir returns $XDG_CONFIG_HOME/treestore, falling back to
// ~/.config/treestore, or "." without a home directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "treestore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "treestore")
}

// DefaultConfigPath returns the configuration file read when none is given.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
