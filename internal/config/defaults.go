package config

import "strings"

const (
	DefaultHash    = "sha2-256"
	DefaultBackend = "bind"
)

// ApplyDefaults fills unset fields. Explicit values are kept; the log
// level is normalized to lowercase.
func ApplyDefaults(cfg *Config) {
	applyStoreDefaults(&cfg.Store)
	applyMountDefaults(&cfg.Mount)
	applyLoggingDefaults(&cfg.Logging)
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Hash == "" {
		cfg.Hash = DefaultHash
	}
	// Root has no default.
}

func applyMountDefaults(cfg *MountConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Level = strings.ToLower(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "console"
	}
	// Standard output may carry command results (digests, paths).
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// GetDefaultConfig returns a configuration with every default applied and
// the given store root.
func GetDefaultConfig(root string) *Config {
	cfg := &Config{Store: StoreConfig{Root: root}}
	ApplyDefaults(cfg)
	return cfg
}
