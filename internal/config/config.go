package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is sandboxctl's optional on-disk configuration, loaded from
// sandboxctl.yaml. Every field here except cgroup.parent_dir can also be
// set with a CLI flag; flags take precedence when both are present.
// cgroup.parent_dir is parsed but sandboxctl run does not apply it.
type Config struct {
	Profile  string         `yaml:"profile"`
	LogDir   string         `yaml:"log_dir"`
	LogLevel string         `yaml:"log_level"`
	Cgroup   CgroupConfig   `yaml:"cgroup"`
	Paths    PathsConfig    `yaml:"paths"`
}

// CgroupConfig mirrors the cgroup v2 limits accepted on the run command.
type CgroupConfig struct {
	CPUQuotaPct int    `yaml:"cpu_quota_pct"`
	MemoryMax   string `yaml:"memory_max"` // byte-size string, e.g. "512MiB"
	PidsMax     int    `yaml:"pids_max"`
	ParentDir   string `yaml:"parent_dir"`
}

// PathsConfig locates the sibling binaries and runtime directories
// sandboxctl depends on.
type PathsConfig struct {
	ChildInitPath string `yaml:"childinit_path"`
}

// Load reads and validates a sandboxctl.yaml file, applying defaults and
// then SANDBOXCTL_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes parses configuration without touching the environment,
// for tests that must not be sensitive to the ambient shell.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Profile == "" {
		cfg.Profile = "STRICT"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SANDBOXCTL_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("SANDBOXCTL_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("SANDBOXCTL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SANDBOXCTL_CHILDINIT_PATH"); v != "" {
		cfg.Paths.ChildInitPath = v
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Profile {
	case "STRICT", "RESOURCE-AWARE", "LEARNING":
	default:
		return fmt.Errorf("invalid profile %q", cfg.Profile)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.Cgroup.MemoryMax != "" {
		if _, err := ParseByteSize(cfg.Cgroup.MemoryMax); err != nil {
			return fmt.Errorf("invalid cgroup.memory_max: %w", err)
		}
	}
	if cfg.Cgroup.CPUQuotaPct < 0 {
		return fmt.Errorf("cgroup.cpu_quota_pct must be >= 0")
	}
	if cfg.Cgroup.PidsMax < 0 {
		return fmt.Errorf("cgroup.pids_max must be >= 0")
	}
	return nil
}
