package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sameehj/kai-node/pkg/system"
)

// Config defines runtime settings for the node.
type Config struct {
	LogLevel  string        `yaml:"logLevel"`
	LogFormat string        `yaml:"logFormat"`
	Policy    PolicyConfig  `yaml:"policy"`
	Exec      ExecConfig    `yaml:"exec"`
	Bridge    BridgeConfig  `yaml:"bridge"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Audit     AuditConfig   `yaml:"audit"`
}

type PolicyConfig struct {
	// Dir holds exec-policy.json.
	Dir     string `yaml:"dir"`
	Enabled bool   `yaml:"enabled"`
}

type ExecConfig struct {
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
	DrainTimeout   time.Duration `yaml:"drainTimeout"`
	// MaxOutput caps each captured stream in bytes; 0 is unlimited.
	MaxOutput    int    `yaml:"maxOutput"`
	DefaultShell string `yaml:"defaultShell"`
	// EnvFile is a dotenv file applied to every run.
	EnvFile string `yaml:"envFile"`
}

type BridgeConfig struct {
	Address      string   `yaml:"address"`
	AllowedAddrs []string `yaml:"allowedAddrs"`
	MaxSessions  int      `yaml:"maxSessions"`
}

type MetricsConfig struct {
	// Address enables the /metrics endpoint when non-empty.
	Address string `yaml:"address"`
}

type AuditConfig struct {
	// Database is a SQLite file for the audit trail; empty logs events only.
	Database string `yaml:"database"`
}

// Default returns the settings used when no file or override sets a value.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Policy: PolicyConfig{
			Dir:     DefaultDir(),
			Enabled: true,
		},
		Exec: ExecConfig{
			DefaultTimeout: 30 * time.Second,
			DrainTimeout:   500 * time.Millisecond,
		},
		Bridge: BridgeConfig{
			Address: "127.0.0.1:18790",
		},
	}
}

// LoadConfig loads configuration from a YAML file and environment overrides.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Policy.Dir = expandPath(cfg.Policy.Dir)
	cfg.Exec.EnvFile = expandPath(cfg.Exec.EnvFile)
	cfg.Audit.Database = expandPath(cfg.Audit.Database)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("KAI_NODE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KAI_NODE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("KAI_NODE_POLICY_DIR"); v != "" {
		cfg.Policy.Dir = v
	}
	if v := os.Getenv("KAI_NODE_POLICY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KAI_NODE_POLICY_ENABLED: %w", err)
		}
		cfg.Policy.Enabled = enabled
	}
	if v := os.Getenv("KAI_NODE_EXEC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KAI_NODE_EXEC_TIMEOUT: %w", err)
		}
		cfg.Exec.DefaultTimeout = d
	}
	if v := os.Getenv("KAI_NODE_EXEC_SHELL"); v != "" {
		cfg.Exec.DefaultShell = v
	}
	if v := os.Getenv("KAI_NODE_ENV_FILE"); v != "" {
		cfg.Exec.EnvFile = v
	}
	if v := os.Getenv("KAI_NODE_BRIDGE_ADDR"); v != "" {
		cfg.Bridge.Address = v
	}
	if v := os.Getenv("KAI_NODE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("KAI_NODE_AUDIT_DB"); v != "" {
		cfg.Audit.Database = v
	}
	return nil
}

// Validate rejects settings the node cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Exec.DefaultTimeout < 0 {
		errs = append(errs, errors.New("exec.defaultTimeout must not be negative"))
	}
	if c.Exec.DrainTimeout < 0 {
		errs = append(errs, errors.New("exec.drainTimeout must not be negative"))
	}
	if c.Exec.MaxOutput < 0 {
		errs = append(errs, errors.New("exec.maxOutput must not be negative"))
	}
	if c.Bridge.MaxSessions < 0 {
		errs = append(errs, errors.New("bridge.maxSessions must not be negative"))
	}
	if c.Exec.DefaultShell != "" && !knownShell(system.NormalizeShell(c.Exec.DefaultShell)) {
		errs = append(errs, fmt.Errorf("exec.defaultShell: unknown shell %q", c.Exec.DefaultShell))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logFormat: unsupported format %q", c.LogFormat))
	}
	if c.Policy.Enabled && c.Policy.Dir == "" {
		errs = append(errs, errors.New("policy.dir is required when the policy is enabled"))
	}
	return errors.Join(errs...)
}

func knownShell(shell string) bool {
	switch shell {
	case system.ShellSh, system.ShellBash, system.ShellZsh, system.ShellCmd,
		system.ShellPowerShell, system.ShellPwsh, system.ShellDirect:
		return true
	}
	return false
}

// DefaultDir is the node's state directory.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kai-node")
}

// DefaultConfigPath returns the default location for the CLI config file.
func DefaultConfigPath() string {
	if path := os.Getenv("KAI_NODE_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(DefaultDir(), "config.yaml")
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
