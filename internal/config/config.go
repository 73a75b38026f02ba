// Package config loads the obfuscator's YAML configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// Config is the top-level configuration file.
type Config struct {
	// Obfuscation is the default engine configuration for new sessions and
	// local batch runs.
	Obfuscation ObfuscationConfig `yaml:"obfuscation" json:"obfuscation"`

	Server ServerConfig `yaml:"server" json:"server"`

	// Log level: trace, debug, info, warn or error
	LogLevel string `yaml:"log_level" json:"log_level" env:"OBF_LOG_LEVEL"`
}

// ObfuscationConfig is the file form of obfuscate.Config.
type ObfuscationConfig struct {
	Sensitivity float64 `yaml:"sensitivity" json:"sensitivity" env:"OBF_SENSITIVITY"`
	Epsilon     float64 `yaml:"epsilon" json:"epsilon" env:"OBF_EPSILON"`

	// Optional bound on the noise magnitude; omit for pure ε-DP
	DomainLimit *float64 `yaml:"domain_limit,omitempty" json:"domain_limit,omitempty"`

	RoundingStep uint64 `yaml:"rounding_step" json:"rounding_step" env:"OBF_ROUNDING_STEP"`

	// "zero", "constant" or "obfuscate"
	ThresholdMode string `yaml:"threshold_mode" json:"threshold_mode" env:"OBF_THRESHOLD_MODE"`

	PreserveTrueZero bool `yaml:"preserve_true_zero" json:"preserve_true_zero" env:"OBF_PRESERVE_TRUE_ZERO"`

	// "laplace" (default) or "geometric"
	Mechanism string `yaml:"mechanism,omitempty" json:"mechanism,omitempty" env:"OBF_MECHANISM"`
}

// ServerConfig configures the replicated obfuscation service.
type ServerConfig struct {
	NodeID      string `yaml:"node_id" json:"node_id" env:"OBF_NODE_ID"`
	RaftAddr    string `yaml:"raft_addr" json:"raft_addr" env:"OBF_RAFT_ADDR"`
	GRPCAddr    string `yaml:"grpc_addr" json:"grpc_addr" env:"OBF_GRPC_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" env:"OBF_METRICS_ADDR"`
	DataDir     string `yaml:"data_dir" json:"data_dir" env:"OBF_DATA_DIR"`
	Bootstrap   bool   `yaml:"bootstrap" json:"bootstrap" env:"OBF_BOOTSTRAP"`

	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" json:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `yaml:"election_timeout" json:"election_timeout"`
	CommitTimeout    time.Duration `yaml:"commit_timeout" json:"commit_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Obfuscation: ObfuscationConfig{
			Sensitivity:   1,
			Epsilon:       1,
			RoundingStep:  10,
			ThresholdMode: "constant",
			Mechanism:     "laplace",
		},
		Server: ServerConfig{
			NodeID:           "node-0",
			RaftAddr:         "127.0.0.1:8080",
			GRPCAddr:         "127.0.0.1:9090",
			MetricsAddr:      "127.0.0.1:9100",
			DataDir:          "./data",
			HeartbeatTimeout: 1000 * time.Millisecond,
			ElectionTimeout:  1000 * time.Millisecond,
			CommitTimeout:    50 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// Engine converts the file form into an obfuscate.Config.
func (c ObfuscationConfig) Engine() (obfuscate.Config, error) {
	mode, err := obfuscate.ParseThresholdMode(c.ThresholdMode)
	if err != nil {
		return obfuscate.Config{}, err
	}
	mechanism, err := obfuscate.ParseMechanism(c.Mechanism)
	if err != nil {
		return obfuscate.Config{}, err
	}

	cfg := obfuscate.Config{
		Sensitivity:      c.Sensitivity,
		Epsilon:          c.Epsilon,
		RoundingStep:     c.RoundingStep,
		Mode:             mode,
		PreserveTrueZero: c.PreserveTrueZero,
		Mechanism:        mechanism,
	}
	if c.DomainLimit != nil {
		limit := *c.DomainLimit
		cfg.DomainLimit = &limit
	}
	return cfg, nil
}

// FromEngine converts an obfuscate.Config into its file form.
func FromEngine(cfg obfuscate.Config) ObfuscationConfig {
	oc := ObfuscationConfig{
		Sensitivity:      cfg.Sensitivity,
		Epsilon:          cfg.Epsilon,
		RoundingStep:     cfg.RoundingStep,
		ThresholdMode:    cfg.Mode.String(),
		PreserveTrueZero: cfg.PreserveTrueZero,
		Mechanism:        cfg.Mechanism.String(),
	}
	if cfg.DomainLimit != nil {
		limit := *cfg.DomainLimit
		oc.DomainLimit = &limit
	}
	return oc
}

// Validate checks the engine parameters.
func (c ObfuscationConfig) Validate() error {
	cfg, err := c.Engine()
	if err != nil {
		return fmt.Errorf("obfuscation: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("obfuscation: %w", err)
	}
	return nil
}

// Validate checks the fields a serving node needs.
func (c ServerConfig) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.RaftAddr == "" {
		return fmt.Errorf("server.raft_addr is required")
	}
	return nil
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if err := c.Obfuscation.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

// ReadConfig reads configuration from a YAML file on top of Default, then
// applies OBF_* environment overrides. It does not validate, so callers can
// layer flags on top first. An empty path reads only the defaults and the
// environment.
func ReadConfig(filePath string) (*Config, error) {
	config := Default()

	if filePath != "" {
		file, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return config, nil
}

// LoadConfig reads configuration like ReadConfig and validates all of it.
func LoadConfig(filePath string) (*Config, error) {
	config, err := ReadConfig(filePath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filePath, data, 0644)
}
