// Package config provides unified configuration loading for prospect.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prospectsim/prospect/internal/constants"
)

// ProspectConfig contains all prospect configuration settings.
type ProspectConfig struct {
	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Simulation contains defaults applied to scenarios that leave them unset.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Store selects where run batches are persisted.
	Store StoreConfig `json:"store" yaml:"store"`

	// Export configures the object storage upload target.
	Export ExportConfig `json:"export" yaml:"export"`

	// MCP configures the MCP tool server.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`
}

// LoggingConfig configures prospect's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to decisions.jsonl.
	// "trace" additionally logs every per-unit roll.
	Level string `json:"level" yaml:"level"`
}

// SimulationConfig holds run defaults.
type SimulationConfig struct {
	Seed uint64 `json:"seed" yaml:"seed"`

	// Runs is used when a scenario does not set n_runs.
	Runs int `json:"runs" yaml:"runs"`

	// Workers bounds run parallelism within a batch.
	Workers int `json:"workers" yaml:"workers"`

	// DiscoveryThreshold is the minimum detection probability considered.
	// Range: 0.0 to 1.0
	DiscoveryThreshold float64 `json:"discovery_threshold" yaml:"discovery_threshold"`
}

// StoreConfig selects the run store. An empty PostgresDSN means SQLite.
type StoreConfig struct {
	// SQLitePath defaults to ~/.prospect/runs.db.
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	// PostgresDSN supports ${VAR} syntax for env vars.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

// RedactedDSN returns the DSN with its password masked.
func (c StoreConfig) RedactedDSN() string {
	return redactDSN(c.PostgresDSN)
}

// String implements fmt.Stringer to prevent accidental password logging.
func (c StoreConfig) String() string {
	return fmt.Sprintf("StoreConfig{SQLitePath:%s, PostgresDSN:%s}", c.SQLitePath, c.RedactedDSN())
}

// ExportConfig configures uploads of export files.
type ExportConfig struct {
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config names an S3-compatible bucket. Credentials come from the AWS default chain.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// MCPConfig configures the MCP server.
type MCPConfig struct {
	// RateLimit is the sustained number of tool calls per second.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// Burst is the number of calls allowed at once.
	Burst int `json:"burst" yaml:"burst"`

	// MaxRuns caps the runs a single survey_run call may request.
	MaxRuns int `json:"max_runs" yaml:"max_runs"`
}

// Default returns a ProspectConfig with sensible defaults.
func Default() *ProspectConfig {
	return &ProspectConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		Simulation: SimulationConfig{
			Seed:    constants.DefaultSeed,
			Runs:    constants.DefaultRuns,
			Workers: constants.DefaultWorkers,
		},
		MCP: MCPConfig{
			RateLimit: 2,
			Burst:     4,
			MaxRuns:   1000,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.prospect/config.yaml -> environment variables
func Load() (*ProspectConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".prospect", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	config.Store.PostgresDSN = expandEnvVars(config.Store.PostgresDSN)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*ProspectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.PostgresDSN = expandEnvVars(config.Store.PostgresDSN)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *ProspectConfig) Validate() error {
	if c.Simulation.DiscoveryThreshold < 0 || c.Simulation.DiscoveryThreshold > 1 {
		return fmt.Errorf("discovery_threshold must be between 0 and 1, got %f", c.Simulation.DiscoveryThreshold)
	}
	if c.Simulation.Runs < 0 {
		return fmt.Errorf("runs must be non-negative, got %d", c.Simulation.Runs)
	}
	if c.Simulation.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Simulation.Workers)
	}
	if c.MCP.RateLimit <= 0 || c.MCP.Burst < 1 {
		return fmt.Errorf("mcp rate_limit must be positive and burst at least 1, got %g/%d", c.MCP.RateLimit, c.MCP.Burst)
	}
	if c.MCP.MaxRuns < 1 {
		return fmt.Errorf("mcp max_runs must be at least 1, got %d", c.MCP.MaxRuns)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// String renders the configuration as YAML with secrets redacted.
func (c *ProspectConfig) String() string {
	redacted := *c
	redacted.Store.PostgresDSN = c.Store.RedactedDSN()
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("ProspectConfig{error:%v}", err)
	}
	return string(data)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *ProspectConfig) {
	if v := os.Getenv("PROSPECT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("PROSPECT_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("PROSPECT_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Runs = n
		}
	}
	if v := os.Getenv("PROSPECT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Workers = n
		}
	}
	if v := os.Getenv("PROSPECT_DISCOVERY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.DiscoveryThreshold = f
		}
	}

	if v := os.Getenv("PROSPECT_SQLITE_PATH"); v != "" {
		config.Store.SQLitePath = v
	}
	if v := os.Getenv("PROSPECT_POSTGRES_DSN"); v != "" {
		config.Store.PostgresDSN = v
	}

	if v := os.Getenv("PROSPECT_S3_BUCKET"); v != "" {
		config.Export.S3.Bucket = v
	}
	if v := os.Getenv("PROSPECT_S3_REGION"); v != "" {
		config.Export.S3.Region = v
	}
	if v := os.Getenv("PROSPECT_S3_ENDPOINT"); v != "" {
		config.Export.S3.Endpoint = v
	}
	if v := os.Getenv("PROSPECT_S3_PREFIX"); v != "" {
		config.Export.S3.Prefix = v
	}
	if v := os.Getenv("PROSPECT_S3_PATH_STYLE"); v != "" {
		config.Export.S3.PathStyle = v == "true" || v == "1"
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// redactDSN masks the password of a URL-style or key/value DSN.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if scheme, rest, ok := strings.Cut(dsn, "://"); ok {
		userinfo, host, found := strings.Cut(rest, "@")
		if !found {
			return dsn
		}
		if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
			return scheme + "://" + user + ":***@" + host
		}
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
