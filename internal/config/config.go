// Package config handles configuration loading for overseer.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for overseer.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Board        BoardConfig        `mapstructure:"board"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Timeouts     TimeoutsConfig     `mapstructure:"timeouts"`
	Gates        GatesConfig        `mapstructure:"gates"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Spool        SpoolConfig        `mapstructure:"spool"`
}

// OrchestratorConfig holds dispatch and retry settings.
type OrchestratorConfig struct {
	// ConcurrencyLimit caps tasks in flight per workflow.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
	// MaxRetries is the workflow-level quality gate retry budget.
	MaxRetries int `mapstructure:"max_retries"`
	// TaskRetries is the per-task transient failure retry budget.
	TaskRetries int `mapstructure:"task_retries"`
}

// BoardConfig holds board approval settings.
type BoardConfig struct {
	// ComplexityThreshold routes workflows at or above it through the board.
	ComplexityThreshold int `mapstructure:"complexity_threshold"`
}

// MonitorConfig holds self-healing sweep settings.
type MonitorConfig struct {
	// SweepInterval is how often the monitor inspects active workflows.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// GracePeriod is how long a suspected deadlock may persist after
	// escalation before the workflow is force-failed.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// TimeoutsConfig holds per-agent-type task timeouts.
type TimeoutsConfig struct {
	// Default applies to agent types without an explicit entry.
	Default time.Duration `mapstructure:"default"`
	// Agents maps agent type to its task timeout.
	Agents map[string]time.Duration `mapstructure:"agents"`
}

// GatesConfig holds quality gate thresholds.
type GatesConfig struct {
	MinCoverage      float64 `mapstructure:"min_coverage"`
	MaxComplexity    float64 `mapstructure:"max_complexity"`
	MaxArtifactLines int     `mapstructure:"max_artifact_lines"`
}

// MemoryConfig holds knowledge store settings.
type MemoryConfig struct {
	// Path is the SQLite file location. Empty means the XDG default.
	Path string `mapstructure:"path"`
}

// SpoolConfig holds the plan spool directory settings.
type SpoolConfig struct {
	// Dir is the directory watched for incoming plan files.
	Dir string `mapstructure:"dir"`
}

// TaskTimeout returns the timeout for an agent type, falling back to the
// default.
func (c *Config) TaskTimeout(agentType string) time.Duration {
	if d, ok := c.Timeouts.Agents[agentType]; ok && d > 0 {
		return d
	}
	return c.Timeouts.Default
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			ConcurrencyLimit: 5,
			MaxRetries:       3,
			TaskRetries:      2,
		},
		Board: BoardConfig{
			ComplexityThreshold: 7,
		},
		Monitor: MonitorConfig{
			SweepInterval: 5 * time.Second,
			GracePeriod:   15 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Default: 5 * time.Minute,
			Agents:  map[string]time.Duration{},
		},
		Gates: GatesConfig{
			MinCoverage:      70,
			MaxComplexity:    10,
			MaxArtifactLines: 300,
		},
		Spool: SpoolConfig{
			Dir: "spool",
		},
	}
}

// Load loads configuration with the following precedence, highest first:
//
//  1. Environment variables (OVERSEER_ prefix)
//  2. Project config (.overseer.yaml in the current directory or a parent)
//  3. User config (~/.config/overseer/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("OVERSEER")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures built-in default values.
func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("orchestrator.concurrency_limit", def.Orchestrator.ConcurrencyLimit)
	v.SetDefault("orchestrator.max_retries", def.Orchestrator.MaxRetries)
	v.SetDefault("orchestrator.task_retries", def.Orchestrator.TaskRetries)
	v.SetDefault("board.complexity_threshold", def.Board.ComplexityThreshold)
	v.SetDefault("monitor.sweep_interval", def.Monitor.SweepInterval.String())
	v.SetDefault("monitor.grace_period", def.Monitor.GracePeriod.String())
	v.SetDefault("timeouts.default", def.Timeouts.Default.String())
	v.SetDefault("gates.min_coverage", def.Gates.MinCoverage)
	v.SetDefault("gates.max_complexity", def.Gates.MaxComplexity)
	v.SetDefault("gates.max_artifact_lines", def.Gates.MaxArtifactLines)
	v.SetDefault("spool.dir", def.Spool.Dir)
}

// getUserConfigDir returns the XDG config directory for overseer.
func getUserConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "overseer")
}

// findProjectConfig walks up from the current directory looking for a
// .overseer.yaml file.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".overseer.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
