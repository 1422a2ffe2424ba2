// Package config loads warden settings from defaults, an optional
// warden.yaml in the state directory, and WARDEN_-prefixed environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the validated runtime configuration.
type Config struct {
	StateDir string `mapstructure:"state_dir"`
	LogLevel string `mapstructure:"log_level"`

	AgentCommand     string `mapstructure:"agent_command"`
	MaxRetries       int    `mapstructure:"max_retries"`
	MaxIterations    int    `mapstructure:"max_iterations"`
	BaseWaitSec      int    `mapstructure:"base_wait_sec"`
	MaxWaitSec       int    `mapstructure:"max_wait_sec"`
	Perpetual        bool   `mapstructure:"perpetual"`
	CompletionMarker string `mapstructure:"completion_marker"`
	TaskMaxAttempts  int    `mapstructure:"task_max_attempts"`

	DebateMaxRounds           int     `mapstructure:"debate_max_rounds"`
	DebateConfidenceThreshold float64 `mapstructure:"debate_confidence_threshold"`

	ResourceCheckIntervalSec int     `mapstructure:"resource_check_interval_sec"`
	CPUThresholdPercent      float64 `mapstructure:"cpu_threshold_percent"`
	MemThresholdPercent      float64 `mapstructure:"mem_threshold_percent"`
	MaxParallelAgents        int     `mapstructure:"max_parallel_agents"`

	IntakeRescanSec int    `mapstructure:"intake_rescan_sec"`
	DashboardAddr   string `mapstructure:"dashboard_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", ".warden")
	v.SetDefault("log_level", "info")
	v.SetDefault("agent_command", "claude")
	v.SetDefault("max_retries", 50)
	v.SetDefault("max_iterations", 1000)
	v.SetDefault("base_wait_sec", 60)
	v.SetDefault("max_wait_sec", 3600)
	v.SetDefault("perpetual", false)
	v.SetDefault("completion_marker", "")
	v.SetDefault("task_max_attempts", 3)
	v.SetDefault("debate_max_rounds", 2)
	v.SetDefault("debate_confidence_threshold", 0.70)
	v.SetDefault("resource_check_interval_sec", 300)
	v.SetDefault("cpu_threshold_percent", 80.0)
	v.SetDefault("mem_threshold_percent", 80.0)
	v.SetDefault("max_parallel_agents", 10)
	v.SetDefault("intake_rescan_sec", 60)
	v.SetDefault("dashboard_addr", "")
}

// Load reads configuration. stateDir overrides the configured state
// directory when non-empty (the --dir flag wins over file and env).
func Load(stateDir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir := stateDir
	if dir == "" {
		dir = v.GetString("state_dir")
	}

	cfgFile := filepath.Join(dir, "warden.yaml")
	if _, err := os.Stat(cfgFile); err == nil {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would wedge or overrun the control loop.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1, got %d", c.MaxRetries)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.BaseWaitSec < 1 {
		return fmt.Errorf("base_wait_sec must be >= 1, got %d", c.BaseWaitSec)
	}
	if c.MaxWaitSec < c.BaseWaitSec {
		return fmt.Errorf("max_wait_sec %d must be >= base_wait_sec %d", c.MaxWaitSec, c.BaseWaitSec)
	}
	if c.DebateMaxRounds < 0 {
		return fmt.Errorf("debate_max_rounds must be >= 0, got %d", c.DebateMaxRounds)
	}
	if c.DebateConfidenceThreshold < 0 || c.DebateConfidenceThreshold > 1 {
		return fmt.Errorf("debate_confidence_threshold must be in [0,1], got %g", c.DebateConfidenceThreshold)
	}
	if c.CPUThresholdPercent <= 0 || c.CPUThresholdPercent > 100 {
		return fmt.Errorf("cpu_threshold_percent must be in (0,100], got %g", c.CPUThresholdPercent)
	}
	if c.MemThresholdPercent <= 0 || c.MemThresholdPercent > 100 {
		return fmt.Errorf("mem_threshold_percent must be in (0,100], got %g", c.MemThresholdPercent)
	}
	if c.MaxParallelAgents < 1 {
		return fmt.Errorf("max_parallel_agents must be >= 1, got %d", c.MaxParallelAgents)
	}
	if c.ResourceCheckIntervalSec < 1 {
		return fmt.Errorf("resource_check_interval_sec must be >= 1, got %d", c.ResourceCheckIntervalSec)
	}
	if c.TaskMaxAttempts < 1 {
		return fmt.Errorf("task_max_attempts must be >= 1, got %d", c.TaskMaxAttempts)
	}
	if strings.TrimSpace(c.AgentCommand) == "" {
		return fmt.Errorf("agent_command must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

func (c Config) BaseWait() time.Duration { return time.Duration(c.BaseWaitSec) * time.Second }
func (c Config) MaxWait() time.Duration  { return time.Duration(c.MaxWaitSec) * time.Second }
func (c Config) ResourceCheckInterval() time.Duration {
	return time.Duration(c.ResourceCheckIntervalSec) * time.Second
}
func (c Config) IntakeRescan() time.Duration { return time.Duration(c.IntakeRescanSec) * time.Second }
