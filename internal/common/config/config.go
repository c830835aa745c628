// Package config provides configuration management for the orchestrator.
// It supports loading configuration from environment variables, a config
// file, and defaults, following the same layered precedence throughout.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/elisalabs/nugget-orchestrator/internal/common/logger"
)

// Config holds all configuration sections for the orchestrator.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Gate       GateConfig       `mapstructure:"gate"`
	Logging    logger.Config    `mapstructure:"logging"`
	Session    SessionConfig    `mapstructure:"session"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// SchedulerConfig governs DAG scheduling behavior shared by every session.
type SchedulerConfig struct {
	// MaxConcurrent is the per-session worker pool size. Defaults to 1
	// for predictability.
	MaxConcurrent int `mapstructure:"maxConcurrent"`
	// MaxRetries is the number of AgentRunner retries before a human gate opens.
	MaxRetries int `mapstructure:"maxRetries"`
	// AgentTurnTimeoutSeconds is read from configuration but not passed
	// to the scheduler; AgentRunner invocations run without a
	// per-attempt timeout.
	AgentTurnTimeoutSeconds int `mapstructure:"agentTurnTimeoutSeconds"`
}

// BudgetConfig governs token budget defaults.
type BudgetConfig struct {
	MaxTokens            int64 `mapstructure:"maxTokens"`
	WarnThresholdPercent  int   `mapstructure:"warnThresholdPercent"`
	DefaultReservePerTask int64 `mapstructure:"defaultReservePerTask"`
}

// WorkspaceConfig governs workspace path policy (see the workspace package).
type WorkspaceConfig struct {
	// RootOverride, when set (ELISA_WORKSPACE_ROOT), becomes the strict allow-root.
	RootOverride string `mapstructure:"rootOverride"`
	MaxPathLen   int    `mapstructure:"maxPathLen"`
}

// GateConfig governs human-gate and question timeouts.
type GateConfig struct {
	ResponseTimeoutSeconds    int    `mapstructure:"responseTimeoutSeconds"`
	QuestionTimeoutSeconds    int    `mapstructure:"questionTimeoutSeconds"`
	// TimeoutPolicy is "approve" (safe default) or "abort".
	TimeoutPolicy string `mapstructure:"timeoutPolicy"`
}

// SessionConfig governs session store bookkeeping.
type SessionConfig struct {
	CleanupGraceSeconds int `mapstructure:"cleanupGraceSeconds"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// AgentTurnTimeout returns the per-attempt agent turn timeout.
func (s *SchedulerConfig) AgentTurnTimeout() time.Duration {
	return time.Duration(s.AgentTurnTimeoutSeconds) * time.Second
}

// ResponseTimeout returns the human-gate response timeout.
func (g *GateConfig) ResponseTimeout() time.Duration {
	return time.Duration(g.ResponseTimeoutSeconds) * time.Second
}

// QuestionTimeout returns the mid-task question timeout.
func (g *GateConfig) QuestionTimeout() time.Duration {
	return time.Duration(g.QuestionTimeoutSeconds) * time.Second
}

// CleanupGrace returns the session cleanup grace period.
func (s *SessionConfig) CleanupGrace() time.Duration {
	return time.Duration(s.CleanupGraceSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("scheduler.maxConcurrent", 1)
	v.SetDefault("scheduler.maxRetries", 3)
	v.SetDefault("scheduler.agentTurnTimeoutSeconds", 900)

	v.SetDefault("budget.maxTokens", 500_000)
	v.SetDefault("budget.warnThresholdPercent", 80)
	v.SetDefault("budget.defaultReservePerTask", 8_000)

	v.SetDefault("workspace.rootOverride", "")
	v.SetDefault("workspace.maxPathLen", 500)

	v.SetDefault("gate.responseTimeoutSeconds", 3600)
	v.SetDefault("gate.questionTimeoutSeconds", 600)
	v.SetDefault("gate.timeoutPolicy", "approve")

	v.SetDefault("session.cleanupGraceSeconds", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the NUGGET_ prefix with snake_case
// naming (e.g. NUGGET_SCHEDULER_MAXCONCURRENT).
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified directory or the
// default search locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NUGGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// ELISA_WORKSPACE_ROOT is a forced override and bypasses the NUGGET_
	// prefix convention, so it is bound explicitly.
	_ = v.BindEnv("workspace.rootOverride", "ELISA_WORKSPACE_ROOT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/nugget-orchestrator/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, "scheduler.maxConcurrent must be positive")
	}
	if cfg.Scheduler.MaxRetries < 0 {
		errs = append(errs, "scheduler.maxRetries must not be negative")
	}
	if cfg.Budget.MaxTokens <= 0 {
		errs = append(errs, "budget.maxTokens must be positive")
	}
	if cfg.Budget.WarnThresholdPercent <= 0 || cfg.Budget.WarnThresholdPercent > 100 {
		errs = append(errs, "budget.warnThresholdPercent must be between 1 and 100")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Gate.TimeoutPolicy != "approve" && cfg.Gate.TimeoutPolicy != "abort" {
		errs = append(errs, "gate.timeoutPolicy must be one of: approve, abort")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
