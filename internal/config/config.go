// Package config handles configuration loading and management for Nexus.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Nexus.
type Config struct {
	Project   ProjectConfig   `mapstructure:"project"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// ProjectConfig holds project-level settings.
type ProjectConfig struct {
	// Name is the display name used in logs and notifications.
	Name string `mapstructure:"name"`
	// BasePath is the root directory holding the task queues.
	BasePath string `mapstructure:"base_path"`
	// ConfigDir is the directory holding roles.yaml, routes.yaml and limits.yaml.
	ConfigDir string `mapstructure:"config_dir"`
	// LogLevel controls debug logging verbosity.
	LogLevel string `mapstructure:"log_level"`
}

// PipelineConfig holds pipeline orchestration settings.
type PipelineConfig struct {
	// Stages is the ordered list of roles each task passes through.
	Stages []string `mapstructure:"stages"`
	// MaxConcurrentTasks bounds how many tasks advance at once.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	// EventBuffer is the capacity of the detection event channel.
	EventBuffer int `mapstructure:"event_buffer"`
}

// ProvidersConfig holds completion backend settings.
type ProvidersConfig struct {
	// UsePaidModels enables routes flagged as paid.
	UsePaidModels bool `mapstructure:"use_paid_models"`
	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MaxLimitWait bounds the single wait on a rate-limited route before
	// the router re-checks once and moves on.
	MaxLimitWait time.Duration `mapstructure:"max_limit_wait"`
	// Claude holds settings for the Anthropic API provider.
	Claude ClaudeConfig `mapstructure:"claude"`
}

// ClaudeConfig holds Anthropic API settings.
type ClaudeConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes Claude calls through AWS Bedrock instead.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string `mapstructure:"aws_profile"`
}

// NotifyConfig holds notification webhook settings.
type NotifyConfig struct {
	// WebhookURL is the default webhook for stage notifications.
	WebhookURL string `mapstructure:"webhook_url"`
	// Webhooks maps role names to role-specific webhook URLs.
	Webhooks map[string]string `mapstructure:"webhooks"`
	// Timeout bounds a single webhook post.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultStages is the documented default pipeline. Operators can override
// it with pipeline.stages.
func DefaultStages() []string {
	return []string{"communications", "project_manager", "senior_dev", "junior_dev", "release_qa"}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, NEXUS_USE_PAID_MODELS)
// 2. Project config (.nexus.yaml in current directory or parent)
// 3. User config (~/.config/nexus/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("providers.claude.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("providers.use_paid_models", "NEXUS_USE_PAID_MODELS")
	v.BindEnv("notify.webhook_url", "NEXUS_WEBHOOK_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Providers.Claude.APIKey = os.ExpandEnv(cfg.Providers.Claude.APIKey)
	cfg.Notify.WebhookURL = os.ExpandEnv(cfg.Notify.WebhookURL)
	for role, url := range cfg.Notify.Webhooks {
		cfg.Notify.Webhooks[role] = os.ExpandEnv(url)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
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

	cfg.Providers.Claude.APIKey = os.ExpandEnv(cfg.Providers.Claude.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project.name", "Nexus")
	v.SetDefault("project.base_path", ".")
	v.SetDefault("project.config_dir", "config")
	v.SetDefault("project.log_level", "info")

	v.SetDefault("pipeline.stages", DefaultStages())
	v.SetDefault("pipeline.max_concurrent_tasks", 5)
	v.SetDefault("pipeline.event_buffer", 64)

	v.SetDefault("providers.use_paid_models", true)
	v.SetDefault("providers.call_timeout", "30s")
	v.SetDefault("providers.max_limit_wait", "30s")

	v.SetDefault("notify.timeout", "5s")
}

// getUserConfigDir returns the XDG config directory for Nexus.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nexus")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "nexus")
	}
	return filepath.Join(home, ".config", "nexus")
}

// findProjectConfig searches for .nexus.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".nexus.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:      "Nexus",
			BasePath:  ".",
			ConfigDir: "config",
			LogLevel:  "info",
		},
		Pipeline: PipelineConfig{
			Stages:             DefaultStages(),
			MaxConcurrentTasks: 5,
			EventBuffer:        64,
		},
		Providers: ProvidersConfig{
			UsePaidModels: true,
			CallTimeout:   30 * time.Second,
			MaxLimitWait:  30 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
	}
}
