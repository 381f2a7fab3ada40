package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Mailbox provider identifiers.
const (
	ProviderGmail     = "gmail"
	ProviderMicrosoft = "microsoft"
)

// Completion provider identifiers.
const (
	AIProviderAnthropic = "anthropic"
	AIProviderOpenAI    = "openai"
)

// MailboxConfig selects and configures the upstream mail provider.
type MailboxConfig struct {
	// Provider is "gmail" or "microsoft".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// OAuth client registration used by the device login flow.
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`

	// Tenant is the Azure AD tenant for Microsoft accounts.
	Tenant string `mapstructure:"tenant" yaml:"tenant"`

	// PageSize is the number of inbox messages fetched per sync.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// GraphBaseURL overrides the Microsoft Graph endpoint.
	GraphBaseURL string `mapstructure:"graph_base_url" yaml:"graph_base_url"`

	// RequestsPerSecond paces Gmail API calls in quota units.
	RequestsPerSecond int `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// AIConfig holds settings for the completion provider.
type AIConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
}

// StorageConfig locates the local cache.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Preferences are user-facing settings edited from the settings view.
type Preferences struct {
	Theme           string `mapstructure:"theme" yaml:"theme" json:"theme"`
	AutoSync        bool   `mapstructure:"auto_sync" yaml:"auto_sync" json:"autoSync"`
	SyncIntervalMin int    `mapstructure:"sync_interval_min" yaml:"sync_interval_min" json:"syncInterval"`
}

// LogConfig controls the application log.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// DebugConfig holds developer toggles.
type DebugConfig struct {
	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox     MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	AI          AIConfig      `mapstructure:"ai" yaml:"ai"`
	Storage     StorageConfig `mapstructure:"storage" yaml:"storage"`
	Preferences Preferences   `mapstructure:"preferences" yaml:"preferences"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
	Debug       DebugConfig   `mapstructure:"debug" yaml:"debug"`
}

const appDirName = "mail-assistant"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mail-assistant/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", appDirName, "config.yaml")
}

// DefaultLogPath returns ~/.local/state/mail-assistant/mailassist.log.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailassist.log")
	}
	return filepath.Join(home, ".local", "state", appDirName, "mailassist.log")
}

// DefaultDBPath returns ~/.local/share/mail-assistant/cache.db.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cache.db")
	}
	return filepath.Join(home, ".local", "share", appDirName, "cache.db")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Mailbox: MailboxConfig{
			Provider:          ProviderMicrosoft,
			Tenant:            "common",
			PageSize:          50,
			GraphBaseURL:      "https://graph.microsoft.com/v1.0",
			RequestsPerSecond: 250,
		},
		AI: AIConfig{
			Provider: AIProviderAnthropic,
			Model:    "claude-sonnet-4-5-20250929",
		},
		Storage: StorageConfig{
			Path: DefaultDBPath(),
		},
		Preferences: Preferences{
			Theme:           "dark",
			AutoSync:        false,
			SyncIntervalMin: 5,
		},
		Log: LogConfig{
			Level: "info",
			Path:  DefaultLogPath(),
		},
	}
}

func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("mailbox.provider", cfg.Mailbox.Provider)
	v.SetDefault("mailbox.tenant", cfg.Mailbox.Tenant)
	v.SetDefault("mailbox.page_size", cfg.Mailbox.PageSize)
	v.SetDefault("mailbox.graph_base_url", cfg.Mailbox.GraphBaseURL)
	v.SetDefault("mailbox.requests_per_second", cfg.Mailbox.RequestsPerSecond)
	v.SetDefault("mailbox.client_id", "")
	v.SetDefault("mailbox.client_secret", "")
	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.base_url", "")
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("preferences.theme", cfg.Preferences.Theme)
	v.SetDefault("preferences.auto_sync", cfg.Preferences.AutoSync)
	v.SetDefault("preferences.sync_interval_min", cfg.Preferences.SyncIntervalMin)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.path", cfg.Log.Path)
	v.SetDefault("debug.metrics_addr", "")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILASSIST_ override file values
// (MAILASSIST_AI_PROVIDER overrides ai.provider). A missing file yields
// the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultAppConfig()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks enumerated settings and fills zero numeric values.
func (c *AppConfig) Validate() error {
	switch c.Mailbox.Provider {
	case ProviderGmail, ProviderMicrosoft:
	default:
		return fmt.Errorf("unknown mailbox provider %q", c.Mailbox.Provider)
	}
	switch c.AI.Provider {
	case AIProviderAnthropic, AIProviderOpenAI:
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if c.Mailbox.PageSize <= 0 {
		c.Mailbox.PageSize = 50
	}
	if c.Preferences.SyncIntervalMin <= 0 {
		c.Preferences.SyncIntervalMin = 5
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("ai", cfg.AI)
	v.Set("storage", cfg.Storage)
	v.Set("preferences", cfg.Preferences)
	v.Set("log", cfg.Log)
	v.Set("debug", cfg.Debug)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
