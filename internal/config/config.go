package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rg/reactor/internal/reaction"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	Reactions ReactionsConfig `yaml:"reactions"`
	Admin     AdminConfig     `yaml:"admin"`
	Storage   StorageConfig   `yaml:"storage"`
	Commands  CommandsConfig  `yaml:"commands"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

type TelegramConfig struct {
	// ListenerToken defaults to the first authenticated pool account.
	ListenerToken  string   `yaml:"listener_token" env:"REACTOR_TELEGRAM_LISTENER_TOKEN"`
	APIEndpoint    string   `yaml:"api_endpoint" env:"REACTOR_TELEGRAM_API_ENDPOINT"`
	Mode           string   `yaml:"mode" env:"REACTOR_TELEGRAM_MODE"`
	ListenAddr     string   `yaml:"listen_addr" env:"REACTOR_TELEGRAM_LISTEN_ADDR"`
	WebhookURL     string   `yaml:"webhook_url" env:"REACTOR_TELEGRAM_WEBHOOK_URL"`
	AllowedChatIDs []string `yaml:"allowed_chat_ids" env:"REACTOR_TELEGRAM_ALLOWED_CHAT_IDS"`
}

type AccountsConfig struct {
	Tokens     []string `yaml:"tokens" env:"REACTOR_ACCOUNTS_TOKENS"`
	RatePerSec int      `yaml:"rate_per_sec" env:"REACTOR_ACCOUNTS_RATE_PER_SEC"`
}

type ReactionsConfig struct {
	DefaultEmoji      string        `yaml:"default_emoji" env:"REACTOR_REACTIONS_DEFAULT_EMOJI"`
	MonitoredChannels []string      `yaml:"monitored_channels" env:"REACTOR_REACTIONS_MONITORED_CHANNELS"`
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout" env:"REACTOR_REACTIONS_DISPATCH_TIMEOUT"`
	MaxConcurrency    int           `yaml:"max_concurrency" env:"REACTOR_REACTIONS_MAX_CONCURRENCY"`
}

type AdminConfig struct {
	// Token is the privileged session used by /provision. Empty disables it.
	Token   string   `yaml:"token" env:"REACTOR_ADMIN_TOKEN"`
	UserIDs []string `yaml:"user_ids" env:"REACTOR_ADMIN_USER_IDS"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" env:"REACTOR_STORAGE_DB_PATH"`
}

type CommandsConfig struct {
	RateLimit  int           `yaml:"rate_limit" env:"REACTOR_COMMANDS_RATE_LIMIT"`
	RateWindow time.Duration `yaml:"rate_window" env:"REACTOR_COMMANDS_RATE_WINDOW"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"REACTOR_LOGGING_LEVEL"`
	Format string `yaml:"format" env:"REACTOR_LOGGING_FORMAT"`
}

type SecurityConfig struct {
	SecretPatterns []string `yaml:"secret_patterns" env:"REACTOR_SECURITY_SECRET_PATTERNS"`
}

// Default returns the values used for keys the config file leaves out.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Mode: "polling",
		},
		Accounts: AccountsConfig{
			RatePerSec: 20,
		},
		Reactions: ReactionsConfig{
			DefaultEmoji:    "👍",
			DispatchTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DBPath: "./data/reactor.db",
		},
		Commands: CommandsConfig{
			RateLimit:  10,
			RateWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	content := expandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Accounts.Tokens) == 0 {
		return fmt.Errorf("accounts.tokens is required (at least one bot token)")
	}
	for i, token := range c.Accounts.Tokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("accounts.tokens[%d] is empty", i)
		}
	}
	if c.Accounts.RatePerSec < 0 {
		return fmt.Errorf("accounts.rate_per_sec must not be negative")
	}

	switch c.Telegram.Mode {
	case "polling":
	case "webhook":
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("telegram.webhook_url is required in webhook mode")
		}
		if c.Telegram.ListenAddr == "" {
			return fmt.Errorf("telegram.listen_addr is required in webhook mode")
		}
	default:
		return fmt.Errorf("telegram.mode must be polling or webhook, got %q", c.Telegram.Mode)
	}

	if err := validateIDs("telegram.allowed_chat_ids", c.Telegram.AllowedChatIDs); err != nil {
		return err
	}
	if err := validateIDs("admin.user_ids", c.Admin.UserIDs); err != nil {
		return err
	}

	if strings.TrimSpace(c.Reactions.DefaultEmoji) == "" {
		return fmt.Errorf("reactions.default_emoji is required")
	}
	if _, err := c.MonitoredChannels(); err != nil {
		return err
	}
	if c.Reactions.DispatchTimeout < 0 {
		return fmt.Errorf("reactions.dispatch_timeout must not be negative")
	}
	if c.Reactions.MaxConcurrency < 0 {
		return fmt.Errorf("reactions.max_concurrency must not be negative")
	}

	if c.Admin.Token != "" && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when admin.token is set")
	}

	if c.Commands.RateLimit < 0 {
		return fmt.Errorf("commands.rate_limit must not be negative")
	}
	if c.Commands.RateLimit > 0 && c.Commands.RateWindow <= 0 {
		return fmt.Errorf("commands.rate_window is required when commands.rate_limit is set")
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func validateIDs(field string, ids []string) error {
	for i, id := range ids {
		if _, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err != nil {
			return fmt.Errorf("%s[%d] must be a numeric id, got %q", field, i, id)
		}
	}
	return nil
}

// MonitoredChannels parses reactions.monitored_channels.
func (c *Config) MonitoredChannels() ([]reaction.ChatRef, error) {
	refs := make([]reaction.ChatRef, 0, len(c.Reactions.MonitoredChannels))
	for i, raw := range c.Reactions.MonitoredChannels {
		ref, err := reaction.ParseChatRef(raw)
		if err != nil {
			return nil, fmt.Errorf("reactions.monitored_channels[%d]: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// SlogLevel returns the configured level. Unknown values were rejected by
// validate, so they fall back to info here.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, err := parseLevel(l.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return level, nil
}

func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Telegram Mode: %s\n", c.Telegram.Mode))
	if c.Telegram.ListenerToken != "" {
		sb.WriteString(fmt.Sprintf("  Telegram Listener Token: %s\n", maskSecret(c.Telegram.ListenerToken)))
	}
	if c.Telegram.ListenAddr != "" {
		sb.WriteString(fmt.Sprintf("  Telegram Listen Addr: %s\n", c.Telegram.ListenAddr))
	}
	sb.WriteString(fmt.Sprintf("  Telegram Allowed Chats: %d\n", len(c.Telegram.AllowedChatIDs)))
	sb.WriteString(fmt.Sprintf("  Accounts: %d\n", len(c.Accounts.Tokens)))
	for i, token := range c.Accounts.Tokens {
		sb.WriteString(fmt.Sprintf("    [%d] %s\n", i, maskSecret(token)))
	}
	sb.WriteString(fmt.Sprintf("  Accounts Rate Per Sec: %d\n", c.Accounts.RatePerSec))
	sb.WriteString(fmt.Sprintf("  Default Emoji: %s\n", c.Reactions.DefaultEmoji))
	sb.WriteString(fmt.Sprintf("  Monitored Channels: %s\n", strings.Join(c.Reactions.MonitoredChannels, ", ")))
	sb.WriteString(fmt.Sprintf("  Dispatch Timeout: %s\n", c.Reactions.DispatchTimeout))
	sb.WriteString(fmt.Sprintf("  Max Concurrency: %d\n", c.Reactions.MaxConcurrency))
	if c.Admin.Token != "" {
		sb.WriteString(fmt.Sprintf("  Admin Token: %s\n", maskSecret(c.Admin.Token)))
	} else {
		sb.WriteString("  Admin Token: (provisioning disabled)\n")
	}
	sb.WriteString(fmt.Sprintf("  Storage DB Path: %s\n", c.Storage.DBPath))
	sb.WriteString(fmt.Sprintf("  Command Rate Limit: %d per %s\n", c.Commands.RateLimit, c.Commands.RateWindow))
	sb.WriteString(fmt.Sprintf("  Logging: %s (%s)\n", c.Logging.Level, c.Logging.Format))
	return sb.String()
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
