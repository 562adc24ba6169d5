// Package config handles loading homeclaw configuration from YAML files
// with secure credential management via environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root homeclaw configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	ClaudeCode ClaudeCodeConfig `yaml:"claude_code"`
	Database   DatabaseConfig   `yaml:"database"`
	History    HistoryConfig    `yaml:"history"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Tools      ToolsConfig      `yaml:"tools"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// APIConfig configures the LLM provider endpoint.
type APIConfig struct {
	// BaseURL is an OpenAI-compatible API base (default api.openai.com/v1).
	BaseURL string `yaml:"base_url"`

	// APIKey is the provider key. Prefer ${HOMECLAW_API_KEY} in the file.
	APIKey string `yaml:"api_key"`

	// Model is the chat model identifier.
	Model string `yaml:"model"`
}

// ClaudeCodeConfig configures the coding-agent subsystem.
type ClaudeCodeConfig struct {
	// RegistryPath is the project registry yaml file.
	RegistryPath string `yaml:"registry_path"`

	// PermissionsPath is the saved permission rules yaml file.
	PermissionsPath string `yaml:"permissions_path"`

	// CLIPath overrides the claude binary location (default "claude" on PATH).
	CLIPath string `yaml:"cli_path"`
}

// DatabaseConfig configures the central SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig bounds the assistant conversation history.
type HistoryConfig struct {
	// MaxEntries per chat (default 50).
	MaxEntries int `yaml:"max_entries"`

	// TTLHours before an idle conversation is dropped (default 24).
	TTLHours int `yaml:"ttl_hours"`
}

// ChannelsConfig enables and configures the messaging adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Token        string  `yaml:"token"`
	AllowedChats []int64 `yaml:"allowed_chats"`
	ParseMode    string  `yaml:"parse_mode"`
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Token           string   `yaml:"token"`
	AllowedGuilds   []string `yaml:"allowed_guilds"`
	AllowedChannels []string `yaml:"allowed_channels"`
}

// ToolsConfig holds API credentials for the assistant tools.
type ToolsConfig struct {
	Todoist TodoistConfig `yaml:"todoist"`
	Notion  NotionConfig  `yaml:"notion"`
	Brave   BraveConfig   `yaml:"brave"`
}

// TodoistConfig configures the Todoist task tool.
type TodoistConfig struct {
	APIToken string `yaml:"api_token"`
}

// NotionConfig configures the Notion notes tool.
type NotionConfig struct {
	APIKey string `yaml:"api_key"`

	// NotesDatabaseID is the database new notes are created in.
	NotesDatabaseID string `yaml:"notes_database_id"`
}

// BraveConfig configures the Brave Search tool.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		ClaudeCode: ClaudeCodeConfig{
			RegistryPath:    "./data/projects.yaml",
			PermissionsPath: "./data/permissions.yaml",
		},
		Database: DatabaseConfig{
			Path: "./data/homeclaw.db",
		},
		History: HistoryConfig{
			MaxEntries: 50,
			TTLHours:   24,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{ParseMode: "HTML"},
		},
	}
}

// envVarPattern matches ${VAR_NAME} references in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and parses a YAML configuration file. Loads .env files and
// expands ${VAR} environment references before parsing.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse([]byte(expandEnvVars(string(data))))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	return cfg, nil
}

// Parse parses YAML bytes into a Config, overlaying the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Save writes a Config as YAML with restricted permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"homeclaw.yaml",
		"homeclaw.yml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
// godotenv.Load does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables keep their placeholder so resolveSecrets can act on them.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// resolveSecrets fills in secrets from well-known environment variables
// when the config value is empty or an unresolved placeholder.
func resolveSecrets(cfg *Config) {
	if cfg.API.APIKey == "" || isEnvReference(cfg.API.APIKey) {
		for _, name := range []string{"HOMECLAW_API_KEY", "OPENAI_API_KEY"} {
			if key := os.Getenv(name); key != "" {
				cfg.API.APIKey = key
				break
			}
		}
	}
	if cfg.Channels.Telegram.Token == "" || isEnvReference(cfg.Channels.Telegram.Token) {
		if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
			cfg.Channels.Telegram.Token = v
		}
	}
	if cfg.Channels.Discord.Token == "" || isEnvReference(cfg.Channels.Discord.Token) {
		if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
			cfg.Channels.Discord.Token = v
		}
	}
	if cfg.Tools.Todoist.APIToken == "" || isEnvReference(cfg.Tools.Todoist.APIToken) {
		if v := os.Getenv("TODOIST_API_TOKEN"); v != "" {
			cfg.Tools.Todoist.APIToken = v
		}
	}
	if cfg.Tools.Notion.APIKey == "" || isEnvReference(cfg.Tools.Notion.APIKey) {
		if v := os.Getenv("NOTION_API_KEY"); v != "" {
			cfg.Tools.Notion.APIKey = v
		}
	}
	if cfg.Tools.Brave.APIKey == "" || isEnvReference(cfg.Tools.Brave.APIKey) {
		if v := os.Getenv("BRAVE_API_KEY"); v != "" {
			cfg.Tools.Brave.APIKey = v
		}
	}
}

// isEnvReference checks if a string is an unresolved ${VAR} placeholder.
func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${")
}
