package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("overlays defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
logging:
  level: debug
api:
  model: gpt-4o
`))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug, got %q", cfg.Logging.Level)
		}
		// Untouched fields keep their defaults.
		if cfg.Logging.Format != "json" {
			t.Errorf("expected default format json, got %q", cfg.Logging.Format)
		}
		if cfg.API.BaseURL != "https://api.openai.com/v1" {
			t.Errorf("expected default base URL, got %q", cfg.API.BaseURL)
		}
		if cfg.API.Model != "gpt-4o" {
			t.Errorf("expected gpt-4o, got %q", cfg.API.Model)
		}
		if cfg.History.MaxEntries != 50 || cfg.History.TTLHours != 24 {
			t.Errorf("unexpected history defaults: %+v", cfg.History)
		}
	})

	t.Run("invalid yaml errors", func(t *testing.T) {
		if _, err := Parse([]byte("logging: [broken")); err == nil {
			t.Error("expected a parse error")
		}
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Run("set variables are substituted", func(t *testing.T) {
		t.Setenv("HOMECLAW_TEST_TOKEN", "tok-123")

		got := expandEnvVars("token: ${HOMECLAW_TEST_TOKEN}")
		if got != "token: tok-123" {
			t.Errorf("unexpected expansion: %q", got)
		}
	})

	t.Run("unset variables keep their placeholder", func(t *testing.T) {
		got := expandEnvVars("token: ${HOMECLAW_DEFINITELY_UNSET}")
		if got != "token: ${HOMECLAW_DEFINITELY_UNSET}" {
			t.Errorf("unexpected expansion: %q", got)
		}
	})
}

func TestResolveSecrets(t *testing.T) {
	t.Run("fills empty values from the environment", func(t *testing.T) {
		t.Setenv("HOMECLAW_API_KEY", "sk-from-env")
		t.Setenv("TELEGRAM_BOT_TOKEN", "tg-from-env")

		cfg := DefaultConfig()
		resolveSecrets(cfg)

		if cfg.API.APIKey != "sk-from-env" {
			t.Errorf("expected api key from env, got %q", cfg.API.APIKey)
		}
		if cfg.Channels.Telegram.Token != "tg-from-env" {
			t.Errorf("expected telegram token from env, got %q", cfg.Channels.Telegram.Token)
		}
	})

	t.Run("unresolved placeholders are replaced", func(t *testing.T) {
		t.Setenv("HOMECLAW_API_KEY", "sk-from-env")

		cfg := DefaultConfig()
		cfg.API.APIKey = "${HOMECLAW_API_KEY}"
		resolveSecrets(cfg)

		if cfg.API.APIKey != "sk-from-env" {
			t.Errorf("expected placeholder resolved, got %q", cfg.API.APIKey)
		}
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		t.Setenv("HOMECLAW_API_KEY", "sk-from-env")

		cfg := DefaultConfig()
		cfg.API.APIKey = "sk-explicit"
		resolveSecrets(cfg)

		if cfg.API.APIKey != "sk-explicit" {
			t.Errorf("expected explicit value kept, got %q", cfg.API.APIKey)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("HOMECLAW_TEST_MODEL", "gpt-4o")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
api:
  model: ${HOMECLAW_TEST_MODEL}
channels:
  telegram:
    enabled: true
    allowed_chats: [123, 456]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Model != "gpt-4o" {
		t.Errorf("expected env-expanded model, got %q", cfg.API.Model)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("expected telegram enabled")
	}
	if len(cfg.Channels.Telegram.AllowedChats) != 2 || cfg.Channels.Telegram.AllowedChats[0] != 123 {
		t.Errorf("unexpected allowed chats: %v", cfg.Channels.Telegram.AllowedChats)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("expected debug after round-trip, got %q", loaded.Logging.Level)
	}
}
