// Package assistant – secrets.go resolves credentials using the OS keyring
// and the encrypted vault.
//
// Priority for resolving secrets:
//  1. Encrypted vault (.homeclaw.vault — AES-256-GCM + Argon2, master password)
//  2. OS keyring (encrypted by the OS, requires user session)
//  3. Environment variable / .env (loaded by godotenv)
//  4. config.yaml value (least secure — plaintext on disk)
package assistant

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/config"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "homeclaw"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ResolveSecrets resolves the LLM API key using the priority chain
// vault → keyring → env/config, updating cfg in place. If a vault exists
// it is unlocked via HOMECLAW_VAULT_PASSWORD or an interactive prompt, and
// its secrets are exported to the environment for ${VAR} config references.
// Returns the unlocked vault (or nil) for reuse by the vault CLI.
func ResolveSecrets(cfg *config.Config, logger *slog.Logger) *Vault {
	vault := NewVault(VaultFile)
	if vault.Exists() {
		if envPass := os.Getenv("HOMECLAW_VAULT_PASSWORD"); envPass != "" {
			if err := vault.Unlock(envPass); err != nil {
				logger.Warn("failed to unlock vault with HOMECLAW_VAULT_PASSWORD", "error", err)
			} else {
				logger.Info("vault unlocked via HOMECLAW_VAULT_PASSWORD")
			}
		}

		if !vault.IsUnlocked() && term.IsTerminal(int(os.Stdin.Fd())) {
			password, err := ReadPassword("Vault password: ")
			if err != nil {
				logger.Warn("failed to read vault password", "error", err)
			} else if err := vault.Unlock(password); err != nil {
				logger.Warn("failed to unlock vault", "error", err)
			}
		}

		if vault.IsUnlocked() {
			if err := vault.InjectSecrets(); err != nil {
				logger.Warn("failed to inject vault secrets", "error", err)
			}
			if key, err := vault.Get("HOMECLAW_API_KEY"); err == nil && key != "" {
				cfg.API.APIKey = key
			}
			logger.Debug("secrets resolved from vault")
			return vault
		}
		logger.Info("vault exists but is locked, falling back to keyring/env")
	}

	if cfg.API.APIKey == "" {
		if val := GetKeyring(keyringAPIKey); val != "" {
			cfg.API.APIKey = val
			logger.Debug("API key loaded from OS keyring")
		}
	}
	return nil
}
