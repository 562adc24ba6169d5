package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/assistant"
)

// newVaultCmd creates the `homeclaw vault` command group for managing the
// encrypted secret store.
func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the encrypted secret vault",
		Long: `The vault stores API keys encrypted with AES-256-GCM under a master
password (Argon2id key derivation). At startup, secrets are injected as
environment variables so ${VAR} references in config.yaml resolve.

Examples:
  homeclaw vault init
  homeclaw vault set NOTION_API_KEY
  homeclaw vault list`,
	}

	cmd.AddCommand(
		newVaultInitCmd(),
		newVaultSetCmd(),
		newVaultGetCmd(),
		newVaultListCmd(),
		newVaultDeleteCmd(),
	)
	return cmd
}

func newVaultInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new vault",
		RunE: func(_ *cobra.Command, _ []string) error {
			v := assistant.NewVault(assistant.VaultFile)
			if v.Exists() {
				return fmt.Errorf("vault already exists at %s", assistant.VaultFile)
			}
			password, err := assistant.ReadPassword("New master password: ")
			if err != nil {
				return err
			}
			confirm, err := assistant.ReadPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}
			if err := v.Create(password); err != nil {
				return err
			}
			fmt.Println("Vault created at", assistant.VaultFile)
			return nil
		},
	}
}

func newVaultSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret (value is prompted, not echoed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := unlockVault()
			if err != nil {
				return err
			}
			value, err := assistant.ReadPassword("Value for " + args[0] + ": ")
			if err != nil {
				return err
			}
			if err := v.Set(args[0], value); err != nil {
				return err
			}
			fmt.Println("Stored", args[0])
			return nil
		},
	}
}

func newVaultGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := unlockVault()
			if err != nil {
				return err
			}
			value, err := v.Get(args[0])
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("no secret named %q", args[0])
			}
			fmt.Println(value)
			return nil
		},
	}
}

func newVaultListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		RunE: func(_ *cobra.Command, _ []string) error {
			v, err := unlockVault()
			if err != nil {
				return err
			}
			keys := v.List()
			if len(keys) == 0 {
				fmt.Println("Vault is empty.")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func newVaultDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := unlockVault()
			if err != nil {
				return err
			}
			if err := v.Delete(args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted", args[0])
			return nil
		},
	}
}

func unlockVault() (*assistant.Vault, error) {
	v := assistant.NewVault(assistant.VaultFile)
	if !v.Exists() {
		return nil, fmt.Errorf("no vault found, run `homeclaw vault init` first")
	}
	password, err := assistant.ReadPassword("Vault password: ")
	if err != nil {
		return nil, err
	}
	if err := v.Unlock(password); err != nil {
		return nil, err
	}
	return v, nil
}
