package assistant

import (
	"path/filepath"
	"testing"
)

func TestVault(t *testing.T) {
	t.Run("set and get round-trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.vault")
		v := NewVault(path)
		if err := v.Create("hunter2"); err != nil {
			t.Fatal(err)
		}
		if err := v.Set("NOTION_API_KEY", "secret-value"); err != nil {
			t.Fatal(err)
		}

		got, err := v.Get("NOTION_API_KEY")
		if err != nil {
			t.Fatal(err)
		}
		if got != "secret-value" {
			t.Errorf("expected secret-value, got %q", got)
		}
	})

	t.Run("unlock with correct password after restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.vault")
		v := NewVault(path)
		if err := v.Create("hunter2"); err != nil {
			t.Fatal(err)
		}
		if err := v.Set("KEY", "value"); err != nil {
			t.Fatal(err)
		}

		v2 := NewVault(path)
		if err := v2.Unlock("hunter2"); err != nil {
			t.Fatal(err)
		}
		got, err := v2.Get("KEY")
		if err != nil || got != "value" {
			t.Errorf("expected value, got %q (err %v)", got, err)
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.vault")
		v := NewVault(path)
		if err := v.Create("hunter2"); err != nil {
			t.Fatal(err)
		}
		if err := v.Set("KEY", "value"); err != nil {
			t.Fatal(err)
		}

		v2 := NewVault(path)
		if err := v2.Unlock("wrong"); err == nil {
			t.Error("expected unlock to fail with wrong password")
		}
	})

	t.Run("locked vault refuses access", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.vault")
		v := NewVault(path)
		if err := v.Create("hunter2"); err != nil {
			t.Fatal(err)
		}
		v.Lock()

		if err := v.Set("KEY", "value"); err == nil {
			t.Error("expected Set on locked vault to fail")
		}
		if _, err := v.Get("KEY"); err == nil {
			t.Error("expected Get on locked vault to fail")
		}
	})

	t.Run("list excludes internal entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.vault")
		v := NewVault(path)
		if err := v.Create("hunter2"); err != nil {
			t.Fatal(err)
		}
		if err := v.Set("A", "1"); err != nil {
			t.Fatal(err)
		}
		if err := v.Set("B", "2"); err != nil {
			t.Fatal(err)
		}

		keys := v.List()
		if len(keys) != 2 {
			t.Errorf("expected 2 keys, got %v", keys)
		}
		for _, k := range keys {
			if k == vaultVerifyKey {
				t.Error("internal verification entry leaked into List")
			}
		}
	})

	t.Run("missing key returns empty without error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.vault")
		v := NewVault(path)
		if err := v.Create("hunter2"); err != nil {
			t.Fatal(err)
		}

		got, err := v.Get("NOPE")
		if err != nil || got != "" {
			t.Errorf("expected empty result, got %q (err %v)", got, err)
		}
	})
}
