package claudecode

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRegistry(t *testing.T, content string) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewRegistry(path)
}

const sampleRegistry = `allowed_user_id: "u-100"
projects:
  - name: blog
    path: /srv/blog
  - name: API
    path: /srv/api
`

func TestRegistryLookup(t *testing.T) {
	r := writeRegistry(t, sampleRegistry)

	t.Run("get is case-insensitive", func(t *testing.T) {
		for _, name := range []string{"blog", "Blog", "BLOG"} {
			p, ok := r.Get(name)
			if !ok || p.Path != "/srv/blog" {
				t.Errorf("Get(%q) = %+v, %v", name, p, ok)
			}
		}
	})

	t.Run("exists", func(t *testing.T) {
		if !r.Exists("api") {
			t.Error("expected api to exist")
		}
		if r.Exists("ghost") {
			t.Error("expected ghost to be unknown")
		}
	})

	t.Run("list preserves insertion order", func(t *testing.T) {
		projects := r.List()
		if len(projects) != 2 {
			t.Fatalf("expected 2 projects, got %d", len(projects))
		}
		if projects[0].Name != "blog" || projects[1].Name != "API" {
			t.Errorf("unexpected order: %+v", projects)
		}
	})
}

func TestRegistryAuthorization(t *testing.T) {
	r := writeRegistry(t, sampleRegistry)

	t.Run("exact id matches", func(t *testing.T) {
		if !r.IsAuthorizedUser("u-100") {
			t.Error("expected u-100 to be authorized")
		}
	})

	t.Run("other ids are refused", func(t *testing.T) {
		if r.IsAuthorizedUser("u-200") {
			t.Error("expected u-200 to be refused")
		}
	})

	t.Run("empty configured id authorizes nobody", func(t *testing.T) {
		empty := writeRegistry(t, "allowed_user_id: \"\"\nprojects: []\n")
		if empty.IsAuthorizedUser("") {
			t.Error("empty id must not authorize the empty user")
		}
	})
}

func TestRegistryMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	r := NewRegistry(path)

	// Fails safe: nothing usable until configured.
	if r.IsAuthorizedUser("anyone") {
		t.Error("fresh registry must authorize nobody")
	}
	if got := r.List(); len(got) != 0 {
		t.Errorf("fresh registry must have no projects, got %+v", got)
	}

	// First use wrote defaults for the operator to edit.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected defaults written to disk: %v", err)
	}
}

func TestRegistryReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(path, []byte(sampleRegistry), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(path)
	if !r.Exists("blog") {
		t.Fatal("expected blog before edit")
	}

	edited := "allowed_user_id: \"u-100\"\nprojects:\n  - name: notes\n    path: /srv/notes\n"
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}

	if r.Exists("blog") {
		t.Error("expected blog gone after reload")
	}
	if !r.Exists("notes") {
		t.Error("expected notes after reload")
	}
}

func TestRegistryCorruptFile(t *testing.T) {
	r := writeRegistry(t, "{{{ not yaml :::")
	if err := r.Reload(); err == nil {
		t.Error("expected corrupt registry to surface an error")
	}

	t.Run("accessors fail safe and log the cause once", func(t *testing.T) {
		r := writeRegistry(t, "{{{ not yaml :::")
		var buf bytes.Buffer
		r.logger = slog.New(slog.NewTextHandler(&buf, nil))

		if r.IsAuthorizedUser("u-100") {
			t.Error("corrupt registry must authorize nobody")
		}
		if got := r.List(); len(got) != 0 {
			t.Errorf("corrupt registry must list no projects, got %+v", got)
		}

		logged := buf.String()
		if !strings.Contains(logged, "project registry unusable") {
			t.Errorf("expected load error logged, got %q", logged)
		}
		if strings.Count(logged, "project registry unusable") != 1 {
			t.Errorf("expected the error logged once, got %q", logged)
		}
	})
}
