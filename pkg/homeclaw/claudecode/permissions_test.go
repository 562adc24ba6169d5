package claudecode

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *PermissionStore {
	t.Helper()
	return NewPermissionStore(filepath.Join(t.TempDir(), "permissions.yaml"), nil)
}

func TestCheckPermission(t *testing.T) {
	t.Run("no rules yields ask", func(t *testing.T) {
		s := newTestStore(t)
		if d := s.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/a.md"}); d != DecisionAsk {
			t.Errorf("expected ask, got %s", d)
		}
	})

	t.Run("deny wins over allow", func(t *testing.T) {
		s := newTestStore(t)
		s.projects["blog"] = &ProjectRules{
			Allowed: []Rule{{Tool: "Edit", Pattern: "/srv/blog/**/*.md"}},
			Denied:  []Rule{{Tool: "Edit", Pattern: "/srv/blog/**/*.md"}},
		}
		s.loaded = true
		if d := s.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/posts/new.md"}); d != DecisionDenied {
			t.Errorf("expected denied, got %s", d)
		}
	})

	t.Run("glob pattern scopes the allowance", func(t *testing.T) {
		s := newTestStore(t)
		s.projects["blog"] = &ProjectRules{
			Allowed: []Rule{{Tool: "Edit", Pattern: "/srv/blog/**/*.md"}},
		}
		s.loaded = true

		if d := s.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/posts/new.md"}); d != DecisionAllowed {
			t.Errorf("matching edit: expected allowed, got %s", d)
		}
		if d := s.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/config.json"}); d != DecisionAsk {
			t.Errorf("non-matching edit: expected ask, got %s", d)
		}
	})

	t.Run("blanket rule matches any invocation of its tool", func(t *testing.T) {
		s := newTestStore(t)
		s.projects["blog"] = &ProjectRules{Denied: []Rule{{Tool: "WebFetch"}}}
		s.loaded = true

		if d := s.Check("blog", "WebFetch", map[string]any{"url": "https://example.com"}); d != DecisionDenied {
			t.Errorf("expected denied, got %s", d)
		}
		if d := s.Check("blog", "Read", map[string]any{}); d != DecisionAsk {
			t.Errorf("other tool: expected ask, got %s", d)
		}
	})

	t.Run("bash exact command match", func(t *testing.T) {
		s := newTestStore(t)
		s.projects["blog"] = &ProjectRules{
			Allowed: []Rule{{Tool: "Bash", Command: "go test ./..."}},
		}
		s.loaded = true

		if d := s.Check("blog", "Bash", map[string]any{"command": "go test ./..."}); d != DecisionAllowed {
			t.Errorf("exact command: expected allowed, got %s", d)
		}
		if d := s.Check("blog", "Bash", map[string]any{"command": "go test ./... -run TestX"}); d != DecisionAsk {
			t.Errorf("different command: expected ask, got %s", d)
		}
	})

	t.Run("bash regex pattern match", func(t *testing.T) {
		s := newTestStore(t)
		s.projects["blog"] = &ProjectRules{
			Denied: []Rule{{Tool: "Bash", CommandPattern: `^rm\s`}},
		}
		s.loaded = true

		if d := s.Check("blog", "Bash", map[string]any{"command": "rm -rf /tmp/x"}); d != DecisionDenied {
			t.Errorf("expected denied, got %s", d)
		}
	})

	t.Run("projects are isolated", func(t *testing.T) {
		s := newTestStore(t)
		s.projects["blog"] = &ProjectRules{Allowed: []Rule{{Tool: "Read"}}}
		s.loaded = true

		if d := s.Check("api", "Read", map[string]any{}); d != DecisionAsk {
			t.Errorf("expected ask for other project, got %s", d)
		}
	})
}

func TestRemember(t *testing.T) {
	t.Run("file approval generalizes to directory and extension", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Remember("blog", "Edit", map[string]any{"file_path": "/srv/blog/posts/new.md"}, true); err != nil {
			t.Fatal(err)
		}

		rules, _ := s.ProjectPermissions("blog")
		if len(rules.Allowed) != 1 {
			t.Fatalf("expected 1 allowed rule, got %d", len(rules.Allowed))
		}
		if got := rules.Allowed[0].Pattern; got != "/srv/blog/posts/**/*.md" {
			t.Errorf("expected generalized glob, got %q", got)
		}

		// The rule covers the approved file itself, its same-directory
		// siblings, and nested files of the same type.
		for _, path := range []string{
			"/srv/blog/posts/new.md",
			"/srv/blog/posts/other.md",
			"/srv/blog/posts/2024/deep.md",
		} {
			if d := s.Check("blog", "Edit", map[string]any{"file_path": path}); d != DecisionAllowed {
				t.Errorf("%s: expected allowed, got %s", path, d)
			}
		}
		if d := s.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/posts/config.json"}); d != DecisionAsk {
			t.Errorf("other extension: expected ask, got %s", d)
		}
	})

	t.Run("file with no extension stays exact", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Remember("blog", "Read", map[string]any{"file_path": "/srv/blog/Makefile"}, true); err != nil {
			t.Fatal(err)
		}
		rules, _ := s.ProjectPermissions("blog")
		if got := rules.Allowed[0].Pattern; got != "/srv/blog/Makefile" {
			t.Errorf("expected exact path, got %q", got)
		}
	})

	t.Run("bash commands are remembered exactly", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Remember("blog", "Bash", map[string]any{"command": "npm run build"}, false); err != nil {
			t.Fatal(err)
		}
		rules, _ := s.ProjectPermissions("blog")
		if len(rules.Denied) != 1 || rules.Denied[0].Command != "npm run build" {
			t.Errorf("expected exact denied command, got %+v", rules.Denied)
		}
		if d := s.Check("blog", "Bash", map[string]any{"command": "npm run build"}); d != DecisionDenied {
			t.Errorf("expected denied, got %s", d)
		}
	})

	t.Run("remember is idempotent", func(t *testing.T) {
		s := newTestStore(t)
		input := map[string]any{"file_path": "/srv/blog/posts/new.md"}
		for i := 0; i < 2; i++ {
			if err := s.Remember("blog", "Edit", input, true); err != nil {
				t.Fatal(err)
			}
		}
		rules, _ := s.ProjectPermissions("blog")
		if len(rules.Allowed) != 1 {
			t.Errorf("expected 1 rule after duplicate remember, got %d", len(rules.Allowed))
		}
	})

	t.Run("decisions survive a reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "permissions.yaml")
		s := NewPermissionStore(path, nil)
		if err := s.Remember("blog", "Edit", map[string]any{"file_path": "/srv/blog/a.md"}, true); err != nil {
			t.Fatal(err)
		}

		fresh := NewPermissionStore(path, nil)
		if d := fresh.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/b.md"}); d != DecisionAllowed {
			t.Errorf("expected allowed after reload, got %s", d)
		}
	})
}

func TestClearProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	s := NewPermissionStore(path, nil)
	if err := s.Remember("blog", "Edit", map[string]any{"file_path": "/srv/blog/a.md"}, true); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearProject("blog"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.ProjectPermissions("blog"); ok {
		t.Error("expected no permissions after clear")
	}
	if d := s.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/a.md"}); d != DecisionAsk {
		t.Errorf("expected ask after clear, got %s", d)
	}

	// Clearing an unknown project is a no-op, not an error.
	if err := s.ClearProject("ghost"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// The flush removed the project from disk too.
	fresh := NewPermissionStore(path, nil)
	if _, ok := fresh.ProjectPermissions("blog"); ok {
		t.Error("expected project absent on disk after clear")
	}
}
