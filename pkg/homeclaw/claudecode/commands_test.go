package claudecode

import "testing"

func testParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser(writeRegistry(t, sampleRegistry))
}

func TestParseClaudeCodeForms(t *testing.T) {
	p := testParser(t)

	t.Run("shorthand targets the first registered project", func(t *testing.T) {
		cmd := p.Parse("cc add a contact page")
		if cmd == nil || cmd.Type != CommandClaudeCode {
			t.Fatalf("expected claude_code command, got %+v", cmd)
		}
		if cmd.ProjectName != "blog" {
			t.Errorf("expected default project blog, got %q", cmd.ProjectName)
		}
		if cmd.Prompt != "add a contact page" {
			t.Errorf("unexpected prompt %q", cmd.Prompt)
		}
	})

	t.Run("explicit form", func(t *testing.T) {
		cmd := p.Parse("code api fix the login bug")
		if cmd == nil || cmd.ProjectName != "api" || cmd.Prompt != "fix the login bug" {
			t.Fatalf("unexpected command %+v", cmd)
		}
	})

	t.Run("mention form", func(t *testing.T) {
		cmd := p.Parse("@blog add a contact page")
		if cmd == nil || cmd.Type != CommandClaudeCode {
			t.Fatalf("expected claude_code command, got %+v", cmd)
		}
		if cmd.ProjectName != "blog" || cmd.Prompt != "add a contact page" {
			t.Errorf("unexpected command %+v", cmd)
		}
	})

	t.Run("natural form with comma and colon", func(t *testing.T) {
		for _, text := range []string{"in blog, update the footer", "in blog: update the footer"} {
			cmd := p.Parse(text)
			if cmd == nil || cmd.ProjectName != "blog" || cmd.Prompt != "update the footer" {
				t.Errorf("Parse(%q) = %+v", text, cmd)
			}
		}
	})

	t.Run("project matching is case-insensitive in every form", func(t *testing.T) {
		for _, text := range []string{"@Blog fix bug", "@blog fix bug", "code BLOG fix bug", "in Blog: fix bug"} {
			cmd := p.Parse(text)
			if cmd == nil || cmd.ProjectName != "blog" {
				t.Errorf("Parse(%q) = %+v", text, cmd)
			}
		}
	})

	t.Run("prompt keeps its original casing", func(t *testing.T) {
		cmd := p.Parse("@blog Add README.md To The Repo")
		if cmd == nil || cmd.Prompt != "Add README.md To The Repo" {
			t.Fatalf("unexpected command %+v", cmd)
		}
	})
}

func TestParseUtilityCommands(t *testing.T) {
	p := testParser(t)

	t.Run("list projects", func(t *testing.T) {
		for _, text := range []string{"projects", "list projects", "Projects"} {
			cmd := p.Parse(text)
			if cmd == nil || cmd.Type != CommandListProjects {
				t.Errorf("Parse(%q) = %+v", text, cmd)
			}
		}
	})

	t.Run("clear session lower-cases the project", func(t *testing.T) {
		cmd := p.Parse("clear session Blog")
		if cmd == nil || cmd.Type != CommandClearSession || cmd.ProjectName != "blog" {
			t.Fatalf("unexpected command %+v", cmd)
		}
	})

	t.Run("clear permissions", func(t *testing.T) {
		cmd := p.Parse("clear permissions api")
		if cmd == nil || cmd.Type != CommandClearPermissions || cmd.ProjectName != "api" {
			t.Fatalf("unexpected command %+v", cmd)
		}
	})
}

func TestParseRejections(t *testing.T) {
	p := testParser(t)

	t.Run("ordinary prose yields nil", func(t *testing.T) {
		for _, text := range []string{
			"just chatting",
			"what's the weather tomorrow?",
			"in my opinion this is fine", // "in" without a registered project
			"@nobody hello there",
			"code ghost fix it",
			"",
		} {
			if cmd := p.Parse(text); cmd != nil {
				t.Errorf("Parse(%q) = %+v, expected nil", text, cmd)
			}
		}
	})

	t.Run("shorthand with no projects yields nil", func(t *testing.T) {
		empty := NewParser(writeRegistry(t, "allowed_user_id: \"u-1\"\nprojects: []\n"))
		if cmd := empty.Parse("cc do something"); cmd != nil {
			t.Errorf("expected nil, got %+v", cmd)
		}
	})
}
