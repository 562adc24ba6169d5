package claudecode

import (
	"regexp"
	"strings"
)

// CommandType identifies a parsed chat command.
type CommandType string

const (
	CommandClaudeCode       CommandType = "claude_code"
	CommandListProjects     CommandType = "list_projects"
	CommandClearSession     CommandType = "clear_session"
	CommandClearPermissions CommandType = "clear_permissions"
)

// Command is a typed action extracted from free chat text.
type Command struct {
	Type        CommandType
	ProjectName string
	Prompt      string
}

// Humans type commands inconsistently, so recognition is a prioritized
// regex cascade: first match wins, and the project-bearing forms validate
// the name against the registry or fall through. That keeps ordinary prose
// that happens to start with "in ..." from being eaten as a command.
var (
	reShorthand   = regexp.MustCompile(`(?is)^cc\s+(.+)$`)
	reList        = regexp.MustCompile(`(?i)^(?:list\s+)?projects$`)
	reClearSess   = regexp.MustCompile(`(?i)^clear\s+session\s+(\S+)$`)
	reClearPerms  = regexp.MustCompile(`(?i)^clear\s+permissions\s+(\S+)$`)
	reExplicit    = regexp.MustCompile(`(?is)^code\s+(\S+)\s+(.+)$`)
	reMention     = regexp.MustCompile(`(?is)^@(\S+)\s+(.+)$`)
	reNatural     = regexp.MustCompile(`(?is)^in\s+([^\s,:]+)\s*[,:]\s*(.+)$`)
)

// Parser turns chat text into typed commands. It is stateless except for
// read-only registry lookups used to validate project names.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser bound to a project registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse classifies text. Unrecognized input yields nil, never an error.
// Project names match case-insensitively; prompts keep their original
// casing after the recognized prefix is stripped and trimmed.
func (p *Parser) Parse(text string) *Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// 1. Shorthand: "cc <prompt>" against the first registered project.
	if m := reShorthand.FindStringSubmatch(text); m != nil {
		projects := p.registry.List()
		if len(projects) == 0 {
			return nil
		}
		return &Command{
			Type:        CommandClaudeCode,
			ProjectName: strings.ToLower(projects[0].Name),
			Prompt:      strings.TrimSpace(m[1]),
		}
	}

	// 2. "projects" / "list projects".
	if reList.MatchString(text) {
		return &Command{Type: CommandListProjects}
	}

	// 3. "clear session <project>".
	if m := reClearSess.FindStringSubmatch(text); m != nil {
		return &Command{Type: CommandClearSession, ProjectName: strings.ToLower(m[1])}
	}

	// 4. "clear permissions <project>".
	if m := reClearPerms.FindStringSubmatch(text); m != nil {
		return &Command{Type: CommandClearPermissions, ProjectName: strings.ToLower(m[1])}
	}

	// 5. Explicit: "code <project> <prompt>".
	if cmd := p.projectCommand(reExplicit, text); cmd != nil {
		return cmd
	}

	// 6. Mention: "@<project> <prompt>".
	if cmd := p.projectCommand(reMention, text); cmd != nil {
		return cmd
	}

	// 7. Natural: "in <project>, <prompt>" / "in <project>: <prompt>".
	if cmd := p.projectCommand(reNatural, text); cmd != nil {
		return cmd
	}

	return nil
}

// projectCommand matches a two-group (project, prompt) form and rejects the
// whole match when the project is not registered, falling through to later
// patterns.
func (p *Parser) projectCommand(re *regexp.Regexp, text string) *Command {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	name := m[1]
	if !p.registry.Exists(name) {
		return nil
	}
	return &Command{
		Type:        CommandClaudeCode,
		ProjectName: strings.ToLower(name),
		Prompt:      strings.TrimSpace(m[2]),
	}
}
