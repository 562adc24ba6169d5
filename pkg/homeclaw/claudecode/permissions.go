package claudecode

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Decision is the three-valued outcome of a permission lookup. It is never
// persisted; it is derived per lookup from the rule lists.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionDenied  Decision = "denied"
	DecisionAsk     Decision = "ask"
)

// Rule is a stored authorization decision. A rule with none of
// Pattern/Command/CommandPattern matches every invocation of Tool.
// Rules are never mutated after creation; new decisions append new rules.
type Rule struct {
	Tool string `yaml:"tool"`

	// Pattern is a file glob (*, **, ?) matched against the
	// invocation's file_path input.
	Pattern string `yaml:"pattern,omitempty"`

	// Command matches a Bash invocation's command string exactly.
	Command string `yaml:"command,omitempty"`

	// CommandPattern is a regex matched against a Bash command string.
	CommandPattern string `yaml:"command_pattern,omitempty"`
}

// ProjectRules partitions a project's rules into allow and deny lists.
type ProjectRules struct {
	Allowed []Rule `yaml:"allowed"`
	Denied  []Rule `yaml:"denied"`
}

// PermissionStore holds per-project permission rules, persisted to a yaml
// file keyed by project name. Every mutation is flushed to disk before the
// in-memory state is considered authoritative.
type PermissionStore struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	loaded   bool
	projects map[string]*ProjectRules
}

// NewPermissionStore creates a store backed by the given yaml file.
func NewPermissionStore(path string, logger *slog.Logger) *PermissionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionStore{
		path:     path,
		logger:   logger.With("component", "permission_store"),
		projects: make(map[string]*ProjectRules),
	}
}

func (s *PermissionStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading permission store: %w", err)
	}
	var file map[string]*ProjectRules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing permission store %s: %w", s.path, err)
	}
	if file != nil {
		s.projects = file
	}
	s.loaded = true
	return nil
}

func (s *PermissionStore) flush() error {
	data, err := yaml.Marshal(s.projects)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Check resolves a tool invocation against the project's rules. Denied
// rules are scanned first: deny always wins on conflicting matches. No
// match in either list yields DecisionAsk.
func (s *PermissionStore) Check(project, tool string, input map[string]any) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		s.logger.Error("permission store load failed", "error", err)
		return DecisionAsk
	}

	rules, ok := s.projects[project]
	if !ok {
		return DecisionAsk
	}
	for _, r := range rules.Denied {
		if ruleMatches(r, tool, input) {
			return DecisionDenied
		}
	}
	for _, r := range rules.Allowed {
		if ruleMatches(r, tool, input) {
			return DecisionAllowed
		}
	}
	return DecisionAsk
}

// ruleMatches reports whether a rule applies to one tool invocation.
func ruleMatches(r Rule, tool string, input map[string]any) bool {
	if r.Tool != tool {
		return false
	}

	// No constraints: blanket rule for this tool.
	if r.Pattern == "" && r.Command == "" && r.CommandPattern == "" {
		return true
	}

	if r.Pattern != "" {
		if path, ok := input["file_path"].(string); ok && path != "" {
			if globMatch(r.Pattern, path) {
				return true
			}
		}
	}

	if tool == "Bash" {
		if cmd, ok := input["command"].(string); ok && cmd != "" {
			if r.Command != "" && r.Command == cmd {
				return true
			}
			if r.CommandPattern != "" {
				if re, err := regexp.Compile(r.CommandPattern); err == nil && re.MatchString(cmd) {
					return true
				}
			}
		}
	}

	return false
}

// globMatch matches a file path against a glob with '/' as the separator.
// gobwas/glob compiles "/**/" to require at least one intermediate path
// segment, but a "<dir>/**/*.<ext>" rule must also cover files directly in
// <dir> — the path the rule was generalized from. So a pattern containing
// "/**/" is additionally tried with that component collapsed to "/".
func globMatch(pattern, path string) bool {
	if g, err := glob.Compile(pattern, '/'); err == nil && g.Match(path) {
		return true
	}
	if strings.Contains(pattern, "/**/") {
		collapsed := strings.ReplaceAll(pattern, "/**/", "/")
		if g, err := glob.Compile(collapsed, '/'); err == nil && g.Match(path) {
			return true
		}
	}
	return false
}

// Remember synthesizes a rule from an invocation and appends it to the
// project's allowed or denied list, then flushes.
//
// File inputs generalize to a directory+extension glob so one approval
// covers sibling files of the same type; a path with no extension stays
// exact. Bash commands are remembered exactly — two syntactically different
// commands can do wildly different things, so no command-family heuristic
// is trusted. Exact duplicates are suppressed, making Remember idempotent.
func (s *PermissionStore) Remember(project, tool string, input map[string]any, approved bool) error {
	rule := Rule{Tool: tool}

	if path, ok := input["file_path"].(string); ok && path != "" {
		if ext := filepath.Ext(path); ext != "" {
			rule.Pattern = filepath.Join(filepath.Dir(path), "**", "*"+ext)
		} else {
			rule.Pattern = path
		}
	} else if tool == "Bash" {
		if cmd, ok := input["command"].(string); ok && cmd != "" {
			rule.Command = cmd
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	rules, ok := s.projects[project]
	if !ok {
		rules = &ProjectRules{}
		s.projects[project] = rules
	}

	list := &rules.Denied
	if approved {
		list = &rules.Allowed
	}
	for _, existing := range *list {
		if existing == rule {
			return nil
		}
	}
	*list = append(*list, rule)

	s.logger.Info("permission remembered",
		"project", project,
		"tool", tool,
		"approved", approved,
		"pattern", rule.Pattern,
		"command", rule.Command,
	)
	return s.flush()
}

// ClearProject deletes all rules for a project and flushes.
func (s *PermissionStore) ClearProject(project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := s.projects[project]; !ok {
		return nil
	}
	delete(s.projects, project)
	return s.flush()
}

// ProjectPermissions returns the raw rule lists for a project.
func (s *PermissionStore) ProjectPermissions(project string) (ProjectRules, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return ProjectRules{}, false
	}
	rules, ok := s.projects[project]
	if !ok {
		return ProjectRules{}, false
	}
	out := ProjectRules{
		Allowed: append([]Rule(nil), rules.Allowed...),
		Denied:  append([]Rule(nil), rules.Denied...),
	}
	return out, true
}
