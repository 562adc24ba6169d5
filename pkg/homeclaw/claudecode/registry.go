// Package claudecode implements the Claude Code subsystem: a command parser
// that turns chat text into typed actions, a project registry mapping names
// to filesystem roots, a persisted permission store with ask/allow/deny
// resolution, and an executor that drives coding-agent runs with
// human-in-the-loop permission gating.
package claudecode

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Project maps a human-readable name to a filesystem root.
type Project struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// registryFile is the on-disk format of the project registry.
type registryFile struct {
	// AllowedUserID is the single user id authorized for Claude Code.
	AllowedUserID string `yaml:"allowed_user_id"`

	// Projects keeps insertion order: the first entry is the default
	// project for shorthand commands.
	Projects []Project `yaml:"projects"`
}

// Registry is the source of truth for which projects exist and which user
// is authorized. It is loaded lazily from a yaml file and mutated only by
// out-of-band edits to that file; Reload picks those up without a restart.
type Registry struct {
	path   string
	logger *slog.Logger

	mu            sync.RWMutex
	loaded        bool
	loadErrLogged bool
	allowedUserID string
	projects      []Project
}

// NewRegistry creates a registry backed by the given yaml file. The file is
// not read until first use.
func NewRegistry(path string) *Registry {
	return &Registry{
		path:   path,
		logger: slog.Default().With("component", "project_registry"),
	}
}

// load reads the backing file. A missing file is self-healing: the registry
// initializes empty (no user authorized, no projects usable) and writes the
// defaults so the operator has a file to edit. Malformed content propagates
// as an error.
func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.allowedUserID = ""
		r.projects = nil
		r.loaded = true
		return r.writeDefaults()
	}
	if err != nil {
		return fmt.Errorf("reading project registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing project registry %s: %w", r.path, err)
	}

	r.allowedUserID = file.AllowedUserID
	r.projects = file.Projects
	r.loaded = true
	r.loadErrLogged = false
	return nil
}

func (r *Registry) writeDefaults() error {
	data, err := yaml.Marshal(registryFile{})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

func (r *Registry) ensureLoaded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	err := r.load()
	// Accessors fail safe on a corrupt file, which looks identical to an
	// unconfigured registry from the outside. Log the cause once so the
	// operator can tell them apart.
	if err != nil && !r.loadErrLogged {
		r.logger.Error("project registry unusable", "path", r.path, "error", err)
		r.loadErrLogged = true
	}
	return err
}

// Reload re-reads the backing file, picking up live operator edits.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// IsAuthorizedUser reports whether userID is the registry's authorized
// user. An empty configured id authorizes nobody.
func (r *Registry) IsAuthorizedUser(userID string) bool {
	if err := r.ensureLoaded(); err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowedUserID != "" && r.allowedUserID == userID
}

// Get returns the project with the given name, case-insensitively.
func (r *Registry) Get(name string) (Project, bool) {
	if err := r.ensureLoaded(); err != nil {
		return Project{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Project{}, false
}

// Exists reports whether a project with the given name is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all projects in insertion order. The first entry is the
// default project for shorthand commands.
func (r *Registry) List() []Project {
	if err := r.ensureLoaded(); err != nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, len(r.projects))
	copy(out, r.projects)
	return out
}
