// Package connections implements the cross-project search consent
// registry (spec.md 4.10): a project must opt in before search_all_projects
// is allowed to fan a query out to it. The registry is a small YAML file,
// hot-reloaded via fsnotify so opt-in/opt-out changes made by a sibling
// process (another MCP client, the CLI) are observed without a restart.
package connections

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/memento/internal/tracing"
)

// registryFile is the on-disk YAML shape: connections.yaml, a flat map of
// project name to opt-in state.
type registryFile struct {
	Projects map[string]bool `yaml:"projects"`
}

// Registry tracks which projects have consented to be searched by
// search_all_projects. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	path     string
	projects map[string]bool

	watcher *fsnotify.Watcher
	logger  *tracing.Logger
	done    chan struct{}
}

// NewRegistry loads the consent registry at path, creating an empty one if
// it does not yet exist, and starts watching it for external edits.
// logger may be nil.
func NewRegistry(path string, logger *tracing.Logger) (*Registry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	r := &Registry{
		path:     absPath,
		projects: make(map[string]bool),
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := r.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("connections: load registry: %w", err)
		}
		if mkErr := os.MkdirAll(filepath.Dir(absPath), 0755); mkErr != nil {
			return nil, fmt.Errorf("connections: create registry directory: %w", mkErr)
		}
		if err := r.persist(); err != nil {
			return nil, fmt.Errorf("connections: initialize registry: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("connections: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("connections: watch registry directory: %w", err)
	}
	r.watcher = watcher
	go r.watchLoop()

	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("connections: parse registry: %w", err)
	}
	if file.Projects == nil {
		file.Projects = make(map[string]bool)
	}

	r.mu.Lock()
	r.projects = file.Projects
	r.mu.Unlock()
	return nil
}

// persist writes the registry atomically: write to a temp file in the same
// directory, then rename over the real path, so a concurrent reader (this
// process's own watcher, or a sibling process) never observes a partial
// write.
func (r *Registry) persist() error {
	r.mu.RLock()
	file := registryFile{Projects: copyProjects(r.projects)}
	r.mu.RUnlock()

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("connections: marshal registry: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("connections: write registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}

func copyProjects(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (r *Registry) watchLoop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.load(); err != nil && r.logger != nil {
				r.logger.Warn(context.Background(), "connections: reload registry failed", "error", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.logger != nil {
				r.logger.Warn(context.Background(), "connections: watcher error", "error", err)
			}
		case <-r.done:
			return
		}
	}
}

// OptIn grants project cross-project search consent. Idempotent.
func (r *Registry) OptIn(_ context.Context, project string) error {
	if project == "" {
		return fmt.Errorf("connections: project name is required")
	}
	r.mu.Lock()
	r.projects[project] = true
	r.mu.Unlock()
	return r.persist()
}

// OptOut revokes project's cross-project search consent. Idempotent —
// opting out a project that was never opted in, or is already opted out,
// succeeds without error.
func (r *Registry) OptOut(_ context.Context, project string) error {
	if project == "" {
		return fmt.Errorf("connections: project name is required")
	}
	r.mu.Lock()
	r.projects[project] = false
	r.mu.Unlock()
	return r.persist()
}

// IsOptedIn reports whether project currently has search consent.
func (r *Registry) IsOptedIn(project string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects[project]
}

// OptedInProjects returns every project currently opted in. Order is
// unspecified; callers that need a stable order should sort the result.
func (r *Registry) OptedInProjects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.projects))
	for name, opted := range r.projects {
		if opted {
			out = append(out, name)
		}
	}
	return out
}

// Close stops the file watcher. Safe to call once.
func (r *Registry) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
