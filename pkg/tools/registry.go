package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"taskforge/pkg/logx"
	"taskforge/pkg/utils"
)

// ErrPermissionDenied is returned when a manifest declares permissions
// outside the registry's allow-list. Registration is refused with no
// partial write.
var ErrPermissionDenied = errors.New("unauthorized tool permissions")

// Registry manages tool manifests under a root directory. Each tool occupies
// its own subdirectory holding a manifest.json. Registration validates
// permissions against an allow-list before anything touches disk.
type Registry struct {
	mu        sync.RWMutex
	root      string
	allowed   map[string]struct{}
	manifests map[string]*Manifest
	logger    *logx.Logger
}

// NewRegistry creates a registry rooted at the given directory and eagerly
// loads existing manifests. Invalid manifests on disk are skipped, not fatal.
func NewRegistry(root string, allowedPermissions []string) (*Registry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tool registry root: %w", err)
	}

	allowed := make(map[string]struct{}, len(allowedPermissions))
	for _, p := range allowedPermissions {
		allowed[p] = struct{}{}
	}

	r := &Registry{
		root:      root,
		allowed:   allowed,
		manifests: make(map[string]*Manifest),
		logger:    logx.NewLogger("tools"),
	}
	r.loadExisting()
	return r, nil
}

func (r *Registry) loadExisting() {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(r.root, entry.Name(), ManifestFileName)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		manifest, err := ParseManifest(data)
		if err != nil {
			r.logger.Warn("skipping invalid manifest at %s: %v", path, err)
			continue
		}
		r.manifests[manifest.Name] = manifest
	}
}

// Register validates the manifest's permissions and persists it. Rejected
// manifests leave no partial state on disk or in memory.
func (r *Registry) Register(manifest *Manifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}
	if err := r.validatePermissions(manifest); err != nil {
		return err
	}

	data, err := manifest.MarshalIndent()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	toolDir := filepath.Join(r.root, utils.SanitizeIdentifier(manifest.Name))
	if err := os.MkdirAll(toolDir, 0o755); err != nil {
		return fmt.Errorf("failed to create tool directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(toolDir, ManifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest for %q: %w", manifest.Name, err)
	}

	r.manifests[manifest.Name] = manifest
	return nil
}

// Get returns the manifest for a tool name, or nil when unknown.
func (r *Registry) Get(name string) *Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifests[name]
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.manifests))
	for name := range r.manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}

func (r *Registry) validatePermissions(manifest *Manifest) error {
	var unauthorized []string
	for _, p := range manifest.Permissions {
		if _, ok := r.allowed[p]; !ok {
			unauthorized = append(unauthorized, p)
		}
	}
	if len(unauthorized) > 0 {
		sort.Strings(unauthorized)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, unauthorized)
	}
	return nil
}
