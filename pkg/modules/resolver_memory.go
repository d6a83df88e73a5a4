package modules

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryModule is a source held by a MemoryResolver.
type MemoryModule struct {
	Path     string
	Content  string
	Created  time.Time
	Modified time.Time
}

// MemoryResolver resolves modules from an in-memory store. It answers
// path specifiers and bare names alike, which suits tests and embedders
// that ship their sources inside the binary.
type MemoryResolver struct {
	name     string
	priority int
	lookup   candidates

	mu      sync.RWMutex
	modules map[string]*MemoryModule
}

// NewMemoryResolver creates an empty store. It outranks the file system
// resolver so stored modules shadow files with the same path.
func NewMemoryResolver(name string) *MemoryResolver {
	if name == "" {
		name = "Memory"
	}
	return &MemoryResolver{
		name:     name,
		priority: 50,
		lookup:   defaultCandidates(),
		modules:  make(map[string]*MemoryModule),
	}
}

func (r *MemoryResolver) Name() string  { return r.name }
func (r *MemoryResolver) Priority() int { return r.priority }

func (r *MemoryResolver) SetPriority(priority int) { r.priority = priority }

// CanResolve claims every path specifier, and bare names that are stored.
func (r *MemoryResolver) CanResolve(specifier string) bool {
	if isPathSpecifier(specifier) {
		return true
	}
	_, err := r.find(specifier, "")
	return err == nil
}

func (r *MemoryResolver) Resolve(specifier, fromPath string) (*ResolvedModule, error) {
	m, err := r.find(specifier, fromPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", specifier, err)
	}
	return &ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: m.Path,
		Content:      m.Content,
		Resolver:     r.name,
	}, nil
}

func (r *MemoryResolver) find(specifier, fromPath string) (*MemoryModule, error) {
	target := specifier
	if isPathSpecifier(specifier) {
		var err error
		if target, err = targetPath(specifier, fromPath); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	found, err := r.lookup.first(target, func(p string) bool {
		_, ok := r.modules[p]
		return ok
	})
	if err != nil {
		return nil, err
	}
	return r.modules[found], nil
}

// AddModule stores content under p, replacing any previous module.
func (r *MemoryResolver) AddModule(p, content string) {
	now := time.Now()
	r.mu.Lock()
	r.modules[p] = &MemoryModule{Path: p, Content: content, Created: now, Modified: now}
	r.mu.Unlock()
}

// UpdateModule replaces the content of a stored module.
func (r *MemoryResolver) UpdateModule(p, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[p]
	if !ok {
		return fmt.Errorf("module not found: %s", p)
	}
	m.Content = content
	m.Modified = time.Now()
	return nil
}

func (r *MemoryResolver) RemoveModule(p string) {
	r.mu.Lock()
	delete(r.modules, p)
	r.mu.Unlock()
}

// GetModule returns the module stored at p, or nil.
func (r *MemoryResolver) GetModule(p string) *MemoryModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[p]
}

// ListModules returns the stored paths in sorted order.
func (r *MemoryResolver) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.modules))
}

func (r *MemoryResolver) Clear() {
	r.mu.Lock()
	clear(r.modules)
	r.mu.Unlock()
}
