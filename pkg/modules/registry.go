package modules

import (
	"sort"
	"sync"

	"github.com/skua-js/skua/pkg/vm"
)

// Registry caches everything the loader learns about a module graph:
// specifier resolutions, parse results produced by prefetching, and the
// linked records handed to the VM. Parse results may be written from
// worker goroutines; records are only touched on the VM goroutine but
// share the lock for simplicity.
type Registry struct {
	mutex       sync.RWMutex
	resolutions map[resolveKey]*ResolvedModule
	parsed      map[string]*ParseResult
	records     map[recordKey]*vm.ModuleRecord
}

type resolveKey struct {
	from      string
	specifier string
}

type recordKey struct {
	path string
	kind ModuleKind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resolutions: make(map[resolveKey]*ResolvedModule),
		parsed:      make(map[string]*ParseResult),
		records:     make(map[recordKey]*vm.ModuleRecord),
	}
}

// Resolution returns a cached resolution of specifier from fromPath.
func (r *Registry) Resolution(specifier, fromPath string) *ResolvedModule {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.resolutions[resolveKey{fromPath, specifier}]
}

// SetResolution caches a resolution.
func (r *Registry) SetResolution(fromPath string, resolved *ResolvedModule) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resolutions[resolveKey{fromPath, resolved.Specifier}] = resolved
}

// Parsed returns the parse result for a resolved path.
func (r *Registry) Parsed(path string) *ParseResult {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.parsed[path]
}

// SetParsed stores a parse result unless one is already present, and
// returns whichever result the registry now holds.
func (r *Registry) SetParsed(result *ParseResult) *ParseResult {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if existing, ok := r.parsed[result.Path]; ok {
		return existing
	}
	r.parsed[result.Path] = result
	return result
}

// ReleaseParsed drops the AST of a compiled module.
func (r *Registry) ReleaseParsed(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if pr, ok := r.parsed[path]; ok {
		pr.Program = nil
	}
}

// Record returns the module record for path loaded as kind.
func (r *Registry) Record(path string, kind ModuleKind) *vm.ModuleRecord {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.records[recordKey{path, kind}]
}

// SetRecord stores the module record for path loaded as kind.
func (r *Registry) SetRecord(path string, kind ModuleKind, m *vm.ModuleRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records[recordKey{path, kind}] = m
}

// List returns the paths of all module records, sorted.
func (r *Registry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[string]bool, len(r.records))
	paths := make([]string, 0, len(r.records))
	for k := range r.records {
		if !seen[k.path] {
			seen[k.path] = true
			paths = append(paths, k.path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Size returns the number of module records.
func (r *Registry) Size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.records)
}

// Clear forgets every cached resolution, parse and record.
func (r *Registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resolutions = make(map[resolveKey]*ResolvedModule)
	r.parsed = make(map[string]*ParseResult)
	r.records = make(map[recordKey]*vm.ModuleRecord)
}
