package modules

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/skua-js/skua/pkg/builtins"
	"github.com/skua-js/skua/pkg/compiler"
	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/vm"
)

// DefaultWorkers is the prefetch concurrency used when Options.Workers is
// not positive.
const DefaultWorkers = 4

// Options configures a Loader.
type Options struct {
	// Workers bounds the goroutines parsing modules during Prefetch.
	Workers int
	// Root is the OS directory module paths are relative to. Script
	// referrers given as OS paths are made relative to it.
	Root string
	// Logger receives module.load events. Nil discards them.
	Logger *slog.Logger
}

// Loader resolves, parses and compiles ES modules for one VM. It
// implements vm.ModuleLoader and vm.ImportMetaInitializer.
type Loader struct {
	resolvers []ModuleResolver
	registry  *Registry
	workers   int
	root      string
	logger    *slog.Logger
	urls      map[string]string // import.meta.url by module path

	statsMu sync.Mutex
	stats   LoaderStats
}

var (
	_ vm.ModuleLoader          = (*Loader)(nil)
	_ vm.ImportMetaInitializer = (*Loader)(nil)
)

// NewLoader creates a loader trying resolvers in priority order.
func NewLoader(opts Options, resolvers ...ModuleResolver) *Loader {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	root := opts.Root
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	l := &Loader{
		registry: NewRegistry(),
		workers:  workers,
		root:     root,
		logger:   logger,
		urls:     make(map[string]string),
	}
	for _, r := range resolvers {
		l.AddResolver(r)
	}
	return l
}

// AddResolver adds a resolver, keeping resolvers sorted by priority
// (lower = higher priority).
func (l *Loader) AddResolver(r ModuleResolver) {
	l.resolvers = append(l.resolvers, r)
	sort.SliceStable(l.resolvers, func(i, j int) bool {
		return l.resolvers[i].Priority() < l.resolvers[j].Priority()
	})
}

// Registry exposes the loader's caches.
func (l *Loader) Registry() *Registry { return l.registry }

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() LoaderStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Loader) count(f func(s *LoaderStats)) {
	l.statsMu.Lock()
	f(&l.stats)
	l.statsMu.Unlock()
}

// resolve asks each resolver in turn, caching the first success.
func (l *Loader) resolve(specifier, fromPath string) (*ResolvedModule, error) {
	if cached := l.registry.Resolution(specifier, fromPath); cached != nil {
		return cached, nil
	}
	var lastErr error
	for _, r := range l.resolvers {
		if !r.CanResolve(specifier) {
			continue
		}
		resolved, err := r.Resolve(specifier, fromPath)
		if err != nil {
			lastErr = err
			continue
		}
		if u, ok := r.(interface{ URL(string) string }); ok {
			resolved.URL = u.URL(resolved.ResolvedPath)
		}
		if p, ok := r.(RecordProvider); ok {
			resolved.provider = p
		}
		l.registry.SetResolution(fromPath, resolved)
		l.count(func(s *LoaderStats) { s.Resolved++ })
		return resolved, nil
	}
	l.count(func(s *LoaderStats) { s.Failed++ })
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no resolver can handle specifier: %s", specifier)
}

// referrerPath maps the referrer the VM reports to a module path. Module
// referrers are already registry paths. Scripts report their OS path,
// which is made relative to Root.
func (l *Loader) referrerPath(referrer string) string {
	if referrer == "" || l.root == "" || l.registry.Parsed(referrer) != nil {
		return referrer
	}
	abs, err := filepath.Abs(referrer)
	if err != nil {
		return referrer
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return referrer
	}
	return filepath.ToSlash(rel)
}

// EntrySpecifier returns the root-relative specifier for a module file
// named by an OS path.
func (l *Loader) EntrySpecifier(osPath string) string {
	if l.root == "" {
		return "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean(osPath)), "/")
	}
	abs, err := filepath.Abs(osPath)
	if err != nil {
		return "/" + filepath.ToSlash(osPath)
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		rel = osPath
	}
	return "/" + filepath.ToSlash(rel)
}

// LoadModule returns the record for specifier imported from referrer,
// creating it on first use. JSON modules become synthetic modules with a
// single default export.
func (l *Loader) LoadModule(v *vm.VM, referrer, specifier string, attrs map[string]string) (*vm.ModuleRecord, error) {
	if t, ok := attrs["type"]; ok && t != "json" {
		return nil, v.NewTypeErrorf("Unsupported module type '%s' for '%s'", t, specifier)
	}
	for key := range attrs {
		if key != "type" {
			return nil, v.NewSyntaxError("Unsupported import attribute '" + key + "'")
		}
	}
	resolved, err := l.resolve(specifier, l.referrerPath(referrer))
	if err != nil {
		return nil, v.NewTypeErrorf("Cannot find module '%s': %v", specifier, err)
	}
	kind := KindFor(resolved.ResolvedPath, attrs)
	if m := l.registry.Record(resolved.ResolvedPath, kind); m != nil {
		l.count(func(s *LoaderStats) { s.CacheHits++ })
		return m, nil
	}

	var m *vm.ModuleRecord
	switch {
	case resolved.provider != nil:
		m, err = resolved.provider.ModuleRecord(v, resolved.ResolvedPath)
	case kind == KindJSON:
		m, err = l.jsonModule(v, resolved)
	default:
		m, err = l.scriptModule(v, resolved)
	}
	if err != nil {
		l.count(func(s *LoaderStats) { s.Failed++ })
		return nil, err
	}
	l.registry.SetRecord(resolved.ResolvedPath, kind, m)
	if resolved.URL != "" {
		l.urls[resolved.ResolvedPath] = resolved.URL
	}
	l.count(func(s *LoaderStats) { s.Compiled++ })
	l.logger.Debug("module.load",
		"specifier", specifier,
		"path", resolved.ResolvedPath,
		"kind", kind.String(),
		"resolver", resolved.Resolver)
	return m, nil
}

func (l *Loader) scriptModule(v *vm.VM, resolved *ResolvedModule) (*vm.ModuleRecord, error) {
	pr := l.parse(resolved, KindScript)
	if len(pr.Errors) > 0 {
		return nil, syntaxError(v, pr.Path, pr.Errors[0])
	}
	m, cerr := compiler.CompileModule(v, pr.Path, pr.Program)
	if cerr != nil {
		return nil, syntaxError(v, pr.Path, cerr)
	}
	l.registry.ReleaseParsed(pr.Path)
	return m, nil
}

func (l *Loader) jsonModule(v *vm.VM, resolved *ResolvedModule) (*vm.ModuleRecord, error) {
	val, err := builtins.ParseJSON(v, vm.NewString(resolved.Content))
	if err != nil {
		return nil, err
	}
	return v.NewSyntheticModule(resolved.ResolvedPath, []string{"default"}, []vm.Value{val}, nil), nil
}

// syntaxError turns a parse or early error into a script SyntaxError
// naming the module and position.
func syntaxError(v *vm.VM, path string, err errors.SkuaError) error {
	pos := err.Pos()
	msg := err.Message()
	if pos.Line > 0 {
		msg = fmt.Sprintf("%s (%s:%d:%d)", msg, path, pos.Line, pos.Column)
	}
	if err.Kind() == "Syntax" {
		return v.NewSyntaxError(msg)
	}
	return err
}

// InitializeImportMeta sets import.meta.url to the URL the module's
// resolver reported, if any.
func (l *Loader) InitializeImportMeta(v *vm.VM, m *vm.ModuleRecord, meta *vm.Object) {
	if url, ok := l.urls[m.Path]; ok {
		meta.SetOwn("url", vm.NewStringValue(url))
	}
}
