package modules

import (
	"io/fs"

	"github.com/skua-js/skua/pkg/vm"
)

// ModuleFS extends Go's standard io/fs interfaces for module loading
type ModuleFS interface {
	fs.FS
	fs.ReadFileFS // Required for reading module content
}

// ModuleResolver resolves module specifiers to concrete modules
type ModuleResolver interface {
	// Name returns a human-readable name for this resolver
	Name() string

	// CanResolve returns true if this resolver can handle the given specifier
	CanResolve(specifier string) bool

	// Resolve attempts to resolve a module specifier to a concrete module.
	// fromPath is the resolved path of the importing module (for relative
	// resolution) and is empty for entry points.
	Resolve(specifier string, fromPath string) (*ResolvedModule, error)

	// Priority returns the priority of this resolver (lower = higher priority)
	Priority() int
}

// RecordProvider is implemented by resolvers whose modules are not source
// text, such as modules declared by the host in Go. The loader asks the
// provider for the record instead of parsing Content.
type RecordProvider interface {
	ModuleRecord(v *vm.VM, resolvedPath string) (*vm.ModuleRecord, error)
}
