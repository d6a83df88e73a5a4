package modules

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	defaultExtensions = []string{".js", ".mjs", ".json"}
	defaultIndexFiles = []string{"index.js", "index.mjs"}
)

// candidates lists the paths a specifier target may name, most specific
// first: the target itself, the target with each extension, then each
// index file inside the target as a directory.
type candidates struct {
	extensions []string
	indexFiles []string
}

func defaultCandidates() candidates {
	return candidates{extensions: defaultExtensions, indexFiles: defaultIndexFiles}
}

// first returns the first candidate for target that exists.
func (c candidates) first(target string, exists func(string) bool) (string, error) {
	if exists(target) {
		return target, nil
	}
	for _, ext := range c.extensions {
		if p := target + ext; exists(p) {
			return p, nil
		}
	}
	for _, index := range c.indexFiles {
		if p := path.Join(target, index); exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("module not found: %s", target)
}

// isPathSpecifier reports whether specifier names a location rather than
// a bare package name.
func isPathSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/")
}

// targetPath joins a path specifier onto the importing module's
// directory. Results are unrooted and never escape the module root.
func targetPath(specifier, fromPath string) (string, error) {
	if strings.HasPrefix(specifier, "/") {
		return path.Clean(specifier[1:]), nil
	}
	if !isPathSpecifier(specifier) {
		return "", fmt.Errorf("unsupported specifier format: %s", specifier)
	}
	dir := "."
	if fromPath != "" {
		dir = path.Dir(fromPath)
	}
	p := path.Join(dir, specifier)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("module path %s escapes the module root", specifier)
	}
	return p, nil
}

// FileSystemResolver resolves path specifiers against an io/fs file
// system. Resolved paths are slash-separated and unrooted.
type FileSystemResolver struct {
	name     string
	fsys     ModuleFS
	priority int
	// urlBase is the absolute OS directory behind fsys, when known, and
	// makes import.meta.url a file:// URL.
	urlBase string
	lookup  candidates
}

// NewFileSystemResolver creates a resolver over fsys.
func NewFileSystemResolver(fsys fs.FS) *FileSystemResolver {
	mfs, ok := fsys.(ModuleFS)
	if !ok {
		mfs = readFileFS{fsys}
	}
	return &FileSystemResolver{
		name:     "FileSystem",
		fsys:     mfs,
		priority: 100,
		lookup:   defaultCandidates(),
	}
}

// NewOSFileSystemResolver creates a resolver rooted at baseDir on the OS
// file system.
func NewOSFileSystemResolver(baseDir string) *FileSystemResolver {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	r := NewFileSystemResolver(os.DirFS(abs))
	r.name = "OSFileSystem"
	r.urlBase = abs
	return r
}

func (r *FileSystemResolver) Name() string  { return r.name }
func (r *FileSystemResolver) Priority() int { return r.priority }

// CanResolve accepts relative and root-relative specifiers.
func (r *FileSystemResolver) CanResolve(specifier string) bool {
	return isPathSpecifier(specifier)
}

func (r *FileSystemResolver) Resolve(specifier, fromPath string) (*ResolvedModule, error) {
	target, err := targetPath(specifier, fromPath)
	if err != nil {
		return nil, err
	}
	// Directories only count through their index files.
	found, err := r.lookup.first(target, func(p string) bool {
		info, err := fs.Stat(r.fsys, p)
		return err == nil && !info.IsDir()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", specifier, err)
	}
	data, err := r.fsys.ReadFile(found)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", found, err)
	}
	return &ResolvedModule{
		Specifier:    specifier,
		ResolvedPath: found,
		Content:      string(data),
		Resolver:     r.name,
	}, nil
}

// URL returns the import.meta.url of a path this resolver produced.
func (r *FileSystemResolver) URL(resolvedPath string) string {
	if r.urlBase == "" {
		return resolvedPath
	}
	return "file://" + filepath.ToSlash(filepath.Join(r.urlBase, filepath.FromSlash(resolvedPath)))
}

// SetExtensions replaces the extensions tried after the bare target.
func (r *FileSystemResolver) SetExtensions(extensions []string) { r.lookup.extensions = extensions }

// SetIndexFiles replaces the index files tried inside directories.
func (r *FileSystemResolver) SetIndexFiles(indexFiles []string) { r.lookup.indexFiles = indexFiles }

func (r *FileSystemResolver) SetPriority(priority int) { r.priority = priority }

// readFileFS adds ReadFile to file systems that lack it.
type readFileFS struct{ fs.FS }

func (f readFileFS) ReadFile(name string) ([]byte, error) {
	if rf, ok := f.FS.(fs.ReadFileFS); ok {
		return rf.ReadFile(name)
	}
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
