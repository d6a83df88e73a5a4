package modules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemResolverBasic(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{})
	assert.Equal(t, "FileSystem", resolver.Name())
	assert.Equal(t, 100, resolver.Priority())
}

func TestFileSystemResolverCanResolve(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{})

	tests := []struct {
		specifier  string
		canResolve bool
	}{
		{"./relative.js", true},
		{"../parent.js", true},
		{"/absolute.js", true},
		{"lodash", false},
		{"@scope/package", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.canResolve, resolver.CanResolve(tt.specifier), tt.specifier)
	}
}

func TestFileSystemResolverResolution(t *testing.T) {
	testFS := fstest.MapFS{
		"main.js":          {Data: []byte(`import "./lib/util";`)},
		"lib/util.js":      {Data: []byte(`export const util = 1;`)},
		"lib/data.json":    {Data: []byte(`{"a": 1}`)},
		"lib/esm.mjs":      {Data: []byte(`export default 2;`)},
		"pkg/index.js":     {Data: []byte(`export default "pkg";`)},
		"shared/common.js": {Data: []byte(`export const common = true;`)},
	}
	resolver := NewFileSystemResolver(testFS)

	tests := []struct {
		name      string
		specifier string
		from      string
		want      string
	}{
		{"exact", "./main.js", "", "main.js"},
		{"js extension", "./lib/util", "main.js", "lib/util.js"},
		{"json extension", "./data", "lib/util.js", "lib/data.json"},
		{"mjs extension", "./esm", "lib/util.js", "lib/esm.mjs"},
		{"directory index", "./pkg", "main.js", "pkg/index.js"},
		{"parent directory", "../shared/common", "lib/util.js", "shared/common.js"},
		{"root relative", "/lib/util.js", "pkg/index.js", "lib/util.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := resolver.Resolve(tt.specifier, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolved.ResolvedPath)
			assert.Equal(t, tt.specifier, resolved.Specifier)
			assert.Equal(t, string(testFS[tt.want].Data), resolved.Content)
			assert.Equal(t, "FileSystem", resolved.Resolver)
		})
	}
}

func TestFileSystemResolverFailures(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{
		"dir/inner.txt": {Data: []byte("x")},
	})

	_, err := resolver.Resolve("./missing", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module not found")

	_, err = resolver.Resolve("./dir", "")
	require.Error(t, err, "a directory without an index file is not a module")

	_, err = resolver.Resolve("../outside.js", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestFileSystemResolverCustomExtensions(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{
		"widget.jsx": {Data: []byte(`export default 1;`)},
	})
	_, err := resolver.Resolve("./widget", "")
	require.Error(t, err)

	resolver.SetExtensions([]string{".jsx"})
	resolved, err := resolver.Resolve("./widget", "")
	require.NoError(t, err)
	assert.Equal(t, "widget.jsx", resolved.ResolvedPath)
}

func TestFileSystemResolverCustomIndexFiles(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{
		"lib/main.js": {Data: []byte(`export default 1;`)},
	})
	resolver.SetIndexFiles([]string{"main.js"})
	resolved, err := resolver.Resolve("./lib", "")
	require.NoError(t, err)
	assert.Equal(t, "lib/main.js", resolved.ResolvedPath)
}

func TestFileSystemResolverSetPriority(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{})
	resolver.SetPriority(7)
	assert.Equal(t, 7, resolver.Priority())
}

func TestOSFileSystemResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "app.js"), []byte(`export const app = "ok";`), 0o644))

	resolver := NewOSFileSystemResolver(dir)
	assert.Equal(t, "OSFileSystem", resolver.Name())

	resolved, err := resolver.Resolve("./src/app", "")
	require.NoError(t, err)
	assert.Equal(t, "src/app.js", resolved.ResolvedPath)
	assert.Contains(t, resolved.Content, `"ok"`)

	url := resolver.URL(resolved.ResolvedPath)
	assert.True(t, strings.HasPrefix(url, "file://"), url)
	assert.True(t, strings.HasSuffix(url, "/src/app.js"), url)
}
