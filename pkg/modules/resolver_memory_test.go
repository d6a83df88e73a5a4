package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryResolverBasic(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")
	assert.Equal(t, "TestMemory", resolver.Name())
	assert.Equal(t, 50, resolver.Priority())
	assert.Equal(t, "Memory", NewMemoryResolver("").Name())
}

func TestMemoryResolverAddModule(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")
	content := `export function greet(name) { return "Hello, " + name + "!"; }`
	resolver.AddModule("greet.js", content)

	assert.Equal(t, []string{"greet.js"}, resolver.ListModules())
	module := resolver.GetModule("greet.js")
	require.NotNil(t, module)
	assert.Equal(t, content, module.Content)
	assert.False(t, module.Created.IsZero())
}

func TestMemoryResolverCanResolve(t *testing.T) {
	resolver := NewMemoryResolver("")
	resolver.AddModule("lodash", `export default {};`)

	assert.True(t, resolver.CanResolve("./anything.js"))
	assert.True(t, resolver.CanResolve("../anything.js"))
	assert.True(t, resolver.CanResolve("lodash"))
	assert.False(t, resolver.CanResolve("react"))
}

func TestMemoryResolverResolve(t *testing.T) {
	resolver := NewMemoryResolver("")
	resolver.AddModule("main.js", `import "./lib/math";`)
	resolver.AddModule("lib/math.js", `export const pi = 3.14;`)
	resolver.AddModule("lib/config.json", `{"debug": true}`)
	resolver.AddModule("widgets/index.mjs", `export default 1;`)

	tests := []struct {
		specifier string
		from      string
		want      string
	}{
		{"./main.js", "", "main.js"},
		{"./lib/math", "main.js", "lib/math.js"},
		{"./config", "lib/math.js", "lib/config.json"},
		{"../main.js", "lib/math.js", "main.js"},
		{"./widgets", "main.js", "widgets/index.mjs"},
		{"/lib/math.js", "widgets/index.mjs", "lib/math.js"},
	}
	for _, tt := range tests {
		resolved, err := resolver.Resolve(tt.specifier, tt.from)
		require.NoError(t, err, tt.specifier)
		assert.Equal(t, tt.want, resolved.ResolvedPath, tt.specifier)
		assert.Equal(t, resolver.GetModule(tt.want).Content, resolved.Content)
	}

	_, err := resolver.Resolve("./nope", "")
	require.Error(t, err)
}

func TestMemoryResolverUpdateAndRemove(t *testing.T) {
	resolver := NewMemoryResolver("")
	resolver.AddModule("a.js", "1")

	require.NoError(t, resolver.UpdateModule("a.js", "2"))
	assert.Equal(t, "2", resolver.GetModule("a.js").Content)
	assert.Error(t, resolver.UpdateModule("b.js", "3"))

	resolver.RemoveModule("a.js")
	assert.Nil(t, resolver.GetModule("a.js"))

	resolver.AddModule("x.js", "")
	resolver.AddModule("y.js", "")
	resolver.Clear()
	assert.Empty(t, resolver.ListModules())
}

func TestMemoryResolverSetPriority(t *testing.T) {
	resolver := NewMemoryResolver("")
	resolver.SetPriority(1)
	assert.Equal(t, 1, resolver.Priority())
}
