package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/vm"
)

func TestRegistryResolutions(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Resolution("./a", "main.js"))

	resolved := &ResolvedModule{Specifier: "./a", ResolvedPath: "a.js"}
	r.SetResolution("main.js", resolved)
	assert.Same(t, resolved, r.Resolution("./a", "main.js"))
	assert.Nil(t, r.Resolution("./a", "lib/b.js"), "resolutions are keyed by referrer")
}

func TestRegistrySetParsedKeepsFirst(t *testing.T) {
	r := NewRegistry()
	first := &ParseResult{Path: "a.js"}
	second := &ParseResult{Path: "a.js"}

	assert.Same(t, first, r.SetParsed(first))
	assert.Same(t, first, r.SetParsed(second))
	assert.Same(t, first, r.Parsed("a.js"))
}

func TestRegistryRecords(t *testing.T) {
	v := vm.New(vm.Options{})
	r := NewRegistry()

	script := v.NewSyntheticModule("data.json", nil, nil, nil)
	json := v.NewSyntheticModule("data.json", []string{"default"}, []vm.Value{vm.Undefined}, nil)
	r.SetRecord("data.json", KindScript, script)
	r.SetRecord("data.json", KindJSON, json)
	r.SetRecord("b.js", KindScript, v.NewSyntheticModule("b.js", nil, nil, nil))

	assert.Same(t, script, r.Record("data.json", KindScript))
	assert.Same(t, json, r.Record("data.json", KindJSON))
	assert.Equal(t, 3, r.Size())
	assert.Equal(t, []string{"b.js", "data.json"}, r.List())

	r.Clear()
	assert.Zero(t, r.Size())
	assert.Nil(t, r.Record("b.js", KindScript))
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindScript, KindFor("a.js", nil))
	assert.Equal(t, KindJSON, KindFor("a.JSON", nil))
	assert.Equal(t, KindJSON, KindFor("a.txt", map[string]string{"type": "json"}))
	assert.Equal(t, "json", KindJSON.String())
	assert.Equal(t, "javascript", KindScript.String())
}

func TestParseResultErr(t *testing.T) {
	require.NoError(t, (&ParseResult{}).Err())
}
