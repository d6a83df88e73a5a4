package modules

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/builtins"
	"github.com/skua-js/skua/pkg/compiler"
	"github.com/skua-js/skua/pkg/vm"
)

func newTestVM(t *testing.T, loader *Loader) *vm.VM {
	t.Helper()
	v := vm.New(vm.Options{})
	require.NoError(t, builtins.Install(v, builtins.Options{}))
	v.SetCompiler(compiler.Runtime{})
	v.SetModuleLoader(loader)
	return v
}

// importAndRun evaluates the module named by specifier and drains the job
// queue, returning the module namespace.
func importAndRun(t *testing.T, v *vm.VM, specifier string) (*vm.ModuleRecord, *vm.Object) {
	t.Helper()
	m, _, err := v.ImportModule("", specifier)
	require.NoError(t, err)
	require.NoError(t, v.DrainJobQueue())
	require.Equal(t, vm.ModuleEvaluated, m.Status())
	require.NoError(t, m.EvaluationError())
	return m, v.GetModuleNamespace(m)
}

func exportString(t *testing.T, v *vm.VM, ns *vm.Object, name string) string {
	t.Helper()
	val, err := ns.Get(v, vm.StrKey(name), vm.ObjectValue(ns))
	require.NoError(t, err)
	s, err := v.ToGoString(val)
	require.NoError(t, err)
	return s
}

func TestLoaderLinksGraph(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("main.js", `
import { greet } from "./lib/greet.js";
import * as math from "./lib/math";
export { twice as double } from "./lib/math.js";
export const result = greet("skua") + " " + math.add(2, 3);
`)
	mem.AddModule("lib/greet.js", `export function greet(name) { return "hello " + name; }`)
	mem.AddModule("lib/math.js", `
export const add = (a, b) => a + b;
export function twice(x) { return x * 2; }
`)

	loader := NewLoader(Options{}, mem)
	v := newTestVM(t, loader)
	_, ns := importAndRun(t, v, "./main.js")

	assert.Equal(t, "hello skua 5", exportString(t, v, ns, "result"))
	double, err := ns.Get(v, vm.StrKey("double"), vm.ObjectValue(ns))
	require.NoError(t, err)
	assert.True(t, double.IsCallable())

	stats := loader.Stats()
	assert.Equal(t, 3, stats.Compiled)
	assert.Equal(t, []string{"lib/greet.js", "lib/math.js", "main.js"}, loader.Registry().List())
}

func TestLoaderReturnsSameRecord(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("a.js", `export let n = 1;`)
	loader := NewLoader(Options{}, mem)
	v := newTestVM(t, loader)

	m1, err := loader.LoadModule(v, "", "./a.js", nil)
	require.NoError(t, err)
	m2, err := loader.LoadModule(v, "x/y.js", "../a", nil)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, loader.Stats().CacheHits)
}

func TestLoaderCyclicImports(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("a.js", `
import { b } from "./b.js";
export function a() { return "a"; }
export const out = b();
`)
	mem.AddModule("b.js", `
import { a } from "./a.js";
export function b() { return a() + "b"; }
`)
	v := newTestVM(t, NewLoader(Options{}, mem))
	_, ns := importAndRun(t, v, "./a.js")
	assert.Equal(t, "ab", exportString(t, v, ns, "out"))
}

func TestLoaderTopLevelAwait(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("main.js", `
import { value } from "./dep.js";
export const seen = value;
`)
	mem.AddModule("dep.js", `export const value = await Promise.resolve("awaited");`)
	v := newTestVM(t, NewLoader(Options{}, mem))
	_, ns := importAndRun(t, v, "./main.js")
	assert.Equal(t, "awaited", exportString(t, v, ns, "seen"))
}

func TestLoaderJSONModules(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("config.json", `{"name": "skua", "tags": ["a", "b"]}`)
	mem.AddModule("main.js", `
import config from "./config.json";
export const name = config.name + ":" + config.tags.length;
`)
	v := newTestVM(t, NewLoader(Options{}, mem))
	_, ns := importAndRun(t, v, "./main.js")
	assert.Equal(t, "skua:2", exportString(t, v, ns, "name"))
}

func TestLoaderRejectsUnknownModuleType(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("style.css", `body {}`)
	loader := NewLoader(Options{}, mem)
	v := newTestVM(t, loader)

	_, err := loader.LoadModule(v, "", "./style.css", map[string]string{"type": "css"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported module type")
}

func TestLoaderReportsErrors(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("broken.js", `export const = 1;`)
	mem.AddModule("bad.json", `{"unterminated": `)
	loader := NewLoader(Options{}, mem)
	v := newTestVM(t, loader)

	_, err := loader.LoadModule(v, "", "./missing.js", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot find module './missing.js'")

	_, err = loader.LoadModule(v, "", "./broken.js", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SyntaxError")
	assert.Contains(t, err.Error(), "broken.js:1")

	_, err = loader.LoadModule(v, "", "./bad.json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SyntaxError")

	assert.Equal(t, 3, loader.Stats().Failed)
}

func TestLoaderImportMetaURL(t *testing.T) {
	fsys := fstest.MapFS{
		"src/main.js": {Data: []byte(`export const url = import.meta.url;`)},
	}
	loader := NewLoader(Options{}, NewFileSystemResolver(fsys))
	v := newTestVM(t, loader)
	_, ns := importAndRun(t, v, "./src/main.js")
	assert.Equal(t, "src/main.js", exportString(t, v, ns, "url"))
}

func TestLoaderPrefetch(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("main.js", `import "./a.js"; import "./b.js"; export * from "./c.js";`)
	mem.AddModule("a.js", `import "./shared.js";`)
	mem.AddModule("b.js", `import "./shared.js";`)
	mem.AddModule("c.js", `export const c = 1;`)
	mem.AddModule("shared.js", `export default 0;`)
	mem.AddModule("data.json", `[1, 2, 3]`)

	loader := NewLoader(Options{Workers: 2}, mem)
	require.NoError(t, loader.Prefetch(context.Background(), "./main.js", ""))

	stats := loader.Stats()
	assert.Equal(t, 5, stats.Prefetched)
	assert.Equal(t, 5, stats.Parsed)
	for _, p := range []string{"main.js", "a.js", "b.js", "c.js", "shared.js"} {
		pr := loader.Registry().Parsed(p)
		require.NotNil(t, pr, p)
		assert.NoError(t, pr.Err())
	}
	assert.Equal(t, []string{"./a.js", "./b.js", "./c.js"}, loader.Registry().Parsed("main.js").Requests)

	// Linking reuses the prefetched parses.
	v := newTestVM(t, loader)
	_, ns := importAndRun(t, v, "./main.js")
	assert.Equal(t, "1", exportString(t, v, ns, "c"))
	assert.Equal(t, 5, loader.Stats().Parsed)
}

func TestLoaderPrefetchStopsOnError(t *testing.T) {
	mem := NewMemoryResolver("")
	mem.AddModule("main.js", `import "./ok.js"; import "./bad.js";`)
	mem.AddModule("ok.js", `export {};`)
	mem.AddModule("bad.js", `import {;`)

	loader := NewLoader(Options{}, mem)
	err := loader.Prefetch(context.Background(), "./main.js", "")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewLoader(Options{}, mem).Prefetch(ctx, "./main.js", ""), context.Canceled)
}

func TestLoaderResolverPriority(t *testing.T) {
	first := NewMemoryResolver("first")
	second := NewMemoryResolver("second")
	second.SetPriority(10)
	first.SetPriority(20)
	first.AddModule("m.js", `export const who = "first";`)
	second.AddModule("m.js", `export const who = "second";`)

	loader := NewLoader(Options{}, first, second)
	v := newTestVM(t, loader)
	_, ns := importAndRun(t, v, "./m.js")
	assert.Equal(t, "second", exportString(t, v, ns, "who"))
}
