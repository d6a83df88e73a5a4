package driver

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/config"
	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/vm"
)

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	e, err := NewWithOptions(cfg, Options{Stdout: &out, Stderr: &out, Argv: []string{"skua", "test.js"}})
	require.NoError(t, err)
	return e, &out
}

func mustRun(t *testing.T, e *Engine, src string) vm.Value {
	t.Helper()
	val, errs := e.RunString(src)
	require.Empty(t, errs, "errors: %v", errs)
	return val
}

func inspect(t *testing.T, e *Engine, src string) string {
	t.Helper()
	return vm.Inspect(mustRun(t, e, src))
}

func TestParseAndRunCompletions(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	c := e.ParseAndRun("1 + 2", "sum.js")
	assert.Equal(t, Normal, c.Kind)
	assert.Equal(t, "3", vm.Inspect(c.Value))

	c = e.ParseAndRun(`throw new TypeError("nope")`, "throw.js")
	assert.Equal(t, Throw, c.Kind)
	assert.Equal(t, "TypeError: nope", vm.DescribeThrown(c.Value))
	require.Error(t, c.Err)

	c = e.ParseAndRun("let = ;", "bad.js")
	assert.Equal(t, Throw, c.Kind)
	require.NotEmpty(t, c.Errors)
	assert.Equal(t, "Syntax", c.Errors[0].Kind())
	assert.Contains(t, vm.DescribeThrown(c.Value), "SyntaxError")
}

func TestParseAndRunDoesNotDrainJobs(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	c := e.ParseAndRun(`var log = []; Promise.resolve().then(() => log.push("job")); log.push("sync"); log.length`, "jobs.js")
	require.Equal(t, Normal, c.Kind)
	assert.Equal(t, "1", vm.Inspect(c.Value))

	require.NoError(t, e.DrainJobQueue())
	assert.Equal(t, "sync,job", inspect(t, e, `log.join()`))
}

func TestRunStringPersistsGlobals(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustRun(t, e, `let counter = 1; function bump() { return ++counter; }`)
	assert.Equal(t, "2", inspect(t, e, `bump()`))
	assert.Equal(t, "3", inspect(t, e, `bump()`))
}

func TestRunStringRuntimeError(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, errs := e.RunString("let x = 1;\nnull.foo;")
	require.Len(t, errs, 1)
	rt, ok := errs[0].(*errors.RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "Runtime", rt.Kind())
	assert.Contains(t, rt.Message(), "TypeError")
	assert.Equal(t, 2, rt.Line)
	require.NotNil(t, rt.Value)
}

func TestRunStringReportsRejectedJobs(t *testing.T) {
	var logs bytes.Buffer
	e, err := NewWithOptions(nil, Options{
		Stdout: &bytes.Buffer{},
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)
	_, errs := e.RunString(`Promise.reject(new Error("lost"));`)
	assert.Empty(t, errs)
	assert.Contains(t, logs.String(), "unhandled promise rejection")
	assert.Contains(t, logs.String(), "lost")
}

func TestPrintAndConsole(t *testing.T) {
	e, out := newTestEngine(t, nil)
	mustRun(t, e, `print("a", 1, [2]); console.log({ k: "v" });`)
	assert.Equal(t, "a 1 [ 2 ]\n{ k: 'v' }\n", out.String())
}

func TestCallAcrossBoundary(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustRun(t, e, `function add(a, b) { return this.base + a + b; }
function boom() { throw new RangeError("bad"); }`)

	add, err := e.Global("add")
	require.NoError(t, err)
	this := e.VM().NewObject()
	this.SetOwn("base", vm.IntValue(10))

	c := e.Call(add, vm.ObjectValue(this), vm.IntValue(1), vm.IntValue(2))
	require.Equal(t, Normal, c.Kind)
	assert.Equal(t, "13", vm.Inspect(c.Value))

	boom, err := e.Global("boom")
	require.NoError(t, err)
	c = e.Call(boom, vm.Undefined)
	assert.Equal(t, Throw, c.Kind)
	assert.Equal(t, "RangeError: bad", vm.DescribeThrown(c.Value))

	c = e.Call(vm.IntValue(1), vm.Undefined)
	assert.Equal(t, Throw, c.Kind)
	assert.Contains(t, vm.DescribeThrown(c.Value), "TypeError")
}

func TestRegisterNative(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	var seen []string
	e.RegisterNative(nil, "record", func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		for _, a := range args {
			s, err := v.ToGoString(a)
			if err != nil {
				return vm.Undefined, err
			}
			seen = append(seen, s)
		}
		return vm.IntValue(len(args)), nil
	}, 1)
	e.RegisterNative(nil, "fail", func(v *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		return vm.Undefined, v.NewTypeError("host says no")
	}, 0)

	assert.Equal(t, "2", inspect(t, e, `record("x", 5)`))
	assert.Equal(t, []string{"x", "5"}, seen)
	assert.Equal(t, "1,record,false", inspect(t, e, `[record.length, record.name, Object.keys(globalThis).includes("record")]`))
	assert.Equal(t, "TypeError:host says no", inspect(t, e, `try { fail() } catch (e) { e.name + ":" + e.message }`))

	obj := e.VM().NewObject()
	e.RegisterNative(obj, "hello", func(*vm.VM, vm.Value, []vm.Value) (vm.Value, error) {
		return vm.NewStringValue("hi"), nil
	}, 0)
	e.SetGlobal("host", vm.ObjectValue(obj))
	assert.Equal(t, "hi", inspect(t, e, `host.hello()`))
}

func TestRegisterAccessor(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	stored := 1.0
	e.RegisterAccessor(nil, "level",
		func(*vm.VM, vm.Value, []vm.Value) (vm.Value, error) {
			return vm.NumberValue(stored), nil
		},
		func(v *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			n, err := v.ToNumber(vm.Arg(args, 0))
			stored = n
			return vm.Undefined, err
		})
	assert.Equal(t, "1", inspect(t, e, `level`))
	mustRun(t, e, `level = 7`)
	assert.Equal(t, 7.0, stored)
	assert.Equal(t, "get level,set level", inspect(t, e,
		`const d = Object.getOwnPropertyDescriptor(globalThis, "level"); [d.get.name, d.set.name].join()`))
}

func TestEnqueueJob(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustRun(t, e, `var ran = 0; function job() { ran++; Promise.resolve().then(() => ran += 10); }`)
	job, err := e.Global("job")
	require.NoError(t, err)
	e.EnqueueJob(job)
	e.EnqueueJob(job)
	assert.Equal(t, "0", inspect(t, e, `ran`))
	require.NoError(t, e.DrainJobQueue())
	assert.Equal(t, "22", inspect(t, e, `ran`))
}

func TestEnqueueJobErrors(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustRun(t, e, `function bad() { throw new Error("job failed"); }`)
	bad, err := e.Global("bad")
	require.NoError(t, err)
	e.EnqueueJob(bad)
	err = e.DrainJobQueue()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job failed")
}

func TestCollectKeepsHandles(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	val := mustRun(t, e, `({ name: "kept" })`)
	h := e.VM().NewHandle(val)
	defer h.Release()
	mustRun(t, e, `for (let i = 0; i < 1000; i++) ({ i });`)

	before := e.HeapStats().Collections
	e.Collect()
	assert.Greater(t, e.HeapStats().Collections, before)

	name, err := h.Value().AsObject().Get(e.VM(), vm.StrKey("name"), h.Value())
	require.NoError(t, err)
	assert.Equal(t, "kept", vm.Inspect(name))
}

func TestStrictConfig(t *testing.T) {
	cfg := config.Default()
	cfg.VM.Strict = true
	e, _ := newTestEngine(t, cfg)
	_, errs := e.RunString(`undeclared = 1`)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message(), "ReferenceError")

	sloppy, _ := newTestEngine(t, nil)
	assert.Equal(t, "1", inspect(t, sloppy, `undeclared = 1; undeclared`))
}

func TestMaxCallDepthConfig(t *testing.T) {
	cfg := config.Default()
	cfg.VM.MaxCallDepth = 50
	e, _ := newTestEngine(t, cfg)
	assert.Equal(t, "RangeError", inspect(t, e,
		`function f(n) { return f(n + 1); } try { f(0) } catch (e) { e.name }`))
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func moduleEngine(t *testing.T, root string) (*Engine, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Modules.Root = root
	return newTestEngine(t, cfg)
}

func TestRunModuleWithTopLevelAwait(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.mjs": `
import { total } from "./lib/sum.js";
import data from "./data.json" with { type: "json" };
const late = await new Promise(resolve => resolve(total + data.extra));
print("total", late, import.meta.url.endsWith("/main.mjs"));
`,
		"lib/sum.js": `export const total = [1, 2, 3].reduce((a, b) => a + b);`,
		"data.json":  `{"extra": 4}`,
	})
	e, out := moduleEngine(t, dir)
	_, errs := e.RunFile(filepath.Join(dir, "main.mjs"))
	require.Empty(t, errs, "errors: %v", errs)
	assert.Equal(t, "total 10 true\n", out.String())
	assert.Equal(t, 3, e.Loader().Stats().Prefetched)
}

func TestRunFileDetectsModules(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.js": `import { v } from "./v.js"; print(v);`,
		"v.js":    `export const v = "module";`,
		"plain.js": `print("script"); 42`,
	})
	e, out := moduleEngine(t, dir)
	_, errs := e.RunFile(filepath.Join(dir, "main.js"))
	require.Empty(t, errs)
	val, errs := e.RunFile(filepath.Join(dir, "plain.js"))
	require.Empty(t, errs)
	assert.Equal(t, "42", vm.Inspect(val))
	assert.Equal(t, "module\nscript\n", out.String())

	_, errs = e.RunFile(filepath.Join(dir, "missing.js"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message(), "Failed to read file")
}

func TestRunModuleErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"throws.mjs":  `await null; throw new Error("after await");`,
		"missing.mjs": `import "./nowhere.js";`,
		"pending.mjs": `await new Promise(() => {});`,
	})
	e, _ := moduleEngine(t, dir)

	_, errs := e.RunModule(filepath.Join(dir, "throws.mjs"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message(), "after await")

	_, errs = e.RunModule(filepath.Join(dir, "missing.mjs"))
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message(), "Cannot find module './nowhere.js'")

	_, errs = e.RunModule(filepath.Join(dir, "pending.mjs"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message(), "did not finish evaluating")
}

func TestDynamicImportFromScript(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.js": `var got; import("./dep.mjs").then(ns => { got = ns.value; });`,
		"dep.mjs": `export const value = "dynamic";`,
	})
	e, _ := moduleEngine(t, dir)
	_, errs := e.RunFile(filepath.Join(dir, "main.js"))
	require.Empty(t, errs)
	assert.Equal(t, "dynamic", inspect(t, e, `got`))
}

func TestProcessGlobal(t *testing.T) {
	e, out := newTestEngine(t, nil)
	assert.Equal(t, "skua,test.js", inspect(t, e, `process.argv.join()`))
	assert.Equal(t, Version, inspect(t, e, `process.version`))
	assert.Equal(t, "string", inspect(t, e, `typeof process.cwd()`))
	mustRun(t, e, `process.stdout.write("raw"); process.nextTick(x => print(x), "tick")`)
	assert.Equal(t, "rawtick\n", out.String())

	exited := -1
	e2, err := NewWithOptions(nil, Options{Stdout: &bytes.Buffer{}, Exit: func(code int) { exited = code }})
	require.NoError(t, err)
	mustRun(t, e2, `process.exitCode = 3; process.exit()`)
	assert.Equal(t, 3, exited)
	mustRun(t, e2, `process.exit(5)`)
	assert.Equal(t, 5, exited)
}

func TestDisplayResult(t *testing.T) {
	var out, errOut bytes.Buffer
	e, err := NewWithOptions(nil, Options{Stdout: &out, Stderr: &errOut})
	require.NoError(t, err)

	val, errs := e.RunString(`({ a: [1, "two"] })`)
	assert.True(t, e.DisplayResult(val, errs))
	assert.Equal(t, "{ a: [ 1, 'two' ] }\n", out.String())

	val, errs = e.RunString(`undefined`)
	assert.True(t, e.DisplayResult(val, errs))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	val, errs = e.RunString(`throw "plain"`)
	assert.False(t, e.DisplayResult(val, errs))
	assert.Contains(t, errOut.String(), "plain")
}
