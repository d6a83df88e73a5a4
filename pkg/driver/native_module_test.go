package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/vm"
)

type point struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Label  string `json:"label,omitempty"`
	hidden bool
	Skip   string `json:"-"`
}

// importInto runs a module that copies what it needs into globals.
func importInto(t *testing.T, e *Engine, dir, src string) {
	t.Helper()
	main := filepath.Join(dir, "main.mjs")
	require.NoError(t, os.WriteFile(main, []byte(src), 0o644))
	_, errs := e.RunModule(main)
	require.Empty(t, errs, "errors: %v", errs)
}

func TestDeclareModule(t *testing.T) {
	dir := t.TempDir()
	e, _ := moduleEngine(t, dir)
	e.DeclareModule("host:math", func(m *ModuleBuilder) {
		m.Const("PI", 3.5)
		m.Const("origin", point{X: 1, Y: 2, hidden: true, Skip: "no"})
		m.GoFunction("add", func(a, b int) int { return a + b })
		m.GoFunction("safeDiv", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		})
		m.GoFunction("upper", strings.ToUpper)
		m.Function("argc", 0, func(_ *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.IntValue(len(args)), nil
		})
		m.Namespace("consts", func(ns *NamespaceBuilder) {
			ns.Const("answer", 42).Const("tags", []string{"a", "b"})
		})
		m.Default(map[string]any{"name": "math"})
	})

	importInto(t, e, dir, `
import mathDefault, { PI, origin, add, safeDiv, upper, argc, consts } from "host:math";
import * as again from "host:math";
globalThis.out = [
  PI, JSON.stringify(origin), add(2, 3), safeDiv(9, 3), upper("skua"), argc(1, 2, 3),
  consts.answer, consts.tags.join("+"), mathDefault.name, again.add === add,
];
let caught;
try { safeDiv(1, 0); } catch (e) { caught = e.message; }
globalThis.caught = caught;
`)
	assert.Equal(t, `3.5,{"x":1,"y":2},5,3,SKUA,3,42,a+b,math,true`, inspect(t, e, `out.join()`))
	assert.Equal(t, "division by zero", inspect(t, e, `caught`))
	assert.Contains(t, e.natives.Names(), "host:math")
}

func TestNativeModuleShadowsFiles(t *testing.T) {
	dir := t.TempDir()
	e, _ := moduleEngine(t, dir)
	e.DeclareModule("./shadowed.js", func(m *ModuleBuilder) { m.Const("from", "native") })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shadowed.js"), []byte(`export const from = "file";`), 0o644))
	importInto(t, e, dir, `import { from } from "./shadowed.js"; globalThis.from = from;`)
	assert.Equal(t, "native", inspect(t, e, `from`))
}

func TestNativeModuleBuildErrors(t *testing.T) {
	dir := t.TempDir()
	e, _ := moduleEngine(t, dir)
	e.DeclareModule("host:bad", func(m *ModuleBuilder) {
		m.Const("ch", make(chan int))
	})
	main := filepath.Join(dir, "main.mjs")
	require.NoError(t, os.WriteFile(main, []byte(`import "host:bad";`), 0o644))
	_, errs := e.RunModule(main)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message(), "unsupported Go type")
}

func TestStandardModules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("payload"), 0o644))
	e, _ := moduleEngine(t, dir)
	importInto(t, e, dir, fmt.Sprintf(`
import * as path from "skua:path";
import { readFileSync, writeFileSync, existsSync, readdirSync, statSync } from "skua:fs";
const dir = %q;
const input = path.join(dir, "in.txt");
writeFileSync(path.join(dir, "out.txt"), readFileSync(input).toUpperCase());
globalThis.out = [
  path.basename("/a/b/file.txt", ".txt"), path.extname("x.tar.gz"), path.dirname("/a/b/c"),
  readFileSync(path.join(dir, "out.txt")), existsSync(input), existsSync(path.join(dir, "nope")),
  readdirSync(dir).length, statSync(input).size, statSync(dir).isDirectory(),
  path.isAbsolute(path.resolve("rel")),
];
let err;
try { readFileSync(path.join(dir, "nope")); } catch (e) { err = e.name; }
globalThis.err = err;
`, dir))
	assert.Equal(t, "file,.gz,/a/b,PAYLOAD,true,false,3,7,true,true", inspect(t, e, `out.join()`))
	assert.Equal(t, "Error", inspect(t, e, `err`))
}

func TestValueConverter(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	conv := NewValueConverter(e.VM())

	v, err := conv.ToVM(map[string]any{"b": []int{1, 2}, "a": nil, "p": &point{X: 3}})
	require.NoError(t, err)
	e.SetGlobal("converted", v)
	assert.Equal(t, `{"a":null,"b":[1,2],"p":{"x":3,"y":0}}`, inspect(t, e, `JSON.stringify(converted)`))

	_, err = conv.ToVM(map[int]string{1: "x"})
	require.Error(t, err)

	s, err := conv.FromVM(vm.IntValue(7), reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "7", s.Interface())

	u, err := conv.FromVM(vm.NumberValue(-1), reflect.TypeOf(uint(0)))
	require.Error(t, err)
	_ = u

	anyType := reflect.TypeOf((*any)(nil)).Elem()
	a, err := conv.FromVM(vm.NewStringValue("str"), anyType)
	require.NoError(t, err)
	assert.Equal(t, "str", a.Interface())

	zero, err := conv.FromVM(vm.Undefined, reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 0, zero.Interface())

	_, err = conv.wrapGoFunction("bad", func() (int, int) { return 0, 0 })
	require.Error(t, err)
}
