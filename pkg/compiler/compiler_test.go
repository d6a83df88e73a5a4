package compiler

import (
	"testing"

	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/source"
	"github.com/skua-js/skua/pkg/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOK(t *testing.T, input string) *vm.FunctionTemplate {
	t.Helper()
	tmpl, errs := Compile(source.NewEvalSource(input))
	if len(errs) != 0 {
		t.Fatalf("compile %q: unexpected error: %s\n", input, errs[0].Error())
	}
	return tmpl
}

func compileErr(t *testing.T, input string) string {
	t.Helper()
	_, errs := Compile(source.NewEvalSource(input))
	require.NotEmpty(t, errs, "expected %q to fail", input)
	return errs[0].Message()
}

func opsOf(t *vm.FunctionTemplate) []vm.OpCode {
	var ops []vm.OpCode
	for _, in := range t.Instructions() {
		ops = append(ops, in.Op)
	}
	return ops
}

func findFunction(t *vm.FunctionTemplate, pred func(*vm.FunctionTemplate) bool) *vm.FunctionTemplate {
	for _, f := range t.Functions {
		if pred(f) {
			return f
		}
		if g := findFunction(f, pred); g != nil {
			return g
		}
	}
	return nil
}

func named(name string) func(*vm.FunctionTemplate) bool {
	return func(f *vm.FunctionTemplate) bool { return f.Name == name }
}

func TestCompilesLanguageConstructs(t *testing.T) {
	inputs := []string{
		"var a = 1, b = a + 2 * 3;",
		"let {x, y: [z = 1, ...r], ...rest} = o;",
		"for (let i = 0; i < 3; i++) { if (i) continue; else break; }",
		"for (const k in o) {} for (const v of a) {}",
		"outer: for (;;) { for (;;) { break outer; } }",
		"switch (x) { case 1: let y = 2; break; default: y = 3; }",
		"try { f(); } catch ({message}) { g(message); } finally { h(); }",
		"function* g() { const x = yield 1; yield* [x]; return 2; }",
		"async function f() { for await (const v of s) { await v; } }",
		"async function* ag() { yield 1; yield* other(); }",
		"class A { #x = 1; static #y; get #z() { return this.#x; } static { A.#y = 2; } m() { return #x in this; } }",
		"class B extends A { constructor(...a) { super(...a); super.m(); } f = () => super.m(); }",
		"const o = { a, [k]: 1, m() {}, get g() { return 1; }, ...p, __proto__: null };",
		"a?.b?.[c]?.(d); delete a?.b;",
		"x ??= 1; y ||= 2; z &&= 3; w **= 2;",
		"tag`a${1}b${2}c`; `plain ${x}`;",
		"with (o) { p = q; }",
		"label: { break label; }",
		"{ using r = res(); }",
		"async function d() { await using r = res(); using s = res(); }",
		"function f(a, b = a, {c} = {}) { return arguments.length; }",
		"function n() { return new.target; }",
		"eval('1'); (0, eval)('2');",
		"10n ** 2n; /ab+c/gi;",
	}
	for _, input := range inputs {
		compileOK(t, input)
	}
}

func TestLocalBindingsStayInRegisters(t *testing.T) {
	tmpl := compileOK(t, "function f(a) { let b = a + 1; return b; }")
	f := findFunction(tmpl, named("f"))
	require.NotNil(t, f)
	ops := opsOf(f)
	assert.NotContains(t, ops, vm.OpPushEnv)
	assert.Contains(t, ops, vm.OpAdd)
	assert.Equal(t, 1, f.NumParams)
	assert.Equal(t, 1, f.Length)
}

func TestCapturedBindingsLiveInEnvironment(t *testing.T) {
	tmpl := compileOK(t, "function f() { let x = 1; return () => x; }")
	f := findFunction(tmpl, named("f"))
	require.NotNil(t, f)
	assert.Contains(t, opsOf(f), vm.OpPushEnv)
	require.Len(t, f.Functions, 1)
	arrow := opsOf(f.Functions[0])
	assert.True(t, contains(arrow, vm.OpGetEnv) || contains(arrow, vm.OpGetEnvCheck))
}

func contains(ops []vm.OpCode, op vm.OpCode) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func TestFunctionLengthStopsAtDefault(t *testing.T) {
	tmpl := compileOK(t, "function f(a, b = 1, c) {}")
	f := findFunction(tmpl, named("f"))
	require.NotNil(t, f)
	assert.Equal(t, 1, f.Length)
	assert.Equal(t, 3, f.NumParams)
}

func TestAnonymousFunctionsAreNamed(t *testing.T) {
	tmpl := compileOK(t, "const g = function () {}; let h = () => 1; var C = class {};")
	assert.NotNil(t, findFunction(tmpl, named("g")))
	assert.NotNil(t, findFunction(tmpl, named("h")))
	assert.NotNil(t, findFunction(tmpl, named("C")))
}

func TestEarlyErrors(t *testing.T) {
	assert.Contains(t, compileErr(t, "let r = /(/;"), "Invalid regular expression")
	assert.Contains(t, compileErr(t, "let a; let a;"), "already been declared")
}

func TestTryFinallyRegistersHandlers(t *testing.T) {
	tmpl := compileOK(t, "function f() { try { return g(); } finally { h(); } }")
	f := findFunction(tmpl, named("f"))
	require.NotNil(t, f)
	assert.NotEmpty(t, f.Handlers)
	for _, h := range f.Handlers {
		assert.Less(t, h.Start, h.End)
		assert.True(t, h.Handler >= h.End || h.Handler < h.Start, "handler inside its own region")
	}
}

func TestDefaultDerivedConstructor(t *testing.T) {
	tmpl := compileOK(t, "class A extends Object {}")
	ctor := findFunction(tmpl, func(f *vm.FunctionTemplate) bool { return f.Kind == vm.KindDerivedConstructor })
	require.NotNil(t, ctor)
	assert.Equal(t, "A", ctor.Name)
	assert.Equal(t, []vm.OpCode{
		vm.OpCreateRest, vm.OpLoadCallee, vm.OpLoadNewTarget,
		vm.OpSuperCallSpread, vm.OpInitFields, vm.OpReturn,
	}, opsOf(ctor))
}

func TestClassFieldsUseInitializer(t *testing.T) {
	tmpl := compileOK(t, "class P { x = 1; #y = 2; static z = 3; }")
	assert.Contains(t, opsOf(tmpl), vm.OpClass)
	init := findFunction(tmpl, named("<instance_members_initializer>"))
	require.NotNil(t, init)
	ops := opsOf(init)
	assert.Contains(t, ops, vm.OpDefineFieldK)
	assert.Contains(t, ops, vm.OpDefinePrivate)
	assert.NotNil(t, findFunction(tmpl, named("<static_initializer>")))
}

func TestTaggedTemplateSite(t *testing.T) {
	tmpl := compileOK(t, "tag`a${1}\\u{`")
	require.Len(t, tmpl.TemplateSites, 1)
	site := tmpl.TemplateSites[0]
	require.Len(t, site.Raw, 2)
	assert.True(t, site.Cooked[1].IsUndefined())
	assert.Equal(t, "\\u{", site.Raw[1].AsString().String())
}

func TestBigIntKey(t *testing.T) {
	assert.Equal(t, "7", bigIntKey("007"))
	assert.Equal(t, "12345678901234567890", bigIntKey("12345678901234567890"))
}

func TestCompileModuleEntries(t *testing.T) {
	src := `
import { a as b } from "./x.js";
import * as ns from "./y.js";
export { b, ns };
export * from "./z.js";
export const c = 1;
export default function () { return ns; }
`
	prog, errs := parser.ParseModule(source.NewSourceFile("m.js", "m.js", src))
	require.Empty(t, errs)
	m, err := CompileModule(vm.New(vm.Options{}), "m.js", prog)
	require.NoError(t, err)

	specs := make([]string, len(m.Requests))
	for i, r := range m.Requests {
		specs[i] = r.Specifier
	}
	assert.Equal(t, []string{"./x.js", "./y.js", "./z.js"}, specs)
	require.Len(t, m.ImportEntries, 2)
	assert.Equal(t, "a", m.ImportEntries[0].ImportName)
	assert.Equal(t, "*", m.ImportEntries[1].ImportName)

	require.Len(t, m.IndirectExports, 1)
	assert.Equal(t, vm.IndirectExport{ExportName: "b", Request: 0, ImportName: "a"}, m.IndirectExports[0])
	assert.Equal(t, []int{2}, m.StarExports)

	var local []string
	for _, e := range m.LocalExports {
		local = append(local, e.ExportName)
	}
	assert.ElementsMatch(t, []string{"ns", "c", "default"}, local)
	require.Len(t, m.HoistedFunctions, 1)
	assert.Equal(t, "default", m.Template.Functions[m.HoistedFunctions[0].Index].Name)
}

func TestDisassemblyMentionsConstants(t *testing.T) {
	tmpl := compileOK(t, `var greeting = "hello";`)
	assert.Contains(t, vm.Disassemble(tmpl), "hello")
}
