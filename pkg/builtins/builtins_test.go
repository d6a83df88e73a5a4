package builtins_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-js/skua/pkg/builtins"
	"github.com/skua-js/skua/pkg/driver"
	"github.com/skua-js/skua/pkg/vm"
)

func newEngine(t *testing.T) (*driver.Engine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	e, err := driver.NewWithOptions(nil, driver.Options{Stdout: &out, Stderr: &out})
	require.NoError(t, err)
	return e, &out
}

func eval(t *testing.T, e *driver.Engine, src string) string {
	t.Helper()
	val, errs := e.RunString(src)
	require.Empty(t, errs, "%s: %v", src, errs)
	return vm.Inspect(val)
}

func TestBuiltinExpressions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"object assign", `JSON.stringify(Object.assign({a: 1}, {b: 2}))`, `{"a":1,"b":2}`},
		{"object entries", `Object.entries({x: 1, y: 2}).map(([k, v]) => k + v).join()`, "x1,y2"},
		{"object freeze", `const f = Object.freeze({a: 1}); f.a = 2; f.a + ":" + Object.isFrozen(f)`, "1:true"},
		{"fromEntries", `JSON.stringify(Object.fromEntries([["k", 1]]))`, `{"k":1}`},
		{"array sort", `[10, 9, 1, 100].sort().join()`, "1,10,100,9"},
		{"array sort numeric", `[10, 9, 1, 100].sort((a, b) => a - b).join()`, "1,9,10,100"},
		{"array flat", `[1, [2, [3, [4]]]].flat(2).length`, "4"},
		{"array toSorted", `const a = [3, 1, 2]; a.toSorted().join() + "|" + a.join()`, "1,2,3|3,1,2"},
		{"array from length", `Array.from({length: 3}, (_, i) => i * i).join()`, "0,1,4"},
		{"string at", `"skua".at(-1)`, "a"},
		{"string replaceAll", `"a.b.c".replaceAll(".", "/")`, "a/b/c"},
		{"string normalize", `"é".normalize("NFC").length`, "1"},
		{"string localeCompare", `["b", "a", "C"].sort((x, y) => x.localeCompare(y)).join()`, "a,b,C"},
		{"string upper locale", `"i".toLocaleUpperCase("tr")`, "İ"},
		{"number toFixed", `(1.005).toFixed(2) + "|" + (2).toFixed(3)`, "1.00|2.000"},
		{"number parse", `parseInt("0x1f") + parseFloat("3.5e1")`, "66"},
		{"number radix", `(255).toString(16) + (0.5).toString(2)`, "ff0.1"},
		{"math", `Math.max(1, 5, 3) + Math.hypot(3, 4) + Math.trunc(-4.7)`, "6"},
		{"json reviver", `JSON.parse('{"a":1,"b":[2]}', (k, v) => typeof v === "number" ? v * 10 : v).b[0]`, "20"},
		{"json indent", `JSON.stringify({a: [1]}, null, 2)`, "{\n  \"a\": [\n    1\n  ]\n}"},
		{"regexp ignore case", `/SKUA/i.test("skua") + "|" + /k/i.exec("sKua").index`, "true|1"},
		{"regexp sticky", `const r = /a/y; r.lastIndex = 1; r.test("ba")`, "true"},
		{"regexp replace fn", `"x1y22".replace(/\d+/g, m => "<" + m.length + ">")`, "x<1>y<2>"},
		{"regexp matchAll", `[..."a1b2".matchAll(/[a-z](\d)/g)].map(m => m[1]).join()`, "1,2"},
		{"symbol description", `Symbol("s").description + String(Symbol.for("k") === Symbol.for("k"))`, "strue"},
		{"map groupBy", `Map.groupBy([1, 2, 3], x => x % 2 ? "odd" : "even").get("odd").join()`, "1,3"},
		{"weakmap", `const k = {}; const w = new WeakMap([[k, 1]]); w.get(k) + String(w.has({}))`, "1false"},
		{"typed array", `const u = new Uint8Array([250, 10]); u[0] += 10; u.join()`, "4,10"},
		{"dataview", `const d = new DataView(new ArrayBuffer(4)); d.setInt16(0, -2); d.getUint16(0)`, "65534"},
		{"date parts", `const d = new Date(Date.UTC(2021, 0, 31)); d.getUTCMonth() + "/" + d.getUTCDate()`, "0/31"},
		{"intl collator", `new Intl.Collator("en").compare("a", "B")`, "-1"},
		{"reflect ownKeys", `Reflect.ownKeys({b: 1, [Symbol.iterator]: 0, 1: 2}).length`, "3"},
		{"proxy has", `"x" in new Proxy({}, { has: () => true })`, "true"},
		{"bigint mixed", `(10n ** 20n / 3n).toString()`, "33333333333333333333"},
		{"globalThis", `typeof globalThis.Array`, "function"},
		{"encodeURIComponent", `encodeURIComponent("a b&c/ü")`, "a%20b%26c%2F%C3%BC"},
		{"structured errors", `const e = new AggregateError([new Error("x")], "many"); e.errors.length + e.message`, "1many"},
		{"error cause", `new Error("outer", { cause: "inner" }).cause`, "inner"},
		{"iterator helpers", `[1, 2, 3, 4].values().filter(x => x % 2).map(x => x * 10).toArray().join()`, "10,30"},
		{"set methods", `[...new Set([1, 2, 3]).intersection(new Set([2, 3, 4]))].join()`, "2,3"},
		{"disposable stack", `const log = []; { using s = new DisposableStack(); s.defer(() => log.push("d")); log.push("body"); } log.join()`, "body,d"},
	}
	e, _ := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, e, "{ "+tt.src+" }"))
		})
	}
}

func TestPromiseCombinators(t *testing.T) {
	e, _ := newEngine(t)
	eval(t, e, `
var out = [];
Promise.all([1, Promise.resolve(2)]).then(v => out.push("all:" + v.join("+")));
Promise.allSettled([Promise.reject(new Error("no")), 1]).then(r => out.push("settled:" + r.map(x => x.status).join("+")));
Promise.any([Promise.reject(1), Promise.resolve("ok")]).then(v => out.push("any:" + v));
Promise.race([new Promise(() => {}), Promise.resolve("fast")]).then(v => out.push("race:" + v));
const { promise, resolve } = Promise.withResolvers();
promise.then(v => out.push("resolvers:" + v));
resolve("late");
`)
	got := eval(t, e, `out.sort().join()`)
	assert.Equal(t, "all:1+2,any:ok,race:fast,resolvers:late,settled:rejected+fulfilled", got)
}

func TestConsoleMethods(t *testing.T) {
	e, out := newEngine(t)
	eval(t, e, `
console.log("%s!", "hi", { a: [1, { b: 2 }] });
console.count(); console.count(); console.count("x");
console.group("g"); console.log("inside"); console.groupEnd();
console.log(new Map([["k", 1]]), new Set(["v"]), [ , 1], -0, 10n, Symbol("s"));
console.error(new TypeError("shown"));
console.log([1, 2, 3], { a: [4] });
`)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 7)
	assert.Contains(t, lines[0], "{ a: [ 1, { b: 2 } ] }")
	assert.Equal(t, "default: 1", lines[1])
	assert.Equal(t, "default: 2", lines[2])
	assert.Equal(t, "x: 1", lines[3])
	assert.Equal(t, "g", lines[4])
	assert.True(t, strings.HasPrefix(lines[5], "  "), lines[5])
	assert.Contains(t, out.String(), "Map(1) { 'k' => 1 } Set(1) { 'v' }")
	assert.Contains(t, out.String(), "TypeError: shown")
	assert.Contains(t, out.String(), "[ 1, 2, 3 ] { a: [ 4 ] }\n")
}

func TestDisplay(t *testing.T) {
	e, _ := newEngine(t)
	tests := []struct {
		src  string
		want string
	}{
		{`"str"`, `'str'`},
		{`[1, "a", null, undefined]`, `[ 1, 'a', null, undefined ]`},
		{`({ "needs quote": 1, ok: true })`, `{ 'needs quote': 1, ok: true }`},
		{`const c = {}; c.self = c; c`, `{ self: [Circular] }`},
		{`function named() {}; named`, `[Function: named]`},
		{`Object.create(null)`, `[Object: null prototype] {}`},
		{`({ a: { b: { c: { d: 1 } } } })`, `{ a: { b: { c: [Object] } } }`},
		{`new (class Point { constructor() { this.x = 1; } })()`, `Point { x: 1 }`},
		{`Promise.resolve(5)`, `Promise { 5 }`},
		{`new Array(3)`, `[ <3 empty items> ]`},
		{`[[1, [2]], []]`, `[ [ 1, [ 2 ] ], [] ]`},
		{`const a = [1, , 3]; a.extra = true; a`, `[ 1, <1 empty item>, 3, extra: true ]`},
	}
	for _, tt := range tests {
		val, errs := e.RunString("{ " + tt.src + " }")
		require.Empty(t, errs, tt.src)
		assert.Equal(t, tt.want, builtins.Display(e.VM(), val), tt.src)
	}
}

func TestParseJSON(t *testing.T) {
	e, _ := newEngine(t)
	val, err := builtins.ParseJSON(e.VM(), vm.NewString(`{"list": [true, null, 1.5e2, "é"]}`))
	require.NoError(t, err)
	assert.Equal(t, `{ list: [ true, null, 150, 'é' ] }`, builtins.Display(e.VM(), val))

	for _, bad := range []string{`{"a":}`, `[1,]`, `'single'`, `{"a":1} x`, ``} {
		_, err := builtins.ParseJSON(e.VM(), vm.NewString(bad))
		require.Error(t, err, bad)
		assert.Contains(t, vm.DescribeThrown(e.VM().ThrownValue(err)), "SyntaxError", bad)
	}
}
