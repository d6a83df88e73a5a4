package parser

import (
	"strings"
	"testing"

	"github.com/skua-js/skua/pkg/source"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, input string) *Program {
	t.Helper()
	prog, errs := ParseScript(source.NewEvalSource(input), false)
	if len(errs) != 0 {
		t.Fatalf("parse %q: unexpected error: %s", input, errs[0].Error())
	}
	return prog
}

func parseExpr(t *testing.T, input string) Expression {
	t.Helper()
	prog := parseOK(t, input)
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	stmt, ok := prog.Statements[0].(*ExpressionStatement)
	if !ok {
		t.Fatalf("expected ExpressionStatement, got %T", prog.Statements[0])
	}
	return stmt.Expression
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a + b * c", "(a + (b * c))"},
		{"a * b + c", "((a * b) + c)"},
		{"a ** b ** c", "(a ** (b ** c))"},
		{"-a * b", "((-a) * b)"},
		{"typeof a === \"x\"", "((typeof a) === \"x\")"},
		{"a = b = c", "(a = (b = c))"},
		{"a ? b : c ? d : e", "(a ? b : (c ? d : e))"},
		{"a || b && c", "(a || (b && c))"},
		{"a ?? b", "(a ?? b)"},
		{"(a || b) ?? c", "((a || b) ?? c)"},
		{"((a + b)) * c", "((a + b) * c)"},
		{"a++ + ++b", "((a++) + (++b))"},
		{"x.y(z)[0]", "x.y(z)[0]"},
		{"a?.b.c", "a?.b.c"},
		{"new A.B(c)", "new A.B(c)"},
		{"a << b < c", "((a << b) < c)"},
		{"a in b instanceof c", "((a in b) instanceof c)"},
		{"a, b", "(a, b)"},
	}
	for _, tt := range tests {
		expr := parseExpr(t, tt.input)
		if got := expr.String(); got != tt.expected {
			t.Errorf("%q: expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"a?.b = 1", "Invalid left-hand side in assignment"},
		{"a?.b`x`", "Invalid tagged template on optional chain"},
		{"new a?.b()", "Invalid optional chain from new expression"},
		{"\"use strict\"; with (a) {}", "Strict mode code may not include a with statement"},
		{"const x;", "Missing initializer in const declaration"},
		{"{ using x; }", "Missing initializer in using declaration"},
		{"{ using x = a, x = b; }", "Identifier 'x' has already been declared"},
		{"using x = a;", "Using declarations are not allowed at the top level of a script"},
		{"using x;", "Missing initializer in using declaration"},
		{"a ?? b || c", "Unexpected token"},
		{"-2 ** 2", "Unary operator used immediately before exponentiation"},
		{"class A { constructor(){} constructor(){} }", "A class may only have one constructor"},
		{"class A { m() { return this.#x } }", "Private field '#x' must be declared in an enclosing class"},
		{"class A { #x; #x; }", "Identifier '#x' has already been declared"},
		{"function f(a, a) { \"use strict\" }", "Duplicate parameter name not allowed in this context"},
		{"(a, a) => 1", "Duplicate parameter name not allowed in this context"},
		{"function f(a = 1) { \"use strict\" }", "Illegal 'use strict' directive in function with non-simple parameter list"},
		{"break;", "Illegal break statement"},
		{"x: while (1) { continue y; }", "Undefined label 'y'"},
		{"return 1", "Illegal return statement"},
		{"`\\u{10FFFFF}`", "Invalid escape sequence in template"},
		{"function f([a.b]) {}", "Unexpected token"},
		{"([a.b]) => 1", "Invalid destructuring assignment target"},
		{"1 = 2", "Invalid left-hand side in assignment"},
		{"a++ = 1", "Invalid left-hand side in assignment"},
		{"++a()", "Invalid left-hand side expression in prefix operation"},
		{"\"use strict\"; delete x;", "Delete of an unqualified identifier in strict mode."},
		{"try {}", "Missing catch or finally after try"},
		{"for (let x = 1 of y) {}", "for-of loop variable declaration may not have an initializer."},
		{"if (1) class A {}", "Lexical declaration cannot appear in a single-statement context"},
		{"while (0) class A {}", "Lexical declaration cannot appear in a single-statement context"},
		{"if (1) let [a] = b;", "Lexical declaration cannot appear in a single-statement context"},
		{"\"use strict\"; var eval = 1;", "Unexpected eval or arguments in strict mode"},
		{"super.x", "'super' keyword unexpected here"},
		{"new.target", "new.target expression is not allowed here"},
		{"({ get x(a) {} })", "Getter must not have any formal parameters."},
		{"[...a, b] = c", "Rest element must be last element"},
		{"x\n=> 1", "Unexpected token"},
		{"import x from \"m\"", "Cannot use import statement outside a module"},
	}
	for _, tt := range tests {
		_, errs := ParseScript(source.NewEvalSource(tt.input), false)
		if len(errs) == 0 {
			t.Errorf("%q: expected error containing %q, got none", tt.input, tt.msg)
			continue
		}
		if !strings.Contains(errs[0].Message(), tt.msg) {
			t.Errorf("%q: expected error containing %q, got %q", tt.input, tt.msg, errs[0].Message())
		}
	}
}

func TestValidPrograms(t *testing.T) {
	inputs := []string{
		"var using = 1; using + 1;",
		"{ using x = a, y = b; }",
		"{ { using x = a; } }",
		"switch (k) { case 1: using x = a; }",
		"for (using x of xs) {}",
		"function f() { using x = a; }",
		"async function f() { await using r = g(); }",
		"var let = 1;",
		"var async = 1; async(1);",
		"label: for (;;) { continue label; }",
		"a: b: while (1) { continue a; }",
		"if (a) function f() {}",
		"x = { get: 1, set: 2, async: 3, get g() { return 1 }, set s(v) {} };",
		"({ a = 1 } = {});",
		"[a, , b = 2, ...c] = d;",
		"class A extends B { #x = 1; static #y; get #z() { return this.#x } static { this.#y = 1 } constructor() { super(); #x in this; } }",
		"function* g() { yield; yield 1; yield* h(); }",
		"async function f() { for await (const x of y) {} }",
		"for (var x = 1 in o) {}",
		"a = /re[/]x/gi.test(s) / 2;",
		"tag`\\u{10FFFFF}`;",
		"x = a?.[0]?.(1)?.b;",
		"(function () { return new.target; });",
		"o = { __proto__: null, a, b() {}, *c() {}, async d() {}, async *e() {}, [k]: 1 };",
		"do x++; while (x < 3) y();",
		"switch (x) { case 1: break; default: }",
		"try { } catch { } finally { }",
		"html <!-- comment\nx;",
	}
	for _, input := range inputs {
		parseOK(t, input)
	}
}

func TestOptionalChainWrapping(t *testing.T) {
	expr := parseExpr(t, "a?.b.c(d)")
	chain, ok := expr.(*OptionalChain)
	require.True(t, ok, "expected OptionalChain, got %T", expr)
	call, ok := chain.Expression.(*CallExpression)
	require.True(t, ok)
	member, ok := call.Callee.(*MemberExpression)
	require.True(t, ok)
	inner, ok := member.Object.(*MemberExpression)
	require.True(t, ok)
	require.True(t, inner.Optional)
	require.False(t, member.Optional)

	// A parenthesized chain ends the short-circuit.
	expr = parseExpr(t, "(a?.b).c")
	member, ok = expr.(*MemberExpression)
	require.True(t, ok, "expected MemberExpression, got %T", expr)
	paren, ok := member.Object.(*ParenthesizedExpression)
	require.True(t, ok)
	_, ok = paren.Expression.(*OptionalChain)
	require.True(t, ok)
}

func TestTaggedTemplateRawAndCooked(t *testing.T) {
	expr := parseExpr(t, "tag`\\u{10FFFFF}${x}b`")
	tt, ok := expr.(*TaggedTemplate)
	require.True(t, ok)
	require.Len(t, tt.Quasi.Quasis, 2)
	first := tt.Quasi.Quasis[0]
	require.False(t, first.CookedValid)
	require.Equal(t, "\\u{10FFFFF}", first.Raw)
	require.True(t, tt.Quasi.Quasis[1].CookedValid)
	require.Equal(t, "b", tt.Quasi.Quasis[1].Cooked)
}

func TestArrowFunctions(t *testing.T) {
	expr := parseExpr(t, "(a, {b}, ...c) => a")
	fn, ok := expr.(*FunctionLiteral)
	require.True(t, ok, "expected FunctionLiteral, got %T", expr)
	require.True(t, fn.IsArrow())
	require.True(t, fn.ExpressionBody)
	require.Len(t, fn.Params, 3)
	require.IsType(t, &Identifier{}, fn.Params[0])
	require.IsType(t, &ObjectPattern{}, fn.Params[1])
	require.IsType(t, &RestElement{}, fn.Params[2])
	require.False(t, fn.SimpleParams)

	fn = parseExpr(t, "async x => x").(*FunctionLiteral)
	require.True(t, fn.IsAsync)

	fn = parseExpr(t, "async (x, y = 1) => { return x }").(*FunctionLiteral)
	require.True(t, fn.IsAsync)
	require.IsType(t, &AssignmentPattern{}, fn.Params[1])

	call, ok := parseExpr(t, "async(x)").(*CallExpression)
	require.True(t, ok)
	require.Len(t, call.Arguments, 1)
}

func TestDeclarations(t *testing.T) {
	prog := parseOK(t, "for (const [k, v] of m) {}")
	loop, ok := prog.Statements[0].(*ForOfStatement)
	require.True(t, ok)
	decl, ok := loop.Left.(*VariableDeclaration)
	require.True(t, ok)
	require.Equal(t, "const", decl.Kind)
	require.IsType(t, &ArrayPattern{}, decl.Declarations[0].Target)

	prog = parseOK(t, "{ using x = f(); }")
	block := prog.Statements[0].(*BlockStatement)
	using := block.Statements[0].(*VariableDeclaration)
	require.True(t, using.IsUsing())

	prog = parseOK(t, "'use strict'; x;")
	require.True(t, prog.Strict)
	require.Equal(t, "use strict", prog.Statements[0].(*ExpressionStatement).Directive)
}

func TestClassMembers(t *testing.T) {
	prog := parseOK(t, "class A extends B { static x = 1; #y; static { } get z() { return 1 } constructor() { super() } }")
	cls := prog.Statements[0].(*ClassDeclaration).Class
	require.NotNil(t, cls.SuperClass)
	kinds := make([]ClassMemberKind, len(cls.Members))
	for i, m := range cls.Members {
		kinds[i] = m.Kind
	}
	require.Equal(t, []ClassMemberKind{ClassField, ClassField, ClassStaticBlock, ClassGetter, ClassConstructor}, kinds)
	require.True(t, cls.Members[0].Static)
	require.True(t, cls.Members[1].IsPrivate())
	ctor := cls.Members[4].Value.(*FunctionLiteral)
	require.Equal(t, FunctionDerivedConstructor, ctor.Kind)
}

func TestModules(t *testing.T) {
	prog, errs := ParseModule(source.NewEvalSource("import a, {b as c} from \"m\"; export default 1; export {c as d}; await x;"))
	require.Empty(t, errs)
	require.True(t, prog.IsModule)
	require.True(t, prog.Strict)
	require.True(t, prog.HasTopLevelAwait)
	imp := prog.Statements[0].(*ImportDeclaration)
	require.Equal(t, "m", imp.Source)
	require.Len(t, imp.Specifiers, 2)
	require.Equal(t, "default", imp.Specifiers[0].Imported)
	require.Equal(t, "c", imp.Specifiers[1].Local.Value)

	_, errs = ParseModule(source.NewEvalSource("export {a}; export {b as a};"))
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].Message(), "Duplicate export of 'a'")
}

func TestFunctionParts(t *testing.T) {
	fn, src, errs := ParseFunctionParts("a, b", "return a + b", false, false)
	require.Empty(t, errs)
	require.Len(t, fn.Params, 2)
	require.Equal(t, "function anonymous(a, b\n) {\nreturn a + b\n}", src.Slice(fn.Start, fn.End))

	_, _, errs = ParseFunctionParts("", "}); (function() {", false, false)
	require.NotEmpty(t, errs)
}
