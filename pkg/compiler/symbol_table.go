package compiler

import (
	"fmt"

	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/lexer"
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

// The symbol table is built by a resolver pass over the whole AST before
// any bytecode is emitted. It records one scope per node that introduces
// bindings and decides, for every binding, whether it can live in a
// register or must be stored in a runtime environment because a closure,
// a with statement or direct eval can observe it.

type scopeKind uint8

const (
	scopeFunction scopeKind = iota
	scopeBlock
	scopeCatch
	scopeClass
	scopeWith
	scopeScript
	scopeModule
	scopeEval
	// scopeForeign mirrors a runtime environment of the code that called
	// eval; it only answers lookups of this, new.target and the callee.
	scopeForeign
)

// Pseudo binding names. They cannot clash with identifiers.
const (
	pseudoThis      = "this"
	pseudoNewTarget = "new.target"
	pseudoCallee    = "%callee"
	defaultExport   = "*default*"
)

// Symbol is a binding of a scope.
type Symbol struct {
	Name    string
	Kind    vm.BindingKind
	lexical bool
	scope   *SymbolTable

	// captured forces the binding into the scope's environment.
	captured bool
	// needsTDZ is set when some read can happen before initialization.
	needsTDZ bool
	// walked is set once the resolver passed the declaration.
	walked bool
	// annexB links a sloppy block function to the var it is copied to.
	annexB *Symbol

	// Storage, assigned when the scope is entered during code generation.
	slot        int
	reg         Register
	hasReg      bool
	initEmitted bool
}

func (b *Symbol) inEnv() bool { return b.scope.hasEnv }

// SymbolTable is one lexical scope.
type SymbolTable struct {
	Outer    *SymbolTable
	kind     scopeKind
	fn       *funcInfo
	store    map[string]*Symbol
	order    []*Symbol
	evalVars map[string]bool

	// dynamic marks a var scope sloppy direct eval may extend.
	dynamic bool
	// forceEnv keeps every binding in the environment.
	forceEnv    bool
	switchScope bool
	simpleCatch bool

	// Code generation state.
	hasEnv  bool
	info    *vm.ScopeInfo
	index   int
	foreign *vm.ScopeInfo
	depth0  int // for foreign scopes: env depth relative to the eval frame's first env
}

func newSymbolTable(kind scopeKind, outer *SymbolTable, fn *funcInfo) *SymbolTable {
	return &SymbolTable{Outer: outer, kind: kind, fn: fn, store: make(map[string]*Symbol)}
}

// Lookup finds name in this scope only.
func (st *SymbolTable) Lookup(name string) *Symbol { return st.store[name] }

func (st *SymbolTable) define(name string, kind vm.BindingKind, lexical bool) *Symbol {
	b := &Symbol{Name: name, Kind: kind, lexical: lexical, scope: st}
	if st.forceEnv || st.kind == scopeModule {
		b.captured = true
	}
	st.store[name] = b
	st.order = append(st.order, b)
	return b
}

// needsEnv decides whether the scope gets a runtime environment.
func (st *SymbolTable) needsEnv() bool {
	switch st.kind {
	case scopeScript, scopeWith, scopeForeign:
		return false
	case scopeModule:
		return true
	}
	if len(st.order) == 0 && st.kind != scopeFunction && st.kind != scopeEval {
		return false
	}
	if st.forceEnv || st.dynamic {
		return true
	}
	if st.kind == scopeFunction && st.fn.mappedArguments() {
		return true
	}
	for _, b := range st.order {
		if b.captured {
			return true
		}
	}
	return false
}

// funcInfo describes one function body: a function literal, the top level
// of a script, module or eval, or a synthetic class initializer.
type funcInfo struct {
	lit    *parser.FunctionLiteral
	parent *funcInfo
	scope  *SymbolTable
	kind   vm.FunctionKind
	strict bool

	hasEval       bool
	usesArguments bool
	arguments     *Symbol
	// home is set for functions with a [[HomeObject]].
	home bool
	// superInArrow marks functions whose nested arrows access super.
	superInArrow bool
	// class initializers
	fieldClass *parser.ClassLiteral
	static     bool
	block      *parser.BlockStatement
	annexB     map[*parser.FunctionDeclaration]bool
}

func (fi *funcInfo) isArrow() bool { return fi.kind.IsArrow() }

// thisFunction returns the function whose this arrows inside fi see.
func (fi *funcInfo) thisFunction() *funcInfo {
	f := fi
	for f.isArrow() && f.parent != nil {
		f = f.parent
	}
	return f
}

func (fi *funcInfo) isTopLevel() bool {
	switch fi.kind {
	case vm.KindScript, vm.KindModule, vm.KindEval:
		return true
	}
	return false
}

func (fi *funcInfo) hasOwnArguments() bool {
	return fi.lit != nil && !fi.isArrow() && fi.kind != vm.KindFieldInit
}

func (fi *funcInfo) mappedArguments() bool {
	return fi.usesArguments && !fi.strict && fi.lit != nil && fi.lit.SimpleParams
}

// resolver is the pre-pass building the symbol tables.
type resolver struct {
	src   sourceInfo
	cur   *SymbolTable
	fn    *funcInfo
	nodes map[parser.Node]*SymbolTable
	funcs map[*parser.FunctionLiteral]*funcInfo
	// inits holds the instance and static field initializers of a class.
	inits  map[*parser.ClassLiteral][2]*funcInfo
	blocks map[*parser.BlockStatement]*funcInfo
	// hidden names computed field keys and private methods per member.
	hidden map[*parser.ClassMember]string
	nextID int
	// foreign lists the pseudo bindings visible to eval code.
	foreign *SymbolTable
	err     errors.SkuaError
}

type sourceInfo interface {
	errorAt(tok lexer.Token, format string, args ...any) errors.SkuaError
}

type resolveBailout struct{}

func newResolver(src sourceInfo) *resolver {
	return &resolver{
		src:    src,
		nodes:  make(map[parser.Node]*SymbolTable),
		funcs:  make(map[*parser.FunctionLiteral]*funcInfo),
		inits:  make(map[*parser.ClassLiteral][2]*funcInfo),
		blocks: make(map[*parser.BlockStatement]*funcInfo),
		hidden: make(map[*parser.ClassMember]string),
	}
}

func (r *resolver) fail(tok lexer.Token, format string, args ...any) {
	r.err = r.src.errorAt(tok, format, args...)
	panic(resolveBailout{})
}

// run executes fn and converts a resolver bailout into the recorded error.
func (r *resolver) run(fn func()) (err errors.SkuaError) {
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(resolveBailout); !ok {
				panic(rec)
			}
			err = r.err
		}
	}()
	fn()
	return nil
}

func (r *resolver) push(kind scopeKind, node parser.Node) *SymbolTable {
	s := newSymbolTable(kind, r.cur, r.fn)
	if r.cur != nil && r.cur.forceEnv && r.cur.fn == r.fn {
		s.forceEnv = true
	}
	if node != nil {
		r.nodes[node] = s
	}
	r.cur = s
	return s
}

func (r *resolver) pop() { r.cur = r.cur.Outer }

func (r *resolver) redeclared(tok lexer.Token, name string) {
	r.fail(tok, "Identifier '%s' has already been declared", name)
}

// declare adds a binding to s, reporting conflicting redeclarations.
func (r *resolver) declare(s *SymbolTable, id *parser.Identifier, kind vm.BindingKind, lexical bool) *Symbol {
	if prev := s.store[id.Value]; prev != nil {
		sloppyFuncs := prev.Kind == vm.BindFunction && kind == vm.BindFunction && !r.fn.strict
		if (prev.lexical || lexical) && !sloppyFuncs {
			r.redeclared(id.Token, id.Value)
		}
		if kind == vm.BindFunction && prev.Kind == vm.BindVar {
			prev.Kind = vm.BindFunction
		}
		return prev
	}
	if s.kind == scopeEval && s.evalVars[id.Value] && lexical {
		r.redeclared(id.Token, id.Value)
	}
	return s.define(id.Value, kind, lexical)
}

func lexicalKind(decl *parser.VariableDeclaration) vm.BindingKind {
	if decl.Kind == "let" {
		return vm.BindLet
	}
	return vm.BindConst
}

// declareLexical declares the block-scoped names of a statement list.
func (r *resolver) declareLexical(s *SymbolTable, stmts []parser.Statement) {
	for _, st := range stmts {
		switch d := unlabel(st).(type) {
		case *parser.VariableDeclaration:
			if !d.IsLexical() {
				continue
			}
			for _, id := range parser.DeclaredNames(d) {
				r.declare(s, id, lexicalKind(d), true)
			}
		case *parser.ClassDeclaration:
			r.declare(s, d.Class.Name, vm.BindClass, true)
		case *parser.FunctionDeclaration:
			b := r.declare(s, d.Function.Name, vm.BindFunction, true)
			b.walked = true
		}
	}
}

// unlabel strips labels from a labelled function declaration.
func unlabel(st parser.Statement) parser.Statement {
	for {
		l, ok := st.(*parser.LabeledStatement)
		if !ok {
			return st
		}
		if _, isFn := unlabelDeep(l.Body).(*parser.FunctionDeclaration); !isFn {
			return st
		}
		st = l.Body
	}
}

func unlabelDeep(st parser.Statement) parser.Statement {
	for {
		l, ok := st.(*parser.LabeledStatement)
		if !ok {
			return st
		}
		st = l.Body
	}
}

// hoisting collects the var scoped declarations of a body.
type hoisting struct {
	vars   []*parser.Identifier
	annexB []*parser.FunctionDeclaration
}

// lexicalNames returns the lexically declared names of a statement list,
// function declarations included.
func lexicalNames(stmts []parser.Statement) map[string]bool {
	names := make(map[string]bool)
	for _, st := range stmts {
		switch d := unlabel(st).(type) {
		case *parser.VariableDeclaration:
			if d.IsLexical() {
				for _, id := range parser.DeclaredNames(d) {
					names[id.Value] = true
				}
			}
		case *parser.ClassDeclaration:
			names[d.Class.Name.Value] = true
		case *parser.FunctionDeclaration:
			names[d.Function.Name.Value] = true
		}
	}
	return names
}

// hoistVars walks stmts without entering functions. lex holds the lexical
// names of the enclosing blocks and blocked the names that keep a block
// function from also becoming a var.
func (h *hoisting) hoistVars(stmts []parser.Statement, top, sloppy bool, lex []map[string]bool, blocked map[string]bool) {
	var own map[string]bool
	if !top {
		own = lexicalNames(stmts)
	}
	for _, st := range stmts {
		if fd, ok := unlabel(st).(*parser.FunctionDeclaration); ok {
			if top {
				continue
			}
			f := fd.Function
			if sloppy && !f.IsAsync && !f.IsGenerator && !blocked[f.Name.Value] && !inAny(lex, f.Name.Value) {
				h.annexB = append(h.annexB, fd)
			}
			continue
		}
		inner := lex
		if !top {
			inner = append(lex[:len(lex):len(lex)], own)
		}
		h.hoistStatement(st, sloppy, inner, blocked)
	}
}

func inAny(frames []map[string]bool, name string) bool {
	for _, f := range frames {
		if f[name] {
			return true
		}
	}
	return false
}

func (h *hoisting) addVarDecl(decl *parser.VariableDeclaration) {
	if decl.Kind == "var" {
		h.vars = append(h.vars, parser.DeclaredNames(decl)...)
	}
}

func (h *hoisting) hoistStatement(st parser.Statement, sloppy bool, lex []map[string]bool, blocked map[string]bool) {
	switch s := st.(type) {
	case *parser.VariableDeclaration:
		h.addVarDecl(s)
	case *parser.BlockStatement:
		h.hoistVars(s.Statements, false, sloppy, lex, blocked)
	case *parser.IfStatement:
		h.hoistStatement(s.Consequent, sloppy, lex, blocked)
		if s.Alternate != nil {
			h.hoistStatement(s.Alternate, sloppy, lex, blocked)
		}
	case *parser.ForStatement:
		inner := lex
		if d, ok := s.Init.(*parser.VariableDeclaration); ok {
			if d.IsLexical() {
				inner = append(lex[:len(lex):len(lex)], namesOf(d))
			} else {
				h.addVarDecl(d)
			}
		}
		h.hoistStatement(s.Body, sloppy, inner, blocked)
	case *parser.ForInStatement:
		h.hoistLoopHead(s.Left, s.Body, sloppy, lex, blocked)
	case *parser.ForOfStatement:
		h.hoistLoopHead(s.Left, s.Body, sloppy, lex, blocked)
	case *parser.WhileStatement:
		h.hoistStatement(s.Body, sloppy, lex, blocked)
	case *parser.DoWhileStatement:
		h.hoistStatement(s.Body, sloppy, lex, blocked)
	case *parser.LabeledStatement:
		h.hoistStatement(s.Body, sloppy, lex, blocked)
	case *parser.WithStatement:
		h.hoistStatement(s.Body, sloppy, lex, blocked)
	case *parser.TryStatement:
		h.hoistVars(s.Block.Statements, false, sloppy, lex, blocked)
		if s.Handler != nil {
			inner := lex
			if s.Param != nil {
				if _, simple := s.Param.(*parser.Identifier); !simple {
					inner = append(lex[:len(lex):len(lex)], boundNameSet(s.Param))
				}
			}
			h.hoistVars(s.Handler.Statements, false, sloppy, inner, blocked)
		}
		if s.Finalizer != nil {
			h.hoistVars(s.Finalizer.Statements, false, sloppy, lex, blocked)
		}
	case *parser.SwitchStatement:
		var all []parser.Statement
		for _, c := range s.Cases {
			all = append(all, c.Consequent...)
		}
		h.hoistVars(all, false, sloppy, lex, blocked)
	case *parser.ExportNamedDeclaration:
		if d, ok := s.Declaration.(*parser.VariableDeclaration); ok {
			h.addVarDecl(d)
		}
	}
}

func (h *hoisting) hoistLoopHead(left parser.Node, body parser.Statement, sloppy bool, lex []map[string]bool, blocked map[string]bool) {
	inner := lex
	if d, ok := left.(*parser.VariableDeclaration); ok {
		if d.IsLexical() {
			inner = append(lex[:len(lex):len(lex)], namesOf(d))
		} else {
			h.addVarDecl(d)
		}
	}
	h.hoistStatement(body, sloppy, inner, blocked)
}

func namesOf(d *parser.VariableDeclaration) map[string]bool {
	m := make(map[string]bool)
	for _, id := range parser.DeclaredNames(d) {
		m[id.Value] = true
	}
	return m
}

func boundNameSet(target parser.Expression) map[string]bool {
	m := make(map[string]bool)
	for _, id := range parser.CollectBoundNames(target, nil) {
		m[id.Value] = true
	}
	return m
}

// --- Top-level entry points ---

func (r *resolver) newFunc(kind vm.FunctionKind, strict bool) *funcInfo {
	return &funcInfo{parent: r.fn, kind: kind, strict: strict, annexB: make(map[*parser.FunctionDeclaration]bool)}
}

// script resolves a whole script. Top-level bindings are global.
func (r *resolver) script(prog *parser.Program) *funcInfo {
	fi := r.newFunc(vm.KindScript, prog.Strict)
	r.fn = fi
	s := r.push(scopeScript, prog)
	fi.scope = s
	r.declareTopLevel(s, prog.Statements, nil)
	r.stmts(prog.Statements)
	return fi
}

// eval resolves eval code. foreign is the innermost mirrored scope of the
// calling code, or nil for indirect eval.
func (r *resolver) eval(prog *parser.Program, foreign *SymbolTable) *funcInfo {
	fi := r.newFunc(vm.KindEval, prog.Strict)
	r.fn = fi
	r.foreign = foreign
	r.cur = foreign
	s := r.push(scopeEval, prog)
	s.forceEnv = true
	fi.scope = s
	if !prog.Strict {
		s.evalVars = make(map[string]bool)
	}
	r.declareTopLevel(s, prog.Statements, nil)
	r.stmts(prog.Statements)
	return fi
}

// module resolves a module body. All top-level bindings live in the
// module environment.
func (r *resolver) module(prog *parser.Program) *funcInfo {
	fi := r.newFunc(vm.KindModule, true)
	r.fn = fi
	s := r.push(scopeModule, prog)
	fi.scope = s
	for _, st := range prog.Statements {
		imp, ok := st.(*parser.ImportDeclaration)
		if !ok {
			continue
		}
		for _, spec := range imp.Specifiers {
			kind := vm.BindImport
			if spec.Imported == "*" {
				kind = vm.BindConst
			}
			b := r.declare(s, spec.Local, kind, true)
			b.walked = true
		}
	}
	var body []parser.Statement
	for _, st := range prog.Statements {
		switch d := st.(type) {
		case *parser.ExportNamedDeclaration:
			if d.Declaration != nil {
				body = append(body, d.Declaration)
			}
		case *parser.ExportDefaultDeclaration:
			switch decl := d.Declaration.(type) {
			case *parser.FunctionDeclaration:
				if decl.Function.Name != nil {
					body = append(body, decl)
				} else {
					b := r.declare(s, &parser.Identifier{Token: decl.Function.Token, Value: defaultExport}, vm.BindFunction, false)
					b.walked = true
				}
			case *parser.ClassDeclaration:
				if decl.Class.Name != nil {
					body = append(body, decl)
				} else {
					r.declare(s, &parser.Identifier{Token: decl.Class.Token, Value: defaultExport}, vm.BindClass, true)
				}
			default:
				r.declare(s, &parser.Identifier{Token: d.Token, Value: defaultExport}, vm.BindConst, true)
			}
		default:
			body = append(body, st)
		}
	}
	r.declareTopLevel(s, body, nil)
	r.stmts(prog.Statements)
	return fi
}

// declareTopLevel instantiates the declarations of a function body or a
// program: lexical names, functions and hoisted vars.
func (r *resolver) declareTopLevel(s *SymbolTable, stmts []parser.Statement, params map[string]bool) {
	fi := r.fn
	lexical := make(map[string]bool)
	for _, st := range stmts {
		switch d := unlabel(st).(type) {
		case *parser.VariableDeclaration:
			if d.IsLexical() {
				for _, id := range parser.DeclaredNames(d) {
					if params[id.Value] {
						r.redeclared(id.Token, id.Value)
					}
					r.declare(s, id, lexicalKind(d), true)
					lexical[id.Value] = true
				}
			}
		case *parser.ClassDeclaration:
			if params[d.Class.Name.Value] {
				r.redeclared(d.Class.Name.Token, d.Class.Name.Value)
			}
			r.declare(s, d.Class.Name, vm.BindClass, true)
			lexical[d.Class.Name.Value] = true
		}
	}
	for _, st := range stmts {
		if fd, ok := unlabel(st).(*parser.FunctionDeclaration); ok {
			if s.kind == scopeEval && s.evalVars != nil {
				if s.store[fd.Function.Name.Value] != nil {
					r.redeclared(fd.Function.Name.Token, fd.Function.Name.Value)
				}
				s.evalVars[fd.Function.Name.Value] = true
				continue
			}
			b := r.declare(s, fd.Function.Name, vm.BindFunction, false)
			b.walked = true
		}
	}
	h := &hoisting{}
	blocked := make(map[string]bool, len(lexical)+len(params))
	for n := range lexical {
		blocked[n] = true
	}
	for n := range params {
		blocked[n] = true
	}
	h.hoistVars(stmts, true, !fi.strict, nil, blocked)
	for _, id := range h.vars {
		r.declareVar(s, id)
	}
	for _, fd := range h.annexB {
		fi.annexB[fd] = true
		r.declareVar(s, fd.Function.Name)
	}
}

// declareVar adds a hoisted var to the var scope.
func (r *resolver) declareVar(s *SymbolTable, id *parser.Identifier) {
	if s.evalVars != nil {
		if b := s.store[id.Value]; b != nil && b.lexical {
			r.redeclared(id.Token, id.Value)
		}
		s.evalVars[id.Value] = true
		return
	}
	b := r.declare(s, id, vm.BindVar, false)
	b.walked = true
}

// checkVar reports a var declaration that a lexical binding between the
// declaration and its var scope conflicts with.
func (r *resolver) checkVar(id *parser.Identifier) {
	for s := r.cur; s != nil && s.fn == r.fn; s = s.Outer {
		if b := s.store[id.Value]; b != nil && b.lexical {
			if s.kind == scopeCatch && s.simpleCatch {
				continue
			}
			r.redeclared(id.Token, id.Value)
		}
		if s == r.fn.scope {
			return
		}
	}
}

// --- References ---

// ref resolves a read or write of name from the current position.
func (r *resolver) ref(name string) {
	crossWith := false
	for s := r.cur; s != nil; s = s.Outer {
		switch s.kind {
		case scopeWith:
			crossWith = true
			continue
		case scopeForeign:
			return
		}
		b := s.store[name]
		if b == nil && name == "arguments" && s.kind == scopeFunction && s.fn.hasOwnArguments() {
			b = r.declareArguments(s.fn)
		}
		if b != nil {
			if name == "arguments" && s.kind == scopeFunction && s.fn.hasOwnArguments() && (b.Kind == vm.BindVar || b == s.fn.arguments) {
				s.fn.usesArguments = true
				s.fn.arguments = b
			}
			r.use(b, crossWith)
			return
		}
	}
}

func (r *resolver) use(b *Symbol, crossWith bool) {
	sameFn := b.scope.fn == r.fn
	if !sameFn || crossWith {
		b.captured = true
	}
	if !b.walked || !sameFn || b.scope.switchScope {
		b.needsTDZ = true
	}
}

func (r *resolver) declareArguments(fi *funcInfo) *Symbol {
	if fi.arguments != nil {
		return fi.arguments
	}
	b := fi.scope.define("arguments", vm.BindVar, false)
	b.walked = true
	fi.arguments = b
	fi.usesArguments = true
	return b
}

// refPseudo resolves this, new.target or the callee. Arrows and eval code
// read them from a binding of the enclosing function.
func (r *resolver) refPseudo(name string) {
	owner := r.fn.thisFunction()
	if owner == r.fn && r.fn.kind != vm.KindEval {
		return
	}
	r.capturePseudo(owner, name)
}

func (r *resolver) capturePseudo(owner *funcInfo, name string) {
	switch owner.kind {
	case vm.KindScript, vm.KindModule:
		return
	case vm.KindEval:
		if r.foreignLookup(name) != nil {
			return
		}
	}
	b := owner.scope.store[name]
	if b == nil {
		b = owner.scope.define(name, vm.BindPseudo, false)
		b.walked = true
	}
	if owner != r.fn {
		b.captured = true
	}
}

func (r *resolver) foreignLookup(name string) *SymbolTable {
	for s := r.foreign; s != nil; s = s.Outer {
		if s.foreign != nil {
			if _, ok := s.foreign.Lookup(name); ok {
				return s
			}
		}
	}
	return nil
}

// markEval records a direct eval call: every binding visible from here
// may be read by name at run time.
func (r *resolver) markEval() {
	fi := r.fn
	fi.hasEval = true
	for s := r.cur; s != nil; s = s.Outer {
		if s.kind == scopeForeign {
			break
		}
		s.forceEnv = true
		for _, b := range s.order {
			b.captured = true
			b.needsTDZ = true
		}
	}
	if !fi.strict && fi.kind != vm.KindEval && fi.kind != vm.KindScript {
		fi.scope.dynamic = true
	}
	owner := fi.thisFunction()
	if owner.hasOwnArguments() {
		r.declareArguments(owner).captured = true
	}
	if !owner.isTopLevel() {
		r.capturePseudo(owner, pseudoThis)
		r.capturePseudo(owner, pseudoNewTarget)
		if owner.kind == vm.KindDerivedConstructor {
			r.capturePseudo(owner, pseudoCallee)
		}
		for _, n := range []string{pseudoThis, pseudoNewTarget, pseudoCallee} {
			if b := owner.scope.store[n]; b != nil {
				b.captured = true
			}
		}
		owner.scope.forceEnv = true
	}
	for f := fi; f != owner; f = f.parent {
		f.superInArrow = true
	}
}

// --- Statements ---

func (r *resolver) stmts(list []parser.Statement) {
	for _, s := range list {
		r.stmt(s)
	}
}

func (r *resolver) block(node parser.Node, list []parser.Statement) {
	s := r.push(scopeBlock, node)
	r.declareLexical(s, list)
	r.markAnnexB(s, list)
	r.stmts(list)
	r.pop()
}

// markAnnexB links the block functions that are also hoisted as vars.
func (r *resolver) markAnnexB(s *SymbolTable, list []parser.Statement) {
	for _, st := range list {
		fd, ok := unlabel(st).(*parser.FunctionDeclaration)
		if !ok || !r.fn.annexB[fd] {
			continue
		}
		varScope := r.fn.scope
		b := s.store[fd.Function.Name.Value]
		if varScope.evalVars != nil {
			// Sloppy eval keeps these in its own environment.
			v := varScope.store[fd.Function.Name.Value]
			if v == nil {
				v = varScope.define(fd.Function.Name.Value, vm.BindVar, false)
				v.walked = true
			}
			b.annexB = v
			continue
		}
		b.annexB = varScope.store[fd.Function.Name.Value]
	}
}

func (r *resolver) stmt(st parser.Statement) {
	switch s := st.(type) {
	case *parser.ExpressionStatement:
		r.expr(s.Expression)
	case *parser.VariableDeclaration:
		r.varDecl(s)
	case *parser.FunctionDeclaration:
		r.function(s.Function)
	case *parser.ClassDeclaration:
		r.class(s.Class)
		if b := r.cur.store[s.Class.Name.Value]; b != nil {
			b.walked = true
		}
	case *parser.BlockStatement:
		r.block(s, s.Statements)
	case *parser.EmptyStatement, *parser.DebuggerStatement, *parser.BreakStatement, *parser.ContinueStatement:
	case *parser.IfStatement:
		r.expr(s.Test)
		r.stmt(s.Consequent)
		if s.Alternate != nil {
			r.stmt(s.Alternate)
		}
	case *parser.ForStatement:
		r.forStmt(s)
	case *parser.ForInStatement:
		r.forInOf(s, s.Left, s.Right, s.Body)
	case *parser.ForOfStatement:
		r.forInOf(s, s.Left, s.Right, s.Body)
	case *parser.WhileStatement:
		r.expr(s.Test)
		r.stmt(s.Body)
	case *parser.DoWhileStatement:
		r.stmt(s.Body)
		r.expr(s.Test)
	case *parser.ReturnStatement:
		if s.Argument != nil {
			r.expr(s.Argument)
		}
	case *parser.ThrowStatement:
		r.expr(s.Argument)
	case *parser.TryStatement:
		r.block(s.Block, s.Block.Statements)
		if s.Handler != nil {
			cs := r.push(scopeCatch, s)
			if s.Param != nil {
				_, cs.simpleCatch = s.Param.(*parser.Identifier)
				for _, id := range parser.CollectBoundNames(s.Param, nil) {
					r.declare(cs, id, vm.BindCatch, true)
				}
				r.pattern(s.Param)
				for _, b := range cs.order {
					b.walked = true
				}
			}
			params := boundNameSet(s.Param)
			for name := range lexicalNames(s.Handler.Statements) {
				if params[name] {
					r.redeclared(s.Handler.Token, name)
				}
			}
			r.block(s.Handler, s.Handler.Statements)
			r.pop()
		}
		if s.Finalizer != nil {
			r.block(s.Finalizer, s.Finalizer.Statements)
		}
	case *parser.SwitchStatement:
		r.expr(s.Discriminant)
		sc := r.push(scopeBlock, s)
		sc.switchScope = true
		var all []parser.Statement
		for _, c := range s.Cases {
			all = append(all, c.Consequent...)
		}
		r.declareLexical(sc, all)
		r.markAnnexB(sc, all)
		for _, c := range s.Cases {
			if c.Test != nil {
				r.expr(c.Test)
			}
			r.stmts(c.Consequent)
		}
		r.pop()
	case *parser.LabeledStatement:
		r.stmt(s.Body)
	case *parser.WithStatement:
		r.expr(s.Object)
		r.push(scopeWith, s)
		r.stmt(s.Body)
		r.pop()
	case *parser.ImportDeclaration, *parser.ExportAllDeclaration:
	case *parser.ExportNamedDeclaration:
		if s.Declaration != nil {
			r.stmt(s.Declaration)
		}
		if !s.HasSource {
			for _, spec := range s.Specifiers {
				if b := r.cur.store[spec.Local]; b == nil {
					r.fail(spec.Token, "Export '%s' is not defined in module", spec.Local)
				}
			}
		}
	case *parser.ExportDefaultDeclaration:
		switch d := s.Declaration.(type) {
		case *parser.FunctionDeclaration:
			r.function(d.Function)
		case *parser.ClassDeclaration:
			r.class(d.Class)
			name := defaultExport
			if d.Class.Name != nil {
				name = d.Class.Name.Value
			}
			r.cur.store[name].walked = true
		case *parser.ExpressionStatement:
			r.expr(d.Expression)
			r.cur.store[defaultExport].walked = true
		}
	default:
		panic(fmt.Sprintf("resolver: unexpected statement %T", st))
	}
}

func (r *resolver) varDecl(d *parser.VariableDeclaration) {
	for _, decl := range d.Declarations {
		if !d.IsLexical() {
			for _, id := range parser.CollectBoundNames(decl.Target, nil) {
				r.checkVar(id)
			}
		}
		if decl.Init != nil {
			r.expr(decl.Init)
		}
		r.pattern(decl.Target)
		if d.IsLexical() {
			for _, id := range parser.CollectBoundNames(decl.Target, nil) {
				if b := r.cur.store[id.Value]; b != nil {
					b.walked = true
				}
			}
		}
	}
}

func (r *resolver) forStmt(s *parser.ForStatement) {
	decl, lexical := s.Init.(*parser.VariableDeclaration)
	lexical = lexical && decl.IsLexical()
	if lexical {
		sc := r.push(scopeBlock, s)
		for _, id := range parser.DeclaredNames(decl) {
			r.declare(sc, id, lexicalKind(decl), true)
		}
	}
	switch init := s.Init.(type) {
	case *parser.VariableDeclaration:
		r.varDecl(init)
	case parser.Expression:
		r.expr(init)
	}
	if s.Test != nil {
		r.expr(s.Test)
	}
	if s.Update != nil {
		r.expr(s.Update)
	}
	r.stmt(s.Body)
	if lexical {
		r.pop()
	}
}

func (r *resolver) forInOf(node parser.Statement, left parser.Node, right parser.Expression, body parser.Statement) {
	decl, _ := left.(*parser.VariableDeclaration)
	if decl != nil && decl.IsLexical() {
		// The right-hand side sees the loop bindings in their TDZ.
		sc := r.push(scopeBlock, node)
		for _, id := range parser.DeclaredNames(decl) {
			r.declare(sc, id, lexicalKind(decl), true)
		}
		r.expr(right)
		r.pattern(decl.Declarations[0].Target)
		for _, b := range sc.order {
			b.walked = true
		}
		r.stmt(body)
		r.pop()
		return
	}
	r.expr(right)
	if decl != nil {
		r.varDecl(decl)
	} else {
		r.pattern(left.(parser.Expression))
	}
	r.stmt(body)
}

// pattern resolves a binding or assignment target: its identifiers,
// defaults and computed keys.
func (r *resolver) pattern(target parser.Expression) {
	switch t := target.(type) {
	case *parser.Identifier:
		r.ref(t.Value)
	case *parser.AssignmentPattern:
		r.pattern(t.Target)
		r.expr(t.Default)
	case *parser.RestElement:
		r.pattern(t.Target)
	case *parser.ArrayPattern:
		for _, el := range t.Elements {
			if el != nil {
				r.pattern(el)
			}
		}
	case *parser.ObjectPattern:
		for _, p := range t.Properties {
			if p.Computed {
				r.expr(p.Key)
			}
			r.pattern(p.Value)
		}
		if t.Rest != nil {
			r.pattern(t.Rest)
		}
	case *parser.ParenthesizedExpression:
		r.pattern(t.Expression)
	default:
		r.expr(target)
	}
}

// --- Expressions ---

func (r *resolver) exprs(list []parser.Expression) {
	for _, e := range list {
		if e != nil {
			r.expr(e)
		}
	}
}

func (r *resolver) expr(e parser.Expression) {
	switch x := e.(type) {
	case nil:
	case *parser.Identifier:
		r.ref(x.Value)
	case *parser.PrivateIdentifier:
		r.ref("#" + x.Name)
	case *parser.NumberLiteral, *parser.BigIntLiteral, *parser.StringLiteral, *parser.BooleanLiteral,
		*parser.NullLiteral, *parser.RegExpLiteral:
	case *parser.TemplateLiteral:
		r.exprs(x.Expressions)
	case *parser.TaggedTemplate:
		r.expr(x.Tag)
		r.exprs(x.Quasi.Expressions)
	case *parser.ThisExpression:
		r.refPseudo(pseudoThis)
	case *parser.SuperExpression:
		r.superProp()
	case *parser.ArrayLiteral:
		r.exprs(x.Elements)
	case *parser.ObjectLiteral:
		for _, p := range x.Properties {
			if p.Computed {
				r.expr(p.Key)
			}
			if p.Value == nil {
				continue
			}
			if fn, ok := p.Value.(*parser.FunctionLiteral); ok && (p.Kind == parser.PropertyMethod || p.Kind == parser.PropertyGet || p.Kind == parser.PropertySet) {
				r.function(fn).home = true
				continue
			}
			r.expr(p.Value)
		}
	case *parser.FunctionLiteral:
		r.function(x)
	case *parser.ClassLiteral:
		r.class(x)
	case *parser.UnaryExpression:
		r.expr(x.Operand)
	case *parser.UpdateExpression:
		r.expr(x.Argument)
	case *parser.BinaryExpression:
		r.expr(x.Left)
		r.expr(x.Right)
	case *parser.LogicalExpression:
		r.expr(x.Left)
		r.expr(x.Right)
	case *parser.AssignmentExpression:
		r.pattern(x.Target)
		r.expr(x.Value)
	case *parser.ConditionalExpression:
		r.expr(x.Test)
		r.expr(x.Consequent)
		r.expr(x.Alternate)
	case *parser.CallExpression:
		if _, ok := x.Callee.(*parser.SuperExpression); ok {
			r.refPseudo(pseudoThis)
			r.refPseudo(pseudoNewTarget)
			r.refPseudo(pseudoCallee)
		} else {
			r.expr(x.Callee)
		}
		if isDirectEval(x) {
			r.markEval()
		}
		r.exprs(x.Arguments)
	case *parser.NewExpression:
		r.expr(x.Callee)
		r.exprs(x.Arguments)
	case *parser.MemberExpression:
		if _, ok := x.Object.(*parser.SuperExpression); ok {
			r.superProp()
			r.refPseudo(pseudoThis)
		} else {
			r.expr(x.Object)
		}
		r.expr(x.Property)
		if !x.Computed {
			if _, ok := x.Property.(*parser.Identifier); ok {
				// The name is not a reference; undo the lookup above.
				return
			}
		}
	case *parser.OptionalChain:
		r.expr(x.Expression)
	case *parser.ParenthesizedExpression:
		r.expr(x.Expression)
	case *parser.SequenceExpression:
		r.exprs(x.Expressions)
	case *parser.SpreadElement:
		r.expr(x.Argument)
	case *parser.YieldExpression:
		r.expr(x.Argument)
	case *parser.AwaitExpression:
		r.expr(x.Argument)
	case *parser.MetaProperty:
		if x.Meta == "new" {
			r.refPseudo(pseudoNewTarget)
		}
	case *parser.ImportCall:
		r.expr(x.Source)
		r.expr(x.Options)
	case *parser.ArrayPattern, *parser.ObjectPattern, *parser.AssignmentPattern, *parser.RestElement:
		r.pattern(x)
	default:
		panic(fmt.Sprintf("resolver: unexpected expression %T", e))
	}
}

// superProp notes a super property access, which needs the home object.
func (r *resolver) superProp() {
	for f := r.fn; f != nil && f.isArrow(); f = f.parent {
		f.superInArrow = true
	}
}

// isDirectEval reports whether a call is a direct eval candidate.
func isDirectEval(call *parser.CallExpression) bool {
	id, ok := unparen(call.Callee).(*parser.Identifier)
	return ok && id.Value == "eval" && !call.Optional
}

func unparen(e parser.Expression) parser.Expression {
	for {
		p, ok := e.(*parser.ParenthesizedExpression)
		if !ok {
			return e
		}
		e = p.Expression
	}
}

// --- Functions and classes ---

func functionKind(lit *parser.FunctionLiteral) vm.FunctionKind {
	switch lit.Kind {
	case parser.FunctionArrow:
		if lit.IsAsync {
			return vm.KindAsyncArrow
		}
		return vm.KindArrow
	case parser.FunctionGetter:
		return vm.KindGetter
	case parser.FunctionSetter:
		return vm.KindSetter
	case parser.FunctionClassConstructor:
		return vm.KindClassConstructor
	case parser.FunctionDerivedConstructor:
		return vm.KindDerivedConstructor
	case parser.FunctionClassFieldInit:
		return vm.KindFieldInit
	}
	switch {
	case lit.IsAsync && lit.IsGenerator:
		return vm.KindAsyncGenerator
	case lit.IsAsync:
		return vm.KindAsync
	case lit.IsGenerator:
		return vm.KindGenerator
	case lit.Kind == parser.FunctionMethod:
		return vm.KindMethod
	}
	return vm.KindNormal
}

func (r *resolver) function(lit *parser.FunctionLiteral) *funcInfo {
	fi := r.newFunc(functionKind(lit), lit.Strict)
	fi.lit = lit
	switch lit.Kind {
	case parser.FunctionMethod, parser.FunctionGetter, parser.FunctionSetter,
		parser.FunctionClassConstructor, parser.FunctionDerivedConstructor:
		fi.home = true
	}
	r.funcs[lit] = fi
	savedCur, savedFn := r.cur, r.fn
	r.fn = fi
	s := r.push(scopeFunction, lit)
	fi.scope = s

	params := make(map[string]bool)
	for _, p := range lit.Params {
		for _, id := range parser.CollectBoundNames(p, nil) {
			b := r.declare(s, id, vm.BindParam, false)
			b.walked = true
			params[id.Value] = true
		}
	}
	r.declareTopLevel(s, lit.Body.Statements, params)
	if lit.IsExpression && lit.Name != nil && s.store[lit.Name.Value] == nil {
		b := s.define(lit.Name.Value, vm.BindSloppyFuncName, false)
		b.walked = true
	}
	if fi.kind == vm.KindDerivedConstructor {
		b := s.define(pseudoThis, vm.BindPseudo, false)
		b.walked = true
	}
	for _, p := range lit.Params {
		r.pattern(p)
	}
	r.markAnnexB(s, lit.Body.Statements)
	r.stmts(lit.Body.Statements)

	r.cur, r.fn = savedCur, savedFn
	return fi
}

// syntheticFunc creates the function info of a class initializer.
func (r *resolver) syntheticFunc(node parser.Node) *funcInfo {
	fi := r.newFunc(vm.KindFieldInit, true)
	fi.home = true
	savedCur := r.cur
	r.fn = fi
	fi.scope = r.push(scopeFunction, node)
	r.cur = savedCur
	r.fn = fi.parent
	return fi
}

// within runs fn with fi as the current function.
func (r *resolver) within(fi *funcInfo, fn func()) {
	savedCur, savedFn := r.cur, r.fn
	r.cur, r.fn = fi.scope, fi
	fn()
	r.cur, r.fn = savedCur, savedFn
}

func (r *resolver) hiddenName(m *parser.ClassMember, prefix string) string {
	r.nextID++
	name := fmt.Sprintf("%%%s%d", prefix, r.nextID)
	r.hidden[m] = name
	return name
}

func (r *resolver) class(cls *parser.ClassLiteral) {
	s := r.push(scopeClass, cls)
	if cls.Name != nil {
		r.declare(s, cls.Name, vm.BindConst, true)
	}
	declared := make(map[string]bool)
	for _, m := range cls.Members {
		pid, ok := m.Key.(*parser.PrivateIdentifier)
		if !ok || declared[pid.Name] {
			continue
		}
		declared[pid.Name] = true
		b := s.define("#"+pid.Name, vm.BindConst, true)
		b.walked = true
	}
	if cls.SuperClass != nil {
		r.expr(cls.SuperClass)
	}

	var inst, static *funcInfo
	for _, m := range cls.Members {
		if m.Kind == parser.ClassField && m.Static || m.Kind == parser.ClassStaticBlock {
			if static == nil {
				static = r.syntheticFunc(nil)
				static.fieldClass, static.static = cls, true
			}
		} else if m.Kind == parser.ClassField || m.IsPrivate() && m.Kind != parser.ClassConstructor && !m.Static {
			if inst == nil {
				inst = r.syntheticFunc(nil)
				inst.fieldClass = cls
			}
		}
	}
	for _, m := range cls.Members {
		if m.Computed {
			r.expr(m.Key)
		}
		switch m.Kind {
		case parser.ClassStaticBlock:
			r.within(static, func() {
				bi := r.syntheticFunc(m.Body)
				bi.block = m.Body
				r.blocks[m.Body] = bi
				r.within(bi, func() {
					r.declareTopLevel(bi.scope, m.Body.Statements, nil)
					r.markAnnexB(bi.scope, m.Body.Statements)
					r.stmts(m.Body.Statements)
				})
			})
		case parser.ClassField:
			if m.Computed {
				b := s.define(r.hiddenName(m, "key"), vm.BindConst, true)
				b.walked, b.captured = true, true
			}
			target := inst
			if m.Static {
				target = static
			}
			if m.Value != nil {
				r.within(target, func() { r.expr(m.Value) })
			}
		default:
			fn := r.function(m.Value.(*parser.FunctionLiteral))
			fn.home = true
			if m.IsPrivate() && !m.Static {
				b := s.define(r.hiddenName(m, "method"), vm.BindConst, true)
				b.walked, b.captured = true, true
			}
		}
	}
	r.inits[cls] = [2]*funcInfo{inst, static}
	if cls.Name != nil {
		s.store[cls.Name.Value].walked = true
	}
	r.pop()
}
