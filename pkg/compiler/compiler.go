// Package compiler turns parsed programs into register machine bytecode.
//
// Compilation runs in two passes. The resolver (symbol_table.go) walks the
// whole AST first and decides where every binding lives. The code
// generator then walks the AST again, one Compiler per function body,
// emitting instructions into the function's template.
package compiler

import (
	"fmt"
	"strings"

	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/lexer"
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/source"
	"github.com/skua-js/skua/pkg/vm"
)

// unit holds the state shared by every function of one compilation.
type unit struct {
	src       *source.SourceFile
	res       *resolver
	evalFlags vm.EvalFlags
	// inModule is set when eval code runs inside a module.
	inModule bool
}

func (u *unit) errorAt(tok lexer.Token, format string, args ...any) errors.SkuaError {
	return &errors.SyntaxError{
		Position: errors.Position{Line: tok.Line, Column: tok.Column, StartPos: tok.StartPos, EndPos: tok.EndPos, Source: u.src},
		Msg:      fmt.Sprintf(format, args...),
	}
}

// compileBailout aborts code generation with an error.
type compileBailout struct{ err errors.SkuaError }

// Compiler generates the code of one function body.
type Compiler struct {
	u         *unit
	fi        *funcInfo
	enclosing *Compiler
	tmpl      *vm.FunctionTemplate
	chunk     *vm.Chunk
	regs      *RegisterAllocator

	scope *SymbolTable
	// envChain lists the scopes that have a runtime environment, the
	// innermost last. It starts with the environments the function
	// closes over.
	envChain []*SymbolTable
	baseEnv  int

	controls []*control
	// retReg holds the value of a return that runs finally code first.
	retReg Register
	// completion receives the value of expression statements of script
	// and eval code.
	completion    Register
	hasCompletion bool
	// optional collects the short-circuit jumps of the optional chain
	// being compiled.
	optional *[]int
	// lastTok is the most recent position marked.
	lastTok lexer.Token
}

func newCompiler(u *unit, fi *funcInfo, kind vm.FunctionKind) *Compiler {
	tmpl := &vm.FunctionTemplate{Kind: kind, Strict: fi.strict, Source: u.src}
	return &Compiler{
		u:     u,
		fi:    fi,
		tmpl:  tmpl,
		chunk: &tmpl.Chunk,
	}
}

func (c *Compiler) fail(tok lexer.Token, format string, args ...any) {
	panic(compileBailout{c.u.errorAt(tok, format, args...)})
}

// guard converts bailouts and register exhaustion into an error.
func guard(u *unit, fn func()) (err errors.SkuaError) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		switch x := rec.(type) {
		case compileBailout:
			err = x.err
		case error:
			if x != errTooManyRegisters {
				panic(rec)
			}
			err = &errors.CompileError{Position: errors.Position{Source: u.src}, Msg: x.Error()}
		default:
			panic(rec)
		}
	}()
	fn()
	return nil
}

// --- Entry points ---

// CompileScript compiles a parsed script into its top-level template.
func CompileScript(prog *parser.Program) (*vm.FunctionTemplate, errors.SkuaError) {
	u := &unit{src: prog.Source}
	u.res = newResolver(u)
	var fi *funcInfo
	if err := u.res.run(func() { fi = u.res.script(prog) }); err != nil {
		return nil, err
	}
	c := newCompiler(u, fi, vm.KindScript)
	c.tmpl.Name = "<script>"
	err := guard(u, func() { c.script(prog) })
	if err != nil {
		return nil, err
	}
	return c.tmpl, nil
}

// Compile parses and compiles a script source.
func Compile(src *source.SourceFile) (*vm.FunctionTemplate, []errors.SkuaError) {
	prog, errs := parser.ParseScript(src, false)
	if len(errs) > 0 {
		return nil, errs
	}
	tmpl, err := CompileScript(prog)
	if err != nil {
		return nil, []errors.SkuaError{err}
	}
	return tmpl, nil
}

// CompileModule compiles a parsed module and creates its record in v.
func CompileModule(v *vm.VM, path string, prog *parser.Program) (*vm.ModuleRecord, errors.SkuaError) {
	u := &unit{src: prog.Source}
	u.res = newResolver(u)
	var fi *funcInfo
	if err := u.res.run(func() { fi = u.res.module(prog) }); err != nil {
		return nil, err
	}
	c := newCompiler(u, fi, vm.KindModule)
	c.tmpl.Name = "<module>"
	c.tmpl.Async = prog.HasTopLevelAwait
	var info *moduleInfo
	if err := guard(u, func() { info = c.module(prog) }); err != nil {
		return nil, err
	}
	m := v.NewModuleRecord(path, c.tmpl)
	info.fill(m)
	setModule(c.tmpl, m)
	return m, nil
}

func setModule(t *vm.FunctionTemplate, m *vm.ModuleRecord) {
	t.Module = m
	for _, f := range t.Functions {
		setModule(f, m)
	}
}

// Runtime compiles eval code and dynamic functions for a running VM.
type Runtime struct{}

var _ vm.CodeCompiler = Runtime{}

// CompileEval compiles direct eval code (env is the caller's environment)
// or indirect eval code (env is nil).
func (Runtime) CompileEval(v *vm.VM, text string, env *vm.Env, strict bool, flags vm.EvalFlags) (*vm.FunctionTemplate, error) {
	src := source.NewEvalSource(text)
	opts := parser.Options{
		Mode:             parser.ModeEval,
		Strict:           strict,
		AllowNewTarget:   flags&vm.EvalInFunction != 0,
		AllowSuperProp:   flags&vm.EvalInMethod != 0,
		AllowSuperCall:   flags&vm.EvalInDerivedConstructor != 0,
		InClassFieldInit: flags&vm.EvalInClassField != 0,
		PrivateNames:     privateNamesOf(env),
	}
	prog, errs := parser.NewParser(src, opts).ParseProgram()
	if len(errs) > 0 {
		return nil, v.NewSyntaxError(errs[0].Message())
	}
	u := &unit{src: src, evalFlags: flags}
	u.res = newResolver(u)
	foreign, chain := mirrorEnv(env)
	for _, s := range chain {
		if s.foreign != nil && s.foreign.Kind == vm.ScopeModule {
			u.inModule = true
		}
	}
	var fi *funcInfo
	if err := u.res.run(func() { fi = u.res.eval(prog, foreign) }); err != nil {
		return nil, v.NewSyntaxError(err.Message())
	}
	c := newCompiler(u, fi, vm.KindEval)
	c.tmpl.Name = "<eval>"
	c.envChain = chain
	c.baseEnv = len(chain)
	if err := guard(u, func() { c.eval(prog, env != nil) }); err != nil {
		if err.Kind() == "Syntax" {
			return nil, v.NewSyntaxError(err.Message())
		}
		return nil, v.NewRangeError(err.Message())
	}
	return c.tmpl, nil
}

// CompileFunction compiles the parameter and body text given to the
// Function constructor and its async and generator variants.
func (Runtime) CompileFunction(v *vm.VM, kind vm.FunctionKind, params []string, body string) (*vm.FunctionTemplate, error) {
	lit, src, errs := parser.ParseFunctionParts(strings.Join(params, ","), body, kind.IsAsync(), kind.IsGenerator())
	if len(errs) > 0 {
		return nil, v.NewSyntaxError(errs[0].Message())
	}
	u := &unit{src: src}
	u.res = newResolver(u)
	top := u.res.newFunc(vm.KindScript, false)
	u.res.fn = top
	top.scope = u.res.push(scopeScript, nil)
	var fi *funcInfo
	if err := u.res.run(func() { fi = u.res.function(lit) }); err != nil {
		return nil, v.NewSyntaxError(err.Message())
	}
	outer := newCompiler(u, top, vm.KindScript)
	outer.scope = top.scope
	var tmpl *vm.FunctionTemplate
	if err := guard(u, func() { tmpl = outer.compileFunction(fi, "anonymous") }); err != nil {
		return nil, v.NewSyntaxError(err.Message())
	}
	return tmpl, nil
}

// mirrorEnv builds foreign scopes for the runtime environments an eval
// runs in. It returns the innermost scope and the chain, outermost first.
func mirrorEnv(env *vm.Env) (*SymbolTable, []*SymbolTable) {
	var envs []*vm.Env
	for e := env; e != nil; e = e.Parent() {
		envs = append(envs, e)
	}
	chain := make([]*SymbolTable, len(envs))
	var outer *SymbolTable
	for i := len(envs) - 1; i >= 0; i-- {
		s := newSymbolTable(scopeForeign, outer, nil)
		s.foreign = envs[i].Scope()
		s.hasEnv = true
		chain[len(envs)-1-i] = s
		outer = s
	}
	return outer, chain
}

// privateNamesOf lists the private names visible in env.
func privateNamesOf(env *vm.Env) []string {
	var names []string
	for e := env; e != nil; e = e.Parent() {
		s := e.Scope()
		if s == nil || s.Kind != vm.ScopeClass {
			continue
		}
		for _, n := range s.Names {
			if strings.HasPrefix(n, "#") {
				names = append(names, n[1:])
			}
		}
	}
	return names
}

// --- Top-level bodies ---

func (c *Compiler) script(prog *parser.Program) {
	c.regs = NewRegisterAllocator(0)
	s := c.fi.scope
	c.scope = s
	decls := &vm.Declarations{}
	var fns []*parser.FunctionDeclaration
	for _, st := range prog.Statements {
		if fd, ok := unlabel(st).(*parser.FunctionDeclaration); ok {
			fns = append(fns, fd)
		}
	}
	seen := make(map[string]bool)
	for _, fd := range fns {
		if !seen[fd.Function.Name.Value] {
			seen[fd.Function.Name.Value] = true
			decls.Functions = append(decls.Functions, fd.Function.Name.Value)
		}
	}
	for _, b := range s.order {
		switch {
		case b.lexical:
			decls.Lexical = append(decls.Lexical, b.Name)
			decls.Consts = append(decls.Consts, b.Kind == vm.BindConst)
		case !seen[b.Name]:
			decls.Vars = append(decls.Vars, b.Name)
		}
	}
	c.tmpl.Decls = decls
	c.chunk.MarkPosition(1, 1)
	c.emit(vm.OpDeclareGlobals, 0)
	for _, fd := range fns {
		r := c.regs.Alloc()
		c.closure(fd.Function, r, "")
		c.emit(vm.OpDeclareGlobalFn, c.constString(fd.Function.Name.Value), int(r))
		c.regs.Release(r)
	}
	c.completion = c.regs.Alloc()
	c.hasCompletion = true
	c.stmts(prog.Statements)
	c.emit(vm.OpReturn, int(c.completion))
	c.finish()
}

func (c *Compiler) eval(prog *parser.Program, direct bool) {
	c.regs = NewRegisterAllocator(0)
	s := c.fi.scope
	c.tmpl.Strict = prog.Strict
	c.tmpl.EvalFlags = c.u.evalFlags
	var fns []*parser.FunctionDeclaration
	for _, st := range prog.Statements {
		if fd, ok := unlabel(st).(*parser.FunctionDeclaration); ok {
			fns = append(fns, fd)
		}
	}
	if s.evalVars != nil {
		decls := &vm.Declarations{}
		fnNames := make(map[string]bool)
		for _, fd := range fns {
			if !fnNames[fd.Function.Name.Value] {
				fnNames[fd.Function.Name.Value] = true
				decls.Functions = append(decls.Functions, fd.Function.Name.Value)
			}
		}
		for _, name := range sortedNames(s.evalVars) {
			if !fnNames[name] {
				decls.Vars = append(decls.Vars, name)
			}
		}
		c.tmpl.Decls = decls
		c.emit(vm.OpDeclareEvalVars)
	}
	c.scope = s.Outer
	c.enterScope(s)
	c.initPseudos(s)
	for _, fd := range fns {
		r := c.regs.Alloc()
		c.closure(fd.Function, r, "")
		if s.evalVars != nil {
			c.emit(vm.OpSetName, c.constString(fd.Function.Name.Value), int(r))
		} else {
			c.storeSymbol(s.store[fd.Function.Name.Value], r, true)
		}
		c.regs.Release(r)
	}
	c.completion = c.regs.Alloc()
	c.hasCompletion = true
	c.stmts(prog.Statements)
	c.emit(vm.OpReturn, int(c.completion))
	c.finish()
}

// sortedNames returns the keys of a name set in a stable order.
func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	// Insertion order is lost in the map; sorting keeps output stable.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// finish completes the template once its code has been emitted.
func (c *Compiler) finish() {
	c.tmpl.NumRegs = c.regs.MaxRegs()
	if c.tmpl.NumRegs < c.tmpl.NumParams {
		c.tmpl.NumRegs = c.tmpl.NumParams
	}
	c.tmpl.HasDirectEval = c.fi.hasEval
}

// --- Functions ---

// evalFlagsFor describes the context direct eval inside fi compiles for.
func (c *Compiler) evalFlagsFor(fi *funcInfo) vm.EvalFlags {
	owner := fi.thisFunction()
	if owner.kind == vm.KindEval {
		return c.u.evalFlags
	}
	if owner.isTopLevel() {
		return 0
	}
	flags := vm.EvalInFunction
	if owner.home {
		flags |= vm.EvalInMethod
	}
	if owner.kind == vm.KindDerivedConstructor {
		flags |= vm.EvalInDerivedConstructor
	}
	if owner.kind == vm.KindFieldInit {
		flags |= vm.EvalInClassField
	}
	return flags
}

// child creates the compiler of a function nested at the current point.
func (c *Compiler) child(fi *funcInfo, kind vm.FunctionKind) *Compiler {
	n := newCompiler(c.u, fi, kind)
	n.enclosing = c
	n.envChain = append([]*SymbolTable(nil), c.envChain...)
	n.baseEnv = len(n.envChain)
	n.scope = c.scope
	n.tmpl.EvalFlags = c.evalFlagsFor(fi)
	return n
}

// addFunction appends a nested template and returns its index.
func (c *Compiler) addFunction(t *vm.FunctionTemplate) int {
	c.tmpl.Functions = append(c.tmpl.Functions, t)
	if len(c.tmpl.Functions) > maxRegisters {
		c.fail(c.lastTok, "too many nested functions")
	}
	return len(c.tmpl.Functions) - 1
}

// closure emits the creation of the function lit into dst. name is the
// inferred name for anonymous functions.
func (c *Compiler) closure(lit *parser.FunctionLiteral, dst Register, name string) {
	fi := c.u.res.funcs[lit]
	tmpl := c.compileFunction(fi, name)
	c.emit(vm.OpClosure, int(dst), c.addFunction(tmpl))
	if fi.isArrow() && fi.superInArrow && c.fi.thisFunction().home {
		h := c.regs.Alloc()
		c.emit(vm.OpLoadHome, int(h))
		c.emit(vm.OpSetHome, int(dst), int(h))
		c.regs.Release(h)
	}
}

// compileFunction compiles the function fi as a nested function of c.
func (c *Compiler) compileFunction(fi *funcInfo, name string) *vm.FunctionTemplate {
	lit := fi.lit
	if lit.Name != nil {
		name = lit.Name.Value
	}
	n := c.child(fi, fi.kind)
	n.tmpl.Name = name
	n.tmpl.Start, n.tmpl.End = lit.Start, lit.End
	n.functionBody()
	return n.tmpl
}

// functionBody emits the prologue and body of a function literal.
func (c *Compiler) functionBody() {
	lit := c.fi.lit
	s := c.fi.scope
	params := lit.Params
	numParams := len(params)
	if numParams > 0 {
		if _, ok := params[numParams-1].(*parser.RestElement); ok {
			numParams--
		}
	}
	c.tmpl.NumParams = numParams
	c.tmpl.Length = expectedArgumentCount(params)
	c.regs = NewRegisterAllocator(numParams)
	c.retReg = c.regs.Alloc()
	c.markPos(lit.Token)

	if c.fi.kind == vm.KindClassConstructor {
		this, callee := c.regs.Alloc(), c.regs.Alloc()
		c.emit(vm.OpLoadThis, int(this))
		c.emit(vm.OpLoadCallee, int(callee))
		c.emit(vm.OpInitFields, int(this), int(callee))
		c.regs.Release(this)
	}

	// Simple parameters share the argument register when the binding
	// stays in a register.
	for i := 0; i < numParams; i++ {
		if id, ok := params[i].(*parser.Identifier); ok {
			b := s.store[id.Value]
			b.reg, b.hasReg = Register(i), true
		} else if ap, ok := params[i].(*parser.AssignmentPattern); ok {
			if id, ok := ap.Target.(*parser.Identifier); ok {
				b := s.store[id.Value]
				b.reg, b.hasReg = Register(i), true
			}
		}
	}
	c.enterScope(s)
	c.tmpl.UsesArguments = c.fi.usesArguments

	mapped := c.fi.mappedArguments()
	if s.hasEnv {
		// Simple parameters are copied into the environment first so
		// that a mapped arguments object sees them.
		for i := 0; i < numParams; i++ {
			if id, ok := params[i].(*parser.Identifier); ok {
				c.storeSymbol(s.store[id.Value], Register(i), true)
			}
		}
	}
	if mapped {
		c.tmpl.ArgSlots = make([]int32, numParams)
		seen := make(map[string]bool)
		for i := numParams - 1; i >= 0; i-- {
			c.tmpl.ArgSlots[i] = -1
			id := params[i].(*parser.Identifier)
			if !seen[id.Value] {
				seen[id.Value] = true
				c.tmpl.ArgSlots[i] = int32(s.store[id.Value].slot)
			}
		}
	}
	c.initPseudos(s)
	if b := c.selfNameBinding(); b != nil {
		r := c.regs.Alloc()
		c.emit(vm.OpLoadCallee, int(r))
		c.storeSymbol(b, r, true)
		c.regs.Release(r)
	}
	if c.fi.usesArguments && c.fi.arguments != nil {
		r := c.regs.Alloc()
		flag := 0
		if mapped {
			flag = 1
		}
		c.emit(vm.OpCreateArguments, int(r), flag)
		c.storeSymbol(c.fi.arguments, r, true)
		c.regs.Release(r)
	}

	for i, p := range params {
		c.parameter(i, p)
	}
	c.hoistFunctions(lit.Body.Statements)
	if c.fi.kind.IsGenerator() {
		c.emit(vm.OpGenInit)
	}
	c.withDispose(lit.Body.Statements, func() {
		c.stmts(lit.Body.Statements)
	})
	c.implicitReturn()
	c.finish()
}

func (c *Compiler) selfNameBinding() *Symbol {
	lit := c.fi.lit
	if lit == nil || !lit.IsExpression || lit.Name == nil {
		return nil
	}
	b := c.fi.scope.store[lit.Name.Value]
	if b == nil || b.Kind != vm.BindSloppyFuncName {
		return nil
	}
	return b
}

// expectedArgumentCount counts the parameters before the first default
// or rest parameter.
func expectedArgumentCount(params []parser.Expression) int {
	for i, p := range params {
		switch p.(type) {
		case *parser.AssignmentPattern, *parser.RestElement:
			return i
		}
	}
	return len(params)
}

// parameter binds parameter i from its argument register.
func (c *Compiler) parameter(i int, p parser.Expression) {
	switch t := p.(type) {
	case *parser.Identifier:
		if !c.fi.scope.hasEnv {
			return
		}
		// Already copied into the environment.
	case *parser.AssignmentPattern:
		arg := Register(i)
		skip := c.emitJump(vm.OpJumpIfNotUndef, arg)
		c.exprNamed(t.Default, arg, targetName(t.Target))
		c.patchJump(skip)
		c.bindPattern(t.Target, arg, bindInit)
	case *parser.RestElement:
		mark := c.regs.Mark()
		r := c.regs.Alloc()
		c.emit(vm.OpCreateRest, int(r), i)
		c.bindPattern(t.Target, r, bindInit)
		c.regs.Release(mark)
	default:
		c.bindPattern(p, Register(i), bindInit)
	}
}

// hoistFunctions instantiates the function declarations of a body.
func (c *Compiler) hoistFunctions(stmts []parser.Statement) {
	for _, st := range stmts {
		fd, ok := unlabel(st).(*parser.FunctionDeclaration)
		if !ok {
			continue
		}
		r := c.regs.Alloc()
		c.closure(fd.Function, r, "")
		c.storeSymbol(c.scope.store[fd.Function.Name.Value], r, true)
		c.regs.Release(r)
	}
}

// initPseudos stores this, new.target and the callee into the pseudo
// bindings of a function or eval scope.
func (c *Compiler) initPseudos(s *SymbolTable) {
	for _, name := range []string{pseudoThis, pseudoNewTarget, pseudoCallee} {
		b := s.store[name]
		if b == nil {
			continue
		}
		r := c.regs.Alloc()
		if s.kind == scopeEval {
			c.loadPseudoFrom(s.Outer, name, r)
		} else {
			c.loadOwnPseudo(name, r)
		}
		c.storeSymbol(b, r, true)
		c.regs.Release(r)
	}
}

func (c *Compiler) loadOwnPseudo(name string, dst Register) {
	switch name {
	case pseudoThis:
		c.emit(vm.OpLoadThis, int(dst))
	case pseudoNewTarget:
		c.emit(vm.OpLoadNewTarget, int(dst))
	default:
		c.emit(vm.OpLoadCallee, int(dst))
	}
}

func (c *Compiler) implicitReturn() {
	r := c.regs.Alloc()
	c.emit(vm.OpLoadUndefined, int(r))
	c.emitReturn(r)
	c.regs.Release(r)
}

// --- Scopes ---

func scopeInfoKind(k scopeKind) vm.ScopeKind {
	switch k {
	case scopeFunction:
		return vm.ScopeFunction
	case scopeCatch:
		return vm.ScopeCatch
	case scopeModule:
		return vm.ScopeModule
	case scopeEval:
		return vm.ScopeEval
	case scopeClass:
		return vm.ScopeClass
	}
	return vm.ScopeBlock
}

// enterScope makes s the current scope, pushing its environment or
// assigning registers to its bindings.
func (c *Compiler) enterScope(s *SymbolTable) {
	c.scope = s
	if s.kind == scopeScript {
		return
	}
	s.hasEnv = s.needsEnv()
	if s.hasEnv {
		if s.info == nil {
			info := &vm.ScopeInfo{Kind: scopeInfoKind(s.kind), Strict: c.fi.strict, Dynamic: s.dynamic}
			for i, b := range s.order {
				b.slot = i
				info.Names = append(info.Names, b.Name)
				info.Kinds = append(info.Kinds, b.Kind)
			}
			s.info = info
			s.index = len(c.tmpl.Scopes)
			c.tmpl.Scopes = append(c.tmpl.Scopes, info)
		}
		if s.kind == scopeModule {
			c.envChain = append(c.envChain, s)
			c.baseEnv = len(c.envChain)
			return
		}
		c.emit(vm.OpPushEnv, s.index)
		c.envChain = append(c.envChain, s)
		return
	}
	for _, b := range s.order {
		if !b.hasReg {
			b.reg = c.regs.Alloc()
		}
		if b.lexical && b.needsTDZ {
			c.emit(vm.OpLoadEmpty, int(b.reg))
		}
		b.initEmitted = false
	}
	for _, b := range s.order {
		if b.Kind == vm.BindParam {
			continue
		}
		b.hasReg = false
	}
}

// exitScope leaves s. Registers are released by the caller.
func (c *Compiler) exitScope(s *SymbolTable) {
	if s.hasEnv && s.kind != scopeScript && s.kind != scopeModule {
		c.emit(vm.OpPopEnv)
		c.envChain = c.envChain[:len(c.envChain)-1]
	}
	c.scope = s.Outer
}

// envDepth is the number of environments pushed by this frame.
func (c *Compiler) envDepth() int { return len(c.envChain) - c.baseEnv }

// popEnvsTo emits PopEnv down to the given frame depth without changing
// the compile-time chain; the code that follows is unreachable.
func (c *Compiler) popEnvsTo(depth int) {
	for d := c.envDepth(); d > depth; d-- {
		c.emit(vm.OpPopEnv)
	}
}

func (c *Compiler) depthOf(s *SymbolTable) int {
	for i := len(c.envChain) - 1; i >= 0; i-- {
		if c.envChain[i] == s {
			return len(c.envChain) - 1 - i
		}
	}
	panic(fmt.Sprintf("compiler: scope of %v not on the environment chain", s.order))
}

// --- Name resolution ---

type refKind uint8

const (
	refRegister refKind = iota
	refEnv
	refGlobal
	refDynamic
)

type nameRef struct {
	kind  refKind
	sym   *Symbol
	depth int
	name  string
}

// resolve finds where name lives from the current scope.
func (c *Compiler) resolve(name string) nameRef {
	dynamic := false
	for s := c.scope; s != nil; s = s.Outer {
		switch s.kind {
		case scopeWith:
			dynamic = true
			continue
		case scopeForeign:
			return nameRef{kind: refDynamic, name: name}
		}
		b := s.store[name]
		if b == nil {
			if s.dynamic {
				dynamic = true
			}
			continue
		}
		switch {
		case dynamic:
			return nameRef{kind: refDynamic, name: name}
		case s.kind == scopeScript:
			return nameRef{kind: refGlobal, sym: b, name: name}
		case s.hasEnv:
			return nameRef{kind: refEnv, sym: b, depth: c.depthOf(s), name: name}
		}
		return nameRef{kind: refRegister, sym: b, name: name}
	}
	if dynamic {
		return nameRef{kind: refDynamic, name: name}
	}
	return nameRef{kind: refGlobal, name: name}
}

// refOf returns the reference of a known binding.
func (c *Compiler) refOf(b *Symbol) nameRef {
	switch {
	case b.scope.kind == scopeScript:
		return nameRef{kind: refGlobal, sym: b, name: b.Name}
	case b.scope.hasEnv:
		return nameRef{kind: refEnv, sym: b, depth: c.depthOf(b.scope), name: b.Name}
	}
	return nameRef{kind: refRegister, sym: b, name: b.Name}
}

// needsCheck reports whether a read of b must test for the dead zone.
func (c *Compiler) needsCheck(b *Symbol) bool {
	if b == nil || !b.lexical || !b.needsTDZ {
		return false
	}
	return !(b.initEmitted && b.scope.fn == c.fi && !b.scope.switchScope)
}

// loadRef reads a resolved name into dst.
func (c *Compiler) loadRef(ref nameRef, dst Register, typeof bool) {
	switch ref.kind {
	case refRegister:
		b := ref.sym
		if b.reg != dst {
			c.emit(vm.OpMove, int(dst), int(b.reg))
		}
		if c.needsCheck(b) {
			c.emit(vm.OpCheckTDZ, int(dst), c.constString(ref.name))
		}
	case refEnv:
		b := ref.sym
		switch {
		case b.Kind == vm.BindImport:
			c.emit(vm.OpGetImport, int(dst), ref.depth, b.slot, c.constString(ref.name))
		case c.needsCheck(b):
			c.emit(vm.OpGetEnvCheck, int(dst), ref.depth, b.slot, c.constString(ref.name))
		default:
			c.emit(vm.OpGetEnv, int(dst), ref.depth, b.slot)
		}
	case refGlobal:
		op := vm.OpGetGlobal
		if typeof {
			op = vm.OpTypeofGlobal
		}
		c.emit(op, int(dst), c.constString(ref.name))
	case refDynamic:
		op := vm.OpGetName
		if typeof {
			op = vm.OpTypeofName
		}
		c.emit(op, int(dst), c.constString(ref.name))
	}
}

// loadName reads the binding name into dst.
func (c *Compiler) loadName(name string, dst Register) {
	c.loadRef(c.resolve(name), dst, false)
}

// storeRef writes src to a resolved name. init marks the initialization
// of a declaration, which skips the dead zone and constness checks.
func (c *Compiler) storeRef(ref nameRef, src Register, init bool) {
	b := ref.sym
	switch ref.kind {
	case refRegister, refEnv:
		if !init {
			switch b.Kind {
			case vm.BindConst, vm.BindImport:
				if b.Kind == vm.BindConst && c.needsCheck(b) {
					t := c.regs.Alloc()
					c.loadRef(ref, t, false)
					c.regs.Release(t)
				}
				c.emit(vm.OpThrowConstAs, c.constString(ref.name))
				return
			case vm.BindSloppyFuncName:
				if c.fi.strict {
					c.emit(vm.OpThrowConstAs, c.constString(ref.name))
				}
				return
			}
		}
		check := !init && c.needsCheck(b)
		if ref.kind == refRegister {
			if check {
				c.emit(vm.OpCheckTDZ, int(b.reg), c.constString(ref.name))
			}
			if b.reg != src {
				c.emit(vm.OpMove, int(b.reg), int(src))
			}
		} else if check {
			c.emit(vm.OpSetEnvCheck, ref.depth, b.slot, int(src), c.constString(ref.name))
		} else {
			c.emit(vm.OpSetEnv, ref.depth, b.slot, int(src))
		}
		if init {
			b.initEmitted = true
		}
	case refGlobal:
		if init && b != nil && b.lexical {
			c.emit(vm.OpInitGlobalLex, c.constString(ref.name), int(src))
			return
		}
		c.emit(vm.OpSetGlobal, c.constString(ref.name), int(src))
	case refDynamic:
		c.emit(vm.OpSetName, c.constString(ref.name), int(src))
	}
}

// storeSymbol initializes or assigns a known binding.
func (c *Compiler) storeSymbol(b *Symbol, src Register, init bool) {
	c.storeRef(c.refOf(b), src, init)
}

// loadPseudo reads this, new.target or the callee as seen from the
// current code.
func (c *Compiler) loadPseudo(name string, dst Register) {
	c.loadPseudoFrom(c.scope, name, dst)
}

func (c *Compiler) loadPseudoFrom(start *SymbolTable, name string, dst Register) {
	for s := start; s != nil; s = s.Outer {
		switch s.kind {
		case scopeForeign:
			if s.foreign != nil {
				if slot, ok := s.foreign.Lookup(name); ok {
					c.emit(vm.OpGetEnv, int(dst), c.depthOf(s), slot)
					return
				}
			}
			continue
		case scopeWith:
			continue
		}
		if b := s.store[name]; b != nil {
			c.loadRef(c.refOf(b), dst, false)
			return
		}
		switch s.kind {
		case scopeFunction:
			if s.fn.isArrow() {
				continue
			}
			c.loadOwnPseudo(name, dst)
			return
		case scopeScript:
			if name == pseudoThis {
				c.emit(vm.OpLoadGlobalThis, int(dst))
			} else {
				c.emit(vm.OpLoadUndefined, int(dst))
			}
			return
		case scopeModule:
			c.emit(vm.OpLoadUndefined, int(dst))
			return
		}
	}
	// Eval code whose caller keeps the value in its frame.
	switch {
	case c.u.inModule:
		c.emit(vm.OpLoadUndefined, int(dst))
	case c.u.evalFlags&vm.EvalInFunction == 0 && name == pseudoThis:
		c.emit(vm.OpLoadGlobalThis, int(dst))
	case c.u.evalFlags&vm.EvalInFunction == 0:
		c.emit(vm.OpLoadUndefined, int(dst))
	default:
		c.loadOwnPseudo(name, dst)
	}
}

// pseudoRef returns the binding holding a pseudo value for writes, used
// by super() to bind this.
func (c *Compiler) pseudoRef(name string) (nameRef, bool) {
	for s := c.scope; s != nil; s = s.Outer {
		switch s.kind {
		case scopeForeign:
			if s.foreign != nil {
				if _, ok := s.foreign.Lookup(name); ok {
					return nameRef{kind: refDynamic, name: name}, true
				}
			}
			continue
		case scopeWith:
			continue
		}
		if b := s.store[name]; b != nil {
			return c.refOf(b), true
		}
		if s.kind == scopeFunction && !s.fn.isArrow() {
			return nameRef{}, false
		}
	}
	return nameRef{}, false
}

// loadThis reads this, checking the derived constructor dead zone.
func (c *Compiler) loadThis(dst Register) {
	c.loadPseudo(pseudoThis, dst)
	if c.thisMayBeUnbound() {
		c.emit(vm.OpCheckThis, int(dst))
	}
}

func (c *Compiler) thisMayBeUnbound() bool {
	owner := c.fi.thisFunction()
	if owner.kind == vm.KindDerivedConstructor {
		return true
	}
	return owner.kind == vm.KindEval && c.u.evalFlags&vm.EvalInDerivedConstructor != 0
}
