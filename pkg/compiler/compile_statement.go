package compiler

import (
	"fmt"

	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

func (c *Compiler) stmts(list []parser.Statement) {
	for _, s := range list {
		c.stmt(s)
	}
}

// resetCompletion gives statements whose completion may be empty the
// value undefined, as if, loop and switch statements do.
func (c *Compiler) resetCompletion() {
	if c.hasCompletion {
		c.emit(vm.OpLoadUndefined, int(c.completion))
	}
}

func (c *Compiler) stmt(st parser.Statement) {
	mark := c.regs.Mark()
	defer c.regs.Release(mark)

	switch s := st.(type) {
	case *parser.ExpressionStatement:
		c.markPos(s.Token)
		if c.hasCompletion {
			c.expr(s.Expression, c.completion)
			return
		}
		c.expr(s.Expression, c.regs.Alloc())
	case *parser.VariableDeclaration:
		c.markPos(s.Token)
		c.varDecl(s)
	case *parser.FunctionDeclaration:
		c.functionDeclaration(s)
	case *parser.ClassDeclaration:
		r := c.regs.Alloc()
		c.class(s.Class, r, "")
		c.storeRef(c.resolve(s.Class.Name.Value), r, true)
	case *parser.BlockStatement:
		c.block(s, s.Statements)
	case *parser.EmptyStatement:
	case *parser.DebuggerStatement:
		c.markPos(s.Token)
		c.emit(vm.OpDebugger)
	case *parser.IfStatement:
		c.ifStmt(s)
	case *parser.WhileStatement:
		c.whileStmt(s, nil)
	case *parser.DoWhileStatement:
		c.doWhileStmt(s, nil)
	case *parser.ForStatement:
		c.forStmt(s, nil)
	case *parser.ForInStatement:
		c.forInStmt(s, nil)
	case *parser.ForOfStatement:
		c.forOfStmt(s, nil)
	case *parser.LabeledStatement:
		c.labeled(s)
	case *parser.BreakStatement:
		c.markPos(s.Token)
		to := c.findBreakTarget(s.Label)
		if to == nil {
			c.fail(s.Token, "Illegal break statement")
		}
		c.exitTo(to, false, false)
	case *parser.ContinueStatement:
		c.markPos(s.Token)
		to := c.findContinueTarget(s.Label)
		if to == nil {
			c.fail(s.Token, "Illegal continue statement: no surrounding iteration statement")
		}
		c.exitTo(to, true, false)
	case *parser.ReturnStatement:
		c.markPos(s.Token)
		r := c.regs.Alloc()
		if s.Argument == nil {
			c.emit(vm.OpLoadUndefined, int(r))
		} else {
			c.expr(s.Argument, r)
			if c.fi.kind == vm.KindAsyncGenerator {
				c.emit(vm.OpAwait, int(r), int(r))
			}
		}
		c.emitReturn(r)
	case *parser.ThrowStatement:
		c.markPos(s.Token)
		r := c.regs.Alloc()
		c.expr(s.Argument, r)
		c.emit(vm.OpThrow, int(r))
	case *parser.TryStatement:
		c.tryStmt(s)
	case *parser.SwitchStatement:
		c.switchStmt(s, nil)
	case *parser.WithStatement:
		c.withStmt(s)
	case *parser.ImportDeclaration, *parser.ExportAllDeclaration:
	case *parser.ExportNamedDeclaration:
		if s.Declaration != nil {
			c.stmt(s.Declaration)
		}
	case *parser.ExportDefaultDeclaration:
		c.exportDefault(s)
	default:
		panic(fmt.Sprintf("compiler: unexpected statement %T", st))
	}
}

// block compiles a statement list in the scope the resolver made for node.
func (c *Compiler) block(node parser.Node, list []parser.Statement) {
	s := c.u.res.nodes[node]
	mark := c.regs.Mark()
	c.enterScope(s)
	c.withDispose(list, func() {
		c.hoistFunctions(list)
		c.stmts(list)
	})
	c.exitScope(s)
	c.regs.Release(mark)
}

// functionDeclaration copies a sloppy block function to its var binding
// when the declaration is evaluated. The function itself was created
// when the block was entered.
func (c *Compiler) functionDeclaration(s *parser.FunctionDeclaration) {
	if !c.fi.annexB[s] {
		return
	}
	b := c.scope.store[s.Function.Name.Value]
	if b == nil || b.annexB == nil {
		return
	}
	r := c.regs.Alloc()
	c.loadRef(c.refOf(b), r, false)
	c.storeRef(c.refOf(b.annexB), r, false)
}

// --- Declarations ---

type bindMode uint8

const (
	// bindAssign assigns existing bindings, as assignment expressions and
	// var declarations do.
	bindAssign bindMode = iota
	// bindInit initializes new lexical bindings and parameters.
	bindInit
)

func (c *Compiler) varDecl(d *parser.VariableDeclaration) {
	mode := bindAssign
	if d.IsLexical() {
		mode = bindInit
	}
	using := d.Kind == "using" || d.Kind == "await using"
	for _, decl := range d.Declarations {
		if decl.Init == nil && !d.IsLexical() {
			continue
		}
		mark := c.regs.Mark()
		r := c.regs.Alloc()
		if decl.Init == nil {
			c.emit(vm.OpLoadUndefined, int(r))
		} else {
			c.exprNamed(decl.Init, r, targetName(decl.Target))
		}
		if using {
			x := c.innermostDispose()
			hint := 0
			if d.Kind == "await using" {
				hint = 1
			}
			c.emit(vm.OpAddDisposable, int(x.valReg+1), int(r), hint)
		}
		c.bindPattern(decl.Target, r, mode)
		c.regs.Release(mark)
	}
}

func (c *Compiler) innermostDispose() *control {
	for i := len(c.controls) - 1; i >= 0; i-- {
		if c.controls[i].kind == ctlDispose {
			return c.controls[i]
		}
	}
	panic("compiler: using declaration outside a disposal scope")
}

// targetName is the name given to anonymous functions assigned to target.
func targetName(target parser.Expression) string {
	if id, ok := target.(*parser.Identifier); ok {
		return id.Value
	}
	return ""
}

// usingKind reports whether a statement list declares disposable
// resources: 0 none, 1 only using, 2 await using.
func usingKind(list []parser.Statement) int {
	kind := 0
	for _, st := range list {
		d, ok := st.(*parser.VariableDeclaration)
		if !ok {
			continue
		}
		switch d.Kind {
		case "await using":
			return 2
		case "using":
			kind = 1
		}
	}
	return kind
}

// withDispose runs body in a disposal scope when list declares using
// resources. The resources are disposed in reverse order however the
// body completes.
func (c *Compiler) withDispose(list []parser.Statement, body func()) {
	c.disposeScope(usingKind(list), body)
}

func (c *Compiler) disposeScope(kind int, body func()) {
	if kind == 0 {
		body()
		return
	}
	kindReg := c.regs.AllocN(3)
	valReg, scopeReg := kindReg+1, kindReg+2
	c.emit(vm.OpNewDisposeScope, int(scopeReg))
	x := c.pushControl(ctlDispose, nil)
	x.kindReg, x.valReg = kindReg, valReg
	start := c.here()
	body()
	end := c.here()
	c.popControl()

	c.emit(vm.OpLoadInt, int(kindReg), 0)
	toCleanup := []int{c.emit(vm.OpJump, 0)}
	toCleanup = append(toCleanup, c.enterExitTrampolines(x)...)
	handler := c.here()
	c.emit(vm.OpLoadInt, int(kindReg), 2)
	c.addHandler(start, end, handler, valReg, x.envDepth)
	c.patchJumps(toCleanup)

	mark := c.regs.Mark()
	res := c.regs.Alloc()
	loop := c.here()
	done := c.emitJump(vm.OpDisposeStep, res, scopeReg)
	if kind == 2 {
		awaitStart := c.here()
		c.emit(vm.OpAwait, int(res), int(res))
		awaitEnd := c.here()
		c.jumpBack(loop)
		rejected := c.here()
		c.emit(vm.OpDisposeError, int(scopeReg), int(res))
		c.jumpBack(loop)
		c.addHandler(awaitStart, awaitEnd, rejected, res, x.envDepth)
	} else {
		c.jumpBack(loop)
	}
	c.patchJump(done)
	c.regs.Release(mark)
	c.emit(vm.OpDisposeFinish, int(scopeReg), int(kindReg), int(valReg))
	c.dispatchCompletion(x)
}

// --- Control flow statements ---

func (c *Compiler) ifStmt(s *parser.IfStatement) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	r := c.regs.Alloc()
	c.expr(s.Test, r)
	els := c.emitJump(vm.OpJumpIfFalse, r)
	c.regs.Release(mark)
	c.stmt(s.Consequent)
	if s.Alternate == nil {
		c.patchJump(els)
		return
	}
	end := c.emit(vm.OpJump, 0)
	c.patchJump(els)
	c.stmt(s.Alternate)
	c.patchJump(end)
}

// cond evaluates a loop test and returns the jump taken when it is false.
func (c *Compiler) cond(test parser.Expression) int {
	mark := c.regs.Mark()
	r := c.regs.Alloc()
	c.expr(test, r)
	j := c.emitJump(vm.OpJumpIfFalse, r)
	c.regs.Release(mark)
	return j
}

func (c *Compiler) whileStmt(s *parser.WhileStatement, labels []string) {
	c.markPos(s.Token)
	c.resetCompletion()
	x := c.pushControl(ctlLoop, labels)
	top := c.here()
	exit := c.cond(s.Test)
	c.stmt(s.Body)
	c.jumpBack(top)
	c.popControl()
	c.patchJump(exit)
	c.patchJumps(x.breaks)
	for _, j := range x.continues {
		c.chunk.PatchJump(j, top)
	}
}

func (c *Compiler) doWhileStmt(s *parser.DoWhileStatement, labels []string) {
	c.markPos(s.Token)
	c.resetCompletion()
	x := c.pushControl(ctlLoop, labels)
	top := c.here()
	c.stmt(s.Body)
	c.patchJumps(x.continues)
	mark := c.regs.Mark()
	r := c.regs.Alloc()
	c.expr(s.Test, r)
	again := c.emitJump(vm.OpJumpIfTrue, r)
	c.chunk.PatchJump(again, top)
	c.regs.Release(mark)
	c.popControl()
	c.patchJumps(x.breaks)
}

func (c *Compiler) forStmt(s *parser.ForStatement, labels []string) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	scope := c.u.res.nodes[s]
	if scope != nil {
		c.enterScope(scope)
	}
	switch init := s.Init.(type) {
	case *parser.VariableDeclaration:
		c.varDecl(init)
	case parser.Expression:
		m := c.regs.Mark()
		c.expr(init, c.regs.Alloc())
		c.regs.Release(m)
	}
	perIteration := scope != nil && scope.hasEnv && scope.info.Kinds[0] == vm.BindLet
	if perIteration {
		c.emit(vm.OpCopyEnv)
	}
	x := c.pushControl(ctlLoop, labels)
	top := c.here()
	exit := -1
	if s.Test != nil {
		exit = c.cond(s.Test)
	}
	c.stmt(s.Body)
	c.patchJumps(x.continues)
	if perIteration {
		c.emit(vm.OpCopyEnv)
	}
	if s.Update != nil {
		m := c.regs.Mark()
		c.expr(s.Update, c.regs.Alloc())
		c.regs.Release(m)
	}
	c.jumpBack(top)
	c.popControl()
	if exit >= 0 {
		c.patchJump(exit)
	}
	c.patchJumps(x.breaks)
	if scope != nil {
		c.exitScope(scope)
	}
	c.regs.Release(mark)
}

// loopHead evaluates the object of a for-in or for-of loop. Lexical loop
// variables are in their dead zone meanwhile.
func (c *Compiler) loopHead(node parser.Statement, right parser.Expression, dst Register) {
	scope := c.u.res.nodes[node]
	if scope == nil {
		c.expr(right, dst)
		return
	}
	mark := c.regs.Mark()
	c.enterScope(scope)
	c.expr(right, dst)
	c.exitScope(scope)
	c.regs.Release(mark)
}

// bindLoopTarget assigns the value of one iteration to the loop's left
// side, entering the per-iteration scope of lexical declarations.
func (c *Compiler) bindLoopTarget(node parser.Statement, left parser.Node, v Register) *SymbolTable {
	scope := c.u.res.nodes[node]
	if scope != nil {
		c.enterScope(scope)
	}
	switch l := left.(type) {
	case *parser.VariableDeclaration:
		mode := bindAssign
		if l.IsLexical() {
			mode = bindInit
		}
		target := l.Declarations[0].Target
		if l.Kind == "using" || l.Kind == "await using" {
			hint := 0
			if l.Kind == "await using" {
				hint = 1
			}
			c.emit(vm.OpAddDisposable, int(c.innermostDispose().valReg+1), int(v), hint)
		}
		c.bindPattern(target, v, mode)
	case parser.Expression:
		c.bindPattern(l, v, bindAssign)
	}
	return scope
}

func loopUsingKind(left parser.Node) int {
	if d, ok := left.(*parser.VariableDeclaration); ok {
		switch d.Kind {
		case "using":
			return 1
		case "await using":
			return 2
		}
	}
	return 0
}

func (c *Compiler) forInStmt(s *parser.ForInStatement, labels []string) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	obj := c.regs.Alloc()
	c.loopHead(s, s.Right, obj)
	it := c.regs.Alloc()
	c.emit(vm.OpForInPrepare, int(it), int(obj))
	key := c.regs.Alloc()
	x := c.pushControl(ctlLoop, labels)
	top := c.here()
	done := c.emitJump(vm.OpForInNext, key, it)
	bodyMark := c.regs.Mark()
	scope := c.bindLoopTarget(s, s.Left, key)
	c.stmt(s.Body)
	if scope != nil {
		c.exitScope(scope)
	}
	c.regs.Release(bodyMark)
	c.jumpBack(top)
	c.popControl()
	for _, j := range x.continues {
		c.chunk.PatchJump(j, top)
	}
	c.patchJump(done)
	c.patchJumps(x.breaks)
	c.regs.Release(mark)
}

func (c *Compiler) forOfStmt(s *parser.ForOfStatement, labels []string) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	obj := c.regs.Alloc()
	c.loopHead(s, s.Right, obj)
	iter := c.regs.AllocN(2)
	async := 0
	if s.Await {
		async = 1
	}
	c.emit(vm.OpGetIterator, int(iter), int(obj), async)
	v := c.regs.Alloc()
	exc := c.regs.Alloc()

	loop := c.pushControl(ctlLoop, labels)
	top := c.here()
	var done int
	if s.Await {
		done = c.asyncIteratorStep(iter, v)
	} else {
		done = c.emitJump(vm.OpIterStep, v, iter)
	}
	it := c.pushControl(ctlIterator, nil)
	it.loop, it.iter, it.asyncIter = loop, iter, s.Await

	bodyStart := c.here()
	bodyMark := c.regs.Mark()
	c.disposeScope(loopUsingKind(s.Left), func() {
		scope := c.bindLoopTarget(s, s.Left, v)
		c.stmt(s.Body)
		if scope != nil {
			c.exitScope(scope)
		}
	})
	c.regs.Release(bodyMark)
	bodyEnd := c.here()
	c.jumpBack(top)
	c.popControl()

	handler := c.here()
	if s.Await {
		c.asyncIteratorCloseQuiet(iter, exc, loop.envDepth)
	} else {
		c.emit(vm.OpIterClose, int(iter), 1)
	}
	c.emit(vm.OpThrow, int(exc))
	c.addHandler(bodyStart, bodyEnd, handler, exc, loop.envDepth)

	c.finishIteratorExits(it)
	c.popControl()
	for _, j := range loop.continues {
		c.chunk.PatchJump(j, top)
	}
	c.patchJump(done)
	c.patchJumps(loop.breaks)
	c.regs.Release(mark)
}

func (c *Compiler) labeled(s *parser.LabeledStatement) {
	labels := []string{s.Label}
	body := s.Body
	for {
		l, ok := body.(*parser.LabeledStatement)
		if !ok {
			break
		}
		labels = append(labels, l.Label)
		body = l.Body
	}
	switch b := body.(type) {
	case *parser.WhileStatement:
		c.whileStmt(b, labels)
	case *parser.DoWhileStatement:
		c.doWhileStmt(b, labels)
	case *parser.ForStatement:
		c.forStmt(b, labels)
	case *parser.ForInStatement:
		c.forInStmt(b, labels)
	case *parser.ForOfStatement:
		c.forOfStmt(b, labels)
	case *parser.SwitchStatement:
		c.switchStmt(b, labels)
	default:
		x := c.pushControl(ctlLabel, labels)
		c.stmt(body)
		c.popControl()
		c.patchJumps(x.breaks)
	}
}

func (c *Compiler) switchStmt(s *parser.SwitchStatement, labels []string) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	disc := c.regs.Alloc()
	c.expr(s.Discriminant, disc)
	scope := c.u.res.nodes[s]
	c.enterScope(scope)
	var all []parser.Statement
	for _, cs := range s.Cases {
		all = append(all, cs.Consequent...)
	}
	c.withDispose(all, func() {
		c.hoistFunctions(all)
		x := c.pushControl(ctlSwitch, labels)
		jumps := make([]int, len(s.Cases))
		t := c.regs.Alloc()
		defaultCase := -1
		for i, cs := range s.Cases {
			if cs.Test == nil {
				defaultCase = i
				continue
			}
			c.expr(cs.Test, t)
			c.emit(vm.OpStrictEq, int(t), int(disc), int(t))
			jumps[i] = c.emitJump(vm.OpJumpIfTrue, t)
		}
		fallback := c.emit(vm.OpJump, 0)
		for i, cs := range s.Cases {
			if i == defaultCase {
				c.patchJump(fallback)
			} else {
				c.patchJump(jumps[i])
			}
			c.stmts(cs.Consequent)
		}
		if defaultCase < 0 {
			c.patchJump(fallback)
		}
		c.popControl()
		c.patchJumps(x.breaks)
	})
	c.exitScope(scope)
	c.regs.Release(mark)
}

func (c *Compiler) withStmt(s *parser.WithStatement) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	obj := c.regs.Alloc()
	c.expr(s.Object, obj)
	c.emit(vm.OpPushWith, int(obj))
	scope := c.u.res.nodes[s]
	saved := c.scope
	c.scope = scope
	c.envChain = append(c.envChain, scope)
	c.regs.Release(mark)
	c.stmt(s.Body)
	c.emit(vm.OpPopEnv)
	c.envChain = c.envChain[:len(c.envChain)-1]
	c.scope = saved
}

// tryStmt lays out try, catch and finally blocks. break, continue and
// return leaving a region with a finally block jump to trampolines after
// the region that record the destination and run the finally code.
func (c *Compiler) tryStmt(s *parser.TryStatement) {
	c.markPos(s.Token)
	c.resetCompletion()
	mark := c.regs.Mark()
	var x *control
	if s.Finalizer != nil {
		kindReg := c.regs.AllocN(2)
		x = c.pushControl(ctlFinally, nil)
		x.kindReg, x.valReg = kindReg, kindReg+1
	}
	depth := c.envDepth()
	start := c.here()
	exc := c.regs.Alloc()
	c.block(s.Block, s.Block.Statements)
	if s.Handler != nil {
		skip := c.emit(vm.OpJump, 0)
		handler := c.here()
		c.addHandler(start, skip, handler, exc, depth)
		c.catchClause(s, exc)
		c.patchJump(skip)
	}
	end := c.here()
	if x == nil {
		c.regs.Release(mark)
		return
	}
	c.popControl()
	c.emit(vm.OpLoadInt, int(x.kindReg), 0)
	toFinally := []int{c.emit(vm.OpJump, 0)}
	toFinally = append(toFinally, c.enterExitTrampolines(x)...)
	thrown := c.here()
	c.emit(vm.OpLoadInt, int(x.kindReg), 2)
	c.addHandler(start, end, thrown, x.valReg, depth)
	c.patchJumps(toFinally)

	// The finally block keeps the completion value of the statement.
	saved := c.hasCompletion
	c.hasCompletion = false
	c.block(s.Finalizer, s.Finalizer.Statements)
	c.hasCompletion = saved
	c.dispatchCompletion(x)
	c.regs.Release(mark)
}

func (c *Compiler) catchClause(s *parser.TryStatement, exc Register) {
	scope := c.u.res.nodes[s]
	mark := c.regs.Mark()
	c.enterScope(scope)
	if s.Param != nil {
		c.bindPattern(s.Param, exc, bindInit)
	}
	c.block(s.Handler, s.Handler.Statements)
	c.exitScope(scope)
	c.regs.Release(mark)
}

func (c *Compiler) exportDefault(s *parser.ExportDefaultDeclaration) {
	switch d := s.Declaration.(type) {
	case *parser.FunctionDeclaration:
		// Instantiated when the module is linked.
	case *parser.ClassDeclaration:
		r := c.regs.Alloc()
		name := "default"
		target := defaultExport
		if d.Class.Name != nil {
			name, target = d.Class.Name.Value, d.Class.Name.Value
		}
		c.class(d.Class, r, name)
		c.storeRef(c.resolve(target), r, true)
	case *parser.ExpressionStatement:
		c.markPos(d.Token)
		r := c.regs.Alloc()
		c.exprNamed(d.Expression, r, "default")
		c.storeRef(c.resolve(defaultExport), r, true)
	}
}
