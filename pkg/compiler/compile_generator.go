package compiler

import (
	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

func (c *Compiler) asyncGenerator() bool { return c.fi.kind == vm.KindAsyncGenerator }

// yield suspends with the value of x. A return resumption leaves the
// function from the yield point, running finally blocks on the way.
func (c *Compiler) yield(x *parser.YieldExpression, dst Register) {
	val := c.regs.Alloc()
	if x.Argument != nil {
		c.expr(x.Argument, val)
	} else {
		c.emit(vm.OpLoadUndefined, int(val))
	}
	if c.asyncGenerator() {
		c.emit(vm.OpAwait, int(val), int(val))
	}
	mode := c.regs.Alloc()
	c.emit(vm.OpYield, int(dst), int(mode), int(val), 0)
	ret := c.emitJumpIfInt(mode, vm.ResumeReturn)
	over := c.emit(vm.OpJump, 0)
	c.patchJump(ret)
	if c.asyncGenerator() {
		c.emit(vm.OpAwait, int(dst), int(dst))
	}
	c.emitReturn(dst)
	c.patchJump(over)
}

// yieldStar delegates to an inner iterator until it is done. Resumptions
// are forwarded to the inner iterator's next, throw or return method.
func (c *Compiler) yieldStar(x *parser.YieldExpression, dst Register) {
	async := c.asyncGenerator()
	obj := c.regs.Alloc()
	c.expr(x.Argument, obj)
	iter := c.regs.AllocN(2)
	hint := 0
	if async {
		hint = 1
	}
	c.emit(vm.OpGetIterator, int(iter), int(obj), hint)
	recv := c.regs.Alloc()
	mode := c.regs.Alloc()
	res := c.regs.Alloc()
	method := c.regs.Alloc()
	t := c.regs.Alloc()
	c.emit(vm.OpLoadUndefined, int(recv))
	c.emit(vm.OpLoadInt, int(mode), vm.ResumeNext)

	top := c.here()
	var toCall []int
	isNext := c.emit(vm.OpJumpIfInt, int(mode), vm.ResumeNext, 0)
	skipNext := c.emit(vm.OpJump, 0)
	c.patchJump(isNext)
	c.emit(vm.OpMove, int(method), int(iter+1))
	toCall = append(toCall, c.emit(vm.OpJump, 0))
	c.patchJump(skipNext)

	// throw
	isThrow := c.emit(vm.OpJumpIfInt, int(mode), vm.ResumeThrow, 0)
	skipThrow := c.emit(vm.OpJump, 0)
	c.patchJump(isThrow)
	c.emit(vm.OpGetMethod, int(method), int(iter), c.constString("throw"))
	hasThrow := c.emitJump(vm.OpJumpIfNotUndef, method)
	if async {
		c.asyncIteratorClose(iter)
	} else {
		c.emit(vm.OpIterClose, int(iter), 0)
	}
	c.throwError(vm.ErrTypeError, "The iterator does not provide a 'throw' method")
	c.patchJump(hasThrow)
	toCall = append(toCall, c.emit(vm.OpJump, 0))
	c.patchJump(skipThrow)

	// return
	c.emit(vm.OpGetMethod, int(method), int(iter), c.constString("return"))
	hasReturn := c.emitJump(vm.OpJumpIfNotUndef, method)
	if async {
		c.emit(vm.OpAwait, int(recv), int(recv))
	}
	c.emitReturn(recv)
	c.patchJump(hasReturn)
	c.emit(vm.OpCall, int(res), int(method), int(iter), int(recv), 1)
	if async {
		c.emit(vm.OpAwait, int(res), int(res))
	}
	c.emit(vm.OpCheckIterResult, int(res))
	c.emit(vm.OpGetProp, int(t), int(res), c.constString("done"))
	notDone := c.emitJump(vm.OpJumpIfFalse, t)
	c.emit(vm.OpGetProp, int(t), int(res), c.constString("value"))
	c.emitReturn(t)
	c.patchJump(notDone)
	afterReturn := c.emit(vm.OpJump, 0)

	// next and throw share the call.
	c.patchJumps(toCall)
	c.markPos(x.Token)
	c.emit(vm.OpCall, int(res), int(method), int(iter), int(recv), 1)
	if async {
		c.emit(vm.OpAwait, int(res), int(res))
	}
	c.emit(vm.OpCheckIterResult, int(res))
	c.emit(vm.OpGetProp, int(t), int(res), c.constString("done"))
	done := c.emitJump(vm.OpJumpIfTrue, t)

	c.patchJump(afterReturn)
	if async {
		c.emit(vm.OpGetProp, int(t), int(res), c.constString("value"))
		c.emit(vm.OpYield, int(recv), int(mode), int(t), vm.YieldDelegate)
	} else {
		c.emit(vm.OpYield, int(recv), int(mode), int(res), vm.YieldDelegate|vm.YieldRaw)
	}
	c.jumpBack(top)

	c.patchJump(done)
	c.emit(vm.OpGetProp, int(dst), int(res), c.constString("value"))
}

// asyncIteratorStep calls next of an async iterator, awaits the result
// and stores its value in v. The returned jump is taken when the
// iterator is done.
func (c *Compiler) asyncIteratorStep(iter, v Register) int {
	c.emit(vm.OpCall, int(v), int(iter+1), int(iter), int(v), 0)
	c.emit(vm.OpAwait, int(v), int(v))
	c.emit(vm.OpCheckIterResult, int(v))
	t := c.regs.Alloc()
	c.emit(vm.OpGetProp, int(t), int(v), c.constString("done"))
	done := c.emitJump(vm.OpJumpIfTrue, t)
	c.regs.Release(t)
	c.emit(vm.OpGetProp, int(v), int(v), c.constString("value"))
	return done
}

// asyncIteratorClose calls return of an async iterator and awaits the
// result.
func (c *Compiler) asyncIteratorClose(iter Register) {
	mark := c.regs.Mark()
	m := c.regs.Alloc()
	c.emit(vm.OpGetMethod, int(m), int(iter), c.constString("return"))
	skip := c.emitJump(vm.OpJumpIfUndefined, m)
	c.emit(vm.OpCall, int(m), int(m), int(iter), int(m), 0)
	c.emit(vm.OpAwait, int(m), int(m))
	c.emit(vm.OpCheckIterResult, int(m))
	c.patchJump(skip)
	c.regs.Release(mark)
}

// asyncIteratorCloseQuiet closes an async iterator while the exception in
// exc propagates. Errors from closing are discarded.
func (c *Compiler) asyncIteratorCloseQuiet(iter, exc Register, envDepth int) {
	mark := c.regs.Mark()
	m := c.regs.Alloc()
	start := c.here()
	c.emit(vm.OpGetMethod, int(m), int(iter), c.constString("return"))
	skip := c.emitJump(vm.OpJumpIfUndefined, m)
	c.emit(vm.OpCall, int(m), int(m), int(iter), int(m), 0)
	c.emit(vm.OpAwait, int(m), int(m))
	c.patchJump(skip)
	end := c.here()
	c.addHandler(start, end, end, m, envDepth)
	c.regs.Release(mark)
}
