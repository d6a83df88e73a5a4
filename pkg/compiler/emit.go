package compiler

import (
	"github.com/skua-js/skua/pkg/lexer"
	"github.com/skua-js/skua/pkg/vm"
)

func (c *Compiler) emit(op vm.OpCode, operands ...int) int {
	return c.chunk.Emit(op, operands...)
}

// emitJump emits a jump whose offset is patched later. regs are the
// operands before the jump offset.
func (c *Compiler) emitJump(op vm.OpCode, regs ...Register) int {
	ops := make([]int, 0, len(regs)+1)
	for _, r := range regs {
		ops = append(ops, int(r))
	}
	return c.emit(op, append(ops, 0)...)
}

// emitJumpIfInt jumps when r holds the number n.
func (c *Compiler) emitJumpIfInt(r Register, n int) int {
	return c.emit(vm.OpJumpIfInt, int(r), n, 0)
}

// patchJump points the jump at the current position.
func (c *Compiler) patchJump(at int) { c.chunk.PatchJump(at, c.here()) }

func (c *Compiler) patchJumps(list []int) {
	for _, at := range list {
		c.patchJump(at)
	}
}

// jumpBack emits a jump to an earlier position.
func (c *Compiler) jumpBack(target int) {
	at := c.emit(vm.OpJump, 0)
	c.chunk.PatchJump(at, target)
}

func (c *Compiler) here() int { return len(c.chunk.Code) }

func (c *Compiler) markPos(tok lexer.Token) {
	if tok.Line > 0 {
		c.chunk.MarkPosition(tok.Line, tok.Column)
		c.lastTok = tok
	}
}

func (c *Compiler) constString(s string) int {
	return c.chunk.AddConstant(vm.NewStringValue(s))
}

func (c *Compiler) loadString(dst Register, s string) {
	c.emit(vm.OpLoadConst, int(dst), c.constString(s))
}

func (c *Compiler) loadNumber(dst Register, f float64) {
	if f == float64(int(f)) && f >= 0 && f <= 0xffff && !isNegZero(f) {
		c.emit(vm.OpLoadInt, int(dst), int(f))
		return
	}
	c.emit(vm.OpLoadConst, int(dst), c.chunk.AddConstant(vm.NumberValue(f)))
}

func isNegZero(f float64) bool { return f == 0 && 1/f < 0 }

// throwError emits a throw of a new error of the given kind.
func (c *Compiler) throwError(kind vm.ErrorKind, msg string) {
	c.emit(vm.OpThrowError, int(kind), c.constString(msg))
}

// addHandler registers an exception handler. Handlers of inner regions
// must be added before those of the regions around them.
func (c *Compiler) addHandler(start, end, handler int, reg Register, envDepth int) {
	if start == end {
		return
	}
	c.chunk.Handlers = append(c.chunk.Handlers, vm.ExceptionHandler{
		Start: start, End: end, Handler: handler, Reg: int(reg), EnvDepth: envDepth,
	})
}

// --- Control transfer ---

type controlKind uint8

const (
	ctlLoop controlKind = iota
	ctlLabel
	ctlSwitch
	// ctlFinally, ctlIterator and ctlDispose run code when control
	// leaves them by break, continue or return.
	ctlFinally
	ctlIterator
	ctlDispose
)

// control is an entry of the statement nesting that break, continue and
// return have to respect.
type control struct {
	kind     controlKind
	labels   []string
	envDepth int

	breaks    []int
	continues []int

	// exits lists the distinct destinations of jumps leaving a finally,
	// iterator or dispose region. Their code is emitted after the region.
	exits []*exit

	// ctlIterator
	loop      *control
	iter      Register
	asyncIter bool
	// ctlFinally and ctlDispose
	kindReg, valReg Register
}

type exit struct {
	to    *control
	cont  bool
	ret   bool
	jumps []int
}

func (x *control) runsOnExit() bool {
	return x.kind == ctlFinally || x.kind == ctlIterator || x.kind == ctlDispose
}

func (x *control) addExit(to *control, cont, ret bool, jump int) {
	for _, e := range x.exits {
		if e.to == to && e.cont == cont && e.ret == ret {
			e.jumps = append(e.jumps, jump)
			return
		}
	}
	x.exits = append(x.exits, &exit{to: to, cont: cont, ret: ret, jumps: []int{jump}})
}

func (c *Compiler) pushControl(kind controlKind, labels []string) *control {
	x := &control{kind: kind, labels: labels, envDepth: c.envDepth()}
	c.controls = append(c.controls, x)
	return x
}

func (c *Compiler) popControl() *control {
	x := c.controls[len(c.controls)-1]
	c.controls = c.controls[:len(c.controls)-1]
	return x
}

func (c *Compiler) controlIndex(x *control) int {
	for i := len(c.controls) - 1; i >= 0; i-- {
		if c.controls[i] == x {
			return i
		}
	}
	return -1
}

// exitTo leaves the current position for the break or continue target
// to, or returns from the function when ret is set. The value of a return
// is already in retReg when a finally region is crossed.
func (c *Compiler) exitTo(to *control, cont, ret bool) {
	stop := -1
	if to != nil {
		stop = c.controlIndex(to)
	}
	for i := len(c.controls) - 1; i > stop; i-- {
		x := c.controls[i]
		if !x.runsOnExit() {
			continue
		}
		if x.kind == ctlIterator && cont && x.loop == to {
			continue
		}
		c.popEnvsTo(x.envDepth)
		x.addExit(to, cont, ret, c.emit(vm.OpJump, 0))
		return
	}
	if ret {
		c.returnNow(c.retReg)
		return
	}
	c.popEnvsTo(to.envDepth)
	j := c.emit(vm.OpJump, 0)
	if cont {
		to.continues = append(to.continues, j)
	} else {
		to.breaks = append(to.breaks, j)
	}
}

// crossesExitCode reports whether a return from here runs finally,
// iterator close or dispose code.
func (c *Compiler) crossesExitCode() bool {
	for _, x := range c.controls {
		if x.runsOnExit() {
			return true
		}
	}
	return false
}

// emitReturn returns the value in val, running the exit code of the
// enclosing regions first.
func (c *Compiler) emitReturn(val Register) {
	if !c.crossesExitCode() {
		c.returnNow(val)
		return
	}
	if val != c.retReg {
		c.emit(vm.OpMove, int(c.retReg), int(val))
	}
	c.exitTo(nil, false, true)
}

// returnNow emits the return instruction itself.
func (c *Compiler) returnNow(val Register) {
	if c.fi.kind == vm.KindDerivedConstructor {
		this := c.regs.Alloc()
		c.loadPseudo(pseudoThis, this)
		c.emit(vm.OpReturnDerived, int(val), int(this))
		c.regs.Release(this)
		return
	}
	c.emit(vm.OpReturn, int(val))
}

// finishIteratorExits emits the code closing the iterator of x for every
// jump that left its loop. x has been popped.
func (c *Compiler) finishIteratorExits(x *control) {
	for _, e := range x.exits {
		c.patchJumps(e.jumps)
		if x.asyncIter {
			c.asyncIteratorClose(x.iter)
		} else {
			c.emit(vm.OpIterClose, int(x.iter), 0)
		}
		c.exitTo(e.to, e.cont, e.ret)
	}
}

// enterExitTrampolines emits, for each jump that left the finally or
// dispose region x, code recording the destination in the kind register
// and entering the cleanup code. It returns the jumps to patch to the
// start of the cleanup code.
func (c *Compiler) enterExitTrampolines(x *control) []int {
	var toCleanup []int
	for i, e := range x.exits {
		c.patchJumps(e.jumps)
		kind := 3 + i
		if e.ret {
			kind = 1
			c.emit(vm.OpMove, int(x.valReg), int(c.retReg))
		}
		c.emit(vm.OpLoadInt, int(x.kindReg), kind)
		toCleanup = append(toCleanup, c.emit(vm.OpJump, 0))
	}
	return toCleanup
}

// dispatchCompletion resumes the completion recorded in the kind register
// after cleanup code ran: return, throw or one of the pending jumps.
// Normal completion falls through.
func (c *Compiler) dispatchCompletion(x *control) {
	var done []int
	skip := c.emitJumpIfInt(x.kindReg, 0)
	isThrow := c.emitJumpIfInt(x.kindReg, 2)
	for i, e := range x.exits {
		kind := 3 + i
		if e.ret {
			kind = 1
		}
		next := c.emit(vm.OpJumpIfInt, int(x.kindReg), kind, 0)
		over := c.emit(vm.OpJump, 0)
		c.patchJump(next)
		if e.ret {
			c.emit(vm.OpMove, int(c.retReg), int(x.valReg))
		}
		c.exitTo(e.to, e.cont, e.ret)
		c.patchJump(over)
	}
	done = append(done, c.emit(vm.OpJump, 0))
	c.patchJump(isThrow)
	c.emit(vm.OpThrow, int(x.valReg))
	c.patchJump(skip)
	c.patchJumps(done)
}

// findBreakTarget resolves the target of a break statement.
func (c *Compiler) findBreakTarget(label string) *control {
	for i := len(c.controls) - 1; i >= 0; i-- {
		x := c.controls[i]
		if label == "" {
			if x.kind == ctlLoop || x.kind == ctlSwitch {
				return x
			}
			continue
		}
		for _, l := range x.labels {
			if l == label {
				return x
			}
		}
	}
	return nil
}

// findContinueTarget resolves the loop a continue statement continues.
func (c *Compiler) findContinueTarget(label string) *control {
	for i := len(c.controls) - 1; i >= 0; i-- {
		x := c.controls[i]
		if x.kind != ctlLoop {
			continue
		}
		if label == "" {
			return x
		}
		for _, l := range x.labels {
			if l == label {
				return x
			}
		}
	}
	return nil
}
