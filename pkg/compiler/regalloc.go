package compiler

import (
	"fmt"
	"math"
)

// Register is a register index within one function frame.
type Register uint16

// maxRegisters bounds the frame size of a single function.
const maxRegisters = math.MaxUint16

// RegisterAllocator hands out registers in stack order. Bindings of a
// scope and the temporaries of an expression are released together by
// going back to a mark, which keeps argument blocks contiguous: the
// registers allocated after a mark always follow each other.
type RegisterAllocator struct {
	next Register // first free register
	max  int      // high-water mark, the frame size
}

// NewRegisterAllocator creates an allocator whose first reserved registers
// hold the parameters.
func NewRegisterAllocator(reserved int) *RegisterAllocator {
	ra := &RegisterAllocator{}
	ra.AllocN(reserved)
	return ra
}

// Alloc allocates one register.
func (ra *RegisterAllocator) Alloc() Register {
	return ra.AllocN(1)
}

// AllocN allocates n consecutive registers and returns the first.
func (ra *RegisterAllocator) AllocN(n int) Register {
	first := ra.next
	if int(first)+n > maxRegisters {
		panic(errTooManyRegisters)
	}
	ra.next += Register(n)
	if int(ra.next) > ra.max {
		ra.max = int(ra.next)
	}
	return first
}

// Mark returns the current allocation point.
func (ra *RegisterAllocator) Mark() Register { return ra.next }

// Release frees every register allocated since mark.
func (ra *RegisterAllocator) Release(mark Register) {
	if mark > ra.next {
		panic(fmt.Sprintf("register release past allocation point: R%d > R%d", mark, ra.next))
	}
	ra.next = mark
}

// MaxRegs returns the number of registers the frame needs.
func (ra *RegisterAllocator) MaxRegs() int { return ra.max }

// errTooManyRegisters is raised as a panic and turned into a compile
// error at the function boundary.
var errTooManyRegisters = fmt.Errorf("function needs more than %d registers", maxRegisters)
