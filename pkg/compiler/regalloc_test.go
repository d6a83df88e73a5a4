package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedRegistersHoldParameters(t *testing.T) {
	ra := NewRegisterAllocator(3)
	assert.Equal(t, Register(3), ra.Alloc())
	assert.Equal(t, 4, ra.MaxRegs())
}

func TestAllocNIsContiguous(t *testing.T) {
	ra := NewRegisterAllocator(0)
	first := ra.AllocN(4)
	next := ra.Alloc()
	assert.Equal(t, Register(0), first)
	assert.Equal(t, Register(4), next)
}

func TestReleaseReturnsToMark(t *testing.T) {
	ra := NewRegisterAllocator(1)
	mark := ra.Mark()
	ra.Alloc()
	ra.Alloc()
	ra.Release(mark)
	assert.Equal(t, mark, ra.Alloc())
	// The high-water mark survives the release.
	assert.Equal(t, 3, ra.MaxRegs())
}

func TestReleasePastAllocationPointPanics(t *testing.T) {
	ra := NewRegisterAllocator(0)
	assert.Panics(t, func() { ra.Release(5) })
}

func TestRegisterExhaustion(t *testing.T) {
	ra := NewRegisterAllocator(0)
	ra.AllocN(maxRegisters - 1)
	require.NotPanics(t, func() { ra.Alloc() })
	assert.PanicsWithValue(t, errTooManyRegisters, func() { ra.Alloc() })
}
