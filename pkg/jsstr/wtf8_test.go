package jsstr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTripLoneSurrogates(t *testing.T) {
	cases := [][]uint16{
		{'a', 'b', 'c'},
		{0xD83D, 0xDE00},
		{0xD800},
		{'x', 0xDC00, 'y'},
		{0xDBFF, 0xD800},
	}
	for _, units := range cases {
		s := FromUnits(units)
		assert.Equal(t, units, ToUnits(s), "round trip of %x", units)
		assert.Equal(t, len(units), UnitLength(s))
	}
}

func TestDistinctSurrogatesStayDistinct(t *testing.T) {
	a := FromUnits([]uint16{0xD800})
	b := FromUnits([]uint16{0xD801})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, "�")
}

func TestWellFormed(t *testing.T) {
	assert.True(t, IsWellFormed([]uint16{0xD83D, 0xDE00}))
	assert.False(t, IsWellFormed([]uint16{0xD83D}))
	assert.False(t, IsWellFormed([]uint16{0xDE00, 'a'}))
}

func TestCodePointAt(t *testing.T) {
	units := ToUnits("a😀")
	cp, n := CodePointAt(units, 1)
	assert.Equal(t, rune(0x1F600), cp)
	assert.Equal(t, 2, n)
}
