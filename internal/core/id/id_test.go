package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	a := MustParse("00000000-0000-7000-8000-000000000001")
	b := MustParse("00000000-0000-7000-8000-0000000000ff")
	c := MustParse("10000000-0000-7000-8000-000000000000")

	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(c, b))
	assert.Zero(t, Compare(a, a))
	assert.True(t, Less(a, c))
}

func TestSortUnique(t *testing.T) {
	a, b := New(), New()
	got := SortUnique([]ID{b, a, b, a})
	assert.Equal(t, []ID{a, b}, got)
}

func TestNew_TimeOrdered(t *testing.T) {
	first := New()
	second := New()
	assert.Equal(t, 7, int(first.Version()))
	assert.True(t, Less(first, second))
}
