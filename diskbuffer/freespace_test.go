package diskbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreeSpace_Merge(t *testing.T) {
	var f freeSpace

	assert.True(t, f.free(Block{Position: 10, Size: 5}))
	assert.True(t, f.free(Block{Position: 0, Size: 5}))
	assert.Equal(t, []Block{{0, 5}, {10, 5}}, f.snapshot())

	// Fills the gap: all three merge.
	assert.True(t, f.free(Block{Position: 5, Size: 5}))
	assert.Equal(t, []Block{{0, 15}}, f.snapshot())

	assert.True(t, f.free(Block{Position: 15, Size: 1}))
	assert.Equal(t, []Block{{0, 16}}, f.snapshot())
	assert.Equal(t, uint64(16), f.total())
}

func TestFreeSpace_RejectsOverlapAndEmpty(t *testing.T) {
	var f freeSpace
	assert.True(t, f.free(Block{Position: 10, Size: 10}))

	assert.False(t, f.free(Block{Position: 15, Size: 2}))
	assert.False(t, f.free(Block{Position: 5, Size: 6}))
	assert.False(t, f.free(Block{Position: 19, Size: 3}))
	assert.False(t, f.free(Block{Position: 30, Size: 0}))
	assert.False(t, f.free(Block{Position: Unassigned, Size: 3}))
	assert.Equal(t, uint64(10), f.total())
}

func TestFreeSpace_TakeBestFit(t *testing.T) {
	var f freeSpace
	f.free(Block{Position: 0, Size: 8})
	f.free(Block{Position: 20, Size: 3})
	f.free(Block{Position: 40, Size: 5})

	pos, ok := f.take(4)
	assert.True(t, ok)
	assert.Equal(t, uint64(40), pos)
	assert.Equal(t, []Block{{0, 8}, {20, 3}, {44, 1}}, f.snapshot())

	pos, ok = f.take(3)
	assert.True(t, ok)
	assert.Equal(t, uint64(20), pos)

	_, ok = f.take(9)
	assert.False(t, ok)
}
