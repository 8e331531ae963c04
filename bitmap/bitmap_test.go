package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyfs/easyfs/bcache"
	"github.com/easyfs/easyfs/device"
)

func mkTestBitmap(nblocks uint64) (*Bitmap, *bcache.BlockCache) {
	dev := device.NewMemDisk(nblocks + 1)
	bc := bcache.MkBlockCache(dev, 4)
	return MkBitmap(1, nblocks), bc
}

func TestAllocSequential(t *testing.T) {
	bm, bc := mkTestBitmap(1)
	for want := uint64(0); want < 10; want++ {
		got, ok := bm.Alloc(bc)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestDeallocReuse(t *testing.T) {
	bm, bc := mkTestBitmap(1)
	for i := 0; i < 4; i++ {
		_, ok := bm.Alloc(bc)
		require.True(t, ok)
	}
	bm.Dealloc(bc, 1)
	got, ok := bm.Alloc(bc)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got, "first-fit should reuse the freed bit")
	got, ok = bm.Alloc(bc)
	require.True(t, ok)
	assert.Equal(t, uint64(4), got)
}

func TestExhaustion(t *testing.T) {
	bm, bc := mkTestBitmap(1)
	max := bm.Maximum()
	assert.Equal(t, device.BlockSize*8, max)
	for i := uint64(0); i < max; i++ {
		_, ok := bm.Alloc(bc)
		require.True(t, ok)
	}
	_, ok := bm.Alloc(bc)
	assert.False(t, ok)

	bm.Dealloc(bc, max-1)
	got, ok := bm.Alloc(bc)
	require.True(t, ok)
	assert.Equal(t, max-1, got)
}

func TestDoubleFreePanics(t *testing.T) {
	bm, bc := mkTestBitmap(1)
	n, ok := bm.Alloc(bc)
	require.True(t, ok)
	bm.Dealloc(bc, n)
	assert.Panics(t, func() { bm.Dealloc(bc, n) })
	assert.Panics(t, func() { bm.Dealloc(bc, bm.Maximum()+1) })
}

func TestSecondBlockOfRegion(t *testing.T) {
	bm, bc := mkTestBitmap(2)
	perBlock := device.BlockSize * 8
	for i := uint64(0); i < perBlock; i++ {
		_, ok := bm.Alloc(bc)
		require.True(t, ok)
	}
	got, ok := bm.Alloc(bc)
	require.True(t, ok)
	assert.Equal(t, perBlock, got, "allocation should cross into the second bitmap block")
}
