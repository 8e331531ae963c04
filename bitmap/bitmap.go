// Package bitmap tracks free space with one bit per allocatable unit
// (inode slot or data block) over a contiguous region of bitmap
// blocks. Allocation is a linear first-zero-bit scan; acceptable
// because the bitmap blocks are served by the block cache.
package bitmap

import (
	"fmt"
	"math/bits"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine"

	"github.com/easyfs/easyfs/bcache"
	"github.com/easyfs/easyfs/device"
)

const bitsPerBlock = device.BlockSize * 8
const wordsPerBlock = device.BlockSize / 8

type Bitmap struct {
	start   uint64 // first block of the bitmap region
	nblocks uint64 // blocks in the region
}

func MkBitmap(start uint64, nblocks uint64) *Bitmap {
	return &Bitmap{start: start, nblocks: nblocks}
}

// Maximum is the number of bits the region manages.
func (bm *Bitmap) Maximum() uint64 {
	return bm.nblocks * bitsPerBlock
}

// Alloc finds the first clear bit, sets it, and returns its absolute
// index within the region. Returns false when every bit is set.
func (bm *Bitmap) Alloc(bc *bcache.BlockCache) (uint64, bool) {
	for blk := uint64(0); blk < bm.nblocks; blk++ {
		var num uint64
		var ok bool
		bc.Modify(bm.start+blk, 0, func(data []byte) {
			for w := uint64(0); w < wordsPerBlock; w++ {
				word := machine.UInt64Get(data[w*8:])
				if word == ^uint64(0) {
					continue
				}
				bit := uint64(bits.TrailingZeros64(^word))
				machine.UInt64Put(data[w*8:], word|(1<<bit))
				num = blk*bitsPerBlock + w*64 + bit
				ok = true
				return
			}
		})
		if ok {
			util.DPrintf(5, "bitmap: alloc %d\n", num)
			return num, true
		}
	}
	return 0, false
}

// Dealloc clears bit num. The bit must be set; clearing a clear bit
// means allocator state and disk state disagree, which is fatal.
func (bm *Bitmap) Dealloc(bc *bcache.BlockCache, num uint64) {
	blk := num / bitsPerBlock
	if blk >= bm.nblocks {
		panic(fmt.Sprintf("bitmap: dealloc of %d outside region", num))
	}
	w := (num % bitsPerBlock) / 64
	bit := num % 64
	bc.Modify(bm.start+blk, 0, func(data []byte) {
		word := machine.UInt64Get(data[w*8:])
		if word&(1<<bit) == 0 {
			panic(fmt.Sprintf("bitmap: double free of bit %d", num))
		}
		machine.UInt64Put(data[w*8:], word & ^(uint64(1)<<bit))
	})
	util.DPrintf(5, "bitmap: dealloc %d\n", num)
}
