// Package device provides the block-device interface the filesystem
// is layered on: fixed-size blocks read and written by index, atomic
// at single-block granularity. I/O failures at this tier are fatal.
package device

import (
	"fmt"

	"github.com/goose-lang/std"
)

// BlockSize is the unit of caching and of disk I/O.
const BlockSize uint64 = 512

// Block is one block's worth of bytes (always BlockSize long).
type Block = []byte

type BlockDevice interface {
	// Read returns a fresh copy of block bnum.
	Read(bnum uint64) Block
	// Write replaces the contents of block bnum.
	Write(bnum uint64, b Block)
	// Size reports the device capacity in blocks.
	Size() uint64
	Close()
}

// MemDisk is an in-memory block device, for tests and throwaway images.
type MemDisk struct {
	blocks []Block
}

var _ BlockDevice = MemDisk{}

func NewMemDisk(numBlocks uint64) MemDisk {
	blocks := make([]Block, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, BlockSize)
	}
	return MemDisk{blocks: blocks}
}

func (d MemDisk) Read(bnum uint64) Block {
	if bnum >= uint64(len(d.blocks)) {
		panic(fmt.Sprintf("device: read of block %d past end of disk", bnum))
	}
	return std.BytesClone(d.blocks[bnum])
}

func (d MemDisk) Write(bnum uint64, b Block) {
	if bnum >= uint64(len(d.blocks)) {
		panic(fmt.Sprintf("device: write of block %d past end of disk", bnum))
	}
	if uint64(len(b)) != BlockSize {
		panic("device: write of non-block-sized buffer")
	}
	copy(d.blocks[bnum], b)
}

func (d MemDisk) Size() uint64 {
	return uint64(len(d.blocks))
}

func (d MemDisk) Close() {}
