// Package fs ties the layers together: the EasyFileSystem manager
// owns the on-disk geometry and the two bitmap allocators, and the
// Inode handles expose the virtual-filesystem surface (find, create,
// link, unlink, ls, read, write, clear) on top of it.
//
// Locking is two-tier: the manager mutex serializes every operation
// that must observe-then-mutate allocation or directory-membership
// state, and each cached block buffer has its own lock guarding only
// its bytes. The manager lock is always taken before any buffer lock,
// never the other way around.
package fs

import (
	"io"
	"sync"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/easyfs/easyfs/bcache"
	"github.com/easyfs/easyfs/bitmap"
	"github.com/easyfs/easyfs/device"
	"github.com/easyfs/easyfs/layout"
	"github.com/easyfs/easyfs/util/stats"
)

// RootInum is the inode slot of the root directory, allocated first
// at format time.
const RootInum common.Inum = 0

// BlockCacheSlots bounds the block cache pool.
const BlockCacheSlots uint64 = 16

const (
	statCreate = iota
	statFind
	statRead
	statWrite
	statLink
	statUnlink
	statClear
	statLs
	numStats
)

var statNames = []string{
	"create", "find", "read", "write", "link", "unlink", "clear", "ls",
}

type FileSystem struct {
	mu  sync.Mutex // serializes structural mutations
	bc  *bcache.BlockCache
	dev device.BlockDevice

	inodeBitmap *bitmap.Bitmap
	dataBitmap  *bitmap.Bitmap

	inodeAreaStart common.Bnum
	dataAreaStart  common.Bnum
	totalBlocks    uint64

	stats [numStats]stats.Op
}

// Format writes a fresh filesystem onto dev: zeroed regions, the
// SuperBlock, and a root directory at inode slot 0. The geometry is
// derived from the requested inode-bitmap size the same way every
// image is laid out: block 0, inode bitmap, inode area, data bitmap,
// data area.
func Format(dev device.BlockDevice, totalBlocks uint64, inodeBitmapBlocks uint64) *FileSystem {
	bitsPerBlock := device.BlockSize * 8

	inodeNum := inodeBitmapBlocks * bitsPerBlock
	inodeAreaBlocks := util.RoundUp(inodeNum*common.INODESZ, device.BlockSize)
	inodeTotal := inodeBitmapBlocks + inodeAreaBlocks
	if totalBlocks < 1+inodeTotal+2 {
		panic("fs: device too small for requested geometry")
	}
	dataTotal := totalBlocks - 1 - inodeTotal
	dataBitmapBlocks := (dataTotal + bitsPerBlock) / (bitsPerBlock + 1)
	dataAreaBlocks := dataTotal - dataBitmapBlocks

	bc := bcache.MkBlockCache(dev, BlockCacheSlots)
	for i := uint64(0); i < totalBlocks; i++ {
		bc.Modify(i, 0, func(data []byte) {
			for j := range data {
				data[j] = 0
			}
		})
	}

	var sb layout.SuperBlock
	sb.Initialize(uint32(totalBlocks), uint32(inodeBitmapBlocks),
		uint32(inodeAreaBlocks), uint32(dataBitmapBlocks), uint32(dataAreaBlocks))
	bc.Modify(0, 0, func(data []byte) {
		copy(data, sb.Encode())
	})
	util.DPrintf(1, "fs: format %d blocks (%d inodes, %d data blocks)\n",
		totalBlocks, inodeNum, dataAreaBlocks)

	fsys := mkFileSystem(dev, bc, &sb)
	inum, ok := fsys.allocInode()
	if !ok || inum != RootInum {
		panic("fs: root inode allocation failed at format time")
	}
	root := fsys.RootInode()
	root.modifyDiskInode(func(d *layout.DiskInode) {
		d.Initialize(layout.TypeDir)
	})
	fsys.bc.SyncAll()
	return fsys
}

// Open mounts an existing image, validating the SuperBlock.
func Open(dev device.BlockDevice) (*FileSystem, error) {
	bc := bcache.MkBlockCache(dev, BlockCacheSlots)
	var sb *layout.SuperBlock
	bc.Read(0, 0, func(data []byte) {
		sb = layout.DecodeSuperBlock(data)
	})
	if !sb.IsValid() {
		return nil, ErrBadMagic
	}
	util.DPrintf(1, "fs: open image with %d blocks\n", sb.TotalBlocks)
	return mkFileSystem(dev, bc, sb), nil
}

func mkFileSystem(dev device.BlockDevice, bc *bcache.BlockCache, sb *layout.SuperBlock) *FileSystem {
	ibb := uint64(sb.InodeBitmapBlocks)
	iab := uint64(sb.InodeAreaBlocks)
	dbb := uint64(sb.DataBitmapBlocks)
	return &FileSystem{
		bc:             bc,
		dev:            dev,
		inodeBitmap:    bitmap.MkBitmap(1, ibb),
		dataBitmap:     bitmap.MkBitmap(1+ibb+iab, dbb),
		inodeAreaStart: common.Bnum(1 + ibb),
		dataAreaStart:  common.Bnum(1 + ibb + iab + dbb),
		totalBlocks:    uint64(sb.TotalBlocks),
	}
}

// RootInode returns a handle on the root directory.
func (fsys *FileSystem) RootInode() *Inode {
	return mkInode(fsys, RootInum)
}

// SyncAll flushes every dirty cached block to the device. This is the
// durability point; nothing is persistent until it runs.
func (fsys *FileSystem) SyncAll() {
	fsys.bc.SyncAll()
}

// WriteStats dumps per-operation counters.
func (fsys *FileSystem) WriteStats(w io.Writer) {
	stats.WriteTable(statNames, fsys.stats[:], w)
}

// allocInode claims a free inode slot. Caller holds fsys.mu.
func (fsys *FileSystem) allocInode() (common.Inum, bool) {
	num, ok := fsys.inodeBitmap.Alloc(fsys.bc)
	if !ok {
		return 0, false
	}
	return common.Inum(num), true
}

// allocData claims a free data block and returns its absolute block
// number. Caller holds fsys.mu.
func (fsys *FileSystem) allocData() (common.Bnum, bool) {
	num, ok := fsys.dataBitmap.Alloc(fsys.bc)
	if !ok {
		return common.NULLBNUM, false
	}
	bnum := fsys.dataAreaStart + common.Bnum(num)
	if bnum >= common.Bnum(fsys.totalBlocks) {
		// trailing bitmap bits past the end of the data area
		fsys.dataBitmap.Dealloc(fsys.bc, num)
		return common.NULLBNUM, false
	}
	return bnum, true
}

// deallocData returns a data block to the allocator, zero-filling it
// so a future allocation reads as zeroes. Caller holds fsys.mu.
func (fsys *FileSystem) deallocData(bnum common.Bnum) {
	if bnum < fsys.dataAreaStart {
		panic("fs: dealloc of block outside the data area")
	}
	fsys.bc.Modify(uint64(bnum), 0, func(data []byte) {
		for i := range data {
			data[i] = 0
		}
	})
	fsys.dataBitmap.Dealloc(fsys.bc, uint64(bnum-fsys.dataAreaStart))
}

// diskInodePos maps an inode slot to its fixed location: the block in
// the inode area holding it and the byte offset of the record.
func (fsys *FileSystem) diskInodePos(inum common.Inum) (common.Bnum, uint64) {
	blk := fsys.inodeAreaStart + common.Bnum(uint64(inum)/layout.InodesPerBlock)
	off := (uint64(inum) % layout.InodesPerBlock) * common.INODESZ
	return blk, off
}
