package layout

import (
	"fmt"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine"
	"github.com/tchajed/marshal"

	"github.com/easyfs/easyfs/bcache"
	"github.com/easyfs/easyfs/device"
)

// DiskInode is the fixed-size on-disk record describing one file or
// directory: its byte length, type, link count, and the block-pointer
// map translating byte offsets to block numbers. It never allocates
// blocks itself; callers supply freshly allocated block numbers to
// IncreaseSize and hand the blocks returned by ClearSize back to the
// allocator. A pointer value of common.NULLBNUM means unpopulated
// (block 0 holds the SuperBlock, so 0 is never a data block).
type DiskInode struct {
	Size      uint32
	Direct    [InodeDirectCount]common.Bnum
	Indirect1 common.Bnum
	Indirect2 common.Bnum
	Nlink     uint32
	Type      InodeType
}

// Initialize resets the record to an empty inode of the given type
// with a single link.
func (d *DiskInode) Initialize(t InodeType) {
	d.Size = 0
	for i := range d.Direct {
		d.Direct[i] = common.NULLBNUM
	}
	d.Indirect1 = common.NULLBNUM
	d.Indirect2 = common.NULLBNUM
	d.Nlink = 1
	d.Type = t
}

func (d *DiskInode) IsDir() bool {
	return d.Type == TypeDir
}

func (d *DiskInode) IsFile() bool {
	return d.Type == TypeFile
}

func (d *DiskInode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(d.Size)
	for _, b := range d.Direct {
		enc.PutInt32(uint32(b))
	}
	enc.PutInt32(uint32(d.Indirect1))
	enc.PutInt32(uint32(d.Indirect2))
	enc.PutInt32(d.Nlink)
	enc.PutInt32(uint32(d.Type))
	return enc.Finish()
}

func DecodeDiskInode(b []byte) *DiskInode {
	dec := marshal.NewDec(b)
	d := new(DiskInode)
	d.Size = dec.GetInt32()
	for i := range d.Direct {
		d.Direct[i] = common.Bnum(dec.GetInt32())
	}
	d.Indirect1 = common.Bnum(dec.GetInt32())
	d.Indirect2 = common.Bnum(dec.GetInt32())
	d.Nlink = dec.GetInt32()
	d.Type = InodeType(dec.GetInt32())
	return d
}

func (d *DiskInode) String() string {
	return fmt.Sprintf("sz %d nlink %d type %d", d.Size, d.Nlink, d.Type)
}

// blocksForSize is the number of data blocks covering sz bytes.
func blocksForSize(sz uint32) uint64 {
	return util.RoundUp(uint64(sz), device.BlockSize)
}

// DataBlocks is the number of data blocks covering the current size,
// excluding index blocks.
func (d *DiskInode) DataBlocks() uint64 {
	return blocksForSize(d.Size)
}

// TotalBlocks counts every block a file of sz bytes occupies: data
// blocks plus the indirect index blocks bookkeeping them.
func TotalBlocks(sz uint32) uint64 {
	data := blocksForSize(sz)
	total := data
	if data > DirectBound {
		total += 1 // the indirect1 block
	}
	if data > Indirect1Bound {
		// the indirect2 block plus its sub-index blocks
		total += 1 + (data-Indirect1Bound+IndirectCount-1)/IndirectCount
	}
	return total
}

// BlocksNumNeeded is how many fresh blocks (data and index) growing to
// newSize requires.
func (d *DiskInode) BlocksNumNeeded(newSize uint32) uint64 {
	if newSize < d.Size {
		panic("layout: blocks needed for a smaller size")
	}
	return TotalBlocks(newSize) - TotalBlocks(d.Size)
}

// getIndirect reads entry idx of the index block bnum.
func getIndirect(bc *bcache.BlockCache, bnum common.Bnum, idx uint64) common.Bnum {
	var id common.Bnum
	bc.Read(bnum, idx*4, func(data []byte) {
		id = common.Bnum(machine.UInt32Get(data))
	})
	return id
}

// putIndirect sets entry idx of the index block bnum.
func putIndirect(bc *bcache.BlockCache, bnum common.Bnum, idx uint64, val common.Bnum) {
	bc.Modify(bnum, idx*4, func(data []byte) {
		machine.UInt32Put(data, uint32(val))
	})
}

// GetBlockID translates a block position within the file to the
// device block holding it.
func (d *DiskInode) GetBlockID(inner uint64, bc *bcache.BlockCache) common.Bnum {
	if inner < DirectBound {
		return d.Direct[inner]
	}
	if inner < Indirect1Bound {
		return getIndirect(bc, d.Indirect1, inner-DirectBound)
	}
	if inner < Indirect2Bound {
		last := inner - Indirect1Bound
		sub := getIndirect(bc, d.Indirect2, last/IndirectCount)
		return getIndirect(bc, sub, last%IndirectCount)
	}
	panic(fmt.Sprintf("layout: block position %d beyond maximum", inner))
}

// IncreaseSize grows the inode to newSize, wiring newBlocks into the
// pointer map in order: data blocks first for the direct tier, with
// index blocks consumed as each indirect tier is entered. newBlocks
// must hold exactly BlocksNumNeeded(newSize) entries.
func (d *DiskInode) IncreaseSize(newSize uint32, newBlocks []common.Bnum, bc *bcache.BlockCache) {
	if newSize < d.Size {
		panic("layout: increase to a smaller size")
	}
	if uint64(len(newBlocks)) != d.BlocksNumNeeded(newSize) {
		panic("layout: block supply does not match blocks needed")
	}
	next := 0
	take := func() common.Bnum {
		b := newBlocks[next]
		next++
		return b
	}

	current := d.DataBlocks()
	d.Size = newSize
	total := d.DataBlocks()

	for current < total && current < DirectBound {
		d.Direct[current] = take()
		current++
	}
	if total <= DirectBound {
		return
	}
	if current == DirectBound {
		d.Indirect1 = take()
	}
	current -= DirectBound
	total -= DirectBound

	for current < total && current < IndirectCount {
		putIndirect(bc, d.Indirect1, current, take())
		current++
	}
	if total <= IndirectCount {
		return
	}
	if current == IndirectCount {
		d.Indirect2 = take()
	}
	current -= IndirectCount
	total -= IndirectCount

	// walk (a0, b0) up to (a1, b1) through the two-level map
	a0, b0 := current/IndirectCount, current%IndirectCount
	a1, b1 := total/IndirectCount, total%IndirectCount
	for a0 < a1 || (a0 == a1 && b0 < b1) {
		if b0 == 0 {
			putIndirect(bc, d.Indirect2, a0, take())
		}
		sub := getIndirect(bc, d.Indirect2, a0)
		putIndirect(bc, sub, b0, take())
		b0++
		if b0 == IndirectCount {
			b0 = 0
			a0++
		}
	}
}

// ClearSize resets the inode to zero length and returns every block it
// occupied, index blocks included, for the caller to hand back to the
// allocator.
func (d *DiskInode) ClearSize(bc *bcache.BlockCache) []common.Bnum {
	v := make([]common.Bnum, 0, TotalBlocks(d.Size))
	dataBlocks := d.DataBlocks()
	d.Size = 0

	current := uint64(0)
	for current < dataBlocks && current < DirectBound {
		v = append(v, d.Direct[current])
		d.Direct[current] = common.NULLBNUM
		current++
	}
	if dataBlocks <= DirectBound {
		return v
	}
	v = append(v, d.Indirect1)
	dataBlocks -= DirectBound
	for i := uint64(0); i < dataBlocks && i < IndirectCount; i++ {
		v = append(v, getIndirect(bc, d.Indirect1, i))
	}
	d.Indirect1 = common.NULLBNUM
	if dataBlocks <= IndirectCount {
		return v
	}
	v = append(v, d.Indirect2)
	dataBlocks -= IndirectCount
	if dataBlocks > IndirectCount*IndirectCount {
		panic("layout: size beyond two-level indirect capacity")
	}
	a1, b1 := dataBlocks/IndirectCount, dataBlocks%IndirectCount
	for i := uint64(0); i < a1; i++ {
		sub := getIndirect(bc, d.Indirect2, i)
		v = append(v, sub)
		for j := uint64(0); j < IndirectCount; j++ {
			v = append(v, getIndirect(bc, sub, j))
		}
	}
	if b1 > 0 {
		sub := getIndirect(bc, d.Indirect2, a1)
		v = append(v, sub)
		for j := uint64(0); j < b1; j++ {
			v = append(v, getIndirect(bc, sub, j))
		}
	}
	d.Indirect2 = common.NULLBNUM
	return v
}

// ReadAt copies up to len(buf) bytes starting at offset into buf,
// stopping at the end of the file. Returns the number of bytes read;
// 0 when offset is at or past the end.
func (d *DiskInode) ReadAt(offset uint64, buf []byte, bc *bcache.BlockCache) uint64 {
	start := offset
	end := util.Min(uint64(d.Size), offset+uint64(len(buf)))
	if start >= end {
		return 0
	}
	var read uint64
	inner := start / device.BlockSize
	for {
		endCurrent := util.Min((start/device.BlockSize+1)*device.BlockSize, end)
		n := endCurrent - start
		bnum := d.GetBlockID(inner, bc)
		bc.Read(bnum, start%device.BlockSize, func(data []byte) {
			copy(buf[read:read+n], data[:n])
		})
		read += n
		if endCurrent == end {
			break
		}
		inner++
		start = endCurrent
	}
	return read
}

// WriteAt copies buf into the file starting at offset. The caller
// must already have grown the inode so the write fits inside Size.
func (d *DiskInode) WriteAt(offset uint64, buf []byte, bc *bcache.BlockCache) uint64 {
	start := offset
	end := offset + uint64(len(buf))
	if end > uint64(d.Size) {
		panic("layout: write past inode size")
	}
	if start == end {
		return 0
	}
	var written uint64
	inner := start / device.BlockSize
	for {
		endCurrent := util.Min((start/device.BlockSize+1)*device.BlockSize, end)
		n := endCurrent - start
		bnum := d.GetBlockID(inner, bc)
		bc.Modify(bnum, start%device.BlockSize, func(data []byte) {
			copy(data[:n], buf[written:written+n])
		})
		written += n
		if endCurrent == end {
			break
		}
		inner++
		start = endCurrent
	}
	return written
}
