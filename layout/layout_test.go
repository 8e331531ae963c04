package layout

import (
	"testing"

	"github.com/mit-pdos/go-journal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyfs/easyfs/bcache"
	"github.com/easyfs/easyfs/device"
)

func TestSuperBlockValidation(t *testing.T) {
	var sb SuperBlock
	sb.Initialize(4096, 1, 1024, 1, 3069)
	assert.True(t, sb.IsValid())

	got := DecodeSuperBlock(sb.Encode())
	assert.Equal(t, sb, *got)

	zero := DecodeSuperBlock(make([]byte, device.BlockSize))
	assert.False(t, zero.IsValid())
}

func TestDirEntryCodec(t *testing.T) {
	de := MkDirEntry("hello", common.Inum(7))
	assert.Equal(t, "hello", de.Name())
	assert.Equal(t, common.Inum(7), de.Inum())

	enc := de.Encode()
	require.Equal(t, int(DirentSize), len(enc))
	got := DecodeDirEntry(enc)
	assert.Equal(t, "hello", got.Name())
	assert.Equal(t, common.Inum(7), got.Inum())

	longest := "abcdefghijklmnopqrstuvwxyz0" // 27 chars
	de = MkDirEntry(longest, 1)
	roundtrip := DecodeDirEntry(de.Encode())
	assert.Equal(t, longest, roundtrip.Name())

	assert.Panics(t, func() { MkDirEntry(longest+"x", 1) })
}

func TestTotalBlocksTiers(t *testing.T) {
	bs := uint32(device.BlockSize)
	for _, tc := range []struct {
		size uint32
		want uint64
	}{
		{0, 0},
		{1, 1},
		{bs, 1},
		{bs + 1, 2},
		{uint32(DirectBound) * bs, 27},
		// one block past the direct tier brings in the indirect1 block
		{uint32(DirectBound)*bs + 1, 29},
		{uint32(Indirect1Bound) * bs, 156},
		// one block past indirect1 brings in indirect2 plus one sub-index
		{uint32(Indirect1Bound)*bs + 1, 159},
		{uint32(Indirect1Bound+IndirectCount) * bs, 286},
		{uint32(Indirect1Bound+IndirectCount)*bs + 1, 288},
	} {
		assert.Equal(t, tc.want, TotalBlocks(tc.size), "size %d", tc.size)
	}
}

func TestBlocksNumNeeded(t *testing.T) {
	var d DiskInode
	d.Initialize(TypeFile)
	assert.Equal(t, uint64(1), d.BlocksNumNeeded(1))
	assert.Equal(t, uint64(27), d.BlocksNumNeeded(uint32(DirectBound*device.BlockSize)))

	d.Size = uint32(DirectBound * device.BlockSize)
	assert.Equal(t, uint64(2), d.BlocksNumNeeded(d.Size+1))
	assert.Panics(t, func() { d.BlocksNumNeeded(0) })
}

// feeder hands out consecutive device blocks the way a fresh allocator
// would.
type feeder struct {
	next common.Bnum
}

func (f *feeder) take(n uint64) []common.Bnum {
	v := make([]common.Bnum, n)
	for i := range v {
		v[i] = f.next
		f.next++
	}
	return v
}

func TestExtentGrowReadWriteClear(t *testing.T) {
	dev := device.NewMemDisk(300)
	bc := bcache.MkBlockCache(dev, 8)
	f := &feeder{next: 1}

	var d DiskInode
	d.Initialize(TypeFile)

	// grow through the direct tier
	sz1 := uint32(DirectBound * device.BlockSize)
	d.IncreaseSize(sz1, f.take(d.BlocksNumNeeded(sz1)), bc)
	assert.Equal(t, common.Bnum(1), d.GetBlockID(0, bc))
	assert.Equal(t, common.Bnum(27), d.GetBlockID(26, bc))

	// cross into indirect1, then into indirect2
	sz2 := uint32(200 * device.BlockSize)
	d.IncreaseSize(sz2, f.take(d.BlocksNumNeeded(sz2)), bc)
	assert.Equal(t, TotalBlocks(sz2), uint64(f.next-1))

	buf := make([]byte, sz2)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	assert.Equal(t, uint64(sz2), d.WriteAt(0, buf, bc))

	got := make([]byte, sz2)
	assert.Equal(t, uint64(sz2), d.ReadAt(0, got, bc))
	assert.Equal(t, buf, got)

	// a small read crossing a block boundary
	small := make([]byte, 6)
	assert.Equal(t, uint64(6), d.ReadAt(device.BlockSize-3, small, bc))
	assert.Equal(t, buf[device.BlockSize-3:device.BlockSize+3], small)

	// reads past the end return what's available
	assert.Equal(t, uint64(0), d.ReadAt(uint64(sz2), small, bc))
	assert.Equal(t, uint64(2), d.ReadAt(uint64(sz2)-2, small, bc))

	freed := d.ClearSize(bc)
	assert.Equal(t, TotalBlocks(sz2), uint64(len(freed)))
	seen := make(map[common.Bnum]bool, len(freed))
	for _, b := range freed {
		assert.False(t, seen[b], "block %d freed twice", b)
		seen[b] = true
	}
	for b := common.Bnum(1); b < f.next; b++ {
		assert.True(t, seen[b], "block %d never freed", b)
	}
	assert.Equal(t, uint32(0), d.Size)
	assert.Equal(t, common.NULLBNUM, d.Indirect1)
	assert.Equal(t, common.NULLBNUM, d.Indirect2)
}

func TestWritePastSizePanics(t *testing.T) {
	dev := device.NewMemDisk(8)
	bc := bcache.MkBlockCache(dev, 2)
	var d DiskInode
	d.Initialize(TypeFile)
	assert.Panics(t, func() { d.WriteAt(0, []byte{1}, bc) })
}

func TestDiskInodeCodec(t *testing.T) {
	var d DiskInode
	d.Initialize(TypeDir)
	d.Size = 12345
	d.Direct[0] = 99
	d.Direct[26] = 100
	d.Indirect1 = 101
	d.Nlink = 3

	enc := d.Encode()
	require.Equal(t, int(common.INODESZ), len(enc))
	got := DecodeDiskInode(enc)
	assert.Equal(t, d, *got)
	assert.True(t, got.IsDir())
	assert.False(t, got.IsFile())
}
