// Package layout defines the on-disk records of the filesystem and
// the extent math over them: the SuperBlock describing the region
// geometry, the fixed-size DiskInode with its direct/indirect block
// pointer map, and the packed DirEntry records that make up directory
// contents. All integers are little-endian.
package layout

import (
	"github.com/mit-pdos/go-journal/common"

	"github.com/easyfs/easyfs/device"
)

// EFSMagic identifies a formatted image in the SuperBlock.
const EFSMagic uint32 = 0x3b800001

const (
	// InodeDirectCount is the number of direct block pointers in a
	// DiskInode. With 27 direct pointers the record is exactly
	// common.INODESZ (128) bytes: size + 27 direct + indirect1 +
	// indirect2 + nlink + type, each 4 bytes.
	InodeDirectCount uint64 = 27
	// IndirectCount is the number of block pointers held by one
	// indirect block.
	IndirectCount uint64 = device.BlockSize / 4

	// Capacity tiers, in data blocks.
	DirectBound    uint64 = InodeDirectCount
	Indirect1Bound uint64 = DirectBound + IndirectCount
	Indirect2Bound uint64 = Indirect1Bound + IndirectCount*IndirectCount

	// MaxFileSize is the largest byte length the pointer map can cover.
	MaxFileSize uint64 = Indirect2Bound * device.BlockSize

	// InodesPerBlock is how many DiskInode records pack into a block.
	InodesPerBlock uint64 = device.BlockSize / common.INODESZ
)

// InodeType distinguishes the two interpretations of a DiskInode's
// content.
type InodeType uint32

const (
	TypeFile InodeType = 0
	TypeDir  InodeType = 1
)
