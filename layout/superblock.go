package layout

import (
	"github.com/tchajed/marshal"
)

// SuperBlockSize is the encoded size of the SuperBlock, stored at the
// start of block 0.
const SuperBlockSize uint64 = 24

// SuperBlock records the region geometry of a formatted image. It is
// written once at format time and never changes.
type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

func (sb *SuperBlock) Initialize(totalBlocks, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks uint32) {
	sb.Magic = EFSMagic
	sb.TotalBlocks = totalBlocks
	sb.InodeBitmapBlocks = inodeBitmapBlocks
	sb.InodeAreaBlocks = inodeAreaBlocks
	sb.DataBitmapBlocks = dataBitmapBlocks
	sb.DataAreaBlocks = dataAreaBlocks
}

func (sb *SuperBlock) IsValid() bool {
	return sb.Magic == EFSMagic
}

func (sb *SuperBlock) Encode() []byte {
	enc := marshal.NewEnc(SuperBlockSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.TotalBlocks)
	enc.PutInt32(sb.InodeBitmapBlocks)
	enc.PutInt32(sb.InodeAreaBlocks)
	enc.PutInt32(sb.DataBitmapBlocks)
	enc.PutInt32(sb.DataAreaBlocks)
	return enc.Finish()
}

func DecodeSuperBlock(b []byte) *SuperBlock {
	dec := marshal.NewDec(b)
	sb := new(SuperBlock)
	sb.Magic = dec.GetInt32()
	sb.TotalBlocks = dec.GetInt32()
	sb.InodeBitmapBlocks = dec.GetInt32()
	sb.InodeAreaBlocks = dec.GetInt32()
	sb.DataBitmapBlocks = dec.GetInt32()
	sb.DataAreaBlocks = dec.GetInt32()
	return sb
}
