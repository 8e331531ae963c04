package layout

import (
	"bytes"
	"fmt"

	"github.com/mit-pdos/go-journal/common"
	"github.com/tchajed/goose/machine"
)

const (
	// NameLengthLimit is the longest directory-entry name.
	NameLengthLimit uint64 = 27
	// DirentSize is the encoded size of one DirEntry: a zero-padded
	// name field plus the inode slot number.
	DirentSize uint64 = 32
)

// DirEntry maps a name to an inode slot. Directory content is a
// packed, insertion-ordered sequence of these, addressed through the
// normal DiskInode byte-range path.
type DirEntry struct {
	name [NameLengthLimit + 1]byte
	inum uint32
}

func MkDirEntry(name string, inum common.Inum) DirEntry {
	if uint64(len(name)) > NameLengthLimit {
		panic(fmt.Sprintf("layout: name %q exceeds limit", name))
	}
	var de DirEntry
	copy(de.name[:], name)
	de.inum = uint32(inum)
	return de
}

func (de *DirEntry) Name() string {
	n := bytes.IndexByte(de.name[:], 0)
	if n < 0 {
		n = len(de.name)
	}
	return string(de.name[:n])
}

func (de *DirEntry) Inum() common.Inum {
	return common.Inum(de.inum)
}

func (de *DirEntry) Encode() []byte {
	d := make([]byte, DirentSize)
	copy(d, de.name[:])
	machine.UInt32Put(d[NameLengthLimit+1:], de.inum)
	return d
}

func DecodeDirEntry(d []byte) DirEntry {
	var de DirEntry
	copy(de.name[:], d[:NameLengthLimit+1])
	de.inum = machine.UInt32Get(d[NameLengthLimit+1:])
	return de
}
