package fs

import (
	"time"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/easyfs/easyfs/layout"
)

// Inode is a lightweight handle on one disk inode. Handles are
// interchangeable: any number may reference the same slot (hard links,
// repeated Find), and none is privileged. The handle holds no state
// beyond the slot's fixed location; every operation reads the on-disk
// record through the block cache.
//
// The manager lock serializes structural mutations, so concurrent
// handles are structurally safe. It does not order logically racing
// operations on the same slot (a WriteAt racing a Clear); callers
// needing per-file ordering must serialize above this layer.
type Inode struct {
	inum     common.Inum
	blockID  common.Bnum
	blockOff uint64
	fs       *FileSystem
}

func mkInode(fsys *FileSystem, inum common.Inum) *Inode {
	blockID, blockOff := fsys.diskInodePos(inum)
	return &Inode{
		inum:     inum,
		blockID:  blockID,
		blockOff: blockOff,
		fs:       fsys,
	}
}

// readDiskInode runs f over a decoded copy of the on-disk record,
// under the record block's buffer lock.
func (ip *Inode) readDiskInode(f func(d *layout.DiskInode)) {
	ip.fs.bc.Read(uint64(ip.blockID), ip.blockOff, func(data []byte) {
		f(layout.DecodeDiskInode(data))
	})
}

// modifyDiskInode runs f over the record and writes the result back,
// under the record block's buffer lock.
func (ip *Inode) modifyDiskInode(f func(d *layout.DiskInode)) {
	ip.fs.bc.Modify(uint64(ip.blockID), ip.blockOff, func(data []byte) {
		d := layout.DecodeDiskInode(data)
		f(d)
		copy(data, d.Encode())
	})
}

// findInodeID scans the directory's entries for name. d must be this
// handle's decoded record.
func (ip *Inode) findInodeID(name string, d *layout.DiskInode) (common.Inum, bool) {
	if !d.IsDir() {
		panic("easyfs: lookup in a non-directory")
	}
	cnt := uint64(d.Size) / layout.DirentSize
	var ent [layout.DirentSize]byte
	for i := uint64(0); i < cnt; i++ {
		if n := d.ReadAt(i*layout.DirentSize, ent[:], ip.fs.bc); n != layout.DirentSize {
			panic("easyfs: short directory entry read")
		}
		de := layout.DecodeDirEntry(ent[:])
		if de.Name() == name {
			return de.Inum(), true
		}
	}
	return 0, false
}

// increaseSize grows d to newSize, allocating exactly the data and
// index blocks required. On exhaustion the partial allocation is
// returned to the allocator and d is left untouched. Caller holds
// fs.mu and the record's buffer lock.
func (ip *Inode) increaseSize(d *layout.DiskInode, newSize uint64) error {
	if newSize > layout.MaxFileSize {
		return ErrTooLarge
	}
	if newSize <= uint64(d.Size) {
		return nil
	}
	fsys := ip.fs
	need := d.BlocksNumNeeded(uint32(newSize))
	blocks := make([]common.Bnum, 0, need)
	for i := uint64(0); i < need; i++ {
		b, ok := fsys.allocData()
		if !ok {
			for _, bb := range blocks {
				fsys.deallocData(bb)
			}
			return ErrNoSpace
		}
		blocks = append(blocks, b)
	}
	d.IncreaseSize(uint32(newSize), blocks, fsys.bc)
	return nil
}

// appendDirEnt grows the directory by one entry slot and writes the
// entry into it. Caller holds fs.mu.
func (ip *Inode) appendDirEnt(name string, inum common.Inum) error {
	var err error
	ip.modifyDiskInode(func(d *layout.DiskInode) {
		cnt := uint64(d.Size) / layout.DirentSize
		if e := ip.increaseSize(d, (cnt+1)*layout.DirentSize); e != nil {
			err = e
			return
		}
		de := layout.MkDirEntry(name, inum)
		d.WriteAt(cnt*layout.DirentSize, de.Encode(), ip.fs.bc)
	})
	return err
}

// Find resolves name in this directory to a new handle.
func (ip *Inode) Find(name string) (*Inode, error) {
	fsys := ip.fs
	defer fsys.stats[statFind].Record(time.Now())
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var inum common.Inum
	var found bool
	ip.readDiskInode(func(d *layout.DiskInode) {
		inum, found = ip.findInodeID(name, d)
	})
	if !found {
		return nil, ErrNotFound
	}
	return mkInode(fsys, inum), nil
}

// Create makes a new empty file in this directory. The existence
// check and the allocation happen under one critical section, so two
// racing creates of the same name cannot both succeed.
func (ip *Inode) Create(name string) (*Inode, error) {
	fsys := ip.fs
	defer fsys.stats[statCreate].Record(time.Now())
	if uint64(len(name)) > layout.NameLengthLimit {
		return nil, ErrNameTooLong
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var exists bool
	ip.readDiskInode(func(d *layout.DiskInode) {
		if !d.IsDir() {
			panic("easyfs: create in a non-directory")
		}
		_, exists = ip.findInodeID(name, d)
	})
	if exists {
		return nil, ErrExists
	}
	inum, ok := fsys.allocInode()
	if !ok {
		return nil, ErrNoSpace
	}
	newIp := mkInode(fsys, inum)
	newIp.modifyDiskInode(func(d *layout.DiskInode) {
		d.Initialize(layout.TypeFile)
	})
	if err := ip.appendDirEnt(name, inum); err != nil {
		// give the slot back so the failed create leaves nothing behind
		fsys.inodeBitmap.Dealloc(fsys.bc, uint64(inum))
		return nil, err
	}
	fsys.bc.SyncAll()
	util.DPrintf(1, "fs: create %q -> inode %d\n", name, inum)
	return newIp, nil
}

// Link adds newName as a second name for oldName's inode and bumps
// its link count.
func (ip *Inode) Link(oldName string, newName string) error {
	fsys := ip.fs
	defer fsys.stats[statLink].Record(time.Now())
	if oldName == newName {
		return ErrExists
	}
	if uint64(len(newName)) > layout.NameLengthLimit {
		return ErrNameTooLong
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var target common.Inum
	var found bool
	ip.readDiskInode(func(d *layout.DiskInode) {
		target, found = ip.findInodeID(oldName, d)
	})
	if !found {
		return ErrNotFound
	}
	if err := ip.appendDirEnt(newName, target); err != nil {
		return err
	}
	tp := mkInode(fsys, target)
	tp.modifyDiskInode(func(d *layout.DiskInode) {
		d.Nlink++
	})
	fsys.bc.SyncAll()
	util.DPrintf(1, "fs: link %q -> %q (inode %d)\n", newName, oldName, target)
	return nil
}

// Unlink removes name from this directory and drops the target's link
// count, reclaiming its blocks when the count reaches zero. The
// directory is rebuilt without the removed entry before the target is
// touched, so the directory's block layout is settled before the
// allocator sees the freed blocks.
func (ip *Inode) Unlink(name string) error {
	fsys := ip.fs
	defer fsys.stats[statUnlink].Record(time.Now())
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	var target common.Inum
	var found bool
	var survivors []layout.DirEntry
	ip.readDiskInode(func(d *layout.DiskInode) {
		if !d.IsDir() {
			panic("easyfs: unlink in a non-directory")
		}
		cnt := uint64(d.Size) / layout.DirentSize
		var ent [layout.DirentSize]byte
		for i := uint64(0); i < cnt; i++ {
			if n := d.ReadAt(i*layout.DirentSize, ent[:], fsys.bc); n != layout.DirentSize {
				panic("easyfs: short directory entry read")
			}
			de := layout.DecodeDirEntry(ent[:])
			if !found && de.Name() == name {
				target = de.Inum()
				found = true
				continue
			}
			survivors = append(survivors, de)
		}
	})
	if !found {
		return ErrNotFound
	}

	ip.modifyDiskInode(func(d *layout.DiskInode) {
		oldSize := d.Size
		freed := d.ClearSize(fsys.bc)
		if uint64(len(freed)) != layout.TotalBlocks(oldSize) {
			panic("easyfs: directory block accounting mismatch")
		}
		for _, b := range freed {
			fsys.deallocData(b)
		}
		if err := ip.increaseSize(d, uint64(len(survivors))*layout.DirentSize); err != nil {
			// the rebuild needs strictly fewer blocks than were freed
			panic("easyfs: directory rebuild exceeded freed space")
		}
		for i := range survivors {
			d.WriteAt(uint64(i)*layout.DirentSize, survivors[i].Encode(), fsys.bc)
		}
	})

	tp := mkInode(fsys, target)
	tp.modifyDiskInode(func(d *layout.DiskInode) {
		d.Nlink--
		if d.Nlink == 0 {
			sz := d.Size
			freed := d.ClearSize(fsys.bc)
			if uint64(len(freed)) != layout.TotalBlocks(sz) {
				panic("easyfs: block accounting mismatch on unlink")
			}
			for _, b := range freed {
				fsys.deallocData(b)
			}
			// the inode slot itself is not reclaimed
		}
	})
	fsys.bc.SyncAll()
	util.DPrintf(1, "fs: unlink %q (inode %d)\n", name, target)
	return nil
}

// Ls lists the directory's names in storage order.
func (ip *Inode) Ls() []string {
	fsys := ip.fs
	defer fsys.stats[statLs].Record(time.Now())
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var names []string
	ip.readDiskInode(func(d *layout.DiskInode) {
		if !d.IsDir() {
			panic("easyfs: ls of a non-directory")
		}
		cnt := uint64(d.Size) / layout.DirentSize
		var ent [layout.DirentSize]byte
		for i := uint64(0); i < cnt; i++ {
			if n := d.ReadAt(i*layout.DirentSize, ent[:], fsys.bc); n != layout.DirentSize {
				panic("easyfs: short directory entry read")
			}
			de := layout.DecodeDirEntry(ent[:])
			names = append(names, de.Name())
		}
	})
	return names
}

// ReadAt copies up to len(buf) bytes at offset into buf and reports
// how many were available.
func (ip *Inode) ReadAt(offset uint64, buf []byte) uint64 {
	fsys := ip.fs
	defer fsys.stats[statRead].Record(time.Now())
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var n uint64
	ip.readDiskInode(func(d *layout.DiskInode) {
		n = d.ReadAt(offset, buf, fsys.bc)
	})
	return n
}

// WriteAt writes buf at offset, growing the file first when the write
// extends past the current size.
func (ip *Inode) WriteAt(offset uint64, buf []byte) (uint64, error) {
	fsys := ip.fs
	defer fsys.stats[statWrite].Record(time.Now())
	if util.SumOverflows(offset, uint64(len(buf))) {
		return 0, ErrTooLarge
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	var n uint64
	var err error
	ip.modifyDiskInode(func(d *layout.DiskInode) {
		if err = ip.increaseSize(d, offset+uint64(len(buf))); err != nil {
			return
		}
		n = d.WriteAt(offset, buf, fsys.bc)
	})
	if err != nil {
		return 0, err
	}
	fsys.bc.SyncAll()
	return n, nil
}

// Clear truncates the file to zero length and returns its blocks to
// the allocator.
func (ip *Inode) Clear() {
	fsys := ip.fs
	defer fsys.stats[statClear].Record(time.Now())
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	ip.modifyDiskInode(func(d *layout.DiskInode) {
		sz := d.Size
		freed := d.ClearSize(fsys.bc)
		if uint64(len(freed)) != layout.TotalBlocks(sz) {
			panic("easyfs: block accounting mismatch on clear")
		}
		for _, b := range freed {
			fsys.deallocData(b)
		}
	})
	fsys.bc.SyncAll()
}

// InodeID is the handle's inode slot number.
func (ip *Inode) InodeID() uint64 {
	return uint64(ip.inum)
}

func (ip *Inode) Nlink() uint32 {
	var n uint32
	ip.readDiskInode(func(d *layout.DiskInode) {
		n = d.Nlink
	})
	return n
}

func (ip *Inode) IsDir() bool {
	var dir bool
	ip.readDiskInode(func(d *layout.DiskInode) {
		dir = d.IsDir()
	})
	return dir
}

func (ip *Inode) Size() uint64 {
	var sz uint32
	ip.readDiskInode(func(d *layout.DiskInode) {
		sz = d.Size
	})
	return uint64(sz)
}
