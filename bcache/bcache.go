// Package bcache is a bounded, write-back cache of device blocks.
//
// Each cached block lives in a reference-counted slot with its own
// mutex; readers and writers of the same block serialize on that
// mutex, different blocks do not contend. A slot with reference count
// zero may be evicted when the cache is full; a dirty slot is flushed
// to the device before eviction. SyncAll is the only operation that
// guarantees every dirty buffer reaches the device.
package bcache

import (
	"sync"

	"github.com/mit-pdos/go-journal/util"

	"github.com/easyfs/easyfs/device"
)

// CachedBlock is an in-memory buffer for one device block.
type CachedBlock struct {
	mu    sync.Mutex
	bnum  uint64
	data  device.Block // nil until loaded
	dirty bool
}

// Read runs f over the block's bytes starting at off, holding the
// buffer lock.
func (cb *CachedBlock) Read(off uint64, f func(data []byte)) {
	cb.mu.Lock()
	f(cb.data[off:])
	cb.mu.Unlock()
}

// Modify runs f over the block's bytes starting at off, holding the
// buffer lock, and marks the buffer dirty.
func (cb *CachedBlock) Modify(off uint64, f func(data []byte)) {
	cb.mu.Lock()
	f(cb.data[off:])
	cb.dirty = true
	cb.mu.Unlock()
}

type entry struct {
	ref uint32
	cb  *CachedBlock
}

type BlockCache struct {
	mu      sync.Mutex // protects entries and refs
	dev     device.BlockDevice
	entries map[uint64]*entry
	nslots  uint64
}

func MkBlockCache(dev device.BlockDevice, nslots uint64) *BlockCache {
	return &BlockCache{
		dev:     dev,
		entries: make(map[uint64]*entry, nslots),
		nslots:  nslots,
	}
}

// evict removes one unreferenced slot, flushing it first if dirty.
// Caller holds c.mu. Returns false if every slot is referenced.
func (c *BlockCache) evict() bool {
	for bnum, e := range c.entries {
		if e.ref > 0 {
			continue
		}
		e.cb.mu.Lock()
		if e.cb.dirty {
			util.DPrintf(10, "bcache: flush %d on evict\n", bnum)
			c.dev.Write(bnum, e.cb.data)
			e.cb.dirty = false
		}
		e.cb.mu.Unlock()
		delete(c.entries, bnum)
		return true
	}
	return false
}

// Get returns the cached buffer for block bnum, loading it from the
// device on first access. The buffer stays resident until the matching
// Put. Panics if every slot is pinned by an outstanding Get.
func (c *BlockCache) Get(bnum uint64) *CachedBlock {
	c.mu.Lock()
	e := c.entries[bnum]
	if e != nil {
		e.ref++
		c.mu.Unlock()
		c.load(e.cb)
		return e.cb
	}
	if uint64(len(c.entries)) >= c.nslots {
		if !c.evict() {
			c.mu.Unlock()
			panic("bcache: all buffers in use")
		}
	}
	e = &entry{ref: 1, cb: &CachedBlock{bnum: bnum}}
	c.entries[bnum] = e
	c.mu.Unlock()
	c.load(e.cb)
	return e.cb
}

// load reads the block from the device if this slot has never been
// filled. Late loading keeps device I/O outside the cache-map lock.
func (c *BlockCache) load(cb *CachedBlock) {
	cb.mu.Lock()
	if cb.data == nil {
		util.DPrintf(10, "bcache: miss on %d\n", cb.bnum)
		cb.data = c.dev.Read(cb.bnum)
	}
	cb.mu.Unlock()
}

// Put releases a buffer returned by Get.
func (c *BlockCache) Put(cb *CachedBlock) {
	c.mu.Lock()
	e := c.entries[cb.bnum]
	if e == nil || e.ref == 0 {
		c.mu.Unlock()
		panic("bcache: put of unreferenced block")
	}
	e.ref--
	c.mu.Unlock()
}

// Read runs f over block bnum's bytes starting at off, under the
// buffer lock.
func (c *BlockCache) Read(bnum uint64, off uint64, f func(data []byte)) {
	cb := c.Get(bnum)
	cb.Read(off, f)
	c.Put(cb)
}

// Modify runs f over block bnum's bytes starting at off, under the
// buffer lock, marking the buffer dirty.
func (c *BlockCache) Modify(bnum uint64, off uint64, f func(data []byte)) {
	cb := c.Get(bnum)
	cb.Modify(off, f)
	c.Put(cb)
}

// SyncAll writes every dirty buffer to the device and marks it clean.
// The buffer locks are taken after the map lock is released, so a
// caller inside a Modify closure can never deadlock against a sync.
func (c *BlockCache) SyncAll() {
	c.mu.Lock()
	cbs := make([]*CachedBlock, 0, len(c.entries))
	for _, e := range c.entries {
		cbs = append(cbs, e.cb)
	}
	c.mu.Unlock()
	for _, cb := range cbs {
		cb.mu.Lock()
		if cb.dirty {
			util.DPrintf(10, "bcache: flush %d\n", cb.bnum)
			c.dev.Write(cb.bnum, cb.data)
			cb.dirty = false
		}
		cb.mu.Unlock()
	}
}
