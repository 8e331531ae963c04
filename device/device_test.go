package device

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBlock(fill byte) Block {
	b := make([]byte, BlockSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestMemDiskReadWrite(t *testing.T) {
	d := NewMemDisk(8)
	assert.Equal(t, uint64(8), d.Size())

	d.Write(3, mkBlock(0xaa))
	got := d.Read(3)
	assert.Equal(t, mkBlock(0xaa), got)

	// reads return copies, not aliases
	got[0] = 0x55
	assert.Equal(t, mkBlock(0xaa), d.Read(3))

	assert.Equal(t, mkBlock(0), d.Read(0))
}

func TestMemDiskBounds(t *testing.T) {
	d := NewMemDisk(2)
	assert.Panics(t, func() { d.Read(2) })
	assert.Panics(t, func() { d.Write(2, mkBlock(1)) })
	assert.Panics(t, func() { d.Write(0, []byte{1, 2, 3}) })
}

func TestFileDiskReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), d.Size())
	d.Write(0, mkBlock(0x11))
	d.Write(15, mkBlock(0x22))
	d.Close()

	d2, err := OpenFileDisk(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), d2.Size())
	assert.Equal(t, mkBlock(0x11), d2.Read(0))
	assert.Equal(t, mkBlock(0x22), d2.Read(15))
	assert.Equal(t, mkBlock(0), d2.Read(7))
	d2.Close()
}
