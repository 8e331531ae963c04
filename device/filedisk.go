package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileDisk is a block device backed by a file (or a raw device node),
// one pread/pwrite per block.
type FileDisk struct {
	fd        int
	numBlocks uint64
}

var _ BlockDevice = FileDisk{}

func NewFileDisk(path string, numBlocks uint64) (FileDisk, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0666)
	if err != nil {
		return FileDisk{}, err
	}
	if err := unix.Ftruncate(fd, int64(numBlocks*BlockSize)); err != nil {
		unix.Close(fd)
		return FileDisk{}, err
	}
	return FileDisk{fd: fd, numBlocks: numBlocks}, nil
}

// OpenFileDisk opens an existing image, deriving the block count from
// the file size.
func OpenFileDisk(path string) (FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return FileDisk{}, err
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return FileDisk{}, err
	}
	return FileDisk{fd: fd, numBlocks: uint64(st.Size) / BlockSize}, nil
}

func (d FileDisk) Read(bnum uint64) Block {
	if bnum >= d.numBlocks {
		panic(fmt.Sprintf("device: read of block %d past end of disk", bnum))
	}
	buf := make([]byte, BlockSize)
	n, err := unix.Pread(d.fd, buf, int64(bnum*BlockSize))
	if err != nil || n != len(buf) {
		panic(fmt.Sprintf("device: read of block %d failed: %v", bnum, err))
	}
	return buf
}

func (d FileDisk) Write(bnum uint64, b Block) {
	if bnum >= d.numBlocks {
		panic(fmt.Sprintf("device: write of block %d past end of disk", bnum))
	}
	if uint64(len(b)) != BlockSize {
		panic("device: write of non-block-sized buffer")
	}
	n, err := unix.Pwrite(d.fd, b, int64(bnum*BlockSize))
	if err != nil || n != len(b) {
		panic(fmt.Sprintf("device: write of block %d failed: %v", bnum, err))
	}
}

func (d FileDisk) Size() uint64 {
	return d.numBlocks
}

func (d FileDisk) Close() {
	if err := unix.Close(d.fd); err != nil {
		panic(fmt.Sprintf("device: close failed: %v", err))
	}
}
